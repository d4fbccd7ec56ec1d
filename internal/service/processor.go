package service

import (
	"context"
	"log"

	"github.com/dirchat/dirchat/internal/domain"
	"github.com/dirchat/dirchat/internal/index"
	"github.com/dirchat/dirchat/internal/ingest"
)

// Ingestor converts uploaded files into documents.
type Ingestor interface {
	Ingest(ctx context.Context, files []ingest.File) ([]domain.Document, []domain.FileError, error)
}

// Splitter cuts documents into retrieval-sized chunks.
type Splitter interface {
	Split(docs []domain.Document) []domain.Chunk
}

// IndexBuilder embeds chunks and produces a searchable index.
type IndexBuilder interface {
	Build(ctx context.Context, chunks []domain.Chunk) (index.Searcher, error)
}

// MemoryIndexBuilder adapts the in-memory index builder to the
// IndexBuilder contract.
type MemoryIndexBuilder struct {
	Builder *index.Builder
}

func (m MemoryIndexBuilder) Build(ctx context.Context, chunks []domain.Chunk) (index.Searcher, error) {
	return m.Builder.Build(ctx, chunks)
}

// ProcessResult reports what a successful processing run produced.
type ProcessResult struct {
	Searcher  index.Searcher
	Documents int
	Chunks    int
	Skipped   []domain.FileError
}

// Processor runs the document pipeline: ingest, chunk, embed, index. Any
// stage failing aborts the run and produces no index, so a caller holding
// a previous index keeps serving it.
type Processor struct {
	ingestor Ingestor
	splitter Splitter
	builder  IndexBuilder
}

// NewProcessor creates a processor over the given pipeline stages.
func NewProcessor(ingestor Ingestor, splitter Splitter, builder IndexBuilder) *Processor {
	return &Processor{
		ingestor: ingestor,
		splitter: splitter,
		builder:  builder,
	}
}

// Process runs the pipeline over the uploaded files. Files with
// unsupported extensions are skipped and reported in the result; a batch
// where nothing could be read at all is an error.
func (p *Processor) Process(ctx context.Context, files []ingest.File) (*ProcessResult, error) {
	docs, skipped, err := p.ingestor.Ingest(ctx, files)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeIngestionFailure,
			"no text could be extracted from the uploaded files")
	}

	chunks := p.splitter.Split(docs)
	if len(chunks) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeIngestionFailure,
			"uploaded files contained no usable text")
	}

	searcher, err := p.builder.Build(ctx, chunks)
	if err != nil {
		return nil, err
	}

	log.Printf("processed upload: %d document(s), %d chunk(s), %d skipped", len(docs), len(chunks), len(skipped))

	return &ProcessResult{
		Searcher:  searcher,
		Documents: len(docs),
		Chunks:    len(chunks),
		Skipped:   skipped,
	}, nil
}
