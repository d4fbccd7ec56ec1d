package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dirchat/dirchat/internal/domain"
	"github.com/dirchat/dirchat/internal/index"
	"github.com/dirchat/dirchat/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) Ingest(ctx context.Context, files []ingest.File) ([]domain.Document, []domain.FileError, error) {
	args := m.Called(ctx, files)
	var docs []domain.Document
	if args.Get(0) != nil {
		docs = args.Get(0).([]domain.Document)
	}
	var skipped []domain.FileError
	if args.Get(1) != nil {
		skipped = args.Get(1).([]domain.FileError)
	}
	return docs, skipped, args.Error(2)
}

type MockSplitter struct {
	mock.Mock
}

func (m *MockSplitter) Split(docs []domain.Document) []domain.Chunk {
	args := m.Called(docs)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.Chunk)
}

type MockIndexBuilder struct {
	mock.Mock
}

func (m *MockIndexBuilder) Build(ctx context.Context, chunks []domain.Chunk) (index.Searcher, error) {
	args := m.Called(ctx, chunks)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(index.Searcher), args.Error(1)
}

func TestProcessor_Process(t *testing.T) {
	files := []ingest.File{{Name: "a.pdf"}, {Name: "b.txt"}}
	docs := []domain.Document{{Content: "text", Source: "a.pdf"}}
	skipped := []domain.FileError{{Name: "b.txt", Err: domain.NewUnsupportedFormat("b.txt", ".txt")}}
	chunks := []domain.Chunk{{Content: "text", Source: "a.pdf"}, {Content: "more", Source: "a.pdf"}}

	ingestor := new(MockIngestor)
	ingestor.On("Ingest", mock.Anything, files).Return(docs, skipped, nil)

	splitter := new(MockSplitter)
	splitter.On("Split", docs).Return(chunks)

	searcher := new(MockSearcher)
	builder := new(MockIndexBuilder)
	builder.On("Build", mock.Anything, chunks).Return(searcher, nil)

	p := NewProcessor(ingestor, splitter, builder)
	result, err := p.Process(context.Background(), files)
	require.NoError(t, err)

	assert.Same(t, index.Searcher(searcher), result.Searcher)
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 2, result.Chunks)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "b.txt", result.Skipped[0].Name)
}

func TestProcessor_Process_IngestErrorAborts(t *testing.T) {
	ingestor := new(MockIngestor)
	ingestor.On("Ingest", mock.Anything, mock.Anything).
		Return(nil, nil, domain.NewIngestionFailure("a.pdf", errors.New("corrupt")))

	splitter := new(MockSplitter)
	builder := new(MockIndexBuilder)

	p := NewProcessor(ingestor, splitter, builder)
	result, err := p.Process(context.Background(), []ingest.File{{Name: "a.pdf"}})

	assert.Nil(t, result)
	var de *domain.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, domain.ErrCodeIngestionFailure, de.Code)
	builder.AssertNotCalled(t, "Build", mock.Anything, mock.Anything)
}

func TestProcessor_Process_NothingReadable(t *testing.T) {
	ingestor := new(MockIngestor)
	ingestor.On("Ingest", mock.Anything, mock.Anything).
		Return(nil, []domain.FileError{{Name: "a.txt", Err: domain.NewUnsupportedFormat("a.txt", ".txt")}}, nil)

	p := NewProcessor(ingestor, new(MockSplitter), new(MockIndexBuilder))
	result, err := p.Process(context.Background(), []ingest.File{{Name: "a.txt"}})

	assert.Nil(t, result)
	var de *domain.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, domain.ErrCodeIngestionFailure, de.Code)
}

func TestProcessor_Process_BuildErrorAborts(t *testing.T) {
	docs := []domain.Document{{Content: "text"}}
	chunks := []domain.Chunk{{Content: "text"}}

	ingestor := new(MockIngestor)
	ingestor.On("Ingest", mock.Anything, mock.Anything).Return(docs, nil, nil)

	splitter := new(MockSplitter)
	splitter.On("Split", docs).Return(chunks)

	builder := new(MockIndexBuilder)
	builder.On("Build", mock.Anything, chunks).
		Return(nil, domain.NewEmbeddingFailure(errors.New("provider down")))

	p := NewProcessor(ingestor, splitter, builder)
	result, err := p.Process(context.Background(), []ingest.File{{Name: "a.pdf"}})

	assert.Nil(t, result)
	var de *domain.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, domain.ErrCodeEmbeddingFailure, de.Code)
}
