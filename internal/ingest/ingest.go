// Package ingest converts uploaded files into documents. Files are staged
// to a temp directory first because the format loaders need real paths.
package ingest

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dirchat/dirchat/internal/domain"
)

// File is one uploaded file: its original name and raw bytes.
type File struct {
	Name string
	Data []byte
}

// Loader extracts documents from a staged file. One implementation exists
// per supported extension.
type Loader interface {
	Load(ctx context.Context, path string) ([]domain.Document, error)
}

// Adapter stages uploads and dispatches them to format loaders by
// extension. Unknown extensions are rejected before any loader runs.
type Adapter struct {
	loaders map[string]Loader
}

// NewAdapter creates an adapter with the default loaders for pdf, docx,
// and pptx.
func NewAdapter() *Adapter {
	return &Adapter{loaders: map[string]Loader{
		".pdf":  &PDFLoader{},
		".docx": &DocxLoader{},
		".pptx": &PptxLoader{},
	}}
}

// NewAdapterWithLoaders creates an adapter over an explicit loader registry
// (for testing).
func NewAdapterWithLoaders(loaders map[string]Loader) *Adapter {
	return &Adapter{loaders: loaders}
}

// Supported reports whether the file name's extension has a loader.
func (a *Adapter) Supported(name string) bool {
	_, ok := a.loaders[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Ingest stages each file, loads it, and returns the extracted documents in
// upload order. Files with unsupported extensions are skipped and reported
// in the second return value so the rest of the batch still processes; a
// loader-level parse or I/O failure aborts the whole batch. The staging
// directory is removed before returning.
func (a *Adapter) Ingest(ctx context.Context, files []File) ([]domain.Document, []domain.FileError, error) {
	if len(files) == 0 {
		return nil, nil, domain.ErrNoFilesUploaded
	}

	stagingDir, err := os.MkdirTemp("", "dirchat-ingest-")
	if err != nil {
		return nil, nil, domain.NewIngestionFailure("staging", err)
	}
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			log.Printf("failed to clean staging dir %s: %v", stagingDir, err)
		}
	}()

	var (
		docs    []domain.Document
		skipped []domain.FileError
	)

	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Name))
		loader, ok := a.loaders[ext]
		if !ok {
			log.Printf("skipping %s: no loader for %q", f.Name, ext)
			skipped = append(skipped, domain.FileError{
				Name: f.Name,
				Err:  domain.NewUnsupportedFormat(f.Name, ext),
			})
			continue
		}

		staged := filepath.Join(stagingDir, filepath.Base(f.Name))
		if err := os.WriteFile(staged, f.Data, 0o600); err != nil {
			return nil, nil, domain.NewIngestionFailure(f.Name, err)
		}

		loaded, err := loader.Load(ctx, staged)
		if err != nil {
			return nil, nil, domain.NewIngestionFailure(f.Name, err)
		}

		for _, d := range loaded {
			d.Source = f.Name
			docs = append(docs, d)
		}
		log.Printf("ingested %s: %d document(s)", f.Name, len(loaded))
	}

	return docs, skipped, nil
}
