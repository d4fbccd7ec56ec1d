package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/dirchat/dirchat/internal/domain"
	"github.com/gen2brain/go-fitz"
)

// PDFLoader extracts text from PDF files, one document per page.
type PDFLoader struct{}

func (l *PDFLoader) Load(_ context.Context, path string) ([]domain.Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var docs []domain.Document
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i+1, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, domain.Document{
			Content: text,
			Page:    domain.PageOf(i + 1),
		})
	}
	return docs, nil
}
