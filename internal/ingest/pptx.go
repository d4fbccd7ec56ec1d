package ingest

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dirchat/dirchat/internal/domain"
)

// PptxLoader extracts text from PowerPoint slides, one document per slide.
type PptxLoader struct{}

var slideNamePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func (l *PptxLoader) Load(_ context.Context, path string) ([]domain.Document, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pptx archive: %w", err)
	}
	defer reader.Close()

	type slide struct {
		number int
		file   *zip.File
	}
	var slides []slide
	for _, file := range reader.File {
		m := slideNamePattern.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slide{number: n, file: file})
	}
	sort.Slice(slides, func(a, b int) bool { return slides[a].number < slides[b].number })

	var docs []domain.Document
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open slide %d: %w", s.number, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read slide %d: %w", s.number, err)
		}

		text, err := extractSlideText(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse slide %d: %w", s.number, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, domain.Document{
			Content: text,
			Page:    domain.PageOf(s.number),
		})
	}
	return docs, nil
}

// extractSlideText walks the slide XML token stream and collects the text
// runs (<a:t> elements), one line per run.
func extractSlideText(raw []byte) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(string(raw)))

	var (
		lines  []string
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText {
				if s := string(t); s != "" {
					lines = append(lines, s)
				}
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
