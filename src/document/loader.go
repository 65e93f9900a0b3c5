// Package document turns the files of a documents directory into chunker documents.
package document

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"

	"coursematch/src/core/chunker"
	"coursematch/src/fsutil"
	"coursematch/src/log"
)

// PageSeparator joins the pages of a PDF into one text.
const PageSeparator = "\n\n"

// Loader reads .pdf, .txt and .md files. Anything else is skipped.
type Loader struct {
	fs fsutil.FileStore
}

func NewLoader(fs fsutil.FileStore) *Loader {
	if fs == nil {
		fs = fsutil.NewLocalFileStore()
	}
	return &Loader{fs: fs}
}

// Supported reports whether path has a loadable extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// LoadDir loads every supported file of dir in name order, one Document per file.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]chunker.Document, error) {
	files, err := l.fs.ListFiles(dir)
	if err != nil {
		return nil, err
	}

	docs := make([]chunker.Document, 0, len(files))
	for _, path := range files {
		if !Supported(path) {
			log.Debug("skipping unsupported file", "path", path)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := l.LoadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadFile loads one file. Its SourceID is the path.
func (l *Loader) LoadFile(ctx context.Context, path string) (chunker.Document, error) {
	data, err := l.fs.ReadFile(path)
	if err != nil {
		return chunker.Document{}, fmt.Errorf("read %s: %w", path, err)
	}

	var pages []schema.Document
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		pages, err = documentloaders.NewPDF(bytes.NewReader(data), int64(len(data))).Load(ctx)
	case ".txt", ".md":
		pages, err = documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
	default:
		return chunker.Document{}, fmt.Errorf("unsupported document type %q", ext)
	}
	if err != nil {
		return chunker.Document{}, fmt.Errorf("load %s: %w", path, err)
	}

	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		texts = append(texts, p.PageContent)
	}
	return chunker.Document{
		SourceID: path,
		Text:     strings.Join(texts, PageSeparator),
		Metadata: map[string]string{
			"source": filepath.Base(path),
			"type":   strings.TrimPrefix(ext, "."),
			"pages":  fmt.Sprint(len(pages)),
		},
	}, nil
}
