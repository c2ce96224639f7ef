package rag

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
)

// IngestStats summarises one ingest run.
type IngestStats struct {
	Files   int `json:"files"`
	Skipped int `json:"skipped"`
	Chunks  int `json:"chunks"`
}

// Ingester reads documents from disk and feeds their chunks to an Index.
type Ingester struct {
	index   *Index
	size    int
	overlap int
	policy  *bluemonday.Policy
}

func NewIngester(index *Index, size, overlap int) *Ingester {
	return &Ingester{
		index:   index,
		size:    size,
		overlap: overlap,
		policy:  bluemonday.StrictPolicy(),
	}
}

// IngestDir indexes every .txt, .md and .html file below root.
func (in *Ingester) IngestDir(ctx context.Context, root string) (IngestStats, error) {
	var stats IngestStats
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		text, ok, err := in.readDocument(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skip unreadable document")
			stats.Skipped++
			return nil
		}
		if !ok || strings.TrimSpace(text) == "" {
			stats.Skipped++
			return nil
		}

		source, relErr := filepath.Rel(root, path)
		if relErr != nil {
			source = path
		}
		n, err := in.IngestText(ctx, filepath.ToSlash(source), text)
		if err != nil {
			return err
		}
		stats.Files++
		stats.Chunks += n
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("rag: ingest %s: %w", root, err)
	}
	return stats, nil
}

// IngestText chunks text and indexes it under source. Re-ingesting a source
// overwrites chunks with the same position.
func (in *Ingester) IngestText(ctx context.Context, source, text string) (int, error) {
	windows := Split(text, in.size, in.overlap)
	chunks := make([]Chunk, 0, len(windows))
	for i, w := range windows {
		chunks = append(chunks, Chunk{
			ID:     fmt.Sprintf("%s#%04d", source, i),
			Source: source,
			Text:   w,
		})
	}
	if err := in.index.Add(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (in *Ingester) readDocument(path string) (string, bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", false, err
		}
		return string(raw), true, nil
	case ".html", ".htm":
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", false, err
		}
		text, err := in.extractHTML(raw, path)
		return text, err == nil, err
	default:
		return "", false, nil
	}
}

func (in *Ingester) extractHTML(raw []byte, path string) (string, error) {
	pageURL := &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	article, err := readability.FromReader(bytes.NewReader(raw), pageURL)
	if err != nil {
		return "", fmt.Errorf("parse article: %w", err)
	}
	body := article.TextContent
	if strings.TrimSpace(body) == "" {
		body = string(raw)
	}
	clean := html.UnescapeString(in.policy.Sanitize(body))
	if title := strings.TrimSpace(article.Title); title != "" {
		clean = title + "\n\n" + clean
	}
	return clean, nil
}
