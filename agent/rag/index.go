package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/mapping"
)

const indexName = "chunks.bleve"

var ErrIndexMissing = errors.New("document index is missing")

// Hit is a scored search result.
type Hit struct {
	Chunk
	Score float64 `json:"score"`
}

// Index is a BM25 lexical index over document chunks.
type Index struct {
	index bleve.Index
}

// NewMemIndex creates an index that lives only in memory.
func NewMemIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("rag: create in-memory index: %w", err)
	}
	return &Index{index: idx}, nil
}

// CreateIndex opens the index under dir, creating it when absent.
func CreateIndex(dir string) (*Index, error) {
	path := filepath.Join(dir, indexName)
	if _, err := os.Stat(path); err == nil {
		return OpenIndex(dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rag: create index dir: %w", err)
	}
	idx, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("rag: create index: %w", err)
	}
	return &Index{index: idx}, nil
}

// OpenIndex opens an existing index under dir.
func OpenIndex(dir string) (*Index, error) {
	path := filepath.Join(dir, indexName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (run ingest first)", ErrIndexMissing, path)
		}
		return nil, fmt.Errorf("rag: stat index: %w", err)
	}
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rag: open index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name

	source := bleve.NewTextFieldMapping()
	source.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("text", text)
	doc.AddFieldMappingsAt("source", source)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

// Add indexes chunks in a single batch. Chunks with an existing id replace
// the stored one.
func (i *Index) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := i.index.NewBatch()
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(c.ID, map[string]any{"text": c.Text, "source": c.Source}); err != nil {
			return fmt.Errorf("rag: batch chunk %s: %w", c.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("rag: index batch: %w", err)
	}
	return nil
}

// Search returns up to k chunks ranked by relevance to query.
func (i *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 4
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), k, 0, false)
	req.Fields = []string{"text", "source"}

	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		text, _ := h.Fields["text"].(string)
		source, _ := h.Fields["source"].(string)
		hits = append(hits, Hit{
			Chunk: Chunk{ID: h.ID, Source: source, Text: text},
			Score: h.Score,
		})
	}
	return hits, nil
}

func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

func (i *Index) Close() error {
	return i.index.Close()
}
