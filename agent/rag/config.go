package rag

// Config configures the local document index.
type Config struct {
	IndexDir     string `envconfig:"INDEX_DIR" default:"data/index"`
	DocsDir      string `envconfig:"DOCS_DIR" default:"data/docs"`
	TopK         int    `envconfig:"TOP_K" default:"4"`
	ChunkSize    int    `envconfig:"CHUNK_SIZE" default:"500"`
	ChunkOverlap int    `envconfig:"CHUNK_OVERLAP" default:"100"`
}
