package domain

import (
	"fmt"
	"time"
)

// Metadata keys written by the document loaders.
const (
	MetaSourceType = "source_type"
	MetaSourceID   = "source_id"
	MetaCategory   = "category"
	MetaTitle      = "title"
	MetaLanguage   = "language"
	MetaFilename   = "filename"

	PayloadText    = "text"
	PayloadChunkID = "chunk_id"
)

type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Chunk is the persisted chunk record, one JSON object per line.
type Chunk struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%03d", documentID, ordinal)
}

// Payload merges the chunk metadata with its text and id.
func (c Chunk) Payload() map[string]any {
	payload := make(map[string]any, len(c.Metadata)+2)
	for k, v := range c.Metadata {
		payload[k] = v
	}
	payload[PayloadText] = c.Text
	payload[PayloadChunkID] = c.ID
	return payload
}

type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// RecordError describes a persisted record that could not be decoded.
type RecordError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type ChunkFailure struct {
	ChunkID string `json:"chunk_id"`
	Reason  string `json:"reason"`
}

type IndexReport struct {
	Total    int            `json:"total"`
	Indexed  int            `json:"indexed"`
	Failures []ChunkFailure `json:"failures,omitempty"`
}

func MetadataString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func CloneMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// IngestJob references an uploaded chunk file awaiting indexing.
type IngestJob struct {
	ID         string    `json:"id"`
	StorageKey string    `json:"storage_key"`
	Filename   string    `json:"filename"`
	CreatedAt  time.Time `json:"created_at"`
}
