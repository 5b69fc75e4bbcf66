package chunking

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
	"github.com/kirillkom/it-support-rag/internal/core/ports"
)

// maxRecordBytes caps a single JSONL line.
const maxRecordBytes = 4 << 20

// BuildChunks splits every document and assigns ids "<doc>_chunk_NNN".
func BuildChunks(docs []domain.Document, chunker ports.Chunker) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(docs))
	for _, doc := range docs {
		for idx, text := range chunker.Split(doc.Text) {
			out = append(out, domain.Chunk{
				ID:       domain.ChunkID(doc.ID, idx),
				Text:     text,
				Metadata: domain.CloneMetadata(doc.Metadata),
			})
		}
	}
	return out
}

func WriteJSONL(w io.Writer, chunks []domain.Chunk) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, chunk := range chunks {
		if chunk.Metadata == nil {
			chunk.Metadata = map[string]any{}
		}
		if err := enc.Encode(chunk); err != nil {
			return fmt.Errorf("encode chunk %s: %w", chunk.ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush chunks: %w", err)
	}
	return nil
}

// ReadJSONL decodes one chunk per line. Blank lines are skipped; malformed
// and oversized lines are reported instead of aborting the read.
func ReadJSONL(r io.Reader) ([]domain.Chunk, []domain.RecordError, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		chunks  []domain.Chunk
		invalid []domain.RecordError
		line    int
	)
	for {
		raw, tooLong, err := readRecord(br, maxRecordBytes)
		if err != nil && !errors.Is(err, io.EOF) {
			return chunks, invalid, fmt.Errorf("read chunks: %w", err)
		}
		if errors.Is(err, io.EOF) && len(raw) == 0 && !tooLong {
			break
		}
		line++

		switch {
		case tooLong:
			invalid = append(invalid, domain.RecordError{
				Line:   line,
				Reason: fmt.Sprintf("record exceeds %d MiB", maxRecordBytes>>20),
			})
		default:
			if chunk, reason, ok := decodeRecord(raw); ok {
				chunks = append(chunks, chunk)
			} else if reason != "" {
				invalid = append(invalid, domain.RecordError{Line: line, Reason: reason})
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}
	return chunks, invalid, nil
}

// readRecord returns one line without its terminator. Lines longer than limit
// are drained and reported as tooLong with no content.
func readRecord(br *bufio.Reader, limit int) ([]byte, bool, error) {
	var (
		buf     []byte
		seen    int
		tooLong bool
	)
	for {
		frag, err := br.ReadSlice('\n')
		seen += len(frag)
		if !tooLong {
			if seen > limit+1 {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, frag...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		buf = bytes.TrimRight(buf, "\r\n")
		if !tooLong && len(buf) > limit {
			tooLong, buf = true, nil
		}
		return buf, tooLong, err
	}
}

// decodeRecord reports ok=false with an empty reason for blank lines.
func decodeRecord(raw []byte) (domain.Chunk, string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return domain.Chunk{}, "", false
	}
	var chunk domain.Chunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return domain.Chunk{}, err.Error(), false
	}
	if strings.TrimSpace(chunk.ID) == "" {
		return domain.Chunk{}, "missing id", false
	}
	if chunk.Metadata == nil {
		chunk.Metadata = map[string]any{}
	}
	return chunk, "", true
}

// JSONLReader adapts ReadJSONL to ports.ChunkReader.
type JSONLReader struct{}

func (JSONLReader) ReadChunks(r io.Reader) ([]domain.Chunk, []domain.RecordError, error) {
	return ReadJSONL(r)
}
