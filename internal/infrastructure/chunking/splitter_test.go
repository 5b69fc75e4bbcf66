package chunking

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

func TestNewSplitterRejectsInvalidParameters(t *testing.T) {
	cases := []struct{ size, overlap int }{
		{0, 0},
		{-5, 0},
		{10, -1},
		{10, 10},
		{10, 15},
	}
	for _, tc := range cases {
		_, err := NewSplitter(tc.size, tc.overlap)
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("NewSplitter(%d, %d) error = %v, want configuration error", tc.size, tc.overlap, err)
		}
	}
}

func TestSplitEmptyInput(t *testing.T) {
	s, err := NewSplitter(10, 2)
	if err != nil {
		t.Fatalf("NewSplitter() error = %v", err)
	}
	for _, input := range []string{"", "   ", "\n\t\n"} {
		got := s.Split(input)
		if got == nil || len(got) != 0 {
			t.Fatalf("Split(%q) = %#v, want empty slice", input, got)
		}
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	s, _ := NewSplitter(700, 100)
	got := s.Split("  reset your vpn token  ")
	if len(got) != 1 || got[0] != "reset your vpn token" {
		t.Fatalf("unexpected chunks: %#v", got)
	}
}

func TestSplitWindowsOverlap(t *testing.T) {
	s, _ := NewSplitter(4, 1)
	got := s.Split("abcdefghij")
	want := []string{"abcd", "defg", "ghij"}
	if len(got) != len(want) {
		t.Fatalf("Split() = %#v, want %#v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitProperties(t *testing.T) {
	s, _ := NewSplitter(50, 10)
	text := strings.Repeat("Восстановление пароля через портал самообслуживания. ", 20)

	first := s.Split(text)
	second := s.Split(text)
	if len(first) != len(second) {
		t.Fatalf("split is not deterministic")
	}
	for i, chunk := range first {
		if chunk != second[i] {
			t.Fatalf("split is not deterministic at %d", i)
		}
		if chunk == "" {
			t.Fatalf("empty chunk at %d", i)
		}
		if chunk != strings.TrimSpace(chunk) {
			t.Fatalf("chunk %d is not trimmed", i)
		}
		if n := utf8.RuneCountInString(chunk); n > 50 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(text), first[len(first)-1]) {
		t.Fatalf("last chunk does not reach the end of text")
	}
}

func TestBuildChunksAssignsIDsAndMetadata(t *testing.T) {
	s, _ := NewSplitter(4, 0)
	docs := []domain.Document{
		{ID: "faq_001", Text: "abcdefgh", Metadata: map[string]any{"category": "vpn", "source_id": "faq_001"}},
		{ID: "empty", Text: "   ", Metadata: map[string]any{}},
	}

	chunks := BuildChunks(docs, s)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].ID != "faq_001_chunk_000" || chunks[1].ID != "faq_001_chunk_001" {
		t.Fatalf("unexpected ids: %s, %s", chunks[0].ID, chunks[1].ID)
	}
	chunks[0].Metadata["category"] = "changed"
	if chunks[1].Metadata["category"] != "vpn" || docs[0].Metadata["category"] != "vpn" {
		t.Fatalf("chunk metadata must be an independent copy")
	}
}

func TestSplitCoversTrimmedText(t *testing.T) {
	s, err := NewSplitter(7, 3)
	if err != nil {
		t.Fatalf("NewSplitter() error = %v", err)
	}
	text := "принтерwifiпочтаvpnпароль"

	chunks := s.Split("  " + text + "\n")
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %q", chunks)
	}

	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for _, chunk := range chunks[1:] {
		runes := []rune(chunk)
		if len(runes) <= s.Overlap {
			t.Fatalf("chunk %q is not longer than the overlap", chunk)
		}
		rebuilt.WriteString(string(runes[s.Overlap:]))
	}
	if rebuilt.String() != text {
		t.Fatalf("chunks do not cover the text:\n got %q\nwant %q", rebuilt.String(), text)
	}
}
