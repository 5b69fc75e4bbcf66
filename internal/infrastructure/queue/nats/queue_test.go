package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

func TestEncodeDecodeJob(t *testing.T) {
	job := domain.IngestJob{
		ID:         "job-1",
		StorageKey: "job-1_chunks.jsonl",
		Filename:   "chunks.jsonl",
		CreatedAt:  time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
	data, err := EncodeJob(job)
	if err != nil {
		t.Fatalf("EncodeJob() error = %v", err)
	}
	got, err := DecodeJob(data)
	if err != nil {
		t.Fatalf("DecodeJob() error = %v", err)
	}
	if got.ID != job.ID || got.StorageKey != job.StorageKey || got.Filename != job.Filename || !got.CreatedAt.Equal(job.CreatedAt) {
		t.Fatalf("expected %+v, got %+v", job, got)
	}
}

func TestDecodeJobRejectsLegacyPayload(t *testing.T) {
	if _, err := DecodeJob([]byte("doc-123")); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := DecodeJob([]byte(`{"id":"job"}`)); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing storage key, got %v", err)
	}
}

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
		record    bool
	}{
		{context.Canceled, false, false},
		{fmt.Errorf("publish: %w", nats.ErrNoServers), true, true},
		{nats.ErrConnectionClosed, true, true},
		{errors.New("bad subject"), false, true},
	}
	for _, tc := range cases {
		got := classifyNATSError(tc.err)
		if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
			t.Fatalf("classifyNATSError(%v) = %+v", tc.err, got)
		}
	}
}
