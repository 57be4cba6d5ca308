package persist

import (
	"path/filepath"
	"testing"
)

func TestFilePersisterReopenReconstructsSequence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.jsonl")

	p, err := OpenFilePersister[testEvent](path, FsyncAlways, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, payload := range []string{"A", "B"} {
		if _, err := p.Publish(testEvent{Payload: payload}, nil); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	headUs := int64(0)
	hl := p.HeadAndLast()
	headUs = hl.Head + 50
	if err := p.UpdateHead(&headUs); err != nil {
		t.Fatalf("update head: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenFilePersister[testEvent](path, FsyncAlways, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if got := reopened.Size(); got != 2 {
		t.Fatalf("size after reopen = %d, want 2", got)
	}
	if reopened.CurrentHead() != headUs {
		t.Fatalf("head after reopen = %d, want %d", reopened.CurrentHead(), headUs)
	}
	var payloads []string
	reopened.Iterate(0, 0)(func(it Item[testEvent]) bool {
		payloads = append(payloads, it.Entry.Payload)
		return true
	})
	if len(payloads) != 2 || payloads[0] != "A" || payloads[1] != "B" {
		t.Fatalf("payloads after reopen = %v, want [A B]", payloads)
	}
}

func TestFilePersisterHeadSentinelDoesNotAppearAsEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.jsonl")
	p, err := OpenFilePersister[testEvent](path, FsyncAlways, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()
	if _, err := p.Publish(testEvent{Payload: "A"}, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	us := p.CurrentHead() + 1_000
	if err := p.UpdateHead(&us); err != nil {
		t.Fatalf("update head: %v", err)
	}
	if p.Size() != 1 {
		t.Fatalf("size = %d, want 1 (head-only advance must not count as an entry)", p.Size())
	}
}
