package stream

import (
	"sync"
	"testing"
	"time"

	"sherlock/persist"
)

type testMsg struct {
	Text string
}

func (testMsg) CaseName() string { return "testMsg" }

// recordingSubscriber accumulates delivered entries and head advances,
// and signals done once it has seen wantEntries of them.
type recordingSubscriber struct {
	mu          sync.Mutex
	entries     []testMsg
	heads       []int64
	terminated  bool
	wantEntries int
	got         chan struct{}
}

func newRecordingSubscriber(want int) *recordingSubscriber {
	return &recordingSubscriber{wantEntries: want, got: make(chan struct{}, 1)}
}

func (r *recordingSubscriber) OnEntry(entry testMsg, idxts, last persist.IndexedTimestamp) Action {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	n := len(r.entries)
	r.mu.Unlock()
	if n >= r.wantEntries {
		select {
		case r.got <- struct{}{}:
		default:
		}
	}
	return Continue
}

func (r *recordingSubscriber) OnNoMatch(persist.IndexedTimestamp) Action { return Continue }

func (r *recordingSubscriber) OnHeadAdvance(head int64) Action {
	r.mu.Lock()
	r.heads = append(r.heads, head)
	r.mu.Unlock()
	return Continue
}

func (r *recordingSubscriber) OnTerminate() TerminateAction {
	r.mu.Lock()
	r.terminated = true
	r.mu.Unlock()
	return Terminate
}

func (r *recordingSubscriber) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.got:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not observe expected entries in time")
	}
}

func newTestStream() *Stream[testMsg] {
	return New[testMsg](persist.NewMemoryPersister[testMsg](), NamespaceName{Namespace: "default", EntryName: "testMsg"})
}

func TestPublishAndSubscribeFromZero(t *testing.T) {
	s := newTestStream()
	defer s.Close()

	sub := newRecordingSubscriber(3)
	scope, err := s.Subscribe(sub, 0, nil, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer scope.Close()

	for _, text := range []string{"a", "b", "c"} {
		if _, err := s.Publish(testMsg{Text: text}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	sub.wait(t)
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.entries) < 3 {
		t.Fatalf("expected at least 3 entries, got %d", len(sub.entries))
	}
	if sub.entries[0].Text != "a" || sub.entries[1].Text != "b" || sub.entries[2].Text != "c" {
		t.Fatalf("entries out of order: %+v", sub.entries)
	}
}

func TestSubscribeTailSkipsBacklog(t *testing.T) {
	s := newTestStream()
	defer s.Close()

	for _, text := range []string{"a", "b"} {
		if _, err := s.Publish(testMsg{Text: text}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	size := s.Persister().Size()
	sub := newRecordingSubscriber(1)
	scope, err := s.Subscribe(sub, size, nil, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer scope.Close()

	if _, err := s.Publish(testMsg{Text: "c"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	sub.wait(t)
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.entries) != 1 || sub.entries[0].Text != "c" {
		t.Fatalf("expected only the post-subscribe entry, got %+v", sub.entries)
	}
}

func TestSchemaSimple(t *testing.T) {
	s := newTestStream()
	defer s.Close()

	simple := s.Schema().Simple(NamespaceName{Namespace: "default", EntryName: "testMsg"})
	if simple.EntryName != "testMsg" {
		t.Fatalf("expected entry_name testMsg, got %q", simple.EntryName)
	}
	if simple.TypeID == 0 {
		t.Fatalf("expected a non-zero type id")
	}
}

func TestSubscriberScopeTerminate(t *testing.T) {
	s := newTestStream()
	defer s.Close()

	sub := newRecordingSubscriber(1)
	scope, err := s.Subscribe(sub, 0, nil, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	scope.Close()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.terminated {
		t.Fatal("expected OnTerminate to have been called")
	}
}

func TestPublisherHandoff(t *testing.T) {
	s := newTestStream()
	defer s.Close()

	p, err := s.MovePublisherTo()
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := s.Publish(testMsg{Text: "should fail"}); err != ErrPublishToStreamWithReleasedPublisher {
		t.Fatalf("expected ErrPublishToStreamWithReleasedPublisher, got %v", err)
	}
	if _, err := p.Publish(testMsg{Text: "via handle"}); err != nil {
		t.Fatalf("publish via moved handle: %v", err)
	}

	if _, err := s.MovePublisherTo(); err != ErrPublisherAlreadyReleased {
		t.Fatalf("expected ErrPublisherAlreadyReleased, got %v", err)
	}

	if err := s.AcquirePublisher(p); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := s.Publish(testMsg{Text: "after reacquire"}); err != nil {
		t.Fatalf("publish after reacquire: %v", err)
	}
	if s.Persister().Size() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Persister().Size())
	}
}

func TestMatchCasesFilter(t *testing.T) {
	filter := MatchCases(testMsg{})
	if !filter(testMsg{Text: "x"}) {
		t.Fatal("expected testMsg to match its own case filter")
	}
	if filter("not a case") {
		t.Fatal("expected non-Case value to never match")
	}
}
