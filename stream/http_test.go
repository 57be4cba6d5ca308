package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sherlock/persist"
)

func newTestHTTPStream() *Stream[testMsg] {
	return New[testMsg](persist.NewMemoryPersister[testMsg](), NamespaceName{Namespace: "default", EntryName: "testMsg"})
}

func TestServeHTTPDeliversBacklogThenCloses(t *testing.T) {
	s := newTestHTTPStream()
	defer s.Close()

	for _, text := range []string{"a", "b", "c"} {
		if _, err := s.Publish(testMsg{Text: text}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?n=3&nowait")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	var texts []string
	for scanner.Scan() {
		var line struct {
			Index uint64  `json:"index"`
			Us    int64   `json:"us"`
			Entry testMsg `json:"entry"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("unmarshal %q: %v", scanner.Text(), err)
		}
		texts = append(texts, line.Entry.Text)
	}
	if len(texts) != 3 {
		t.Fatalf("expected 3 lines, got %d: %v", len(texts), texts)
	}
	if texts[0] != "a" || texts[1] != "b" || texts[2] != "c" {
		t.Fatalf("entries out of order: %v", texts)
	}

	// The fast-completing subscriber's done-callback must not erase the
	// registry entry before (or race with) its own insert: once the
	// response is fully read the registry must end up empty, and Close
	// must not spin forever waiting for a leaked entry to drain.
	deadline := time.Now().Add(time.Second)
	for {
		s.data.httpMu.Lock()
		n := len(s.data.httpSubs)
		s.data.httpMu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("httpSubs did not drain, still has %d entries", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	closeDone := make(chan struct{})
	go func() {
		s.Close()
		close(closeDone)
	}()
	select {
	case <-closeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return; httpSubs registry leaked an entry")
	}
}

func TestServeHTTPNZeroClosesImmediately(t *testing.T) {
	s := newTestHTTPStream()
	defer s.Close()
	if _, err := s.Publish(testMsg{Text: "a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer srv.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(srv.URL + "?n=0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	buf := make([]byte, 1)
	if n, err := resp.Body.Read(buf); n != 0 && err == nil {
		t.Fatalf("expected an empty body for n=0, read %d bytes", n)
	}
}

func TestServeHTTPSizeOnly(t *testing.T) {
	s := newTestHTTPStream()
	defer s.Close()
	for _, text := range []string{"a", "b"} {
		if _, err := s.Publish(testMsg{Text: text}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?sizeonly")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("X-Current-Stream-Size") != "2" {
		t.Fatalf("expected header 2, got %q", resp.Header.Get("X-Current-Stream-Size"))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "2\n" {
		t.Fatalf("expected body %q, got %q", "2\n", string(body))
	}
}

func TestServeHTTPSchemaSimple(t *testing.T) {
	s := newTestHTTPStream()
	defer s.Close()

	srv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?schema&format=simple")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var simple SimpleSchema
	if err := json.NewDecoder(resp.Body).Decode(&simple); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if simple.EntryName != "testMsg" {
		t.Fatalf("expected entry_name testMsg, got %q", simple.EntryName)
	}
}

func TestServeHTTPUnsupportedSchemaFormat(t *testing.T) {
	s := newTestHTTPStream()
	defer s.Close()

	srv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?schema&format=bogus")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var body struct {
		UnsupportedFormatRequested string `json:"unsupported_format_requested"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.UnsupportedFormatRequested != "bogus" {
		t.Fatalf("expected unsupported_format_requested=bogus, got %q", body.UnsupportedFormatRequested)
	}
}

func TestServeHTTPTerminate(t *testing.T) {
	s := newTestHTTPStream()
	defer s.Close()

	srv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer srv.Close()

	client := &http.Client{Timeout: 3 * time.Second}
	go func() {
		resp, err := client.Get(srv.URL)
		if err == nil {
			resp.Body.Close()
		}
	}()

	var subID string
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.data.httpMu.Lock()
		for id := range s.data.httpSubs {
			subID = id
		}
		s.data.httpMu.Unlock()
		if subID != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if subID == "" {
		t.Fatal("expected a live HTTP subscription to register")
	}

	resp, err := http.Get(srv.URL + "?terminate=" + subID)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestServeHTTPTerminateUnknownID(t *testing.T) {
	s := newTestHTTPStream()
	defer s.Close()

	srv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?terminate=does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
