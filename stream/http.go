package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/cel-go/cel"

	"sherlock/persist"
	"sherlock/pkg/id"
	"sherlock/pkg/log"
)

func nowMicros() int64 { return time.Now().UnixMicro() }

// jsonDialect selects the wire encoding of delivered entries over HTTP.
type jsonDialect int

const (
	dialectDefault      jsonDialect = iota // {"index":..,"us":..,"entry":..}
	dialectMinimalistic                    // raw entry only
	dialectFSharp                          // {"Case":..,"Fields":[entry]}
)

func parseDialect(v string) jsonDialect {
	switch v {
	case "js":
		return dialectMinimalistic
	case "fs":
		return dialectFSharp
	default:
		return dialectDefault
	}
}

func encodeEntry[E any](dialect jsonDialect, idxts persist.IndexedTimestamp, entry E) ([]byte, error) {
	switch dialect {
	case dialectMinimalistic:
		b, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	case dialectFSharp:
		caseName := "Entry"
		if c, ok := any(entry).(Case); ok {
			caseName = c.CaseName()
		}
		b, err := json.Marshal(struct {
			Case   string `json:"Case"`
			Fields [1]E   `json:"Fields"`
		}{Case: caseName, Fields: [1]E{entry}})
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	default:
		b, err := json.Marshal(struct {
			Index uint64 `json:"index"`
			Us    int64  `json:"us"`
			Entry E      `json:"entry"`
		}{Index: idxts.Index, Us: idxts.Us, Entry: entry})
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	}
}

func encodeHeadAdvance(head int64) []byte {
	b, _ := json.Marshal(struct {
		Us   int64 `json:"us"`
		Head bool  `json:"head"`
	}{Us: head, Head: true})
	return append(b, '\n')
}

// httpSubscriber adapts a chunked HTTP response into Subscriber[E],
// grounded on the source's HTTP subscriber glue: each delivered entry and
// each head advance is written as one JSON line and flushed, and the feed
// ends as soon as the peer disconnects, the requested entry count (n=) has
// been delivered, or, with nowait, the entry that was last in the stream
// when delivery began has been handled.
type httpSubscriber[E any] struct {
	w        http.ResponseWriter
	flusher  http.Flusher
	r        *http.Request
	dialect  jsonDialect
	limit    int // 0 means unlimited
	nowait   bool
	celProg  cel.Program
	written  int
}

func (h *httpSubscriber[E]) peerGone() bool {
	select {
	case <-h.r.Context().Done():
		return true
	default:
		return false
	}
}

func (h *httpSubscriber[E]) OnEntry(entry E, idxts, last persist.IndexedTimestamp) Action {
	if h.peerGone() {
		return Done
	}
	if h.celProg != nil && !evalCEL(h.celProg, idxts, entry) {
		return h.afterEntry(idxts, last)
	}
	line, err := encodeEntry(h.dialect, idxts, entry)
	if err != nil {
		return Done
	}
	if _, err := h.w.Write(line); err != nil {
		return Done
	}
	h.flusher.Flush()
	h.written++
	if h.limit > 0 && h.written >= h.limit {
		return Done
	}
	return h.afterEntry(idxts, last)
}

// afterEntry ends a nowait feed once the entry that was last in the stream
// when this delivery round began has been handled.
func (h *httpSubscriber[E]) afterEntry(idxts, last persist.IndexedTimestamp) Action {
	if h.nowait && idxts.Index >= last.Index {
		return Done
	}
	return Continue
}

func (h *httpSubscriber[E]) OnNoMatch(persist.IndexedTimestamp) Action {
	if h.peerGone() {
		return Done
	}
	return Continue
}

func (h *httpSubscriber[E]) OnHeadAdvance(head int64) Action {
	if h.peerGone() {
		return Done
	}
	if _, err := h.w.Write(encodeHeadAdvance(head)); err != nil {
		return Done
	}
	h.flusher.Flush()
	return Continue
}

func (h *httpSubscriber[E]) OnTerminate() TerminateAction { return Terminate }

// ServeHTTP implements spec.md §4.6's query grammar. Parameters are
// evaluated in strict precedence order: terminate, method check,
// sizeonly, schema, then the start-selection group (tail, recent, since,
// i, in that priority) combined with n, nowait, json, and the
// supplemental cel filter.
func serveHTTP[E any](d *streamData[E], idGen *id.Generator, ns NamespaceName, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if subID := q.Get("terminate"); subID != "" {
		d.httpMu.Lock()
		sub, ok := d.httpSubs[subID]
		d.httpMu.Unlock()
		if !ok {
			http.Error(w, `{"error":"subscription_not_found"}`, http.StatusNotFound)
			return
		}
		sub.scope.AsyncTerminate()
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	if d.terminating.Load() {
		http.Error(w, `{"error":"stream_in_graceful_shutdown"}`, http.StatusServiceUnavailable)
		return
	}

	if _, ok := q["sizeonly"]; ok {
		size := persisterSize(d.persister)
		w.Header().Set("X-Current-Stream-Size", strconv.FormatUint(size, 10))
		if r.Method == http.MethodGet {
			fmt.Fprintf(w, "%d\n", size)
		}
		return
	}

	if _, ok := q["schema"]; ok {
		serveSchema(d.schema, ns, q.Get("format"), w)
		return
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	size := persisterSize(d.persister)
	beginIdx := resolveBeginIndex(d.persister, size, q)

	var limit int
	if n := q.Get("n"); n != "" {
		v, err := strconv.Atoi(n)
		if err != nil || v < 0 {
			http.Error(w, `{"error":"invalid_n"}`, http.StatusBadRequest)
			return
		}
		limit = v
		if v == 0 {
			// Resolved Open Question: n=0 means deliver nothing and close
			// immediately, without ever registering a subscription.
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	_, nowait := q["nowait"]
	if nowait && beginIdx >= size {
		w.WriteHeader(http.StatusOK)
		return
	}

	var celProg cel.Program
	if expr := q.Get("cel"); expr != "" {
		prog, err := compileCEL(expr)
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":"invalid_cel_expression","detail":%q}`, err.Error()), http.StatusBadRequest)
			return
		}
		celProg = prog
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming_unsupported"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	hsub := &httpSubscriber[E]{
		w:       w,
		flusher: flusher,
		r:       r,
		dialect: parseDialect(q.Get("json")),
		limit:   limit,
		nowait:  nowait,
		celProg: celProg,
	}

	subID := idGen.Next().String()
	httpLogger := d.logger.WithComponent("http")

	// subscribe and the registry insert must happen under the same
	// httpMu critical section: subscribe starts the worker goroutine
	// immediately, and its done-callback below takes httpMu to erase
	// this entry. Without the shared critical section a fast-completing
	// subscriber (n=, nowait, or an already-gone peer) can run that
	// erase before the insert below ever executes, leaking the entry
	// forever and starving Stream.Close's drain loop.
	d.httpMu.Lock()
	scope := subscribe[E](d, hsub, beginIdx, MatchAll, func() {
		d.httpMu.Lock()
		delete(d.httpSubs, subID)
		d.httpMu.Unlock()
		httpLogger.Debug("http subscription closed", log.Str("sub_id", subID))
	})
	d.httpSubs[subID] = &httpSubscription{scope: scope}
	d.httpMu.Unlock()
	httpLogger.Debug("http subscription registered", log.Str("sub_id", subID), log.Any("begin_index", beginIdx))

	scope.Wait()
}

func persisterSize[E any](p persist.Persister[E]) uint64 {
	hl := p.HeadAndLast()
	if hl.Last == nil {
		return 0
	}
	return hl.Last.Index + 1
}

// resolveBeginIndex applies the tail > recent > since > i precedence from
// spec.md §4.6: at most one of tail/recent/since contributes a begin
// index — whichever of the three is present, in that priority order — and
// if i is also present the effective begin index is the max of the two.
func resolveBeginIndex[E any](p persist.Persister[E], size uint64, q map[string][]string) uint64 {
	var begin uint64
	if v, ok := firstString(q, "tail"); ok {
		begin = tailBeginIndex(v, size)
	} else if v, ok := firstInt64(q, "recent"); ok {
		begin, _ = p.IndexRangeByTimestampRange(nowMicros()-v, 0)
	} else if v, ok := firstInt64(q, "since"); ok {
		begin, _ = p.IndexRangeByTimestampRange(v, 0)
	}

	if v, ok := firstInt(q, "i"); ok && v >= 0 {
		begin = maxU64(begin, uint64(v))
	}
	return begin
}

func tailBeginIndex(v string, size uint64) uint64 {
	if v == "" || v == "max" {
		return size
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return size
	}
	if n >= size {
		return 0
	}
	return size - n
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func firstString(q map[string][]string, key string) (string, bool) {
	v, ok := q[key]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

func firstInt(q map[string][]string, key string) (int, bool) {
	s, ok := firstString(q, key)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	return v, err == nil
}

func firstInt64(q map[string][]string, key string) (int64, bool) {
	s, ok := firstString(q, key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil
}

func serveSchema(schema SchemaDescriptor, ns NamespaceName, format string, w http.ResponseWriter) {
	switch format {
	case "":
		_ = json.NewEncoder(w).Encode(schema)
	case "simple":
		_ = json.NewEncoder(w).Encode(schema.Simple(ns))
	default:
		text, ok := schema.Language[format]
		if !ok {
			err := &SchemaFormatNotFoundError{Format: format}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(struct {
				Error                      string `json:"error"`
				UnsupportedFormatRequested string `json:"unsupported_format_requested"`
			}{Error: err.Error(), UnsupportedFormatRequested: format})
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(text))
	}
}
