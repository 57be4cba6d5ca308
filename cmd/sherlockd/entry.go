package main

// Entry is the demo entry type sherlockd publishes and tails: a single
// text payload, the same shape the source's generate_stream_data.cc
// benchmark publishes.
type Entry struct {
	Text string `json:"text"`
}

// CaseName implements stream.Case so MatchCases can filter on it.
func (Entry) CaseName() string { return "Entry" }
