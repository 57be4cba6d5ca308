package stream

import (
	"encoding/json"
	"time"

	"github.com/google/cel-go/cel"

	"sherlock/persist"
)

// compileCEL builds a CEL program for the supplemental HTTP cel=<expr>
// query parameter (SPEC_FULL.md's domain-stack addition). The expression
// environment exposes index, us, now_us (all ints) and entry (the entry,
// JSON round-tripped to a dynamic value), grounded on the teacher's
// internal/services/streams/celfilter.go variable set.
func compileCEL(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("index", cel.IntType),
		cel.Variable("us", cel.IntType),
		cel.Variable("now_us", cel.IntType),
		cel.Variable("entry", cel.DynType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	return env.Program(ast)
}

func evalCEL[E any](prog cel.Program, idxts persist.IndexedTimestamp, entry E) bool {
	var asAny any
	if b, err := json.Marshal(entry); err == nil {
		_ = json.Unmarshal(b, &asAny)
	}
	out, _, err := prog.Eval(map[string]any{
		"index":  int64(idxts.Index),
		"us":     idxts.Us,
		"now_us": time.Now().UnixMicro(),
		"entry":  asAny,
	})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}
