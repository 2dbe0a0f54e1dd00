package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/odatamongo/internal/adapter"
	"github.com/roach88/odatamongo/internal/model"
	"github.com/roach88/odatamongo/internal/objectid"
	"github.com/roach88/odatamongo/internal/testutil"
)

// ErrInjected is the error a step's fail op returns.
var ErrInjected = errors.New("injected store failure")

// Harness executes one scenario against a fresh in-memory store.
//
// Steps reach the adapter the way protocol requests do: through the
// handlers it registers, with the store handle attached to each request
// context.
type Harness struct {
	mem    *testutil.MemStore
	front  *frontend
	logger *slog.Logger
}

// Option adjusts a run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes the adapter's call logs to logger. By default they are
// discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// The returned error reports a scenario that could not be executed at all
// (unreadable model, malformed seed). Failed expectations and assertions
// are reported through Result.Errors instead.
//
// Execution flow:
// 1. Create a fresh MemStore with sequential ObjectIDs
// 2. Load the model and seed the collections
// 3. Execute the steps, checking expect clauses
// 4. Evaluate assertions against the trace and final store contents
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	h, err := newHarness(scenario, o.logger)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i := range scenario.Steps {
		event, err := h.executeStep(ctx, i+1, &scenario.Steps[i])
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		result.Trace = append(result.Trace, *event)

		for _, msg := range checkExpect(event, scenario.Steps[i].Expect) {
			result.AddError(fmt.Sprintf("step %d (%s %s): %s", event.Step, event.Verb, event.Collection, msg))
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, h.mem) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario, logger *slog.Logger) (*Harness, error) {
	var m *model.Model
	if scenario.Model != "" {
		loaded, err := model.Load(scenario.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to load model: %w", err)
		}
		m = loaded
	}

	policy, err := objectid.ParsePolicy(scenario.Policy)
	if err != nil {
		return nil, err
	}

	mem := testutil.NewMemStore()
	mem.SetIDSource(testutil.NewSequentialIDs().Next)

	names := make([]string, 0, len(scenario.Seed))
	for name := range scenario.Seed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for i, node := range scenario.Seed[name] {
			doc, err := nodeDocument(node)
			if err != nil {
				return nil, fmt.Errorf("seed.%s[%d]: %w", name, i, err)
			}
			mem.Seed(name, doc)
		}
	}

	callIDs := make([]string, len(scenario.Steps))
	for i := range callIDs {
		callIDs[i] = fmt.Sprintf("step-%d", i+1)
	}

	cfg := adapter.DefaultConfig()
	cfg.Model = m
	cfg.Policy = policy
	cfg.Logger = logger
	cfg.CallIDs = adapter.NewFixedGenerator(callIDs...)

	front := &frontend{}
	adapter.New(nil, cfg).Register(front)

	return &Harness{
		mem:    mem,
		front:  front,
		logger: logger,
	}, nil
}

// executeStep issues one verb call and records it. Inputs are decoded twice
// so the trace shows the document as written, not as normalized in place.
func (h *Harness) executeStep(ctx context.Context, n int, step *Step) (*TraceEvent, error) {
	event := &TraceEvent{
		Step:       n,
		Verb:       step.Verb,
		Collection: step.Collection,
	}

	input, err := stepInput(step)
	if err != nil {
		return nil, err
	}
	event.Input = input

	req, err := decodeRequest(step)
	if err != nil {
		return nil, err
	}

	if step.Fail != "" {
		h.mem.FailOn(step.Fail, ErrInjected)
	}
	before := len(h.mem.Calls())

	result, callErr := h.front.serve(adapter.NewContext(ctx, h.mem), req)
	if callErr == nil {
		event.Result = result
	}

	calls := h.mem.Calls()[before:]
	event.Ops = make([]string, len(calls))
	for i, c := range calls {
		event.Ops[i] = c.Op
	}

	switch {
	case callErr == nil:
		event.Outcome = OutcomeOK
	case adapter.IsRejection(callErr):
		event.Outcome = OutcomeRejected
		event.Error = callErr.Error()
	default:
		event.Outcome = OutcomeError
		event.Error = callErr.Error()
	}

	h.logger.Debug("scenario step completed",
		"step", n,
		"verb", step.Verb,
		"outcome", event.Outcome,
	)
	return event, nil
}

// stepInput returns the step's inputs as written, keyed by field name.
func stepInput(step *Step) (bson.M, error) {
	fields := []struct {
		name string
		node yaml.Node
	}{
		{"query", step.Query},
		{"doc", step.Doc},
		{"filter", step.Filter},
		{"update", step.Update},
	}

	input := bson.M{}
	for _, f := range fields {
		if isZero(f.node) {
			continue
		}
		doc, err := nodeDocument(f.node)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		input[f.name] = doc
	}
	return input, nil
}

// checkExpect compares an event with its expect clause. A nil clause
// expects success.
func checkExpect(event *TraceEvent, expect *Expect) []string {
	want := Expect{Outcome: OutcomeOK}
	if expect != nil {
		want = *expect
	}

	var msgs []string
	if event.Outcome != want.Outcome {
		msg := fmt.Sprintf("expected outcome %s, got %s", want.Outcome, event.Outcome)
		if event.Error != "" {
			msg += ": " + event.Error
		}
		msgs = append(msgs, msg)
	}
	if want.Error != "" && !strings.Contains(event.Error, want.Error) {
		msgs = append(msgs, fmt.Sprintf("expected error containing %q, got %q", want.Error, event.Error))
	}
	if want.Count != nil {
		got, ok := resultCount(event.Result)
		switch {
		case !ok:
			msgs = append(msgs, fmt.Sprintf("expected count %d, got no result", *want.Count))
		case got != *want.Count:
			msgs = append(msgs, fmt.Sprintf("expected count %d, got %d", *want.Count, got))
		}
	}
	return msgs
}

// resultCount extracts the primary number of a step result. Inserted
// documents count as 1.
func resultCount(result any) (int64, bool) {
	switch r := result.(type) {
	case []bson.M:
		return int64(len(r)), true
	case bson.M:
		if _, inserted := r["_id"]; inserted {
			return 1, true
		}
		for _, key := range []string{"count", "matched", "deletedCount"} {
			if n, ok := r[key].(int64); ok {
				return n, true
			}
		}
		return 1, true
	default:
		return 0, false
	}
}
