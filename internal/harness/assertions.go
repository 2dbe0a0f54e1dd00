package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/odatamongo/internal/testutil"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s %v\n",
				event.Step, event.Verb, event.Collection, event.Outcome, event.Ops)
		}
	}

	return buf.String()
}

// assertStoreOps checks the exact round-trip sequence of one step, or of
// the whole run when Step is zero.
func assertStoreOps(trace []TraceEvent, assertion Assertion) error {
	var got []string
	scope := "run"
	if assertion.Step == 0 {
		for _, e := range trace {
			got = append(got, e.Ops...)
		}
	} else {
		scope = fmt.Sprintf("step %d", assertion.Step)
		if assertion.Step > len(trace) {
			return &AssertionError{
				Type:     AssertStoreOps,
				Expected: fmt.Sprintf("%s to exist", scope),
				Actual:   fmt.Sprintf("%d steps executed", len(trace)),
				Trace:    trace,
			}
		}
		got = trace[assertion.Step-1].Ops
	}

	if slices.Equal(got, assertion.Ops) {
		return nil
	}
	return &AssertionError{
		Type:     AssertStoreOps,
		Expected: fmt.Sprintf("%s issues %v", scope, assertion.Ops),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    trace,
	}
}

// assertOpCount checks how many times one round-trip was issued.
func assertOpCount(trace []TraceEvent, assertion Assertion) error {
	var count int64
	for _, e := range trace {
		for _, op := range e.Ops {
			if op == assertion.Op {
				count++
			}
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertOpCount,
			Expected: fmt.Sprintf("%d %s round-trips", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState counts the documents of a collection matching Where and
// checks each of them against Expect.
func assertFinalState(mem *testutil.MemStore, assertion Assertion) error {
	where, err := nodeDocument(assertion.Where)
	if err != nil {
		return fmt.Errorf("final_state where: %w", err)
	}
	expect, err := nodeDocument(assertion.Expect)
	if err != nil {
		return fmt.Errorf("final_state expect: %w", err)
	}

	var count int64
	for _, doc := range mem.Docs(assertion.Collection) {
		ok, err := testutil.Matches(doc, where)
		if err != nil {
			return fmt.Errorf("final_state where: %w", err)
		}
		if !ok {
			continue
		}
		count++

		ok, err = testutil.Matches(doc, expect)
		if err != nil {
			return fmt.Errorf("final_state expect: %w", err)
		}
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("every document in %s where %v to match %v", assertion.Collection, where, expect),
				Actual:   fmt.Sprintf("document %v does not", doc),
			}
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d documents in %s where %v", assertion.Count, assertion.Collection, where),
			Actual:   fmt.Sprintf("%d documents", count),
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, mem *testutil.MemStore) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStoreOps:
			err = assertStoreOps(result.Trace, assertion)
		case AssertOpCount:
			err = assertOpCount(result.Trace, assertion)
		case AssertFinalState:
			if mem == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a store", i)
			} else {
				err = assertFinalState(mem, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
