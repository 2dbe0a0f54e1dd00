package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/odatamongo/internal/pipeline"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario"`
	Trace        []TraceEvent `json:"trace"`
}

// toDocument converts a TraceSnapshot to a document for canonical JSON
// serialization. Empty fields are omitted.
func (s *TraceSnapshot) toDocument() bson.M {
	trace := make(bson.A, len(s.Trace))
	for i, event := range s.Trace {
		ops := event.Ops
		if ops == nil {
			ops = []string{}
		}
		doc := bson.M{
			"step":       event.Step,
			"verb":       event.Verb,
			"collection": event.Collection,
			"outcome":    event.Outcome,
			"ops":        ops,
		}
		if input, ok := event.Input.(bson.M); ok && len(input) > 0 {
			doc["input"] = input
		}
		if event.Result != nil {
			doc["result"] = event.Result
		}
		if event.Error != "" {
			doc["error"] = event.Error
		}
		trace[i] = doc
	}

	return bson.M{
		"scenario": s.ScenarioName,
		"trace":    trace,
	}
}

// MarshalTrace renders a result's trace as canonical JSON.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	return pipeline.MarshalCanonical(snapshot.toDocument())
}

// RunWithGolden executes a scenario, fails t for every unmet expectation,
// and compares the trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
