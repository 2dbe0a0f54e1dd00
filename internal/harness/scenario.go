package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/odatamongo/internal/adapter"
	"github.com/roach88/odatamongo/internal/objectid"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the path of the model file. Relative paths are resolved
	// against the scenario file's directory by LoadScenario.
	Model string `yaml:"model,omitempty"`

	// Policy is the identifier coercion policy name. Empty means the
	// default policy.
	Policy string `yaml:"policy,omitempty"`

	// Seed lists the documents each collection holds before the first step.
	Seed map[string][]yaml.Node `yaml:"seed,omitempty"`

	// Steps are executed in order against the same store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final store contents.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one verb call.
type Step struct {
	// Verb is query, insert, update or remove.
	Verb string `yaml:"verb"`

	// Collection is the target entity set.
	Collection string `yaml:"collection"`

	// Query is the descriptor of a query step.
	Query yaml.Node `yaml:"query,omitempty"`

	// Doc is the document of an insert step.
	Doc yaml.Node `yaml:"doc,omitempty"`

	// Filter selects documents for update and remove steps.
	Filter yaml.Node `yaml:"filter,omitempty"`

	// Update is the update document of an update step.
	Update yaml.Node `yaml:"update,omitempty"`

	// Fail makes the named store round-trip (find, aggregate, count,
	// insert, update, delete) fail once during this step.
	Fail string `yaml:"fail,omitempty"`

	// Expect checks the step's outcome. Nil expects success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Outcome is ok, rejected or error.
	Outcome string `yaml:"outcome"`

	// Error must be contained in the error message.
	Error string `yaml:"error,omitempty"`

	// Count is compared with the step's primary number: documents
	// returned, or the total for count and inlinecount queries; documents
	// matched by an update; documents deleted by a remove; 1 for an insert.
	Count *int64 `yaml:"count,omitempty"`
}

// Assertion validates the trace or the final store contents.
type Assertion struct {
	// Type is store_ops, op_count or final_state.
	Type string `yaml:"type"`

	// Step selects one step (1-based) for store_ops. Zero means the
	// whole run.
	Step int `yaml:"step,omitempty"`

	// Ops is the expected round-trip sequence (store_ops).
	Ops []string `yaml:"ops,omitempty"`

	// Op is the round-trip counted by op_count.
	Op string `yaml:"op,omitempty"`

	// Count is the expected number of round-trips (op_count) or of
	// matching documents (final_state).
	Count int64 `yaml:"count"`

	// Collection is the collection inspected by final_state.
	Collection string `yaml:"collection,omitempty"`

	// Where selects the documents counted by final_state. Empty matches
	// every document.
	Where yaml.Node `yaml:"where,omitempty"`

	// Expect is a filter every document selected by Where must satisfy
	// (final_state).
	Expect yaml.Node `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertStoreOps   = "store_ops"
	AssertOpCount    = "op_count"
	AssertFinalState = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. A relative model
// path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative model path against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected to catch
// typos such as "assertion:" for "assertions:".
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) && basePath != "" {
		scenario.Model = filepath.Join(basePath, scenario.Model)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

var validOps = []string{"find", "aggregate", "count", "insert", "update", "delete"}

func isValidOp(op string) bool {
	return slices.Contains(validOps, op)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := objectid.ParsePolicy(s.Policy); err != nil {
		return err
	}

	for name, docs := range s.Seed {
		for i := range docs {
			if docs[i].Kind != yaml.MappingNode {
				return fmt.Errorf("seed.%s[%d]: document must be a mapping", name, i)
			}
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, len(s.Steps)); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	if step.Collection == "" {
		return fmt.Errorf("steps[%d]: collection is required", index)
	}

	switch step.Verb {
	case adapter.VerbQuery, adapter.VerbRemove:
	case adapter.VerbInsert:
		if isZero(step.Doc) {
			return fmt.Errorf("steps[%d]: doc is required for insert", index)
		}
	case adapter.VerbUpdate:
		if isZero(step.Update) {
			return fmt.Errorf("steps[%d]: update is required for update", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: verb is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown verb %q", index, step.Verb)
	}

	if step.Fail != "" && !isValidOp(step.Fail) {
		return fmt.Errorf("steps[%d]: unknown store op %q in fail", index, step.Fail)
	}

	if step.Expect != nil {
		switch step.Expect.Outcome {
		case OutcomeOK, OutcomeRejected, OutcomeError:
		default:
			return fmt.Errorf("steps[%d].expect: outcome must be ok, rejected or error", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	switch a.Type {
	case AssertStoreOps:
		if a.Step < 0 || a.Step > steps {
			return fmt.Errorf("assertions[%d]: step %d out of range", index, a.Step)
		}
		for _, op := range a.Ops {
			if !isValidOp(op) {
				return fmt.Errorf("assertions[%d]: unknown store op %q", index, op)
			}
		}
	case AssertOpCount:
		if !isValidOp(a.Op) {
			return fmt.Errorf("assertions[%d]: op_count requires a valid op, got %q", index, a.Op)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for op_count", index)
		}
	case AssertFinalState:
		if a.Collection == "" {
			return fmt.Errorf("assertions[%d]: collection is required for final_state", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for final_state", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func isZero(n yaml.Node) bool {
	return n.Kind == 0
}

// nodeDocument converts a YAML mapping into a document. An absent node
// yields an empty document.
func nodeDocument(n yaml.Node) (bson.M, error) {
	data, err := nodeJSON(n)
	if err != nil {
		return nil, err
	}
	doc := bson.M{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, fmt.Errorf("line %d: %w", n.Line, err)
	}
	return doc, nil
}

// nodeJSON renders a YAML node as JSON, keeping mapping keys in document
// order. An absent node yields nil.
func nodeJSON(n yaml.Node) ([]byte, error) {
	if isZero(n) {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := writeNode(&buf, &n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeNode(buf, n.Content[0])

	case yaml.AliasNode:
		return writeNode(buf, n.Alias)

	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeNode(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case yaml.ScalarNode:
		return writeScalar(buf, n)

	default:
		return fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
	}
}

func writeScalar(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.ShortTag() {
	case "!!null":
		buf.WriteString("null")
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return err
		}
		buf.WriteString(strconv.FormatBool(b))
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return err
		}
		buf.WriteString(strconv.FormatInt(i, 10))
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return err
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			// keep the value a double
			s += ".0"
		}
		buf.WriteString(s)
	default:
		s, err := json.Marshal(n.Value)
		if err != nil {
			return err
		}
		buf.Write(s)
	}
	return nil
}
