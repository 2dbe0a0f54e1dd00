package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"
)

func TestLoadScenario_Valid(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "expand_inlinecount.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "expand_inlinecount", scenario.Name)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "model.yaml"), scenario.Model)
	assert.Len(t, scenario.Seed["products"], 3)
	require.Len(t, scenario.Steps, 4)
	assert.Equal(t, "find", scenario.Steps[3].Fail)
	require.NotNil(t, scenario.Steps[1].Expect)
	assert.Equal(t, OutcomeRejected, scenario.Steps[1].Expect.Outcome)
	assert.Len(t, scenario.Assertions, 4)
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	scenario, err := LoadScenarioWithBasePath(
		filepath.Join("testdata", "scenarios", "expand_inlinecount.yaml"), "/models")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/models", "model.yaml"), scenario.Model)
}

func TestLoadScenario_NotFound(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: assertion instead of assertions
steps:
  - verb: query
    collection: items
assertion: []
`), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	const steps = "steps:\n  - verb: query\n    collection: items\n"

	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"missing name", "description: d\n" + steps, "name is required"},
		{"missing description", "name: n\n" + steps, "description is required"},
		{"no steps", "name: n\ndescription: d\n", "steps list is required"},
		{"bad policy", "name: n\ndescription: d\npolicy: all\n" + steps, "unknown identifier policy"},
		{
			"seed not a mapping",
			"name: n\ndescription: d\nseed:\n  items: [1]\n" + steps,
			"seed.items[0]: document must be a mapping",
		},
		{
			"missing verb",
			"name: n\ndescription: d\nsteps:\n  - collection: items\n",
			"steps[0]: verb is required",
		},
		{
			"unknown verb",
			"name: n\ndescription: d\nsteps:\n  - verb: upsert\n    collection: items\n",
			`steps[0]: unknown verb "upsert"`,
		},
		{
			"missing collection",
			"name: n\ndescription: d\nsteps:\n  - verb: query\n",
			"steps[0]: collection is required",
		},
		{
			"insert without doc",
			"name: n\ndescription: d\nsteps:\n  - verb: insert\n    collection: items\n",
			"doc is required for insert",
		},
		{
			"update without update",
			"name: n\ndescription: d\nsteps:\n  - verb: update\n    collection: items\n",
			"update is required for update",
		},
		{
			"unknown fail op",
			"name: n\ndescription: d\nsteps:\n  - verb: query\n    collection: items\n    fail: scan\n",
			`unknown store op "scan" in fail`,
		},
		{
			"bad outcome",
			"name: n\ndescription: d\nsteps:\n  - verb: query\n    collection: items\n    expect: { outcome: maybe }\n",
			"outcome must be ok, rejected or error",
		},
		{
			"assertion without type",
			"name: n\ndescription: d\n" + steps + "assertions:\n  - count: 1\n",
			"assertions[0]: type is required",
		},
		{
			"unknown assertion type",
			"name: n\ndescription: d\n" + steps + "assertions:\n  - type: trace_contains\n",
			`unknown assertion type "trace_contains"`,
		},
		{
			"store_ops step out of range",
			"name: n\ndescription: d\n" + steps + "assertions:\n  - type: store_ops\n    step: 2\n",
			"step 2 out of range",
		},
		{
			"store_ops unknown op",
			"name: n\ndescription: d\n" + steps + "assertions:\n  - type: store_ops\n    ops: [scan]\n",
			`unknown store op "scan"`,
		},
		{
			"op_count without op",
			"name: n\ndescription: d\n" + steps + "assertions:\n  - type: op_count\n    count: 1\n",
			"op_count requires a valid op",
		},
		{
			"final_state without collection",
			"name: n\ndescription: d\n" + steps + "assertions:\n  - type: final_state\n    count: 1\n",
			"collection is required for final_state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func parseNode(t *testing.T, src string) yaml.Node {
	t.Helper()
	var n yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &n))
	return n
}

func TestNodeJSON(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"key order kept", "{ z: 1, a: 2, m: 3 }", `{"z":1,"a":2,"m":3}`},
		{"scalars", "{ s: text, q: \"42\", i: 0x10, f: 1.5, whole: 2.0, b: true, n: null }",
			`{"s":"text","q":"42","i":16,"f":1.5,"whole":2.0,"b":true,"n":null}`},
		{"sequence", "[1, two, { three: 3 }]", `[1,"two",{"three":3}]`},
		{"operators", "{ $set: { price: 20 } }", `{"$set":{"price":20}}`},
		{"alias", "base: &b { x: 1 }\ncopy: *b\n", `{"base":{"x":1},"copy":{"x":1}}`},
		{"escaping", `{ msg: "say \"hi\"" }`, `{"msg":"say \"hi\""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := nodeJSON(parseNode(t, tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestNodeJSON_Absent(t *testing.T) {
	out, err := nodeJSON(yaml.Node{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestNodeDocument(t *testing.T) {
	doc, err := nodeDocument(parseNode(t, `{ _id: { $oid: "5f1d7c2b9a1e4b3c8d7e6f50" }, sort: { b: 1, a: -1 }, n: 3 }`))
	require.NoError(t, err)

	id, err := bson.ObjectIDFromHex("5f1d7c2b9a1e4b3c8d7e6f50")
	require.NoError(t, err)
	assert.Equal(t, id, doc["_id"])
	assert.Equal(t, int32(3), doc["n"])

	empty, err := nodeDocument(yaml.Node{})
	require.NoError(t, err)
	assert.Equal(t, bson.M{}, empty)
}
