package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/odatamongo/internal/query"
)

// To regenerate golden files, run:
//
//	go test ./internal/pipeline -update
func TestRender_Golden(t *testing.T) {
	frModel := testModel()
	frModel.Locale = "fr"

	tests := []struct {
		name       string
		planner    *Planner
		collection string
		d          *query.Descriptor
	}{
		{
			name:       "find_value",
			planner:    NewPlanner(testModel()),
			collection: "products",
			d: &query.Descriptor{
				Filter: bson.M{"price": bson.M{"$gt": 10}},
				Select: bson.M{"name": 1},
				Sort:   bson.D{{Key: "name", Value: 1}, {Key: "price", Value: -1}},
				Skip:   5,
				Limit:  10,
			},
		},
		{
			name:       "find_count",
			planner:    NewPlanner(testModel()),
			collection: "products",
			d: &query.Descriptor{
				Filter: bson.M{"status": "active"},
				Sort:   bson.D{{Key: "name", Value: 1}},
				Skip:   3,
				Count:  true,
			},
		},
		{
			name:       "find_empty",
			planner:    NewPlanner(nil),
			collection: "products",
			d:          nil,
		},
		{
			name:       "aggregate_inline",
			planner:    NewPlanner(testModel()),
			collection: "products",
			d: &query.Descriptor{
				Filter:      bson.M{"categoryId": mustOID(t, "5f1d7c2b9a1e4b3c8d7e6f50")},
				Select:      bson.M{"name": 1, "Category": 1},
				Sort:        bson.D{{Key: "name", Value: 1}},
				Skip:        2,
				Limit:       2,
				InlineCount: true,
				Expand:      []string{"Category"},
			},
		},
		{
			name:       "aggregate_value",
			planner:    NewPlanner(frModel),
			collection: "products",
			d: &query.Descriptor{
				Sort:   bson.D{{Key: "name", Value: -1}},
				Expand: []string{"Supplier", "Category"},
			},
		},
		{
			name:       "aggregate_count",
			planner:    NewPlanner(testModel()),
			collection: "products",
			d: &query.Descriptor{
				Filter: bson.M{"status": "active"},
				Sort:   bson.D{{Key: "name", Value: 1}},
				Limit:  4,
				Count:  true,
				Expand: []string{"Category"},
			},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := tt.planner.Compile(tt.collection, tt.d)
			require.NoError(t, err)

			out, err := plan.Render()
			require.NoError(t, err)
			g.Assert(t, tt.name, out)
		})
	}
}

func TestRender_Deterministic(t *testing.T) {
	d := &query.Descriptor{
		Filter: bson.M{"z": 1, "a": bson.M{"y": 2, "b": 3}, "m": bson.A{bson.M{"k": 1, "c": 2}}},
		Sort:   bson.D{{Key: "z", Value: 1}, {Key: "a", Value: -1}},
	}
	plan, err := NewPlanner(nil).Compile("c", d)
	require.NoError(t, err)

	first, err := plan.Render()
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := plan.Render()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Contains(t, string(first), `"filter":{"a":{"b":3,"y":2},"m":[{"c":2,"k":1}],"z":1}`)
	assert.Contains(t, string(first), `"sort":{"z":1,"a":-1}`)
}

func TestMarshalCanonical_Scalars(t *testing.T) {
	oid := mustOID(t, "5f1d7c2b9a1e4b3c8d7e6f50")
	when := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"null", nil, "null"},
		{"string", "hello", `"hello"`},
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"int32", int32(-7), "-7"},
		{"int64", int64(9223372036854775807), "9223372036854775807"},
		{"float", 1.5, "1.5"},
		{"integral float", 2.0, "2"},
		{"object id", oid, `{"$oid":"5f1d7c2b9a1e4b3c8d7e6f50"}`},
		{"date time", bson.NewDateTimeFromTime(when), `{"$date":"2024-05-01T12:30:00Z"}`},
		{"time", when, `{"$date":"2024-05-01T12:30:00Z"}`},
		{"regex", bson.Regex{Pattern: "^a", Options: "i"}, `{"$regex":"^a","$options":"i"}`},
		{"empty array", bson.A{}, "[]"},
		{"string slice", []string{"a", "b"}, `["a","b"]`},
		{"empty object", bson.M{}, "{}"},
		{"ordered", bson.D{{Key: "b", Value: 1}, {Key: "a", Value: 2}}, `{"b":1,"a":2}`},
		{"sorted", map[string]any{"b": 1, "a": 2, "$in": 3, "_x": 4, "B": 5}, `{"$in":3,"B":5,"_x":4,"a":2,"b":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestMarshalCanonical_Strings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no html escaping", "<a&b>", `"<a&b>"`},
		{"quote and backslash", `say "hi" \o/`, `"say \"hi\" \\o/"`},
		{"control characters", "a\nb\tc\x01", `"a\nb\tc\u0001"`},
		{"line separator kept literal", "a\u2028b", "\"a\u2028b\""},
		{"nfc normalized", "e\u0301", "\"\u00e9\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00, which sort before U+FB01
	// in UTF-16 but after it in UTF-8.
	out, err := MarshalCanonical(bson.M{"\uFB01": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uFB01\":1}", string(out))
}

func TestMarshalCanonical_Errors(t *testing.T) {
	_, err := MarshalCanonical(math.NaN())
	assert.Error(t, err)

	_, err = MarshalCanonical(bson.M{"a": bson.A{struct{}{}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a": [0]: unsupported type`)

	_, err = MarshalCanonical(make(chan int))
	assert.Error(t, err)
}
