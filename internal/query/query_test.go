package query

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/odatamongo/internal/model"
)

func testModel() *model.Model {
	return &model.Model{
		EntitySets: map[string]model.EntitySet{
			"orders": {
				Joins: map[string]model.Join{
					"customer": {From: "customers", LocalField: "customerId", ForeignField: "_id", As: "customer"},
				},
			},
		},
	}
}

func TestParseDescriptor(t *testing.T) {
	d, err := ParseDescriptor([]byte(`{
		"filter": {"status": "open", "_id": {"$oid": "5aff78d7338df4299c104002"}},
		"select": {"status": 1},
		"sort": {"createdAt": -1, "name": 1},
		"skip": 10,
		"limit": 5,
		"inlinecount": true,
		"expand": ["customer"]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "open", d.Filter["status"])
	assert.IsType(t, bson.ObjectID{}, d.Filter["_id"])
	require.Len(t, d.Sort, 2)
	assert.Equal(t, "createdAt", d.Sort[0].Key)
	assert.Equal(t, "name", d.Sort[1].Key)
	assert.Equal(t, int64(10), d.Skip)
	assert.Equal(t, int64(5), d.Limit)
	assert.True(t, d.InlineCount)
	assert.False(t, d.Count)
	assert.Equal(t, []string{"customer"}, d.Expand)
	assert.True(t, d.HasExpand())
}

func TestParseDescriptor_Empty(t *testing.T) {
	d, err := ParseDescriptor(nil)
	require.NoError(t, err)
	assert.False(t, d.HasExpand())
	assert.Empty(t, d.Filter)
}

func TestParseDescriptor_Malformed(t *testing.T) {
	_, err := ParseDescriptor([]byte(`{"filter": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse query descriptor")
}

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"foo": "Hello", "n": 3}`))
	require.NoError(t, err)
	assert.Equal(t, "Hello", doc["foo"])

	empty, err := ParseDocument(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestValidate_OK(t *testing.T) {
	d := &Descriptor{Expand: []string{"customer"}, Skip: 1, Limit: 2, InlineCount: true}
	assert.NoError(t, Validate(d, "orders", testModel()))

	// no expansion, no model needed
	assert.NoError(t, Validate(&Descriptor{Limit: 3}, "anything", nil))
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name       string
		d          *Descriptor
		collection string
		wantCode   ValidationErrorCode
	}{
		{"negative skip", &Descriptor{Skip: -1}, "orders", ErrCodeInvalidPagination},
		{"negative limit", &Descriptor{Limit: -1}, "orders", ErrCodeInvalidPagination},
		{"both counts", &Descriptor{Count: true, InlineCount: true}, "orders", ErrCodeConflictingCount},
		{"unknown entity set", &Descriptor{Expand: []string{"customer"}}, "invoices", ErrCodeUnknownEntitySet},
		{"unknown relationship", &Descriptor{Expand: []string{"supplier"}}, "orders", ErrCodeUnknownRelationship},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.d, tt.collection, testModel())
			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantCode, ve.Code)
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	d := &Descriptor{Skip: -1, Limit: -1, Expand: []string{"a", "b"}}

	err := Validate(d, "orders", testModel())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skip must not be negative")
	assert.Contains(t, err.Error(), "limit must not be negative")
	assert.Contains(t, err.Error(), `no relationship "a"`)
	assert.Contains(t, err.Error(), `no relationship "b"`)
}

func TestResultShapes(t *testing.T) {
	docs := []bson.M{{"foo": "a"}}

	tests := []struct {
		name   string
		result *Result
		want   string
	}{
		{"value", NewValueResult(docs), `[{"foo":"a"}]`},
		{"empty value", NewValueResult(nil), `[]`},
		{"count", NewCountResult(7), `{"count":7}`},
		{"inline", NewInlineResult(docs, 12), `{"count":12,"value":[{"foo":"a"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := json.Marshal(tt.result)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
		})
	}
}

func TestResultKindString(t *testing.T) {
	assert.Equal(t, "value", ResultValue.String())
	assert.Equal(t, "count", ResultCount.String())
	assert.Equal(t, "inline", ResultInline.String())
	assert.Equal(t, "ResultKind(9)", ResultKind(9).String())
}
