package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type namedHandle string

func (h namedHandle) Collection(string) Collection { return nil }

func TestStatic(t *testing.T) {
	h := namedHandle("primary")
	r := Static(h)

	got, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestResolverFunc(t *testing.T) {
	boom := errors.New("no tenant")
	r := ResolverFunc(func(ctx context.Context) (Handle, error) {
		return nil, boom
	})

	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNonNil(t *testing.T) {
	assert.Equal(t, bson.M{}, nonNil(nil))

	filter := bson.M{"a": 1}
	assert.Equal(t, filter, nonNil(filter))
}

func TestOpenValidatesOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{"missing uri", Options{Database: "shop"}, "mongo URI is required"},
		{"missing database", Options{URI: "mongodb://localhost:27017"}, "database name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Open(context.Background(), tt.opts)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMongoCloseWithoutClient(t *testing.T) {
	var m Mongo
	assert.NoError(t, m.Close(context.Background()))
}
