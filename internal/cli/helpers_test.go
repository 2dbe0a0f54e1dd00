package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/odatamongo/internal/store"
	"github.com/roach88/odatamongo/internal/testutil"
)

const shopModel = `namespace: Shop
locale: en
entitySets:
  categories:
    entityType: Shop.Category
  products:
    entityType: Shop.Product
    joins:
      Category:
        from: categories
        localField: categoryId
        foreignField: _id
        as: Category
`

// writeFile writes content to name inside a fresh temporary directory.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// memBackend serves a MemStore as a Backend.
type memBackend struct {
	*testutil.MemStore
	closed bool
}

func (b *memBackend) Close(context.Context) error {
	b.closed = true
	return nil
}

// dialer returns a DialFunc handing out backend and recording the options
// it was called with.
func dialer(backend *memBackend, got *store.Options) DialFunc {
	return func(_ context.Context, opts store.Options) (Backend, error) {
		if got != nil {
			*got = opts
		}
		return backend, nil
	}
}

// runCLI executes the root command built around opts with args and returns
// what it wrote to stdout and stderr.
func runCLI(t *testing.T, opts *RootOptions, args ...string) (string, string, error) {
	t.Helper()
	if opts == nil {
		opts = &RootOptions{}
	}

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommandWithOptions(opts)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
