package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/odatamongo/internal/adapter"
	"github.com/roach88/odatamongo/internal/docwalk"
	"github.com/roach88/odatamongo/internal/metrics"
	"github.com/roach88/odatamongo/internal/objectid"
	"github.com/roach88/odatamongo/internal/query"
	"github.com/roach88/odatamongo/internal/store"
)

// AppName is reported to the server by data commands.
const AppName = "odatamongo"

// Flag names shared by several commands. They double as viper keys.
const (
	flagURI        = "uri"
	flagDatabase   = "database"
	flagCollection = "collection"
	flagModel      = "model"
	flagPolicy     = "policy"
	flagTimeout    = "timeout"
	flagMetrics    = "metrics"
)

// addAdapterFlags declares the flags that configure an Adapter.
func addAdapterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP(flagCollection, "c", "", "collection (entity set) name")
	cmd.Flags().StringP(flagModel, "m", "", "model file (YAML, JSON or CUE)")
	cmd.Flags().String(flagPolicy, objectid.DefaultPolicy.String(),
		"identifier coercion policy (primary-key|foreign-keys|operators)")
}

// addStoreFlags declares the connection flags of data commands.
func addStoreFlags(cmd *cobra.Command) {
	addAdapterFlags(cmd)
	cmd.Flags().String(flagURI, "", "MongoDB connection string")
	cmd.Flags().StringP(flagDatabase, "d", "", "database name")
	cmd.Flags().Duration(flagTimeout, 30*time.Second, "timeout for the whole command")
	cmd.Flags().Bool(flagMetrics, false, "print call metrics to stderr in Prometheus text format")
}

// readInput resolves a document flag value: "-" reads stdin, "@path" reads
// a file, anything else is the document itself.
func readInput(cmd *cobra.Command, value string) ([]byte, error) {
	switch {
	case value == "-":
		return io.ReadAll(cmd.InOrStdin())
	case strings.HasPrefix(value, "@"):
		return os.ReadFile(strings.TrimPrefix(value, "@"))
	default:
		return []byte(value), nil
	}
}

// parseDocumentFlag reads and decodes the Extended JSON document in flag.
func parseDocumentFlag(cmd *cobra.Command, f *OutputFormatter, v *viper.Viper, flag string) (bson.M, error) {
	data, err := readInput(cmd, v.GetString(flag))
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeInvalidInput,
			fmt.Sprintf("failed to read --%s", flag), err)
	}
	doc, err := query.ParseDocument(data)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeInvalidInput,
			fmt.Sprintf("invalid --%s", flag), err)
	}
	return doc, nil
}

// newAdapter builds an Adapter from the model and policy flags. resolver may
// be nil for commands that never reach the store; rec may be nil.
func (o *RootOptions) newAdapter(cmd *cobra.Command, f *OutputFormatter, v *viper.Viper, resolver store.Resolver, rec *metrics.Recorder) (*adapter.Adapter, error) {
	m, err := LoadModel(v.GetString(flagModel))
	if err != nil {
		return nil, failLoad(f, err)
	}
	if m != nil {
		f.VerboseLog("Loaded model from %s", v.GetString(flagModel))
	}

	policy, err := objectid.ParsePolicy(v.GetString(flagPolicy))
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}

	cfg := adapter.DefaultConfig()
	cfg.Model = m
	cfg.Policy = policy
	cfg.Logger = o.Logger(cmd.ErrOrStderr())
	cfg.Metrics = rec
	return adapter.New(resolver, cfg), nil
}

// requireCollection returns the --collection value or fails.
func requireCollection(f *OutputFormatter, v *viper.Viper) (string, error) {
	name := v.GetString(flagCollection)
	if name == "" {
		return "", f.Fail(ExitCommandError, ErrCodeInvalidInput, "--collection is required", nil)
	}
	return name, nil
}

// session is an open store connection plus the adapter serving it.
type session struct {
	adapter    *adapter.Adapter
	backend    Backend
	collection string
	ctx        context.Context
	cancel     context.CancelFunc

	// registry is set when --metrics is on; close writes it to errOut.
	registry *prometheus.Registry
	errOut   io.Writer
}

func (s *session) close() {
	_ = s.backend.Close(context.WithoutCancel(s.ctx))
	s.cancel()
	if s.registry != nil {
		if err := metrics.WriteText(s.errOut, s.registry); err != nil {
			slog.Warn("failed to write metrics", "error", err)
		}
	}
}

// openSession binds flags, loads the model and connects to the store.
// The caller must close the returned session.
func (o *RootOptions) openSession(cmd *cobra.Command, f *OutputFormatter) (*session, *viper.Viper, error) {
	v, err := o.bindFlags(cmd)
	if err != nil {
		return nil, nil, f.Fail(ExitCommandError, ErrCodeGeneric, "failed to bind flags", err)
	}
	collection, err := requireCollection(f, v)
	if err != nil {
		return nil, nil, err
	}

	storeOpts := store.Options{
		URI:      v.GetString(flagURI),
		Database: v.GetString(flagDatabase),
		AppName:  AppName,
		Timeout:  v.GetDuration(flagTimeout),
	}
	if storeOpts.URI == "" {
		return nil, nil, f.Fail(ExitCommandError, ErrCodeInvalidInput,
			"--uri is required (or set "+EnvPrefix+"_URI)", nil)
	}
	if storeOpts.Database == "" {
		return nil, nil, f.Fail(ExitCommandError, ErrCodeInvalidInput,
			"--database is required (or set "+EnvPrefix+"_DATABASE)", nil)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cancel := context.CancelFunc(func() {})
	if storeOpts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, storeOpts.Timeout)
	}

	dial := o.Dial
	if dial == nil {
		dial = dialMongo
	}
	backend, err := dial(ctx, storeOpts)
	if err != nil {
		cancel()
		return nil, nil, f.Fail(ExitCommandError, ErrCodeConnectFailed, "failed to connect", err)
	}
	f.VerboseLog("Connected to database %s", storeOpts.Database)

	var (
		registry *prometheus.Registry
		rec      *metrics.Recorder
	)
	if v.GetBool(flagMetrics) {
		registry = prometheus.NewRegistry()
		rec = metrics.MustNew(registry)
	}

	a, err := o.newAdapter(cmd, f, v, backend, rec)
	if err != nil {
		_ = backend.Close(context.WithoutCancel(ctx))
		cancel()
		return nil, nil, err
	}

	return &session{
		adapter:    a,
		backend:    backend,
		collection: collection,
		ctx:        ctx,
		cancel:     cancel,
		registry:   registry,
		errOut:     cmd.ErrOrStderr(),
	}, v, nil
}

func dialMongo(ctx context.Context, opts store.Options) (Backend, error) {
	return store.Open(ctx, opts)
}

// failCall maps an adapter error to an exit error.
func failCall(f *OutputFormatter, err error) error {
	switch {
	case query.IsValidationError(err):
		return f.Fail(ExitFailure, ErrCodeInvalidQuery, "invalid query", err)
	case errors.Is(err, docwalk.ErrMaxDepth):
		return f.Fail(ExitFailure, ErrCodeInvalidInput, "document nested too deeply", err)
	case adapter.IsRejection(err):
		return f.Fail(ExitFailure, ErrCodeRejected, err.Error(), nil)
	default:
		return f.Fail(ExitFailure, ErrCodeStoreError, "store error", err)
	}
}
