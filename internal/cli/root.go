package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/odatamongo/internal/store"
)

// EnvPrefix prefixes the environment variables that back command flags:
// --uri is also read from ODATAMONGO_URI, --model from ODATAMONGO_MODEL.
const EnvPrefix = "ODATAMONGO"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Dial opens the store for data commands. Nil means store.Open.
	Dial DialFunc

	config *viper.Viper
}

// Backend is an open store connection.
type Backend interface {
	store.Resolver
	Close(ctx context.Context) error
}

// DialFunc opens a Backend.
type DialFunc func(ctx context.Context, opts store.Options) (Backend, error)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the odatamongo CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

// NewRootCommandWithOptions creates the root command around opts, so callers
// can supply a DialFunc. Flag values are written into opts.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "odatamongo",
		Short: "odatamongo - OData-style queries and writes against MongoDB",
		Long: `odatamongo translates OData-style query descriptors and writes into
MongoDB finds, aggregations and mutations.

Connection settings can also be given through environment variables named
after the flags with the ODATAMONGO_ prefix, e.g. ODATAMONGO_URI,
ODATAMONGO_DATABASE, ODATAMONGO_MODEL, ODATAMONGO_POLICY and
ODATAMONGO_METRICS.
Flags take precedence over environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			slog.SetDefault(opts.Logger(cmd.ErrOrStderr()))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))

	return cmd
}

// Logger returns a text logger on w: Debug when verbose, Warn otherwise.
func (o *RootOptions) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Config returns the viper instance that resolves flag values, creating it
// on first use.
func (o *RootOptions) Config() *viper.Viper {
	if o.config == nil {
		v := viper.New()
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		v.AutomaticEnv()
		o.config = v
	}
	return o.config
}

// bindFlags binds the running command's flags. Binding happens at run time
// because sibling commands declare flags with the same names.
func (o *RootOptions) bindFlags(cmd *cobra.Command) (*viper.Viper, error) {
	v := o.Config()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return v, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
