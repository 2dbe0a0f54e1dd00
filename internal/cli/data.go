package cli

import (
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/odatamongo/internal/query"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a query descriptor against a collection",
		Long: `Run a query descriptor and print the result.

The output is the array of matching documents, {"count": n} when the
descriptor sets count, or {"count": n, "value": [...]} when it sets
inlinecount.`,
		Example: `  odatamongo query --uri mongodb://localhost:27017 -d shop -c products \
    -q '{"filter":{"categoryId":"5f1d7c2b9a1e4b3c8d7e6f50"},"expand":["Category"]}' -m model.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, cmd)
		},
	}

	addStoreFlags(cmd)
	cmd.Flags().StringP("query", "q", "", "query descriptor (Extended JSON, @file or -)")

	return cmd
}

func runQuery(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, v, err := opts.openSession(cmd, formatter)
	if err != nil {
		return err
	}
	defer s.close()

	data, err := readInput(cmd, v.GetString("query"))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to read --query", err)
	}
	d, err := query.ParseDescriptor(data)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --query", err)
	}

	res, err := s.adapter.Query(s.ctx, s.collection, d)
	if err != nil {
		return failCall(formatter, err)
	}
	return formatter.Documents(res.Shape())
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Insert one document",
		Long: `Insert one document and print it with the _id the store assigned.

Hex strings in identifier fields are converted to ObjectIDs according to
--policy before the document is written.`,
		Example: `  odatamongo insert --uri mongodb://localhost:27017 -d shop -c products \
    --doc '{"name":"Chai","categoryId":"5f1d7c2b9a1e4b3c8d7e6f50"}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(rootOpts, cmd)
		},
	}

	addStoreFlags(cmd)
	cmd.Flags().String("doc", "", "document to insert (Extended JSON, @file or -)")

	return cmd
}

func runInsert(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, v, err := opts.openSession(cmd, formatter)
	if err != nil {
		return err
	}
	defer s.close()

	doc, err := parseDocumentFlag(cmd, formatter, v, "doc")
	if err != nil {
		return err
	}

	out, err := s.adapter.Insert(s.ctx, s.collection, doc)
	if err != nil {
		return failCall(formatter, err)
	}
	return formatter.Documents(out)
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update exactly one document",
		Long: `Apply an update document to the single document matching --filter.

A filter that matches no document or more than one fails with exit code 1
and writes nothing. _id is never changed.`,
		Example: `  odatamongo update --uri mongodb://localhost:27017 -d shop -c products \
    --filter '{"_id":"5f1d7c2b9a1e4b3c8d7e6f51"}' --update '{"$set":{"price":12}}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(rootOpts, cmd)
		},
	}

	addStoreFlags(cmd)
	cmd.Flags().String("filter", "", "filter selecting the document (Extended JSON, @file or -)")
	cmd.Flags().String("update", "", "update document, e.g. {\"$set\":{...}} (Extended JSON, @file or -)")

	return cmd
}

func runUpdate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, v, err := opts.openSession(cmd, formatter)
	if err != nil {
		return err
	}
	defer s.close()

	filter, err := parseDocumentFlag(cmd, formatter, v, "filter")
	if err != nil {
		return err
	}
	update, err := parseDocumentFlag(cmd, formatter, v, "update")
	if err != nil {
		return err
	}
	if len(update) == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "--update is required", nil)
	}

	matched, err := s.adapter.Update(s.ctx, s.collection, filter, update)
	if err != nil {
		return failCall(formatter, err)
	}
	return formatter.Documents(bson.M{"matched": matched})
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove every document matching a filter",
		Long: `Remove every document matching --filter and print the store's
acknowledgment.

An empty filter matches the whole collection, so it must be confirmed
with --all.`,
		Example: `  odatamongo remove --uri mongodb://localhost:27017 -d shop -c products \
    --filter '{"status":"discontinued"}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(rootOpts, cmd)
		},
	}

	addStoreFlags(cmd)
	cmd.Flags().String("filter", "", "filter selecting the documents (Extended JSON, @file or -)")
	cmd.Flags().Bool("all", false, "allow an empty filter, removing every document")

	return cmd
}

func runRemove(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, v, err := opts.openSession(cmd, formatter)
	if err != nil {
		return err
	}
	defer s.close()

	filter, err := parseDocumentFlag(cmd, formatter, v, "filter")
	if err != nil {
		return err
	}
	if len(filter) == 0 && !v.GetBool("all") {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput,
			"empty filter removes every document; pass --all to confirm", nil)
	}

	res, err := s.adapter.Remove(s.ctx, s.collection, filter)
	if err != nil {
		return failCall(formatter, err)
	}
	return formatter.Documents(bson.M{
		"deletedCount": res.DeletedCount,
		"acknowledged": res.Acknowledged,
	})
}
