package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/odatamongo/internal/model"
)

// ModelSummary describes a validated model.
type ModelSummary struct {
	Valid      bool               `json:"valid"`
	Namespace  string             `json:"namespace,omitempty"`
	Locale     string             `json:"locale"`
	EntitySets []EntitySetSummary `json:"entitySets"`
}

// EntitySetSummary describes one entity set of a model.
type EntitySetSummary struct {
	Name       string        `json:"name"`
	EntityType string        `json:"entityType,omitempty"`
	Joins      []JoinSummary `json:"joins,omitempty"`
}

// JoinSummary describes one expandable relationship.
type JoinSummary struct {
	Name         string `json:"name"`
	From         string `json:"from"`
	LocalField   string `json:"localField,omitempty"`
	ForeignField string `json:"foreignField,omitempty"`
	As           string `json:"as"`
	Pipeline     bool   `json:"pipeline,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <model-file>",
		Short: "Validate a model file",
		Long: `Load and validate a model file (YAML, JSON or CUE).

Checks the locale and every join definition, then lists the entity sets
and the relationships each one can expand.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	m, err := LoadModel(path)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.VerboseLog("Loaded model from %s", path)

	summary := Summarize(m)
	if opts.Format == "json" {
		return formatter.Success(summary)
	}
	return formatter.Success(summary.Text())
}

// Summarize describes m. Entity sets and joins are sorted by name.
func Summarize(m *model.Model) ModelSummary {
	s := ModelSummary{
		Valid:      true,
		Namespace:  m.Namespace,
		Locale:     m.LocaleOrDefault(),
		EntitySets: []EntitySetSummary{},
	}

	for _, name := range m.EntitySetNames() {
		es := m.EntitySets[name]
		ess := EntitySetSummary{Name: name, EntityType: es.EntityType}

		rels := make([]string, 0, len(es.Joins))
		for rel := range es.Joins {
			rels = append(rels, rel)
		}
		sort.Strings(rels)
		for _, rel := range rels {
			j := es.Joins[rel]
			_, hasPipeline := j.Extra["pipeline"]
			ess.Joins = append(ess.Joins, JoinSummary{
				Name:         rel,
				From:         j.From,
				LocalField:   j.LocalField,
				ForeignField: j.ForeignField,
				As:           j.As,
				Pipeline:     hasPipeline,
			})
		}
		s.EntitySets = append(s.EntitySets, ess)
	}
	return s
}

// Text renders the summary for humans.
func (s ModelSummary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Model valid: %d entity set(s), locale %s", len(s.EntitySets), s.Locale)
	for _, es := range s.EntitySets {
		b.WriteString("\n  " + es.Name)
		if es.EntityType != "" {
			fmt.Fprintf(&b, " (%s)", es.EntityType)
		}
		for _, j := range es.Joins {
			fmt.Fprintf(&b, "\n    %s -> %s", j.Name, j.From)
			if j.Pipeline {
				b.WriteString(" (pipeline)")
			} else {
				fmt.Fprintf(&b, " (%s = %s)", j.LocalField, j.ForeignField)
			}
			fmt.Fprintf(&b, " as %s", j.As)
		}
	}
	return b.String()
}
