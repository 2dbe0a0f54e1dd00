// Package model holds the entity model the query planner consults: entity
// sets, the lookup (join) definition behind each navigable relationship, and
// the locale used for collation.
//
// A Model is built once, at startup, and passed explicitly to the components
// that need it. Nothing in this package keeps process-wide state.
package model

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/text/language"
)

// DefaultLocale is the collation locale used when the model names none.
const DefaultLocale = "en"

// Model describes the entity sets served by one adapter instance.
type Model struct {
	Namespace  string               `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Locale     string               `yaml:"locale,omitempty" json:"locale,omitempty"`
	EntitySets map[string]EntitySet `yaml:"entitySets" json:"entitySets"`
}

// EntitySet maps to one store collection of the same name.
type EntitySet struct {
	EntityType string          `yaml:"entityType,omitempty" json:"entityType,omitempty"`
	Joins      map[string]Join `yaml:"joins,omitempty" json:"joins,omitempty"`
}

// Join is a lookup descriptor for one relationship. It is passed to the
// store verbatim as the body of a $lookup stage; Extra carries keys such as
// "let" and "pipeline" that this package does not interpret.
type Join struct {
	From         string         `yaml:"from" json:"from"`
	LocalField   string         `yaml:"localField,omitempty" json:"localField,omitempty"`
	ForeignField string         `yaml:"foreignField,omitempty" json:"foreignField,omitempty"`
	As           string         `yaml:"as" json:"as"`
	Extra        map[string]any `yaml:",inline" json:"-"`
}

// Lookup renders the join as a $lookup body. The well-known keys come first
// in their conventional order, followed by Extra keys sorted by name.
func (j Join) Lookup() bson.D {
	d := bson.D{{Key: "from", Value: j.From}}
	if j.LocalField != "" {
		d = append(d, bson.E{Key: "localField", Value: j.LocalField})
	}
	if j.ForeignField != "" {
		d = append(d, bson.E{Key: "foreignField", Value: j.ForeignField})
	}

	keys := make([]string, 0, len(j.Extra))
	for k := range j.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: j.Extra[k]})
	}

	return append(d, bson.E{Key: "as", Value: j.As})
}

// LocaleOrDefault returns the configured locale, or DefaultLocale.
// A nil model also yields DefaultLocale.
func (m *Model) LocaleOrDefault() string {
	if m == nil || m.Locale == "" {
		return DefaultLocale
	}
	return m.Locale
}

// EntitySet looks up an entity set by collection name.
func (m *Model) EntitySet(name string) (EntitySet, bool) {
	if m == nil {
		return EntitySet{}, false
	}
	es, ok := m.EntitySets[name]
	return es, ok
}

// Join looks up the lookup descriptor for relationship on entitySet.
func (m *Model) Join(entitySet, relationship string) (Join, bool) {
	es, ok := m.EntitySet(entitySet)
	if !ok {
		return Join{}, false
	}
	j, ok := es.Joins[relationship]
	return j, ok
}

// EntitySetNames returns the entity set names in sorted order.
func (m *Model) EntitySetNames() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.EntitySets))
	for name := range m.EntitySets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the locale and every join definition.
func (m *Model) Validate() error {
	if m.Locale != "" {
		if _, err := language.Parse(m.Locale); err != nil {
			return fmt.Errorf("invalid locale %q: %w", m.Locale, err)
		}
	}

	for _, name := range m.EntitySetNames() {
		es := m.EntitySets[name]
		rels := make([]string, 0, len(es.Joins))
		for rel := range es.Joins {
			rels = append(rels, rel)
		}
		sort.Strings(rels)

		for _, rel := range rels {
			if err := es.Joins[rel].validate(); err != nil {
				return fmt.Errorf("entity set %q, relationship %q: %w", name, rel, err)
			}
		}
	}
	return nil
}

func (j Join) validate() error {
	if j.From == "" {
		return fmt.Errorf("join requires from")
	}
	if j.As == "" {
		return fmt.Errorf("join requires as")
	}
	_, hasPipeline := j.Extra["pipeline"]
	if !hasPipeline && (j.LocalField == "" || j.ForeignField == "") {
		return fmt.Errorf("join requires localField and foreignField unless a pipeline is given")
	}
	return nil
}
