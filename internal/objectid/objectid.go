package objectid

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/odatamongo/internal/docwalk"
)

// Key tokens that mark a field as identifier-eligible.
const (
	PrimaryKey    = "_id"
	IDToken       = "Id"
	IDsToken      = "Ids"
	OperatorSigil = "$"
)

// hexLen is the length of an ObjectID rendered as hex.
const hexLen = 24

// Policy selects which keys are identifier-eligible.
type Policy int

const (
	// PolicyDefault is the zero value and behaves as DefaultPolicy.
	PolicyDefault Policy = iota
	// PolicyPrimaryKey coerces only _id.
	PolicyPrimaryKey
	// PolicyForeignKeys also coerces "*Id*" fields and "*Ids*" arrays.
	PolicyForeignKeys
	// PolicyOperators also coerces values held directly by "$" operator keys.
	PolicyOperators
)

// DefaultPolicy is what PolicyDefault resolves to.
const DefaultPolicy = PolicyOperators

// Effective returns the policy p applies, resolving PolicyDefault.
func (p Policy) Effective() Policy {
	if p == PolicyDefault {
		return DefaultPolicy
	}
	return p
}

var policyNames = map[Policy]string{
	PolicyPrimaryKey:  "primary-key",
	PolicyForeignKeys: "foreign-keys",
	PolicyOperators:   "operators",
}

func (p Policy) String() string {
	if p == PolicyDefault {
		return "default"
	}
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses a policy name as printed by Policy.String.
// The empty string and "default" select DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	if s == "" || strings.EqualFold(s, "default") {
		return DefaultPolicy, nil
	}
	for p, name := range policyNames {
		if strings.EqualFold(name, s) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown identifier policy %q (want primary-key, foreign-keys or operators)", s)
}

// ErrMaxDepth is returned by Coerce for documents nested beyond MaxDepth.
var ErrMaxDepth = docwalk.ErrMaxDepth

// IsHex reports whether s is exactly 24 hexadecimal characters.
func IsHex(s string) bool {
	if len(s) != hexLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Coercer rewrites identifier-shaped strings in place.
// The zero value applies DefaultPolicy.
type Coercer struct {
	Policy   Policy
	MaxDepth int // zero means docwalk.DefaultMaxDepth
}

// New returns a Coercer for policy.
func New(policy Policy) Coercer {
	return Coercer{Policy: policy}
}

// Coerce applies the default policy to doc.
func Coerce(doc any) error {
	return New(DefaultPolicy).Coerce(doc)
}

// Coerce walks doc and replaces every eligible 24-hex string with its
// ObjectID. Containers are descended into whether or not their key matched.
func (c Coercer) Coerce(doc any) error {
	return docwalk.Walk(doc, c.MaxDepth, func(node any) error {
		switch n := node.(type) {
		case bson.M:
			c.coerceMap(n)
		case map[string]any:
			c.coerceMap(n)
		case bson.D:
			for i := range n {
				n[i].Value = c.coerceField(n[i].Key, n[i].Value)
			}
		}
		return nil
	})
}

func (c Coercer) coerceMap(m map[string]any) {
	for k, v := range m {
		m[k] = c.coerceField(k, v)
	}
}

// coerceField returns the value to store under key. Values that are not
// eligible are returned unchanged.
func (c Coercer) coerceField(key string, value any) any {
	if c.keyEligible(key) {
		if s, ok := value.(string); ok && IsHex(s) {
			return mustFromHex(s)
		}
	}
	if c.arrayEligible(key) {
		return coerceArray(value)
	}
	return value
}

func (c Coercer) keyEligible(key string) bool {
	if key == PrimaryKey {
		return true
	}
	p := c.Policy.Effective()
	if p >= PolicyForeignKeys && strings.Contains(key, IDToken) {
		return true
	}
	return p >= PolicyOperators && strings.HasPrefix(key, OperatorSigil)
}

func (c Coercer) arrayEligible(key string) bool {
	p := c.Policy.Effective()
	if p >= PolicyForeignKeys && strings.Contains(key, IDsToken) {
		return true
	}
	return p >= PolicyOperators && strings.HasPrefix(key, OperatorSigil)
}

// coerceArray converts hex string elements of an array. []string cannot hold
// ObjectIDs, so it is replaced by a bson.A.
func coerceArray(value any) any {
	switch arr := value.(type) {
	case bson.A:
		coerceElements(arr)
	case []any:
		coerceElements(arr)
	case []string:
		out := make(bson.A, len(arr))
		for i, s := range arr {
			if IsHex(s) {
				out[i] = mustFromHex(s)
			} else {
				out[i] = s
			}
		}
		return out
	}
	return value
}

func coerceElements(arr []any) {
	for i, v := range arr {
		if s, ok := v.(string); ok && IsHex(s) {
			arr[i] = mustFromHex(s)
		}
	}
}

// mustFromHex converts a string already checked by IsHex.
func mustFromHex(s string) bson.ObjectID {
	id, err := bson.ObjectIDFromHex(s)
	if err != nil {
		panic(fmt.Sprintf("objectid: %q passed IsHex but failed to parse: %v", s, err))
	}
	return id
}
