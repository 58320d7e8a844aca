package eligibility

import (
	"maps"
	"slices"
	"strings"

	strutil "zkgate/pkg/platform/strings"
)

// Policy bounds the action a credential holder may take in one jurisdiction.
type Policy struct {
	Code      string
	MaxAmount float64
	// MinAge is informational; the credential predicate fixes the age threshold.
	MinAge     int
	Restricted bool
}

// PolicyTable is an immutable jurisdiction lookup with a fallback entry.
// The zero value resolves every code to a zero-limit policy.
type PolicyTable struct {
	fallback Policy
	entries  map[string]Policy
}

// NewPolicyTable builds a table. Entry codes are normalized; a later entry
// replaces an earlier one with the same code.
func NewPolicyTable(fallback Policy, entries ...Policy) PolicyTable {
	m := make(map[string]Policy, len(entries))
	for _, p := range entries {
		p.Code = NormalizeJurisdiction(p.Code)
		m[p.Code] = p
	}
	return PolicyTable{fallback: fallback, entries: m}
}

// DefaultPolicyTable returns the built-in limits.
func DefaultPolicyTable() PolicyTable {
	return NewPolicyTable(
		Policy{Code: "DEFAULT", MaxAmount: 1000, MinAge: 18},
		Policy{Code: "US", MaxAmount: 10000, MinAge: 21},
		Policy{Code: "UK", MaxAmount: 50000, MinAge: 18},
		Policy{Code: "EU", MaxAmount: 25000, MinAge: 18},
	)
}

// Resolve returns the policy for code, or the fallback for unknown codes.
// The returned policy's Code is the normalized requested code; an empty code
// resolves to the fallback under the fallback's own code.
func (t PolicyTable) Resolve(code string) Policy {
	code = NormalizeJurisdiction(code)
	if code == "" {
		return t.fallback
	}
	p, ok := t.entries[code]
	if !ok {
		p = t.fallback
	}
	p.Code = code
	return p
}

// WithRestricted returns a copy of t in which the given codes are restricted.
// Unknown codes are added with the fallback limits.
func (t PolicyTable) WithRestricted(codes ...string) PolicyTable {
	m := maps.Clone(t.entries)
	if m == nil {
		m = make(map[string]Policy, len(codes))
	}
	for _, code := range strutil.DedupeAndTrimUpper(codes) {
		p, ok := m[code]
		if !ok {
			p = t.fallback
			p.Code = code
		}
		p.Restricted = true
		m[code] = p
	}
	return PolicyTable{fallback: t.fallback, entries: m}
}

// Policies lists the explicit entries ordered by code.
func (t PolicyTable) Policies() []Policy {
	out := make([]Policy, 0, len(t.entries))
	for _, code := range slices.Sorted(maps.Keys(t.entries)) {
		out = append(out, t.entries[code])
	}
	return out
}

// Fallback returns the policy applied to unknown codes.
func (t PolicyTable) Fallback() Policy {
	return t.fallback
}

// NormalizeJurisdiction trims and upper-cases a jurisdiction code.
func NormalizeJurisdiction(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
