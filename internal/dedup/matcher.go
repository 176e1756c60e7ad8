// Package dedup decides whether a normalized website identity already
// belongs to a known company.
package dedup

import (
	"strings"
	"unicode"

	"CompetitorScanner/internal/domain"
	"CompetitorScanner/internal/urlx"
)

// MatchType labels which pass produced a duplicate verdict.
type MatchType string

const (
	MatchDomain MatchType = "domain"
	MatchName   MatchType = "name"
)

// Match is the outcome of one dedup check. Ephemeral, computed on demand.
type Match struct {
	IsDuplicate         bool
	ExistingCompanyID   string
	ExistingCompanyName string
	MatchType           MatchType
}

// minNameLength guards the fuzzy name pass against trivially short names.
const minNameLength = 3

// Check compares an eTLD+1 and a candidate name against the given
// company snapshot. Domain identity is authoritative and checked across
// the whole snapshot first; name matching is a soft fallback to catch
// re-entry under a different website. First match wins in input order.
func Check(etld1, candidateName string, existing []domain.Company) Match {
	want := strings.ToLower(etld1)
	for _, company := range existing {
		if company.Website == "" {
			continue
		}
		normalized := urlx.Normalize(company.Website)
		if !normalized.OK {
			continue
		}
		if strings.EqualFold(normalized.ETLD1, want) {
			return Match{
				IsDuplicate:         true,
				ExistingCompanyID:   company.ID,
				ExistingCompanyName: company.Name,
				MatchType:           MatchDomain,
			}
		}
	}

	candidate := normalizeName(candidateName)
	if len(candidate) < minNameLength {
		return Match{}
	}
	for _, company := range existing {
		if normalizeName(company.Name) == candidate {
			return Match{
				IsDuplicate:         true,
				ExistingCompanyID:   company.ID,
				ExistingCompanyName: company.Name,
				MatchType:           MatchName,
			}
		}
	}

	return Match{}
}

// normalizeName strips all non-alphanumerics and lower-cases.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
