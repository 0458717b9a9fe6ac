// Package identity derives stable, content-addressed identities for incentive
// programs. The same logical program must hash to the same id on every run,
// in every process, regardless of how its name was written.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

// idLength is the number of hex characters kept from the SHA-256 digest.
const idLength = 16

// acronymExpansion maps a common program acronym to its canonical long form.
// Expansion happens before hashing so "WOTC" and "Work Opportunity Tax
// Credit" produce the same normalized string.
type acronymExpansion struct {
	pattern   *regexp.Regexp
	expansion string
}

var acronyms = []acronymExpansion{
	{regexp.MustCompile(`\bwotc\b`), "work opportunity tax credit"},
	{regexp.MustCompile(`\bojt\b`), "on the job training"},
	{regexp.MustCompile(`\bwioa\b`), "workforce innovation and opportunity act"},
	{regexp.MustCompile(`\btanf\b`), "temporary assistance for needy families"},
	{regexp.MustCompile(`\bsnap\b`), "supplemental nutrition assistance program"},
	{regexp.MustCompile(`\bedge\b`), "economic development for a growing economy"},
	{regexp.MustCompile(`\bez\b`), "enterprise zone"},
	{regexp.MustCompile(`\bnpwe\b`), "non paid work experience"},
	{regexp.MustCompile(`\bsei\b`), "special employer incentives"},
	{regexp.MustCompile(`\bvra\b`), "vocational rehabilitation"},
	{regexp.MustCompile(`\bvr&e\b`), "vocational rehabilitation and employment"},
	{regexp.MustCompile(`\bhire\b`), "hiring incentives to restore employment"},
	{regexp.MustCompile(`\bcte\b`), "career and technical education"},
}

var (
	nonWord    = regexp.MustCompile(`[^\w\s]`)
	multiSpace = regexp.MustCompile(`\s+`)

	// Strips combining marks after NFD decomposition, so "José" and "Jose"
	// normalize identically.
	diacriticFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Normalize produces the comparison form of a program name: lowercased,
// diacritic-folded, acronyms expanded, punctuation stripped, whitespace
// collapsed.
//
// Suffixes like "program", "credit", or "act" are intentionally kept; the
// original matcher stripped them and collided distinct programs (e.g. "Youth
// Employment Program" vs "Youth Employment Grant").
func Normalize(name string) string {
	if name == "" {
		return ""
	}
	s := strings.ToLower(strings.TrimSpace(name))
	if folded, _, err := transform.String(diacriticFold, s); err == nil {
		s = folded
	}
	for _, a := range acronyms {
		s = a.pattern.ReplaceAllString(s, a.expansion)
	}
	s = nonWord.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Derive returns the stable id and normalized name for a program. The id is
// the SHA-256 of "normalized|tier|location_key" truncated to 16 hex chars,
// reproducible across processes and runs. It is a pure function: an empty
// raw name still yields a well-defined id, callers reject empty names
// upstream.
func Derive(rawName string, tier model.Tier, locationKey string) (id, normalized string) {
	normalized = Normalize(rawName)
	sum := sha256.Sum256([]byte(normalized + "|" + string(tier) + "|" + locationKey))
	return hex.EncodeToString(sum[:])[:idLength], normalized
}

// LocationKey builds the canonical location scope for a tier. Federal scope
// is the fixed key "federal"; narrower tiers slug their jurisdiction names,
// qualified by state so that "Springfield, IL" and "Springfield, MO" never
// share a scope.
func LocationKey(tier model.Tier, state, county, city string) (string, error) {
	switch tier {
	case model.TierFederal:
		return "federal", nil
	case model.TierState:
		if state == "" {
			return "", eris.New("identity: state tier requires a state name")
		}
		return slug(state), nil
	case model.TierCounty:
		if county == "" || state == "" {
			return "", eris.New("identity: county tier requires county and state names")
		}
		return slug(county) + "_" + slug(state), nil
	case model.TierCity:
		if city == "" || state == "" {
			return "", eris.New("identity: city tier requires city and state names")
		}
		return slug(city) + "_" + slug(state), nil
	}
	return "", eris.Errorf("identity: unknown tier %q", tier)
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}
