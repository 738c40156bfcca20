// Package refextract pulls transaction references out of free-form narration
// text and canonicalizes them for matching.
//
// Bank narrations bury the reference among transfer descriptions, customer
// names and channel noise. Extraction runs a prioritized set of patterns over
// the text, filters obvious non-references, scores the surviving candidates
// and returns the best one.
package refextract

import (
	"regexp"
	"strings"

	"payment-reconciliation-service/internal/formats"
)

// pattern pairs a compiled expression with the capture group that holds the
// candidate reference. Order encodes priority: earlier patterns describe more
// specific shapes.
type pattern struct {
	re    *regexp.Regexp
	group int
}

var patterns = []pattern{
	// processor references
	{regexp.MustCompile(`(?i)\b(PSK_[A-Za-z0-9]+|PS-[A-Za-z0-9]+)\b`), 1},
	{regexp.MustCompile(`(?i)\b(FLW-[A-Za-z0-9]+)\b`), 1},
	// labelled references: "TXN: ABC123", "REF ABC123", "TRANS REF: ABC"
	{regexp.MustCompile(`(?i)\b(?:TXN|TRANS(?:ACTION)?\s*REF(?:ERENCE)?|REF(?:ERENCE)?)\s*[:#-]?\s*([A-Za-z0-9][A-Za-z0-9\-_/]{3,})`), 1},
	// NIBSS session IDs: long uppercase alphanumeric blocks
	{regexp.MustCompile(`\b([A-Z0-9]{16,20})\b`), 1},
	// bank-prefixed references
	{regexp.MustCompile(`(?i)\b((?:GTB|ACC|ZEN|FBN|UBA|STB|ECO|FID|UNB)-[A-Za-z0-9\-]+)\b`), 1},
	{regexp.MustCompile(`(?i)\bSESSION\s*[:#-]?\s*([A-Za-z0-9]+)`), 1},
	{regexp.MustCompile(`(?i)\bMERCHANT\s*REF\s*[:#-]?\s*([A-Za-z0-9\-_]+)`), 1},
	{regexp.MustCompile(`(?i)\bORDER\s*[:#-]?\s*([A-Za-z0-9\-_]+)`), 1},
	{regexp.MustCompile(`(?i)\bINVOICE\s*[:#-]?\s*([A-Za-z0-9\-_]+)`), 1},
	// last resort: any mixed alphanumeric token of useful length
	{regexp.MustCompile(`\b([A-Za-z0-9\-_]{8,})\b`), 1},
}

// proximity keywords boost candidates that sit near obvious reference labels.
var proximityKeywords = []string{"REF", "TXN", "TRANS", "SESSION", "PAYMENT"}

// noiseWords are common tokens the broad patterns capture that are never
// references.
var noiseWords = map[string]struct{}{
	"TRANSFER": {}, "PAYMENT": {}, "DEPOSIT": {}, "WITHDRAWAL": {},
	"REVERSAL": {}, "CHARGES": {}, "COMMISSION": {}, "INTEREST": {},
	"BALANCE": {}, "NARRATION": {}, "CUSTOMER": {}, "ACCOUNT": {},
	"NIGERIA": {}, "LIMITED": {}, "SERVICES": {}, "PURCHASE": {},
	"SETTLEMENT": {}, "STATEMENT": {},
}

// Candidate is a scored reference found in narration text.
type Candidate struct {
	Value string
	Score int
}

// Extract returns the best-scoring reference found in text, or "" when
// nothing plausible survives filtering.
func Extract(text string) string {
	cands := ExtractAll(text)
	if len(cands) == 0 {
		return ""
	}
	return cands[0].Value
}

// ExtractAll returns every plausible reference in text, best first. The
// ordering is stable for equal scores: earlier patterns win.
func ExtractAll(text string) []Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var cands []Candidate
	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2*p.group], m[2*p.group+1]
			if start < 0 {
				continue
			}
			value := strings.TrimRight(text[start:end], "-_/")
			upper := strings.ToUpper(value)
			if _, dup := seen[upper]; dup {
				continue
			}
			if !plausible(upper) {
				continue
			}
			seen[upper] = struct{}{}
			cands = append(cands, Candidate{Value: value, Score: score(upper, text, start)})
		}
	}
	// insertion order already encodes pattern priority; a stable sort keeps
	// it as the tiebreaker
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0 && cands[j].Score > cands[j-1].Score; j-- {
			cands[j], cands[j-1] = cands[j-1], cands[j]
		}
	}
	return cands
}

// plausible filters tokens that pattern-match but cannot be references.
func plausible(upper string) bool {
	if len(upper) < 4 {
		return false
	}
	if _, noise := noiseWords[upper]; noise {
		return false
	}
	distinct := make(map[rune]struct{})
	for _, r := range upper {
		distinct[r] = struct{}{}
	}
	return len(distinct) > 2
}

// score rates one candidate. Longer is better, known prefixes and mixed
// alphanumeric content are strong signals, and proximity to a reference
// keyword helps. Purely numeric tokens are penalized unless long enough to be
// a session ID.
func score(upper, text string, pos int) int {
	s := 0
	if len(upper) >= 8 {
		s += 10
	}
	if len(upper) >= 12 {
		s += 10
	}
	if len(upper) >= 16 {
		s += 5
	}
	if hasKnownPrefix(upper) {
		s += 30
	}
	hasLetter, hasDigit := false, false
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if hasLetter && hasDigit {
		s += 20
	}
	if nearKeyword(text, pos) {
		s += 15
	}
	if hasDigit && !hasLetter {
		s -= 10
		if len(upper) >= 16 {
			s += 15
		}
	}
	return s
}

func hasKnownPrefix(upper string) bool {
	for _, p := range formats.KnownPrefixes() {
		if strings.HasPrefix(upper, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// nearKeyword reports whether a reference keyword appears within 20
// characters before the candidate.
func nearKeyword(text string, pos int) bool {
	start := pos - 20
	if start < 0 {
		start = 0
	}
	window := strings.ToUpper(text[start:pos])
	for _, kw := range proximityKeywords {
		if strings.Contains(window, kw) {
			return true
		}
	}
	return false
}

var separatorCleaner = strings.NewReplacer("-", "", "_", "", "/", "", " ", "", "\t", "")

// Normalize canonicalizes a reference for matching: strip the descriptor's
// brand prefix (or any known prefix when desc is nil), drop separator
// characters and uppercase. Normalize is idempotent.
func Normalize(ref string, desc *formats.Descriptor) string {
	out := strings.ToUpper(strings.TrimSpace(ref))
	if out == "" {
		return ""
	}
	if desc != nil && desc.ReferencePrefix != "" {
		out = strings.TrimPrefix(out, strings.ToUpper(desc.ReferencePrefix))
	} else {
		for _, p := range formats.KnownPrefixes() {
			up := strings.ToUpper(p)
			if strings.HasPrefix(out, up) {
				out = strings.TrimPrefix(out, up)
				break
			}
		}
	}
	return separatorCleaner.Replace(out)
}

// Match reports whether two normalized references identify the same
// transaction: exact equality, or one containing the other when the shorter
// side is at least 6 characters. Containment absorbs processors that append
// settlement suffixes to the merchant's reference.
func Match(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	return len(shorter) >= 6 && strings.Contains(longer, shorter)
}
