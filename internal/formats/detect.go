package formats

import (
	"strings"
)

// headerKeywords mark a line as a probable column header. A line containing
// at least two of these within the leading window is taken as the header row.
// Ordered longest-first so nested keywords (REF inside REFERENCE, TRANS
// inside TRANSACTION) are consumed by the longer match and never counted
// twice.
var headerKeywords = []string{
	"TRANSACTION", "REFERENCE", "PAYMENT", "AMOUNT", "CREDIT", "STATUS",
	"DEBIT", "TRANS", "VALUE", "DATE", "REF",
}

// headerScanWindow bounds how many leading lines are inspected for a header.
// Bank exports routinely carry account summaries and disclaimers above the
// actual grid.
const headerScanWindow = 10

// Detection is the outcome of format auto-detection for one file.
type Detection struct {
	Descriptor *Descriptor
	Delimiter  rune
	// HeaderRow is the zero-based line index of the detected header row, or
	// -1 when no header was found and positional parsing applies.
	HeaderRow int
	// SkipRows is the number of leading lines (preamble plus the header
	// itself) the row parser must discard before data begins.
	SkipRows int
}

// DetectDelimiter picks the most frequent of comma, tab and semicolon in the
// sample. Comma wins ties, matching its position as the overwhelming default.
func DetectDelimiter(sample string) rune {
	counts := map[rune]int{',': 0, '\t': 0, ';': 0}
	for _, r := range sample {
		if _, ok := counts[r]; ok {
			counts[r]++
		}
	}
	best := ','
	for _, cand := range []rune{'\t', ';'} {
		if counts[cand] > counts[best] {
			best = cand
		}
	}
	return best
}

// findHeaderRow scans the leading window of lines for the first one carrying
// at least two header keywords. Returns -1 when none qualifies.
func findHeaderRow(lines []string) int {
	limit := len(lines)
	if limit > headerScanWindow {
		limit = headerScanWindow
	}
	for i := 0; i < limit; i++ {
		upper := strings.ToUpper(lines[i])
		hits := 0
		for _, kw := range headerKeywords {
			if strings.Contains(upper, kw) {
				hits++
				// consume the match so a shorter nested keyword
				// cannot count the same text again
				upper = strings.ReplaceAll(upper, kw, "|")
			}
		}
		if hits >= 2 {
			return i
		}
	}
	return -1
}

// Detect inspects the leading content of a file and resolves the descriptor,
// delimiter and row offsets to parse it with. Resolution order:
//
//  1. brand identifiers anywhere in the scan window
//  2. a descriptor-specific reference header alias on the header row
//  3. a known reference prefix on the first data row
//  4. Generic
//
// Detect never fails; an unrecognizable file gets the Generic descriptor.
func Detect(sample string) Detection {
	lines := splitLines(sample)
	delim := DetectDelimiter(sample)
	headerRow := findHeaderRow(lines)

	det := Detection{
		Descriptor: &Generic,
		Delimiter:  delim,
		HeaderRow:  headerRow,
		SkipRows:   headerRow + 1,
	}

	windowUpper := strings.ToUpper(strings.Join(head(lines, headerScanWindow), "\n"))
	for i := range Known {
		for _, id := range Known[i].Identifiers {
			if strings.Contains(windowUpper, id) {
				det.Descriptor = &Known[i]
				return det
			}
		}
	}

	if headerRow >= 0 {
		headerUpper := strings.ToUpper(lines[headerRow])
		for i := range Known {
			for _, alias := range Known[i].ReferenceHeaders {
				// Generic aliases like REFERENCE appear in many
				// descriptors; only distinctive aliases identify a brand.
				if isDistinctiveAlias(alias) && strings.Contains(headerUpper, alias) {
					det.Descriptor = &Known[i]
					return det
				}
			}
		}
	}

	if dataRow := firstDataLine(lines, headerRow); dataRow != "" {
		upper := strings.ToUpper(dataRow)
		for i := range Known {
			if p := Known[i].ReferencePrefix; p != "" && strings.Contains(upper, p) {
				det.Descriptor = &Known[i]
				return det
			}
		}
	}

	return det
}

// isDistinctiveAlias reports whether a reference header alias is specific
// enough to identify a format on its own.
func isDistinctiveAlias(alias string) bool {
	switch alias {
	case "REFERENCE", "REF", "ID", "REF NO", "TRANS REF", "TRANSACTION REF",
		"TRANSACTION REFERENCE", "TRAN REF", "TRAN ID", "TRANS ID":
		return false
	}
	return true
}

func firstDataLine(lines []string, headerRow int) string {
	for i := headerRow + 1; i >= 0 && i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

func splitLines(sample string) []string {
	lines := strings.Split(strings.ReplaceAll(sample, "\r\n", "\n"), "\n")
	return lines
}

func head(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[:n]
}
