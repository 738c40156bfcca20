// Package formats holds the static descriptors for every known statement and
// processor feed layout, and the heuristics that pick one for a raw file.
//
// A descriptor is pure data: header aliases per logical field, the declared
// date layout, the reference prefix, and the brand identifiers used for
// auto-detection. One generic catch-all descriptor always exists, so detection
// never rejects a file outright; parse quality is instead reflected in per-row
// confidence downstream.
package formats

import "strings"

// Descriptor is the immutable metadata for one known source format.
type Descriptor struct {
	Name             string
	ReferenceHeaders []string
	AmountHeaders    []string
	DateHeaders      []string
	DateLayout       string
	ReferencePrefix  string
	Identifiers      []string
}

// IsGeneric reports whether this is the catch-all descriptor.
func (d *Descriptor) IsGeneric() bool {
	return d.Name == Generic.Name
}

// Generic is the positional catch-all descriptor returned when nothing else
// matches.
var Generic = Descriptor{
	Name:             "Generic",
	ReferenceHeaders: []string{"REFERENCE", "REF", "ID"},
	AmountHeaders:    []string{"AMOUNT", "DEBIT", "CREDIT"},
	DateHeaders:      []string{"DATE", "TRANS DATE", "VALUE DATE"},
	DateLayout:       "02/01/2006",
}

// Known is the registry of supported formats, in detection priority order.
// Generic is intentionally excluded; it is the fallback, not a candidate.
var Known = []Descriptor{
	{
		Name:             "GTBank",
		ReferenceHeaders: []string{"PAYMENT_REF", "TRANS REF", "TRANSACTION REF", "GTB REF"},
		AmountHeaders:    []string{"AMOUNT", "DEBIT", "CREDIT"},
		DateHeaders:      []string{"SETTLEMENT_DATE", "TXN DATE", "VALUE DATE"},
		DateLayout:       "02/01/2006",
		ReferencePrefix:  "GTB-",
		Identifiers:      []string{"GTB", "GUARANTY", "GTBANK"},
	},
	{
		Name:             "AccessBank",
		ReferenceHeaders: []string{"REFERENCE", "REF NO", "TRANS REF"},
		AmountHeaders:    []string{"AMOUNT", "DEBIT AMT", "CREDIT AMT"},
		DateHeaders:      []string{"POST DATE", "VALUE DATE", "TRANS DATE"},
		DateLayout:       "02-Jan-2006",
		ReferencePrefix:  "ACC-",
		Identifiers:      []string{"ACCESS", "ACC-", "DIAMOND"},
	},
	{
		Name:             "ZenithBank",
		ReferenceHeaders: []string{"TRANS ID", "REFERENCE", "REF"},
		AmountHeaders:    []string{"DR AMOUNT", "CR AMOUNT", "AMOUNT"},
		DateHeaders:      []string{"TRANS DATE", "VALUE DATE"},
		DateLayout:       "02/01/2006",
		ReferencePrefix:  "ZEN-",
		Identifiers:      []string{"ZENITH", "ZEN-", "ZENB"},
	},
	{
		Name:             "FirstBank",
		ReferenceHeaders: []string{"REFERENCE", "TRANS REF", "TRANSACTION REFERENCE"},
		AmountHeaders:    []string{"DEBIT", "CREDIT", "AMOUNT"},
		DateHeaders:      []string{"TRANSACTION DATE", "VALUE DATE", "POST DATE"},
		DateLayout:       "2006-01-02",
		ReferencePrefix:  "FBN-",
		Identifiers:      []string{"FIRST BANK", "FBN", "FIRSTBANK"},
	},
	{
		Name:             "UBA",
		ReferenceHeaders: []string{"TRAN REF", "REFERENCE", "REF NO"},
		AmountHeaders:    []string{"DEBIT", "CREDIT", "DR", "CR"},
		DateHeaders:      []string{"TRAN DATE", "TRANS DATE", "VALUE DATE"},
		DateLayout:       "02/01/2006",
		ReferencePrefix:  "UBA-",
		Identifiers:      []string{"UBA", "UNITED BANK"},
	},
	{
		Name:             "StanbicIBTC",
		ReferenceHeaders: []string{"TRANS REF", "REFERENCE"},
		AmountHeaders:    []string{"DEBIT", "CREDIT"},
		DateHeaders:      []string{"DATE", "VALUE DATE", "POST DATE"},
		DateLayout:       "02/01/2006",
		ReferencePrefix:  "STB-",
		Identifiers:      []string{"STANBIC", "IBTC", "STB-"},
	},
	{
		Name:             "Ecobank",
		ReferenceHeaders: []string{"REFERENCE", "TRANS REF"},
		AmountHeaders:    []string{"DEBIT", "CREDIT", "AMOUNT"},
		DateHeaders:      []string{"VALUE DATE", "TRANS DATE"},
		DateLayout:       "02-01-2006",
		ReferencePrefix:  "ECO-",
		Identifiers:      []string{"ECOBANK", "ECO-"},
	},
	{
		Name:             "FidelityBank",
		ReferenceHeaders: []string{"REF", "REFERENCE", "TRANS REF"},
		AmountHeaders:    []string{"DR", "CR", "DEBIT", "CREDIT"},
		DateHeaders:      []string{"TRANS DATE", "VALUE DATE"},
		DateLayout:       "02/01/2006",
		ReferencePrefix:  "FID-",
		Identifiers:      []string{"FIDELITY", "FID-"},
	},
	{
		Name:             "UnionBank",
		ReferenceHeaders: []string{"TRAN ID", "REFERENCE"},
		AmountHeaders:    []string{"DEBIT", "CREDIT"},
		DateHeaders:      []string{"TRANS DATE", "VALUE DATE"},
		DateLayout:       "02/01/2006",
		ReferencePrefix:  "UNB-",
		Identifiers:      []string{"UNION BANK", "UNB-"},
	},
	{
		Name:             "Paystack",
		ReferenceHeaders: []string{"REFERENCE", "PAYMENT_REFERENCE", "ID"},
		AmountHeaders:    []string{"AMOUNT", "NET_AMOUNT"},
		DateHeaders:      []string{"PAID_AT", "CREATED_AT", "DATE"},
		DateLayout:       "2006-01-02T15:04:05",
		ReferencePrefix:  "PSK_",
		Identifiers:      []string{"PAYSTACK", "PSK_", "PS-"},
	},
	{
		Name:             "Flutterwave",
		ReferenceHeaders: []string{"TX_REF", "FLUTTERWAVEREF", "REFERENCE"},
		AmountHeaders:    []string{"AMOUNT", "CHARGED_AMOUNT"},
		DateHeaders:      []string{"CREATED_AT", "DATE"},
		DateLayout:       "2006-01-02 15:04:05",
		ReferencePrefix:  "FLW-",
		Identifiers:      []string{"FLUTTERWAVE", "FLW-", "RAVE"},
	},
}

// ByName returns the descriptor with the given name (case-insensitive),
// accepting either the display name or its uppercase form. Unknown names
// resolve to Generic.
func ByName(name string) *Descriptor {
	for i := range Known {
		if strings.EqualFold(Known[i].Name, name) {
			return &Known[i]
		}
	}
	return &Generic
}

// KnownPrefixes returns every non-empty reference prefix in registry order.
// The reference normalizer consults this when no descriptor is supplied.
func KnownPrefixes() []string {
	prefixes := make([]string, 0, len(Known))
	for i := range Known {
		if Known[i].ReferencePrefix != "" {
			prefixes = append(prefixes, Known[i].ReferencePrefix)
		}
	}
	return prefixes
}
