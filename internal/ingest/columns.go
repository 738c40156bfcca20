package ingest

import (
	"fmt"
	"strings"

	"payment-reconciliation-service/internal/formats"
)

// ColumnMap resolves logical fields to header positions. -1 marks a field the
// header does not carry; the row parser falls back positionally or leaves the
// field empty.
type ColumnMap struct {
	Reference int
	Amount    int
	Debit     int
	Credit    int
	Date      int
	Status    int
	Type      int
	Narration int
	Customer  int
	Currency  int

	Warnings []string
}

var (
	amountAliases    = []string{"AMOUNT", "NET_AMOUNT", "CHARGED_AMOUNT", "TRANSACTION AMOUNT"}
	debitAliases     = []string{"DEBIT", "DEBIT AMT", "DR AMOUNT", "DR"}
	creditAliases    = []string{"CREDIT", "CREDIT AMT", "CR AMOUNT", "CR"}
	statusAliases    = []string{"STATUS", "TRANS STATUS", "STATE"}
	typeAliases      = []string{"TYPE", "TRANS TYPE", "TRANSACTION TYPE", "DR/CR"}
	narrationAliases = []string{"NARRATION", "DESCRIPTION", "REMARKS", "DETAILS", "PARTICULARS"}
	customerAliases  = []string{"CUSTOMER", "CUSTOMER ID", "ACCOUNT", "ACCOUNT NO", "EMAIL", "BENEFICIARY"}
	currencyAliases  = []string{"CURRENCY", "CCY", "CUR"}
)

// MapColumns resolves the descriptor's header aliases against an actual
// header row. Date resolution prefers transaction-time columns over value
// dates, since value dates shift on weekends and distort matching windows.
func MapColumns(header []string, desc *formats.Descriptor) ColumnMap {
	cm := ColumnMap{
		Reference: -1, Amount: -1, Debit: -1, Credit: -1, Date: -1,
		Status: -1, Type: -1, Narration: -1, Customer: -1, Currency: -1,
	}
	upper := make([]string, len(header))
	for i, h := range header {
		upper[i] = strings.ToUpper(strings.TrimSpace(h))
	}

	cm.Reference = findColumn(upper, desc.ReferenceHeaders)
	cm.Debit = findColumn(upper, debitAliases)
	cm.Credit = findColumn(upper, creditAliases)
	// the debit and credit columns often contain "AMOUNT" in their headers;
	// resolve them first and keep the amount column distinct
	cm.Amount = findColumnExcluding(upper, amountAliases, cm.Debit, cm.Credit)
	cm.Date = findDateColumn(upper, desc.DateHeaders)
	cm.Status = findColumn(upper, statusAliases)
	cm.Type = findColumn(upper, typeAliases)
	cm.Narration = findColumn(upper, narrationAliases)
	cm.Customer = findColumn(upper, customerAliases)
	cm.Currency = findColumn(upper, currencyAliases)

	if cm.Amount == -1 && cm.Debit == -1 && cm.Credit == -1 {
		cm.Warnings = append(cm.Warnings,
			fmt.Sprintf("no amount column found in header for format %s; positional fallback in effect", desc.Name))
	}
	return cm
}

// findColumn returns the index of the first header matching any alias, in
// alias priority order.
func findColumn(upper []string, aliases []string) int {
	return findColumnExcluding(upper, aliases)
}

func findColumnExcluding(upper []string, aliases []string, exclude ...int) int {
	skip := func(i int) bool {
		for _, e := range exclude {
			if i == e {
				return true
			}
		}
		return false
	}
	for _, alias := range aliases {
		ua := strings.ToUpper(alias)
		for i, h := range upper {
			if !skip(i) && h == ua {
				return i
			}
		}
	}
	// second pass: substring match for headers like "TRANS REF NO"
	for _, alias := range aliases {
		ua := strings.ToUpper(alias)
		for i, h := range upper {
			if !skip(i) && strings.Contains(h, ua) {
				return i
			}
		}
	}
	return -1
}

// findDateColumn applies the descriptor's date aliases first, then generic
// fallbacks, preferring transaction dates over value dates within each tier.
func findDateColumn(upper []string, descAliases []string) int {
	preferred := make([]string, 0, len(descAliases))
	deferred := make([]string, 0, 2)
	for _, a := range descAliases {
		if strings.Contains(strings.ToUpper(a), "VALUE") {
			deferred = append(deferred, a)
		} else {
			preferred = append(preferred, a)
		}
	}
	if idx := findColumn(upper, preferred); idx >= 0 {
		return idx
	}
	if idx := findColumn(upper, deferred); idx >= 0 {
		return idx
	}
	return findColumn(upper, []string{"TRANS DATE", "TRANSACTION DATE", "DATE", "VALUE DATE"})
}
