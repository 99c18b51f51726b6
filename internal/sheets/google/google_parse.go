package google

import (
	"fmt"
	"strconv"
	"strings"

	"moneyflow/internal/core"
)

// Column layout of the ledger sheet, A through K.
var header = []any{"ID", "Date", "Type", "Amount", "Currency", "Account", "Target account", "Category", "Note", "Rule", "Status"}

const (
	firstCol  = "A"
	lastCol   = "K"
	statusCol = "K"
)

// toRow flattens a ledger entry into one sheet row.
func toRow(t core.Transaction, status string) []any {
	return []any{
		strconv.FormatInt(t.ID, 10),
		t.Date.String(),
		string(t.Type),
		core.FormatAmount(t.Amount),
		t.Currency,
		strconv.FormatInt(t.AccountID, 10),
		optionalID(t.TargetAccountID),
		optionalID(t.CategoryID),
		t.Note,
		optionalID(t.RuleID),
		status,
	}
}

func optionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

// findRow returns the 1-based sheet row whose first column holds id, or 0.
func findRow(values [][]any, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == want {
			return i + 1
		}
	}
	return 0
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

func rowRange(sheet string, row int) string {
	return fmt.Sprintf("%s!%s%d:%s%d", sheet, firstCol, row, lastCol, row)
}
