package qbo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Staxx7/quickscope-sub003/internal/domain"
)

// Report is the flattened form of a QBO report: section label to total amount.
// QBO nests totals arbitrarily deep in Rows/ColData; flattening here keeps the
// naming drift of the raw payloads out of the rest of the codebase.
type Report struct {
	Name   string
	Totals map[string]float64
}

// Total returns the first matching section total among the given labels.
func (r *Report) Total(labels ...string) float64 {
	if r == nil {
		return 0
	}
	for _, label := range labels {
		if v, ok := r.Totals[normalizeLabel(label)]; ok {
			return v
		}
	}
	return 0
}

func parseReport(raw map[string]any) (*Report, error) {
	report := &Report{Totals: make(map[string]float64)}

	if header, ok := raw["Header"].(map[string]any); ok {
		report.Name = stringValue(header["ReportName"])
	}

	rows, ok := raw["Rows"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("report rows missing")
	}
	collectRows(rows, report.Totals)
	return report, nil
}

func collectRows(rows map[string]any, totals map[string]float64) {
	items, _ := rows["Row"].([]any)
	for _, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}

		if summary, ok := row["Summary"].(map[string]any); ok {
			label, amount, ok := summaryTotal(summary)
			if ok {
				totals[normalizeLabel(label)] = amount
			}
		}

		if nested, ok := row["Rows"].(map[string]any); ok {
			collectRows(nested, totals)
		}
	}
}

func summaryTotal(summary map[string]any) (string, float64, bool) {
	cols, _ := summary["ColData"].([]any)
	if len(cols) < 2 {
		return "", 0, false
	}
	first, _ := cols[0].(map[string]any)
	last, _ := cols[len(cols)-1].(map[string]any)
	if first == nil || last == nil {
		return "", 0, false
	}
	label := strings.TrimSpace(stringValue(first["value"]))
	label = strings.TrimPrefix(label, "Total ")
	amount, err := strconv.ParseFloat(strings.ReplaceAll(stringValue(last["value"]), ",", ""), 64)
	if err != nil {
		return "", 0, false
	}
	return label, amount, true
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// BuildSnapshot maps the flattened P&L and balance-sheet reports onto the one
// canonical snapshot shape. Source payloads drift between net_income/profit
// and assets/total_assets style names; that drift stops here.
func BuildSnapshot(companyID string, pnl, balance *Report, prior *domain.FinancialSnapshot) domain.FinancialSnapshot {
	revenue := pnl.Total("Income", "Total Income", "Revenue")
	expenses := pnl.Total("Expenses", "Total Expenses")
	cogs := pnl.Total("Cost of Goods Sold", "COGS")
	netIncome := pnl.Total("Net Income", "Profit", "Net Operating Income")
	if netIncome == 0 && revenue != 0 {
		netIncome = revenue - cogs - expenses
	}

	assets := balance.Total("Assets", "Total Assets")
	liabilities := balance.Total("Liabilities", "Total Liabilities")
	currentAssets := balance.Total("Current Assets", "Total Current Assets")
	currentLiabilities := balance.Total("Current Liabilities", "Total Current Liabilities")
	equity := balance.Total("Equity", "Total Equity")
	if equity == 0 {
		equity = assets - liabilities
	}

	snap := domain.FinancialSnapshot{
		CompanyID:        companyID,
		Revenue:          revenue,
		Expenses:         expenses,
		NetIncome:        netIncome,
		TotalAssets:      assets,
		TotalLiabilities: liabilities,
	}

	if currentLiabilities != 0 {
		snap.CurrentRatio = currentAssets / currentLiabilities
	}
	if equity != 0 {
		snap.DebtToEquity = liabilities / equity
	}
	if revenue != 0 {
		snap.OperatingMargin = (revenue - expenses) / revenue * 100
		snap.GrossMargin = (revenue - cogs) / revenue * 100
	}
	if prior != nil && prior.Revenue != 0 {
		snap.RevenueGrowthRate = (revenue - prior.Revenue) / prior.Revenue * 100
	}

	return snap
}
