package htmlparse

import (
	"fmt"
	"strings"

	"astock-crawler/internal/crawler/normalize"

	"github.com/PuerkitoBio/goquery"
)

// DefaultReason is used when the board omits the listing-reason label.
const DefaultReason = "连续三个交易日内涨跌幅偏离值累计达20%"

// minimum column counts observed on the live pages.
const (
	minSummaryColumns = 7
	minDetailColumns  = 3
)

// SummaryRow is the typed intermediate form of one summary table row.
// Nil numeric fields mean the source published no value.
type SummaryRow struct {
	StockCode    string
	StockName    string
	ClosePrice   *float64
	ChangeRate   *float64
	Turnover     *float64
	NetBuyAmount *float64
	Reason       string
}

// DetailRow is the typed intermediate form of one broker-seat row.
type DetailRow struct {
	Rank       int
	Department string
	Amount     *float64
	Ratio      *float64
}

// SkippedRow records why a body row was dropped, so batch summaries can
// report skip counts instead of burying them in logs.
type SkippedRow struct {
	Index  int
	Reason string
}

// SummaryExtract is the outcome of extracting all rows of a summary table.
type SummaryExtract struct {
	Rows    []SummaryRow
	Skipped []SkippedRow
}

// DetailExtract is the outcome of extracting one buy or sell detail table.
type DetailExtract struct {
	Rows    []DetailRow
	Skipped []SkippedRow
}

// Extractor maps located tables into typed rows. A malformed row is skipped
// with a reason; it never aborts the batch.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractSummaryRows walks the body rows of a located summary table.
// Expected columns: 0 reason label, 1 stock code, 2 name (usually a link),
// 3 close price, 4 change rate, 5 turnover, 6 net buy amount.
func (e *Extractor) ExtractSummaryRows(table *goquery.Selection) SummaryExtract {
	var result SummaryExtract

	table.Find("tbody tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < minSummaryColumns {
			result.Skipped = append(result.Skipped, SkippedRow{
				Index:  i,
				Reason: fmt.Sprintf("expected at least %d columns, got %d", minSummaryColumns, cells.Length()),
			})
			return
		}

		code := strings.TrimSpace(cells.Eq(1).Text())
		if !stockCodePattern.MatchString(code) {
			result.Skipped = append(result.Skipped, SkippedRow{
				Index:  i,
				Reason: fmt.Sprintf("invalid stock code %q", code),
			})
			return
		}

		nameCell := cells.Eq(2)
		name := strings.TrimSpace(nameCell.Find("a").First().Text())
		if name == "" {
			name = strings.TrimSpace(nameCell.Text())
		}

		reason := strings.TrimSpace(cells.Eq(0).Find("label").First().Text())
		if reason == "" {
			reason = DefaultReason
		}

		result.Rows = append(result.Rows, SummaryRow{
			StockCode:    code,
			StockName:    name,
			ClosePrice:   normalize.ParseFloat(strings.TrimSpace(cells.Eq(3).Text())),
			ChangeRate:   normalize.ParsePercent(strings.TrimSpace(cells.Eq(4).Text())),
			Turnover:     normalize.ParseAmount(strings.TrimSpace(cells.Eq(5).Text())),
			NetBuyAmount: normalize.ParseAmount(strings.TrimSpace(cells.Eq(6).Text())),
			Reason:       reason,
		})
	})

	return result
}

// ExtractDetailRows walks one buy or sell table of a per-stock detail page.
// Rank is assigned by positional order within the section, starting at 1.
// Expected columns: 0 department, 1 amount, 2 ratio.
func (e *Extractor) ExtractDetailRows(table *goquery.Selection) DetailExtract {
	var result DetailExtract

	rank := 0
	table.Find("tbody tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < minDetailColumns {
			result.Skipped = append(result.Skipped, SkippedRow{
				Index:  i,
				Reason: fmt.Sprintf("expected at least %d columns, got %d", minDetailColumns, cells.Length()),
			})
			return
		}

		department := strings.TrimSpace(cells.Eq(0).Text())
		if department == "" {
			result.Skipped = append(result.Skipped, SkippedRow{Index: i, Reason: "empty department"})
			return
		}

		rank++
		result.Rows = append(result.Rows, DetailRow{
			Rank:       rank,
			Department: department,
			Amount:     normalize.ParseAmount(strings.TrimSpace(cells.Eq(1).Text())),
			Ratio:      normalize.ParsePercent(strings.TrimSpace(cells.Eq(2).Text())),
		})
	})

	return result
}
