// Package htmlparse locates and extracts Dragon-Tiger tables from scraped
// pages. The source markup is an unversioned external contract, so table
// discovery is an ordered list of independent heuristics rather than a single
// selector.
package htmlparse

import (
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrTableNotFound reports that no heuristic matched. This is an expected
// outcome on non-trading days and must not be treated as a hard failure.
var ErrTableNotFound = errors.New("dragon-tiger table not found")

var stockCodePattern = regexp.MustCompile(`^\d{6}$`)

// headerKeywords are the column captions expected on a Dragon-Tiger board.
var headerKeywords = []string{"代码", "名称", "涨跌幅", "成交金额", "净买入"}

const headerKeywordQuorum = 3

// TableCandidate is a located table plus the confidence of the heuristic
// that matched it.
type TableCandidate struct {
	Table      *goquery.Selection
	Confidence float64
	Strategy   string
}

type locatorStrategy struct {
	name       string
	confidence float64
	match      func(doc *goquery.Document) *goquery.Selection
}

// Locator identifies the single most likely Dragon-Tiger table in a parsed
// document.
type Locator struct {
	strategies []locatorStrategy
}

// NewLocator builds the default strategy chain, strongest heuristic first.
func NewLocator() *Locator {
	return &Locator{
		strategies: []locatorStrategy{
			{name: "code_column", confidence: 0.9, match: matchByCodeColumn},
			{name: "structural_class", confidence: 0.7, match: matchByStructuralClass},
			{name: "header_keywords", confidence: 0.5, match: matchByHeaderKeywords},
		},
	}
}

// Locate runs the strategies in order and returns the first match.
func (l *Locator) Locate(doc *goquery.Document) (*TableCandidate, error) {
	for _, s := range l.strategies {
		if table := s.match(doc); table != nil {
			return &TableCandidate{Table: table, Confidence: s.confidence, Strategy: s.name}, nil
		}
	}
	return nil, ErrTableNotFound
}

// matchByCodeColumn finds a table whose first body row carries a 6-digit
// stock code in the second column. The live page sometimes drops its
// semantic CSS classes, so this structural check comes first.
func matchByCodeColumn(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		firstRow := table.Find("tbody tr").First()
		if firstRow.Length() == 0 {
			return true
		}
		cells := firstRow.Find("td")
		if cells.Length() < 6 {
			return true
		}
		code := strings.TrimSpace(cells.Eq(1).Text())
		if stockCodePattern.MatchString(code) {
			found = table
			return false
		}
		return true
	})
	return found
}

// matchByStructuralClass finds a populated table carrying the source site's
// conventional class name.
func matchByStructuralClass(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("table.m-table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		if table.Find("tbody tr").Length() > 0 {
			found = table
			return false
		}
		return true
	})
	return found
}

// matchByHeaderKeywords finds a table whose header text mentions a quorum of
// domain column captions.
func matchByHeaderKeywords(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		header := table.Find("thead").Text()
		if header == "" {
			header = table.Find("tr").First().Text()
		}
		hits := 0
		for _, kw := range headerKeywords {
			if strings.Contains(header, kw) {
				hits++
			}
		}
		if hits >= headerKeywordQuorum {
			found = table
			return false
		}
		return true
	})
	return found
}
