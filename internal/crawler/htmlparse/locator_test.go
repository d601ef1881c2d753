package htmlparse

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestLocateByCodeColumn(t *testing.T) {
	// No semantic classes at all, just a code in the second column.
	html := `<html><body>
	<table><tbody><tr><td>nav</td></tr></tbody></table>
	<table><tbody>
		<tr><td></td><td>000001</td><td>平安银行</td><td>9.87</td><td>-1.2%</td><td>12.3亿</td><td>-0.5亿</td></tr>
	</tbody></table>
	</body></html>`

	candidate, err := NewLocator().Locate(parseDoc(t, html))
	require.NoError(t, err)
	assert.Equal(t, "code_column", candidate.Strategy)
	assert.InDelta(t, 0.9, candidate.Confidence, 1e-9)
	assert.Equal(t, 1, candidate.Table.Find("tbody tr").Length())
}

func TestLocateByStructuralClass(t *testing.T) {
	// Rows present but no recognizable code column, so the class heuristic
	// has to pick it up.
	html := `<html><body>
	<table class="m-table"><tbody>
		<tr><td>some</td><td>thing</td></tr>
	</tbody></table>
	</body></html>`

	candidate, err := NewLocator().Locate(parseDoc(t, html))
	require.NoError(t, err)
	assert.Equal(t, "structural_class", candidate.Strategy)
}

func TestLocateByHeaderKeywords(t *testing.T) {
	html := `<html><body>
	<table>
		<thead><tr><th>代码</th><th>名称</th><th>涨跌幅</th><th>成交金额</th></tr></thead>
	</table>
	</body></html>`

	candidate, err := NewLocator().Locate(parseDoc(t, html))
	require.NoError(t, err)
	assert.Equal(t, "header_keywords", candidate.Strategy)
}

func TestLocateHeaderKeywordsBelowQuorum(t *testing.T) {
	html := `<html><body>
	<table><thead><tr><th>代码</th><th>名称</th></tr></thead></table>
	</body></html>`

	_, err := NewLocator().Locate(parseDoc(t, html))
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestLocateNotFound(t *testing.T) {
	html := `<html><body><p>本日无数据</p></body></html>`

	_, err := NewLocator().Locate(parseDoc(t, html))
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestLocatePrefersStrongestHeuristic(t *testing.T) {
	// A page carrying both a keyword-only table and a code-column table must
	// resolve to the code-column one.
	html := `<html><body>
	<table><thead><tr><th>代码</th><th>名称</th><th>涨跌幅</th></tr></thead></table>
	<table><tbody>
		<tr><td></td><td>600519</td><td>贵州茅台</td><td>1688.00</td><td>2.1%</td><td>45.6亿</td><td>3.2亿</td></tr>
	</tbody></table>
	</body></html>`

	candidate, err := NewLocator().Locate(parseDoc(t, html))
	require.NoError(t, err)
	assert.Equal(t, "code_column", candidate.Strategy)
}
