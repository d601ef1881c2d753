package htmlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSummaryRows(t *testing.T) {
	html := `<html><body><table class="m-table"><tbody>
	<tr>
		<td><label>连续三日涨跌幅偏离值达20%</label></td>
		<td>000001</td>
		<td><a href="/stock/000001">平安银行</a></td>
		<td>9.87</td>
		<td>-1.2%</td>
		<td>12.3亿</td>
		<td>-0.5亿</td>
	</tr>
	</tbody></table></body></html>`

	doc := parseDoc(t, html)
	candidate, err := NewLocator().Locate(doc)
	require.NoError(t, err)

	extract := NewExtractor().ExtractSummaryRows(candidate.Table)
	require.Len(t, extract.Rows, 1)
	assert.Empty(t, extract.Skipped)

	row := extract.Rows[0]
	assert.Equal(t, "000001", row.StockCode)
	assert.Equal(t, "平安银行", row.StockName)
	assert.Equal(t, "连续三日涨跌幅偏离值达20%", row.Reason)
	require.NotNil(t, row.ClosePrice)
	assert.InDelta(t, 9.87, *row.ClosePrice, 1e-6)
	require.NotNil(t, row.ChangeRate)
	assert.InDelta(t, -1.2, *row.ChangeRate, 1e-6)
	require.NotNil(t, row.Turnover)
	assert.InDelta(t, 1_230_000_000, *row.Turnover, 1)
	require.NotNil(t, row.NetBuyAmount)
	assert.InDelta(t, -50_000_000, *row.NetBuyAmount, 1)
}

func TestExtractSummaryRowsSkipsInvalidRows(t *testing.T) {
	html := `<html><body><table><tbody>
	<tr><td></td><td>000002</td><td>万科A</td><td>8.00</td><td>1.0%</td><td>5.0亿</td><td>0.3亿</td></tr>
	<tr><td>short row</td><td>only two cells</td></tr>
	<tr><td></td><td>BAD001</td><td>not a code</td><td>1</td><td>2</td><td>3</td><td>4</td></tr>
	</tbody></table></body></html>`

	doc := parseDoc(t, html)
	table := doc.Find("table").First()

	extract := NewExtractor().ExtractSummaryRows(table)
	require.Len(t, extract.Rows, 1)
	assert.Equal(t, "000002", extract.Rows[0].StockCode)

	require.Len(t, extract.Skipped, 2)
	assert.Equal(t, 1, extract.Skipped[0].Index)
	assert.Contains(t, extract.Skipped[0].Reason, "columns")
	assert.Equal(t, 2, extract.Skipped[1].Index)
	assert.Contains(t, extract.Skipped[1].Reason, "invalid stock code")
}

func TestExtractSummaryRowsDefaultReason(t *testing.T) {
	html := `<html><body><table><tbody>
	<tr><td></td><td>600000</td><td>浦发银行</td><td>7.50</td><td>0.5%</td><td>--</td><td>-</td></tr>
	</tbody></table></body></html>`

	table := parseDoc(t, html).Find("table").First()
	extract := NewExtractor().ExtractSummaryRows(table)
	require.Len(t, extract.Rows, 1)

	row := extract.Rows[0]
	assert.Equal(t, DefaultReason, row.Reason)
	// "--" and "-" are no-value, never zero.
	assert.Nil(t, row.Turnover)
	assert.Nil(t, row.NetBuyAmount)
}

func TestExtractDetailRowsIsolatesMalformedRow(t *testing.T) {
	// One malformed row among five must yield four records, not zero.
	html := `<html><body><table id="buy_table"><tbody>
	<tr><td>中信证券上海分公司</td><td>5000万</td><td>3.2%</td></tr>
	<tr><td>华泰证券深圳益田路</td><td>4200万</td><td>2.8%</td></tr>
	<tr><td colspan="3"></td></tr>
	<tr><td>国泰君安总部</td><td>3100万</td><td>2.1%</td></tr>
	<tr><td>机构专用</td><td>2888万</td><td>1.9%</td></tr>
	</tbody></table></body></html>`

	table := parseDoc(t, html).Find("#buy_table").First()
	extract := NewExtractor().ExtractDetailRows(table)

	require.Len(t, extract.Rows, 4)
	require.Len(t, extract.Skipped, 1)
	assert.Contains(t, extract.Skipped[0].Reason, "columns")

	// Rank must stay dense despite the skipped row.
	for i, row := range extract.Rows {
		assert.Equal(t, i+1, row.Rank)
	}
	require.NotNil(t, extract.Rows[0].Amount)
	assert.InDelta(t, 50_000_000, *extract.Rows[0].Amount, 1)
	require.NotNil(t, extract.Rows[0].Ratio)
	assert.InDelta(t, 3.2, *extract.Rows[0].Ratio, 1e-6)
}
