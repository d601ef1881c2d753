package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"astock-crawler/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTushare(t *testing.T, handler http.Handler) *Tushare {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewTushare(server.URL, "test-token", 5*time.Second, 0, newTestLogger(t))
}

func TestTushareFetchSummary(t *testing.T) {
	source := newTestTushare(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tushareRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "top_list", req.APIName)
		assert.Equal(t, "test-token", req.Token)
		assert.Equal(t, "20241220", req.Params["trade_date"])

		fmt.Fprint(w, `{"code":0,"msg":"","data":{
			"fields":["ts_code","name","close","pct_change","amount","net_amount","reason"],
			"items":[
				["000001.SZ","平安银行",9.87,-1.2,1230000000,-50000000,"日涨幅偏离值达7%"],
				["600519.SH","贵州茅台",1688.0,2.1,4560000000,320000000,"日换手率达20%"]
			]}}`)
	}))

	result, err := source.FetchSummary(context.Background(), "2024-12-20")
	require.NoError(t, err)
	require.Len(t, result.Records, 2)

	first := result.Records[0]
	assert.Equal(t, "000001", first.StockCode)
	assert.Equal(t, "20241220", first.TradeDate)
	assert.Equal(t, "tushare", first.DataSource)
	require.NotNil(t, first.NetBuyAmount)
	// top_list money fields arrive in base-unit CNY and must not be rescaled.
	assert.InDelta(t, -50_000_000, *first.NetBuyAmount, 1)
	require.NotNil(t, first.Turnover)
	assert.InDelta(t, 1_230_000_000, *first.Turnover, 1)
	assert.Equal(t, []string{"日涨幅偏离值达7%"}, []string(first.Reasons))
}

func TestTushareFetchSummaryAPIError(t *testing.T) {
	source := newTestTushare(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":40001,"msg":"token invalid","data":{"fields":[],"items":[]}}`)
	}))

	_, err := source.FetchSummary(context.Background(), "2024-12-20")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestTushareFetchDetailSplitsAndRanks(t *testing.T) {
	source := newTestTushare(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tushareRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "top_inst", req.APIName)
		assert.Equal(t, "000001.SZ", req.Params["ts_code"])

		fmt.Fprint(w, `{"code":0,"msg":"","data":{
			"fields":["exalter","buy","buy_rate","sell","sell_rate"],
			"items":[
				["中信证券上海分公司",42000000,2.8,0,0],
				["机构专用",50000000,3.2,0,0],
				["华泰证券深圳益田路",0,0,31000000,2.1]
			]}}`)
	}))

	result, err := source.FetchDetail(context.Background(), "000001", "2024-12-20")
	require.NoError(t, err)

	buys := filterByType(result.Records, entity.TradeTypeBuy)
	sells := filterByType(result.Records, entity.TradeTypeSell)
	require.Len(t, buys, 2)
	require.Len(t, sells, 1)

	// Buy seats are ranked by amount descending regardless of response order.
	assert.Equal(t, "机构专用", buys[0].Department)
	assert.Equal(t, 1, buys[0].Rank)
	assert.Equal(t, "中信证券上海分公司", buys[1].Department)
	assert.Equal(t, 2, buys[1].Rank)
}

func TestTushareFetchDailyBarsScalesAmount(t *testing.T) {
	source := newTestTushare(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tushareRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "daily", req.APIName)

		fmt.Fprint(w, `{"code":0,"msg":"","data":{
			"fields":["trade_date","open","high","low","close","vol","amount","pct_chg"],
			"items":[
				["20241220",9.8,10.1,9.7,9.87,1250000,1234567.8,-1.2]
			]}}`)
	}))

	bars, err := source.FetchDailyBars(context.Background(), "000001", "20241201", "20241220")
	require.NoError(t, err)
	require.Len(t, bars, 1)

	// daily reports amount in thousand-CNY; stored bars hold base-unit CNY.
	require.NotNil(t, bars[0].Amount)
	assert.InDelta(t, 1_234_567_800, *bars[0].Amount, 1)
	require.NotNil(t, bars[0].Close)
	assert.InDelta(t, 9.87, *bars[0].Close, 0.001)
	require.NotNil(t, bars[0].Volume)
	assert.InDelta(t, 1_250_000, *bars[0].Volume, 1)
}

func TestExchangeSuffix(t *testing.T) {
	assert.Equal(t, "000001", stripExchangeSuffix("000001.SZ"))
	assert.Equal(t, "600519", stripExchangeSuffix("600519.SH"))
	assert.Equal(t, "600519.SH", withExchangeSuffix("600519"))
	assert.Equal(t, "000001.SZ", withExchangeSuffix("000001"))
	assert.Equal(t, "830799.BJ", withExchangeSuffix("830799"))
}
