package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"astock-crawler/internal/entity"
	"astock-crawler/pkg/common"
	"astock-crawler/pkg/logger"
	"astock-crawler/pkg/utils"

	"golang.org/x/time/rate"
)

// Tushare is the fallback variant: a structured-data provider with a stable
// JSON schema, queried by compact dates and exchange-suffixed codes. It also
// backs the stock list and daily bar refresh jobs.
type Tushare struct {
	apiURL  string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewTushare creates the fallback structured-data source.
func NewTushare(apiURL, token string, timeout time.Duration, maxRequestPerMinute int, log *logger.Logger) *Tushare {
	var limiter *rate.Limiter
	if maxRequestPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(maxRequestPerMinute)), 1)
	}
	return &Tushare{
		apiURL:  apiURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		log:     log,
	}
}

// Name returns the source identifier recorded on persisted rows.
func (s *Tushare) Name() string {
	return common.SourceTushare
}

type tushareRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

type tushareResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string        `json:"fields"`
		Items  [][]interface{} `json:"items"`
	} `json:"data"`
}

// FetchSummary queries the top_list endpoint for one trade date. The
// endpoint reports amount and net_amount in base-unit CNY already, so the
// money fields pass through unscaled and line up with the primary source's
// normalized values.
func (s *Tushare) FetchSummary(ctx context.Context, tradeDate string) (*SummaryResult, error) {
	compact := utils.CompactDate(tradeDate)
	rows, err := s.query(ctx, "top_list", map[string]string{"trade_date": compact},
		"ts_code,name,close,pct_change,amount,net_amount,reason")
	if err != nil {
		return nil, NewSourceError(s.Name(), err)
	}

	result := &SummaryResult{}
	for _, row := range rows {
		code := stripExchangeSuffix(row.str("ts_code"))
		if code == "" {
			result.SkippedRows++
			continue
		}
		reason := row.str("reason")
		result.Records = append(result.Records, entity.DragonTigerSummary{
			StockCode:    code,
			StockName:    row.str("name"),
			TradeDate:    compact,
			ClosePrice:   row.num("close"),
			ChangeRate:   row.num("pct_change"),
			Turnover:     row.num("amount"),
			NetBuyAmount: row.num("net_amount"),
			Reason:       reason,
			Reasons:      []string{reason},
			DataSource:   s.Name(),
		})
	}

	s.log.Info("Fetched dragon-tiger summary",
		logger.StringField("source", s.Name()),
		logger.StringField("trade_date", tradeDate),
		logger.IntField("rows", len(result.Records)))

	return result, nil
}

// FetchDetail queries the top_inst endpoint; one response row carries a
// seat's buy and sell amounts (base-unit CNY, no scaling needed), so it is
// split into the two trade types and ranked by amount within each.
func (s *Tushare) FetchDetail(ctx context.Context, stockCode, tradeDate string) (*DetailResult, error) {
	compact := utils.CompactDate(tradeDate)
	rows, err := s.query(ctx, "top_inst", map[string]string{
		"trade_date": compact,
		"ts_code":    withExchangeSuffix(stockCode),
	}, "exalter,buy,buy_rate,sell,sell_rate")
	if err != nil {
		return nil, NewSourceError(s.Name(), err)
	}

	type seat struct {
		department string
		amount     *float64
		ratio      *float64
	}
	var buys, sells []seat
	result := &DetailResult{}

	for _, row := range rows {
		department := row.str("exalter")
		if department == "" {
			result.SkippedRows++
			continue
		}
		if amount := row.num("buy"); amount != nil && *amount > 0 {
			buys = append(buys, seat{department, amount, row.num("buy_rate")})
		}
		if amount := row.num("sell"); amount != nil && *amount > 0 {
			sells = append(sells, seat{department, amount, row.num("sell_rate")})
		}
	}

	appendRanked := func(seats []seat, tradeType entity.TradeType) {
		sort.SliceStable(seats, func(i, j int) bool { return *seats[i].amount > *seats[j].amount })
		for i, st := range seats {
			result.Records = append(result.Records, entity.DragonTigerDetail{
				StockCode:  stockCode,
				TradeDate:  compact,
				TradeType:  tradeType,
				Rank:       i + 1,
				Department: st.department,
				Amount:     st.amount,
				Ratio:      st.ratio,
				DataSource: s.Name(),
			})
		}
	}
	appendRanked(buys, entity.TradeTypeBuy)
	appendRanked(sells, entity.TradeTypeSell)

	return result, nil
}

// FetchStockList queries the listed-security catalogue for the refresh job.
func (s *Tushare) FetchStockList(ctx context.Context) ([]entity.Stock, error) {
	rows, err := s.query(ctx, "stock_basic", map[string]string{"list_status": "L"},
		"ts_code,symbol,name,industry,exchange")
	if err != nil {
		return nil, NewSourceError(s.Name(), err)
	}

	var stocks []entity.Stock
	for _, row := range rows {
		code := row.str("symbol")
		if code == "" {
			code = stripExchangeSuffix(row.str("ts_code"))
		}
		if code == "" {
			continue
		}
		stocks = append(stocks, entity.Stock{
			Code:     code,
			Name:     row.str("name"),
			Industry: row.str("industry"),
			Exchange: row.str("exchange"),
			IsActive: true,
		})
	}
	return stocks, nil
}

// dailyAmountScale converts the daily endpoint's turnover to base-unit CNY.
// Unlike top_list, daily reports amount in thousand-CNY.
const dailyAmountScale = 1000

// FetchDailyBars queries daily bars for one stock and date range (compact
// dates, inclusive). Volume stays in lots as delivered; amount is rescaled
// to base-unit CNY.
func (s *Tushare) FetchDailyBars(ctx context.Context, stockCode, startDate, endDate string) ([]entity.StockDaily, error) {
	rows, err := s.query(ctx, "daily", map[string]string{
		"ts_code":    withExchangeSuffix(stockCode),
		"start_date": startDate,
		"end_date":   endDate,
	}, "trade_date,open,high,low,close,vol,amount,pct_chg")
	if err != nil {
		return nil, NewSourceError(s.Name(), err)
	}

	var bars []entity.StockDaily
	for _, row := range rows {
		tradeDate := row.str("trade_date")
		if tradeDate == "" {
			continue
		}
		bars = append(bars, entity.StockDaily{
			StockCode: stockCode,
			TradeDate: tradeDate,
			Open:      row.num("open"),
			High:      row.num("high"),
			Low:       row.num("low"),
			Close:     row.num("close"),
			Volume:    row.num("vol"),
			Amount:    scaleNum(row.num("amount"), dailyAmountScale),
			PctChange: row.num("pct_chg"),
		})
	}
	return bars, nil
}

// record is one response row keyed by field name.
type record map[string]interface{}

func (r record) str(field string) string {
	if v, ok := r[field].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (r record) num(field string) *float64 {
	if v, ok := r[field].(float64); ok {
		return &v
	}
	return nil
}

func scaleNum(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	scaled := *v * factor
	return &scaled
}

func (s *Tushare) query(ctx context.Context, apiName string, params map[string]string, fields string) ([]record, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	payload, err := json.Marshal(tushareRequest{
		APIName: apiName,
		Token:   s.token,
		Params:  params,
		Fields:  fields,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed tushareResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Code != 0 {
		return nil, fmt.Errorf("api error %d: %s", parsed.Code, parsed.Msg)
	}

	records := make([]record, 0, len(parsed.Data.Items))
	for _, item := range parsed.Data.Items {
		row := record{}
		for i, field := range parsed.Data.Fields {
			if i < len(item) {
				row[field] = item[i]
			}
		}
		records = append(records, row)
	}
	return records, nil
}

// stripExchangeSuffix converts "000001.SZ" to "000001".
func stripExchangeSuffix(tsCode string) string {
	code, _, _ := strings.Cut(tsCode, ".")
	if len(code) != 6 {
		return ""
	}
	return code
}

// withExchangeSuffix converts a bare 6-digit code to the provider's
// exchange-qualified convention. Shanghai codes start with 6, Beijing with
// 4 or 8, everything else is Shenzhen.
func withExchangeSuffix(code string) string {
	if len(code) != 6 {
		return code
	}
	switch code[0] {
	case '6':
		return code + ".SH"
	case '4', '8':
		return code + ".BJ"
	default:
		return code + ".SZ"
	}
}
