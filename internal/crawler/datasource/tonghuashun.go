package datasource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"astock-crawler/internal/crawler/htmlparse"
	"astock-crawler/internal/entity"
	"astock-crawler/pkg/common"
	"astock-crawler/pkg/httpfetch"
	"astock-crawler/pkg/logger"
	"astock-crawler/pkg/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"
)

// TongHuaShun is the primary variant: it scrapes the public board page.
// The markup is brittle, so every fetch goes through the heuristic locator
// and the tolerant row extractor.
type TongHuaShun struct {
	baseURL   string
	fetcher   *httpfetch.Fetcher
	locator   *htmlparse.Locator
	extractor *htmlparse.Extractor
	log       *logger.Logger
	pageCache *cache.Cache
}

// NewTongHuaShun creates the primary HTML-scraping source.
func NewTongHuaShun(baseURL string, fetcher *httpfetch.Fetcher, log *logger.Logger) *TongHuaShun {
	return &TongHuaShun{
		baseURL:   baseURL,
		fetcher:   fetcher,
		locator:   htmlparse.NewLocator(),
		extractor: htmlparse.NewExtractor(),
		log:       log,
		pageCache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// Name returns the source identifier recorded on persisted rows.
func (s *TongHuaShun) Name() string {
	return common.SourceTongHuaShun
}

// FetchSummary scrapes the board page for one trade date. A page without a
// recognizable table yields an empty result, not an error.
func (s *TongHuaShun) FetchSummary(ctx context.Context, tradeDate string) (*SummaryResult, error) {
	compact := utils.CompactDate(tradeDate)
	url := fmt.Sprintf("%s/market/longhu/?date=%s", s.baseURL, compact)

	body, err := s.getPage(ctx, url)
	if err != nil {
		return nil, NewSourceError(s.Name(), err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, NewSourceError(s.Name(), fmt.Errorf("failed to parse page: %w", err))
	}

	candidate, err := s.locator.Locate(doc)
	if errors.Is(err, htmlparse.ErrTableNotFound) {
		s.log.Info("No dragon-tiger table on page",
			logger.StringField("trade_date", tradeDate))
		return &SummaryResult{}, nil
	}
	if err != nil {
		return nil, NewSourceError(s.Name(), err)
	}

	extract := s.extractor.ExtractSummaryRows(candidate.Table)
	for _, skipped := range extract.Skipped {
		s.log.Warn("Skipped summary row",
			logger.IntField("row", skipped.Index),
			logger.StringField("reason", skipped.Reason),
			logger.StringField("trade_date", tradeDate))
	}

	result := &SummaryResult{SkippedRows: len(extract.Skipped)}
	for _, row := range extract.Rows {
		result.Records = append(result.Records, entity.DragonTigerSummary{
			StockCode:    row.StockCode,
			StockName:    row.StockName,
			TradeDate:    compact,
			ClosePrice:   row.ClosePrice,
			ChangeRate:   row.ChangeRate,
			Turnover:     row.Turnover,
			NetBuyAmount: row.NetBuyAmount,
			Reason:       row.Reason,
			Reasons:      []string{row.Reason},
			DataSource:   s.Name(),
		})
	}

	s.log.Info("Fetched dragon-tiger summary",
		logger.StringField("source", s.Name()),
		logger.StringField("trade_date", tradeDate),
		logger.IntField("rows", len(result.Records)),
		logger.StringField("strategy", candidate.Strategy))

	return result, nil
}

// FetchDetail scrapes the per-stock detail page for the buy and sell seat
// tables.
func (s *TongHuaShun) FetchDetail(ctx context.Context, stockCode, tradeDate string) (*DetailResult, error) {
	compact := utils.CompactDate(tradeDate)
	url := fmt.Sprintf("%s/market/longhu/stock/%s/%s/", s.baseURL, stockCode, compact)

	body, err := s.getPage(ctx, url)
	if err != nil {
		return nil, NewSourceError(s.Name(), err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, NewSourceError(s.Name(), fmt.Errorf("failed to parse detail page: %w", err))
	}

	result := &DetailResult{}
	sections := []struct {
		selector  string
		tradeType entity.TradeType
	}{
		{"#buy_table", entity.TradeTypeBuy},
		{"#sell_table", entity.TradeTypeSell},
	}

	for _, section := range sections {
		table := doc.Find(section.selector).First()
		if table.Length() == 0 {
			continue
		}
		extract := s.extractor.ExtractDetailRows(table)
		for _, skipped := range extract.Skipped {
			s.log.Warn("Skipped detail row",
				logger.StringField("stock_code", stockCode),
				logger.StringField("section", string(section.tradeType)),
				logger.IntField("row", skipped.Index),
				logger.StringField("reason", skipped.Reason))
		}
		result.SkippedRows += len(extract.Skipped)
		for _, row := range extract.Rows {
			result.Records = append(result.Records, entity.DragonTigerDetail{
				StockCode:  stockCode,
				TradeDate:  compact,
				TradeType:  section.tradeType,
				Rank:       row.Rank,
				Department: row.Department,
				Amount:     row.Amount,
				Ratio:      row.Ratio,
				DataSource: s.Name(),
			})
		}
	}

	s.log.Info("Fetched dragon-tiger detail",
		logger.StringField("source", s.Name()),
		logger.StringField("stock_code", stockCode),
		logger.IntField("rows", len(result.Records)))

	return result, nil
}

// getPage fetches a URL with a short-lived memo so a manual trigger close to
// a scheduled run does not hit the site twice for the same page.
func (s *TongHuaShun) getPage(ctx context.Context, url string) ([]byte, error) {
	if cached, ok := s.pageCache.Get(url); ok {
		return cached.([]byte), nil
	}
	body, err := s.fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	s.pageCache.Set(url, body, cache.DefaultExpiration)
	return body, nil
}
