package httpfetch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"astock-crawler/pkg/logger"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// StatusError is returned when the remote server answers with a non-2xx
// status code.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Fetcher issues browser-like GET requests with a shared rate limit and
// transcodes responses to UTF-8 regardless of the page's declared charset.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// New creates a Fetcher. maxRequestsPerMinute bounds the request rate against
// the remote host; zero disables limiting.
func New(timeout time.Duration, maxRequestsPerMinute int, log *logger.Logger) *Fetcher {
	var limiter *rate.Limiter
	if maxRequestsPerMinute > 0 {
		interval := time.Minute / time.Duration(maxRequestsPerMinute)
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		log:     log,
	}
}

// Get fetches url and returns the body decoded to UTF-8.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	bodyReader := bufio.NewReader(resp.Body)
	e := determineEncoding(bodyReader, resp.Header.Get("Content-Type"))
	utf8Reader := transform.NewReader(bodyReader, e.NewDecoder())

	body, err := io.ReadAll(utf8Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// determineEncoding sniffs the body prefix so pages served as GBK without a
// correct header still decode cleanly.
func determineEncoding(r *bufio.Reader, contentType string) encoding.Encoding {
	bytes, err := r.Peek(1024)
	if err != nil && err != io.EOF {
		return unicode.UTF8
	}
	e, _, _ := charset.DetermineEncoding(bytes, contentType)
	return e
}
