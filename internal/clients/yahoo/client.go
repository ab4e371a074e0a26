// Package yahoo fetches historical FX quotes from the Yahoo Finance
// chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/fxsync/internal/domain"
)

// ErrNotFound is returned when the symbol is unknown to the provider or
// carries no quote history. Callers treat this as "try another symbol",
// not as a transport failure.
var ErrNotFound = errors.New("symbol not found")

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client is a Yahoo Finance chart API client
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "yahoo").Logger(),
	}
}

// NewClientWithBaseURL creates a client pointed at a custom endpoint.
// Used by tests.
func NewClientWithBaseURL(baseURL string, log zerolog.Logger) *Client {
	c := NewClient(log)
	c.baseURL = baseURL
	return c
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetHistory fetches daily closes for symbol over [from, to] inclusive.
// The returned series is sparse: non-trading days are absent, and rows
// without a close value are skipped. ErrNotFound signals an unknown or
// delisted symbol.
func (c *Client) GetHistory(ctx context.Context, symbol string, from, to time.Time) ([]DailyClose, error) {
	// period2 is exclusive, pad a day so 'to' itself is covered
	period1 := domain.Day(from).Unix()
	period2 := domain.Day(to).AddDate(0, 0, 1).Unix()

	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("period1", fmt.Sprintf("%d", period1))
	params.Add("period2", fmt.Sprintf("%d", period2))

	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chart data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Yahoo Finance API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Chart.Error != nil {
		if result.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
		}
		return nil, fmt.Errorf("Yahoo Finance API error: %s: %s",
			result.Chart.Error.Code, result.Chart.Error.Description)
	}

	if len(result.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}

	chartData := result.Chart.Result[0]
	if len(chartData.Indicators.Quote) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No quote data in response")
		return []DailyClose{}, nil
	}

	closes := chartData.Indicators.Quote[0].Close

	var series []DailyClose
	for i, ts := range chartData.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}

		series = append(series, DailyClose{
			Date:  domain.Day(time.Unix(ts, 0).UTC()),
			Close: *closes[i],
		})
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("from", domain.FormatDay(from)).
		Str("to", domain.FormatDay(to)).
		Int("count", len(series)).
		Msg("Fetched daily closes")

	return series, nil
}
