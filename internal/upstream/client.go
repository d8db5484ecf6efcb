// Package upstream talks to the external energy-data API and classifies
// each fetch into an Outcome the retry executor can act on.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gridwatch/energy-data-cache/internal/core/observability"
)

// OutcomeKind classifies a single upstream fetch.
type OutcomeKind int

const (
	// OutcomeSuccess: HTTP 200 with a parseable body, possibly zero records.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeEmpty: upstream's 400/404 "no data for this range". Not an error.
	OutcomeEmpty
	// OutcomeRetryable: 429/503, worth a bounded retry with backoff.
	OutcomeRetryable
	// OutcomeFatal: network error, timeout, parse failure or unexpected status.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Record is one raw upstream row; field names are dataset-specific.
type Record map[string]any

// Outcome is the tagged result of one fetch.
type Outcome struct {
	Kind       OutcomeKind
	Records    []Record
	StatusCode int
	Err        error
}

// Request is a fully-formed upstream query.
type Request struct {
	Dataset   string
	Start     time.Time
	End       time.Time
	PriceArea string // optional filter value, e.g. "DK1"
	Sort      string // e.g. "Minutes5UTC ASC"
}

// upstreamTimeFmt is the minute-precision format the API expects.
const upstreamTimeFmt = "2006-01-02T15:04"

type Client struct {
	logger  *slog.Logger
	base    *url.URL
	http    *http.Client
	timeout time.Duration
}

func NewClient(logger *slog.Logger, baseURL string, hc *http.Client, timeout time.Duration) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{logger: logger, base: u, http: hc, timeout: timeout}, nil
}

// Fetch performs one GET against <base>/<dataset> and classifies the
// result. It is a pure translation layer: no retries, no caching.
func (c *Client) Fetch(ctx context.Context, req Request) Outcome {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + req.Dataset

	q := url.Values{}
	q.Set("start", req.Start.UTC().Format(upstreamTimeFmt))
	q.Set("end", req.End.UTC().Format(upstreamTimeFmt))
	if req.PriceArea != "" {
		q.Set("filter", fmt.Sprintf(`{"PriceArea":["%s"]}`, req.PriceArea))
	}
	if req.Sort != "" {
		q.Set("sort", req.Sort)
	}
	u.RawQuery = q.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Outcome{Kind: OutcomeFatal, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	dur := time.Since(start)
	if err != nil {
		observability.ObserveUpstream(req.Dataset, OutcomeFatal.String(), dur.Seconds())
		return Outcome{Kind: OutcomeFatal, Err: fmt.Errorf("upstream %s: %w", req.Dataset, err)}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", "err", cerr)
		}
	}()

	out := c.classify(req.Dataset, resp)
	observability.ObserveUpstream(req.Dataset, out.Kind.String(), dur.Seconds())
	return out
}

func (c *Client) classify(dataset string, resp *http.Response) Outcome {
	switch {
	case resp.StatusCode == http.StatusOK:
		var body struct {
			Records []Record `json:"records"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return Outcome{
				Kind:       OutcomeFatal,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("upstream %s: parse body: %w", dataset, err),
			}
		}
		return Outcome{Kind: OutcomeSuccess, Records: body.Records, StatusCode: resp.StatusCode}

	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		// upstream reports "no data for this range" this way
		return Outcome{Kind: OutcomeEmpty, StatusCode: resp.StatusCode}

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return Outcome{
			Kind:       OutcomeRetryable,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("upstream %s: transient status %d", dataset, resp.StatusCode),
		}

	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Outcome{
			Kind:       OutcomeFatal,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("upstream %s: status %d body=%q", dataset, resp.StatusCode, strings.TrimSpace(string(b))),
		}
	}
}
