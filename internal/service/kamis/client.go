// Package kamis talks to the KAMIS agricultural price feed: it issues the upstream
// request and turns whatever comes back into raw observations.
package kamis

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"PricePull/internal/catalog"
	"PricePull/internal/domain/models"
	domrepo "PricePull/internal/domain/repository"
	xhttp "PricePull/pkg/http"
	applogger "PricePull/pkg/logger"
	"PricePull/pkg/util"
)

const (
	DefaultBaseURL = "https://www.kamis.or.kr/service/price/xml.do"
	periodAction   = "periodProductList"
	dayLayout      = "2006-01-02"
)

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds feed client configuration.
type ClientConfig struct {
	BaseURL    string
	CertKey    string
	CertID     string
	ReturnType string
	Timeout    time.Duration
}

// WithBaseURL overrides the feed endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *ClientConfig) {
		if u != "" {
			c.BaseURL = u
		}
	}
}

// WithCredentials sets the feed certificate key and id.
func WithCredentials(key, id string) ClientOption {
	return func(c *ClientConfig) {
		c.CertKey = key
		c.CertID = id
	}
}

// WithReturnType selects xml or json output.
func WithReturnType(t string) ClientOption {
	return func(c *ClientConfig) {
		if t != "" {
			c.ReturnType = t
		}
	}
}

// WithTimeout bounds each feed call.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// Client implements domain.repository.FeedClient. It is the only place that knows
// the feed's parameter names. No retries happen here.
type Client struct {
	cfg     *ClientConfig
	http    *xhttp.Client
	catalog *catalog.Catalog
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewClient(cat *catalog.Catalog, metrics domrepo.Metrics, opts ...ClientOption) *Client {
	cfg := &ClientConfig{
		BaseURL:    DefaultBaseURL,
		ReturnType: "xml",
		Timeout:    15 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{
		cfg:     cfg,
		http:    xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout), xhttp.WithUserAgent("pricepull/1.0")),
		catalog: cat,
		metrics: metrics,
		l:       applogger.Nop(),
	}
}

// SetLogger injects a structured logger.
func (c *Client) SetLogger(l *applogger.Logger) {
	if l != nil {
		c.l = l
	}
}

// Fetch performs one upstream request. It fails with models.ErrFeedUnavailable on
// transport errors and non-2xx statuses and never looks at the body.
func (c *Client) Fetch(ctx context.Context, q models.FeedQuery) ([]byte, int, error) {
	params, err := c.params(q)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.BaseURL,
		QueryParams: params,
	})
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RecordFeedRequest(q.ItemKey, "transport_error", elapsed.Seconds())
		c.l.Warn("feed request failed",
			applogger.String("part", q.ItemKey),
			applogger.String("region", q.Region),
			applogger.String("grade", q.Grade),
			applogger.Duration("duration_ms", elapsed),
			applogger.Error(err),
		)
		return nil, 0, fmt.Errorf("%w: %w", models.ErrFeedUnavailable, err)
	}
	if !resp.OK() {
		c.metrics.RecordFeedRequest(q.ItemKey, "bad_status", elapsed.Seconds())
		c.l.Warn("feed returned non-2xx",
			applogger.String("part", q.ItemKey),
			applogger.Int("status", resp.Status),
			applogger.Duration("duration_ms", elapsed),
		)
		return nil, resp.Status, fmt.Errorf("%w: status %d", models.ErrFeedUnavailable, resp.Status)
	}

	c.metrics.RecordFeedRequest(q.ItemKey, "ok", elapsed.Seconds())
	c.l.Debug("feed request ok",
		applogger.String("part", q.ItemKey),
		applogger.String("region", q.Region),
		applogger.String("grade", q.Grade),
		applogger.Int("bytes", len(resp.Body)),
		applogger.Duration("duration_ms", elapsed),
	)
	return resp.Body, resp.Status, nil
}

func (c *Client) params(q models.FeedQuery) (url.Values, error) {
	it, ok := c.catalog.Item(q.ItemKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownItem, q.ItemKey)
	}
	county, ok := c.catalog.RegionCode(c.catalog.NormalizeRegion(q.Region))
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownRegion, q.Region)
	}
	grade := q.Grade
	if grade == "" {
		grade = catalog.AllGrades
	}
	if q.To.IsZero() || q.From.After(q.To) {
		return nil, fmt.Errorf("feed query: invalid range %s..%s", util.FormatDate(q.From), util.FormatDate(q.To))
	}

	v := url.Values{}
	v.Set("action", periodAction)
	v.Set("p_productclscode", it.ProductClass)
	v.Set("p_startday", q.From.Format(dayLayout))
	v.Set("p_endday", q.To.Format(dayLayout))
	v.Set("p_itemcategorycode", it.CategoryCode)
	v.Set("p_itemcode", it.ItemCode)
	v.Set("p_kindcode", it.KindCode)
	v.Set("p_productrankcode", c.catalog.RankCode(it, grade))
	v.Set("p_countrycode", county)
	v.Set("p_convert_kg_yn", "N")
	v.Set("p_cert_key", c.cfg.CertKey)
	v.Set("p_cert_id", c.cfg.CertID)
	v.Set("p_returntype", c.cfg.ReturnType)
	return v, nil
}

var _ domrepo.FeedClient = (*Client)(nil)
