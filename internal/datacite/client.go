// Package datacite is the facade over the DataCite REST API.
//
// Listing uses DataCite's page[number] pagination, which cannot reach past
// roughly 10,000 records in total. Going further would need page[cursor]; see
// https://support.datacite.org/docs/pagination.
package datacite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"datacite-api/internal/domain"
	"datacite-api/internal/metrics"
	"datacite-api/internal/upstream"
)

const (
	ProductionURL = "https://api.datacite.org"
	TestingURL    = "https://api.test.datacite.org"

	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 60 * time.Second

	mediaType = "application/vnd.api+json"
)

// Config for the DataCite client.
type Config struct {
	// Testing selects the DataCite test environment.
	Testing bool
	// BaseURL overrides the URL chosen by Testing.
	BaseURL  string
	Prefix   string
	Username string
	Password string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	HTTPClient     *http.Client
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

// Client calls DataCite on behalf of the local API.
type Client struct {
	baseURL  string
	prefix   string
	username string
	password string
	http     *http.Client
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// New creates a client. The prefix is required since listing is scoped by it.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Prefix) == "" {
		return nil, fmt.Errorf("datacite: doi prefix is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = ProductionURL
		if cfg.Testing {
			base = TestingURL
		}
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("datacite: invalid base url %q: %w", base, err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(base, "/"),
		prefix:   cfg.Prefix,
		username: cfg.Username,
		password: cfg.Password,
		http:     httpClient,
		log:      log.With(zap.String("service", upstream.ServiceDataCite)),
		metrics:  cfg.Metrics,
	}, nil
}

// newHTTPClient bounds connection setup by connect and waiting for the
// response by read.
func newHTTPClient(connect, read time.Duration) *http.Client {
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	if read <= 0 {
		read = DefaultReadTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = read
	return &http.Client{Transport: transport, Timeout: connect + read}
}

// BaseURL returns the DataCite endpoint in use.
func (c *Client) BaseURL() string { return c.baseURL }

// Prefix returns the DOI prefix listings are scoped to.
func (c *Client) Prefix() string { return c.prefix }

type resource struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Attributes domain.Metadata `json:"attributes"`
}

type envelope struct {
	Data resource `json:"data"`
}

type listEnvelope struct {
	Data []resource `json:"data"`
	Meta struct {
		Total      int `json:"total"`
		TotalPages int `json:"totalPages"`
		Page       int `json:"page"`
	} `json:"meta"`
}

// ListDOIs returns one page of records whose DOI starts with the configured prefix.
func (c *Client) ListDOIs(ctx context.Context, pageSize, pageNum int) (domain.DOIRecordList, error) {
	pageSize, pageNum, err := domain.ValidatePaging(pageSize, pageNum)
	if err != nil {
		return domain.DOIRecordList{}, err
	}
	query := url.Values{}
	query.Set("query", fmt.Sprintf("id:%s/*", c.prefix))
	query.Set("page[size]", strconv.Itoa(pageSize))
	query.Set("page[number]", strconv.Itoa(pageNum))

	var res listEnvelope
	if err := c.do(ctx, http.MethodGet, "/dois/", query, nil, &res); err != nil {
		return domain.DOIRecordList{}, err
	}
	list := domain.DOIRecordList{
		Records:      make([]domain.DOIRecord, 0, len(res.Data)),
		TotalRecords: res.Meta.Total,
		TotalPages:   res.Meta.TotalPages,
		ThisPage:     res.Meta.Page,
	}
	for _, item := range res.Data {
		rec, err := toRecord(item)
		if err != nil {
			return domain.DOIRecordList{}, err
		}
		list.Records = append(list.Records, rec)
	}
	return list, nil
}

// AddDOI creates a draft record and fails if the DOI already exists on DataCite.
func (c *Client) AddDOI(ctx context.Context, doi string, md domain.Metadata) (domain.DOIRecord, error) {
	if err := domain.ValidateDOI(doi); err != nil {
		return domain.DOIRecord{}, err
	}
	attrs, err := md.Without(domain.ReservedEventKey).With("doi", doi)
	if err != nil {
		return domain.DOIRecord{}, err
	}
	payload := envelope{Data: resource{Attributes: attrs}}
	var res envelope
	if err := c.do(ctx, http.MethodPost, "/dois/", nil, payload, &res); err != nil {
		return domain.DOIRecord{}, err
	}
	return toRecord(res.Data)
}

// GetDOI fetches a single record.
func (c *Client) GetDOI(ctx context.Context, doi string) (domain.DOIRecord, error) {
	if err := domain.ValidateDOI(doi); err != nil {
		return domain.DOIRecord{}, err
	}
	var res envelope
	if err := c.do(ctx, http.MethodGet, doiPath(doi), nil, nil, &res); err != nil {
		return domain.DOIRecord{}, err
	}
	return toRecord(res.Data)
}

// UpdateDOI replaces the metadata of doi, creating it in draft state when it
// does not exist. The event key is dropped so this never changes state.
func (c *Client) UpdateDOI(ctx context.Context, doi string, md domain.Metadata) (domain.DOIRecord, error) {
	if err := domain.ValidateDOI(doi); err != nil {
		return domain.DOIRecord{}, err
	}
	payload := envelope{Data: resource{ID: doi, Attributes: md.Without(domain.ReservedEventKey)}}
	var res envelope
	if err := c.do(ctx, http.MethodPut, doiPath(doi), nil, payload, &res); err != nil {
		return domain.DOIRecord{}, err
	}
	return toRecord(res.Data)
}

// DeleteDOI removes a record. DataCite only allows this for drafts.
func (c *Client) DeleteDOI(ctx context.Context, doi string) error {
	if err := domain.ValidateDOI(doi); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, doiPath(doi), nil, nil, nil)
}

// ChangeDOIState sends event as the only attribute of an update.
func (c *Client) ChangeDOIState(ctx context.Context, doi string, event domain.Event) (domain.DOIRecord, error) {
	if err := domain.ValidateDOI(doi); err != nil {
		return domain.DOIRecord{}, err
	}
	if !event.Valid() {
		return domain.DOIRecord{}, &domain.ValidationError{Field: "event", Value: string(event), Reason: "must be one of register, publish, hide"}
	}
	attrs, err := domain.EmptyMetadata().With(domain.ReservedEventKey, event.String())
	if err != nil {
		return domain.DOIRecord{}, err
	}
	payload := envelope{Data: resource{ID: doi, Attributes: attrs}}
	var res envelope
	if err := c.do(ctx, http.MethodPut, doiPath(doi), nil, payload, &res); err != nil {
		return domain.DOIRecord{}, err
	}
	return toRecord(res.Data)
}

func doiPath(doi string) string {
	return "/dois/" + doi
}

// toRecord maps a DataCite resource, rejecting ids that are not DOIs.
func toRecord(r resource) (domain.DOIRecord, error) {
	rec, err := domain.NewDOIRecord(r.ID, r.Attributes)
	if err != nil {
		return domain.DOIRecord{}, &upstream.Error{
			Service:    upstream.ServiceDataCite,
			StatusCode: http.StatusBadGateway,
			Detail:     upstream.TextDetail(err.Error()),
		}
	}
	return rec, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	switch method {
	case http.MethodPost, http.MethodPut:
		req.Header.Set("Content-Type", mediaType)
		req.Header.Set("Accept", mediaType)
	case http.MethodGet:
		req.Header.Set("Accept", mediaType)
	}
	req.SetBasicAuth(c.username, c.password)

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(upstream.ServiceDataCite, method, http.StatusServiceUnavailable, time.Since(start))
		c.log.Warn("datacite unreachable", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return upstream.Unavailable(upstream.ServiceDataCite, err)
	}
	defer res.Body.Close()
	c.metrics.ObserveUpstream(upstream.ServiceDataCite, method, res.StatusCode, time.Since(start))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		uerr := upstream.FromResponse(upstream.ServiceDataCite, res)
		c.log.Warn("datacite rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", res.StatusCode),
		)
		return uerr
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return upstream.Unavailable(upstream.ServiceDataCite, err)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &upstream.Error{
			Service:    upstream.ServiceDataCite,
			StatusCode: http.StatusBadGateway,
			Detail:     upstream.TextDetail(fmt.Sprintf("decode response: %v", err)),
		}
	}
	return nil
}
