package phe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"

	"github.com/bitmark-inc/covid19-uk/consts"
	"github.com/bitmark-inc/covid19-uk/schema"
	"github.com/bitmark-inc/covid19-uk/utils"
)

const (
	dataPath       = "/v1/data"
	timestampPath  = "/v1/timestamp"
	defaultTimeout = 30 * time.Second

	// upper bound of followed pages
	maxPages = 1000
)

type pagination struct {
	Current  *string `json:"current"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	First    *string `json:"first"`
	Last     *string `json:"last"`
}

type dataResponse struct {
	Length     int                       `json:"length"`
	Data       *[]map[string]interface{} `json:"data"`
	Pagination pagination                `json:"pagination"`
}

type timestampResponse struct {
	WebsiteTimestamp *string `json:"websiteTimestamp"`
}

// Client - Source over the public https api
type Client struct {
	url        string
	httpClient *http.Client
	scope      tally.Scope
}

// Option - client option
type Option func(*Client)

// WithHTTPClient - replace the http client, its timeout included
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithTimeout - bound every request. A client given by WithHTTPClient is copied, not
// modified.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		if d > 0 {
			c := *client.httpClient
			c.Timeout = d
			client.httpClient = &c
		}
	}
}

// WithScope - report request metrics to a tally scope
func WithScope(scope tally.Scope) Option {
	return func(client *Client) {
		if scope != nil {
			client.scope = scope
		}
	}
}

// New - new api client, base url defaults to the public endpoint
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = consts.DefaultAPIURL
	}

	c := &Client{
		url: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		scope: tally.NoopScope,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.scope = c.scope.SubScope("phe")

	return c
}

// Fetch - query every page of a table
func (c *Client) Fetch(ctx context.Context, q schema.Query) (*schema.Table, error) {
	if len(q.Fields) == 0 {
		return nil, ErrEmptyStructure
	}

	structure, err := encodeStructure(q.Fields)
	if nil != err {
		return nil, err
	}

	table := &schema.Table{
		Kind:    schema.SeriesTable,
		Columns: schema.ColumnsFromFields(q.Fields),
		Records: []schema.Record{},
	}
	if q.LatestBy != "" {
		table.Kind = schema.SnapshotTable
	}

	params := url.Values{}
	params.Set("filters", q.AreaType.Filter())
	params.Set("structure", structure)
	params.Set("format", "json")
	if q.LatestBy != "" {
		params.Set("latestBy", q.LatestBy)
	}

	for page := 1; ; page++ {
		if page > maxPages {
			return nil, fmt.Errorf("%w: more than %d pages", ErrSourceUnavailable, maxPages)
		}
		params.Set("page", fmt.Sprintf("%d", page))

		var resp dataResponse
		found, err := c.get(ctx, dataPath, params, &resp)
		if nil != err {
			return nil, err
		}
		if !found {
			break
		}
		if resp.Data == nil {
			return nil, fmt.Errorf("%w: response page %d has no data key", ErrSchemaMismatch, page)
		}

		for i, raw := range *resp.Data {
			record, err := decodeRecord(raw, table.Columns)
			if nil != err {
				return nil, fmt.Errorf("page %d record %d: %w", page, i, err)
			}
			table.Records = append(table.Records, record)
		}

		log.WithFields(log.Fields{
			"prefix":    logPrefix,
			"area_type": q.AreaType,
			"page":      page,
			"records":   len(*resp.Data),
		}).Debug("fetched page")

		if resp.Pagination.Next == nil || *resp.Pagination.Next == "" {
			break
		}
	}

	if err := checkUnique(table); nil != err {
		return nil, err
	}
	table.SortByAreaDate()

	c.scope.Tagged(map[string]string{"area_type": string(q.AreaType)}).Counter("records").Inc(int64(table.Len()))

	return table, nil
}

// ReleaseTimestamp - latest publication time of the upstream dashboard
func (c *Client) ReleaseTimestamp(ctx context.Context) (time.Time, error) {
	var resp timestampResponse
	found, err := c.get(ctx, timestampPath, nil, &resp)
	if nil != err {
		return time.Time{}, err
	}
	if !found || resp.WebsiteTimestamp == nil {
		return time.Time{}, fmt.Errorf("%w: no websiteTimestamp in response", ErrSchemaMismatch)
	}

	ts, err := utils.ParseReleaseTimestamp(*resp.WebsiteTimestamp)
	if nil != err {
		return time.Time{}, fmt.Errorf("%w: %s", ErrSchemaMismatch, err)
	}
	return ts, nil
}

// get - GET a json document into v. A 204 response returns false without error.
func (c *Client) get(ctx context.Context, path string, params url.Values, v interface{}) (bool, error) {
	u := c.url + path
	if len(params) > 0 {
		u = u + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if nil != err {
		return false, fmt.Errorf("%w: %s", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	sw := c.scope.Timer("request_latency").Start()
	resp, err := c.httpClient.Do(req)
	sw.Stop()
	if nil != err {
		c.scope.Counter("request_errors").Inc(1)
		log.WithFields(log.Fields{
			"prefix": logPrefix,
			"url":    u,
			"error":  err,
		}).Error("request public health api")
		return false, fmt.Errorf("%w: %s", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(resp.Body)
	if nil != err {
		c.scope.Counter("request_errors").Inc(1)
		return false, fmt.Errorf("%w: read response: %s", ErrSourceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.scope.Counter("request_errors").Inc(1)
		log.WithFields(log.Fields{
			"prefix": logPrefix,
			"url":    u,
			"status": resp.StatusCode,
		}).Error("unexpected status from public health api")
		return false, fmt.Errorf("%w: status %d: %s", ErrSourceUnavailable, resp.StatusCode, truncate(data, 200))
	}
	c.scope.Counter("requests").Inc(1)

	// only a 204 means an empty result
	if len(bytes.TrimSpace(data)) == 0 {
		return false, fmt.Errorf("%w: empty response body with status %d", ErrSchemaMismatch, resp.StatusCode)
	}

	if err := json.Unmarshal(data, v); nil != err {
		log.WithFields(log.Fields{
			"prefix": logPrefix,
			"error":  err,
		}).Error("decode json")
		return false, fmt.Errorf("%w: decode json: %s", ErrSchemaMismatch, err)
	}

	return true, nil
}

// encodeStructure - json object of the field mapping, keys in mapping order
func encodeStructure(fields []schema.Field) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if f.Name == "" || f.Source == "" {
			return "", fmt.Errorf("%w: field %d has an empty name or source", ErrEmptyStructure, i)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(f.Name)
		source, _ := json.Marshal(f.Source)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(source)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
