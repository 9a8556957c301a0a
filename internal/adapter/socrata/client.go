package socrata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/adapter/fetch"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
)

// Source labels batches, metrics, and logs produced by this client.
const Source = "socrata"

// Client pages through the NYC Open Data motor vehicle collisions dataset.
type Client struct {
	fetcher  *fetch.Client
	endpoint string
	appToken string
	pageSize int
	maxRows  int
	logger   *slog.Logger
}

// NewClient creates a collisions client. endpoint is the full resource URL,
// e.g. https://data.cityofnewyork.us/resource/h9gi-nx95.json. An empty
// appToken sends anonymous requests, which Socrata throttles harder.
func NewClient(fetcher *fetch.Client, endpoint, appToken string, pageSize, maxRows int, logger *slog.Logger) *Client {
	return &Client{
		fetcher:  fetcher,
		endpoint: endpoint,
		appToken: appToken,
		pageSize: pageSize,
		maxRows:  maxRows,
		logger:   logger,
	}
}

// Extract returns every collision whose crash_date falls inside r, up to the
// configured row cap.
func (c *Client) Extract(ctx context.Context, r domain.DateRange) (domain.RawBatch, error) {
	batch := domain.RawBatch{Source: Source}
	where := fmt.Sprintf("crash_date >= '%sT00:00:00' AND crash_date <= '%sT23:59:59'", r.StartDate(), r.EndDate())

	var header http.Header
	if c.appToken != "" {
		header = http.Header{"X-App-Token": {c.appToken}}
	}

	for offset := 0; offset < c.maxRows; offset += c.pageSize {
		limit := min(c.pageSize, c.maxRows-offset)
		params := url.Values{
			"$where":  {where},
			"$order":  {"crash_date,collision_id"},
			"$limit":  {strconv.Itoa(limit)},
			"$offset": {strconv.Itoa(offset)},
		}

		var page []map[string]any
		if err := c.fetcher.GetJSON(ctx, c.endpoint+"?"+params.Encode(), header, &page); err != nil {
			return domain.RawBatch{}, fmt.Errorf("extract collisions at offset %d: %w", offset, err)
		}
		for _, rec := range page {
			batch.Rows = append(batch.Rows, flatten(rec))
		}
		c.logger.Debug("collision page fetched", "offset", offset, "rows", len(page))

		if len(page) < limit {
			break
		}
		if offset+limit >= c.maxRows {
			c.logger.Warn("collision row cap reached, range truncated", "max_rows", c.maxRows, "range", r.String())
		}
	}

	c.logger.Info("collision extraction complete", "range", r.String(), "rows", batch.Len())
	return batch, nil
}

// flatten converts one SODA JSON object into string cells. Scalars are
// rendered as text; nested objects such as "location" are kept as JSON.
func flatten(rec map[string]any) domain.RawRow {
	row := make(domain.RawRow, len(rec))
	for k, v := range rec {
		switch val := v.(type) {
		case nil:
			row[k] = ""
		case string:
			row[k] = val
		case float64:
			row[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			row[k] = strconv.FormatBool(val)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			row[k] = string(b)
		}
	}
	return row
}
