package openmeteo

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/adapter/fetch"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
)

// Source labels batches, metrics, and logs produced by this client.
const Source = "open-meteo"

// hourlyVariables are requested for every borough, in column order.
var hourlyVariables = []string{
	"temperature_2m",
	"precipitation",
	"rain",
	"showers",
	"snowfall",
	"visibility",
	"wind_speed_10m",
}

// Client extracts hourly weather for the five boroughs from the Open-Meteo
// historical archive.
type Client struct {
	fetcher *fetch.Client
	baseURL string
	regions []domain.Region
	logger  *slog.Logger
}

// NewClient creates an archive client against baseURL, e.g.
// https://archive-api.open-meteo.com.
func NewClient(fetcher *fetch.Client, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		regions: domain.Regions,
		logger:  logger,
	}
}

// Extract fetches every hour in r for every borough. Any failed borough fails
// the whole extraction so a partial batch never reaches the master.
func (c *Client) Extract(ctx context.Context, r domain.DateRange) (domain.RawBatch, error) {
	batch := domain.RawBatch{Source: Source}

	for _, region := range c.regions {
		rows, err := c.extractRegion(ctx, region, r)
		if err != nil {
			return domain.RawBatch{}, fmt.Errorf("extract weather for %s: %w", region, err)
		}
		c.logger.Debug("weather extracted", "region", region, "rows", len(rows))
		batch.Rows = append(batch.Rows, rows...)
	}

	c.logger.Info("weather extraction complete", "range", r.String(), "rows", batch.Len())
	return batch, nil
}

func (c *Client) extractRegion(ctx context.Context, region domain.Region, r domain.DateRange) ([]domain.RawRow, error) {
	center, ok := region.Center()
	if !ok {
		return nil, fmt.Errorf("no coordinate for region %s", region)
	}

	params := url.Values{
		"latitude":   {strconv.FormatFloat(center.Lat, 'f', 4, 64)},
		"longitude":  {strconv.FormatFloat(center.Lon, 'f', 4, 64)},
		"start_date": {r.StartDate()},
		"end_date":   {r.EndDate()},
		"hourly":     {strings.Join(hourlyVariables, ",")},
		"timezone":   {domain.NYC.String()},
		"timeformat": {"unixtime"},
	}

	var resp archiveResponse
	if err := c.fetcher.GetJSON(ctx, c.baseURL+"/v1/archive?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.rows(region)
}

// Open-Meteo archive response types.

type archiveResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Hourly    hourly  `json:"hourly"`
}

type hourly struct {
	Time          []int64    `json:"time"`
	Temperature2m []*float64 `json:"temperature_2m"`
	Precipitation []*float64 `json:"precipitation"`
	Rain          []*float64 `json:"rain"`
	Showers       []*float64 `json:"showers"`
	Snowfall      []*float64 `json:"snowfall"`
	Visibility    []*float64 `json:"visibility"`
	WindSpeed10m  []*float64 `json:"wind_speed_10m"`
}

func (h hourly) series() map[string][]*float64 {
	return map[string][]*float64{
		"temperature_2m": h.Temperature2m,
		"precipitation":  h.Precipitation,
		"rain":           h.Rain,
		"showers":        h.Showers,
		"snowfall":       h.Snowfall,
		"visibility":     h.Visibility,
		"wind_speed_10m": h.WindSpeed10m,
	}
}

// rows zips the parallel hourly arrays into one raw row per timestamp. A
// series the API omitted leaves its column out; null readings become empty
// cells. Timestamps are rendered with their offset so the repeated hour at
// the end of daylight saving stays two distinct instants.
func (a archiveResponse) rows(region domain.Region) ([]domain.RawRow, error) {
	times := a.Hourly.Time
	series := a.Hourly.series()

	for _, name := range hourlyVariables {
		if s := series[name]; s != nil && len(s) != len(times) {
			return nil, fmt.Errorf("hourly %s has %d values for %d timestamps", name, len(s), len(times))
		}
	}

	out := make([]domain.RawRow, 0, len(times))
	for i, ts := range times {
		row := domain.RawRow{
			"region":    string(region),
			"timestamp": time.Unix(ts, 0).In(domain.NYC).Format(time.RFC3339),
		}
		for _, name := range hourlyVariables {
			s := series[name]
			if s == nil {
				continue
			}
			if v := s[i]; v != nil {
				row[name] = strconv.FormatFloat(*v, 'f', -1, 64)
			} else {
				row[name] = ""
			}
		}
		out = append(out, row)
	}
	return out, nil
}
