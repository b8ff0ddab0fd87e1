// Package spotprice provides price oracles backed by the Finnish day-ahead
// spot price service sahkohinta-api.fi.
package spotprice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/smartcharge/core/logger"
	"github.com/kilianp07/smartcharge/core/pricing"
	"github.com/kilianp07/smartcharge/core/retry"
	"github.com/kilianp07/smartcharge/infra/httpclient"
)

const (
	// DefaultURL is the cheapest-hours endpoint.
	DefaultURL = "https://www.sahkohinta-api.fi/api/v1/halpa"
	// DefaultTimezone is the zone timestamps are reported in.
	DefaultTimezone = "Europe/Helsinki"

	// ModeRemote lets the service pick the cheapest run.
	ModeRemote = "remote"
	// ModeLocal fetches the whole window and searches it locally.
	ModeLocal = "local"

	rangeLayout = "2006-01-02T15:04"
)

// Config configures the sahkohinta oracle.
type Config struct {
	URL      string        `json:"url"`
	Mode     string        `json:"mode"`
	Timezone string        `json:"timezone"`
	Timeout  time.Duration `json:"timeout"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Mode == "" {
		c.Mode = ModeRemote
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Mode != ModeRemote && c.Mode != ModeLocal {
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("failed to parse url (%s): %w", c.URL, err)
	}
	return nil
}

// Sahkohinta implements pricing.Oracle.
type Sahkohinta struct {
	url    string
	mode   string
	loc    *time.Location
	client *http.Client
	log    logger.Logger
}

// New builds the oracle. A nil log disables logging.
func New(cfg Config, log logger.Logger) (*Sahkohinta, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load location %s: %w", cfg.Timezone, err)
	}
	return &Sahkohinta{
		url:    cfg.URL,
		mode:   cfg.Mode,
		loc:    loc,
		client: httpclient.New(cfg.Timeout),
		log:    logger.OrNop(log),
	}, nil
}

// WithHTTPClient swaps the transport, mostly for tests.
func (s *Sahkohinta) WithHTTPClient(c *http.Client) *Sahkohinta {
	s.client = c
	return s
}

// priceEntry is one element of the response array.
type priceEntry struct {
	Timestamp string    `json:"aikaleima_suomi"`
	Price     flexPrice `json:"hinta"`
}

// flexPrice accepts numbers and numeric strings, with a decimal comma too.
type flexPrice float64

func (p *flexPrice) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	s = strings.Replace(s, ",", ".", 1)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("price %s: %w", b, err)
	}
	*p = flexPrice(v)
	return nil
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// CheapestRun implements pricing.Oracle.
func (s *Sahkohinta) CheapestRun(ctx context.Context, q pricing.Query) ([]pricing.PricePoint, error) {
	if q.Slots <= 0 {
		return nil, errors.New("slot count must be positive")
	}
	if s.mode == ModeLocal {
		all, err := s.fetch(ctx, max(q.Hours(), q.Slots), q.From, q.To)
		if err != nil {
			return nil, err
		}
		s.log.Debugf("searching %d window prices for %d cheapest contiguous slots", len(all), q.Slots)
		return pricing.CheapestRun(all, q.Slots)
	}
	pts, err := s.fetch(ctx, q.Slots, q.From, q.To)
	if err != nil {
		return nil, err
	}
	pricing.SortByTime(pts)
	return pts, nil
}

func (s *Sahkohinta) fetch(ctx context.Context, hours int, from, to time.Time) ([]pricing.PricePoint, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return nil, err
	}
	qs := u.Query()
	qs.Set("tunnit", strconv.Itoa(hours))
	qs.Set("tulos", "sarja")
	qs.Set("aikaraja", from.In(s.loc).Format(rangeLayout)+"_"+to.In(s.loc).Format(rangeLayout))
	u.RawQuery = qs.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, err
	}

	var data []priceEntry
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to decode prices: %w", err))
	}
	out := make([]pricing.PricePoint, 0, len(data))
	for _, e := range data {
		ts, err := parseTimestamp(e.Timestamp, s.loc)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		out = append(out, pricing.PricePoint{Timestamp: ts, Price: float64(e.Price)})
	}
	if len(out) == 0 {
		return nil, pricing.ErrNoPrices
	}
	return out, nil
}
