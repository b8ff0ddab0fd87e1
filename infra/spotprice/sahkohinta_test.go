package spotprice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/smartcharge/core/factory"
	"github.com/kilianp07/smartcharge/core/pricing"
	"github.com/kilianp07/smartcharge/core/retry"
)

func helsinki(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(DefaultTimezone)
	require.NoError(t, err)
	return loc
}

func newTestOracle(t *testing.T, mode string, h http.HandlerFunc) *Sahkohinta {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	s, err := New(Config{URL: ts.URL + "/api/v1/halpa", Mode: mode}, nil)
	require.NoError(t, err)
	return s.WithHTTPClient(ts.Client())
}

func TestCheapestRun_Remote(t *testing.T) {
	loc := helsinki(t)
	var got url.Values
	s := newTestOracle(t, ModeRemote, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"aikaleima_suomi":"2024-01-11T02:00","hinta":"2.50"},
			{"aikaleima_suomi":"2024-01-11T01:00:00","hinta":3.1},
			{"aikaleima_suomi":"2024-01-11T03:00","hinta":"1,75"}
		]`))
	})

	q := pricing.Query{
		Slots: 3,
		From:  time.Date(2024, 1, 10, 22, 0, 0, 0, loc),
		To:    time.Date(2024, 1, 11, 7, 0, 0, 0, loc),
	}
	pts, err := s.CheapestRun(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, "3", got.Get("tunnit"))
	assert.Equal(t, "sarja", got.Get("tulos"))
	assert.Equal(t, "2024-01-10T22:00_2024-01-11T07:00", got.Get("aikaraja"))

	require.Len(t, pts, 3)
	assert.True(t, time.Date(2024, 1, 11, 1, 0, 0, 0, loc).Equal(pts[0].Timestamp), pts[0].Timestamp)
	assert.Equal(t, []float64{3.1, 2.5, 1.75}, []float64{pts[0].Price, pts[1].Price, pts[2].Price})
}

func TestCheapestRun_LocalSearch(t *testing.T) {
	loc := helsinki(t)
	var tunnit string
	s := newTestOracle(t, ModeLocal, func(w http.ResponseWriter, r *http.Request) {
		tunnit = r.URL.Query().Get("tunnit")
		_, _ = w.Write([]byte(`[
			{"aikaleima_suomi":"2024-01-10T22:00","hinta":"9"},
			{"aikaleima_suomi":"2024-01-10T23:00","hinta":"8"},
			{"aikaleima_suomi":"2024-01-11T00:00","hinta":"4"},
			{"aikaleima_suomi":"2024-01-11T01:00","hinta":"2"},
			{"aikaleima_suomi":"2024-01-11T02:00","hinta":"3"},
			{"aikaleima_suomi":"2024-01-11T03:00","hinta":"7"},
			{"aikaleima_suomi":"2024-01-11T04:00","hinta":"1"},
			{"aikaleima_suomi":"2024-01-11T05:00","hinta":"9"},
			{"aikaleima_suomi":"2024-01-11T06:00","hinta":"9"}
		]`))
	})

	pts, err := s.CheapestRun(context.Background(), pricing.Query{
		Slots: 3,
		From:  time.Date(2024, 1, 10, 22, 0, 0, 0, loc),
		To:    time.Date(2024, 1, 11, 7, 0, 0, 0, loc),
	})
	require.NoError(t, err)
	assert.Equal(t, "9", tunnit)
	require.Len(t, pts, 3)
	assert.True(t, time.Date(2024, 1, 11, 0, 0, 0, 0, loc).Equal(pts[0].Timestamp), pts[0].Timestamp)
}

func TestCheapestRun_Failures(t *testing.T) {
	loc := helsinki(t)
	q := pricing.Query{Slots: 2, From: time.Date(2024, 1, 10, 22, 0, 0, 0, loc), To: time.Date(2024, 1, 11, 7, 0, 0, 0, loc)}

	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
		"empty": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		},
		"bad price": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"aikaleima_suomi":"2024-01-11T01:00","hinta":"n/a"}]`))
		},
		"bad timestamp": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"aikaleima_suomi":"tomorrow","hinta":"1"}]`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			s := newTestOracle(t, ModeRemote, h)
			_, err := s.CheapestRun(context.Background(), q)
			assert.Error(t, err)
		})
	}
}

func TestCheapestRun_MalformedPayloadIsNotRetried(t *testing.T) {
	loc := helsinki(t)
	q := pricing.Query{Slots: 2, From: time.Date(2024, 1, 10, 22, 0, 0, 0, loc), To: time.Date(2024, 1, 11, 7, 0, 0, 0, loc)}

	cases := map[string]string{
		"bad price":     `[{"aikaleima_suomi":"2024-01-11T01:00","hinta":"n/a"}]`,
		"bad timestamp": `[{"aikaleima_suomi":"tomorrow","hinta":"1"}]`,
		"not json":      `<html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			hits := 0
			s := newTestOracle(t, ModeRemote, func(w http.ResponseWriter, r *http.Request) {
				hits++
				_, _ = w.Write([]byte(body))
			})
			_, err := retry.Do(context.Background(), &retry.Retrier{}, "price lookup",
				retry.Budget{MaxAttempts: 5, Delay: time.Hour},
				func(ctx context.Context) ([]pricing.PricePoint, error) { return s.CheapestRun(ctx, q) })
			require.Error(t, err)
			assert.NotErrorIs(t, err, retry.ErrExhausted)
			assert.Equal(t, 1, hits)
		})
	}
}

func TestCheapestRun_EmptyIsRetried(t *testing.T) {
	loc := helsinki(t)
	q := pricing.Query{Slots: 2, From: time.Date(2024, 1, 10, 22, 0, 0, 0, loc), To: time.Date(2024, 1, 11, 7, 0, 0, 0, loc)}
	hits := 0
	s := newTestOracle(t, ModeRemote, func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`[]`))
	})
	r := &retry.Retrier{NewTimer: func() retry.Timer { return &instantTimer{c: make(chan time.Time, 1)} }}
	_, err := retry.Do(context.Background(), r, "price lookup",
		retry.Budget{MaxAttempts: 3, Delay: time.Hour},
		func(ctx context.Context) ([]pricing.PricePoint, error) { return s.CheapestRun(ctx, q) })
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.ErrorIs(t, err, pricing.ErrNoPrices)
	assert.Equal(t, 3, hits)
}

type instantTimer struct{ c chan time.Time }

func (i *instantTimer) Start(time.Duration) { i.c <- time.Time{} }
func (i *instantTimer) Stop()               {}
func (i *instantTimer) C() <-chan time.Time { return i.c }

func TestConfig(t *testing.T) {
	_, err := New(Config{Mode: "guess"}, nil)
	assert.Error(t, err)
	_, err = New(Config{Timezone: "Mars/Olympus"}, nil)
	assert.Error(t, err)
	s, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, s.url)
	assert.Equal(t, ModeRemote, s.mode)
}

func TestStaticOracle(t *testing.T) {
	from := time.Date(2024, 1, 10, 22, 0, 0, 0, time.UTC)
	o, err := pricing.NewOracle(factory.ModuleConfig{Type: "static", Conf: map[string]any{
		"prices": []any{5, 4, 1, 1, 6},
	}})
	require.NoError(t, err)

	pts, err := o.CheapestRun(context.Background(), pricing.Query{Slots: 2, From: from, To: from.Add(3 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, from.Add(time.Hour), pts[0].Timestamp)

	_, err = Static{}.CheapestRun(context.Background(), pricing.Query{Slots: 1, From: from})
	assert.Error(t, err)
}

func TestFactory_Sahkohinta(t *testing.T) {
	o, err := pricing.NewOracle(factory.ModuleConfig{Type: "sahkohinta", Conf: map[string]any{"mode": "local", "timeout": "5s"}})
	require.NoError(t, err)
	s, ok := o.(*Sahkohinta)
	require.True(t, ok)
	assert.Equal(t, ModeLocal, s.mode)
	assert.Equal(t, 5*time.Second, s.client.Timeout)
}
