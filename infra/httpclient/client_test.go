package httpclient

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SetsUserAgent(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer ts.Close()

	c := New(time.Second)
	assert.Equal(t, time.Second, c.Timeout)
	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, UserAgent, got)
	assert.Empty(t, req.Header.Get("User-Agent"), "original request must stay untouched")
}

func TestCheckStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, "vehicle asleep", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ok")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NoError(t, CheckStatus(resp))

	resp2, err := http.Get(ts.URL + "/down")
	require.NoError(t, err)
	defer resp2.Body.Close()
	err = CheckStatus(resp2)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
	assert.Contains(t, err.Error(), "vehicle asleep")
}
