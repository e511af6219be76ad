package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RedbringerS/vfs-bot/internal/store"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

type fakeResults struct {
	results []store.ExecutionResult
	err     error
}

func (r fakeResults) RecentResults(ctx context.Context, userID int64, limit int) ([]store.ExecutionResult, error) {
	return r.results, r.err
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer((&Server{DB: fakePinger{}, Results: fakeResults{}}).Routes())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestHealthzDBDown(t *testing.T) {
	srv := httptest.NewServer((&Server{DB: fakePinger{err: errors.New("down")}, Results: fakeResults{}}).Routes())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestRecentResults(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	results := fakeResults{results: []store.ExecutionResult{
		{UserID: 42, Result: "no slots", ExecutionTime: now},
	}}
	srv := httptest.NewServer((&Server{DB: fakePinger{}, Results: results}).Routes())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/results/42")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body []struct {
		Result        string    `json:"result"`
		ExecutionTime time.Time `json:"execution_time"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Len(t, body, 1)
	assert.Equal(t, "no slots", body[0].Result)
	assert.True(t, now.Equal(body[0].ExecutionTime))
}

func TestRecentResultsBadUserID(t *testing.T) {
	srv := httptest.NewServer((&Server{DB: fakePinger{}, Results: fakeResults{}}).Routes())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/results/not-a-number")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}
