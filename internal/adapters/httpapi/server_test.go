package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updown/internal/adapters/httpapi"
	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/feed"
	"github.com/alejandrodnm/updown/internal/ports"
)

type statusStub struct {
	snap   *domain.Snapshot
	status feed.Status
}

func (s statusStub) Latest() (domain.Snapshot, bool) {
	if s.snap == nil {
		return domain.Snapshot{}, false
	}
	return *s.snap, true
}

func (s statusStub) FeedStatus() feed.Status { return s.status }

type journalStub struct {
	snaps     []domain.Snapshot
	err       error
	lastLimit int
}

func (j *journalStub) Append(context.Context, domain.Snapshot) error { return nil }

func (j *journalStub) Recent(_ context.Context, limit int) ([]domain.Snapshot, error) {
	j.lastLimit = limit
	return j.snaps, j.err
}

func (j *journalStub) Summary(context.Context) (ports.JournalSummary, error) {
	return ports.JournalSummary{}, nil
}

func (j *journalStub) Close() error { return nil }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	cases := []struct {
		name   string
		status feed.Status
		code   int
		want   string
	}{
		{"ok", feed.Status{State: "binance/book", Running: true}, http.StatusOK, "ok"},
		{"no data", feed.Status{State: feed.StatusNoData, LastError: "timeout", Running: true}, http.StatusOK, "degraded"},
		{"stopped", feed.Status{State: feed.StatusNoData}, http.StatusServiceUnavailable, "down"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := httpapi.New(":0", statusStub{status: tc.status}, nil, zerolog.Nop())
			rec := get(t, s.Handler(), "/healthz")
			assert.Equal(t, tc.code, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

			var body struct {
				Status string      `json:"status"`
				Feed   feed.Status `json:"feed"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.want, body.Status)
			assert.Equal(t, tc.status, body.Feed)
		})
	}
}

func TestSnapshot(t *testing.T) {
	s := httpapi.New(":0", statusStub{}, nil, zerolog.Nop())
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/snapshot").Code)

	snap := domain.Snapshot{
		RunID:        "run-1",
		Time:         time.Date(2026, 3, 2, 10, 1, 0, 0, time.UTC),
		Venue:        domain.VenueBinance,
		CurrentPrice: 64010,
		PUp:          0.62,
		PDown:        0.38,
	}
	s = httpapi.New(":0", statusStub{snap: &snap}, nil, zerolog.Nop())
	rec := get(t, s.Handler(), "/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got domain.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, snap, got)
}

func TestHistory(t *testing.T) {
	j := &journalStub{snaps: []domain.Snapshot{{RunID: "a"}, {RunID: "b"}}}
	s := httpapi.New(":0", statusStub{}, j, zerolog.Nop())

	rec := get(t, s.Handler(), "/history?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []domain.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
	assert.Equal(t, 2, j.lastLimit)

	get(t, s.Handler(), "/history")
	assert.Equal(t, 60, j.lastLimit)

	get(t, s.Handler(), "/history?limit=999999")
	assert.Equal(t, 1000, j.lastLimit)

	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/history?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/history?limit=-3").Code)
}

func TestHistory_Errors(t *testing.T) {
	s := httpapi.New(":0", statusStub{}, nil, zerolog.Nop())
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/history").Code)

	s = httpapi.New(":0", statusStub{}, &journalStub{err: errors.New("database is closed")}, zerolog.Nop())
	assert.Equal(t, http.StatusInternalServerError, get(t, s.Handler(), "/history").Code)

	rec := get(t, httpapi.New(":0", statusStub{}, &journalStub{}, zerolog.Nop()).Handler(), "/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestMetricsAndNotFound(t *testing.T) {
	s := httpapi.New(":0", statusStub{}, nil, zerolog.Nop())

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/nope").Code)
}

func TestStartAndShutdown(t *testing.T) {
	s := httpapi.New("127.0.0.1:0", statusStub{}, nil, zerolog.Nop())
	require.NoError(t, s.Start())
	assert.NoError(t, s.Shutdown(context.Background()))
}
