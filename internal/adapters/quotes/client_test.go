package quotes_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/signalbot/internal/adapters/quotes"
	"github.com/alejandrodnm/signalbot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetMove(t *testing.T) {
	captured := time.Now().UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/moves/AAPL", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("since"))
		json.NewEncoder(w).Encode(map[string]any{
			"move_pct":    2.4,
			"captured_at": captured,
		})
	}))
	defer srv.Close()

	c := quotes.NewClient(srv.URL)
	res, err := c.GetMove(context.Background(), "AAPL", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 2.4, res.MovePct, 0.001)
	assert.False(t, res.Stale)
	assert.Equal(t, captured.Unix(), res.CapturedAt.Unix())
	assert.Equal(t, ports.HealthNormal, c.Health())
}

func TestClient_StaleFallback(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "nope", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"move_pct": 1.5})
	}))
	defer srv.Close()

	c := quotes.NewClient(srv.URL)
	ctx := context.Background()

	_, err := c.GetMove(ctx, "AAPL", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	fail.Store(true)
	res, err := c.GetMove(ctx, "AAPL", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.InDelta(t, 1.5, res.MovePct, 0.001)
	assert.Equal(t, ports.HealthPartial, c.Health())
}

func TestClient_NoLastKnownFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := quotes.NewClient(srv.URL)
	_, err := c.GetMove(context.Background(), "MSFT", time.Now().Add(-time.Hour))
	require.Error(t, err)
}

func TestClient_HealthRecovers(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "nope", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"move_pct": 0.3})
	}))
	defer srv.Close()

	c := quotes.NewClient(srv.URL)
	ctx := context.Background()

	fail.Store(true)
	for i := 0; i < 3; i++ {
		c.GetMove(ctx, "AAPL", time.Now().Add(-time.Hour))
	}
	assert.Equal(t, ports.HealthDegraded, c.Health())

	fail.Store(false)
	_, err := c.GetMove(ctx, "AAPL", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ports.HealthNormal, c.Health())
}
