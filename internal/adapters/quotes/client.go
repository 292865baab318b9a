package quotes

// client.go — cliente HTTP de cotizaciones para capturar el movimiento
// realizado de un target. Durante degradación sirve el último valor bueno
// conocido marcado como Stale en vez de fallar la pasada de evaluación.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/signalbot/internal/ports"
)

const (
	defaultBase = "http://localhost:8092"

	requestsPerSec = 10
	maxRetries     = 2
	baseRetryWait  = 250 * time.Millisecond
)

const (
	partialAfter  = 1
	degradedAfter = 3
	offlineAfter  = 6
)

// Client implementa ports.QuoteProvider sobre HTTP.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter

	mu        sync.Mutex
	failures  int
	lastKnown map[string]ports.QuoteResult
}

// NewClient crea un Client contra el base URL dado; vacío usa el default local.
func NewClient(base string) *Client {
	if base == "" {
		base = defaultBase
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		base:      base,
		limiter:   rate.NewLimiter(requestsPerSec, 3),
		lastKnown: make(map[string]ports.QuoteResult),
	}
}

type moveResponse struct {
	MovePct    float64   `json:"move_pct"`
	CapturedAt time.Time `json:"captured_at"`
}

// GetMove devuelve el movimiento % del target desde since. Si el servicio
// falla y hay un valor previo para el target, lo devuelve con Stale=true.
func (c *Client) GetMove(ctx context.Context, targetID string, since time.Time) (ports.QuoteResult, error) {
	u := fmt.Sprintf("%s/v1/moves/%s?since=%s",
		c.base, url.PathEscape(targetID), url.QueryEscape(since.UTC().Format(time.RFC3339)))

	var resp moveResponse
	if err := c.get(ctx, u, &resp); err != nil {
		c.mu.Lock()
		c.failures++
		last, ok := c.lastKnown[targetID]
		c.mu.Unlock()
		if ok {
			slog.Warn("quote service failed, serving stale value",
				"target", targetID, "error", err)
			last.Stale = true
			return last, nil
		}
		return ports.QuoteResult{}, fmt.Errorf("quotes.GetMove %s: %w", targetID, err)
	}

	result := ports.QuoteResult{MovePct: resp.MovePct, CapturedAt: resp.CapturedAt}
	if result.CapturedAt.IsZero() {
		result.CapturedAt = time.Now().UTC()
	}
	c.mu.Lock()
	c.failures = 0
	c.lastKnown[targetID] = result
	c.mu.Unlock()
	return result, nil
}

// Health gradúa la salud según los fallos consecutivos acumulados.
func (c *Client) Health() ports.ServiceHealth {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.failures >= offlineAfter:
		return ports.HealthOffline
	case c.failures >= degradedAfter:
		return ports.HealthDegraded
	case c.failures >= partialAfter:
		return ports.HealthPartial
	default:
		return ports.HealthNormal
	}
}

// get hace un GET JSON con rate limiting y retries.
func (c *Client) get(ctx context.Context, url string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
