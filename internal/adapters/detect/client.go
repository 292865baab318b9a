package detect

// client.go — HTTP client del servicio de detección (LLM). Rate limiting,
// retries con backoff exponencial y jitter, y salud graduada a partir de
// fallos consecutivos. El caller pone el timeout vía contexto.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/signalbot/internal/cache"
	"github.com/alejandrodnm/signalbot/internal/domain"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

const (
	defaultBase = "http://localhost:8091"

	requestsPerSec = 5
	maxRetries     = 3
	baseRetryWait  = 500 * time.Millisecond

	// Ventana del mapeo analyst→tier; el servicio lo rota con poca frecuencia.
	tierCacheTTL  = 10 * time.Minute
	tierCacheSize = 256

	defaultTier = "standard"
)

// Fallos consecutivos que degradan la salud reportada.
const (
	partialAfter  = 1
	degradedAfter = 3
	offlineAfter  = 6
)

// Client implementa ports.DetectionService sobre HTTP.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
	tiers   *cache.Cache

	mu       sync.Mutex
	failures int
}

// NewClient crea un Client contra el base URL dado; vacío usa el default local.
func NewClient(base string) *Client {
	if base == "" {
		base = defaultBase
	}
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(requestsPerSec, 2),
		tiers:   cache.New(tierCacheTTL, tierCacheSize, nil),
	}
}

type detectRequest struct {
	SignalID  string            `json:"signal_id"`
	TargetID  string            `json:"target_id"`
	SourceID  string            `json:"source_id"`
	Content   string            `json:"content"`
	Direction string            `json:"direction"`
	URL       string            `json:"url,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Tier      string            `json:"tier"`
}

// ProcessSignal envía el signal al servicio de detección y devuelve su
// veredicto. Un contexto cancelado o expirado corta la llamada.
func (c *Client) ProcessSignal(ctx context.Context, s domain.Signal) (domain.DetectionResult, error) {
	req := detectRequest{
		SignalID:  s.ID,
		TargetID:  s.TargetID,
		SourceID:  s.SourceID,
		Content:   s.Content,
		Direction: string(s.Direction),
		URL:       s.URL,
		Metadata:  s.Metadata,
		Tier:      c.analystTier(ctx, s.TargetID),
	}

	var out domain.DetectionResult
	if err := c.post(ctx, c.base+"/v1/detect", req, &out); err != nil {
		c.recordFailure()
		return domain.DetectionResult{}, fmt.Errorf("detect.ProcessSignal %s: %w", s.ID, err)
	}
	c.recordSuccess()
	return out, nil
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

// InvalidateTiers vacía el mapeo cacheado analyst→tier.
func (c *Client) InvalidateTiers() {
	c.tiers.Clear()
}

// analystTier resuelve el tier del target, con cache. Si el servicio no
// responde se usa el tier por defecto: el tier solo enruta, nunca bloquea.
func (c *Client) analystTier(ctx context.Context, targetID string) string {
	if v, ok := c.tiers.Get(targetID); ok {
		return v.(string)
	}

	var resp struct {
		Tier string `json:"tier"`
	}
	if err := c.get(ctx, c.base+"/v1/tiers/"+targetID, &resp); err != nil {
		slog.Debug("tier lookup failed, using default", "target", targetID, "error", err)
		return defaultTier
	}
	if resp.Tier == "" {
		resp.Tier = defaultTier
	}
	c.tiers.Set(targetID, resp.Tier)
	return resp.Tier
}

// get hace un GET JSON con rate limiting y retries.
func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// post hace un POST JSON con rate limiting y retries.
func (c *Client) post(ctx context.Context, url string, body, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial y jitter.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
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
			slog.Warn("detection service retry", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial y jitter, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	wait += time.Duration(rand.Int63n(int64(baseRetryWait)))
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.failures++
	c.mu.Unlock()
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()
}
