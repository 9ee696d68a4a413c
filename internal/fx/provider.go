package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brightdesk/crm-backend/pkg/cache"
	"github.com/brightdesk/crm-backend/pkg/config"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/metrics"
)

const sharedKey = "crm:fx:usd"

// SharedStore is a cache shared between API instances, e.g. Redis.
type SharedStore interface {
	GetJSON(ctx context.Context, key string, v any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Provider serves a cached USD rate snapshot. Concurrent callers on an
// expired cache share a single upstream fetch.
type Provider struct {
	url        string
	ttl        time.Duration
	httpClient *http.Client
	shared     SharedStore
	cache      *cache.TTL[*Snapshot]
	logger     *logger.Logger
	now        func() time.Time
}

// NewProvider creates a provider. shared may be nil.
func NewProvider(cfg *config.FXConfig, shared SharedStore, log *logger.Logger) *Provider {
	p := &Provider{
		url:        cfg.URL,
		ttl:        cfg.TTL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		shared:     shared,
		logger:     log.WithComponent("fx"),
		now:        time.Now,
	}
	// a snapshot shared by another instance ages from its original fetch
	p.cache = cache.NewTTL(cfg.TTL, p.load).
		WithStamp(func(s *Snapshot) time.Time { return s.FetchedAt })
	return p
}

func (p *Provider) withClock(now func() time.Time) *Provider {
	p.now = now
	p.cache.WithClock(now)
	return p
}

// Snapshot returns the current rates, fetching them when the cache expired.
func (p *Provider) Snapshot(ctx context.Context) (*Snapshot, error) {
	return p.cache.Get(ctx)
}

func (p *Provider) load(ctx context.Context) (*Snapshot, error) {
	if p.shared != nil {
		var snap Snapshot
		err := p.shared.GetJSON(ctx, sharedKey, &snap)
		switch {
		case err == nil && p.now().Sub(snap.FetchedAt) < p.ttl:
			metrics.FXFetchTotal.WithLabelValues(metrics.ResultShared).Inc()
			return &snap, nil
		case err != nil && !errors.Is(err, cache.ErrMiss):
			p.logger.Warn().Err(err).Msg("shared fx cache unavailable")
		}
	}

	snap, err := p.fetch(ctx)
	if err != nil {
		metrics.FXFetchTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}
	metrics.FXFetchTotal.WithLabelValues(metrics.ResultOK).Inc()

	if p.shared != nil {
		if err := p.shared.SetJSON(ctx, sharedKey, snap, p.ttl); err != nil {
			p.logger.Warn().Err(err).Msg("failed to store fx snapshot in shared cache")
		}
	}
	return snap, nil
}

// ratesResponse is the open.er-api.com payload
type ratesResponse struct {
	Result   string             `json:"result"`
	BaseCode string             `json:"base_code"`
	Rates    map[string]float64 `json:"rates"`
	Updated  int64              `json:"time_last_update_unix"`
}

func (p *Provider) fetch(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call fx provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fx provider returned status %d", resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode fx response: %w", err)
	}
	if body.Result != "" && body.Result != "success" {
		return nil, fmt.Errorf("fx provider returned result %q", body.Result)
	}
	if !strings.EqualFold(body.BaseCode, "USD") {
		return nil, fmt.Errorf("fx provider returned base %q, want USD", body.BaseCode)
	}
	if len(body.Rates) == 0 {
		return nil, errors.New("fx provider returned no rates")
	}

	rates := make(map[string]float64, len(body.Rates))
	for code, rate := range body.Rates {
		rates[strings.ToUpper(code)] = rate
	}

	p.logger.Info().Int("currencies", len(rates)).Msg("fx snapshot refreshed")

	return &Snapshot{
		Base:      "USD",
		Rates:     rates,
		FetchedAt: p.now(),
	}, nil
}
