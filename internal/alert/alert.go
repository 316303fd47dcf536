// Package alert implements the outbound webhook contract
// (alertWebhook({severity, title, body, metric?, actualValue?, threshold?}))
// and a binder that forwards metrics registry threshold breaches to it.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/retailops/controlplane/internal/metrics"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/selfheal/breaker"
	"github.com/retailops/controlplane/internal/selfheal/retry"
)

const webhookTimeout = 10 * time.Second

type Payload struct {
	Severity    string  `json:"severity"`
	Title       string  `json:"title"`
	Body        string  `json:"body,omitempty"`
	Metric      string  `json:"metric,omitempty"`
	ActualValue float64 `json:"actualValue,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

// Transport posts alert payloads to one or more configured webhook URLs,
// each behind its own circuit breaker so a down webhook endpoint cannot
// slow down delivery to the others.
type Transport struct {
	urls     []string
	log      *logger.Logger
	http     *http.Client
	reg      *metrics.Registry
	breakers map[string]*breaker.Breaker
}

func NewTransport(log *logger.Logger, reg *metrics.Registry, urls ...string) *Transport {
	filtered := make([]string, 0, len(urls))
	breakers := make(map[string]*breaker.Breaker, len(urls))
	for i, u := range urls {
		if u == "" {
			continue
		}
		filtered = append(filtered, u)
		breakers[u] = breaker.New(webhookBreakerName(i), breaker.DefaultOptions(), reg)
	}
	return &Transport{
		urls:     filtered,
		log:      log.With("component", "AlertTransport"),
		http:     &http.Client{Timeout: webhookTimeout},
		reg:      reg,
		breakers: breakers,
	}
}

func webhookBreakerName(i int) string {
	return fmt.Sprintf("alert_webhook_%d", i)
}

func (t *Transport) Send(ctx context.Context, p Payload) {
	if t == nil || len(t.urls) == 0 {
		return
	}
	p.Timestamp = time.Now().UTC().Format(time.RFC3339)
	body, err := json.Marshal(p)
	if err != nil {
		t.log.Warn("alert payload marshal failed", "error", err)
		return
	}
	for _, url := range t.urls {
		t.post(ctx, url, body, p)
	}
}

func (t *Transport) post(ctx context.Context, url string, body []byte, p Payload) {
	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	var statusCode int
	err := retry.WithNetworkRetry(ctx, t.reg, t.breakers[url], func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		statusCode = resp.StatusCode
		return nil
	})
	if err != nil {
		t.log.Warn("alert post failed", "error", err, "url", url, "severity", p.Severity, "title", p.Title)
		return
	}
	t.log.Info("alert sent", "url", url, "severity", p.Severity, "title", p.Title, "status", statusCode)
}

// BindMetricAlerts forwards every threshold breach from the registry to the
// transport. This is the explicit observer replacing a reflective emitter.
func BindMetricAlerts(ctx context.Context, reg *metrics.Registry, t *Transport) {
	reg.OnThresholdBreach(func(ev metrics.BreachEvent) {
		t.Send(ctx, Payload{
			Severity:    string(ev.Threshold.Severity),
			Title:       "metric threshold breach: " + ev.Threshold.Metric,
			Metric:      ev.Threshold.Metric,
			ActualValue: ev.ActualValue,
			Threshold:   ev.Threshold.Value,
		})
	})
}
