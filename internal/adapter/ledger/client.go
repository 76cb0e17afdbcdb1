// Package ledger provides the HTTP client for the external value-transfer
// network. The wire protocol is opaque to the core: validate/query/submit
// against a JSON API, nothing more.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/port"
	"go.uber.org/zap"
)

type gateway struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewGateway creates the ledger gateway. Every request carries the
// configured timeout; a timeout surfaces as ErrUpstreamUnavailable so the
// balance cache can fall back to a stale entry.
func NewGateway(baseURL string, timeout time.Duration, log *zap.Logger) port.LedgerGateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &gateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Ledger API response envelopes
type balanceResponse struct {
	Status  string  `json:"status"`
	Balance float64 `json:"balance"`
	Error   string  `json:"error"`
}

type transferResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Error     string `json:"error"`
}

type confirmResponse struct {
	Status    string `json:"status"`
	Confirmed bool   `json:"confirmed"`
	Error     string `json:"error"`
}

func (g *gateway) GetBalance(ctx context.Context, identity string) (float64, error) {
	reqURL := fmt.Sprintf("%s/v1/balances/%s", g.baseURL, identity)

	var result balanceResponse
	if err := g.get(ctx, reqURL, &result); err != nil {
		return 0, fmt.Errorf("%w: balance query for %s: %v", domain.ErrUpstreamUnavailable, identity, err)
	}
	if result.Status != "success" {
		return 0, fmt.Errorf("%w: ledger error for %s: %s", domain.ErrUpstreamUnavailable, identity, result.Error)
	}
	return result.Balance, nil
}

func (g *gateway) Transfer(ctx context.Context, from, to string, amount float64) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"from":   from,
		"to":     to,
		"amount": amount,
	})
	if err != nil {
		return "", err
	}

	reqURL := fmt.Sprintf("%s/v1/transfers", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result transferResponse
	if err := g.do(req, &result); err != nil {
		return "", fmt.Errorf("%w: transfer %s -> %s: %v", domain.ErrUpstreamUnavailable, from, to, err)
	}
	if result.Status != "success" {
		return "", fmt.Errorf("%w: ledger rejected transfer %s -> %s: %s", domain.ErrUpstreamUnavailable, from, to, result.Error)
	}

	g.log.Info("Ledger transfer submitted",
		zap.String("reference", result.Reference),
		zap.Float64("amount", amount))
	return result.Reference, nil
}

func (g *gateway) ConfirmTransfer(ctx context.Context, reference string) (bool, error) {
	reqURL := fmt.Sprintf("%s/v1/transfers/%s", g.baseURL, reference)

	var result confirmResponse
	if err := g.get(ctx, reqURL, &result); err != nil {
		return false, fmt.Errorf("%w: confirmation poll for %s: %v", domain.ErrUpstreamUnavailable, reference, err)
	}
	if result.Status != "success" {
		return false, fmt.Errorf("%w: ledger error for %s: %s", domain.ErrUpstreamUnavailable, reference, result.Error)
	}
	return result.Confirmed, nil
}

func (g *gateway) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return g.do(req, out)
}

func (g *gateway) do(req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ledger returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("JSON decode failed: %w", err)
	}
	return nil
}
