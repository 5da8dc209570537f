package chainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aethercore-labs/aethercore/bridge"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// StatusError is a non-2xx gateway response. Client errors are permanent,
// server errors are retried by the bridge manager.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ledger gateway returned %d: %s", e.Code, e.Body)
}

func (e *StatusError) Kind() string {
	if e.Code >= 400 && e.Code < 500 {
		return bridge.KindValidation
	}
	return bridge.KindInfrastructure
}

// HTTPLedger talks to a ledger gateway exposing
//
//	GET  /transactions/{hash}/confirmations
//	POST /mint
//	GET  /mint/{bridge_id}
//	POST /refund
type HTTPLedger struct {
	baseURL string
	client  *http.Client
	rl      ratelimit.Limiter
	logger  *zap.Logger
}

type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	// RPS caps outgoing requests per second.
	RPS int
}

func NewHTTPLedger(cfg HTTPConfig, logger *zap.Logger) (*HTTPLedger, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid ledger url %q: %w", cfg.BaseURL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	rl := ratelimit.NewUnlimited()
	if cfg.RPS > 0 {
		rl = ratelimit.New(cfg.RPS)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPLedger{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		rl:      rl,
		logger:  logger.Named("ledger"),
	}, nil
}

func (l *HTTPLedger) Confirmations(ctx context.Context, txHash string) (bridge.Confirmation, error) {
	var conf bridge.Confirmation
	err := l.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(txHash)+"/confirmations", nil, &conf)
	if se, ok := err.(*StatusError); ok && se.Code == http.StatusNotFound {
		return bridge.Confirmation{TxHash: txHash}, nil
	}
	if err != nil {
		return bridge.Confirmation{}, err
	}
	conf.TxHash = txHash
	return conf, nil
}

type transferResponse struct {
	TxHash string `json:"tx_hash"`
}

func (l *HTTPLedger) Mint(ctx context.Context, req bridge.TransferRequest) (string, error) {
	return l.transfer(ctx, "/mint", req)
}

func (l *HTTPLedger) Refund(ctx context.Context, req bridge.TransferRequest) (string, error) {
	return l.transfer(ctx, "/refund", req)
}

// LookupMint treats 404 as no mint for bridgeID.
func (l *HTTPLedger) LookupMint(ctx context.Context, bridgeID string) (string, bool, error) {
	var resp transferResponse
	err := l.do(ctx, http.MethodGet, "/mint/"+url.PathEscape(bridgeID), nil, &resp)
	if se, ok := err.(*StatusError); ok && se.Code == http.StatusNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if resp.TxHash == "" {
		return "", false, fmt.Errorf("ledger gateway returned no mint transaction for %s", bridgeID)
	}
	return resp.TxHash, true, nil
}

func (l *HTTPLedger) transfer(ctx context.Context, path string, req bridge.TransferRequest) (string, error) {
	var resp transferResponse
	if err := l.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", err
	}
	if resp.TxHash == "" {
		return "", fmt.Errorf("ledger gateway %s returned no transaction hash", path)
	}
	return resp.TxHash, nil
}

func (l *HTTPLedger) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	l.rl.Take()
	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	l.logger.Debug("ledger request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
