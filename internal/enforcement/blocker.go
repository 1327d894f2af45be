package enforcement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// Blocker asks the network enforcement point to stop a transfer.
type Blocker interface {
	Block(ctx context.Context, req BlockRequest) error
}

// BlockRequest describes the transfer to block.
type BlockRequest struct {
	SourceIP     string   `json:"source_ip,omitempty"`
	SourceUser   string   `json:"source_user,omitempty"`
	SourceDevice string   `json:"source_device,omitempty"`
	Policies     []string `json:"policies"`
	EntityTypes  []string `json:"entity_types"`
	Reason       string   `json:"reason"`
}

// HTTPBlocker calls an external blocking service over HTTP.
type HTTPBlocker struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPBlocker creates a blocker posting to baseURL/api/v1/block.
// timeout bounds each call in addition to the caller's context.
func NewHTTPBlocker(baseURL, apiKey string, timeout time.Duration) *HTTPBlocker {
	return &HTTPBlocker{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Block posts req to the blocking service. Transport failures and non-2xx
// responses are reported as models.ErrCollaboratorUnavailable.
func (b *HTTPBlocker) Block(ctx context.Context, req BlockRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode block request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/v1/block", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build block request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: blocking service: %v", models.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: blocking service returned status %d", models.ErrCollaboratorUnavailable, resp.StatusCode)
	}
	return nil
}

// SimulatedBlocker records block requests in the log and always succeeds.
// It stands in when no blocking service is configured.
type SimulatedBlocker struct {
	logger *security.Logger
}

// NewSimulatedBlocker creates a simulated blocker.
func NewSimulatedBlocker(logger *security.Logger) *SimulatedBlocker {
	return &SimulatedBlocker{logger: logger}
}

// Block logs the request.
func (s *SimulatedBlocker) Block(ctx context.Context, req BlockRequest) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, err)
	}
	s.logger.InfoWithFields("simulated block", map[string]interface{}{
		"source_ip":    req.SourceIP,
		"policies":     req.Policies,
		"entity_types": req.EntityTypes,
	})
	return nil
}

// NewBlocker returns an HTTPBlocker when enabled, otherwise a SimulatedBlocker.
func NewBlocker(enabled bool, baseURL, apiKey string, timeout time.Duration, logger *security.Logger) Blocker {
	if enabled && baseURL != "" {
		return NewHTTPBlocker(baseURL, apiKey, timeout)
	}
	return NewSimulatedBlocker(logger)
}
