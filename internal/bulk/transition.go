package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DecisionApplier applies one verification or account decision to one
// entity. Decision is one of approve, reject, activate, suspend; notify
// asks for a decision notice to the business. The call must be idempotent
// so retried jobs do not fail on their own earlier progress.
type DecisionApplier interface {
	ApplyDecision(ctx context.Context, entityID, decision, reason, actor string, notify bool) error
}

// HTTPTransitionClient applies decisions through the main platform API
// instead of the local store. The platform endpoints are batch shaped;
// the client sends one-entity batches so per-item outcomes stay exact.
type HTTPTransitionClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPTransitionClient creates a client against the platform base URL.
func NewHTTPTransitionClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPTransitionClient {
	return &HTTPTransitionClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// transitionPaths maps decisions onto the platform's admin endpoints.
var transitionPaths = map[string]string{
	"approve":  "/admin/verification/bulk-approve",
	"reject":   "/admin/verification/bulk-reject",
	"activate": "/admin/accounts/bulk-activate",
	"suspend":  "/admin/accounts/bulk-suspend",
}

type transitionRequest struct {
	EntityIDs []string `json:"entityIds"`
	Reason    string   `json:"reason,omitempty"`
	ActorID   string   `json:"actorId,omitempty"`
	Notify    bool     `json:"notify,omitempty"`
}

type transitionResponse struct {
	Processed int `json:"processed"`
	Errors    []struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	} `json:"errors"`
}

// ApplyDecision posts a single-entity batch for the decision and unpacks
// the per-entity outcome.
func (c *HTTPTransitionClient) ApplyDecision(ctx context.Context, entityID, decision, reason, actor string, notify bool) error {
	path, ok := transitionPaths[decision]
	if !ok {
		return fmt.Errorf("unknown decision %q", decision)
	}

	payload, err := json.Marshal(transitionRequest{
		EntityIDs: []string{entityID},
		Reason:    reason,
		ActorID:   actor,
		Notify:    notify,
	})
	if err != nil {
		return fmt.Errorf("failed to encode transition request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build transition request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to apply %s: %w", decision, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Transition returned non-OK",
			zap.String("entity_id", entityID),
			zap.String("decision", decision),
			zap.Int("status_code", resp.StatusCode))
		return fmt.Errorf("%s failed with status %d", decision, resp.StatusCode)
	}

	var out transitionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode transition response: %w", err)
	}

	for _, item := range out.Errors {
		if item.ID == entityID {
			return fmt.Errorf("platform rejected %s: %s", decision, item.Reason)
		}
	}
	if out.Processed == 0 {
		return fmt.Errorf("platform did not process %s for entity", decision)
	}
	return nil
}

// ApplierChain runs appliers in order, stopping at the first failure. Putting
// the platform client before the local store means an entity's record only
// changes here once the platform has confirmed the transition.
type ApplierChain []DecisionApplier

func (c ApplierChain) ApplyDecision(ctx context.Context, entityID, decision, reason, actor string, notify bool) error {
	for _, applier := range c {
		if err := applier.ApplyDecision(ctx, entityID, decision, reason, actor, notify); err != nil {
			return err
		}
	}
	return nil
}
