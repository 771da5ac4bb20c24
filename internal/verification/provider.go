package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/auth"
)

// StatusResponse is the composite verification answer for one user:
// the record (nil when none exists yet), optionally precomputed
// capabilities, account restrictions, and suggested next steps.
type StatusResponse struct {
	Record       *Record         `json:"record"`
	Capabilities *CapabilitySet  `json:"capabilities,omitempty"`
	Restrictions RestrictionInfo `json:"restrictions"`
	NextSteps    []string        `json:"nextSteps"`
}

// StatusProvider fetches the verification status for a user.
type StatusProvider interface {
	Fetch(ctx context.Context, userID string) (*StatusResponse, error)
}

// EffectiveCapabilities chooses between the provider's precomputed
// capabilities and the local resolver. A precomputed set is authoritative;
// reapplying the resolver on top of it would double-gate.
func EffectiveCapabilities(resp *StatusResponse, role auth.Role) CapabilitySet {
	if resp.Capabilities != nil {
		return *resp.Capabilities
	}
	return Resolve(resp.Record, role)
}

// HTTPStatusProvider fetches verification status from the main platform API.
type HTTPStatusProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPStatusProvider creates a provider against the platform base URL.
// Every fetch carries the given timeout.
func NewHTTPStatusProvider(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPStatusProvider {
	return &HTTPStatusProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// statusWire tolerates the platform's legacy payload shape: a missing
// three-state status with a bare isVerified boolean.
type statusWire struct {
	Record       *recordWire     `json:"record"`
	Capabilities *CapabilitySet  `json:"capabilities"`
	Restrictions RestrictionInfo `json:"restrictions"`
	NextSteps    []string        `json:"nextSteps"`
}

type recordWire struct {
	EntityID         string     `json:"entityId"`
	EntityType       string     `json:"entityType"`
	Status           string     `json:"status"`
	IsVerified       *bool      `json:"isVerified"`
	AdminNotes       *string    `json:"adminNotes"`
	VerificationDate *time.Time `json:"verificationDate"`
	SubmittedAt      time.Time  `json:"submittedAt"`
}

func (w *recordWire) toRecord() *Record {
	status := NormalizeStatus(w.Status)
	if w.Status == "" && w.IsVerified != nil && *w.IsVerified {
		// Legacy two-state payload: verified maps to approved, anything
		// else stays pending since the boolean cannot express rejection.
		status = StatusApproved
	}
	entityType, ok := ParseEntityType(w.EntityType)
	if !ok {
		entityType = EntityTypeVendor
	}
	rec := &Record{
		EntityID:         w.EntityID,
		EntityType:       entityType,
		Status:           status,
		SubmittedAt:      w.SubmittedAt,
		VerificationDate: w.VerificationDate,
	}
	if status == StatusRejected {
		rec.AdminNotes = w.AdminNotes
	}
	if status != StatusApproved {
		rec.VerificationDate = nil
	}
	return rec
}

// Fetch retrieves the verification status for a user from the platform.
func (p *HTTPStatusProvider) Fetch(ctx context.Context, userID string) (*StatusResponse, error) {
	endpoint := fmt.Sprintf("%s/verification/status/%s", p.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch verification status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("Status fetch returned non-OK",
			zap.String("user_id", userID),
			zap.Int("status_code", resp.StatusCode))
		return nil, fmt.Errorf("verification status fetch failed with status %d", resp.StatusCode)
	}

	var wire statusWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode verification status: %w", err)
	}

	out := &StatusResponse{
		Capabilities: wire.Capabilities,
		Restrictions: wire.Restrictions,
		NextSteps:    wire.NextSteps,
	}
	if wire.Record != nil {
		out.Record = wire.Record.toRecord()
	}
	return out, nil
}
