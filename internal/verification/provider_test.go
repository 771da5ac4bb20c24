package verification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/auth"
)

func statusServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.Header.Get("X-API-Key"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func newTestProvider(baseURL string) *HTTPStatusProvider {
	return NewHTTPStatusProvider(baseURL, "secret-key", 2*time.Second, zap.NewNop())
}

func TestFetchThreeStatePayload(t *testing.T) {
	server := statusServer(t, http.StatusOK, `{
		"record": {
			"entityId": "entity-1",
			"entityType": "vendor",
			"status": "rejected",
			"adminNotes": "Upload valid trade license",
			"verificationDate": "2025-02-01T00:00:00Z",
			"submittedAt": "2025-01-20T00:00:00Z"
		},
		"restrictions": {"hasRestrictions": true, "reason": "Account limited."},
		"nextSteps": ["Resubmit your registration"]
	}`)
	defer server.Close()

	resp, err := newTestProvider(server.URL).Fetch(context.Background(), "user-1")
	require.NoError(t, err)

	require.NotNil(t, resp.Record)
	assert.Equal(t, StatusRejected, resp.Record.Status)
	require.NotNil(t, resp.Record.AdminNotes)
	assert.Equal(t, "Upload valid trade license", *resp.Record.AdminNotes)
	// A rejected record never carries a verification date, whatever the wire says.
	assert.Nil(t, resp.Record.VerificationDate)
	assert.True(t, resp.Restrictions.HasRestrictions)
	assert.Equal(t, []string{"Resubmit your registration"}, resp.NextSteps)
}

func TestFetchLegacyVerifiedPayload(t *testing.T) {
	server := statusServer(t, http.StatusOK, `{
		"record": {
			"entityId": "entity-1",
			"entityType": "restaurant",
			"isVerified": true,
			"submittedAt": "2025-01-20T00:00:00Z"
		}
	}`)
	defer server.Close()

	resp, err := newTestProvider(server.URL).Fetch(context.Background(), "user-1")
	require.NoError(t, err)

	require.NotNil(t, resp.Record)
	assert.Equal(t, StatusApproved, resp.Record.Status)
	assert.Equal(t, EntityTypeBuyer, resp.Record.EntityType)
}

func TestFetchLegacyUnverifiedPayload(t *testing.T) {
	server := statusServer(t, http.StatusOK, `{
		"record": {
			"entityId": "entity-1",
			"entityType": "vendor",
			"isVerified": false,
			"submittedAt": "2025-01-20T00:00:00Z"
		}
	}`)
	defer server.Close()

	resp, err := newTestProvider(server.URL).Fetch(context.Background(), "user-1")
	require.NoError(t, err)

	// The boolean cannot express rejection, so unverified degrades to pending.
	require.NotNil(t, resp.Record)
	assert.Equal(t, StatusPending, resp.Record.Status)
}

func TestFetchDropsNotesUnlessRejected(t *testing.T) {
	server := statusServer(t, http.StatusOK, `{
		"record": {
			"entityId": "entity-1",
			"entityType": "vendor",
			"status": "pending",
			"adminNotes": "leftover from an old review",
			"submittedAt": "2025-01-20T00:00:00Z"
		}
	}`)
	defer server.Close()

	resp, err := newTestProvider(server.URL).Fetch(context.Background(), "user-1")
	require.NoError(t, err)

	require.NotNil(t, resp.Record)
	assert.Nil(t, resp.Record.AdminNotes)
}

func TestFetchMissingRecord(t *testing.T) {
	server := statusServer(t, http.StatusOK, `{"record": null, "nextSteps": []}`)
	defer server.Close()

	resp, err := newTestProvider(server.URL).Fetch(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Nil(t, resp.Record)
	assert.Nil(t, resp.Capabilities)
}

func TestFetchNonOKStatus(t *testing.T) {
	server := statusServer(t, http.StatusBadGateway, `upstream down`)
	defer server.Close()

	_, err := newTestProvider(server.URL).Fetch(context.Background(), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFetchUnreachable(t *testing.T) {
	provider := NewHTTPStatusProvider("http://127.0.0.1:1", "secret-key", 200*time.Millisecond, zap.NewNop())

	_, err := provider.Fetch(context.Background(), "user-1")
	assert.Error(t, err)
}

func TestEffectiveCapabilitiesPrefersPrecomputed(t *testing.T) {
	resp := &StatusResponse{
		Record:       NewRecord("entity-1", EntityTypeVendor, time.Now()),
		Capabilities: &CapabilitySet{CanCreateListings: true},
	}

	caps := EffectiveCapabilities(resp, auth.RoleVendor)
	assert.True(t, caps.CanCreateListings)
}

func TestEffectiveCapabilitiesResolvesWhenAbsent(t *testing.T) {
	resp := &StatusResponse{Record: approvedRecord()}

	caps := EffectiveCapabilities(resp, auth.RoleVendor)
	assert.True(t, caps.CanCreateListings)
	assert.True(t, caps.CanManageBusiness)

	resp = &StatusResponse{}
	caps = EffectiveCapabilities(resp, auth.RoleVendor)
	assert.False(t, caps.CanCreateListings)
	assert.True(t, caps.CanUpdateProfile)
}
