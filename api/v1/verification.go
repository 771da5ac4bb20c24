package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/verification"
)

// VerificationAPI holds the verification API dependencies
type VerificationAPI struct {
	Handler    *verification.Handler
	Service    *verification.Service
	Repository verification.Repository
	Cache      *verification.StatusCache
}

// VerificationDeps carries the collaborators the verification module does
// not own. Notifier may be nil to disable decision notices.
type VerificationDeps struct {
	Notifier verification.DecisionNotifier
	Urgency  verification.UrgencyThresholds
	CacheTTL time.Duration
}

// SetupVerificationAPI sets up the verification API with all dependencies
func SetupVerificationAPI(db *sqlx.DB, deps VerificationDeps, logger *zap.Logger) (*VerificationAPI, error) {
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = 30 * time.Second
	}

	// Create repository
	repository := verification.NewPostgresRepository(db)

	// Create status cache
	cache := verification.NewStatusCache(deps.CacheTTL)

	// Create service
	service := verification.NewService(repository, deps.Notifier, cache, deps.Urgency, logger)

	// Create handler
	handler := verification.NewHandler(service, logger)

	return &VerificationAPI{
		Handler:    handler,
		Service:    service,
		Repository: repository,
		Cache:      cache,
	}, nil
}

// RegisterVerificationRoutes registers the verification routes on the router group
func RegisterVerificationRoutes(router *gin.RouterGroup, api *VerificationAPI) {
	api.Handler.RegisterRoutes(router)
}
