package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/bulk"
)

// BulkAPI holds the bulk operations API dependencies
type BulkAPI struct {
	Handler      *bulk.Handler
	Service      *bulk.Service
	Orchestrator *bulk.Orchestrator
	Repository   bulk.Repository
}

// BulkDeps carries the collaborators the bulk module does not own. The
// repository itself serves as contact and export row source.
type BulkDeps struct {
	Applier   bulk.DecisionApplier
	Messages  bulk.MessageSender
	Artifacts bulk.ArtifactStore
	Publisher bulk.ProgressPublisher
	Run       bulk.Options
	Lifecycle bulk.ServiceOptions
}

// SetupBulkAPI sets up the bulk operations API with all dependencies
func SetupBulkAPI(db *sqlx.DB, deps BulkDeps, logger *zap.Logger) (*BulkAPI, error) {
	// Create repository
	repository := bulk.NewPostgresRepository(db)

	// Create executors
	executors := &bulk.ExecutorSet{
		Transition: bulk.NewTransitionExecutor(deps.Applier),
		Message:    bulk.NewMessageExecutor(repository, deps.Messages),
		Export:     bulk.NewExportExecutor(repository, deps.Artifacts),
	}

	// Create orchestrator
	orchestrator := bulk.NewOrchestrator(repository, executors, deps.Publisher, logger, deps.Run)

	// Create service
	service := bulk.NewService(repository, orchestrator, deps.Artifacts, logger, deps.Lifecycle)

	// Create handler
	handler := bulk.NewHandler(service, logger)

	return &BulkAPI{
		Handler:      handler,
		Service:      service,
		Orchestrator: orchestrator,
		Repository:   repository,
	}, nil
}

// RegisterBulkRoutes registers the bulk operation routes on the router group
func RegisterBulkRoutes(router *gin.RouterGroup, api *BulkAPI) {
	api.Handler.RegisterRoutes(router)
}
