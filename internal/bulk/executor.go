package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/bulk/export"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/notifications"
)

// Artifact is a rendered export object persisted to artifact storage.
type Artifact struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

// ItemExecutor performs the work for one item of a job. Implementations
// must honor ctx cancellation and deadlines; a nil Artifact means the item
// produced no output object.
type ItemExecutor interface {
	Execute(ctx context.Context, spec JobSpec, itemID string) (*Artifact, error)
}

// MessageSender delivers one admin-authored message to one entity.
// Satisfied by notifications.Service.
type MessageSender interface {
	SendJobMessage(ctx context.Context, jobID uuid.UUID, contact notifications.ContactInfo, message string) error
}

// ContactSource looks up delivery contact details for an entity.
type ContactSource interface {
	GetContact(ctx context.Context, entityID string) (notifications.ContactInfo, error)
}

// RowSource fetches the export rows for a set of target entities.
type RowSource interface {
	FetchExportRows(ctx context.Context, targetIDs []string) ([]export.Row, error)
}

// ArtifactStore persists export artifacts, mints download URLs, and removes
// artifacts when their job ages out of retention.
type ArtifactStore interface {
	Upload(ctx context.Context, key, contentType string, body []byte) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// opDecisions maps status-changing operations onto decision names.
var opDecisions = map[OperationType]string{
	OperationApprove:  "approve",
	OperationReject:   "reject",
	OperationActivate: "activate",
	OperationSuspend:  "suspend",
}

// transitionExecutor applies one verification or account decision per item.
type transitionExecutor struct {
	applier DecisionApplier
}

// NewTransitionExecutor builds the executor for approve, reject, activate
// and suspend jobs.
func NewTransitionExecutor(applier DecisionApplier) ItemExecutor {
	return &transitionExecutor{applier: applier}
}

func (e *transitionExecutor) Execute(ctx context.Context, spec JobSpec, itemID string) (*Artifact, error) {
	decision, ok := opDecisions[spec.OperationType]
	if !ok {
		return nil, fmt.Errorf("operation %s is not a status transition", spec.OperationType)
	}
	if err := e.applier.ApplyDecision(ctx, itemID, decision, spec.Params.Reason, spec.RequestedBy, spec.Params.Notify); err != nil {
		return nil, err
	}
	return nil, nil
}

// messageExecutor sends the job's message to one entity per item.
type messageExecutor struct {
	contacts ContactSource
	sender   MessageSender
}

// NewMessageExecutor builds the executor for message jobs.
func NewMessageExecutor(contacts ContactSource, sender MessageSender) ItemExecutor {
	return &messageExecutor{contacts: contacts, sender: sender}
}

func (e *messageExecutor) Execute(ctx context.Context, spec JobSpec, itemID string) (*Artifact, error) {
	contact, err := e.contacts.GetContact(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve contact: %w", err)
	}
	if err := e.sender.SendJobMessage(ctx, spec.ID, contact, spec.Params.Message); err != nil {
		return nil, err
	}
	return nil, nil
}

// exportExecutor renders all target rows into a single artifact. The whole
// export is one item, so a job over a thousand entities still reports
// progress as zero-or-one of one.
type exportExecutor struct {
	rows  RowSource
	store ArtifactStore

	// URL lifetime for the presigned download link.
	linkExpiry time.Duration
}

// NewExportExecutor builds the executor for export jobs.
func NewExportExecutor(rows RowSource, store ArtifactStore) ItemExecutor {
	return &exportExecutor{rows: rows, store: store, linkExpiry: 24 * time.Hour}
}

func (e *exportExecutor) Execute(ctx context.Context, spec JobSpec, itemID string) (*Artifact, error) {
	rows, err := e.rows.FetchExportRows(ctx, spec.TargetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch export rows: %w", err)
	}

	body, contentType, ext, err := export.Render(spec.Params.Format, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to render export: %w", err)
	}

	key := fmt.Sprintf("bulk-exports/%s/businesses-%s.%s",
		spec.ID, time.Now().UTC().Format("20060102-150405"), ext)
	if err := e.store.Upload(ctx, key, contentType, body); err != nil {
		return nil, fmt.Errorf("failed to upload export artifact: %w", err)
	}

	url, err := e.store.PresignGet(ctx, key, e.linkExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to presign export artifact: %w", err)
	}

	return &Artifact{Key: key, URL: url, ContentType: contentType, Size: len(body)}, nil
}

// ExecutorSet routes each operation type to its executor.
type ExecutorSet struct {
	Transition ItemExecutor
	Message    ItemExecutor
	Export     ItemExecutor
}

// ForOperation picks the executor for an operation type.
func (s *ExecutorSet) ForOperation(op OperationType) (ItemExecutor, error) {
	switch op {
	case OperationApprove, OperationReject, OperationActivate, OperationSuspend:
		if s.Transition == nil {
			return nil, fmt.Errorf("no transition executor configured")
		}
		return s.Transition, nil
	case OperationMessage:
		if s.Message == nil {
			return nil, fmt.Errorf("no message executor configured")
		}
		return s.Message, nil
	case OperationExport:
		if s.Export == nil {
			return nil, fmt.Errorf("no export executor configured")
		}
		return s.Export, nil
	default:
		return nil, fmt.Errorf("unknown operation type %q", op)
	}
}
