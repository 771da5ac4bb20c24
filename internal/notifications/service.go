package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store persists delivery logs and message templates.
type Store interface {
	SaveDeliveryLog(ctx context.Context, entry *DeliveryLog) error
	GetTemplate(ctx context.Context, code string) (*MessageTemplate, error)
	ListJobDeliveries(ctx context.Context, jobID uuid.UUID) ([]DeliveryLog, error)
}

// GormStore implements Store on PostgreSQL via GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the notification tables and seeds the default
// templates.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&DeliveryLog{}, &MessageTemplate{}); err != nil {
		return nil, fmt.Errorf("failed to migrate notification tables: %w", err)
	}
	if err := seedDefaultTemplates(db); err != nil {
		return nil, fmt.Errorf("failed to seed message templates: %w", err)
	}
	return &GormStore{db: db}, nil
}

func seedDefaultTemplates(db *gorm.DB) error {
	for _, tmpl := range DefaultTemplates {
		var existing MessageTemplate
		err := db.Where("code = ?", tmpl.Code).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&tmpl).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *GormStore) SaveDeliveryLog(ctx context.Context, entry *DeliveryLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) GetTemplate(ctx context.Context, code string) (*MessageTemplate, error) {
	var tmpl MessageTemplate
	err := s.db.WithContext(ctx).Where("code = ? AND is_active = true", code).First(&tmpl).Error
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

func (s *GormStore) ListJobDeliveries(ctx context.Context, jobID uuid.UUID) ([]DeliveryLog, error) {
	var logs []DeliveryLog
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}

// Service delivers verification decision notices and admin bulk messages
// over email and SMS, logging every attempt.
type Service struct {
	store  Store
	email  *EmailChannel
	sms    *SMSChannel
	logger *zap.Logger
}

// NewService creates a notification service. Either channel may be nil when
// that transport is not configured.
func NewService(store Store, email *EmailChannel, sms *SMSChannel, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		email:  email,
		sms:    sms,
		logger: logger,
	}
}

// NotifyDecision sends the approval or rejection notice for one entity.
func (s *Service) NotifyDecision(ctx context.Context, contact ContactInfo, approved bool, notes string) error {
	code := TemplateApproved
	if !approved {
		code = TemplateRejected
	}

	subject, body := s.renderTemplate(ctx, code, map[string]string{
		"businessName": contact.BusinessName,
		"notes":        notes,
	})

	return s.deliver(ctx, nil, contact, subject, body)
}

// SendJobMessage delivers an admin-authored message to one entity as part
// of a bulk message job.
func (s *Service) SendJobMessage(ctx context.Context, jobID uuid.UUID, contact ContactInfo, message string) error {
	subject := "A message from the Aaroth Fresh team"
	return s.deliver(ctx, &jobID, contact, subject, message)
}

// ListJobDeliveries returns the delivery trail for one bulk message job.
func (s *Service) ListJobDeliveries(ctx context.Context, jobID uuid.UUID) ([]DeliveryLog, error) {
	return s.store.ListJobDeliveries(ctx, jobID)
}

// deliver attempts every configured channel the contact is reachable on.
// It succeeds when at least one channel accepted the message.
func (s *Service) deliver(ctx context.Context, jobID *uuid.UUID, contact ContactInfo, subject, body string) error {
	attempted := 0
	delivered := 0
	var lastErr error

	if s.email != nil && contact.Email != "" {
		attempted++
		err := s.email.Send(ctx, contact.Email, subject, body)
		s.logAttempt(ctx, jobID, ChannelEmail, contact.Email, subject, body, err)
		if err != nil {
			lastErr = err
		} else {
			delivered++
		}
	}

	if s.sms != nil && contact.Phone != "" {
		attempted++
		err := s.sms.Send(ctx, contact.Phone, body)
		s.logAttempt(ctx, jobID, ChannelSMS, contact.Phone, subject, body, err)
		if err != nil {
			lastErr = err
		} else {
			delivered++
		}
	}

	if attempted == 0 {
		return fmt.Errorf("no reachable channel for %q", contact.BusinessName)
	}
	if delivered == 0 {
		return fmt.Errorf("all delivery channels failed: %w", lastErr)
	}
	return nil
}

func (s *Service) logAttempt(ctx context.Context, jobID *uuid.UUID, channel, recipient, subject, body string, sendErr error) {
	entry := &DeliveryLog{
		ID:        uuid.New(),
		JobID:     jobID,
		Channel:   channel,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Status:    StatusSent,
		CreatedAt: time.Now(),
	}
	if sendErr != nil {
		entry.Status = StatusFailed
		msg := sendErr.Error()
		entry.Error = &msg
	}
	if err := s.store.SaveDeliveryLog(ctx, entry); err != nil {
		s.logger.Error("Failed to save delivery log",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// renderTemplate loads a template by code and substitutes its placeholders.
// When the store has no such template the built-in default is used, so a
// missing row never blocks a decision notice.
func (s *Service) renderTemplate(ctx context.Context, code string, vars map[string]string) (string, string) {
	var subject, body string

	tmpl, err := s.store.GetTemplate(ctx, code)
	if err == nil {
		subject, body = tmpl.Subject, tmpl.Body
	} else {
		for _, fallback := range DefaultTemplates {
			if fallback.Code == code {
				subject, body = fallback.Subject, fallback.Body
				break
			}
		}
	}

	for key, value := range vars {
		placeholder := "{{" + key + "}}"
		subject = strings.ReplaceAll(subject, placeholder, value)
		body = strings.ReplaceAll(body, placeholder, value)
	}
	return subject, body
}
