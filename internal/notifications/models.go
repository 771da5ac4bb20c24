package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Channels and delivery statuses.
const (
	ChannelEmail = "EMAIL"
	ChannelSMS   = "SMS"

	StatusSent   = "SENT"
	StatusFailed = "FAILED"
)

// ContactInfo is the delivery target for one business entity.
type ContactInfo struct {
	BusinessName string `json:"businessName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
}

// DeliveryLog records one delivery attempt on one channel.
type DeliveryLog struct {
	ID        uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	JobID     *uuid.UUID     `json:"job_id" gorm:"type:uuid;index"`
	Channel   string         `json:"channel" gorm:"not null"`
	Recipient string         `json:"recipient" gorm:"not null;index"`
	Subject   string         `json:"subject" gorm:""`
	Body      string         `json:"body" gorm:""`
	Status    string         `json:"status" gorm:"not null"`
	Error     *string        `json:"error" gorm:""`
	Metadata  datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// MessageTemplate is a reusable subject/body pair. Bodies may reference
// {{businessName}} and {{notes}} placeholders.
type MessageTemplate struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Code      string    `json:"code" gorm:"not null;uniqueIndex"`
	Subject   string    `json:"subject" gorm:"not null"`
	Body      string    `json:"body" gorm:"not null"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Template codes used by the verification flow.
const (
	TemplateApproved = "VERIFICATION_APPROVED"
	TemplateRejected = "VERIFICATION_REJECTED"
)

// DefaultTemplates seed the template table on first start.
var DefaultTemplates = []MessageTemplate{
	{
		Code:     TemplateApproved,
		Subject:  "Your business is verified",
		Body:     "Congratulations {{businessName}}! Your business has been verified on Aaroth Fresh. You now have full access to the marketplace.",
		IsActive: true,
	},
	{
		Code:     TemplateRejected,
		Subject:  "Your verification needs attention",
		Body:     "Hello {{businessName}}, your verification submission was not approved. Reviewer notes: {{notes}} Please update your registration and resubmit.",
		IsActive: true,
	},
}
