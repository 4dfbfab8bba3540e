package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist or does not belong to
// the caller.
var ErrNotFound = errors.New("not found")

// Document types.
const (
	DocumentNote      = "note"
	DocumentInterview = "interview"
	DocumentImport    = "import"
	DocumentPlaybook  = "playbook"
)

// Document is a stored BlockNote document. Content holds the serialized
// block array; it is empty in list results.
type Document struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	Source    string    `json:"source,omitempty"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Invitation statuses as stored. Expiry is derived from ExpiresAt.
const (
	InvitationPending   = "pending"
	InvitationAccepted  = "accepted"
	InvitationDeclined  = "declined"
	InvitationCompleted = "completed"
)

type Invitation struct {
	ID          string    `json:"id"`
	Token       string    `json:"token"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	SenderEmail string    `json:"sender_email"`
	ExpertName  string    `json:"expert_name"`
	ExpertEmail string    `json:"expert_email"`
	Topic       string    `json:"topic"`
	Message     string    `json:"message,omitempty"`
	Status      string    `json:"status"`
	DocumentID  *string   `json:"document_id,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Playbook struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"owner_id"`
	Title             string    `json:"title"`
	Summary           string    `json:"summary"`
	Content           string    `json:"content,omitempty"`
	SourceDocumentIDs []string  `json:"source_document_ids"`
	Model             string    `json:"model,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
