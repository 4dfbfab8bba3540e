// Package invitation manages expert interview invitations: creation, the
// pending -> accepted -> completed lifecycle, and the emails around it.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tacivo/tacivo/internal/email"
	"github.com/tacivo/tacivo/internal/store"
)

// StatusExpired is reported for pending invitations past their expiry. It is
// never stored.
const StatusExpired = "expired"

var (
	ErrInvalidInput      = errors.New("invalid invitation")
	ErrExpired           = errors.New("invitation expired")
	ErrInvalidTransition = errors.New("invalid invitation status transition")
)

// Store is the persistence the service needs.
type Store interface {
	CreateInvitation(ctx context.Context, inv store.Invitation) (store.Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (store.Invitation, error)
	ListInvitations(ctx context.Context, senderID string) ([]store.Invitation, error)
	UpdateInvitationStatus(ctx context.Context, id, from, to string) error
	AttachInvitationDocument(ctx context.Context, id, documentID string) error
}

// Mailer sends the lifecycle emails.
type Mailer interface {
	IsConfigured() bool
	SendInvitation(ctx context.Context, to string, data email.InvitationData) error
	SendAccepted(ctx context.Context, to string, data email.AcceptedData) error
	SendCompleted(ctx context.Context, to string, data email.CompletedData) error
}

// Service implements the invitation lifecycle.
type Service struct {
	store   Store
	mailer  Mailer
	ttl     time.Duration
	baseURL string
	log     *slog.Logger
	now     func() time.Time
}

func NewService(st Store, mailer Mailer, ttl time.Duration, appBaseURL string, log *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:   st,
		mailer:  mailer,
		ttl:     ttl,
		baseURL: strings.TrimRight(appBaseURL, "/"),
		log:     log,
		now:     time.Now,
	}
}

// CreateInput is what a sender provides.
type CreateInput struct {
	SenderID    string
	SenderName  string
	SenderEmail string
	ExpertName  string
	ExpertEmail string
	Topic       string
	Message     string
}

func (in *CreateInput) normalize() error {
	in.ExpertName = strings.TrimSpace(in.ExpertName)
	in.ExpertEmail = strings.TrimSpace(in.ExpertEmail)
	in.Topic = strings.TrimSpace(in.Topic)
	in.Message = strings.TrimSpace(in.Message)
	switch {
	case in.SenderID == "":
		return fmt.Errorf("%w: missing sender", ErrInvalidInput)
	case in.Topic == "":
		return fmt.Errorf("%w: topic is required", ErrInvalidInput)
	case len(in.Topic) > 300:
		return fmt.Errorf("%w: topic too long", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.ExpertEmail); err != nil {
		return fmt.Errorf("%w: expert email: %v", ErrInvalidInput, err)
	}
	return nil
}

// InviteURL is the link an expert follows to start the interview.
func (s *Service) InviteURL(token string) string {
	return s.baseURL + "/invite/" + token
}

// Create stores a new pending invitation and emails the expert. Email
// failures are logged; the invitation is still returned.
func (s *Service) Create(ctx context.Context, in CreateInput) (store.Invitation, error) {
	if err := in.normalize(); err != nil {
		return store.Invitation{}, err
	}

	inv, err := s.store.CreateInvitation(ctx, store.Invitation{
		Token:       uuid.NewString(),
		SenderID:    in.SenderID,
		SenderName:  in.SenderName,
		SenderEmail: in.SenderEmail,
		ExpertName:  in.ExpertName,
		ExpertEmail: in.ExpertEmail,
		Topic:       in.Topic,
		Message:     in.Message,
		Status:      store.InvitationPending,
		ExpiresAt:   s.now().Add(s.ttl).UTC(),
	})
	if err != nil {
		return store.Invitation{}, fmt.Errorf("create invitation: %w", err)
	}

	s.notify(inv, "invitation", func() error {
		return s.mailer.SendInvitation(ctx, inv.ExpertEmail, email.InvitationData{
			SenderName:  inv.SenderName,
			ExpertName:  inv.ExpertName,
			Topic:       inv.Topic,
			Message:     inv.Message,
			InviteURL:   s.InviteURL(inv.Token),
			ExpiresDate: inv.ExpiresAt.Format("January 2, 2006"),
		})
	})
	return inv, nil
}

// Lookup returns the invitation for token with its effective status.
func (s *Service) Lookup(ctx context.Context, token string) (store.Invitation, error) {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return store.Invitation{}, err
	}
	inv.Status = s.effectiveStatus(inv)
	return inv, nil
}

// List returns the sender's invitations with effective statuses.
func (s *Service) List(ctx context.Context, senderID string) ([]store.Invitation, error) {
	items, err := s.store.ListInvitations(ctx, senderID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Status = s.effectiveStatus(items[i])
	}
	return items, nil
}

func (s *Service) effectiveStatus(inv store.Invitation) string {
	if inv.Status == store.InvitationPending && !s.now().Before(inv.ExpiresAt) {
		return StatusExpired
	}
	return inv.Status
}

// Accept moves a pending invitation to accepted and tells the sender.
func (s *Service) Accept(ctx context.Context, token string) (store.Invitation, error) {
	inv, err := s.transition(ctx, token, store.InvitationPending, store.InvitationAccepted)
	if err != nil {
		return store.Invitation{}, err
	}
	s.notifySender(inv, "accepted", func() error {
		return s.mailer.SendAccepted(ctx, inv.SenderEmail, email.AcceptedData{
			SenderName: inv.SenderName,
			ExpertName: inv.ExpertName,
			Topic:      inv.Topic,
		})
	})
	return inv, nil
}

// Decline moves a pending invitation to declined.
func (s *Service) Decline(ctx context.Context, token string) (store.Invitation, error) {
	return s.transition(ctx, token, store.InvitationPending, store.InvitationDeclined)
}

// Complete attaches the interview document to an accepted invitation,
// marks it completed and tells the sender.
func (s *Service) Complete(ctx context.Context, token, documentID string) (store.Invitation, error) {
	if strings.TrimSpace(documentID) == "" {
		return store.Invitation{}, fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return store.Invitation{}, err
	}
	if inv.Status != store.InvitationAccepted {
		return store.Invitation{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.effectiveStatus(inv), store.InvitationCompleted)
	}
	if err := s.store.AttachInvitationDocument(ctx, inv.ID, documentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Invitation{}, fmt.Errorf("%w: invitation changed concurrently", ErrInvalidTransition)
		}
		return store.Invitation{}, fmt.Errorf("complete invitation: %w", err)
	}
	inv.Status = store.InvitationCompleted
	inv.DocumentID = &documentID

	s.notifySender(inv, "completed", func() error {
		return s.mailer.SendCompleted(ctx, inv.SenderEmail, email.CompletedData{
			SenderName:  inv.SenderName,
			ExpertName:  inv.ExpertName,
			Topic:       inv.Topic,
			DocumentURL: s.baseURL + "/documents/" + documentID,
		})
	})
	return inv, nil
}

func (s *Service) transition(ctx context.Context, token, from, to string) (store.Invitation, error) {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return store.Invitation{}, err
	}
	current := s.effectiveStatus(inv)
	if current == StatusExpired {
		return store.Invitation{}, ErrExpired
	}
	if current != from {
		return store.Invitation{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
	}
	if err := s.store.UpdateInvitationStatus(ctx, inv.ID, from, to); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Invitation{}, fmt.Errorf("%w: invitation changed concurrently", ErrInvalidTransition)
		}
		return store.Invitation{}, fmt.Errorf("update invitation: %w", err)
	}
	inv.Status = to
	s.log.Info("invitation status changed", "invitation_id", inv.ID, "from", from, "to", to)
	return inv, nil
}

func (s *Service) notifySender(inv store.Invitation, kind string, send func() error) {
	if inv.SenderEmail == "" {
		return
	}
	s.notify(inv, kind, send)
}

func (s *Service) notify(inv store.Invitation, kind string, send func() error) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		s.log.Debug("email not configured, skipping", "kind", kind, "invitation_id", inv.ID)
		return
	}
	if err := send(); err != nil {
		s.log.Warn("send invitation email failed", "kind", kind, "invitation_id", inv.ID, "error", err)
	}
}
