// Package email sends transactional email through the Resend HTTP API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.resend.com"

// ErrNotConfigured is returned by Send when no API key or sender is set.
var ErrNotConfigured = errors.New("email not configured")

// Config holds Resend configuration.
type Config struct {
	APIKey   string
	From     string
	FromName string
	AppName  string
	BaseURL  string
}

// Message is one outgoing email.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
}

// Service provides email sending.
type Service struct {
	config     Config
	httpClient *http.Client
}

func NewService(config Config) *Service {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.AppName == "" {
		config.AppName = "Tacivo"
	}
	return &Service{
		config:     config,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// IsConfigured returns true if email can be sent.
func (s *Service) IsConfigured() bool {
	return s.config.APIKey != "" && s.config.From != ""
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// Send delivers msg and returns the provider's message ID.
func (s *Service) Send(ctx context.Context, msg Message) (string, error) {
	if !s.IsConfigured() {
		return "", ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return "", fmt.Errorf("send email: no recipients")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	body, err := json.Marshal(resendRequest{
		From:    from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
	})
	if err != nil {
		return "", fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("resend status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode resend response: %w", err)
	}
	return out.ID, nil
}

// InvitationData fills the invitation email sent to an expert.
type InvitationData struct {
	AppName     string
	SenderName  string
	ExpertName  string
	Topic       string
	Message     string
	InviteURL   string
	ExpiresDate string
}

// AcceptedData fills the notice sent to the inviter when an expert accepts.
type AcceptedData struct {
	AppName    string
	SenderName string
	ExpertName string
	Topic      string
}

// CompletedData fills the notice sent to the inviter when the interview is done.
type CompletedData struct {
	AppName     string
	SenderName  string
	ExpertName  string
	Topic       string
	DocumentURL string
}

// SendInvitation invites an expert to an interview.
func (s *Service) SendInvitation(ctx context.Context, to string, data InvitationData) error {
	data.AppName = s.config.AppName
	subject := fmt.Sprintf("%s invited you to share your expertise on %s", orDefault(data.SenderName, "A colleague"), data.Topic)
	return s.sendTemplate(ctx, to, subject, invitationTmpl, data)
}

// SendAccepted tells the inviter that the expert accepted.
func (s *Service) SendAccepted(ctx context.Context, to string, data AcceptedData) error {
	data.AppName = s.config.AppName
	subject := fmt.Sprintf("%s accepted your invitation", orDefault(data.ExpertName, "Your expert"))
	return s.sendTemplate(ctx, to, subject, acceptedTmpl, data)
}

// SendCompleted tells the inviter that the interview document is ready.
func (s *Service) SendCompleted(ctx context.Context, to string, data CompletedData) error {
	data.AppName = s.config.AppName
	subject := fmt.Sprintf("Interview on %s is complete", data.Topic)
	return s.sendTemplate(ctx, to, subject, completedTmpl, data)
}

func (s *Service) sendTemplate(ctx context.Context, to, subject string, tmpl *template.Template, data any) error {
	html, err := renderTemplate(tmpl, data)
	if err != nil {
		return fmt.Errorf("render %s template: %w", tmpl.Name(), err)
	}
	_, err = s.Send(ctx, Message{To: []string{to}, Subject: subject, HTML: html})
	return err
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func renderTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
