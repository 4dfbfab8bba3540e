package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", what, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func emptyDoc(content string) string {
	if content == "" {
		return "[]"
	}
	return content
}

// --- documents ---

// CreateDocument inserts doc, assigning an ID when it has none, and returns
// the stored row.
func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Type == "" {
		doc.Type = DocumentNote
	}
	doc.Content = emptyDoc(doc.Content)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (id, owner_id, title, type, source, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, doc.ID, doc.OwnerID, doc.Title, doc.Type, doc.Source, doc.Content).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

// GetDocument returns one document owned by ownerID, content included.
func (s *PostgresStore) GetDocument(ctx context.Context, ownerID, id string) (Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, type, source, content, created_at, updated_at
		FROM documents
		WHERE id=$1 AND owner_id=$2
	`, id, ownerID).Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.Type, &doc.Source, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, notFound(err))
	}
	return doc, nil
}

// GetDocuments returns the requested documents owned by ownerID in the order
// of ids. Missing IDs are reported in the second return value.
func (s *PostgresStore) GetDocuments(ctx context.Context, ownerID string, ids []string) ([]Document, []string, error) {
	docs := make([]Document, 0, len(ids))
	var missing []string
	for _, id := range ids {
		doc, err := s.GetDocument(ctx, ownerID, id)
		if errors.Is(err, ErrNotFound) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, doc)
	}
	return docs, missing, nil
}

// ListDocuments returns ownerID's documents, newest first, without content.
func (s *PostgresStore) ListDocuments(ctx context.Context, ownerID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, type, source, created_at, updated_at
		FROM documents
		WHERE owner_id=$1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Type, &item.Source, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

// UpdateDocumentContent replaces the content of a document, and its title
// when title is not empty.
func (s *PostgresStore) UpdateDocumentContent(ctx context.Context, ownerID, id, title, content string) (time.Time, error) {
	var updated time.Time
	err := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET title=COALESCE(NULLIF($3, ''), title), content=$4, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
		RETURNING updated_at
	`, id, ownerID, title, emptyDoc(content)).Scan(&updated)
	if err != nil {
		return time.Time{}, fmt.Errorf("update document %s: %w", id, notFound(err))
	}
	return updated, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1 AND owner_id=$2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return expectOne(res, "delete document")
}

// --- invitations ---

const invitationColumns = `id, token, sender_id, sender_name, sender_email, expert_name, expert_email,
		topic, message, status, document_id, expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (Invitation, error) {
	var inv Invitation
	var docID sql.NullString
	err := row.Scan(&inv.ID, &inv.Token, &inv.SenderID, &inv.SenderName, &inv.SenderEmail, &inv.ExpertName,
		&inv.ExpertEmail, &inv.Topic, &inv.Message, &inv.Status, &docID, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invitation{}, err
	}
	if docID.Valid {
		inv.DocumentID = &docID.String
	}
	return inv, nil
}

func (s *PostgresStore) CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.Status == "" {
		inv.Status = InvitationPending
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO invitations (id, token, sender_id, sender_name, sender_email, expert_name, expert_email,
			topic, message, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, inv.ID, inv.Token, inv.SenderID, inv.SenderName, inv.SenderEmail, inv.ExpertName, inv.ExpertEmail,
		inv.Topic, inv.Message, inv.Status, inv.ExpiresAt).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) GetInvitationByToken(ctx context.Context, token string) (Invitation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token=$1`, token)
	inv, err := scanInvitation(row)
	if err != nil {
		return Invitation{}, fmt.Errorf("get invitation: %w", notFound(err))
	}
	return inv, nil
}

// ListInvitations returns the invitations sent by senderID, newest first.
func (s *PostgresStore) ListInvitations(ctx context.Context, senderID string) ([]Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE sender_id=$1
		ORDER BY created_at DESC
	`, senderID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	items := make([]Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		items = append(items, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	return items, nil
}

// UpdateInvitationStatus moves an invitation from one status to another.
// It returns ErrNotFound when the invitation is not in status from, so
// concurrent transitions cannot both succeed.
func (s *PostgresStore) UpdateInvitationStatus(ctx context.Context, id, from, to string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invitations SET status=$3, updated_at=NOW()
		WHERE id=$1 AND status=$2
	`, id, from, to)
	if err != nil {
		return fmt.Errorf("update invitation status: %w", err)
	}
	return expectOne(res, "update invitation status")
}

// AttachInvitationDocument records the captured document and completes an
// accepted invitation.
func (s *PostgresStore) AttachInvitationDocument(ctx context.Context, id, documentID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invitations SET document_id=$2, status=$3, updated_at=NOW()
		WHERE id=$1 AND status=$4
	`, id, documentID, InvitationCompleted, InvitationAccepted)
	if err != nil {
		return fmt.Errorf("attach invitation document: %w", err)
	}
	return expectOne(res, "attach invitation document")
}

// --- playbooks ---

func (s *PostgresStore) CreatePlaybook(ctx context.Context, pb Playbook) (Playbook, error) {
	if pb.ID == "" {
		pb.ID = uuid.NewString()
	}
	if pb.SourceDocumentIDs == nil {
		pb.SourceDocumentIDs = []string{}
	}
	sources, err := json.Marshal(pb.SourceDocumentIDs)
	if err != nil {
		return Playbook{}, fmt.Errorf("marshal playbook sources: %w", err)
	}
	pb.Content = emptyDoc(pb.Content)
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO playbooks (id, owner_id, title, summary, content, source_document_ids, model)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, pb.ID, pb.OwnerID, pb.Title, pb.Summary, pb.Content, string(sources), pb.Model).Scan(&pb.CreatedAt)
	if err != nil {
		return Playbook{}, fmt.Errorf("insert playbook: %w", err)
	}
	return pb, nil
}

func (s *PostgresStore) GetPlaybook(ctx context.Context, ownerID, id string) (Playbook, error) {
	var (
		pb      Playbook
		sources string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, summary, content, source_document_ids, model, created_at
		FROM playbooks
		WHERE id=$1 AND owner_id=$2
	`, id, ownerID).Scan(&pb.ID, &pb.OwnerID, &pb.Title, &pb.Summary, &pb.Content, &sources, &pb.Model, &pb.CreatedAt)
	if err != nil {
		return Playbook{}, fmt.Errorf("get playbook %s: %w", id, notFound(err))
	}
	if err := json.Unmarshal([]byte(sources), &pb.SourceDocumentIDs); err != nil {
		return Playbook{}, fmt.Errorf("decode playbook sources: %w", err)
	}
	return pb, nil
}

// ListPlaybooks returns ownerID's playbooks, newest first, without content.
func (s *PostgresStore) ListPlaybooks(ctx context.Context, ownerID string) ([]Playbook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, summary, source_document_ids, model, created_at
		FROM playbooks
		WHERE owner_id=$1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list playbooks: %w", err)
	}
	defer rows.Close()

	items := make([]Playbook, 0)
	for rows.Next() {
		var (
			pb      Playbook
			sources string
		)
		if err := rows.Scan(&pb.ID, &pb.OwnerID, &pb.Title, &pb.Summary, &sources, &pb.Model, &pb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan playbook: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &pb.SourceDocumentIDs); err != nil {
			return nil, fmt.Errorf("decode playbook sources: %w", err)
		}
		items = append(items, pb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate playbooks: %w", err)
	}
	return items, nil
}
