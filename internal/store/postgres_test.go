package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestCreateDocument_AssignsDefaults(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO documents").
		WithArgs(sqlmock.AnyArg(), "u1", "Notes", DocumentNote, "", "[]").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	doc, err := s.CreateDocument(context.Background(), Document{OwnerID: "u1", Title: "Notes"})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, DocumentNote, doc.Type)
	assert.Equal(t, "[]", doc.Content)
	assert.Equal(t, now, doc.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocument(t *testing.T) {
	now := time.Now()
	cols := []string{"id", "owner_id", "title", "type", "source", "content", "created_at", "updated_at"}

	testCases := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "returns document",
			setupMock: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("SELECT id, owner_id, title, type, source, content").
					WithArgs("d1", "u1").
					WillReturnRows(sqlmock.NewRows(cols).AddRow("d1", "u1", "T", DocumentInterview, "", `[{"content":[{"text":"x"}]}]`, now, now))
			},
		},
		{
			name: "maps no rows to ErrNotFound",
			setupMock: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("SELECT id, owner_id").WithArgs("d1", "u1").WillReturnError(sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "passes through driver errors",
			setupMock: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("SELECT id, owner_id").WithArgs("d1", "u1").WillReturnError(sql.ErrConnDone)
			},
			wantErr: sql.ErrConnDone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tc.setupMock(mock)

			doc, err := s.GetDocument(context.Background(), "u1", "d1")
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, DocumentInterview, doc.Type)
				assert.Contains(t, doc.Content, `"x"`)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetDocuments_ReportsMissing(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	cols := []string{"id", "owner_id", "title", "type", "source", "content", "created_at", "updated_at"}

	mock.ExpectQuery("FROM documents").WithArgs("a", "u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a", "u1", "A", DocumentNote, "", "[]", now, now))
	mock.ExpectQuery("FROM documents").WithArgs("b", "u1").WillReturnError(sql.ErrNoRows)

	docs, missing, err := s.GetDocuments(context.Background(), "u1", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, []string{"b"}, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDocuments(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "owner_id", "title", "type", "source", "created_at", "updated_at"}).
		AddRow("d2", "u1", "Second", DocumentImport, "guide.pdf", now, now).
		AddRow("d1", "u1", "First", DocumentNote, "", now, now)
	mock.ExpectQuery("FROM documents").WithArgs("u1").WillReturnRows(rows)

	docs, err := s.ListDocuments(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "guide.pdf", docs[0].Source)
	assert.Empty(t, docs[0].Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDocuments_Empty(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM documents").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "title", "type", "source", "created_at", "updated_at"}))

	docs, err := s.ListDocuments(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestUpdateDocumentContent_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("UPDATE documents").WithArgs("d1", "u1", "T", "[]").WillReturnError(sql.ErrNoRows)

	_, err := s.UpdateDocumentContent(context.Background(), "u1", "d1", "T", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDocument(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM documents").WithArgs("d1", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM documents").WithArgs("d2", "u1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.DeleteDocument(context.Background(), "u1", "d1"))
	assert.ErrorIs(t, s.DeleteDocument(context.Background(), "u1", "d2"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var invitationCols = []string{"id", "token", "sender_id", "sender_name", "sender_email", "expert_name", "expert_email",
	"topic", "message", "status", "document_id", "expires_at", "created_at", "updated_at"}

func TestGetInvitationByToken(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery("FROM invitations WHERE token").WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(invitationCols).AddRow(
			"i1", "tok", "u1", "Sam", "sam@example.com", "Dana", "dana@example.com",
			"Boilers", "", InvitationCompleted, "d9", now.Add(time.Hour), now, now))

	inv, err := s.GetInvitationByToken(context.Background(), "tok")
	require.NoError(t, err)
	require.NotNil(t, inv.DocumentID)
	assert.Equal(t, "d9", *inv.DocumentID)
	assert.Equal(t, InvitationCompleted, inv.Status)
}

func TestGetInvitationByToken_NullDocument(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery("FROM invitations").WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(invitationCols).AddRow(
			"i1", "tok", "u1", "", "", "", "dana@example.com", "Boilers", "", InvitationPending, nil, now, now, now))

	inv, err := s.GetInvitationByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Nil(t, inv.DocumentID)
}

func TestCreateInvitation_DefaultsPending(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	exp := now.Add(7 * 24 * time.Hour)
	mock.ExpectQuery("INSERT INTO invitations").
		WithArgs(sqlmock.AnyArg(), "tok", "u1", "Sam", "", "Dana", "dana@example.com", "Boilers", "", InvitationPending, exp).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	inv, err := s.CreateInvitation(context.Background(), Invitation{
		Token: "tok", SenderID: "u1", SenderName: "Sam", ExpertName: "Dana",
		ExpertEmail: "dana@example.com", Topic: "Boilers", ExpiresAt: exp,
	})
	require.NoError(t, err)
	assert.Equal(t, InvitationPending, inv.Status)
	assert.NotEmpty(t, inv.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateInvitationStatus_StaleStatus(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE invitations SET status").
		WithArgs("i1", InvitationPending, InvitationAccepted).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateInvitationStatus(context.Background(), "i1", InvitationPending, InvitationAccepted)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttachInvitationDocument(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE invitations SET document_id").
		WithArgs("i1", "d1", InvitationCompleted, InvitationAccepted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.AttachInvitationDocument(context.Background(), "i1", "d1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaybookRoundTrip(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO playbooks").
		WithArgs(sqlmock.AnyArg(), "u1", "Ops", "S", "[]", `["a","b"]`, "m").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	pb, err := s.CreatePlaybook(context.Background(), Playbook{
		OwnerID: "u1", Title: "Ops", Summary: "S", SourceDocumentIDs: []string{"a", "b"}, Model: "m",
	})
	require.NoError(t, err)

	mock.ExpectQuery("FROM playbooks").WithArgs(pb.ID, "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "title", "summary", "content", "source_document_ids", "model", "created_at"}).
			AddRow(pb.ID, "u1", "Ops", "S", "[]", `["a","b"]`, "m", now))
	got, err := s.GetPlaybook(context.Background(), "u1", pb.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.SourceDocumentIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPlaybook_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM playbooks").WithArgs("p1", "u1").WillReturnError(sql.ErrNoRows)

	_, err := s.GetPlaybook(context.Background(), "u1", "p1")
	assert.True(t, errors.Is(err, ErrNotFound))
}
