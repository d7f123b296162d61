package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/classdesk/internal/model"
)

type NoteStore struct {
	db *sql.DB
}

func NewNoteStore(db *sql.DB) *NoteStore {
	return &NoteStore{db: db}
}

const noteCols = `id, owner_id, title, body, attachment_path, attachment_url, attachment_name, attachment_content_type, attachment_size, created_at, updated_at`

func scanNote(scanner interface{ Scan(...any) error }) (*model.Note, error) {
	var n model.Note
	var path, url, name, contentType sql.NullString
	var size sql.NullInt64

	err := scanner.Scan(
		&n.ID, &n.OwnerID, &n.Title, &n.Body,
		&path, &url, &name, &contentType, &size,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if path.Valid {
		n.Attachment = &model.Attachment{
			Path:        path.String,
			URL:         url.String,
			Name:        name.String,
			ContentType: contentType.String,
			Size:        size.Int64,
		}
	}
	return &n, nil
}

func (s *NoteStore) Create(ctx context.Context, n *model.Note) error {
	var path, url, name, contentType sql.NullString
	var size sql.NullInt64
	if a := n.Attachment; a != nil {
		path = sql.NullString{String: a.Path, Valid: true}
		url = sql.NullString{String: a.URL, Valid: true}
		name = sql.NullString{String: a.Name, Valid: true}
		contentType = sql.NullString{String: a.ContentType, Valid: true}
		size = sql.NullInt64{Int64: a.Size, Valid: true}
	}

	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (`+noteCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.OwnerID, n.Title, n.Body, path, url, name, contentType, size, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// GetByID returns the note, or nil if it does not exist.
func (s *NoteStore) GetByID(ctx context.Context, id string) (*model.Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteCols+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

// List returns the owner's notes, newest first.
func (s *NoteStore) List(ctx context.Context, ownerID string) ([]model.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteCols+` FROM notes WHERE owner_id = ? ORDER BY created_at DESC, id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []model.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

func (s *NoteStore) Update(ctx context.Context, id, title, body string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notes SET title = ?, body = ?, updated_at = ? WHERE id = ?`,
		title, body, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *NoteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}
