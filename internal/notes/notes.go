// Package notes manages an owner's notes and their optional file attachment.
package notes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/dukerupert/classdesk/internal/blob"
	"github.com/dukerupert/classdesk/internal/model"
	"github.com/dukerupert/classdesk/internal/store"
)

// MaxAttachmentBytes caps a single attachment.
const MaxAttachmentBytes = 10 << 20

var ErrNotFound = errors.New("note not found")

const blobCleanupTimeout = 10 * time.Second

var allowedContentTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"image/webp":         true,
	"application/pdf":    true,
	"text/plain":         true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.ms-excel":                                                  true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.ms-powerpoint":                                             true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
}

// AllowedContentType reports whether attachments of type ct are accepted.
// Parameters such as charset are ignored.
func AllowedContentType(ct string) bool {
	ct, _, _ = strings.Cut(ct, ";")
	return allowedContentTypes[strings.ToLower(strings.TrimSpace(ct))]
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Repository is the note collection.
type Repository interface {
	Get(ctx context.Context, id string) (*model.Note, error)
	List(ctx context.Context, ownerID string) ([]model.Note, error)
	Create(ctx context.Context, n *model.Note) error
	Update(ctx context.Context, ownerID, id, title, body string) error
	Delete(ctx context.Context, ownerID, id string) error
}

// Blobs is the attachment store.
type Blobs interface {
	Upload(ctx context.Context, obj blob.Object, progress blob.ProgressFunc) (string, error)
	Delete(ctx context.Context, path string) error
}

// Upload is a file to attach to a new note.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Service struct {
	repo   Repository
	blobs  Blobs
	logger *slog.Logger
	newID  func() string
}

func NewService(repo Repository, blobs Blobs, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		blobs:  blobs,
		logger: logger.With("component", "notes"),
		newID:  uuid.NewString,
	}
}

func (s *Service) List(ctx context.Context, ownerID string) ([]model.Note, error) {
	return s.repo.List(ctx, ownerID)
}

// Get returns ownerID's note, or ErrNotFound.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*model.Note, error) {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	if n == nil || n.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return n, nil
}

// Create validates everything up front, uploads the attachment if any, and
// then writes the note. An upload whose note cannot be written is removed.
func (s *Service) Create(ctx context.Context, ownerID, title, body string, file *Upload, progress blob.ProgressFunc) (*model.Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "is required"}
	}
	if file != nil {
		if err := validateUpload(file); err != nil {
			return nil, err
		}
	}

	n := &model.Note{
		ID:      s.newID(),
		OwnerID: ownerID,
		Title:   title,
		Body:    body,
	}

	if file != nil {
		objPath := AttachmentPath(ownerID, n.ID, file.Name)
		url, err := s.blobs.Upload(ctx, blob.Object{
			Path:        objPath,
			Body:        file.Body,
			Size:        file.Size,
			ContentType: file.ContentType,
			Metadata:    map[string]string{"owner": ownerID, "note": n.ID},
		}, progress)
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		n.Attachment = &model.Attachment{
			Path:        objPath,
			URL:         url,
			Name:        file.Name,
			ContentType: file.ContentType,
			Size:        file.Size,
		}
	}

	if err := s.repo.Create(ctx, n); err != nil {
		if n.Attachment != nil {
			s.removeBlob(n.Attachment.Path)
		}
		return nil, fmt.Errorf("create note: %w", err)
	}

	s.logger.Info("note created", "owner", ownerID, "id", n.ID, "attachment", n.Attachment != nil)
	return n, nil
}

func validateUpload(f *Upload) error {
	if f.Body == nil {
		return &ValidationError{Field: "attachment", Message: "is empty"}
	}
	if !AllowedContentType(f.ContentType) {
		return &ValidationError{Field: "attachment", Message: fmt.Sprintf("type %q is not allowed", f.ContentType)}
	}
	if f.Size > MaxAttachmentBytes {
		return &ValidationError{Field: "attachment", Message: fmt.Sprintf("exceeds %d MiB", MaxAttachmentBytes>>20)}
	}
	return nil
}

func (s *Service) Update(ctx context.Context, ownerID, id, title, body string) (*model.Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "is required"}
	}
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, ownerID, id, title, body); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update note: %w", err)
	}
	return s.Get(ctx, ownerID, id)
}

// Delete removes the note, then its attachment. A failed attachment delete
// is logged and does not fail the call.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	n, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if n.Attachment != nil {
		s.removeBlob(n.Attachment.Path)
	}
	return nil
}

func (s *Service) removeBlob(objPath string) {
	ctx, cancel := context.WithTimeout(context.Background(), blobCleanupTimeout)
	defer cancel()
	if err := s.blobs.Delete(ctx, objPath); err != nil {
		s.logger.Warn("delete attachment", "path", objPath, "error", err)
	}
}

// AttachmentPath is notes/{owner}/{noteID}/{name} with name reduced to a
// safe single path segment.
func AttachmentPath(ownerID, noteID, name string) string {
	return path.Join("notes", ownerID, noteID, sanitizeName(name))
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
