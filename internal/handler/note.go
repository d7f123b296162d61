package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/classdesk/internal/auth"
	"github.com/dukerupert/classdesk/internal/blob"
	"github.com/dukerupert/classdesk/internal/model"
	"github.com/dukerupert/classdesk/internal/notes"
	"github.com/dukerupert/classdesk/internal/websocket"
)

// multipartMemory is how much of a multipart form is held in memory before
// spilling to temp files.
const multipartMemory = 1 << 20

// broadcaster delivers a message to one owner's live connections.
type broadcaster interface {
	BroadcastTo(owner string, msg websocket.Message)
}

type NoteHandler struct {
	notes  *notes.Service
	hub    broadcaster
	logger *slog.Logger
}

func NewNoteHandler(svc *notes.Service, hub *websocket.Hub, logger *slog.Logger) *NoteHandler {
	return &NoteHandler{notes: svc, hub: hub, logger: logger.With("component", "note_handler")}
}

func (h *NoteHandler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := auth.SubjectID(r.Context())
	if owner == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no identity"})
		return "", false
	}
	return owner, true
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	list, err := h.notes.List(r.Context(), owner)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []model.Note{}
	}
	writeJSON(w, http.StatusOK, list)
}

type noteRequest struct {
	Title string `json:"title" validate:"notblank,max=200"`
	Body  string `json:"body" validate:"max=20000"`
}

// Create accepts either a JSON body or a multipart form with title, body
// and an optional "attachment" file. Upload progress is pushed to the
// caller's live connections as upload_progress messages keyed by the
// form's upload_id.
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var req noteRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		note, err := h.notes.Create(r.Context(), owner, req.Title, req.Body, nil, nil)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, note)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, notes.MaxAttachmentBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "attachment too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := noteRequest{Title: r.FormValue("title"), Body: r.FormValue("body")}
	if !validateRequest(w, &req) {
		return
	}

	var upload *notes.Upload
	var progress blob.ProgressFunc
	file, header, err := r.FormFile("attachment")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid attachment"})
		return
	default:
		defer file.Close()
		upload = &notes.Upload{
			Name:        header.Filename,
			ContentType: contentType(file, header),
			Size:        header.Size,
			Body:        file,
		}
		uploadID := r.FormValue("upload_id")
		if uploadID == "" {
			uploadID = uuid.NewString()
		}
		progress = h.progress(owner, uploadID, header.Filename)
	}

	note, err := h.notes.Create(r.Context(), owner, req.Title, req.Body, upload, progress)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// progress returns a callback that broadcasts at most one message per whole
// percent, plus the final one.
func (h *NoteHandler) progress(owner, uploadID, name string) blob.ProgressFunc {
	last := -1
	return func(sent, total int64) {
		pct := 100
		if total > 0 {
			pct = int(sent * 100 / total)
		}
		if pct == last && sent != total {
			return
		}
		last = pct
		h.hub.BroadcastTo(owner, websocket.ProgressMessage(uploadID, name, sent, total))
	}
}

// contentType trusts the part header unless it is missing or generic, in
// which case the first bytes are sniffed.
func contentType(file multipart.File, header *multipart.FileHeader) string {
	ct := header.Header.Get("Content-Type")
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	buf := make([]byte, 512)
	n, _ := io.ReadFull(file, buf)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return ct
	}
	return http.DetectContentType(buf[:n])
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req noteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	note, err := h.notes.Update(r.Context(), owner, id, req.Title, req.Body)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if err := h.notes.Delete(r.Context(), owner, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
