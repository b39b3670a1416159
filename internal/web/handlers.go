package web

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/spherical/pdf-insight/internal/domain"
	"github.com/spherical/pdf-insight/internal/observability"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to disk.
const multipartMemory = 8 << 20

// Handler serves the page and its form actions.
type Handler struct {
	logger         *observability.Logger
	interactor     Interactor
	page           *template.Template
	maxUploadBytes int64
}

// SessionDTO is the JSON view of a session.
type SessionDTO struct {
	SessionID   string   `json:"sessionId"`
	State       string   `json:"state"`
	Filename    string   `json:"filename,omitempty"`
	PageCount   int      `json:"pageCount"`
	Query       string   `json:"query,omitempty"`
	Answer      string   `json:"answer,omitempty"`
	Error       string   `json:"error,omitempty"`
	Transitions []string `json:"transitions,omitempty"`
}

type pageView struct {
	Filename  string
	PageCount int
	Ready     bool
	Query     string
	Answer    string
	Error     string
	Notice    string
}

// Index renders the page for the current session.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	id := SessionIDFromContext(r.Context())

	sess, err := h.interactor.Get(r.Context(), id)
	if err != nil {
		h.respond(w, r, http.StatusInternalServerError, domain.NewSession(id), err)
		return
	}
	h.respond(w, r, http.StatusOK, sess, nil)
}

// Upload accepts the multipart field "file" and rasterizes it.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := SessionIDFromContext(ctx)

	if h.maxUploadBytes > 0 {
		// Leave room for the multipart envelope around the file itself.
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.respond(w, r, status, h.current(r), domain.ValidationError("a PDF file is required in field \"file\"", err))
		return
	}
	defer file.Close()

	sess, err := h.interactor.Upload(ctx, id, header.Filename, file)
	if err != nil {
		h.respond(w, r, statusFor(err), sess, err)
		return
	}
	h.respond(w, r, http.StatusOK, sess, nil)
}

// Query submits the form field "query" against the uploaded document.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := SessionIDFromContext(ctx)

	sess, err := h.interactor.Submit(ctx, id, r.FormValue("query"))
	if err != nil {
		h.respond(w, r, statusFor(err), sess, err)
		return
	}
	h.respond(w, r, http.StatusOK, sess, nil)
}

// Reset drops the session and its upload.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := SessionIDFromContext(ctx)

	if err := h.interactor.Reset(ctx, id); err != nil {
		h.respond(w, r, statusFor(err), h.current(r), err)
		return
	}

	if wantsJSON(r) {
		h.writeJSON(w, http.StatusOK, toDTO(domain.NewSession(id), nil))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// current loads the session for display, falling back to a fresh one.
func (h *Handler) current(r *http.Request) *domain.Session {
	id := SessionIDFromContext(r.Context())
	sess, err := h.interactor.Get(r.Context(), id)
	if err != nil || sess == nil {
		return domain.NewSession(id)
	}
	return sess
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, sess *domain.Session, err error) {
	if sess == nil {
		sess = h.current(r)
	}

	if err != nil && status >= http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).WithSession(sess.ID).Error().Err(err).Int("status", status).Msg("Request failed")
	}

	if wantsJSON(r) {
		h.writeJSON(w, status, toDTO(sess, err))
		return
	}

	view := pageView{
		PageCount: sess.PageCount(),
		Ready:     sess.State == domain.StateImagesReady || sess.State == domain.StateResultDisplayed,
		Query:     sess.LastQuery,
		Answer:    sess.LastAnswer,
	}
	if sess.Document != nil {
		view.Filename = sess.Document.Filename
	}
	if err != nil {
		view.Error = userMessage(err)
	}
	if view.Ready && r.Method == http.MethodPost && r.URL.Path == "/upload" {
		view.Notice = "PDF uploaded successfully."
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.page.Execute(w, view); err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Failed to render page")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func toDTO(sess *domain.Session, err error) SessionDTO {
	dto := SessionDTO{
		SessionID: sess.ID,
		State:     string(sess.State),
		PageCount: sess.PageCount(),
		Query:     sess.LastQuery,
		Answer:    sess.LastAnswer,
		Error:     sess.LastError,
	}
	if sess.Document != nil {
		dto.Filename = sess.Document.Filename
	}
	if err != nil {
		dto.Error = userMessage(err)
	}
	for _, s := range sess.Transitions {
		dto.Transitions = append(dto.Transitions, string(s))
	}
	return dto
}

// statusFor maps an interaction error to its HTTP status.
func statusFor(err error) int {
	switch domain.TypeOf(err) {
	case domain.ErrorTypeValidation:
		return http.StatusBadRequest
	case domain.ErrorTypeState:
		return http.StatusConflict
	case domain.ErrorTypeDocumentOpen, domain.ErrorTypeConversion:
		return http.StatusUnprocessableEntity
	case domain.ErrorTypeModelInvocation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// userMessage strips the kind prefix from domain errors.
func userMessage(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) {
		if de.Err != nil {
			return de.Message + ": " + de.Err.Error()
		}
		return de.Message
	}
	return err.Error()
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
