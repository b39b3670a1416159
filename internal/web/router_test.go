package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf-insight/internal/domain"
	"github.com/spherical/pdf-insight/internal/session"
)

type stubRasterizer struct {
	pages  int
	err    error
	panics int // remaining calls that panic
}

func (s *stubRasterizer) Rasterize(ctx context.Context, path string) (*domain.PageImages, error) {
	if s.panics > 0 {
		s.panics--
		panic("runtime error: slice bounds out of range [-1:]")
	}
	if s.err != nil {
		return nil, s.err
	}
	images := domain.NewPageImages(s.pages)
	for p := 1; p <= s.pages; p++ {
		if err := images.Add(domain.EncodedImage{PageNumber: p, MIMEType: "image/png", Data: "AAAA"}); err != nil {
			return nil, err
		}
	}
	return images, nil
}

type stubDispatcher struct {
	mu     sync.Mutex
	answer string
	err    error
	calls  int
	parts  int
}

func (s *stubDispatcher) Query(ctx context.Context, images *domain.PageImages, query string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.parts = 1 + images.Len()
	return s.answer, s.err
}

type testServer struct {
	handler    http.Handler
	dispatcher *stubDispatcher
	cookie     *http.Cookie
}

func newTestServer(t *testing.T, r *stubRasterizer, d *stubDispatcher) *testServer {
	t.Helper()
	uploads, err := session.NewUploadDir(t.TempDir(), 1<<20)
	require.NoError(t, err)
	store := session.NewMemoryStore(0)
	t.Cleanup(func() { store.Close() })

	controller := session.NewController(store, uploads, r, d, nil)
	return &testServer{
		handler:    NewRouter(nil, controller, Config{MaxUploadBytes: 1 << 20}),
		dispatcher: d,
	}
}

// do sends req with the server's session cookie, capturing a newly issued one.
func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			s.cookie = c
		}
	}
	return rec
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func queryRequest(query string) *http.Request {
	form := url.Values{"query": {query}}
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func asJSON(req *http.Request) *http.Request {
	req.Header.Set("Accept", "application/json")
	return req
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) SessionDTO {
	t.Helper()
	var dto SessionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto), rec.Body.String())
	return dto
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &stubRasterizer{pages: 1}, &stubDispatcher{})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready"`)
}

type unreadyInteractor struct{ Interactor }

func (unreadyInteractor) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestReady_StoreDown(t *testing.T) {
	h := NewRouter(nil, unreadyInteractor{}, DefaultConfig())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestIndex_IssuesSessionCookie(t *testing.T) {
	s := newTestServer(t, &stubRasterizer{pages: 1}, &stubDispatcher{})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.cookie)
	assert.True(t, s.cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, s.cookie.SameSite)

	body := rec.Body.String()
	assert.Contains(t, body, "PDF Insight Extractor")
	assert.Contains(t, body, `accept=".pdf,application/pdf"`)
	assert.NotContains(t, body, "Submit Query")

	// The cookie is reused, not reissued.
	first := s.cookie.Value
	rec = s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, first, s.cookie.Value)
}

func TestUploadAndQuery(t *testing.T) {
	d := &stubDispatcher{answer: "Page 2 has a <table>."}
	s := newTestServer(t, &stubRasterizer{pages: 2}, d)

	rec := s.do(uploadRequest(t, "report.pdf", "%PDF-1.4"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Processed 2 page(s)")
	assert.Contains(t, rec.Body.String(), "Submit Query")

	rec = s.do(queryRequest("What is on page 2?"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Page 2 has a &lt;table&gt;.")
	assert.Equal(t, 1, d.calls)
	assert.Equal(t, 3, d.parts)

	rec = s.do(asJSON(httptest.NewRequest(http.MethodGet, "/", nil)))
	dto := decodeSession(t, rec)
	assert.Equal(t, "images_ready", dto.State)
	assert.Equal(t, 2, dto.PageCount)
	assert.Equal(t, "report.pdf", dto.Filename)
	assert.Equal(t, []string{
		"idle", "document_uploaded", "images_ready", "querying", "result_displayed", "images_ready",
	}, dto.Transitions)
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name       string
		rasterizer *stubRasterizer
		filename   string
		wantStatus int
	}{
		{
			name:       "not a pdf",
			rasterizer: &stubRasterizer{pages: 1},
			filename:   "notes.txt",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "corrupt pdf",
			rasterizer: &stubRasterizer{err: domain.DocumentOpenError("failed to open PDF", errors.New("no objects found"))},
			filename:   "broken.pdf",
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "render failure",
			rasterizer: &stubRasterizer{err: domain.ConversionError("failed to render page 1", nil)},
			filename:   "odd.pdf",
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.rasterizer, &stubDispatcher{})

			rec := s.do(asJSON(uploadRequest(t, tt.filename, "data")))
			assert.Equal(t, tt.wantStatus, rec.Code)

			dto := decodeSession(t, rec)
			assert.Equal(t, "idle", dto.State)
			assert.NotEmpty(t, dto.Error)
			assert.NotContains(t, dto.Error, "[")
		})
	}
}

func TestUpload_RasterizerPanicDoesNotWedgeSession(t *testing.T) {
	s := newTestServer(t, &stubRasterizer{pages: 1, panics: 1}, &stubDispatcher{answer: "ok"})

	rec := s.do(asJSON(uploadRequest(t, "truncated.pdf", "%PDF-1.4\n1 0 obj\n<< >>\nendobj\n")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	dto := decodeSession(t, rec)
	assert.Equal(t, string(domain.StateIdle), dto.State)

	rec = s.do(asJSON(uploadRequest(t, "report.pdf", "%PDF-1.4")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto = decodeSession(t, rec)
	assert.Equal(t, string(domain.StateImagesReady), dto.State)
	assert.Equal(t, 1, dto.PageCount)
}

func TestUpload_MissingFile(t *testing.T) {
	s := newTestServer(t, &stubRasterizer{pages: 1}, &stubDispatcher{})

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("query=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := s.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "a PDF file is required")
}

func TestQuery_Errors(t *testing.T) {
	t.Run("no document", func(t *testing.T) {
		d := &stubDispatcher{answer: "x"}
		s := newTestServer(t, &stubRasterizer{pages: 1}, d)

		rec := s.do(queryRequest("hello"))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, 0, d.calls)
	})

	t.Run("empty query", func(t *testing.T) {
		d := &stubDispatcher{answer: "x"}
		s := newTestServer(t, &stubRasterizer{pages: 1}, d)
		s.do(uploadRequest(t, "a.pdf", "x"))

		rec := s.do(queryRequest("   "))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, d.calls)
	})

	t.Run("model failure", func(t *testing.T) {
		d := &stubDispatcher{err: domain.ModelInvocationError("chat completion failed with status 429", nil)}
		s := newTestServer(t, &stubRasterizer{pages: 1}, d)
		s.do(uploadRequest(t, "a.pdf", "x"))

		rec := s.do(asJSON(queryRequest("hello")))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		dto := decodeSession(t, rec)
		assert.Equal(t, "images_ready", dto.State)
		assert.Contains(t, dto.Error, "status 429")
	})

	t.Run("missing credential", func(t *testing.T) {
		d := &stubDispatcher{err: domain.MissingCredentialError("OPENAI_API_KEY is not set", nil)}
		s := newTestServer(t, &stubRasterizer{pages: 1}, d)
		s.do(uploadRequest(t, "a.pdf", "x"))

		rec := s.do(queryRequest("hello"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "OPENAI_API_KEY is not set")
	})
}

func TestReset(t *testing.T) {
	s := newTestServer(t, &stubRasterizer{pages: 3}, &stubDispatcher{answer: "ok"})
	s.do(uploadRequest(t, "a.pdf", "x"))

	rec := s.do(httptest.NewRequest(http.MethodPost, "/reset", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = s.do(asJSON(httptest.NewRequest(http.MethodGet, "/", nil)))
	dto := decodeSession(t, rec)
	assert.Equal(t, "idle", dto.State)
	assert.Zero(t, dto.PageCount)
}

func TestSessionsAreIsolated(t *testing.T) {
	d := &stubDispatcher{answer: "ok"}
	uploads, err := session.NewUploadDir(t.TempDir(), 0)
	require.NoError(t, err)
	controller := session.NewController(session.NewMemoryStore(0), uploads, &stubRasterizer{pages: 1}, d, nil)
	h := NewRouter(nil, controller, DefaultConfig())

	alice := &testServer{handler: h, dispatcher: d}
	bob := &testServer{handler: h, dispatcher: d}

	rec := alice.do(uploadRequest(t, "a.pdf", "x"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = bob.do(queryRequest("hello"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = alice.do(queryRequest("hello"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, alice.cookie.Value, bob.cookie.Value)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrEmptyQuery, http.StatusBadRequest},
		{domain.ErrNoDocument, http.StatusConflict},
		{domain.ErrQueryInFlight, http.StatusConflict},
		{domain.ErrUploadInFlight, http.StatusConflict},
		{domain.ValidationError("bad", nil), http.StatusBadRequest},
		{domain.DocumentOpenError("bad", nil), http.StatusUnprocessableEntity},
		{domain.ModelInvocationError("bad", nil), http.StatusBadGateway},
		{domain.MissingCredentialError("bad", nil), http.StatusInternalServerError},
		{domain.IOError("bad", nil), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", domain.ErrNoDocument), http.StatusConflict},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
