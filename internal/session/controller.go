package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spherical/pdf-insight/internal/domain"
	"github.com/spherical/pdf-insight/internal/observability"
	"github.com/spherical/pdf-insight/internal/pdf"
)

// Controller drives one session through
// Idle -> DocumentUploaded -> ImagesReady -> Querying -> ResultDisplayed -> ImagesReady.
//
// Check-and-set of a session's state happens under mu. Rasterization and the
// model call run outside it; a second request on a busy session is rejected
// by the state guard.
type Controller struct {
	store      Store
	uploads    *UploadDir
	validator  *pdf.Validator
	rasterizer domain.PageRasterizer
	dispatcher domain.QueryDispatcher
	logger     *observability.Logger

	mu sync.Mutex
}

// NewController wires the controller to its collaborators
func NewController(store Store, uploads *UploadDir, rasterizer domain.PageRasterizer, dispatcher domain.QueryDispatcher, logger *observability.Logger) *Controller {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Controller{
		store:      store,
		uploads:    uploads,
		validator:  pdf.NewValidator(),
		rasterizer: rasterizer,
		dispatcher: dispatcher,
		logger:     logger.WithOperation("interaction"),
	}
}

// Get returns the session, or a fresh idle one if the store has none.
func (c *Controller) Get(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := c.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return domain.NewSession(id), nil
	}
	if err != nil {
		return nil, domain.IOError("failed to load session", err)
	}
	return sess, nil
}

// Upload stores the uploaded PDF for the session and rasterizes it. The
// returned session reflects the final state even when err is non-nil.
func (c *Controller) Upload(ctx context.Context, id, filename string, r io.Reader) (*domain.Session, error) {
	logger := c.logger.WithContext(ctx).WithSession(id)

	if err := c.validator.ValidateFilename(filename); err != nil {
		logger.Warn().Str("filename", filename).Err(err).Msg("Upload rejected")
		return c.getOrNil(ctx, id), err
	}

	sess, err := c.begin(ctx, id, func(s *domain.Session) error {
		switch s.State {
		case domain.StateQuerying:
			return domain.ErrQueryInFlight
		case domain.StateDocumentUploaded:
			return domain.ErrUploadInFlight
		}
		if s.State != domain.StateIdle {
			// A new upload starts the interaction over.
			s.ClearDocument()
			s.Enter(domain.StateIdle)
		}
		s.LastError = ""
		s.Document = &domain.Document{Filename: filename}
		s.Enter(domain.StateDocumentUploaded)
		return nil
	})
	if err != nil {
		return sess, err
	}

	// Detach from request cancellation when recording the outcome so the
	// session is never left in DocumentUploaded.
	commitCtx := context.WithoutCancel(ctx)
	start := time.Now()

	path, size, err := c.uploads.Write(id, r)
	if err != nil {
		return c.failUpload(commitCtx, id, err, logger)
	}
	logger.Debug().Str("filename", filename).Int64("bytes", size).Msg("Upload stored")

	images, err := c.rasterize(ctx, path)
	if err != nil {
		return c.failUpload(commitCtx, id, err, logger)
	}

	sess, err = c.commit(commitCtx, id, domain.StateDocumentUploaded, func(s *domain.Session) {
		s.Document.Path = path
		s.Document.PageCount = images.Len()
		s.Images = images
		s.Enter(domain.StateImagesReady)
	})
	if err != nil {
		return sess, err
	}

	logger.Info().
		Str("filename", filename).
		Int("pages", images.Len()).
		Dur("duration", time.Since(start)).
		Msg("Document ready")
	return sess, nil
}

// Submit asks the model about the session's document. Empty queries are
// rejected without contacting the model.
func (c *Controller) Submit(ctx context.Context, id, query string) (*domain.Session, error) {
	logger := c.logger.WithContext(ctx).WithSession(id)

	query = strings.TrimSpace(query)
	if query == "" {
		return c.getOrNil(ctx, id), domain.ErrEmptyQuery
	}

	var images *domain.PageImages
	sess, err := c.begin(ctx, id, func(s *domain.Session) error {
		switch s.State {
		case domain.StateImagesReady, domain.StateResultDisplayed:
		case domain.StateQuerying:
			return domain.ErrQueryInFlight
		case domain.StateDocumentUploaded:
			return domain.ErrUploadInFlight
		default:
			return domain.ErrNoDocument
		}
		if s.Images.Len() == 0 {
			return domain.ErrNoDocument
		}
		images = s.Images
		s.LastQuery = query
		s.LastAnswer = ""
		s.LastError = ""
		s.Enter(domain.StateQuerying)
		return nil
	})
	if err != nil {
		return sess, err
	}

	commitCtx := context.WithoutCancel(ctx)
	start := time.Now()

	answer, qerr := c.query(ctx, images, query)

	sess, err = c.commit(commitCtx, id, domain.StateQuerying, func(s *domain.Session) {
		if qerr != nil {
			s.LastError = qerr.Error()
			s.Enter(domain.StateImagesReady)
			return
		}
		s.LastAnswer = answer
		s.Enter(domain.StateResultDisplayed)
		s.Enter(domain.StateImagesReady)
	})
	if qerr != nil {
		logger.Error().Err(qerr).Dur("duration", time.Since(start)).Msg("Query failed")
		return sess, qerr
	}
	if err != nil {
		return sess, err
	}

	logger.Info().
		Int("pages", images.Len()).
		Int("answer_chars", len(answer)).
		Dur("duration", time.Since(start)).
		Msg("Query answered")
	return sess, nil
}

// Reset forgets the session and deletes its upload.
func (c *Controller) Reset(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(ctx, id); err != nil {
		return domain.IOError("failed to delete session", err)
	}
	if err := c.uploads.Remove(id); err != nil {
		return err
	}
	c.logger.WithContext(ctx).WithSession(id).Info().Msg("Session reset")
	return nil
}

// Ping checks the session store.
func (c *Controller) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// begin loads the session and applies guard under the lock, saving the
// result if guard accepts it.
func (c *Controller) begin(ctx context.Context, id string, guard func(*domain.Session) error) (*domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guard(sess); err != nil {
		return sess, err
	}
	if err := c.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// commit applies fn if the session is still in the expected state. A session
// reset while work was in flight is left alone.
func (c *Controller) commit(ctx context.Context, id string, expected domain.State, fn func(*domain.Session)) (*domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State != expected {
		return sess, nil
	}
	fn(sess)
	if err := c.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// rasterize runs the rasterizer, turning a panic into a ConversionError so
// the upload is still recorded as failed.
func (c *Controller) rasterize(ctx context.Context, path string) (images *domain.PageImages, err error) {
	defer func() {
		if r := recover(); r != nil {
			images = nil
			err = domain.ConversionError(fmt.Sprintf("rasterizer panicked: %v", r), nil)
		}
	}()
	return c.rasterizer.Rasterize(ctx, path)
}

// query runs the dispatcher, turning a panic into a ModelInvocationError so
// the session leaves Querying.
func (c *Controller) query(ctx context.Context, images *domain.PageImages, q string) (answer string, err error) {
	defer func() {
		if r := recover(); r != nil {
			answer = ""
			err = domain.ModelInvocationError(fmt.Sprintf("dispatcher panicked: %v", r), nil)
		}
	}()
	return c.dispatcher.Query(ctx, images, q)
}

func (c *Controller) failUpload(ctx context.Context, id string, cause error, logger *observability.Logger) (*domain.Session, error) {
	logger.Error().Err(cause).Msg("Document processing failed")

	if err := c.uploads.Remove(id); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove upload")
	}

	sess, err := c.commit(ctx, id, domain.StateDocumentUploaded, func(s *domain.Session) {
		s.ClearDocument()
		s.LastError = cause.Error()
		s.Enter(domain.StateIdle)
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to record upload failure")
	}
	return sess, cause
}

func (c *Controller) save(ctx context.Context, sess *domain.Session) error {
	sess.UpdatedAt = time.Now()
	if err := c.store.Save(ctx, sess); err != nil {
		return domain.IOError("failed to save session", err)
	}
	return nil
}

// getOrNil loads the session for display alongside an early rejection.
func (c *Controller) getOrNil(ctx context.Context, id string) *domain.Session {
	sess, err := c.Get(ctx, id)
	if err != nil {
		return nil
	}
	return sess
}
