package session

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/spherical/pdf-insight/internal/domain"
)

// UploadDir stores each session's most recent upload under a path derived
// from the session ID, so concurrent sessions never share a file.
type UploadDir struct {
	dir      string
	maxBytes int64
}

// NewUploadDir creates dir if needed. maxBytes <= 0 disables the size cap.
func NewUploadDir(dir string, maxBytes int64) (*UploadDir, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "pdf-insight")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, domain.IOError("failed to create upload directory", err)
	}
	return &UploadDir{dir: dir, maxBytes: maxBytes}, nil
}

// Dir returns the directory uploads are written to.
func (u *UploadDir) Dir() string {
	return u.dir
}

// Path returns the upload path for a session.
func (u *UploadDir) Path(sessionID string) (string, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return "", domain.ValidationError("invalid session id", err)
	}
	return filepath.Join(u.dir, id.String()+".pdf"), nil
}

// Write replaces the session's upload with the contents of r and returns its
// path and size. The data is written to a temp file first and renamed into
// place.
func (u *UploadDir) Write(sessionID string, r io.Reader) (string, int64, error) {
	path, err := u.Path(sessionID)
	if err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(u.dir, "upload-*.tmp")
	if err != nil {
		return "", 0, domain.IOError("failed to create upload file", err)
	}
	defer os.Remove(tmp.Name())

	src := r
	if u.maxBytes > 0 {
		src = io.LimitReader(r, u.maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, domain.IOError("failed to write upload", err)
	}
	if u.maxBytes > 0 && n > u.maxBytes {
		return "", 0, domain.ValidationError(fmt.Sprintf("upload exceeds %d bytes", u.maxBytes), nil)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, domain.IOError("failed to store upload", err)
	}
	return path, n, nil
}

// Remove deletes the session's upload if present.
func (u *UploadDir) Remove(sessionID string) error {
	path, err := u.Path(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return domain.IOError("failed to remove upload", err)
	}
	return nil
}
