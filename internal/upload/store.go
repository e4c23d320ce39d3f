package upload

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mriscan/braintumor-go/internal/conf"
	"github.com/mriscan/braintumor-go/internal/errors"
	"github.com/mriscan/braintumor-go/internal/logger"
)

// DefaultMaxSize is the upload limit when none is configured (16 MiB).
const DefaultMaxSize = conf.DefaultMaxUploadSize

const (
	timestampLayout = "20060102_150405"
	maxNameAttempts = 100
	filePermissions = 0o640
)

// Store writes uploads into a single directory. Paths are confined to that
// directory through os.Root.
type Store struct {
	dir        string
	root       *os.Root
	maxSize    int64
	extensions []string
	now        func() time.Time
}

// NewStore creates the upload directory if needed and opens it.
func NewStore(settings *conf.UploadSettings) (*Store, error) {
	dir := settings.Dir
	if dir == "" {
		return nil, errors.Newf("upload directory not configured").
			Component("upload").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fileError(err, "create_upload_dir", dir)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fileError(err, "open_upload_dir", dir)
	}

	s := &Store{
		dir:        dir,
		root:       root,
		maxSize:    settings.MaxSize,
		extensions: settings.AllowedExtensions,
		now:        time.Now,
	}
	if s.maxSize <= 0 {
		s.maxSize = DefaultMaxSize
	}
	if len(s.extensions) == 0 {
		s.extensions = DefaultExtensions
	}
	return s, nil
}

// Dir returns the upload directory as configured.
func (s *Store) Dir() string { return s.dir }

// MaxSize returns the per-file size limit in bytes.
func (s *Store) MaxSize() int64 { return s.maxSize }

// Extensions returns the accepted file extensions.
func (s *Store) Extensions() []string {
	return append([]string(nil), s.extensions...)
}

// Allowed reports whether filename has one of the configured extensions.
func (s *Store) Allowed(filename string) bool {
	return allowedIn(filename, s.extensions)
}

// Save writes r to "<dir>/YYYYMMDD_HHMMSS_<secure name>" and returns that path.
// A numeric suffix is added when the name is already taken.
func (s *Store) Save(name string, r io.Reader) (string, error) {
	secure := SecureFilename(name)
	if secure == "" {
		return "", errors.Newf("filename %q has no usable characters", name).
			Component("upload").
			Category(errors.CategoryValidation).
			Build()
	}

	base := s.now().Format(timestampLayout) + "_" + secure
	f, filename, err := s.create(base)
	if err != nil {
		return "", err
	}

	written, copyErr := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		s.discard(filename)
		return "", fileError(copyErr, "write_upload", filename)
	case written > s.maxSize:
		s.discard(filename)
		return "", errors.Newf("upload exceeds %d bytes", s.maxSize).
			Component("upload").
			Category(errors.CategoryLimit).
			Context("max_size", s.maxSize).
			Build()
	case closeErr != nil:
		s.discard(filename)
		return "", fileError(closeErr, "close_upload", filename)
	}

	path := filepath.Join(s.dir, filename)
	GetLogger().Info("upload stored",
		logger.String("path", path),
		logger.Int64("size", written))
	return path, nil
}

// create opens a new file, never overwriting an existing upload.
func (s *Store) create(base string) (*os.File, string, error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	name := base
	for attempt := 1; attempt <= maxNameAttempts; attempt++ {
		f, err := s.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermissions)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fileError(err, "create_upload", name)
		}
		name = fmt.Sprintf("%s_%d%s", stem, attempt, ext)
	}
	return nil, "", errors.Newf("no free file name for %s", base).
		Component("upload").
		Category(errors.CategoryFileIO).
		Build()
}

// Remove deletes a stored upload. path must be one returned by Save.
func (s *Store) Remove(path string) error {
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || !filepath.IsLocal(rel) {
		return errors.Newf("path %s is outside the upload directory", path).
			Component("upload").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := s.root.Remove(rel); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fileError(err, "remove_upload", rel)
	}
	return nil
}

func (s *Store) discard(filename string) {
	if err := s.root.Remove(filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
		GetLogger().Warn("failed to remove partial upload",
			logger.String("file", filename),
			logger.Error(err))
	}
}

// Close releases the directory handle.
func (s *Store) Close() error {
	return s.root.Close()
}

func fileError(err error, operation, path string) error {
	return errors.New(err).
		Component("upload").
		Category(errors.CategoryFileIO).
		Context("operation", operation).
		Context("path", path).
		Build()
}
