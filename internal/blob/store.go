// Package blob stores uploaded design artifacts and resolves the blob: references kept on stories.
package blob

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
)

const (
	Scheme = "blob:"

	// MaxSize caps a single design artifact.
	MaxSize = 5 << 20
)

var (
	ErrNotFound        = errors.New("blob not found")
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrTooLarge        = errors.New("blob too large")
	ErrInvalidRef      = errors.New("invalid blob reference")
)

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store keeps artifacts as flat files under Root on an afero filesystem.
type Store struct {
	Fs   afero.Fs
	Root string

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewStore(fs afero.Fs, root string) *Store {
	return &Store{Fs: fs, Root: root}
}

// NewOsStore stores artifacts on the local disk below dir.
func NewOsStore(dir string) *Store {
	return NewStore(afero.NewOsFs(), dir)
}

// NewMemStore is an in-memory store, used by tests and ephemeral servers.
func NewMemStore() *Store {
	return NewStore(afero.NewMemMapFs(), "/designs")
}

func (s *Store) newName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entropy == nil {
		s.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String())
}

// MediaTypeSupported reports whether contentType can be stored and sent for analysis.
func MediaTypeSupported(contentType string) bool {
	_, ok := extensions[normalizeType(contentType)]
	return ok
}

func normalizeType(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// Put writes data and returns its blob: reference.
func (s *Store) Put(contentType string, data []byte) (string, error) {
	ct := normalizeType(contentType)
	ext, ok := extensions[ct]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	if len(data) == 0 {
		return "", errors.New("empty blob")
	}
	if len(data) > MaxSize {
		return "", ErrTooLarge
	}
	if err := s.Fs.MkdirAll(s.Root, 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	name := s.newName() + ext
	full := path.Join(s.Root, name)
	tmp, err := afero.TempFile(s.Fs, s.Root, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	defer s.Fs.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := s.Fs.Rename(tmpPath, full); err != nil {
		return "", fmt.Errorf("rename blob: %w", err)
	}
	return Scheme + name, nil
}

// Get loads the artifact behind ref together with its media type.
func (s *Store) Get(ref string) ([]byte, string, error) {
	name, err := nameFromRef(ref)
	if err != nil {
		return nil, "", err
	}
	mediaType := ""
	for ct, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			mediaType = ct
			break
		}
	}
	if mediaType == "" {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedType, name)
	}
	data, err := afero.ReadFile(s.Fs, path.Join(s.Root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	return data, mediaType, nil
}

// IsRef reports whether ref points into a blob store rather than an external URL.
func IsRef(ref string) bool {
	return strings.HasPrefix(ref, Scheme)
}

func nameFromRef(ref string) (string, error) {
	if !IsRef(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	name := strings.TrimPrefix(ref, Scheme)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return name, nil
}
