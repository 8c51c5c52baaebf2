package storage

import (
	"bufio"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/flytam/filenamify"
)

const defaultDestinationName = "image.jpg"

// MaxHandleLength is the longest destination handle, in characters.
const MaxHandleLength = filenamify.MAX_FILENAME_LENGTH

// ErrInvalidHandle is returned for destination handles that are not plain file names.
var ErrInvalidHandle = errors.New("invalid destination handle")

// FileStorage resolves destination handles to files inside a single directory.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a new FileStorage instance with the given directory.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

// Dir returns the storage root.
func (s *FileStorage) Dir() string {
	return s.dir
}

// Resolve maps a destination handle to a path inside the storage directory.
// Only plain file names are accepted, so a handle never escapes the root and
// distinct handles never share a file.
func (s *FileStorage) Resolve(handle string) (string, error) {
	if err := ValidateHandle(handle); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, handle), nil
}

// OpenDestination creates or truncates the file behind handle for writing.
func (s *FileStorage) OpenDestination(handle string) (*Destination, error) {
	p, err := s.Resolve(handle)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("open destination: %w", err)
	}

	return &Destination{file: file, w: bufio.NewWriter(file)}, nil
}

// ReadDestination returns the bytes currently stored behind handle.
func (s *FileStorage) ReadDestination(handle string) ([]byte, error) {
	p, err := s.Resolve(handle)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Exists checks whether the file behind handle exists.
func (s *FileStorage) Exists(handle string) bool {
	p, err := s.Resolve(handle)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Destination is a buffered write handle. Close flushes before closing the file.
type Destination struct {
	file   *os.File
	w      *bufio.Writer
	closed bool
}

func (d *Destination) Write(p []byte) (int, error) {
	if d.closed {
		return 0, os.ErrClosed
	}
	return d.w.Write(p)
}

// Name returns the path of the underlying file.
func (d *Destination) Name() string {
	return d.file.Name()
}

// Close flushes buffered bytes and closes the file. It reports the first error
// encountered; the file is closed even if the flush fails.
func (d *Destination) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	flushErr := d.w.Flush()
	closeErr := d.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush destination: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close destination: %w", closeErr)
	}
	return nil
}

// ValidateHandle checks that handle is a plain file name of at most
// MaxHandleLength characters that sanitizing leaves unchanged.
func ValidateHandle(handle string) error {
	if strings.TrimSpace(handle) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidHandle)
	}
	if utf8.RuneCountInString(handle) > MaxHandleLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidHandle, MaxHandleLength)
	}

	name, err := cleanName(handle)
	if err != nil {
		return err
	}
	if name != handle {
		return fmt.Errorf("%w: %q is not a plain file name, try %q", ErrInvalidHandle, handle, name)
	}
	return nil
}

// SuggestDestination derives a destination handle and MIME type from the last
// path segment of sourceURL. The MIME type is empty when the extension is unknown.
func SuggestDestination(sourceURL string) (string, string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", "", fmt.Errorf("parse url: %w", err)
	}

	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		base = defaultDestinationName
	}

	// keep the extension when the name has to be shortened
	ext := path.Ext(base)
	if runes := []rune(strings.TrimSuffix(base, ext)); len(runes)+utf8.RuneCountInString(ext) > MaxHandleLength &&
		utf8.RuneCountInString(ext) < MaxHandleLength {
		base = string(runes[:MaxHandleLength-utf8.RuneCountInString(ext)]) + ext
	}

	name, err := cleanName(base)
	if err != nil || ValidateHandle(name) != nil {
		name = defaultDestinationName
	}

	mimeType := ""
	if ext := strings.ToLower(path.Ext(name)); ext != "" {
		mimeType = mime.TypeByExtension(ext)
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			mimeType = mimeType[:i]
		}
	}

	return name, mimeType, nil
}

func cleanName(s string) (string, error) {
	name, err := filenamify.Filenamify(s, filenamify.Options{
		Replacement: "_",
		MaxLength:   MaxHandleLength,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidHandle, err)
	}
	return strings.TrimLeft(name, "."), nil
}
