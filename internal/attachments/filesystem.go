package attachments

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"idb-go/internal/idb"
)

// copyChunkSize is the buffer size used when streaming attachment bytes.
const copyChunkSize = 1024 * 1024

// FileSystemStore is a filesystem-based implementation of the AttachmentStore
// interface. Keys use forward slashes and map to a directory structure below
// the root:
//
//	<root>/
//	  format_spec/<uuid>_<name>
//	  data_files/<uuid>_<name>
//	  plot_files/<uuid>_<name>.<ext>
//	  release_documents/<tag>.<ext>
//	  schema_<tag>.json
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates a new filesystem store rooted at the given path.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attachment root: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

// keyPath maps an attachment key to a path below the root. Keys that would
// escape the root are rejected.
func (s *FileSystemStore) keyPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid attachment key: %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put stores the bytes from r under key, replacing any previous content.
// The write is atomic: data goes to a temp file first and is renamed into
// place, so readers never observe a partial attachment.
func (s *FileSystemStore) Put(key string, r io.Reader) error {
	destPath, err := s.keyPath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create attachment directory: %w", err)
	}

	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	buf := make([]byte, copyChunkSize)
	if _, err := io.CopyBuffer(tmpFile, r, buf); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Get retrieves the content stored under key and writes it to w.
func (s *FileSystemStore) Get(key string, w io.Writer) error {
	srcPath, err := s.keyPath(key)
	if err != nil {
		return err
	}
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("attachment not found: %s", key)
		}
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()

	buf := make([]byte, copyChunkSize)
	if _, err := io.CopyBuffer(w, f, buf); err != nil {
		return fmt.Errorf("failed to read attachment: %w", err)
	}
	return nil
}

// Exists reports whether content is stored under key.
func (s *FileSystemStore) Exists(key string) (bool, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking attachment: %w", err)
	}
	return true, nil
}

// Delete removes the content stored under key. Deleting a missing key is a no-op.
func (s *FileSystemStore) Delete(key string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting attachment: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the store root is accessible.
func (s *FileSystemStore) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("attachment root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("attachment root is not a directory: %s", s.root)
	}
	return nil
}

// Compile-time check that FileSystemStore implements the AttachmentStore interface
var _ idb.AttachmentStore = (*FileSystemStore)(nil)
