package idb

import "io"

// AttachmentStore provides an interface for attachment storage backends.
// Attachments are addressed by slash-separated keys derived from the owning
// record ("data_files/<uuid>_<name>", "format_spec/<uuid>_<name>", ...).
// All operations use io.Reader/io.Writer for streaming so large instrument
// data files never have to fit in memory.
type AttachmentStore interface {
	// Put stores the bytes read from r under the given key, replacing any
	// previous content.
	Put(key string, r io.Reader) error

	// Get retrieves the content stored under key and writes it to w.
	Get(key string, w io.Writer) error

	// Exists reports whether content is stored under key.
	Exists(key string) (bool, error)

	// Delete removes the content stored under key. Deleting a missing key
	// is a no-op.
	Delete(key string) error

	// ValidateSetup verifies that the store is accessible and properly configured.
	ValidateSetup() error
}
