package attachments

import (
	"context"
	"fmt"

	"idb-go/internal/config"
	"idb-go/internal/idb"
)

// NewStoreFromConfig creates an AttachmentStore implementation based on the
// attachments config type.
func NewStoreFromConfig(cfg config.AttachmentsConfig) (idb.AttachmentStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem attachment store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.FSRoot)
	case "s3":
		return NewS3Store(context.Background(), S3Config{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown attachment store type: %s", cfg.Type)
	}
}
