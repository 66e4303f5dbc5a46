package idb

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"idb-go/internal/model"
)

// Entity and quantity names end up as URL/path segments, so they are
// restricted to characters that need no escaping.
var nameRegexp = regexp.MustCompile(`^[-a-zA-Z0-9@:%._+~#=]{1,256}$`)

// ValidateName checks that a name is a safe identifier: non-empty, bounded,
// and free of slashes and whitespace.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid characters in name %q", name)
	}
	return nil
}

// ValidateJSON checks that value is empty or a valid JSON record.
func ValidateJSON(value string) error {
	if value == "" {
		return nil
	}
	if !json.Valid([]byte(value)) {
		return fmt.Errorf("invalid JSON: %q", value)
	}
	return nil
}

// ShortUUID returns the first six hex digits of a UUID, enough to locate a
// record in log output and error messages.
func ShortUUID(id string) string {
	hex := strings.ReplaceAll(id, "-", "")
	if len(hex) > 6 {
		hex = hex[:6]
	}
	return hex
}

// resolveFormatSpec looks up a format specification by UUID or, when the key
// does not parse as a UUID, by its document reference. A nil result with a
// nil error means "not found": the caller decides whether that is fatal or
// just a warning.
func resolveFormatSpec(db Database, key string) (*model.FormatSpecification, error) {
	if _, err := uuid.Parse(key); err == nil {
		return db.FindFormatSpecificationByUUID(key)
	}
	return db.FindFormatSpecificationByDocumentRef(key)
}
