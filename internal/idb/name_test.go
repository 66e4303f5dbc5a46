package idb

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	for _, name := range []string{"telescope", "focal_plane", "det-27", "LFI@30GHz", "a", strings.Repeat("x", 256)} {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}
	for _, name := range []string{"", "has space", "a/b", "a\tb", "über", strings.Repeat("x", 257)} {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}

func TestValidateJSON(t *testing.T) {
	for _, value := range []string{"", "{}", `{"k": [1, 2]}`, "null"} {
		if err := ValidateJSON(value); err != nil {
			t.Errorf("ValidateJSON(%q) = %v, want nil", value, err)
		}
	}
	if err := ValidateJSON("{not json"); err == nil {
		t.Error("ValidateJSON() of malformed input = nil, want error")
	}
}

func TestShortUUID(t *testing.T) {
	if got := ShortUUID("8c33a08f-67f5-4135-8a07-bcfb82a0b9dc"); got != "8c33a0" {
		t.Errorf("ShortUUID() = %q, want 8c33a0", got)
	}
	if got := ShortUUID("abc"); got != "abc" {
		t.Errorf("ShortUUID() of short id = %q, want abc", got)
	}
}
