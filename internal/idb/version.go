package idb

import "runtime/debug"

// Version is the tool version written into the meta section of every export.
const Version = "1.0.0"

// Repository identifies the producing tool in exported schema documents.
const Repository = "idb-go"

// VCSRevision returns the source-control revision the binary was built from,
// or "unknown" when the build carries no VCS information.
func VCSRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value
		}
	}
	return "unknown"
}
