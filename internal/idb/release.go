package idb

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EnsureReleaseSnapshot builds the cached JSON dump for one release and
// stores it in the attachment store. The dump is built lazily: when the
// release already has one and force is false, nothing happens. The dump
// carries no attachments, only the schema scoped to the release.
func (s *Service) EnsureReleaseSnapshot(tag string, force bool) error {
	release, err := s.db.FindReleaseByTag(tag)
	if err != nil {
		return fmt.Errorf("looking up release: %w", err)
	}
	if release == nil {
		return fmt.Errorf("release %q does not exist", tag)
	}
	if release.JSONFile != nil && !force {
		return nil
	}

	doc, err := s.buildSchemaDocument(ExportConfig{NoAttachments: true}, tag)
	if err != nil {
		return fmt.Errorf("building dump for release %q: %w", tag, err)
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding dump for release %q: %w", tag, err)
	}

	key := ReleaseJSONKey(tag)
	if err := s.attachments.Put(key, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("storing dump for release %q: %w", tag, err)
	}
	if err := s.db.SetReleaseJSONFile(tag, key); err != nil {
		return fmt.Errorf("recording dump for release %q: %w", tag, err)
	}

	s.logger.Info("release dump updated", "tag", tag, "bytes", len(raw))
	return nil
}

// UpdateReleaseDumps brings the cached JSON dumps of all releases up to
// date. With force every dump is rebuilt; otherwise only releases that have
// none yet get one.
func (s *Service) UpdateReleaseDumps(force bool) error {
	releases, err := s.db.ListReleases()
	if err != nil {
		return fmt.Errorf("listing releases: %w", err)
	}
	for _, release := range releases {
		if err := s.EnsureReleaseSnapshot(release.Tag, force); err != nil {
			return err
		}
	}
	return nil
}
