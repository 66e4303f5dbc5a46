package idb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"idb-go/internal/model"
)

// ExportFormat selects the serialization of the schema document.
type ExportFormat int

const (
	FormatJSON ExportFormat = iota
	FormatYAML
)

// Extension returns the schema file extension for the format.
func (f ExportFormat) Extension() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// ExportConfig controls a schema export.
type ExportConfig struct {
	NoAttachments       bool   // Do not copy attachment files, only the schema
	OnlyTree            bool   // Only include the entity tree in the schema
	Overwrite           bool   // Allow writing into a non-empty output directory
	SkipEmptyEntities   bool   // Prune entities whose subtree holds no visible data files
	SkipEmptyQuantities bool   // Omit quantities with no visible data files
	Format              ExportFormat
	OutputDir           string // Directory receiving schema.{json,yaml} and attachments
}

// Export serializes the whole catalog (or a single release when releaseTag
// is non-empty) into cfg.OutputDir and returns the path of the schema file.
//
// The output directory is created if missing; a non-empty directory without
// cfg.Overwrite fails before anything is written. A record that claims an
// attachment whose bytes are not in the store aborts the export: emitting a
// dangling reference would corrupt the output tree.
func (s *Service) Export(cfg ExportConfig, releaseTag string) (string, error) {
	if err := prepareOutputDir(cfg.OutputDir, cfg.Overwrite); err != nil {
		return "", err
	}

	doc, err := s.buildSchemaDocument(cfg, releaseTag)
	if err != nil {
		return "", err
	}

	schemaPath := filepath.Join(cfg.OutputDir, "schema."+cfg.Format.Extension())
	if err := writeSchemaFile(schemaPath, cfg.Format, doc); err != nil {
		return "", err
	}

	s.logger.Info("export complete",
		"schema", schemaPath,
		"entities", len(doc.Entities),
		"data_files", len(doc.DataFiles),
		"releases", len(doc.Releases))
	return schemaPath, nil
}

// buildSchemaDocument assembles the schema document for the whole catalog or
// for one release, copying attachments as cfg dictates.
func (s *Service) buildSchemaDocument(cfg ExportConfig, releaseTag string) (*SchemaDocument, error) {
	var (
		visibleFiles []*model.DataFile
		releases     []*model.Release
	)
	if releaseTag != "" {
		release, err := s.db.FindReleaseByTag(releaseTag)
		if err != nil {
			return nil, fmt.Errorf("looking up release: %w", err)
		}
		if release == nil {
			return nil, fmt.Errorf("release %q does not exist", releaseTag)
		}
		releases = []*model.Release{release}
		visibleFiles, err = s.db.FindReleaseDataFiles(releaseTag)
		if err != nil {
			return nil, fmt.Errorf("listing release data files: %w", err)
		}
	} else {
		var err error
		releases, err = s.db.ListReleases()
		if err != nil {
			return nil, fmt.Errorf("listing releases: %w", err)
		}
		visibleFiles, err = s.db.ListDataFiles()
		if err != nil {
			return nil, fmt.Errorf("listing data files: %w", err)
		}
	}

	visible := make(map[string]bool, len(visibleFiles))
	for _, f := range visibleFiles {
		visible[f.UUID] = true
	}

	doc := SchemaDocument{
		Meta: SchemaMeta{
			GitSHA:     Quoted(VCSRevision()),
			Version:    Quoted(Version),
			DumpDate:   Quoted(s.clock.Now().UTC().Format(time.RFC3339)),
			Repository: Quoted(Repository),
		},
	}

	roots, err := s.db.FindRootEntities()
	if err != nil {
		return nil, fmt.Errorf("listing root entities: %w", err)
	}
	doc.Entities, err = s.exportEntityTree(cfg, roots, visible)
	if err != nil {
		return nil, err
	}

	if !cfg.OnlyTree {
		if doc.FormatSpecifications, err = s.exportFormatSpecifications(cfg); err != nil {
			return nil, err
		}
		if doc.Quantities, err = s.exportQuantities(cfg, visible); err != nil {
			return nil, err
		}
		if doc.DataFiles, err = s.exportDataFiles(cfg, visibleFiles); err != nil {
			return nil, err
		}
		if doc.Releases, err = s.exportReleases(cfg, releases); err != nil {
			return nil, err
		}
	}

	return &doc, nil
}

// prepareOutputDir creates dir if needed and fails fast when it already
// holds files and overwriting was not requested.
func prepareOutputDir(dir string, overwrite bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0755)
		}
		return fmt.Errorf("reading output directory: %w", err)
	}
	if len(entries) > 0 && !overwrite {
		return fmt.Errorf("output directory %s is not empty (use overwrite to allow)", dir)
	}
	return nil
}

// exportEntityTree walks the forest depth-first, filtering post-order: with
// SkipEmptyEntities, a node survives only if it keeps at least one child or
// its own quantities own at least one visible data file.
func (s *Service) exportEntityTree(cfg ExportConfig, entities []*model.Entity, visible map[string]bool) ([]EntityNode, error) {
	var result []EntityNode
	for _, entity := range entities {
		children, err := s.db.FindChildEntities(entity.UUID)
		if err != nil {
			return nil, fmt.Errorf("listing child entities: %w", err)
		}
		childNodes, err := s.exportEntityTree(cfg, children, visible)
		if err != nil {
			return nil, err
		}

		if cfg.SkipEmptyEntities && len(childNodes) == 0 {
			count, err := s.countVisibleFiles(entity.UUID, visible)
			if err != nil {
				return nil, err
			}
			if count == 0 {
				s.logger.Info("skipping entity with no children nor data files", "name", entity.Name)
				continue
			}
		}

		result = append(result, EntityNode{
			UUID:     Quoted(entity.UUID),
			Name:     Quoted(entity.Name),
			Children: childNodes,
		})
	}
	return result, nil
}

// countVisibleFiles counts the visible data files owned by the entity's own
// quantities (not its descendants).
func (s *Service) countVisibleFiles(entityUUID string, visible map[string]bool) (int, error) {
	quantities, err := s.db.FindQuantitiesByEntity(entityUUID)
	if err != nil {
		return 0, fmt.Errorf("listing quantities: %w", err)
	}
	count := 0
	for _, q := range quantities {
		files, err := s.db.FindDataFilesByQuantity(q.UUID)
		if err != nil {
			return 0, fmt.Errorf("listing data files: %w", err)
		}
		for _, f := range files {
			if visible[f.UUID] {
				count++
			}
		}
	}
	return count, nil
}

func (s *Service) exportFormatSpecifications(cfg ExportConfig) ([]FormatSpecEntry, error) {
	specs, err := s.db.ListFormatSpecifications()
	if err != nil {
		return nil, fmt.Errorf("listing format specifications: %w", err)
	}

	var result []FormatSpecEntry
	for _, spec := range specs {
		entry := FormatSpecEntry{
			UUID:         Quoted(spec.UUID),
			DocumentRef:  Quoted(spec.DocumentRef),
			Title:        Quoted(spec.Title),
			FileMimeType: Quoted(spec.FileMimeType),
			DocMimeType:  Quoted(spec.DocMimeType),
		}
		if spec.DocFileName != nil {
			entry.DocFileName = Quoted(*spec.DocFileName)
		}

		if spec.DocFile != nil && !cfg.NoAttachments {
			relPath := FormatSpecKey(spec)
			if err := s.copyAttachment(cfg, relPath, *spec.DocFile,
				fmt.Sprintf("format specification %q (%s)", spec.DocumentRef, ShortUUID(spec.UUID))); err != nil {
				return nil, err
			}
			entry.FileName = Quoted(relPath)
		}

		result = append(result, entry)
	}
	return result, nil
}

func (s *Service) exportQuantities(cfg ExportConfig, visible map[string]bool) ([]QuantityEntry, error) {
	quantities, err := s.db.ListQuantities()
	if err != nil {
		return nil, fmt.Errorf("listing quantities: %w", err)
	}

	var result []QuantityEntry
	for _, q := range quantities {
		if cfg.SkipEmptyQuantities {
			files, err := s.db.FindDataFilesByQuantity(q.UUID)
			if err != nil {
				return nil, fmt.Errorf("listing data files: %w", err)
			}
			n := 0
			for _, f := range files {
				if visible[f.UUID] {
					n++
				}
			}
			if n == 0 {
				s.logger.Info("skipping quantity with no data files", "name", q.Name)
				continue
			}
		}

		entry := QuantityEntry{
			UUID:   Quoted(q.UUID),
			Name:   Quoted(q.Name),
			Entity: Quoted(q.ParentEntityUUID),
		}
		if q.FormatSpecUUID != nil {
			entry.FormatSpec = Quoted(*q.FormatSpecUUID)
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Service) exportDataFiles(cfg ExportConfig, files []*model.DataFile) ([]DataFileEntry, error) {
	var result []DataFileEntry
	for _, file := range files {
		entry := DataFileEntry{
			UUID:        Quoted(file.UUID),
			Name:        Quoted(file.Name),
			UploadDate:  Quoted(file.UploadDate.UTC().Format(time.RFC3339)),
			Quantity:    Quoted(file.QuantityUUID),
			SpecVersion: Quoted(file.SpecVersion),
		}

		if file.Metadata != "" {
			var metadata any
			if err := json.Unmarshal([]byte(file.Metadata), &metadata); err != nil {
				return nil, fmt.Errorf("data file %q (%s) has invalid metadata: %w",
					file.Name, ShortUUID(file.UUID), err)
			}
			entry.Metadata = metadata
		}

		ident := fmt.Sprintf("data file %q (%s)", file.Name, ShortUUID(file.UUID))
		if file.FileData != nil && !cfg.NoAttachments {
			relPath := DataFileKey(file)
			if err := s.copyAttachment(cfg, relPath, *file.FileData, ident); err != nil {
				return nil, err
			}
			entry.FileName = Quoted(relPath)
		}
		if file.PlotFile != nil && !cfg.NoAttachments {
			relPath := PlotFileKey(file)
			if err := s.copyAttachment(cfg, relPath, *file.PlotFile, ident); err != nil {
				return nil, err
			}
			entry.PlotFile = Quoted(relPath)
			if file.PlotMimeType != nil {
				entry.PlotMimeType = Quoted(*file.PlotMimeType)
			}
		}

		deps, err := s.db.FindDataFileDependencies(file.UUID)
		if err != nil {
			return nil, fmt.Errorf("listing dependencies: %w", err)
		}
		for _, dep := range deps {
			entry.Dependencies = append(entry.Dependencies, Quoted(dep))
		}

		result = append(result, entry)
	}
	return result, nil
}

func (s *Service) exportReleases(cfg ExportConfig, releases []*model.Release) ([]ReleaseEntry, error) {
	var result []ReleaseEntry
	for _, release := range releases {
		members, err := s.db.FindReleaseDataFiles(release.Tag)
		if err != nil {
			return nil, fmt.Errorf("listing release data files: %w", err)
		}

		entry := ReleaseEntry{
			Tag:         Quoted(release.Tag),
			ReleaseDate: Quoted(release.RelDate.UTC().Format(time.RFC3339)),
			Comment:     Quoted(release.Comment),
			DataFiles:   make([]Quoted, 0, len(members)),
		}
		for _, m := range members {
			entry.DataFiles = append(entry.DataFiles, Quoted(m.UUID))
		}
		if release.ReleaseDocumentMimeType != nil {
			entry.ReleaseDocumentMimeType = Quoted(*release.ReleaseDocumentMimeType)
		}

		if release.ReleaseDocument != nil && !cfg.NoAttachments {
			relPath := ReleaseDocumentKey(release)
			if err := s.copyAttachment(cfg, relPath, *release.ReleaseDocument,
				fmt.Sprintf("release %q", release.Tag)); err != nil {
				return nil, err
			}
			entry.ReleaseDocumentFileName = Quoted(relPath)
		}

		result = append(result, entry)
	}
	return result, nil
}

// copyAttachment streams the attachment stored under key into
// cfg.OutputDir/relPath. A claimed attachment that is not in the store is a
// data-integrity bug and aborts the export.
func (s *Service) copyAttachment(cfg ExportConfig, relPath, key, owner string) error {
	exists, err := s.attachments.Exists(key)
	if err != nil {
		return fmt.Errorf("checking attachment for %s: %w", owner, err)
	}
	if !exists {
		return fmt.Errorf("%s claims attachment %q but the store has no such content", owner, key)
	}

	absPath := filepath.Join(cfg.OutputDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return fmt.Errorf("creating attachment directory: %w", err)
	}

	out, err := os.Create(absPath)
	if err != nil {
		return fmt.Errorf("creating attachment file: %w", err)
	}
	if err := s.attachments.Get(key, out); err != nil {
		out.Close()
		return fmt.Errorf("copying attachment for %s: %w", owner, err)
	}
	return out.Close()
}

// writeSchemaFile serializes the document as indented JSON or quoted-scalar YAML.
func writeSchemaFile(path string, format ExportFormat, doc *SchemaDocument) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating schema file: %w", err)
	}
	defer out.Close()

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding schema as YAML: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding schema as JSON: %w", err)
		}
		return nil
	}
}
