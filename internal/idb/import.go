package idb

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"idb-go/internal/model"
)

// ImportOptions controls a schema import.
type ImportOptions struct {
	DryRun      bool // Parse and report without touching the database or the attachment store
	NoOverwrite bool // Skip records whose UUID (or tag) already exists instead of overwriting
}

// importer carries the state of one Import call. Records created earlier in
// the same run are tracked so that later documents can reference them, which
// in dry-run mode is the only place they exist.
type importer struct {
	svc  *Service
	opts ImportOptions

	// baseDir is the directory of the document currently being processed;
	// attachment paths in the document are resolved against it.
	baseDir string

	entities   map[string]*model.Entity
	specs      map[string]*model.FormatSpecification
	specsByRef map[string]*model.FormatSpecification
	quantities map[string]*model.Quantity
	dataFiles  map[string]*model.DataFile

	// pendingDeps maps a data file UUID to the dependency UUIDs declared for
	// it. The map is shared across all documents of the run and resolved only
	// after every document has been processed, so a dependency may point
	// forward within a document or into a sibling document.
	pendingDeps map[string][]string
}

// Import loads one or more schema documents into the catalog. Documents are
// processed in the given order; dependency edges are resolved after all
// documents have been read. Unless opts.DryRun is set, missing release dumps
// are rebuilt at the end, which covers every release the run touched.
func (s *Service) Import(paths []string, opts ImportOptions) error {
	imp := &importer{
		svc:         s,
		opts:        opts,
		entities:    map[string]*model.Entity{},
		specs:       map[string]*model.FormatSpecification{},
		specsByRef:  map[string]*model.FormatSpecification{},
		quantities:  map[string]*model.Quantity{},
		dataFiles:   map[string]*model.DataFile{},
		pendingDeps: map[string][]string{},
	}

	for _, path := range paths {
		doc, err := readSchemaDocument(path)
		if err != nil {
			return err
		}
		imp.baseDir = filepath.Dir(path)
		if err := imp.importDocument(doc); err != nil {
			return fmt.Errorf("importing %s: %w", path, err)
		}
	}

	if err := imp.resolveDependencies(); err != nil {
		return err
	}

	if opts.DryRun {
		s.logger.Info("dry run complete, nothing was changed", "documents", len(paths))
		return nil
	}

	// Importing a release clears its cached dump, so a non-forced sweep
	// rebuilds the dumps for every release the run touched and fills in any
	// that were missing before.
	if err := s.UpdateReleaseDumps(false); err != nil {
		return err
	}
	s.logger.Info("import complete", "documents", len(paths))
	return nil
}

// readSchemaDocument parses a schema file, picking the codec by extension.
func readSchemaDocument(path string) (*SchemaDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}

	var doc SchemaDocument
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("schema file %s has unsupported extension (want .json, .yaml or .yml)", path)
	}
	return &doc, nil
}

func (imp *importer) importDocument(doc *SchemaDocument) error {
	for i := range doc.FormatSpecifications {
		if err := imp.importFormatSpecification(&doc.FormatSpecifications[i]); err != nil {
			return err
		}
	}
	if err := imp.importEntityNodes(doc.Entities, nil); err != nil {
		return err
	}
	for i := range doc.Quantities {
		if err := imp.importQuantity(&doc.Quantities[i], ""); err != nil {
			return err
		}
	}
	for i := range doc.DataFiles {
		if err := imp.importDataFile(&doc.DataFiles[i], ""); err != nil {
			return err
		}
	}
	for i := range doc.Releases {
		if err := imp.importRelease(&doc.Releases[i]); err != nil {
			return err
		}
	}
	return nil
}

func (imp *importer) importFormatSpecification(entry *FormatSpecEntry) error {
	if entry.DocumentRef == "" {
		return fmt.Errorf("format specification has no document_ref")
	}

	spec := &model.FormatSpecification{
		UUID:         string(entry.UUID),
		DocumentRef:  string(entry.DocumentRef),
		Title:        string(entry.Title),
		DocMimeType:  string(entry.DocMimeType),
		FileMimeType: string(entry.FileMimeType),
	}
	if spec.UUID == "" {
		spec.UUID = imp.svc.idgen.New()
	}
	if entry.DocFileName != "" {
		name := string(entry.DocFileName)
		spec.DocFileName = &name
	}

	if skip, err := imp.skipExisting("format specification", spec.DocumentRef, func() (bool, error) {
		found, err := imp.svc.db.FindFormatSpecificationByUUID(spec.UUID)
		return found != nil, err
	}); err != nil || skip {
		return err
	}

	// file_path is the legacy spelling of file_name
	docPath := string(entry.FileName)
	if docPath == "" {
		docPath = string(entry.FilePath)
	}
	if docPath != "" {
		key := FormatSpecKey(spec)
		if err := imp.storeAttachment(docPath, key,
			fmt.Sprintf("format specification %q", spec.DocumentRef)); err != nil {
			return err
		}
		spec.DocFile = &key
	}

	imp.specs[spec.UUID] = spec
	imp.specsByRef[spec.DocumentRef] = spec
	if imp.opts.DryRun {
		imp.svc.logger.Info("would import format specification", "document_ref", spec.DocumentRef)
		return nil
	}
	if err := imp.svc.db.UpsertFormatSpecification(spec); err != nil {
		return fmt.Errorf("importing format specification %q: %w", spec.DocumentRef, err)
	}
	imp.svc.logger.Info("format specification imported",
		"document_ref", spec.DocumentRef, "uuid", ShortUUID(spec.UUID))
	return nil
}

// importEntityNodes walks one level of the tree, recursing into children.
// Quantities nested inline under an entity are imported with that entity as
// their owner.
func (imp *importer) importEntityNodes(nodes []EntityNode, parentUUID *string) error {
	for i := range nodes {
		node := &nodes[i]
		if node.Name == "" {
			return fmt.Errorf("entity has no name")
		}
		if err := ValidateName(string(node.Name)); err != nil {
			return fmt.Errorf("entity %q: %w", node.Name, err)
		}

		entity := &model.Entity{
			UUID:       string(node.UUID),
			Name:       string(node.Name),
			ParentUUID: parentUUID,
		}
		if entity.UUID == "" {
			entity.UUID = imp.svc.idgen.New()
		}

		skip, err := imp.skipExisting("entity", entity.Name, func() (bool, error) {
			found, err := imp.svc.db.FindEntityByUUID(entity.UUID)
			return found != nil, err
		})
		if err != nil {
			return err
		}

		if !skip {
			imp.entities[entity.UUID] = entity
			if imp.opts.DryRun {
				imp.svc.logger.Info("would import entity", "name", entity.Name)
			} else {
				if err := imp.svc.db.UpsertEntity(entity); err != nil {
					return fmt.Errorf("importing entity %q: %w", entity.Name, err)
				}
				imp.svc.logger.Info("entity imported", "name", entity.Name, "uuid", ShortUUID(entity.UUID))
			}
		}

		// Children and inline quantities are imported even when the entity
		// itself was skipped: the subtree may hold new records.
		for j := range node.Quantities {
			if err := imp.importQuantity(&node.Quantities[j], entity.UUID); err != nil {
				return err
			}
		}
		if err := imp.importEntityNodes(node.Children, &entity.UUID); err != nil {
			return err
		}
	}
	return nil
}

// importQuantity imports one quantity. ownerUUID is the enclosing entity for
// inline quantities and empty for top-level ones, which must carry an
// explicit entity reference.
func (imp *importer) importQuantity(entry *QuantityEntry, ownerUUID string) error {
	if entry.Name == "" {
		return fmt.Errorf("quantity has no name")
	}
	if err := ValidateName(string(entry.Name)); err != nil {
		return fmt.Errorf("quantity %q: %w", entry.Name, err)
	}

	entityUUID := string(entry.Entity)
	if entityUUID == "" {
		entityUUID = ownerUUID
	}
	if entityUUID == "" {
		return fmt.Errorf("quantity %q references no entity", entry.Name)
	}
	if !imp.entityExists(entityUUID) {
		return fmt.Errorf("quantity %q references unknown entity %s", entry.Name, ShortUUID(entityUUID))
	}

	quantity := &model.Quantity{
		UUID:             string(entry.UUID),
		Name:             string(entry.Name),
		ParentEntityUUID: entityUUID,
	}
	if quantity.UUID == "" {
		quantity.UUID = imp.svc.idgen.New()
	}

	skip, err := imp.skipExisting("quantity", quantity.Name, func() (bool, error) {
		found, err := imp.svc.db.FindQuantityByUUID(quantity.UUID)
		return found != nil, err
	})
	if err != nil {
		return err
	}

	if !skip {
		// An unresolvable format specification reference is a warning, not an
		// error: documents produced before specifications were tracked carry
		// references that no longer resolve, and the quantity is still usable
		// without one.
		if ref := string(entry.FormatSpec); ref != "" {
			spec := imp.lookupFormatSpec(ref)
			if spec == nil {
				imp.svc.logger.Warn("quantity references unknown format specification",
					"name", quantity.Name, "format_spec", ref)
			} else {
				quantity.FormatSpecUUID = &spec.UUID
			}
		}

		imp.quantities[quantity.UUID] = quantity
		if imp.opts.DryRun {
			imp.svc.logger.Info("would import quantity", "name", quantity.Name)
		} else {
			if err := imp.svc.db.UpsertQuantity(quantity); err != nil {
				return fmt.Errorf("importing quantity %q: %w", quantity.Name, err)
			}
			imp.svc.logger.Info("quantity imported", "name", quantity.Name, "uuid", ShortUUID(quantity.UUID))
		}
	}

	for i := range entry.DataFiles {
		if err := imp.importDataFile(&entry.DataFiles[i], quantity.UUID); err != nil {
			return err
		}
	}
	return nil
}

// importDataFile imports one data file. ownerUUID is the enclosing quantity
// for inline data files and empty for top-level ones.
func (imp *importer) importDataFile(entry *DataFileEntry, ownerUUID string) error {
	// Data file names are ordinary file names, not path segments, so they
	// are not held to the safe-identifier rule.
	if entry.Name == "" {
		return fmt.Errorf("data file has no name")
	}

	quantityUUID := string(entry.Quantity)
	if quantityUUID == "" {
		quantityUUID = ownerUUID
	}
	if quantityUUID == "" {
		return fmt.Errorf("data file %q references no quantity", entry.Name)
	}
	if !imp.quantityExists(quantityUUID) {
		return fmt.Errorf("data file %q references unknown quantity %s", entry.Name, ShortUUID(quantityUUID))
	}

	file := &model.DataFile{
		UUID:         string(entry.UUID),
		Name:         string(entry.Name),
		QuantityUUID: quantityUUID,
		SpecVersion:  string(entry.SpecVersion),
	}
	if file.UUID == "" {
		file.UUID = imp.svc.idgen.New()
	}

	if skip, err := imp.skipExisting("data file", file.Name, func() (bool, error) {
		found, err := imp.svc.db.FindDataFileByUUID(file.UUID)
		return found != nil, err
	}); err != nil || skip {
		return err
	}

	if entry.UploadDate == "" {
		return fmt.Errorf("data file %q has no upload_date", file.Name)
	}
	uploadDate, err := parseTimestamp(string(entry.UploadDate))
	if err != nil {
		return fmt.Errorf("data file %q has invalid upload_date: %w", file.Name, err)
	}
	file.UploadDate = uploadDate

	if entry.Metadata == nil {
		file.Metadata = "{}"
	} else {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("data file %q has unencodable metadata: %w", file.Name, err)
		}
		file.Metadata = string(raw)
	}

	if entry.PlotMimeType != "" {
		mime := string(entry.PlotMimeType)
		file.PlotMimeType = &mime
	}
	ident := fmt.Sprintf("data file %q", file.Name)
	if entry.FileName != "" {
		key := DataFileKey(file)
		if err := imp.storeAttachment(string(entry.FileName), key, ident); err != nil {
			return err
		}
		file.FileData = &key
	}
	if entry.PlotFile != "" {
		key := PlotFileKey(file)
		if err := imp.storeAttachment(string(entry.PlotFile), key, ident); err != nil {
			return err
		}
		file.PlotFile = &key
	}

	if len(entry.Dependencies) > 0 {
		deps := make([]string, 0, len(entry.Dependencies))
		for _, d := range entry.Dependencies {
			deps = append(deps, string(d))
		}
		imp.pendingDeps[file.UUID] = deps
	}

	imp.dataFiles[file.UUID] = file
	if imp.opts.DryRun {
		imp.svc.logger.Info("would import data file", "name", file.Name)
		return nil
	}
	if err := imp.svc.db.UpsertDataFile(file); err != nil {
		return fmt.Errorf("importing data file %q: %w", file.Name, err)
	}
	imp.svc.logger.Info("data file imported", "name", file.Name, "uuid", ShortUUID(file.UUID))
	return nil
}

func (imp *importer) importRelease(entry *ReleaseEntry) error {
	if entry.Tag == "" {
		return fmt.Errorf("release has no tag")
	}

	release := &model.Release{
		Tag:     string(entry.Tag),
		Comment: string(entry.Comment),
	}
	if entry.ReleaseDate == "" {
		return fmt.Errorf("release %q has no release_date", release.Tag)
	}
	relDate, err := parseTimestamp(string(entry.ReleaseDate))
	if err != nil {
		return fmt.Errorf("release %q has invalid release_date: %w", release.Tag, err)
	}
	release.RelDate = relDate
	if entry.ReleaseDocumentMimeType != "" {
		mime := string(entry.ReleaseDocumentMimeType)
		release.ReleaseDocumentMimeType = &mime
	}

	if skip, err := imp.skipExisting("release", release.Tag, func() (bool, error) {
		found, err := imp.svc.db.FindReleaseByTag(release.Tag)
		return found != nil, err
	}); err != nil || skip {
		return err
	}

	for _, member := range entry.DataFiles {
		if !imp.dataFileExists(string(member)) {
			return fmt.Errorf("release %q lists unknown data file %s", release.Tag, ShortUUID(string(member)))
		}
	}

	// release_document is the legacy spelling of release_document_file_name
	docPath := string(entry.ReleaseDocumentFileName)
	if docPath == "" {
		docPath = string(entry.ReleaseDocument)
	}
	if docPath != "" {
		key := ReleaseDocumentKey(release)
		if err := imp.storeAttachment(docPath, key, fmt.Sprintf("release %q", release.Tag)); err != nil {
			return err
		}
		release.ReleaseDocument = &key
	}

	if imp.opts.DryRun {
		imp.svc.logger.Info("would import release", "tag", release.Tag, "members", len(entry.DataFiles))
		return nil
	}
	if err := imp.svc.db.UpsertRelease(release); err != nil {
		return fmt.Errorf("importing release %q: %w", release.Tag, err)
	}
	for _, member := range entry.DataFiles {
		if err := imp.svc.db.AddDataFileToRelease(release.Tag, string(member)); err != nil {
			return fmt.Errorf("recording member of release %q: %w", release.Tag, err)
		}
	}
	imp.svc.logger.Info("release imported", "tag", release.Tag, "members", len(entry.DataFiles))
	return nil
}

// resolveDependencies records the dependency edges collected during the run.
// Deferring this until every document has been read lets an edge point at a
// data file declared later in the same document or in another document of
// the batch.
func (imp *importer) resolveDependencies() error {
	for fileUUID, deps := range imp.pendingDeps {
		for _, dep := range deps {
			if !imp.dataFileExists(dep) {
				return fmt.Errorf("data file %s depends on unknown data file %s",
					ShortUUID(fileUUID), ShortUUID(dep))
			}
			if imp.opts.DryRun {
				continue
			}
			if err := imp.svc.db.AddDataFileDependency(fileUUID, dep); err != nil {
				return fmt.Errorf("recording dependency of data file %s: %w", ShortUUID(fileUUID), err)
			}
		}
	}
	return nil
}

// skipExisting implements the no-overwrite policy: when the record already
// exists and NoOverwrite is set, it is left untouched and the caller skips
// the rest of the record (attachments included).
func (imp *importer) skipExisting(kind, name string, exists func() (bool, error)) (bool, error) {
	if !imp.opts.NoOverwrite {
		return false, nil
	}
	found, err := exists()
	if err != nil {
		return false, fmt.Errorf("looking up %s %q: %w", kind, name, err)
	}
	if found {
		imp.svc.logger.Info("skipping existing "+kind, "name", name)
		return true, nil
	}
	return false, nil
}

// storeAttachment resolves relPath against the document directory and copies
// the bytes into the attachment store under key. A path that does not exist
// as written is retried under the record's standard subfolder and then at the
// exact conventional export location, so a hand-authored document may name
// just the bare file as long as the bytes sit in the standard folders.
func (imp *importer) storeAttachment(relPath, key, owner string) error {
	subfolder := path.Dir(key)
	candidates := []string{
		filepath.Join(imp.baseDir, filepath.FromSlash(relPath)),
		filepath.Join(imp.baseDir, filepath.FromSlash(subfolder), filepath.FromSlash(relPath)),
		filepath.Join(imp.baseDir, filepath.FromSlash(key)),
	}

	var src string
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			src = c
			break
		}
	}
	if src == "" {
		return fmt.Errorf("%s names attachment %q but no such file exists under %s", owner, relPath, imp.baseDir)
	}

	if imp.opts.DryRun {
		return nil
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening attachment for %s: %w", owner, err)
	}
	defer f.Close()
	if err := imp.svc.attachments.Put(key, f); err != nil {
		return fmt.Errorf("storing attachment for %s: %w", owner, err)
	}
	return nil
}

// entityExists reports whether the entity is known to this run or to the database.
func (imp *importer) entityExists(uuid string) bool {
	if imp.entities[uuid] != nil {
		return true
	}
	found, err := imp.svc.db.FindEntityByUUID(uuid)
	return err == nil && found != nil
}

func (imp *importer) quantityExists(uuid string) bool {
	if imp.quantities[uuid] != nil {
		return true
	}
	found, err := imp.svc.db.FindQuantityByUUID(uuid)
	return err == nil && found != nil
}

func (imp *importer) dataFileExists(uuid string) bool {
	if imp.dataFiles[uuid] != nil {
		return true
	}
	found, err := imp.svc.db.FindDataFileByUUID(uuid)
	return err == nil && found != nil
}

// lookupFormatSpec resolves a UUID or document_ref against this run's records
// and then the database.
func (imp *importer) lookupFormatSpec(ref string) *model.FormatSpecification {
	if spec := imp.specs[ref]; spec != nil {
		return spec
	}
	if spec := imp.specsByRef[ref]; spec != nil {
		return spec
	}
	spec, err := resolveFormatSpec(imp.svc.db, ref)
	if err != nil {
		return nil
	}
	return spec
}

// parseTimestamp accepts RFC 3339 and, for hand-authored documents, a
// zone-less variant and a bare date, both read as UTC.
func parseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", value)
}
