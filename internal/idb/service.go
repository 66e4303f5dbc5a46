package idb

import (
	"fmt"
	"io"
	"strings"

	"idb-go/internal/model"
)

// Service is the orchestration layer that coordinates the database and the
// attachment store to perform the high-level catalog operations needed by
// the CLI and by external callers.
type Service struct {
	db          Database
	attachments AttachmentStore
	logger      Logger
	clock       Clock
	idgen       IDGenerator
}

// NewService creates a new Service with the provided dependencies.
func NewService(db Database, attachments AttachmentStore, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		db:          db,
		attachments: attachments,
		logger:      logger,
		clock:       clock,
		idgen:       idgen,
	}
}

// AddEntity creates an entity under the given parent (nil for a root).
func (s *Service) AddEntity(name string, parentUUID *string) (*model.Entity, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if parentUUID != nil {
		parent, err := s.db.FindEntityByUUID(*parentUUID)
		if err != nil {
			return nil, fmt.Errorf("looking up parent entity: %w", err)
		}
		if parent == nil {
			return nil, fmt.Errorf("parent entity %s does not exist", ShortUUID(*parentUUID))
		}
	}

	entity := &model.Entity{
		UUID:       s.idgen.New(),
		Name:       name,
		ParentUUID: parentUUID,
	}
	if err := s.db.UpsertEntity(entity); err != nil {
		return nil, fmt.Errorf("creating entity: %w", err)
	}

	s.logger.Info("entity created", "name", name, "uuid", ShortUUID(entity.UUID))
	return entity, nil
}

// AddFormatSpecification creates a format specification. When doc is
// non-nil its bytes are stored as the specification document attachment.
func (s *Service) AddFormatSpecification(spec *model.FormatSpecification, doc io.Reader) error {
	if spec.UUID == "" {
		spec.UUID = s.idgen.New()
	}
	if spec.DocumentRef == "" {
		return fmt.Errorf("format specification %s has no document_ref", ShortUUID(spec.UUID))
	}

	if doc != nil {
		key := FormatSpecKey(spec)
		if err := s.attachments.Put(key, doc); err != nil {
			return fmt.Errorf("storing specification document: %w", err)
		}
		spec.DocFile = &key
	}

	if err := s.db.UpsertFormatSpecification(spec); err != nil {
		return fmt.Errorf("creating format specification: %w", err)
	}

	s.logger.Info("format specification created",
		"document_ref", spec.DocumentRef, "uuid", ShortUUID(spec.UUID))
	return nil
}

// AddQuantity creates a quantity under an entity. formatSpecRef may be a
// UUID or a document reference; it must resolve.
func (s *Service) AddQuantity(name, entityUUID, formatSpecRef string) (*model.Quantity, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	entity, err := s.db.FindEntityByUUID(entityUUID)
	if err != nil {
		return nil, fmt.Errorf("looking up entity: %w", err)
	}
	if entity == nil {
		return nil, fmt.Errorf("entity %s for quantity %q does not exist", ShortUUID(entityUUID), name)
	}

	quantity := &model.Quantity{
		UUID:             s.idgen.New(),
		Name:             name,
		ParentEntityUUID: entityUUID,
	}
	if formatSpecRef != "" {
		spec, err := resolveFormatSpec(s.db, formatSpecRef)
		if err != nil {
			return nil, fmt.Errorf("looking up format specification: %w", err)
		}
		if spec == nil {
			return nil, fmt.Errorf("format specification %q for quantity %q does not exist", formatSpecRef, name)
		}
		quantity.FormatSpecUUID = &spec.UUID
	}

	if err := s.db.UpsertQuantity(quantity); err != nil {
		return nil, fmt.Errorf("creating quantity: %w", err)
	}

	s.logger.Info("quantity created", "name", name, "uuid", ShortUUID(quantity.UUID))
	return quantity, nil
}

// AddDataFile creates a data file under its quantity, stores the optional
// payload and plot attachments, and records its dependency edges.
// A zero UploadDate defaults to the current time; all dates are stored UTC.
func (s *Service) AddDataFile(file *model.DataFile, content, plot io.Reader, dependencies []string) error {
	if file.UUID == "" {
		file.UUID = s.idgen.New()
	}
	if err := ValidateJSON(file.Metadata); err != nil {
		return fmt.Errorf("data file %q (%s): %w", file.Name, ShortUUID(file.UUID), err)
	}
	if file.UploadDate.IsZero() {
		file.UploadDate = s.clock.Now()
	}
	file.UploadDate = file.UploadDate.UTC()

	quantity, err := s.db.FindQuantityByUUID(file.QuantityUUID)
	if err != nil {
		return fmt.Errorf("looking up quantity: %w", err)
	}
	if quantity == nil {
		return fmt.Errorf("quantity %s for data file %q does not exist",
			ShortUUID(file.QuantityUUID), file.Name)
	}

	if content != nil {
		key := DataFileKey(file)
		if err := s.attachments.Put(key, content); err != nil {
			return fmt.Errorf("storing data file payload: %w", err)
		}
		file.FileData = &key
	}
	if plot != nil {
		key := PlotFileKey(file)
		if err := s.attachments.Put(key, plot); err != nil {
			return fmt.Errorf("storing plot file: %w", err)
		}
		file.PlotFile = &key
	}

	if err := s.db.UpsertDataFile(file); err != nil {
		return fmt.Errorf("creating data file: %w", err)
	}

	for _, dep := range dependencies {
		target, err := s.db.FindDataFileByUUID(dep)
		if err != nil {
			return fmt.Errorf("looking up dependency: %w", err)
		}
		if target == nil {
			return fmt.Errorf("dependency %s for data file %q (%s) does not exist",
				ShortUUID(dep), file.Name, ShortUUID(file.UUID))
		}
		if err := s.db.AddDataFileDependency(file.UUID, dep); err != nil {
			return fmt.Errorf("recording dependency: %w", err)
		}
	}

	s.logger.Info("data file created", "name", file.Name, "uuid", ShortUUID(file.UUID))
	return nil
}

// AddRelease creates a release with the given member data files, stores the
// optional release document, and builds the cached JSON dump.
func (s *Service) AddRelease(release *model.Release, memberUUIDs []string, doc io.Reader) error {
	if release.Tag == "" {
		return fmt.Errorf("release has no tag")
	}
	if release.RelDate.IsZero() {
		release.RelDate = s.clock.Now()
	}
	release.RelDate = release.RelDate.UTC()

	if doc != nil {
		key := ReleaseDocumentKey(release)
		if err := s.attachments.Put(key, doc); err != nil {
			return fmt.Errorf("storing release document: %w", err)
		}
		release.ReleaseDocument = &key
	}

	if err := s.db.UpsertRelease(release); err != nil {
		return fmt.Errorf("creating release: %w", err)
	}

	for _, uuid := range memberUUIDs {
		file, err := s.db.FindDataFileByUUID(uuid)
		if err != nil {
			return fmt.Errorf("looking up release member: %w", err)
		}
		if file == nil {
			return fmt.Errorf("data file %s listed in release %q does not exist",
				ShortUUID(uuid), release.Tag)
		}
		if err := s.db.AddDataFileToRelease(release.Tag, uuid); err != nil {
			return fmt.Errorf("recording release membership: %w", err)
		}
	}

	s.logger.Info("release created", "tag", release.Tag, "members", len(memberUUIDs))
	return s.EnsureReleaseSnapshot(release.Tag, false)
}

// DeleteEntity removes an entity, its subtree, and all quantities and data
// files owned transitively, including their stored attachments.
func (s *Service) DeleteEntity(uuid string) error {
	files, err := s.collectSubtreeDataFiles(uuid)
	if err != nil {
		return err
	}
	if err := s.db.DeleteEntity(uuid); err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	s.deleteDataFileAttachments(files)
	s.logger.Info("entity deleted", "uuid", ShortUUID(uuid), "data_files", len(files))
	return nil
}

// DeleteQuantity removes a quantity, its data files, and their stored
// attachments.
func (s *Service) DeleteQuantity(uuid string) error {
	files, err := s.db.FindDataFilesByQuantity(uuid)
	if err != nil {
		return fmt.Errorf("listing data files: %w", err)
	}
	if err := s.db.DeleteQuantity(uuid); err != nil {
		return fmt.Errorf("deleting quantity: %w", err)
	}
	s.deleteDataFileAttachments(files)
	s.logger.Info("quantity deleted", "uuid", ShortUUID(uuid), "data_files", len(files))
	return nil
}

// DeleteFormatSpecification removes a format specification and its stored
// document. The deletion cascades to the quantities constrained by it and to
// their data files, whose attachments are removed as well.
func (s *Service) DeleteFormatSpecification(uuid string) error {
	spec, err := s.db.FindFormatSpecificationByUUID(uuid)
	if err != nil {
		return fmt.Errorf("looking up format specification: %w", err)
	}
	if spec == nil {
		return fmt.Errorf("format specification %s does not exist", ShortUUID(uuid))
	}

	quantities, err := s.db.ListQuantities()
	if err != nil {
		return fmt.Errorf("listing quantities: %w", err)
	}
	var files []*model.DataFile
	for _, q := range quantities {
		if q.FormatSpecUUID == nil || *q.FormatSpecUUID != uuid {
			continue
		}
		qf, err := s.db.FindDataFilesByQuantity(q.UUID)
		if err != nil {
			return fmt.Errorf("listing data files: %w", err)
		}
		files = append(files, qf...)
	}

	if err := s.db.DeleteFormatSpecification(uuid); err != nil {
		return fmt.Errorf("deleting format specification: %w", err)
	}
	s.deleteDataFileAttachments(files)
	if spec.DocFile != nil {
		if err := s.attachments.Delete(*spec.DocFile); err != nil {
			s.logger.Warn("deleting attachment", "key", *spec.DocFile, "error", err)
		}
	}
	s.logger.Info("format specification deleted",
		"document_ref", spec.DocumentRef, "uuid", ShortUUID(uuid), "data_files", len(files))
	return nil
}

// DeleteDataFile removes a data file and its stored attachments.
func (s *Service) DeleteDataFile(uuid string) error {
	file, err := s.db.FindDataFileByUUID(uuid)
	if err != nil {
		return fmt.Errorf("looking up data file: %w", err)
	}
	if file == nil {
		return fmt.Errorf("data file %s does not exist", ShortUUID(uuid))
	}
	if err := s.db.DeleteDataFile(uuid); err != nil {
		return fmt.Errorf("deleting data file: %w", err)
	}
	s.deleteDataFileAttachments([]*model.DataFile{file})
	return nil
}

// collectSubtreeDataFiles returns all data files owned by the entity's
// subtree, so their attachments can be removed after the cascade delete.
func (s *Service) collectSubtreeDataFiles(entityUUID string) ([]*model.DataFile, error) {
	var files []*model.DataFile

	quantities, err := s.db.FindQuantitiesByEntity(entityUUID)
	if err != nil {
		return nil, fmt.Errorf("listing quantities: %w", err)
	}
	for _, q := range quantities {
		qf, err := s.db.FindDataFilesByQuantity(q.UUID)
		if err != nil {
			return nil, fmt.Errorf("listing data files: %w", err)
		}
		files = append(files, qf...)
	}

	children, err := s.db.FindChildEntities(entityUUID)
	if err != nil {
		return nil, fmt.Errorf("listing child entities: %w", err)
	}
	for _, child := range children {
		cf, err := s.collectSubtreeDataFiles(child.UUID)
		if err != nil {
			return nil, err
		}
		files = append(files, cf...)
	}

	return files, nil
}

// deleteDataFileAttachments removes stored payloads and plots. Failures are
// logged, not returned: the database rows are already gone and an orphaned
// attachment is harmless.
func (s *Service) deleteDataFileAttachments(files []*model.DataFile) {
	for _, f := range files {
		for _, key := range []*string{f.FileData, f.PlotFile} {
			if key == nil {
				continue
			}
			if err := s.attachments.Delete(*key); err != nil {
				s.logger.Warn("deleting attachment", "key", *key, "error", err)
			}
		}
	}
}

// entityAncestorPath returns the slash-joined names from the root down to
// the given entity. A cycle in the parent chain is reported as an error.
func (s *Service) entityAncestorPath(entityUUID string) (string, error) {
	var names []string
	seen := map[string]bool{}

	cur := entityUUID
	for cur != "" {
		if seen[cur] {
			return "", fmt.Errorf("entity tree contains a cycle at %s", ShortUUID(cur))
		}
		seen[cur] = true

		entity, err := s.db.FindEntityByUUID(cur)
		if err != nil {
			return "", fmt.Errorf("looking up entity: %w", err)
		}
		if entity == nil {
			return "", fmt.Errorf("entity %s does not exist", ShortUUID(cur))
		}
		names = append([]string{entity.Name}, names...)

		if entity.ParentUUID == nil {
			break
		}
		cur = *entity.ParentUUID
	}

	return strings.Join(names, "/"), nil
}

// QuantityFullPath returns the slash-joined ancestor entity names plus the
// quantity name.
func (s *Service) QuantityFullPath(quantityUUID string) (string, error) {
	quantity, err := s.db.FindQuantityByUUID(quantityUUID)
	if err != nil {
		return "", fmt.Errorf("looking up quantity: %w", err)
	}
	if quantity == nil {
		return "", fmt.Errorf("quantity %s does not exist", ShortUUID(quantityUUID))
	}
	prefix, err := s.entityAncestorPath(quantity.ParentEntityUUID)
	if err != nil {
		return "", err
	}
	return prefix + "/" + quantity.Name, nil
}

// DataFileFullPath returns the slash-joined ancestor entity names plus the
// quantity name plus the file name. The path is derived on demand, never stored.
func (s *Service) DataFileFullPath(fileUUID string) (string, error) {
	file, err := s.db.FindDataFileByUUID(fileUUID)
	if err != nil {
		return "", fmt.Errorf("looking up data file: %w", err)
	}
	if file == nil {
		return "", fmt.Errorf("data file %s does not exist", ShortUUID(fileUUID))
	}
	prefix, err := s.QuantityFullPath(file.QuantityUUID)
	if err != nil {
		return "", err
	}
	return prefix + "/" + file.Name, nil
}

// WalkEntityTree visits the whole entity forest depth-first, calling fn with
// each entity and its depth (0 for roots). Children are visited in name order.
func (s *Service) WalkEntityTree(fn func(entity *model.Entity, depth int) error) error {
	roots, err := s.db.FindRootEntities()
	if err != nil {
		return fmt.Errorf("listing root entities: %w", err)
	}
	var walk func(entities []*model.Entity, depth int) error
	walk = func(entities []*model.Entity, depth int) error {
		for _, e := range entities {
			if err := fn(e, depth); err != nil {
				return err
			}
			children, err := s.db.FindChildEntities(e.UUID)
			if err != nil {
				return fmt.Errorf("listing child entities: %w", err)
			}
			if err := walk(children, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(roots, 0)
}
