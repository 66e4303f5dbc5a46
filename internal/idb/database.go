package idb

import "idb-go/internal/model"

// Database provides an interface for catalog metadata storage.
// All methods should be implemented with appropriate transaction handling;
// upserts are keyed by primary key and are last-writer-wins.
type Database interface {
	// Entity operations

	// UpsertEntity creates or overwrites an entity by UUID.
	UpsertEntity(entity *model.Entity) error

	// FindEntityByUUID returns an entity, or nil if it does not exist.
	FindEntityByUUID(uuid string) (*model.Entity, error)

	// FindRootEntities returns all entities without a parent, ordered by name.
	FindRootEntities() ([]*model.Entity, error)

	// FindChildEntities returns the children of an entity, ordered by name.
	FindChildEntities(parentUUID string) ([]*model.Entity, error)

	// DeleteEntity removes an entity. The deletion cascades to the whole
	// subtree and to all quantities and data files owned transitively.
	DeleteEntity(uuid string) error

	// CountEntities returns the total number of entities.
	CountEntities() (int, error)

	// FormatSpecification operations

	// UpsertFormatSpecification creates or overwrites a format specification by UUID.
	UpsertFormatSpecification(spec *model.FormatSpecification) error

	// FindFormatSpecificationByUUID returns a format specification, or nil if missing.
	FindFormatSpecificationByUUID(uuid string) (*model.FormatSpecification, error)

	// FindFormatSpecificationByDocumentRef returns a format specification by its
	// human document reference, or nil if missing.
	FindFormatSpecificationByDocumentRef(ref string) (*model.FormatSpecification, error)

	// ListFormatSpecifications returns all format specifications ordered by document_ref.
	ListFormatSpecifications() ([]*model.FormatSpecification, error)

	// DeleteFormatSpecification removes a format specification.
	// The deletion cascades to dependent quantities.
	DeleteFormatSpecification(uuid string) error

	// Quantity operations

	// UpsertQuantity creates or overwrites a quantity by UUID.
	UpsertQuantity(quantity *model.Quantity) error

	// FindQuantityByUUID returns a quantity, or nil if it does not exist.
	FindQuantityByUUID(uuid string) (*model.Quantity, error)

	// ListQuantities returns all quantities ordered by name then UUID.
	ListQuantities() ([]*model.Quantity, error)

	// FindQuantitiesByEntity returns the quantities owned by an entity,
	// ordered by name then UUID.
	FindQuantitiesByEntity(entityUUID string) ([]*model.Quantity, error)

	// DeleteQuantity removes a quantity. The deletion cascades to its data files.
	DeleteQuantity(uuid string) error

	// DataFile operations

	// UpsertDataFile creates or overwrites a data file by UUID.
	UpsertDataFile(file *model.DataFile) error

	// FindDataFileByUUID returns a data file, or nil if it does not exist.
	FindDataFileByUUID(uuid string) (*model.DataFile, error)

	// ListDataFiles returns all data files, newest first.
	ListDataFiles() ([]*model.DataFile, error)

	// FindDataFilesByQuantity returns the data files of a quantity, newest first.
	FindDataFilesByQuantity(quantityUUID string) ([]*model.DataFile, error)

	// AddDataFileDependency records a directed dependency edge between two
	// data files. Adding the same edge twice is a no-op.
	AddDataFileDependency(fileUUID, dependencyUUID string) error

	// FindDataFileDependencies returns the UUIDs of the data files the given
	// file depends on, in insertion order.
	FindDataFileDependencies(fileUUID string) ([]string, error)

	// DeleteDataFile removes a data file. Fails if another data file still
	// references it as a dependency.
	DeleteDataFile(uuid string) error

	// Release operations

	// UpsertRelease creates or overwrites a release by tag.
	UpsertRelease(release *model.Release) error

	// FindReleaseByTag returns a release, or nil if it does not exist.
	FindReleaseByTag(tag string) (*model.Release, error)

	// ListReleases returns all releases ordered by tag.
	ListReleases() ([]*model.Release, error)

	// AddDataFileToRelease records release membership for a data file.
	// Adding the same membership twice is a no-op.
	AddDataFileToRelease(tag, fileUUID string) error

	// FindReleaseDataFiles returns the member data files of a release, newest first.
	FindReleaseDataFiles(tag string) ([]*model.DataFile, error)

	// SetReleaseJSONFile records the attachment key of the cached JSON dump
	// for a release. An empty key clears it.
	SetReleaseJSONFile(tag, key string) error

	// DeleteRelease removes a release. Member data files are left in place.
	DeleteRelease(tag string) error

	// CheckMigrations verifies the database schema is up-to-date.
	CheckMigrations() error

	// Close closes the database connection.
	Close() error
}
