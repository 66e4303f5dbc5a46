package database

import (
	"database/sql"
	"errors"
	"fmt"

	"idb-go/internal/database/migrations"
	"idb-go/internal/idb"
	"idb-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteDatabase{
		db:   db,
		path: path,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{
		db:   db,
		path: "",
	}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Entity operations

const entityColumns = "uuid, name, parent_uuid"

func (s *SQLiteDatabase) UpsertEntity(entity *model.Entity) error {
	_, err := s.db.Exec(`
		INSERT INTO entities (uuid, name, parent_uuid) VALUES (?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET name = excluded.name, parent_uuid = excluded.parent_uuid`,
		entity.UUID, entity.Name, nullString(entity.ParentUUID))
	if err != nil {
		return fmt.Errorf("upserting entity: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindEntityByUUID(uuid string) (*model.Entity, error) {
	row := s.db.QueryRow("SELECT "+entityColumns+" FROM entities WHERE uuid = ?", uuid)
	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding entity: %w", err)
	}
	return entity, nil
}

func (s *SQLiteDatabase) FindRootEntities() ([]*model.Entity, error) {
	rows, err := s.db.Query("SELECT " + entityColumns + " FROM entities WHERE parent_uuid IS NULL ORDER BY name, uuid")
	if err != nil {
		return nil, fmt.Errorf("finding root entities: %w", err)
	}
	return collectEntities(rows)
}

func (s *SQLiteDatabase) FindChildEntities(parentUUID string) ([]*model.Entity, error) {
	rows, err := s.db.Query("SELECT "+entityColumns+" FROM entities WHERE parent_uuid = ? ORDER BY name, uuid", parentUUID)
	if err != nil {
		return nil, fmt.Errorf("finding child entities: %w", err)
	}
	return collectEntities(rows)
}

func (s *SQLiteDatabase) DeleteEntity(uuid string) error {
	if _, err := s.db.Exec("DELETE FROM entities WHERE uuid = ?", uuid); err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) CountEntities() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM entities").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting entities: %w", err)
	}
	return count, nil
}

// FormatSpecification operations

const specColumns = "uuid, document_ref, title, doc_file, doc_file_name, doc_mime_type, file_mime_type"

func (s *SQLiteDatabase) UpsertFormatSpecification(spec *model.FormatSpecification) error {
	_, err := s.db.Exec(`
		INSERT INTO format_specifications
			(uuid, document_ref, title, doc_file, doc_file_name, doc_mime_type, file_mime_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			document_ref = excluded.document_ref,
			title = excluded.title,
			doc_file = excluded.doc_file,
			doc_file_name = excluded.doc_file_name,
			doc_mime_type = excluded.doc_mime_type,
			file_mime_type = excluded.file_mime_type`,
		spec.UUID, spec.DocumentRef, spec.Title,
		nullString(spec.DocFile), nullString(spec.DocFileName),
		spec.DocMimeType, spec.FileMimeType)
	if err != nil {
		return fmt.Errorf("upserting format specification: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindFormatSpecificationByUUID(uuid string) (*model.FormatSpecification, error) {
	row := s.db.QueryRow("SELECT "+specColumns+" FROM format_specifications WHERE uuid = ?", uuid)
	spec, err := scanFormatSpecification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding format specification: %w", err)
	}
	return spec, nil
}

func (s *SQLiteDatabase) FindFormatSpecificationByDocumentRef(ref string) (*model.FormatSpecification, error) {
	row := s.db.QueryRow("SELECT "+specColumns+" FROM format_specifications WHERE document_ref = ?", ref)
	spec, err := scanFormatSpecification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding format specification by document_ref: %w", err)
	}
	return spec, nil
}

func (s *SQLiteDatabase) ListFormatSpecifications() ([]*model.FormatSpecification, error) {
	rows, err := s.db.Query("SELECT " + specColumns + " FROM format_specifications ORDER BY document_ref")
	if err != nil {
		return nil, fmt.Errorf("listing format specifications: %w", err)
	}
	defer rows.Close()

	var result []*model.FormatSpecification
	for rows.Next() {
		spec, err := scanFormatSpecification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning format specification: %w", err)
		}
		result = append(result, spec)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) DeleteFormatSpecification(uuid string) error {
	if _, err := s.db.Exec("DELETE FROM format_specifications WHERE uuid = ?", uuid); err != nil {
		return fmt.Errorf("deleting format specification: %w", err)
	}
	return nil
}

// Quantity operations

const quantityColumns = "uuid, name, format_spec_uuid, parent_entity_uuid"

func (s *SQLiteDatabase) UpsertQuantity(quantity *model.Quantity) error {
	_, err := s.db.Exec(`
		INSERT INTO quantities (uuid, name, format_spec_uuid, parent_entity_uuid)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			name = excluded.name,
			format_spec_uuid = excluded.format_spec_uuid,
			parent_entity_uuid = excluded.parent_entity_uuid`,
		quantity.UUID, quantity.Name, nullString(quantity.FormatSpecUUID), quantity.ParentEntityUUID)
	if err != nil {
		return fmt.Errorf("upserting quantity: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindQuantityByUUID(uuid string) (*model.Quantity, error) {
	row := s.db.QueryRow("SELECT "+quantityColumns+" FROM quantities WHERE uuid = ?", uuid)
	quantity, err := scanQuantity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding quantity: %w", err)
	}
	return quantity, nil
}

func (s *SQLiteDatabase) ListQuantities() ([]*model.Quantity, error) {
	rows, err := s.db.Query("SELECT " + quantityColumns + " FROM quantities ORDER BY name, uuid")
	if err != nil {
		return nil, fmt.Errorf("listing quantities: %w", err)
	}
	return collectQuantities(rows)
}

func (s *SQLiteDatabase) FindQuantitiesByEntity(entityUUID string) ([]*model.Quantity, error) {
	rows, err := s.db.Query("SELECT "+quantityColumns+" FROM quantities WHERE parent_entity_uuid = ? ORDER BY name, uuid", entityUUID)
	if err != nil {
		return nil, fmt.Errorf("finding quantities by entity: %w", err)
	}
	return collectQuantities(rows)
}

func (s *SQLiteDatabase) DeleteQuantity(uuid string) error {
	if _, err := s.db.Exec("DELETE FROM quantities WHERE uuid = ?", uuid); err != nil {
		return fmt.Errorf("deleting quantity: %w", err)
	}
	return nil
}

// DataFile operations

const dataFileColumns = "uuid, name, upload_date, metadata, file_data, quantity_uuid, spec_version, plot_file, plot_mime_type, comment"

func (s *SQLiteDatabase) UpsertDataFile(file *model.DataFile) error {
	_, err := s.db.Exec(`
		INSERT INTO data_files
			(uuid, name, upload_date, metadata, file_data, quantity_uuid, spec_version, plot_file, plot_mime_type, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			name = excluded.name,
			upload_date = excluded.upload_date,
			metadata = excluded.metadata,
			file_data = excluded.file_data,
			quantity_uuid = excluded.quantity_uuid,
			spec_version = excluded.spec_version,
			plot_file = excluded.plot_file,
			plot_mime_type = excluded.plot_mime_type,
			comment = excluded.comment`,
		file.UUID, file.Name, file.UploadDate, file.Metadata,
		nullString(file.FileData), file.QuantityUUID, file.SpecVersion,
		nullString(file.PlotFile), nullString(file.PlotMimeType), file.Comment)
	if err != nil {
		return fmt.Errorf("upserting data file: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindDataFileByUUID(uuid string) (*model.DataFile, error) {
	row := s.db.QueryRow("SELECT "+dataFileColumns+" FROM data_files WHERE uuid = ?", uuid)
	file, err := scanDataFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding data file: %w", err)
	}
	return file, nil
}

func (s *SQLiteDatabase) ListDataFiles() ([]*model.DataFile, error) {
	rows, err := s.db.Query("SELECT " + dataFileColumns + " FROM data_files ORDER BY upload_date DESC, uuid")
	if err != nil {
		return nil, fmt.Errorf("listing data files: %w", err)
	}
	return collectDataFiles(rows)
}

func (s *SQLiteDatabase) FindDataFilesByQuantity(quantityUUID string) ([]*model.DataFile, error) {
	rows, err := s.db.Query("SELECT "+dataFileColumns+" FROM data_files WHERE quantity_uuid = ? ORDER BY upload_date DESC, uuid", quantityUUID)
	if err != nil {
		return nil, fmt.Errorf("finding data files by quantity: %w", err)
	}
	return collectDataFiles(rows)
}

func (s *SQLiteDatabase) AddDataFileDependency(fileUUID, dependencyUUID string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO data_file_dependencies (file_uuid, dependency_uuid) VALUES (?, ?)`,
		fileUUID, dependencyUUID)
	if err != nil {
		return fmt.Errorf("adding data file dependency: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindDataFileDependencies(fileUUID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT dependency_uuid FROM data_file_dependencies WHERE file_uuid = ? ORDER BY rowid`,
		fileUUID)
	if err != nil {
		return nil, fmt.Errorf("finding data file dependencies: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, fmt.Errorf("scanning dependency: %w", err)
		}
		result = append(result, dep)
	}
	return result, rows.Err()
}

// DeleteDataFile removes a data file. The dependency table keeps a plain
// foreign key on the target side, so the delete fails while another data
// file still depends on this one.
func (s *SQLiteDatabase) DeleteDataFile(uuid string) error {
	if _, err := s.db.Exec("DELETE FROM data_files WHERE uuid = ?", uuid); err != nil {
		return fmt.Errorf("deleting data file: %w", err)
	}
	return nil
}

// Release operations

const releaseColumns = "tag, rel_date, comment, release_document, release_document_mime_type, json_file"

func (s *SQLiteDatabase) UpsertRelease(release *model.Release) error {
	_, err := s.db.Exec(`
		INSERT INTO releases
			(tag, rel_date, comment, release_document, release_document_mime_type, json_file)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tag) DO UPDATE SET
			rel_date = excluded.rel_date,
			comment = excluded.comment,
			release_document = excluded.release_document,
			release_document_mime_type = excluded.release_document_mime_type,
			json_file = excluded.json_file`,
		release.Tag, release.RelDate, release.Comment,
		nullString(release.ReleaseDocument), nullString(release.ReleaseDocumentMimeType),
		nullString(release.JSONFile))
	if err != nil {
		return fmt.Errorf("upserting release: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindReleaseByTag(tag string) (*model.Release, error) {
	row := s.db.QueryRow("SELECT "+releaseColumns+" FROM releases WHERE tag = ?", tag)
	release, err := scanRelease(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding release: %w", err)
	}
	return release, nil
}

func (s *SQLiteDatabase) ListReleases() ([]*model.Release, error) {
	rows, err := s.db.Query("SELECT " + releaseColumns + " FROM releases ORDER BY tag")
	if err != nil {
		return nil, fmt.Errorf("listing releases: %w", err)
	}
	defer rows.Close()

	var result []*model.Release
	for rows.Next() {
		release, err := scanRelease(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning release: %w", err)
		}
		result = append(result, release)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) AddDataFileToRelease(tag, fileUUID string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO release_data_files (release_tag, data_file_uuid) VALUES (?, ?)`,
		tag, fileUUID)
	if err != nil {
		return fmt.Errorf("adding data file to release: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindReleaseDataFiles(tag string) ([]*model.DataFile, error) {
	rows, err := s.db.Query(`
		SELECT df.uuid, df.name, df.upload_date, df.metadata, df.file_data, df.quantity_uuid,
		       df.spec_version, df.plot_file, df.plot_mime_type, df.comment
		FROM data_files df
		JOIN release_data_files rdf ON rdf.data_file_uuid = df.uuid
		WHERE rdf.release_tag = ?
		ORDER BY df.upload_date DESC, df.uuid`,
		tag)
	if err != nil {
		return nil, fmt.Errorf("finding release data files: %w", err)
	}
	return collectDataFiles(rows)
}

func (s *SQLiteDatabase) SetReleaseJSONFile(tag, key string) error {
	var value sql.NullString
	if key != "" {
		value = sql.NullString{String: key, Valid: true}
	}
	if _, err := s.db.Exec("UPDATE releases SET json_file = ? WHERE tag = ?", value, tag); err != nil {
		return fmt.Errorf("setting release json file: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteRelease(tag string) error {
	if _, err := s.db.Exec("DELETE FROM releases WHERE tag = ?", tag); err != nil {
		return fmt.Errorf("deleting release: %w", err)
	}
	return nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp runs all pending migrations.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Row scanning

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*model.Entity, error) {
	var entity model.Entity
	var parent sql.NullString
	if err := row.Scan(&entity.UUID, &entity.Name, &parent); err != nil {
		return nil, err
	}
	entity.ParentUUID = stringPtr(parent)
	return &entity, nil
}

func scanFormatSpecification(row scanner) (*model.FormatSpecification, error) {
	var spec model.FormatSpecification
	var docFile, docFileName sql.NullString
	if err := row.Scan(&spec.UUID, &spec.DocumentRef, &spec.Title,
		&docFile, &docFileName, &spec.DocMimeType, &spec.FileMimeType); err != nil {
		return nil, err
	}
	spec.DocFile = stringPtr(docFile)
	spec.DocFileName = stringPtr(docFileName)
	return &spec, nil
}

func scanQuantity(row scanner) (*model.Quantity, error) {
	var quantity model.Quantity
	var formatSpec sql.NullString
	if err := row.Scan(&quantity.UUID, &quantity.Name, &formatSpec, &quantity.ParentEntityUUID); err != nil {
		return nil, err
	}
	quantity.FormatSpecUUID = stringPtr(formatSpec)
	return &quantity, nil
}

func scanDataFile(row scanner) (*model.DataFile, error) {
	var file model.DataFile
	var fileData, plotFile, plotMime sql.NullString
	if err := row.Scan(&file.UUID, &file.Name, &file.UploadDate, &file.Metadata,
		&fileData, &file.QuantityUUID, &file.SpecVersion,
		&plotFile, &plotMime, &file.Comment); err != nil {
		return nil, err
	}
	file.FileData = stringPtr(fileData)
	file.PlotFile = stringPtr(plotFile)
	file.PlotMimeType = stringPtr(plotMime)
	return &file, nil
}

func scanRelease(row scanner) (*model.Release, error) {
	var release model.Release
	var doc, docMime, jsonFile sql.NullString
	if err := row.Scan(&release.Tag, &release.RelDate, &release.Comment,
		&doc, &docMime, &jsonFile); err != nil {
		return nil, err
	}
	release.ReleaseDocument = stringPtr(doc)
	release.ReleaseDocumentMimeType = stringPtr(docMime)
	release.JSONFile = stringPtr(jsonFile)
	return &release, nil
}

func collectEntities(rows *sql.Rows) ([]*model.Entity, error) {
	defer rows.Close()
	var result []*model.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		result = append(result, entity)
	}
	return result, rows.Err()
}

func collectQuantities(rows *sql.Rows) ([]*model.Quantity, error) {
	defer rows.Close()
	var result []*model.Quantity
	for rows.Next() {
		quantity, err := scanQuantity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning quantity: %w", err)
		}
		result = append(result, quantity)
	}
	return result, rows.Err()
}

func collectDataFiles(rows *sql.Rows) ([]*model.DataFile, error) {
	defer rows.Close()
	var result []*model.DataFile
	for rows.Next() {
		file, err := scanDataFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning data file: %w", err)
		}
		result = append(result, file)
	}
	return result, rows.Err()
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Compile-time check that SQLiteDatabase implements the Database interface
var _ idb.Database = (*SQLiteDatabase)(nil)
