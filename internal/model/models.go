package model

import "time"

// Entity is a feature of the instrument that is modelled in the catalog.
// Entities form a forest: each entity has at most one parent, and several
// roots may coexist. Examples: a telescope, a cryostat, a focal plane, a
// beam, where a focal plane is the parent of several beams.
type Entity struct {
	UUID       string  // UUID, primary key
	Name       string  // Safe identifier, used as a path segment
	ParentUUID *string // Foreign key to parent Entity, nil for roots
}

// FormatSpecification describes the mathematical model, units and file
// format used by the data files of a quantity. The specification document
// itself can be stored as an attachment.
type FormatSpecification struct {
	UUID         string  // UUID, primary key
	DocumentRef  string  // Human document reference, unique lookup key
	Title        string  // Title of the specification document
	DocFile      *string // Attachment key of the stored document, nil if none
	DocFileName  *string // Original file name of the document, nil if none
	DocMimeType  string  // MIME type of the document attachment
	FileMimeType string  // Required MIME type of conforming data files
}

// Quantity is a named measurable attached to exactly one Entity and
// constrained to one FormatSpecification.
type Quantity struct {
	UUID             string  // UUID, primary key
	Name             string  // Safe identifier
	FormatSpecUUID   *string // Foreign key to FormatSpecification, may be nil
	ParentEntityUUID string  // Foreign key to the owning Entity
}

// DataFile is one versioned instance of a quantity's value.
// Metadata always holds syntactically valid JSON text.
type DataFile struct {
	UUID         string    // UUID, primary key
	Name         string    // File name
	UploadDate   time.Time // When the file was added, timezone-aware
	Metadata     string    // JSON-formatted metadata
	FileData     *string   // Attachment key of the payload, nil if none
	QuantityUUID string    // Foreign key to the owning Quantity
	SpecVersion  string    // Version label of the format specification
	PlotFile     *string   // Attachment key of the plot image, nil if none
	PlotMimeType *string   // MIME type of the plot image, nil if none
	Comment      string    // Free-form notes
}

// Release is an immutable named snapshot: a tag plus a set of member
// data files. JSONFile points to the cached schema dump for the release.
type Release struct {
	Tag                     string    // Version tag, primary key
	RelDate                 time.Time // Release date
	Comment                 string    // Free-form text
	ReleaseDocument         *string   // Attachment key of the release document
	ReleaseDocumentMimeType *string   // MIME type of the release document
	JSONFile                *string   // Attachment key of the cached JSON dump
}
