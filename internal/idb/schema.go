package idb

import "gopkg.in/yaml.v3"

// Quoted is a string that must be rendered in double-quoted scalar style
// when serialized as YAML. Plain YAML dumping of unquoted strings is
// explicitly avoided: an ambiguous scalar such as a release tag that looks
// like a number or boolean must round-trip as a string without a schema.
// JSON output is unaffected since JSON always quotes strings.
type Quoted string

// MarshalYAML forces double-quoted scalar style.
func (q Quoted) MarshalYAML() (interface{}, error) {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.DoubleQuotedStyle,
		Tag:   "!!str",
		Value: string(q),
	}, nil
}

// SchemaMeta identifies the tool that produced a schema document.
type SchemaMeta struct {
	GitSHA     Quoted `json:"git_sha" yaml:"git_sha"`
	Version    Quoted `json:"version" yaml:"version"`
	DumpDate   Quoted `json:"dump_date" yaml:"dump_date"`
	Repository Quoted `json:"repository" yaml:"repository"`
}

// EntityNode is one node of the exported entity tree. The children key is
// present only when the entity has children, which keeps the output terse.
// Quantities may be nested inline in hand-authored documents; export always
// emits them in the top-level quantities section instead.
type EntityNode struct {
	UUID       Quoted          `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Name       Quoted          `json:"name" yaml:"name"`
	Children   []EntityNode    `json:"children,omitempty" yaml:"children,omitempty"`
	Quantities []QuantityEntry `json:"quantities,omitempty" yaml:"quantities,omitempty"`
}

// FormatSpecEntry is the serialized form of a format specification.
// FilePath is the original tool's spelling of FileName and is accepted on
// import only.
type FormatSpecEntry struct {
	UUID         Quoted `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	DocumentRef  Quoted `json:"document_ref" yaml:"document_ref"`
	Title        Quoted `json:"title" yaml:"title"`
	DocFileName  Quoted `json:"doc_file_name,omitempty" yaml:"doc_file_name,omitempty"`
	FileMimeType Quoted `json:"file_mime_type" yaml:"file_mime_type"`
	DocMimeType  Quoted `json:"doc_mime_type" yaml:"doc_mime_type"`
	FileName     Quoted `json:"file_name,omitempty" yaml:"file_name,omitempty"`
	FilePath     Quoted `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}

// QuantityEntry is the serialized form of a quantity. Entity may be empty
// when the quantity is nested inline under its entity. Data files may be
// nested inline in hand-authored documents.
type QuantityEntry struct {
	UUID       Quoted          `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Name       Quoted          `json:"name" yaml:"name"`
	FormatSpec Quoted          `json:"format_spec,omitempty" yaml:"format_spec,omitempty"`
	Entity     Quoted          `json:"entity,omitempty" yaml:"entity,omitempty"`
	DataFiles  []DataFileEntry `json:"data_files,omitempty" yaml:"data_files,omitempty"`
}

// DataFileEntry is the serialized form of a data file. Metadata is the
// parsed JSON value, not the raw string stored at rest.
type DataFileEntry struct {
	UUID         Quoted   `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Name         Quoted   `json:"name" yaml:"name"`
	UploadDate   Quoted   `json:"upload_date" yaml:"upload_date"`
	Metadata     any      `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Quantity     Quoted   `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	SpecVersion  Quoted   `json:"spec_version" yaml:"spec_version"`
	FileName     Quoted   `json:"file_name,omitempty" yaml:"file_name,omitempty"`
	PlotFile     Quoted   `json:"plot_file,omitempty" yaml:"plot_file,omitempty"`
	PlotMimeType Quoted   `json:"plot_mime_type,omitempty" yaml:"plot_mime_type,omitempty"`
	Dependencies []Quoted `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// ReleaseEntry is the serialized form of a release. ReleaseDocument is the
// original tool's spelling of ReleaseDocumentFileName and is accepted on
// import only.
type ReleaseEntry struct {
	Tag                     Quoted   `json:"tag" yaml:"tag"`
	ReleaseDate             Quoted   `json:"release_date" yaml:"release_date"`
	Comment                 Quoted   `json:"comment" yaml:"comment"`
	DataFiles               []Quoted `json:"data_files" yaml:"data_files"`
	ReleaseDocumentMimeType Quoted   `json:"release_document_mime_type,omitempty" yaml:"release_document_mime_type,omitempty"`
	ReleaseDocumentFileName Quoted   `json:"release_document_file_name,omitempty" yaml:"release_document_file_name,omitempty"`
	ReleaseDocument         Quoted   `json:"release_document,omitempty" yaml:"release_document,omitempty"`
}

// SchemaDocument is the portable serialized form of the whole catalog.
// Section order is significant for readability only.
type SchemaDocument struct {
	Meta                 SchemaMeta        `json:"meta" yaml:"meta"`
	Entities             []EntityNode      `json:"entities" yaml:"entities"`
	FormatSpecifications []FormatSpecEntry `json:"format_specifications,omitempty" yaml:"format_specifications,omitempty"`
	Quantities           []QuantityEntry   `json:"quantities,omitempty" yaml:"quantities,omitempty"`
	DataFiles            []DataFileEntry   `json:"data_files,omitempty" yaml:"data_files,omitempty"`
	Releases             []ReleaseEntry    `json:"releases,omitempty" yaml:"releases,omitempty"`
}
