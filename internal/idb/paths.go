package idb

import "idb-go/internal/model"

// Attachment keys follow fixed conventions so that exported trees and the
// attachment store use the same relative layout and documents produced by
// export are importable unmodified.

// FormatSpecKey returns the attachment key for a specification document.
func FormatSpecKey(spec *model.FormatSpecification) string {
	name := ""
	if spec.DocFileName != nil {
		name = *spec.DocFileName
	}
	if name == "" {
		name = DocExtension(spec.DocMimeType)
	}
	return "format_spec/" + spec.UUID + "_" + name
}

// DataFileKey returns the attachment key for a data file payload.
func DataFileKey(file *model.DataFile) string {
	return "data_files/" + file.UUID + "_" + file.Name
}

// PlotFileKey returns the attachment key for a data file's plot image.
// The extension is derived from the plot MIME type.
func PlotFileKey(file *model.DataFile) string {
	ext := ""
	if file.PlotMimeType != nil {
		ext = ImageExtension(*file.PlotMimeType)
	}
	return "plot_files/" + file.UUID + "_" + file.Name + ext
}

// ReleaseDocumentKey returns the attachment key for a release document.
func ReleaseDocumentKey(release *model.Release) string {
	ext := ""
	if release.ReleaseDocumentMimeType != nil {
		ext = DocExtension(*release.ReleaseDocumentMimeType)
	}
	return "release_documents/" + release.Tag + ext
}

// ReleaseJSONKey returns the attachment key for the cached JSON dump of a release.
func ReleaseJSONKey(tag string) string {
	return "schema_" + tag + ".json"
}
