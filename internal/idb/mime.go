package idb

import "strings"

// FileType associates a MIME type with its canonical file extension.
type FileType struct {
	MimeType      string
	FileExtension string
	Description   string
}

// DocumentFileTypes lists the supported document types for specification and
// release documents. The most useful come first, then alphabetic order.
var DocumentFileTypes = []FileType{
	{MimeType: "text/plain", FileExtension: "txt", Description: "Plain text"},
	{MimeType: "text/html", FileExtension: "html", Description: "HTML"},
	{MimeType: "application/pdf", FileExtension: "pdf", Description: "Adobe PDF"},
	{MimeType: "text/rtf", FileExtension: "rtf", Description: "Rich-Text Format (.rtf)"},
	{MimeType: "text/markdown", FileExtension: "md", Description: "Markdown"},
	{MimeType: "application/msword", FileExtension: "doc", Description: "Microsoft Word (.doc)"},
	{MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", FileExtension: "docx", Description: "Microsoft Word (.docx)"},
	{MimeType: "application/epub+zip", FileExtension: "epub", Description: "Electronic publication (EPUB)"},
	{MimeType: "application/vnd.oasis.opendocument.text", FileExtension: "odt", Description: "OpenDocument text document (.odt)"},
	{MimeType: "application/vnd.oasis.opendocument.presentation", FileExtension: "odp", Description: "OpenDocument presentation document (.odp)"},
	{MimeType: "application/vnd.oasis.opendocument.spreadsheet", FileExtension: "ods", Description: "OpenDocument spreadsheet document (.ods)"},
	{MimeType: "application/vnd.ms-powerpoint", FileExtension: "ppt", Description: "Microsoft PowerPoint (.ppt)"},
	{MimeType: "application/vnd.openxmlformats-officedocument.presentationml.presentation", FileExtension: "pptx", Description: "Microsoft PowerPoint (.pptx)"},
	{MimeType: "application/vnd.ms-excel", FileExtension: "xls", Description: "Microsoft Excel (.xls)"},
	{MimeType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", FileExtension: "xlsx", Description: "Microsoft Excel (.xlsx)"},
	{MimeType: "application/octet-stream", FileExtension: "bin", Description: "Other (unknown)"},
}

// ImageFileTypes lists the supported image types for plots attached to data files.
var ImageFileTypes = []FileType{
	{MimeType: "image/png", FileExtension: "png", Description: "PNG image"},
	{MimeType: "image/jpeg", FileExtension: "jpg", Description: "Jpeg image"},
	{MimeType: "image/svg+xml", FileExtension: "svg", Description: "SVG image"},
	{MimeType: "image/apng", FileExtension: "apng", Description: "Animated PNG"},
	{MimeType: "image/bmp", FileExtension: "bmp", Description: "Windows bitmap image"},
	{MimeType: "image/gif", FileExtension: "gif", Description: "GIF image"},
	{MimeType: "image/x-icon", FileExtension: "ico", Description: "ICO image"},
	{MimeType: "image/tiff", FileExtension: "tif", Description: "TIFF image"},
	{MimeType: "image/webp", FileExtension: "webp", Description: "WebP image"},
	{MimeType: "application/octet-stream", FileExtension: "bin", Description: "Other (unknown)"},
}

var (
	mimeToDocExtension   = map[string]string{}
	mimeToImageExtension = map[string]string{}
)

func init() {
	for _, t := range DocumentFileTypes {
		mimeToDocExtension[t.MimeType] = t.FileExtension
	}
	for _, t := range ImageFileTypes {
		mimeToImageExtension[t.MimeType] = t.FileExtension
	}
}

// baseMimeType strips parameters like "; charset=UTF-8" from a MIME type.
func baseMimeType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.TrimSpace(base)
}

// DocExtension returns the dotted extension for a document MIME type,
// or "" if the type is unknown.
func DocExtension(mimeType string) string {
	if ext, ok := mimeToDocExtension[baseMimeType(mimeType)]; ok && ext != "" {
		return "." + ext
	}
	return ""
}

// ImageExtension returns the dotted extension for an image MIME type,
// or "" if the type is unknown.
func ImageExtension(mimeType string) string {
	if ext, ok := mimeToImageExtension[baseMimeType(mimeType)]; ok && ext != "" {
		return "." + ext
	}
	return ""
}
