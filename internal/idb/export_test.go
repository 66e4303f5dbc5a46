package idb_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"idb-go/internal/idb"
	"idb-go/internal/model"
	"idb-go/internal/testutil"
)

func readSchemaJSON(t *testing.T, path string) *idb.SchemaDocument {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading schema: %v", err)
	}
	var doc idb.SchemaDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parsing schema: %v", err)
	}
	return &doc
}

func readExported(t *testing.T, outDir, relPath string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(outDir, filepath.FromSlash(relPath)))
	if err != nil {
		t.Fatalf("reading exported attachment %s: %v", relPath, err)
	}
	return string(raw)
}

func TestService_Export(t *testing.T) {
	f := buildCatalog(t)
	outDir := filepath.Join(t.TempDir(), "out")

	schemaPath, err := f.svc.Export(idb.ExportConfig{OutputDir: outDir}, "")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if schemaPath != filepath.Join(outDir, "schema.json") {
		t.Errorf("Export() = %q, want schema.json in output dir", schemaPath)
	}
	doc := readSchemaJSON(t, schemaPath)

	t.Run("meta", func(t *testing.T) {
		if doc.Meta.Version != "1.0.0" {
			t.Errorf("meta.version = %q", doc.Meta.Version)
		}
		if doc.Meta.Repository != "idb-go" {
			t.Errorf("meta.repository = %q", doc.Meta.Repository)
		}
		if doc.Meta.DumpDate != "2025-06-01T12:00:00Z" {
			t.Errorf("meta.dump_date = %q", doc.Meta.DumpDate)
		}
	})

	t.Run("entity tree", func(t *testing.T) {
		if len(doc.Entities) != 1 {
			t.Fatalf("entities = %d, want 1 root", len(doc.Entities))
		}
		root := doc.Entities[0]
		if root.Name != "telescope" || string(root.UUID) != f.root.UUID {
			t.Errorf("root = %+v", root)
		}
		if len(root.Children) != 1 || root.Children[0].Name != "focal_plane" {
			t.Errorf("children = %+v", root.Children)
		}
	})

	t.Run("format specifications", func(t *testing.T) {
		if len(doc.FormatSpecifications) != 1 {
			t.Fatalf("format_specifications = %d, want 1", len(doc.FormatSpecifications))
		}
		entry := doc.FormatSpecifications[0]
		if entry.DocumentRef != "SP-001" {
			t.Errorf("document_ref = %q", entry.DocumentRef)
		}
		want := "format_spec/" + f.spec.UUID + "_bandpass_format.pdf"
		if string(entry.FileName) != want {
			t.Errorf("file_name = %q, want %q", entry.FileName, want)
		}
		if got := readExported(t, outDir, want); got != specDocBytes {
			t.Errorf("exported document = %q", got)
		}
	})

	t.Run("quantities", func(t *testing.T) {
		if len(doc.Quantities) != 1 {
			t.Fatalf("quantities = %d, want 1", len(doc.Quantities))
		}
		entry := doc.Quantities[0]
		if string(entry.Entity) != f.child.UUID {
			t.Errorf("entity = %q, want %q", entry.Entity, f.child.UUID)
		}
		if string(entry.FormatSpec) != f.spec.UUID {
			t.Errorf("format_spec = %q, want %q", entry.FormatSpec, f.spec.UUID)
		}
	})

	t.Run("data files", func(t *testing.T) {
		if len(doc.DataFiles) != 2 {
			t.Fatalf("data_files = %d, want 2", len(doc.DataFiles))
		}
		var a, b *idb.DataFileEntry
		for i := range doc.DataFiles {
			switch string(doc.DataFiles[i].UUID) {
			case f.fileA.UUID:
				a = &doc.DataFiles[i]
			case f.fileB.UUID:
				b = &doc.DataFiles[i]
			}
		}
		if a == nil || b == nil {
			t.Fatalf("data files not found in document: %+v", doc.DataFiles)
		}

		if got := readExported(t, outDir, string(a.FileName)); got != fileABytes {
			t.Errorf("exported payload = %q", got)
		}
		meta, ok := a.Metadata.(map[string]any)
		if !ok || meta["temperature_k"] != float64(20) {
			t.Errorf("metadata = %#v", a.Metadata)
		}
		if a.UploadDate != "2025-06-01T12:00:00Z" {
			t.Errorf("upload_date = %q", a.UploadDate)
		}

		if len(b.Dependencies) != 1 || string(b.Dependencies[0]) != f.fileA.UUID {
			t.Errorf("dependencies = %v, want [%s]", b.Dependencies, f.fileA.UUID)
		}
		if b.PlotFile == "" {
			t.Fatal("plot_file not set")
		}
		if got := readExported(t, outDir, string(b.PlotFile)); got != plotBytes {
			t.Errorf("exported plot = %q", got)
		}
		if b.PlotMimeType != "image/png" {
			t.Errorf("plot_mime_type = %q", b.PlotMimeType)
		}
	})

	t.Run("releases", func(t *testing.T) {
		if len(doc.Releases) != 1 {
			t.Fatalf("releases = %d, want 1", len(doc.Releases))
		}
		entry := doc.Releases[0]
		if entry.Tag != "v1.0" {
			t.Errorf("tag = %q", entry.Tag)
		}
		if len(entry.DataFiles) != 1 || string(entry.DataFiles[0]) != f.fileA.UUID {
			t.Errorf("release members = %v, want [%s]", entry.DataFiles, f.fileA.UUID)
		}
		if entry.ReleaseDocumentFileName == "" {
			t.Fatal("release_document_file_name not set")
		}
		if got := readExported(t, outDir, string(entry.ReleaseDocumentFileName)); got != releaseDocText {
			t.Errorf("exported release document = %q", got)
		}
	})
}

func TestService_Export_OnlyTree(t *testing.T) {
	f := buildCatalog(t)
	outDir := filepath.Join(t.TempDir(), "out")

	schemaPath, err := f.svc.Export(idb.ExportConfig{OnlyTree: true, OutputDir: outDir}, "")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	doc := readSchemaJSON(t, schemaPath)

	if len(doc.Entities) != 1 {
		t.Errorf("entities = %d, want 1", len(doc.Entities))
	}
	if doc.FormatSpecifications != nil || doc.Quantities != nil || doc.DataFiles != nil || doc.Releases != nil {
		t.Error("only-tree export carries non-tree sections")
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "schema.json" {
		t.Errorf("output dir = %v, want only schema.json", entries)
	}
}

func TestService_Export_NoAttachments(t *testing.T) {
	f := buildCatalog(t)
	outDir := filepath.Join(t.TempDir(), "out")

	schemaPath, err := f.svc.Export(idb.ExportConfig{NoAttachments: true, OutputDir: outDir}, "")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	doc := readSchemaJSON(t, schemaPath)

	for _, entry := range doc.DataFiles {
		if entry.FileName != "" || entry.PlotFile != "" {
			t.Errorf("data file %s still references attachments: %+v", entry.UUID, entry)
		}
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("output dir = %v, want only the schema file", entries)
	}
}

func TestService_Export_ReleaseScope(t *testing.T) {
	f := buildCatalog(t)
	outDir := filepath.Join(t.TempDir(), "out")

	schemaPath, err := f.svc.Export(idb.ExportConfig{OutputDir: outDir}, "v1.0")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	doc := readSchemaJSON(t, schemaPath)

	if len(doc.DataFiles) != 1 || string(doc.DataFiles[0].UUID) != f.fileA.UUID {
		t.Errorf("data_files = %+v, want only the release member", doc.DataFiles)
	}
	if len(doc.Releases) != 1 || doc.Releases[0].Tag != "v1.0" {
		t.Errorf("releases = %+v", doc.Releases)
	}

	// The non-member's payload must not be copied.
	if _, err := os.Stat(filepath.Join(outDir, "data_files", f.fileB.UUID+"_bandpass_2024.csv")); !os.IsNotExist(err) {
		t.Error("non-member payload was exported")
	}
}

func TestService_Export_MissingRelease(t *testing.T) {
	f := buildCatalog(t)

	if _, err := f.svc.Export(idb.ExportConfig{OutputDir: filepath.Join(t.TempDir(), "out")}, "v9.9"); err == nil {
		t.Error("Export() of unknown release = nil, want error")
	}
}

func TestService_Export_SkipEmpty(t *testing.T) {
	svc, _, _ := testutil.NewTestService(t)

	// platform/mount is an empty chain; site/lab carries the only data file.
	platform, err := svc.AddEntity("platform", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddEntity("mount", &platform.UUID); err != nil {
		t.Fatal(err)
	}
	site, err := svc.AddEntity("site", nil)
	if err != nil {
		t.Fatal(err)
	}
	lab, err := svc.AddEntity("lab", &site.UUID)
	if err != nil {
		t.Fatal(err)
	}
	full, err := svc.AddQuantity("bandpass", lab.UUID, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddQuantity("polarization", lab.UUID, ""); err != nil {
		t.Fatal(err)
	}
	if err := svc.AddDataFile(&model.DataFile{Name: "bandpass.csv", QuantityUUID: full.UUID},
		strings.NewReader("data"), nil, nil); err != nil {
		t.Fatal(err)
	}

	outDir := filepath.Join(t.TempDir(), "out")
	schemaPath, err := svc.Export(idb.ExportConfig{
		SkipEmptyEntities:   true,
		SkipEmptyQuantities: true,
		OutputDir:           outDir,
	}, "")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	doc := readSchemaJSON(t, schemaPath)

	if len(doc.Entities) != 1 || doc.Entities[0].Name != "site" {
		t.Errorf("entities = %+v, want the site root only", doc.Entities)
	}
	if len(doc.Quantities) != 1 || doc.Quantities[0].Name != "bandpass" {
		t.Errorf("quantities = %+v, want bandpass only", doc.Quantities)
	}
}

func TestService_Export_OverwriteGuard(t *testing.T) {
	f := buildCatalog(t)
	outDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(outDir, "leftover.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Export(idb.ExportConfig{OutputDir: outDir}, ""); err == nil {
		t.Fatal("Export() into non-empty directory = nil, want error")
	}

	if _, err := f.svc.Export(idb.ExportConfig{Overwrite: true, OutputDir: outDir}, ""); err != nil {
		t.Errorf("Export() with overwrite error = %v", err)
	}
}

func TestService_Export_MissingAttachment(t *testing.T) {
	f := buildCatalog(t)

	// A data file claiming a payload the store lost must abort the export.
	if err := f.store.Delete(*f.fileA.FileData); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Export(idb.ExportConfig{OutputDir: filepath.Join(t.TempDir(), "out")}, ""); err == nil {
		t.Error("Export() with missing attachment = nil, want error")
	}
}

func TestService_Export_YAML(t *testing.T) {
	f := buildCatalog(t)
	outDir := filepath.Join(t.TempDir(), "out")

	schemaPath, err := f.svc.Export(idb.ExportConfig{Format: idb.FormatYAML, OutputDir: outDir}, "")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if filepath.Base(schemaPath) != "schema.yaml" {
		t.Errorf("schema file = %q, want schema.yaml", schemaPath)
	}

	raw, err := os.ReadFile(schemaPath)
	if err != nil {
		t.Fatal(err)
	}
	text := string(raw)

	// Every string scalar is double-quoted so tags and names that look like
	// numbers or booleans round-trip without a schema.
	for _, want := range []string{
		`version: "1.0.0"`,
		`name: "telescope"`,
		`tag: "v1.0"`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("YAML output missing %q", want)
		}
	}
}
