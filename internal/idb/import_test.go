package idb_test

import (
	"os"
	"path/filepath"
	"testing"

	"idb-go/internal/idb"
	"idb-go/internal/model"
	"idb-go/internal/testutil"
)

// exportCatalog builds the shared fixture and exports it, returning the
// fixture and the schema file path. Import tests feed that file into a
// second, empty service.
func exportCatalog(t *testing.T) (*fixture, string) {
	t.Helper()
	f := buildCatalog(t)
	outDir := filepath.Join(t.TempDir(), "dump")
	schemaPath, err := f.svc.Export(idb.ExportConfig{OutputDir: outDir}, "")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	return f, schemaPath
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestService_Import_RoundTrip(t *testing.T) {
	f, schemaPath := exportCatalog(t)

	svc, db, store := testutil.NewTestService(t)
	if err := svc.Import([]string{schemaPath}, idb.ImportOptions{}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	t.Run("records", func(t *testing.T) {
		count, err := db.CountEntities()
		if err != nil {
			t.Fatal(err)
		}
		if count != 2 {
			t.Errorf("CountEntities() = %d, want 2", count)
		}

		child, err := db.FindEntityByUUID(f.child.UUID)
		if err != nil {
			t.Fatal(err)
		}
		if child == nil || child.Name != "focal_plane" || child.ParentUUID == nil || *child.ParentUUID != f.root.UUID {
			t.Errorf("imported child = %+v", child)
		}

		quantity, err := db.FindQuantityByUUID(f.quantity.UUID)
		if err != nil {
			t.Fatal(err)
		}
		if quantity == nil || quantity.FormatSpecUUID == nil || *quantity.FormatSpecUUID != f.spec.UUID {
			t.Errorf("imported quantity = %+v", quantity)
		}

		file, err := db.FindDataFileByUUID(f.fileA.UUID)
		if err != nil {
			t.Fatal(err)
		}
		if file == nil {
			t.Fatal("data file not imported")
		}
		if file.Metadata != `{"temperature_k":20}` {
			t.Errorf("metadata = %q", file.Metadata)
		}
		if !file.UploadDate.Equal(f.fileA.UploadDate) {
			t.Errorf("upload_date = %v, want %v", file.UploadDate, f.fileA.UploadDate)
		}
	})

	t.Run("dependencies", func(t *testing.T) {
		deps, err := db.FindDataFileDependencies(f.fileB.UUID)
		if err != nil {
			t.Fatal(err)
		}
		if len(deps) != 1 || deps[0] != f.fileA.UUID {
			t.Errorf("dependencies = %v, want [%s]", deps, f.fileA.UUID)
		}
	})

	t.Run("attachments", func(t *testing.T) {
		for _, key := range []string{
			"format_spec/" + f.spec.UUID + "_bandpass_format.pdf",
			"data_files/" + f.fileA.UUID + "_bandpass_2023.csv",
			"data_files/" + f.fileB.UUID + "_bandpass_2024.csv",
			"plot_files/" + f.fileB.UUID + "_bandpass_2024.csv.png",
			"release_documents/v1.0.txt",
		} {
			exists, err := store.Exists(key)
			if err != nil {
				t.Fatal(err)
			}
			if !exists {
				t.Errorf("attachment %s not stored", key)
			}
		}
	})

	t.Run("release and snapshot", func(t *testing.T) {
		members, err := db.FindReleaseDataFiles("v1.0")
		if err != nil {
			t.Fatal(err)
		}
		if len(members) != 1 || members[0].UUID != f.fileA.UUID {
			t.Errorf("release members = %+v", members)
		}

		release, err := db.FindReleaseByTag("v1.0")
		if err != nil {
			t.Fatal(err)
		}
		if release == nil || release.JSONFile == nil || *release.JSONFile != "schema_v1.0.json" {
			t.Errorf("release = %+v, want rebuilt dump", release)
		}
		exists, err := store.Exists("schema_v1.0.json")
		if err != nil {
			t.Fatal(err)
		}
		if !exists {
			t.Error("release dump not stored")
		}
	})
}

func TestService_Import_NoOverwrite(t *testing.T) {
	f, schemaPath := exportCatalog(t)

	svc, db, _ := testutil.NewTestService(t)
	if err := svc.Import([]string{schemaPath}, idb.ImportOptions{}); err != nil {
		t.Fatal(err)
	}

	// Rename a record locally, then re-import. With NoOverwrite the local
	// change survives; without it the document wins.
	renamed := &model.Entity{UUID: f.root.UUID, Name: "renamed"}
	if err := db.UpsertEntity(renamed); err != nil {
		t.Fatal(err)
	}

	if err := svc.Import([]string{schemaPath}, idb.ImportOptions{NoOverwrite: true}); err != nil {
		t.Fatalf("Import() with no-overwrite error = %v", err)
	}
	found, err := db.FindEntityByUUID(f.root.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if found.Name != "renamed" {
		t.Errorf("no-overwrite import changed entity name to %q", found.Name)
	}

	if err := svc.Import([]string{schemaPath}, idb.ImportOptions{}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	found, err = db.FindEntityByUUID(f.root.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if found.Name != "telescope" {
		t.Errorf("overwriting import left entity name %q, want telescope", found.Name)
	}
}

func TestService_Import_ForwardDependencies(t *testing.T) {
	// d1 depends on d2, declared later in the same document.
	doc := `{
  "entities": [{"uuid": "e1", "name": "beam"}],
  "quantities": [{"uuid": "q1", "name": "bandpass", "entity": "e1"}],
  "data_files": [
    {"uuid": "d1", "name": "first.csv", "quantity": "q1", "upload_date": "2024-01-10", "dependencies": ["d2"]},
    {"uuid": "d2", "name": "second.csv", "quantity": "q1", "upload_date": "2024-01-11"}
  ]
}`
	svc, db, _ := testutil.NewTestService(t)
	if err := svc.Import([]string{writeDoc(t, "schema.json", doc)}, idb.ImportOptions{}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	deps, err := db.FindDataFileDependencies("d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 || deps[0] != "d2" {
		t.Errorf("dependencies = %v, want [d2]", deps)
	}
}

func TestService_Import_CrossDocumentDependencies(t *testing.T) {
	docA := `{
  "entities": [{"uuid": "e1", "name": "beam"}],
  "quantities": [{"uuid": "q1", "name": "bandpass", "entity": "e1"}],
  "data_files": [{"uuid": "d1", "name": "first.csv", "quantity": "q1", "upload_date": "2024-01-10", "dependencies": ["d2"]}]
}`
	docB := `{
  "entities": [],
  "data_files": [{"uuid": "d2", "name": "second.csv", "quantity": "q1", "upload_date": "2024-01-11"}]
}`
	svc, db, _ := testutil.NewTestService(t)
	paths := []string{writeDoc(t, "a.json", docA), writeDoc(t, "b.json", docB)}
	if err := svc.Import(paths, idb.ImportOptions{}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	deps, err := db.FindDataFileDependencies("d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 || deps[0] != "d2" {
		t.Errorf("dependencies = %v, want [d2]", deps)
	}
}

func TestService_Import_MissingDependency(t *testing.T) {
	doc := `{
  "entities": [{"uuid": "e1", "name": "beam"}],
  "quantities": [{"uuid": "q1", "name": "bandpass", "entity": "e1"}],
  "data_files": [{"uuid": "d1", "name": "first.csv", "quantity": "q1", "upload_date": "2024-01-10", "dependencies": ["nope"]}]
}`
	svc, _, _ := testutil.NewTestService(t)
	if err := svc.Import([]string{writeDoc(t, "schema.json", doc)}, idb.ImportOptions{}); err == nil {
		t.Error("Import() with unresolvable dependency = nil, want error")
	}
}

func TestService_Import_DryRun(t *testing.T) {
	t.Run("valid document leaves no trace", func(t *testing.T) {
		_, schemaPath := exportCatalog(t)

		svc, db, store := testutil.NewTestService(t)
		if err := svc.Import([]string{schemaPath}, idb.ImportOptions{DryRun: true}); err != nil {
			t.Fatalf("Import() error = %v", err)
		}

		count, err := db.CountEntities()
		if err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Errorf("CountEntities() = %d after dry run, want 0", count)
		}
		if keys := store.Keys(); len(keys) != 0 {
			t.Errorf("attachments stored during dry run: %v", keys)
		}
	})

	t.Run("broken document still fails", func(t *testing.T) {
		doc := `{
  "entities": [],
  "data_files": [{"uuid": "d1", "name": "orphan.csv", "quantity": "no-such-quantity"}]
}`
		svc, _, _ := testutil.NewTestService(t)
		if err := svc.Import([]string{writeDoc(t, "schema.json", doc)}, idb.ImportOptions{DryRun: true}); err == nil {
			t.Error("dry-run Import() of broken document = nil, want error")
		}
	})
}

func TestService_Import_LegacyFieldNames(t *testing.T) {
	// file_path and release_document are the field spellings of the
	// original tool's dumps.
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "attachments"), 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{
		"attachments/spec.pdf":  "PDF",
		"attachments/notes.txt": "notes",
	} {
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	doc := `{
  "entities": [{"uuid": "e1", "name": "beam"}],
  "format_specifications": [
    {"uuid": "fs1", "document_ref": "SP-001", "title": "Format", "doc_file_name": "spec.pdf",
     "doc_mime_type": "application/pdf", "file_mime_type": "text/csv", "file_path": "attachments/spec.pdf"}
  ],
  "quantities": [{"uuid": "q1", "name": "bandpass", "entity": "e1", "format_spec": "SP-001"}],
  "data_files": [{"uuid": "d1", "name": "first.csv", "quantity": "q1", "upload_date": "2024-01-09"}],
  "releases": [
    {"tag": "v1.0", "release_date": "2024-01-10", "comment": "", "data_files": ["d1"],
     "release_document_mime_type": "text/plain", "release_document": "attachments/notes.txt"}
  ]
}`
	schemaPath := filepath.Join(dir, "schema.json")
	if err := os.WriteFile(schemaPath, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	svc, db, store := testutil.NewTestService(t)
	if err := svc.Import([]string{schemaPath}, idb.ImportOptions{}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	spec, err := db.FindFormatSpecificationByUUID("fs1")
	if err != nil {
		t.Fatal(err)
	}
	if spec == nil || spec.DocFile == nil {
		t.Fatalf("spec = %+v, want stored document", spec)
	}
	exists, err := store.Exists(*spec.DocFile)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Errorf("specification document %s not stored", *spec.DocFile)
	}

	release, err := db.FindReleaseByTag("v1.0")
	if err != nil {
		t.Fatal(err)
	}
	if release == nil || release.ReleaseDocument == nil || *release.ReleaseDocument != "release_documents/v1.0.txt" {
		t.Errorf("release = %+v, want stored document", release)
	}
}

func TestService_Import_ConventionalAttachmentPath(t *testing.T) {
	importPayloadDoc := func(t *testing.T, fileName, storedAs string) {
		t.Helper()
		dir := t.TempDir()
		if err := os.MkdirAll(filepath.Join(dir, "data_files"), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "data_files", storedAs), []byte("data"), 0644); err != nil {
			t.Fatal(err)
		}
		doc := `{
  "entities": [{"uuid": "e1", "name": "beam"}],
  "quantities": [{"uuid": "q1", "name": "bandpass", "entity": "e1"}],
  "data_files": [{"uuid": "d1", "name": "first.csv", "quantity": "q1", "upload_date": "2024-01-10", "file_name": "` + fileName + `"}]
}`
		schemaPath := filepath.Join(dir, "schema.json")
		if err := os.WriteFile(schemaPath, []byte(doc), 0644); err != nil {
			t.Fatal(err)
		}

		svc, _, store := testutil.NewTestService(t)
		if err := svc.Import([]string{schemaPath}, idb.ImportOptions{}); err != nil {
			t.Fatalf("Import() error = %v", err)
		}

		exists, err := store.Exists("data_files/d1_first.csv")
		if err != nil {
			t.Fatal(err)
		}
		if !exists {
			t.Error("payload not stored")
		}
	}

	t.Run("bare file name under standard subfolder", func(t *testing.T) {
		// The document names just the file; the bytes sit in data_files/.
		importPayloadDoc(t, "payload.csv", "payload.csv")
	})

	t.Run("rewritten path falls back to conventional key", func(t *testing.T) {
		// The declared path does not exist, but the bytes sit at the exact
		// export location for the record.
		importPayloadDoc(t, "flattened/bogus.csv", "d1_first.csv")
	})
}

func TestService_Import_DataFileNameUnrestricted(t *testing.T) {
	// File names may carry spaces and other characters that entity and
	// quantity names reject.
	doc := `{
  "entities": [{"uuid": "e1", "name": "beam"}],
  "quantities": [{"uuid": "q1", "name": "bandpass", "entity": "e1"}],
  "data_files": [{"uuid": "d1", "name": "map 30GHz.fits", "quantity": "q1", "upload_date": "2024-01-10"}]
}`
	svc, db, _ := testutil.NewTestService(t)
	if err := svc.Import([]string{writeDoc(t, "schema.json", doc)}, idb.ImportOptions{}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	file, err := db.FindDataFileByUUID("d1")
	if err != nil {
		t.Fatal(err)
	}
	if file == nil || file.Name != "map 30GHz.fits" {
		t.Errorf("data file = %+v, want name preserved", file)
	}
}

func TestService_Import_UnknownFormatSpecRef(t *testing.T) {
	doc := `{
  "entities": [{"uuid": "e1", "name": "beam"}],
  "quantities": [{"uuid": "q1", "name": "bandpass", "entity": "e1", "format_spec": "no-such-ref"}]
}`
	svc, db, _ := testutil.NewTestService(t)
	if err := svc.Import([]string{writeDoc(t, "schema.json", doc)}, idb.ImportOptions{}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	quantity, err := db.FindQuantityByUUID("q1")
	if err != nil {
		t.Fatal(err)
	}
	if quantity == nil {
		t.Fatal("quantity not imported")
	}
	if quantity.FormatSpecUUID != nil {
		t.Errorf("FormatSpecUUID = %v, want nil for unresolvable reference", quantity.FormatSpecUUID)
	}
}

func TestService_Import_InlineNesting(t *testing.T) {
	// Hand-authored documents may nest quantities under entities and data
	// files under quantities instead of using the top-level sections.
	doc := `{
  "entities": [
    {
      "uuid": "e1",
      "name": "telescope",
      "children": [
        {
          "uuid": "e2",
          "name": "focal_plane",
          "quantities": [
            {
              "uuid": "q1",
              "name": "bandpass",
              "data_files": [{"uuid": "d1", "name": "bandpass.csv", "upload_date": "2024-01-10"}]
            }
          ]
        }
      ]
    }
  ]
}`
	svc, db, _ := testutil.NewTestService(t)
	if err := svc.Import([]string{writeDoc(t, "schema.json", doc)}, idb.ImportOptions{}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	quantity, err := db.FindQuantityByUUID("q1")
	if err != nil {
		t.Fatal(err)
	}
	if quantity == nil || quantity.ParentEntityUUID != "e2" {
		t.Errorf("quantity = %+v, want owner e2", quantity)
	}

	file, err := db.FindDataFileByUUID("d1")
	if err != nil {
		t.Fatal(err)
	}
	if file == nil || file.QuantityUUID != "q1" {
		t.Errorf("data file = %+v, want owner q1", file)
	}
}

func TestService_Import_MissingDates(t *testing.T) {
	t.Run("data file without upload_date", func(t *testing.T) {
		doc := `{
  "entities": [{"uuid": "e1", "name": "beam"}],
  "quantities": [{"uuid": "q1", "name": "bandpass", "entity": "e1"}],
  "data_files": [{"uuid": "d1", "name": "first.csv", "quantity": "q1"}]
}`
		svc, _, _ := testutil.NewTestService(t)
		if err := svc.Import([]string{writeDoc(t, "schema.json", doc)}, idb.ImportOptions{}); err == nil {
			t.Error("Import() without upload_date = nil, want error")
		}
	})

	t.Run("release without release_date", func(t *testing.T) {
		doc := `{
  "entities": [],
  "releases": [{"tag": "v1.0", "comment": "", "data_files": []}]
}`
		svc, _, _ := testutil.NewTestService(t)
		if err := svc.Import([]string{writeDoc(t, "schema.json", doc)}, idb.ImportOptions{}); err == nil {
			t.Error("Import() without release_date = nil, want error")
		}
	})
}

func TestService_Import_UnsupportedExtension(t *testing.T) {
	svc, _, _ := testutil.NewTestService(t)

	path := writeDoc(t, "schema.txt", "{}")
	if err := svc.Import([]string{path}, idb.ImportOptions{}); err == nil {
		t.Error("Import() of .txt file = nil, want error")
	}
}
