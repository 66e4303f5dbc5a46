package idb_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"idb-go/internal/idb"
)

func readSnapshot(t *testing.T, f *fixture, tag string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := f.store.Get(idb.ReleaseJSONKey(tag), &buf); err != nil {
		t.Fatalf("reading release dump: %v", err)
	}
	return buf.Bytes()
}

func TestService_ReleaseSnapshot(t *testing.T) {
	f := buildCatalog(t)

	t.Run("created with the release", func(t *testing.T) {
		release, err := f.db.FindReleaseByTag("v1.0")
		if err != nil {
			t.Fatal(err)
		}
		if release.JSONFile == nil || *release.JSONFile != "schema_v1.0.json" {
			t.Errorf("JSONFile = %v, want schema_v1.0.json", release.JSONFile)
		}

		var doc idb.SchemaDocument
		if err := json.Unmarshal(readSnapshot(t, f, "v1.0"), &doc); err != nil {
			t.Fatalf("parsing release dump: %v", err)
		}
		if len(doc.DataFiles) != 1 || string(doc.DataFiles[0].UUID) != f.fileA.UUID {
			t.Errorf("dump data_files = %+v, want only the member", doc.DataFiles)
		}
		for _, entry := range doc.DataFiles {
			if entry.FileName != "" {
				t.Errorf("dump references attachment %q", entry.FileName)
			}
		}
	})

	t.Run("not rebuilt without force", func(t *testing.T) {
		before := readSnapshot(t, f, "v1.0")

		if err := f.db.AddDataFileToRelease("v1.0", f.fileB.UUID); err != nil {
			t.Fatal(err)
		}
		if err := f.svc.EnsureReleaseSnapshot("v1.0", false); err != nil {
			t.Fatalf("EnsureReleaseSnapshot() error = %v", err)
		}

		if !bytes.Equal(before, readSnapshot(t, f, "v1.0")) {
			t.Error("dump rebuilt although one already existed")
		}
	})

	t.Run("rebuilt with force", func(t *testing.T) {
		if err := f.svc.EnsureReleaseSnapshot("v1.0", true); err != nil {
			t.Fatalf("EnsureReleaseSnapshot() error = %v", err)
		}

		var doc idb.SchemaDocument
		if err := json.Unmarshal(readSnapshot(t, f, "v1.0"), &doc); err != nil {
			t.Fatal(err)
		}
		if len(doc.DataFiles) != 2 {
			t.Errorf("dump data_files = %d after force rebuild, want 2", len(doc.DataFiles))
		}
	})

	t.Run("unknown release fails", func(t *testing.T) {
		if err := f.svc.EnsureReleaseSnapshot("v9.9", false); err == nil {
			t.Error("EnsureReleaseSnapshot() of unknown release = nil, want error")
		}
	})
}

func TestService_UpdateReleaseDumps(t *testing.T) {
	f := buildCatalog(t)

	// Drop the cached dump; a non-forced update must restore it.
	if err := f.db.SetReleaseJSONFile("v1.0", ""); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Delete(idb.ReleaseJSONKey("v1.0")); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.UpdateReleaseDumps(false); err != nil {
		t.Fatalf("UpdateReleaseDumps() error = %v", err)
	}

	release, err := f.db.FindReleaseByTag("v1.0")
	if err != nil {
		t.Fatal(err)
	}
	if release.JSONFile == nil {
		t.Fatal("dump not restored")
	}
	exists, err := f.store.Exists(idb.ReleaseJSONKey("v1.0"))
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("dump bytes not stored")
	}
}
