package idb_test

import (
	"strings"
	"testing"

	"idb-go/internal/attachments"
	"idb-go/internal/idb"
	"idb-go/internal/model"
	"idb-go/internal/testutil"
)

// fixture is a small but complete catalog: a two-level entity tree, one
// format specification with a stored document, one quantity, two data files
// (the newer depending on the older, with a plot), and one release holding
// only the older file.
type fixture struct {
	svc   *idb.Service
	db    idb.Database
	store *attachments.MemoryStore

	root     *model.Entity
	child    *model.Entity
	spec     *model.FormatSpecification
	quantity *model.Quantity
	fileA    *model.DataFile
	fileB    *model.DataFile
}

const (
	specDocBytes   = "PDF BYTES"
	fileABytes     = "freq,gain\n30,1.2\n"
	fileBBytes     = "freq,gain\n30,1.3\n"
	plotBytes      = "PNG BYTES"
	releaseDocText = "release notes"
)

func buildCatalog(t *testing.T) *fixture {
	t.Helper()

	svc, db, store := testutil.NewTestService(t)
	f := &fixture{svc: svc, db: db, store: store}

	var err error
	f.root, err = svc.AddEntity("telescope", nil)
	if err != nil {
		t.Fatal(err)
	}
	f.child, err = svc.AddEntity("focal_plane", &f.root.UUID)
	if err != nil {
		t.Fatal(err)
	}

	docName := "bandpass_format.pdf"
	f.spec = &model.FormatSpecification{
		DocumentRef:  "SP-001",
		Title:        "Bandpass file format",
		DocFileName:  &docName,
		DocMimeType:  "application/pdf",
		FileMimeType: "text/csv",
	}
	if err := svc.AddFormatSpecification(f.spec, strings.NewReader(specDocBytes)); err != nil {
		t.Fatal(err)
	}

	f.quantity, err = svc.AddQuantity("bandpass", f.child.UUID, f.spec.UUID)
	if err != nil {
		t.Fatal(err)
	}

	f.fileA = &model.DataFile{
		Name:         "bandpass_2023.csv",
		Metadata:     `{"temperature_k": 20}`,
		QuantityUUID: f.quantity.UUID,
		SpecVersion:  "1.0",
	}
	if err := svc.AddDataFile(f.fileA, strings.NewReader(fileABytes), nil, nil); err != nil {
		t.Fatal(err)
	}

	plotMime := "image/png"
	f.fileB = &model.DataFile{
		Name:         "bandpass_2024.csv",
		Metadata:     `{"temperature_k": 19}`,
		QuantityUUID: f.quantity.UUID,
		SpecVersion:  "1.0",
		PlotMimeType: &plotMime,
	}
	if err := svc.AddDataFile(f.fileB, strings.NewReader(fileBBytes), strings.NewReader(plotBytes), []string{f.fileA.UUID}); err != nil {
		t.Fatal(err)
	}

	relDocMime := "text/plain"
	release := &model.Release{
		Tag:                     "v1.0",
		Comment:                 "first release",
		ReleaseDocumentMimeType: &relDocMime,
	}
	if err := svc.AddRelease(release, []string{f.fileA.UUID}, strings.NewReader(releaseDocText)); err != nil {
		t.Fatal(err)
	}

	return f
}
