package artifact

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashedsearch/retrieval-platform/internal/index"
	"github.com/hashedsearch/retrieval-platform/internal/sparse"
	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
)

func testIndex() *index.Index {
	idf := sparse.Vector{10: 1.4, 20: 2.1}
	docs := map[string]index.DocEntry{
		"D1": {Title: "one", TFIDF: sparse.Vector{10: 2.8, 20: 2.1}},
		"D2": {Title: "two", TFIDF: sparse.Vector{10: 1.4}},
	}
	return index.New(1<<24, 2, idf, docs)
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	name, err := Write(dir, testIndex())
	if err != nil {
		t.Fatal(err)
	}

	ix, err := Read(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	if ix.Buckets() != 1<<24 {
		t.Errorf("Buckets = %d, want %d", ix.Buckets(), 1<<24)
	}
	if ix.DocCount() != 2 {
		t.Errorf("DocCount = %d, want 2", ix.DocCount())
	}
	if got := ix.IDF().Get(10); got != 1.4 {
		t.Errorf("idf[10] = %v, want 1.4", got)
	}
	entry, ok := ix.Docs()["D1"]
	if !ok {
		t.Fatal("D1 missing after round trip")
	}
	if entry.Title != "one" || entry.TFIDF.Get(10) != 2.8 {
		t.Errorf("D1 = %+v", entry)
	}
	// Postings are rebuilt on load.
	postings := ix.Postings(10)
	if len(postings) != 2 || postings[0].DocID != "D1" || postings[1].DocID != "D2" {
		t.Errorf("postings[10] = %v, want [D1 D2] sorted by doc ID", postings)
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := Write(dir, testIndex()); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	name, err := Write(dir, testIndex())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(data[0:4], 0xdeadbeef)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Read(path); !errors.Is(err, apperrors.ErrArtifactCorrupt) {
		t.Errorf("error = %v, want ErrArtifactCorrupt", err)
	}
}

func TestReadRejectsUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	name, err := Write(dir, testIndex())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(data[4:8], FormatVersion+1)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Read(path); !errors.Is(err, apperrors.ErrArtifactCorrupt) {
		t.Errorf("error = %v, want ErrArtifactCorrupt", err)
	}
}

func TestReadDetectsFlippedPayloadByte(t *testing.T) {
	dir := t.TempDir()
	name, err := Write(dir, testIndex())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[HeaderSize+3] ^= 0xff
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Read(path); !errors.Is(err, apperrors.ErrArtifactCorrupt) {
		t.Errorf("error = %v, want ErrArtifactCorrupt (checksum mismatch)", err)
	}
}

func TestReadTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	name, err := Write(dir, testIndex())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-FooterSize-5], 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Read(path); !errors.Is(err, apperrors.ErrArtifactCorrupt) {
		t.Errorf("error = %v, want ErrArtifactCorrupt", err)
	}
}

func TestLatestPicksNewest(t *testing.T) {
	dir := t.TempDir()
	first, err := Write(dir, testIndex())
	if err != nil {
		t.Fatal(err)
	}
	second, err := Write(dir, testIndex())
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("expected distinct artifact names")
	}

	got, err := Latest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != second {
		t.Errorf("Latest = %q, want %q", got, second)
	}
}

func TestLatestEmptyOrMissingDir(t *testing.T) {
	if _, err := Latest(t.TempDir()); !errors.Is(err, apperrors.ErrBuildNotFound) {
		t.Errorf("empty dir: error = %v, want ErrBuildNotFound", err)
	}
	if _, err := Latest(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, apperrors.ErrBuildNotFound) {
		t.Errorf("missing dir: error = %v, want ErrBuildNotFound", err)
	}
}

func TestLatestIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "zzz.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	name, err := Write(dir, testIndex())
	if err != nil {
		t.Fatal(err)
	}
	got, err := Latest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != name {
		t.Errorf("Latest = %q, want %q", got, name)
	}
}
