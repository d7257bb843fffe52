// Package artifact persists a built index as a single .hsix container file:
// a fixed binary header, JSON-encoded IDF and document sections, and a
// CRC32 footer. Files are written to a temp path and renamed, so a crashed
// build never leaves a readable half-artifact behind.
package artifact

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/hashedsearch/retrieval-platform/internal/index"
	"github.com/hashedsearch/retrieval-platform/internal/sparse"
	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
)

const (
	MagicBytes    uint32 = 0x48534958 // "HSIX"
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 8
)

// Header is the fixed-size block at the start of every artifact.
type Header struct {
	Magic      uint32
	Version    uint32
	DocCount   uint32
	Buckets    int64
	CreatedAt  int64
	IDFOffset  int64
	IDFSize    int64
	DocsOffset int64
	DocsSize   int64
}

// Write serialises the index into a new artifact file under dataDir and
// returns the file name.
func Write(dataDir string, ix *index.Index) (string, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}
	name := fmt.Sprintf("index_%d.hsix", time.Now().UnixNano())
	finalPath := filepath.Join(dataDir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp artifact file: %w", err)
	}
	defer f.Close()

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header placeholder: %w", err)
	}

	idfData, err := json.Marshal(ix.IDF())
	if err != nil {
		return "", fmt.Errorf("marshaling idf vector: %w", err)
	}
	docsData, err := json.Marshal(ix.Docs())
	if err != nil {
		return "", fmt.Errorf("marshaling documents: %w", err)
	}

	idfOffset := int64(HeaderSize)
	if _, err := f.Write(idfData); err != nil {
		return "", fmt.Errorf("writing idf section: %w", err)
	}
	docsOffset := idfOffset + int64(len(idfData))
	if _, err := f.Write(docsData); err != nil {
		return "", fmt.Errorf("writing documents section: %w", err)
	}

	checksum := crc32.ChecksumIEEE(idfData)
	checksum = crc32.Update(checksum, crc32.IEEETable, docsData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum)
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(ix.DocCount()))
	binary.LittleEndian.PutUint64(headerBytes[12:20], uint64(ix.Buckets()))
	binary.LittleEndian.PutUint64(headerBytes[20:28], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(headerBytes[28:36], uint64(idfOffset))
	binary.LittleEndian.PutUint64(headerBytes[36:44], uint64(len(idfData)))
	binary.LittleEndian.PutUint64(headerBytes[44:52], uint64(docsOffset))
	binary.LittleEndian.PutUint64(headerBytes[52:60], uint64(len(docsData)))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing artifact file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming artifact file: %w", err)
	}
	return name, nil
}

// Read loads an artifact and reconstructs the in-memory Index, including
// its inverted postings. It rejects files with a bad magic, an unsupported
// version, or a checksum mismatch.
func Read(path string) (*index.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening artifact file: %w", err)
	}
	defer f.Close()

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", apperrors.ErrArtifactCorrupt, err)
	}
	hdr := Header{
		Magic:      binary.LittleEndian.Uint32(headerBytes[0:4]),
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[8:12]),
		Buckets:    int64(binary.LittleEndian.Uint64(headerBytes[12:20])),
		CreatedAt:  int64(binary.LittleEndian.Uint64(headerBytes[20:28])),
		IDFOffset:  int64(binary.LittleEndian.Uint64(headerBytes[28:36])),
		IDFSize:    int64(binary.LittleEndian.Uint64(headerBytes[36:44])),
		DocsOffset: int64(binary.LittleEndian.Uint64(headerBytes[44:52])),
		DocsSize:   int64(binary.LittleEndian.Uint64(headerBytes[52:60])),
	}
	if hdr.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrArtifactCorrupt, hdr.Magic)
	}
	if hdr.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", apperrors.ErrArtifactCorrupt, hdr.Version)
	}

	idfData := make([]byte, hdr.IDFSize)
	if _, err := f.ReadAt(idfData, hdr.IDFOffset); err != nil {
		return nil, fmt.Errorf("%w: reading idf section: %v", apperrors.ErrArtifactCorrupt, err)
	}
	docsData := make([]byte, hdr.DocsSize)
	if _, err := f.ReadAt(docsData, hdr.DocsOffset); err != nil {
		return nil, fmt.Errorf("%w: reading documents section: %v", apperrors.ErrArtifactCorrupt, err)
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, hdr.DocsOffset+hdr.DocsSize); err != nil {
		return nil, fmt.Errorf("%w: reading footer: %v", apperrors.ErrArtifactCorrupt, err)
	}
	want := binary.LittleEndian.Uint32(footer[0:4])
	got := crc32.ChecksumIEEE(idfData)
	got = crc32.Update(got, crc32.IEEETable, docsData)
	if got != want {
		return nil, fmt.Errorf("%w: checksum mismatch (want %x, got %x)", apperrors.ErrArtifactCorrupt, want, got)
	}

	var idf sparse.Vector
	if err := json.Unmarshal(idfData, &idf); err != nil {
		return nil, fmt.Errorf("%w: parsing idf section: %v", apperrors.ErrArtifactCorrupt, err)
	}
	var docs map[string]index.DocEntry
	if err := json.Unmarshal(docsData, &docs); err != nil {
		return nil, fmt.Errorf("%w: parsing documents section: %v", apperrors.ErrArtifactCorrupt, err)
	}

	return index.New(hdr.Buckets, int(hdr.DocCount), idf, docs), nil
}

// Latest returns the newest artifact file name under dataDir, or
// ErrBuildNotFound when none exist. Artifact names embed a nanosecond
// timestamp, so lexical order is creation order.
func Latest(dataDir string) (string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.ErrBuildNotFound
		}
		return "", fmt.Errorf("reading artifact directory: %w", err)
	}
	var latest string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".hsix" {
			continue
		}
		if entry.Name() > latest {
			latest = entry.Name()
		}
	}
	if latest == "" {
		return "", apperrors.ErrBuildNotFound
	}
	return latest, nil
}
