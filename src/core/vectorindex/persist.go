package vectorindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"coursematch/src/core/chunker"
	"coursematch/src/core/rag"
)

// Artifact file names inside an index directory. TableFile is written last and marks a complete index.
const (
	VectorsFile = "index.vec"
	TableFile   = "index.json"
)

var vecMagic = [4]byte{'C', 'M', 'V', 'X'}

const vecVersion uint32 = 1

// Meta describes how and when an index was built.
type Meta struct {
	BuildID        string    `json:"build_id"`
	EmbeddingModel string    `json:"embedding_model"`
	CreatedAt      time.Time `json:"created_at"`
}

type table struct {
	Meta
	Metric    string        `json:"metric"`
	Dimension int           `json:"dimension"`
	Count     int           `json:"count"`
	Entries   []tableRecord `json:"entries"`
}

type tableRecord struct {
	ID    int           `json:"id"`
	Chunk chunker.Chunk `json:"chunk"`
}

// ArtifactNames lists the files that make up a persisted index.
func ArtifactNames() []string {
	return []string{VectorsFile, TableFile}
}

// Persist writes idx to dir as a vector matrix plus a side table of chunk payloads.
func Persist(dir string, idx *Index, meta Meta) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create index directory %q: %w", dir, err)
	}

	err := writeAtomic(filepath.Join(dir, VectorsFile), func(w io.Writer) error {
		return writeVectors(w, idx)
	})
	if err != nil {
		return err
	}

	t := table{
		Meta:      meta,
		Metric:    MetricCosine,
		Dimension: idx.dimension,
		Count:     idx.Len(),
		Entries:   make([]tableRecord, idx.Len()),
	}
	for i, e := range idx.entries {
		t.Entries[i] = tableRecord{ID: e.ID, Chunk: e.Chunk}
	}
	return writeAtomic(filepath.Join(dir, TableFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	})
}

// Load reads an index written by Persist. A missing directory or artifact yields *rag.IndexNotFoundError.
func Load(dir string) (*Index, Meta, error) {
	tableData, err := os.ReadFile(filepath.Join(dir, TableFile))
	if err != nil {
		return nil, Meta{}, notFound(dir, err)
	}
	var t table
	if err := json.Unmarshal(tableData, &t); err != nil {
		return nil, Meta{}, fmt.Errorf("decode %s: %w", TableFile, err)
	}
	if t.Metric != MetricCosine {
		return nil, Meta{}, fmt.Errorf("unsupported metric %q in %s", t.Metric, TableFile)
	}
	if t.Count != len(t.Entries) {
		return nil, Meta{}, fmt.Errorf("%s lists %d entries but declares %d", TableFile, len(t.Entries), t.Count)
	}

	f, err := os.Open(filepath.Join(dir, VectorsFile))
	if err != nil {
		return nil, Meta{}, notFound(dir, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, Meta{}, fmt.Errorf("stat %s: %w", VectorsFile, err)
	}
	vectors, err := readVectors(bufio.NewReader(f), info.Size(), t.Count, t.Dimension)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("read %s: %w", VectorsFile, err)
	}

	idx := &Index{dimension: t.Dimension, entries: make([]Entry, t.Count)}
	for i, rec := range t.Entries {
		if rec.ID != i {
			return nil, Meta{}, fmt.Errorf("%s entry %d has id %d", TableFile, i, rec.ID)
		}
		idx.entries[i] = Entry{ID: i, Vector: vectors[i], Chunk: rec.Chunk}
	}
	if idx.Len() == 0 {
		idx.dimension = 0
	}
	return idx, t.Meta, nil
}

func notFound(dir string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return &rag.IndexNotFoundError{Path: dir, Err: err}
	}
	return fmt.Errorf("open index %q: %w", dir, err)
}

func writeVectors(w io.Writer, idx *Index) error {
	header := struct {
		Magic     [4]byte
		Version   uint32
		Dimension uint32
		Count     uint32
	}{vecMagic, vecVersion, uint32(idx.dimension), uint32(idx.Len())}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	for _, e := range idx.entries {
		if err := binary.Write(w, binary.LittleEndian, e.Vector); err != nil {
			return err
		}
	}
	return nil
}

const vecHeaderSize = 16

// readVectors checks the header against the side table and the file size before allocating.
func readVectors(r io.Reader, size int64, count, dim int) ([][]float32, error) {
	var header struct {
		Magic     [4]byte
		Version   uint32
		Dimension uint32
		Count     uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if header.Magic != vecMagic {
		return nil, errors.New("not a vector file")
	}
	if header.Version != vecVersion {
		return nil, fmt.Errorf("unsupported version %d", header.Version)
	}
	if count < 0 || dim < 0 || (count > 0 && dim == 0) {
		return nil, fmt.Errorf("%s declares %d entries of dimension %d", TableFile, count, dim)
	}
	if int64(header.Count) != int64(count) || (count > 0 && int64(header.Dimension) != int64(dim)) {
		return nil, fmt.Errorf("holds %d vectors of dimension %d, %s expects %d of dimension %d",
			header.Count, header.Dimension, TableFile, count, dim)
	}
	if want := vecHeaderSize + 4*int64(count)*int64(dim); size != want {
		return nil, fmt.Errorf("file is %d bytes, expected %d", size, want)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		v := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

// writeAtomic writes through a temp file renamed over path on success.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %q: %w", tmp, err)
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %q: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %q: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit %q: %w", path, err)
	}
	return nil
}
