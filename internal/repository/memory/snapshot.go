package memory

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/domain/record"
)

// Snapshot layout (little-endian):
//
//	magic "VSNP" | version u32 | dim u32 | count u32 | nextSeq i64
//	per record: id, category, contentRef (u32 len + bytes) | createdAt i64 (unix nanos) | seq i64 | dim*f32
const (
	snapshotMagic   = "VSNP"
	snapshotVersion = uint32(1)
)

// Save writes every record to path. The file is replaced atomically.
func (r *Repo) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after successful rename

	w := bufio.NewWriter(tmp)
	r.mu.RLock()
	err = r.writeSnapshot(w)
	r.mu.RUnlock()
	if err == nil {
		err = w.Flush()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (r *Repo) writeSnapshot(w io.Writer) error {
	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return err
	}
	header := []any{snapshotVersion, uint32(r.dimension), uint32(len(r.records)), r.nextSeq}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	vecBuf := make([]byte, r.dimension*4)
	for i := range r.records {
		rec := &r.records[i]
		for _, s := range []string{rec.ID(), rec.Category(), rec.ContentRef()} {
			if err := writeString(w, s); err != nil {
				return err
			}
		}
		if err := binary.Write(w, binary.LittleEndian, rec.CreatedAt().UnixNano()); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, rec.Seq()); err != nil {
			return err
		}
		for j, f := range rec.Embedding().Values() {
			binary.LittleEndian.PutUint32(vecBuf[j*4:], math.Float32bits(f))
		}
		if _, err := w.Write(vecBuf); err != nil {
			return err
		}
	}
	return nil
}

// Load replaces the store contents with the snapshot at path. A missing file
// leaves the store unchanged. The snapshot dimension must match.
func (r *Repo) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	records, nextSeq, err := readSnapshot(bufio.NewReader(f), r.dimension)
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", path, err)
	}

	byID := make(map[string]int, len(records))
	for i := range records {
		byID[records[i].ID()] = i
	}

	r.mu.Lock()
	r.records = records
	r.byID = byID
	r.nextSeq = nextSeq
	r.mu.Unlock()
	return nil
}

func readSnapshot(rd io.Reader, dimension int) ([]record.Record, int64, error) {
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(rd, magic); err != nil {
		return nil, 0, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != snapshotMagic {
		return nil, 0, errors.New("not a snapshot file")
	}

	var (
		version, dim, count uint32
		nextSeq             int64
	)
	for _, v := range []any{&version, &dim, &count, &nextSeq} {
		if err := binary.Read(rd, binary.LittleEndian, v); err != nil {
			return nil, 0, fmt.Errorf("read header: %w", err)
		}
	}
	if version != snapshotVersion {
		return nil, 0, fmt.Errorf("unsupported snapshot version %d", version)
	}
	if int(dim) != dimension {
		return nil, 0, fmt.Errorf("%w: snapshot has %d, store expects %d", domain.ErrDimensionMismatch, dim, dimension)
	}

	records := make([]record.Record, 0, count)
	vecBuf := make([]byte, dimension*4)
	for i := uint32(0); i < count; i++ {
		var fields [3]string
		for j := range fields {
			s, err := readString(rd)
			if err != nil {
				return nil, 0, fmt.Errorf("record %d: %w", i, err)
			}
			fields[j] = s
		}
		var createdAt, seq int64
		if err := binary.Read(rd, binary.LittleEndian, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("record %d created_at: %w", i, err)
		}
		if err := binary.Read(rd, binary.LittleEndian, &seq); err != nil {
			return nil, 0, fmt.Errorf("record %d seq: %w", i, err)
		}
		if _, err := io.ReadFull(rd, vecBuf); err != nil {
			return nil, 0, fmt.Errorf("record %d vector: %w", i, err)
		}
		vec := make([]float32, dimension)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(vecBuf[j*4:]))
		}
		records = append(records, record.Reconstruct(
			fields[0], fields[1], fields[2],
			domain.ReconstructEmbedding(vec),
			time.Unix(0, createdAt).UTC(), seq,
		))
	}
	return records, nextSeq, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(rd io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(rd, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > record.MaxContentRefLength {
		return "", fmt.Errorf("string length %d exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
