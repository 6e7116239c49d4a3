package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int    `json:"version"`
	RoomID  string `json:"room_id"`
	Tick    uint64 `json:"tick"`
}

// LayoutV1 is a packed room layout: grid parameters plus the full
// id -> piece -> rotation -> cells table, enough to resume the engine
// exactly (including undo history and the id counter).
type LayoutV1 struct {
	Header Header `json:"header"`

	GridSize  [3]int  `json:"grid_size"`
	CellSizeM float64 `json:"cell_size_m"`

	OriginYawDeg float64    `json:"origin_yaw_deg"`
	OriginPos    [3]float64 `json:"origin_pos"`

	PiecesDigest string `json:"pieces_digest"`

	NextID     int64         `json:"next_id"`
	History    []int64       `json:"history"`
	Placements []PlacementV1 `json:"placements"`

	// OccupancyRLE is a compressed 0/1 mask of the whole lattice, redundant
	// with Placements but cheap to cross-check on restore.
	OccupancyRLE string `json:"occupancy_rle"`

	Digest string `json:"digest"`
}

type PlacementV1 struct {
	ID    int64    `json:"id"`
	Piece string   `json:"piece"`
	Turns [3]int   `json:"turns"`
	Cells [][3]int `json:"cells"`
}

// WriteLayout writes a layout as a JSON header line followed by a gob body,
// zstd-compressed, via a temp file and rename so readers never observe a
// half-written layout.
func WriteLayout(path string, lay LayoutV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeLayoutFile(tmp, lay); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeLayoutFile(path string, lay LayoutV1) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(lay.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&lay); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	// A failed flush or close means a truncated body; it must fail the
	// write so the temp file is never renamed into place.
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadLayout(path string) (LayoutV1, error) {
	var lay LayoutV1
	f, err := os.Open(path)
	if err != nil {
		return lay, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return lay, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line is informational; the gob body carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&lay); err != nil {
		return lay, fmt.Errorf("gob decode: %w", err)
	}
	return lay, nil
}

// LayoutPath is the canonical file name for a layout taken at a tick.
func LayoutPath(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("layout-%012d.layout.zst", tick))
}

// LatestLayout returns the newest layout file in dir, or "" when none
// exists. File names sort by tick.
func LatestLayout(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "layout-") && strings.HasSuffix(name, ".layout.zst") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1])
}
