package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed pieces.schema.json
var piecesSchema string

type Catalogs struct {
	Pieces PieceCatalog
}

type PieceCatalog struct {
	Palette []string
	Defs    map[string]PieceDef
	Digest  string
}

// PieceDef is authored piece data: the occupied local cells, the pivot the
// shape rotates and anchors around, and the placement rule flags. Loaded
// once, never mutated.
type PieceDef struct {
	ID               string   `json:"id"`
	Cells            [][3]int `json:"cells"`
	Pivot            [3]int   `json:"pivot"`
	FragileTop       bool     `json:"fragile_top,omitempty"`
	MustBeStanding   bool     `json:"must_be_standing,omitempty"`
	ForbidUpsideDown bool     `json:"forbid_upside_down,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadPieces(filepath.Join(configDir, "pieces.json"), &c.Pieces); err != nil {
		return nil, err
	}
	return &c, nil
}

func loadPieces(path string, out *PieceCatalog) (err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	schema, err := jsonschema.CompileString("pieces.schema.json", piecesSchema)
	if err != nil {
		return fmt.Errorf("pieces schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("pieces.json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("pieces.json: %w", err)
	}

	var defs []PieceDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("pieces.json: %w", err)
	}

	out.Defs = make(map[string]PieceDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("pieces.json: piece with empty id")
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("pieces.json: duplicate piece id %q", d.ID)
		}
		if len(d.Cells) == 0 {
			return fmt.Errorf("pieces.json: piece %q has no cells", d.ID)
		}
		seen := map[[3]int]struct{}{}
		for _, cell := range d.Cells {
			if _, dup := seen[cell]; dup {
				return fmt.Errorf("pieces.json: piece %q repeats cell %v", d.ID, cell)
			}
			seen[cell] = struct{}{}
		}
		out.Defs[d.ID] = d
		out.Palette = append(out.Palette, d.ID)
	}
	sort.Strings(out.Palette)
	out.Digest = sha256Hex(raw)
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
