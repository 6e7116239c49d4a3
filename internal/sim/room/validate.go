package room

import "roomforge/internal/protocol"

// Candidate is the ephemeral per-step placement under evaluation. It is
// recomputed from (piece, anchor, turns) every step and never persisted.
type Candidate struct {
	Piece  string
	Anchor Vec3i
	Turns  Turns
}

// Verdict is the validator's accept/reject decision. Reason carries exactly
// one protocol R_* token on reject and is empty on accept.
type Verdict struct {
	OK     bool
	Reason string
	Cells  []Vec3i
}

// Validator runs the placement rule pipeline against a grid. TemplateOf
// resolves the template of an already-placed id, which the fragile rule
// needs to protect pieces on the grid.
type Validator struct {
	Grid       *Grid
	TemplateOf func(id int64) (*PieceTemplate, bool)
}

const upEps = 1e-9

// Check evaluates a candidate cell set in rule order; the first failing
// rule determines the reason. Pure: no grid mutation on any path.
//
// Fragile directionality: the rule protects fragile pieces that are already
// on the grid, so every candidate resting on a fragile-top cell is rejected
// regardless of its own flags. A candidate that is itself fragile-top is
// additionally rejected when existing occupancy sits directly above it, as
// it would be placed already violated.
func (v *Validator) Check(tpl *PieceTemplate, anchor Vec3i, rot Rotation) Verdict {
	cells := CellsAt(tpl, anchor, rot)
	if len(cells) == 0 {
		return Verdict{Reason: protocol.ReasonInvalidShape}
	}
	if !v.Grid.CanPlace(cells) {
		return Verdict{Reason: protocol.ReasonBlocked, Cells: cells}
	}

	member := make(map[Vec3i]struct{}, len(cells))
	for _, c := range cells {
		member[c] = struct{}{}
	}

	supported := false
	for _, c := range cells {
		if c.Y == 0 {
			supported = true
			break
		}
		below := Vec3i{c.X, c.Y - 1, c.Z}
		if _, own := member[below]; own {
			continue
		}
		if v.Grid.IsOccupied(below) {
			supported = true
			break
		}
	}
	if !supported {
		return Verdict{Reason: protocol.ReasonUnsupported, Cells: cells}
	}

	for _, c := range cells {
		below := Vec3i{c.X, c.Y - 1, c.Z}
		if _, own := member[below]; own {
			continue
		}
		if id, ok := v.Grid.OwnerAt(below); ok {
			if under, known := v.TemplateOf(id); known && under.FragileTop {
				return Verdict{Reason: protocol.ReasonFragile, Cells: cells}
			}
		}
	}
	if tpl.FragileTop {
		for _, c := range cells {
			above := Vec3i{c.X, c.Y + 1, c.Z}
			if _, own := member[above]; own {
				continue
			}
			if v.Grid.IsOccupied(above) {
				return Verdict{Reason: protocol.ReasonFragile, Cells: cells}
			}
		}
	}

	if tpl.MustBeStanding {
		fp, _ := FootprintOf(cells)
		if s := fp.Size(); s.X != 1 || s.Y != 2 || s.Z != 1 {
			return Verdict{Reason: protocol.ReasonNotStanding, Cells: cells}
		}
	}

	if tpl.ForbidUpsideDown {
		// Sideways (dot == 0) passes; only inverted orientations fail.
		if rot.Up().Y < -upEps {
			return Verdict{Reason: protocol.ReasonUpsideDown, Cells: cells}
		}
	}

	return Verdict{OK: true, Cells: cells}
}
