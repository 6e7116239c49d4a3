package room

import "math"

// Pose anchors the grid in continuous space: rotation plus translation of
// the grid's minimum corner. The grid never holds a live reference into a
// host scene graph; callers pass the pose value explicitly.
type Pose struct {
	Rot    Rotation
	Origin Vec3f
}

// Grid owns the occupancy lattice and the id -> cells mapping. A cell is
// occupied iff exactly one placement claims it; the owner lattice makes the
// no-two-placements-per-cell invariant structural.
type Grid struct {
	w, h, d  int
	cellSize float64

	owner []int64 // 0 = free, otherwise owning placement id
	cells map[int64][]Vec3i
}

func NewGrid(w, h, d int, cellSize float64) *Grid {
	if w <= 0 || h <= 0 || d <= 0 {
		return nil
	}
	if cellSize <= 0 {
		cellSize = 1
	}
	return &Grid{
		w:        w,
		h:        h,
		d:        d,
		cellSize: cellSize,
		owner:    make([]int64, w*h*d),
		cells:    map[int64][]Vec3i{},
	}
}

func (g *Grid) Size() Vec3i       { return Vec3i{g.w, g.h, g.d} }
func (g *Grid) CellSize() float64 { return g.cellSize }

func (g *Grid) index(c Vec3i) int {
	return c.X + g.w*(c.Y+g.h*c.Z)
}

func (g *Grid) IsInside(c Vec3i) bool {
	return c.X >= 0 && c.X < g.w && c.Y >= 0 && c.Y < g.h && c.Z >= 0 && c.Z < g.d
}

func (g *Grid) IsFree(c Vec3i) bool {
	return g.IsInside(c) && g.owner[g.index(c)] == 0
}

func (g *Grid) IsOccupied(c Vec3i) bool {
	return g.IsInside(c) && g.owner[g.index(c)] != 0
}

// OwnerAt reports which placement occupies a cell. Out-of-range cells are
// unowned.
func (g *Grid) OwnerAt(c Vec3i) (int64, bool) {
	if !g.IsInside(c) {
		return 0, false
	}
	id := g.owner[g.index(c)]
	return id, id != 0
}

// CanPlace is the atomic dry-run check: every cell inside and free, or the
// whole set is rejected. The empty set is rejected. No side effects.
func (g *Grid) CanPlace(cells []Vec3i) bool {
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if !g.IsFree(c) {
			return false
		}
	}
	return true
}

// Place commits a validated cell set. It performs no validation itself;
// callers must have passed CanPlace in the same step. Keeping the commit
// dumb keeps the dry-run side-effect-free.
func (g *Grid) Place(id int64, cells []Vec3i) {
	stored := make([]Vec3i, len(cells))
	copy(stored, cells)
	for _, c := range stored {
		g.owner[g.index(c)] = id
	}
	g.cells[id] = stored
}

// Remove frees all of id's cells. Unknown ids are a no-op returning false.
func (g *Grid) Remove(id int64) bool {
	cells, ok := g.cells[id]
	if !ok {
		return false
	}
	for _, c := range cells {
		g.owner[g.index(c)] = 0
	}
	delete(g.cells, id)
	return true
}

// Cells returns the occupied cell list for a live placement id.
func (g *Grid) Cells(id int64) ([]Vec3i, bool) {
	cells, ok := g.cells[id]
	if !ok {
		return nil, false
	}
	out := make([]Vec3i, len(cells))
	copy(out, cells)
	return out, true
}

// OccupiedCount is the number of occupied cells across all placements.
func (g *Grid) OccupiedCount() int {
	n := 0
	for _, id := range g.owner {
		if id != 0 {
			n++
		}
	}
	return n
}

func (g *Grid) PlacementCount() int { return len(g.cells) }

// OccupancyMask flattens the lattice into a 0/1 mask, x-fastest then y
// then z, for compact export.
func (g *Grid) OccupancyMask() []uint16 {
	mask := make([]uint16, len(g.owner))
	for i, id := range g.owner {
		if id != 0 {
			mask[i] = 1
		}
	}
	return mask
}

// CellCenter maps a cell to its continuous-space center under the given
// pose: (index + 0.5) * cellSize per axis, rotated, then translated.
func (g *Grid) CellCenter(c Vec3i, pose Pose) Vec3f {
	local := Vec3f{
		X: (float64(c.X) + 0.5) * g.cellSize,
		Y: (float64(c.Y) + 0.5) * g.cellSize,
		Z: (float64(c.Z) + 0.5) * g.cellSize,
	}
	return pose.Rot.Apply(local).Add(pose.Origin)
}

// CellAt inverts CellCenter: the cell containing a continuous-space point,
// false when the point falls outside the grid.
func (g *Grid) CellAt(p Vec3f, pose Pose) (Vec3i, bool) {
	local := pose.Rot.Inverse().Apply(p.Sub(pose.Origin))
	c := Vec3i{
		X: int(math.Floor(local.X / g.cellSize)),
		Y: int(math.Floor(local.Y / g.cellSize)),
		Z: int(math.Floor(local.Z / g.cellSize)),
	}
	if !g.IsInside(c) {
		return Vec3i{}, false
	}
	return c, true
}
