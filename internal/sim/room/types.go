package room

type Vec3i struct {
	X int
	Y int
	Z int
}

func (v Vec3i) ToArray() [3]int { return [3]int{v.X, v.Y, v.Z} }

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3i) Sub(o Vec3i) Vec3i { return Vec3i{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

type Vec3f struct {
	X float64
	Y float64
	Z float64
}

func (v Vec3f) Add(o Vec3f) Vec3f { return Vec3f{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3f) Sub(o Vec3f) Vec3f { return Vec3f{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// PieceTemplate is immutable authored shape data: the local cells the piece
// occupies, the pivot the shape rotates around, and the placement rule flags.
// The pivot is expressed in the same local frame as the offsets but does not
// have to coincide with an occupied cell.
type PieceTemplate struct {
	ID      string
	Offsets []Vec3i
	Pivot   Vec3i

	FragileTop       bool
	MustBeStanding   bool
	ForbidUpsideDown bool
}

// Footprint is the inclusive axis-aligned bounding box of a cell set.
type Footprint struct {
	Min Vec3i
	Max Vec3i
}

func (f Footprint) Size() Vec3i {
	return Vec3i{f.Max.X - f.Min.X + 1, f.Max.Y - f.Min.Y + 1, f.Max.Z - f.Min.Z + 1}
}

func FootprintOf(cells []Vec3i) (Footprint, bool) {
	if len(cells) == 0 {
		return Footprint{}, false
	}
	f := Footprint{Min: cells[0], Max: cells[0]}
	for _, c := range cells[1:] {
		if c.X < f.Min.X {
			f.Min.X = c.X
		}
		if c.Y < f.Min.Y {
			f.Min.Y = c.Y
		}
		if c.Z < f.Min.Z {
			f.Min.Z = c.Z
		}
		if c.X > f.Max.X {
			f.Max.X = c.X
		}
		if c.Y > f.Max.Y {
			f.Max.Y = c.Y
		}
		if c.Z > f.Max.Z {
			f.Max.Z = c.Z
		}
	}
	return f, true
}
