package room

import "math"

// Turns is a discrete rotation: quarter-turns around the X, Y and Z axes,
// applied in that order. Placement only ever uses quarter-turns, so rotated
// cell offsets land on integers up to floating-point noise.
type Turns [3]int

func (t Turns) ToArray() [3]int { return [3]int(t) }

func (t Turns) Rotation() Rotation {
	r := aboutX(float64(mod4(t[0])) * 90)
	r = aboutY(float64(mod4(t[1])) * 90).Mul(r)
	r = aboutZ(float64(mod4(t[2])) * 90).Mul(r)
	return r
}

func mod4(n int) int {
	n %= 4
	if n < 0 {
		n += 4
	}
	return n
}

// Rotation is a general orientation. The runtime value is a full rotation
// matrix for robustness; the placement path only ever feeds it quarter-turn
// multiples.
type Rotation struct {
	M [3][3]float64
}

func Identity() Rotation {
	return Rotation{M: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

func aboutX(deg float64) Rotation {
	s, c := sincosDeg(deg)
	return Rotation{M: [3][3]float64{
		{1, 0, 0},
		{0, c, -s},
		{0, s, c},
	}}
}

func aboutY(deg float64) Rotation {
	s, c := sincosDeg(deg)
	return Rotation{M: [3][3]float64{
		{c, 0, s},
		{0, 1, 0},
		{-s, 0, c},
	}}
}

func aboutZ(deg float64) Rotation {
	s, c := sincosDeg(deg)
	return Rotation{M: [3][3]float64{
		{c, -s, 0},
		{s, c, 0},
		{0, 0, 1},
	}}
}

// FromYawDeg builds a rotation about world up, used for the grid origin pose.
func FromYawDeg(deg float64) Rotation { return aboutY(deg) }

func sincosDeg(deg float64) (s, c float64) {
	// Exact values at quarter-turns keep rotated cells integral.
	switch math.Mod(math.Mod(deg, 360)+360, 360) {
	case 0:
		return 0, 1
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	}
	rad := deg * math.Pi / 180
	return math.Sin(rad), math.Cos(rad)
}

func (r Rotation) Mul(o Rotation) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += r.M[i][k] * o.M[k][j]
			}
			out.M[i][j] = sum
		}
	}
	return out
}

func (r Rotation) Apply(v Vec3f) Vec3f {
	return Vec3f{
		X: r.M[0][0]*v.X + r.M[0][1]*v.Y + r.M[0][2]*v.Z,
		Y: r.M[1][0]*v.X + r.M[1][1]*v.Y + r.M[1][2]*v.Z,
		Z: r.M[2][0]*v.X + r.M[2][1]*v.Y + r.M[2][2]*v.Z,
	}
}

// Inverse of a rotation matrix is its transpose.
func (r Rotation) Inverse() Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.M[i][j] = r.M[j][i]
		}
	}
	return out
}

// Up is the piece's local up axis after rotation.
func (r Rotation) Up() Vec3f { return r.Apply(Vec3f{X: 0, Y: 1, Z: 0}) }

// roundCell rounds half away from zero per component, so quarter-turn
// results snap back onto the lattice regardless of sign.
func roundCell(v Vec3f) Vec3i {
	return Vec3i{
		X: int(math.Round(v.X)),
		Y: int(math.Round(v.Y)),
		Z: int(math.Round(v.Z)),
	}
}
