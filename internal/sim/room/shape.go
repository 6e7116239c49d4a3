package room

// CellsAt computes the absolute cells a template occupies when anchored at
// a target cell under a rotation. Each local offset is taken relative to
// the pivot, rotated, rounded back onto the lattice and shifted by the
// anchor. Pivot-relative placement keeps negative relative offsets valid
// (the anchor absorbs them), so a piece rotates in place instead of
// jumping; no min-corner renormalization happens here.
//
// A template with no offsets is invalid and yields nil.
func CellsAt(tpl *PieceTemplate, anchor Vec3i, rot Rotation) []Vec3i {
	if tpl == nil || len(tpl.Offsets) == 0 {
		return nil
	}
	out := make([]Vec3i, 0, len(tpl.Offsets))
	for _, off := range tpl.Offsets {
		rel := Vec3f{
			X: float64(off.X - tpl.Pivot.X),
			Y: float64(off.Y - tpl.Pivot.Y),
			Z: float64(off.Z - tpl.Pivot.Z),
		}
		out = append(out, anchor.Add(roundCell(rot.Apply(rel))))
	}
	return out
}
