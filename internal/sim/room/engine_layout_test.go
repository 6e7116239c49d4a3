package room

import (
	"testing"

	"roomforge/internal/persistence/snapshot"
)

func TestEngine_LayoutRoundTrip(t *testing.T) {
	src := newTestEngine(t)
	for _, acts := range scriptedTicks() {
		src.StepOnce(acts)
	}
	_, want := src.StepOnce(nil)

	lay := src.ExportLayout()
	if lay.Digest != want {
		t.Fatalf("export digest %s != live digest %s", lay.Digest, want)
	}
	if lay.Header.Tick != src.CurrentTick() {
		t.Fatalf("header tick = %d, want %d", lay.Header.Tick, src.CurrentTick())
	}

	dst := newTestEngine(t)
	if err := dst.ImportLayout(lay); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := dst.stateDigest(); got != want {
		t.Fatalf("imported digest %s != %s", got, want)
	}
	if dst.CurrentTick() != lay.Header.Tick {
		t.Fatalf("tick not restored: %d", dst.CurrentTick())
	}

	// Undo order survives the round trip.
	wantHist := src.History()
	gotHist := dst.History()
	if len(wantHist) != len(gotHist) {
		t.Fatalf("history length %d != %d", len(gotHist), len(wantHist))
	}
	for i := range wantHist {
		if wantHist[i] != gotHist[i] {
			t.Fatalf("history[%d] = %d, want %d", i, gotHist[i], wantHist[i])
		}
	}
}

func TestEngine_ImportRejectsNonEmpty(t *testing.T) {
	e := newTestEngine(t)
	if _, v := e.Commit(Candidate{Piece: "CRATE", Anchor: Vec3i{0, 0, 0}}, 0); !v.OK {
		t.Fatalf("seed commit failed: %+v", v)
	}
	if err := e.ImportLayout(newTestEngine(t).ExportLayout()); err == nil {
		t.Fatalf("import into a non-empty engine must fail")
	}
}

func TestEngine_ImportRejectsMismatchedGrid(t *testing.T) {
	src := newTestEngine(t)
	lay := src.ExportLayout()

	lay.GridSize = [3]int{2, 2, 2}
	if err := newTestEngine(t).ImportLayout(lay); err == nil {
		t.Fatalf("grid size mismatch must fail")
	}

	lay = src.ExportLayout()
	lay.CellSizeM = 1.0
	if err := newTestEngine(t).ImportLayout(lay); err == nil {
		t.Fatalf("cell size mismatch must fail")
	}
}

func TestEngine_ImportRejectsOverlap(t *testing.T) {
	lay := newTestEngine(t).ExportLayout()
	lay.Placements = []snapshot.PlacementV1{
		{ID: 1, Piece: "CRATE", Cells: [][3]int{{0, 0, 0}}},
		{ID: 2, Piece: "CRATE", Cells: [][3]int{{0, 0, 0}}},
	}
	lay.NextID = 2
	if err := newTestEngine(t).ImportLayout(lay); err == nil {
		t.Fatalf("overlapping placements must fail")
	}
}

func TestEngine_ImportRejectsCorruptOccupancy(t *testing.T) {
	src := newTestEngine(t)
	if _, v := src.Commit(Candidate{Piece: "CRATE", Anchor: Vec3i{0, 0, 0}}, 0); !v.OK {
		t.Fatalf("seed commit failed: %+v", v)
	}
	lay := src.ExportLayout()

	corrupt := lay
	corrupt.OccupancyRLE = "!!!"
	if err := newTestEngine(t).ImportLayout(corrupt); err == nil {
		t.Fatalf("undecodable occupancy must fail")
	}

	// A mask that disagrees with the placement table must fail too.
	stale := newTestEngine(t).ExportLayout()
	corrupt = lay
	corrupt.OccupancyRLE = stale.OccupancyRLE
	if err := newTestEngine(t).ImportLayout(corrupt); err == nil {
		t.Fatalf("occupancy disagreeing with placements must fail")
	}
}

func TestEngine_ImportRejectsUnknownPiece(t *testing.T) {
	lay := newTestEngine(t).ExportLayout()
	lay.Placements = []snapshot.PlacementV1{
		{ID: 1, Piece: "NO_SUCH", Cells: [][3]int{{0, 0, 0}}},
	}
	lay.NextID = 1
	if err := newTestEngine(t).ImportLayout(lay); err == nil {
		t.Fatalf("unknown piece must fail")
	}
}
