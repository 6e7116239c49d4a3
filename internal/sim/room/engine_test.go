package room

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"roomforge/internal/protocol"
	"roomforge/internal/sim/catalogs"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	e, err := New(EngineConfig{
		ID:             "test-room",
		GridSize:       Vec3i{6, 4, 10},
		CellSizeM:      0.5,
		TickRateHz:     30,
		UndoHistoryCap: 64,
		ActMaxPerTick:  16,
	}, cats)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestEngine_PreviewDoesNotMutate(t *testing.T) {
	e := newTestEngine(t)
	v := e.Step(Candidate{Piece: "CRATE", Anchor: Vec3i{0, 0, 0}})
	if !v.OK {
		t.Fatalf("preview verdict = %+v", v)
	}
	if e.Grid().OccupiedCount() != 0 {
		t.Fatalf("preview must not occupy cells")
	}
	if v = e.Step(Candidate{Piece: "NO_SUCH"}); v.OK || v.Reason != protocol.ReasonInvalidShape {
		t.Fatalf("unknown piece verdict = %+v", v)
	}
}

func TestEngine_CommitPickUpRelocate(t *testing.T) {
	e := newTestEngine(t)
	id, v := e.Commit(Candidate{Piece: "CRATE", Anchor: Vec3i{1, 0, 1}}, 0)
	if !v.OK || id == 0 {
		t.Fatalf("commit = %d, %+v", id, v)
	}
	if !e.PickUp(id) {
		t.Fatalf("pick up failed")
	}
	if e.PickUp(id) {
		t.Fatalf("double pick up must fail")
	}
	back, v := e.Commit(Candidate{Piece: "CRATE", Anchor: Vec3i{2, 0, 2}}, id)
	if !v.OK || back != id {
		t.Fatalf("relocate = %d, %+v, want id %d", back, v, id)
	}
	cells, ok := e.PlacementCells(id)
	if !ok || len(cells) != 1 || cells[0] != (Vec3i{2, 0, 2}) {
		t.Fatalf("relocated cells = %v", cells)
	}
	undone, ok := e.Undo()
	if !ok || undone != id {
		t.Fatalf("undo = (%d,%v)", undone, ok)
	}
	if e.Grid().OccupiedCount() != 0 {
		t.Fatalf("grid not empty after undo")
	}
}

func TestEngine_ActionResults(t *testing.T) {
	e := newTestEngine(t)

	res := e.applyAction("s1", protocol.ActionReq{ID: "a1", Kind: protocol.ActConfirm, Piece: "NO_SUCH"}, protocol.ActionResult{ID: "a1", Kind: protocol.ActConfirm})
	if res.OK || res.Error != protocol.ErrUnknownPiece {
		t.Fatalf("unknown piece result = %+v", res)
	}

	res = e.applyAction("s1", protocol.ActionReq{ID: "a2", Kind: protocol.ActPickUp, PlacementID: 42}, protocol.ActionResult{})
	if res.OK || res.Error != protocol.ErrUnknownID {
		t.Fatalf("unknown id result = %+v", res)
	}

	res = e.applyAction("s1", protocol.ActionReq{ID: "a3", Kind: protocol.ActUndo}, protocol.ActionResult{})
	if res.OK || res.Error != protocol.ErrEmptyHistory {
		t.Fatalf("empty history result = %+v", res)
	}

	res = e.applyAction("s1", protocol.ActionReq{ID: "a4", Kind: "DANCE"}, protocol.ActionResult{})
	if res.OK || res.Error != protocol.ErrProtoBadRequest {
		t.Fatalf("unknown kind result = %+v", res)
	}

	res = e.applyAction("s1", protocol.ActionReq{
		ID: "a5", Kind: protocol.ActConfirm, Piece: "CRATE", Anchor: [3]int{0, 0, 0},
	}, protocol.ActionResult{})
	if !res.OK || res.PlacementID == 0 || len(res.Cells) != 1 {
		t.Fatalf("confirm result = %+v", res)
	}
}

func TestEngine_RateLimit(t *testing.T) {
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	e, err := New(EngineConfig{GridSize: Vec3i{6, 4, 10}, CellSizeM: 0.5, ActMaxPerTick: 1}, cats)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	results := e.applyAct(0, ActionEnvelope{SessionID: "s1", Act: protocol.ActMsg{Actions: []protocol.ActionReq{
		{ID: "a1", Kind: protocol.ActConfirm, Piece: "CRATE", Anchor: [3]int{0, 0, 0}},
		{ID: "a2", Kind: protocol.ActConfirm, Piece: "CRATE", Anchor: [3]int{1, 0, 0}},
	}}})
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	if !results[0].OK {
		t.Fatalf("first action should land: %+v", results[0])
	}
	if results[1].OK || results[1].Error != protocol.ErrRateLimit {
		t.Fatalf("second action should be rate limited: %+v", results[1])
	}
	if e.Grid().OccupiedCount() != 1 {
		t.Fatalf("only the first action may mutate")
	}
}

func scriptedTicks() [][]ActionEnvelope {
	act := func(reqs ...protocol.ActionReq) []ActionEnvelope {
		return []ActionEnvelope{{SessionID: "s1", Act: protocol.ActMsg{Actions: reqs}}}
	}
	return [][]ActionEnvelope{
		act(protocol.ActionReq{ID: "a1", Kind: protocol.ActConfirm, Piece: "CRATE", Anchor: [3]int{0, 0, 0}}),
		act(protocol.ActionReq{ID: "a2", Kind: protocol.ActConfirm, Piece: "CRATE", Anchor: [3]int{0, 1, 0}}),
		nil,
		act(protocol.ActionReq{ID: "a3", Kind: protocol.ActConfirm, Piece: "SOFA", Anchor: [3]int{2, 0, 5}, Turns: [3]int{0, 1, 0}}),
		act(protocol.ActionReq{ID: "a4", Kind: protocol.ActUndo}),
		act(
			protocol.ActionReq{ID: "a5", Kind: protocol.ActPickUp, PlacementID: 2},
			protocol.ActionReq{ID: "a6", Kind: protocol.ActConfirm, Piece: "CRATE", Anchor: [3]int{3, 0, 3}, PlacementID: 2},
		),
	}
}

func TestEngine_DeterministicReplay(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)

	for i, acts := range scriptedTicks() {
		_, da := a.StepOnce(acts)
		_, db := b.StepOnce(acts)
		if da != db {
			t.Fatalf("tick %d: digests diverge\n a=%s\n b=%s", i, da, db)
		}
	}

	// Idle ticks never perturb the digest.
	_, before := a.StepOnce(nil)
	_, after := a.StepOnce(nil)
	if before != after {
		t.Fatalf("idle tick changed digest: %s -> %s", before, after)
	}

	// A diverging action stream is visible in the digest.
	_, da := a.StepOnce([]ActionEnvelope{{SessionID: "s1", Act: protocol.ActMsg{Actions: []protocol.ActionReq{
		{ID: "x", Kind: protocol.ActConfirm, Piece: "CRATE", Anchor: [3]int{5, 0, 9}},
	}}}})
	_, db := b.StepOnce(nil)
	if da == db {
		t.Fatalf("diverging streams must produce different digests")
	}
}

type captureTickLog struct {
	entries []TickLogEntry
}

func (c *captureTickLog) WriteTick(e TickLogEntry) error {
	c.entries = append(c.entries, e)
	return nil
}

func TestEngine_TickLogVerifiesReplay(t *testing.T) {
	live := newTestEngine(t)
	capture := &captureTickLog{}
	live.SetTickLogger(capture)

	for _, acts := range scriptedTicks() {
		live.StepOnce(acts)
	}
	if len(capture.entries) == 0 {
		t.Fatalf("no tick log entries recorded")
	}

	replay := newTestEngine(t)
	for _, entry := range capture.entries {
		for replay.CurrentTick() < entry.Tick {
			replay.StepOnce(nil)
		}
		var acts []ActionEnvelope
		for _, ra := range entry.Actions {
			acts = append(acts, ActionEnvelope{SessionID: ra.SessionID, Act: ra.Act})
		}
		_, digest := replay.StepOnce(acts)
		if digest != entry.Digest {
			t.Fatalf("tick %d: replay digest %s != recorded %s", entry.Tick, digest, entry.Digest)
		}
	}
}

func TestEngine_StopEndsRun(t *testing.T) {
	e := newTestEngine(t)
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	// Queue work so the loop is exercising its tick path when stopped.
	e.Inbox() <- ActionEnvelope{SessionID: "s1", Act: protocol.ActMsg{Actions: []protocol.ActionReq{
		{ID: "a1", Kind: protocol.ActConfirm, Piece: "CRATE", Anchor: [3]int{0, 0, 0}},
	}}}

	e.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after stop")
	}
	// With the loop stopped, the engine is safe to read from this goroutine.
	e.ExportLayout()
}

func TestEngine_JoinAndBroadcast(t *testing.T) {
	e := newTestEngine(t)
	out := make(chan []byte, 32)
	resp := make(chan JoinResponse, 1)
	e.step([]JoinRequest{{Name: "bot", Out: out, Resp: resp}}, nil, nil)

	join := <-resp
	w := join.Welcome
	if w.Type != protocol.TypeWelcome || w.SessionID == "" {
		t.Fatalf("welcome = %+v", w)
	}
	if w.GridParams.GridSize != [3]int{6, 4, 10} || w.GridParams.CellSizeM != 0.5 {
		t.Fatalf("grid params = %+v", w.GridParams)
	}
	if w.Catalog.Digest == "" || w.Catalog.Count == 0 {
		t.Fatalf("catalog ref = %+v", w.Catalog)
	}

	e.step(nil, nil, []ActionEnvelope{{SessionID: w.SessionID, Act: protocol.ActMsg{Actions: []protocol.ActionReq{
		{ID: "a1", Kind: protocol.ActConfirm, Piece: "CRATE", Anchor: [3]int{0, 0, 0}},
	}}}})

	types := map[string]bool{}
	for len(out) > 0 {
		raw := <-out
		base, err := protocol.DecodeBase(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		types[base.Type] = true
		if base.Type == protocol.TypeResult {
			var msg protocol.ResultMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				t.Fatalf("unmarshal result: %v", err)
			}
			if len(msg.Results) != 1 || !msg.Results[0].OK {
				t.Fatalf("result msg = %+v", msg)
			}
		}
	}
	for _, want := range []string{protocol.TypeResult, protocol.TypeEvent, protocol.TypeState} {
		if !types[want] {
			t.Fatalf("missing %s broadcast, got %v", want, types)
		}
	}

	e.step(nil, []string{w.SessionID}, nil)
	if len(e.clients) != 0 {
		t.Fatalf("leave must drop the client")
	}
}
