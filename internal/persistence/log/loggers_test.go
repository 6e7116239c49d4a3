package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"roomforge/internal/protocol"
	"roomforge/internal/sim/room"
)

func readJSONL(t *testing.T, dir string, out func([]byte)) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("log files = %v, %v", matches, err)
	}
	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for sc.Scan() {
		out(sc.Bytes())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
}

func TestTickLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)

	want := []room.TickLogEntry{
		{Tick: 0, Digest: "d0", Actions: []room.RecordedAction{{
			SessionID: "S1",
			Act: protocol.ActMsg{Type: protocol.TypeAct, Actions: []protocol.ActionReq{
				{ID: "a1", Kind: protocol.ActConfirm, Piece: "CRATE", Anchor: [3]int{0, 0, 0}},
			}},
		}}},
		{Tick: 3, Digest: "d3", Actions: []room.RecordedAction{{
			SessionID: "S1",
			Act: protocol.ActMsg{Type: protocol.TypeAct, Actions: []protocol.ActionReq{
				{ID: "a2", Kind: protocol.ActUndo},
			}},
		}}},
	}
	for _, e := range want {
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write tick %d: %v", e.Tick, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []room.TickLogEntry
	readJSONL(t, filepath.Join(dir, "events"), func(line []byte) {
		var e room.TickLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		got = append(got, e)
	})
	if len(got) != len(want) {
		t.Fatalf("entries = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Tick != want[i].Tick || got[i].Digest != want[i].Digest {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
		if len(got[i].Actions) != 1 || got[i].Actions[0].SessionID != "S1" {
			t.Fatalf("entry %d actions = %+v", i, got[i].Actions)
		}
	}
}

func TestAuditLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)

	entries := []room.AuditEntry{
		{Tick: 1, Actor: "S1", Action: "PLACE", PlacementID: 1, Piece: "CRATE", Cells: [][3]int{{0, 0, 0}}},
		{Tick: 2, Actor: "S1", Action: "UNDO", PlacementID: 1},
	}
	for _, e := range entries {
		if err := l.WriteAudit(e); err != nil {
			t.Fatalf("write audit: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	count := 0
	readJSONL(t, filepath.Join(dir, "audit"), func(line []byte) {
		var e room.AuditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if e.Tick != entries[count].Tick || e.Action != entries[count].Action {
			t.Fatalf("entry %d = %+v", count, e)
		}
		count++
	})
	if count != len(entries) {
		t.Fatalf("entries = %d, want %d", count, len(entries))
	}
}
