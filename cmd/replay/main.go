package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"roomforge/internal/persistence/snapshot"
	"roomforge/internal/sim/catalogs"
	"roomforge/internal/sim/room"
	"roomforge/internal/sim/tuning"
)

// Replays a recorded event log into a fresh engine and verifies the state
// digest after every logged tick, proving the engine is deterministic over
// the recorded action stream.
func main() {
	var (
		layoutPath = flag.String("layout", "", "path to .layout.zst to print and seed from (optional)")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	)
	flag.Parse()

	if *layoutPath == "" && *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -layout or -events")
		os.Exit(2)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			tune = tuning.Defaults()
		} else {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
	}

	engine, err := room.New(room.EngineConfig{
		ID:             "replay",
		GridSize:       room.Vec3i{X: tune.GridSize[0], Y: tune.GridSize[1], Z: tune.GridSize[2]},
		CellSizeM:      tune.CellSizeM,
		TickRateHz:     tune.TickRateHz,
		UndoHistoryCap: tune.UndoHistoryCap,
		ActMaxPerTick:  tune.ActMaxPerTick,
	}, cats)
	if err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}

	if *layoutPath != "" {
		lay, err := snapshot.ReadLayout(*layoutPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read layout:", err)
			os.Exit(1)
		}
		fmt.Printf("layout v%d room=%s tick=%d grid=%v placements=%d history=%d digest=%s\n",
			lay.Header.Version, lay.Header.RoomID, lay.Header.Tick, lay.GridSize,
			len(lay.Placements), len(lay.History), lay.Digest)
		for _, p := range lay.Placements {
			fmt.Printf("  #%d %s turns=%v cells=%v\n", p.ID, p.Piece, p.Turns, p.Cells)
		}
		if err := engine.ImportLayout(lay); err != nil {
			fmt.Fprintln(os.Stderr, "import layout:", err)
			os.Exit(1)
		}
	}

	if *eventsDir == "" {
		return
	}

	files, err := listEventFiles(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *eventsDir)
		os.Exit(1)
	}

	startTick := engine.CurrentTick()
	var checked uint64
	for _, path := range files {
		if err := replayFile(engine, path, startTick, &checked); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: checked=%d ticks\n", checked)
}

func listEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func replayFile(engine *room.Engine, path string, startTick uint64, checked *uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		line := sc.Bytes()
		var entry room.TickLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if entry.Tick < startTick {
			continue
		}

		acts := make([]room.ActionEnvelope, 0, len(entry.Actions))
		for _, ra := range entry.Actions {
			acts = append(acts, room.ActionEnvelope{SessionID: ra.SessionID, Act: ra.Act})
		}

		_, gotDigest := engine.StepOnce(acts)
		*checked++
		if gotDigest != entry.Digest {
			return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", entry.Tick, gotDigest, entry.Digest)
		}
	}
	return sc.Err()
}
