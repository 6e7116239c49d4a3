package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"roomforge/internal/persistence/indexdb"
	persistlog "roomforge/internal/persistence/log"
	"roomforge/internal/persistence/snapshot"
	"roomforge/internal/protocol"
	"roomforge/internal/sim/catalogs"
	"roomforge/internal/sim/room"
	"roomforge/internal/sim/tuning"
	"roomforge/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		roomID     = flag.String("room", "room_1", "room id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (audits + layout metadata)")

		layoutPath = flag.String("layout", "", "path to layout to load (optional)")
		loadLatest = flag.Bool("load_latest_layout", true, "load latest layout from data dir if present (when -layout is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	roomDir := filepath.Join(*dataDir, "rooms", *roomID)
	_ = os.MkdirAll(roomDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if tune.ProtocolVersion != "" && tune.ProtocolVersion != protocol.Version {
		logger.Fatalf("tuning protocol_version %q does not match server %q", tune.ProtocolVersion, protocol.Version)
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(roomDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index db: upsert catalogs: %v", err)
		}
	}

	engine, err := room.New(room.EngineConfig{
		ID:                 *roomID,
		GridSize:           room.Vec3i{X: tune.GridSize[0], Y: tune.GridSize[1], Z: tune.GridSize[2]},
		CellSizeM:          tune.CellSizeM,
		TickRateHz:         tune.TickRateHz,
		OriginYawDeg:       tune.OriginYawDeg,
		OriginPos:          room.Vec3f{X: tune.OriginPos[0], Y: tune.OriginPos[1], Z: tune.OriginPos[2]},
		UndoHistoryCap:     tune.UndoHistoryCap,
		ActMaxPerTick:      tune.ActMaxPerTick,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
	}, cats)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	layoutsDir := filepath.Join(roomDir, "layouts")
	layoutToLoad := strings.TrimSpace(*layoutPath)
	if layoutToLoad == "" && *loadLatest {
		layoutToLoad = snapshot.LatestLayout(layoutsDir)
	}
	if layoutToLoad != "" {
		lay, err := snapshot.ReadLayout(layoutToLoad)
		if err != nil {
			logger.Fatalf("read layout: %v", err)
		}
		if lay.Header.RoomID != "" && lay.Header.RoomID != *roomID {
			logger.Fatalf("layout room id mismatch: flag=%s layout=%s", *roomID, lay.Header.RoomID)
		}
		if lay.PiecesDigest != "" && lay.PiecesDigest != cats.Pieces.Digest {
			logger.Printf("layout pieces digest differs from catalog; placements may reference changed pieces")
		}
		if err := engine.ImportLayout(lay); err != nil {
			logger.Fatalf("import layout: %v", err)
		}
		logger.Printf("resumed layout %s: tick=%d placements=%d", layoutToLoad, lay.Header.Tick, len(lay.Placements))
	}

	tickLog := persistlog.NewTickLogger(roomDir)
	defer tickLog.Close()
	engine.SetTickLogger(tickLog)

	auditLog := persistlog.NewAuditLogger(roomDir)
	defer auditLog.Close()
	engine.SetAuditLogger(auditLoggers{auditLog, idx})

	snapCh := make(chan snapshot.LayoutV1, 4)
	engine.SetSnapshotSink(snapCh)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		for lay := range snapCh {
			path := snapshot.LayoutPath(layoutsDir, lay.Header.Tick)
			if err := snapshot.WriteLayout(path, lay); err != nil {
				logger.Printf("write layout: %v", err)
				continue
			}
			logger.Printf("layout saved: %s placements=%d", path, len(lay.Placements))
			if idx != nil {
				idx.RecordLayout(path, lay)
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("engine: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", ws.NewServer(engine, logger).Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Printf("listening on %s (room=%s grid=%v)", *addr, *roomID, tune.GridSize)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Printf("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	engine.Stop()
	cancel()
	// The tick loop owns all engine state; wait for it to return before
	// reading the grid or closing the snapshot sink.
	<-engineDone

	// Final layout so a restart resumes exactly where we stopped.
	lay := engine.ExportLayout()
	path := snapshot.LayoutPath(layoutsDir, lay.Header.Tick)
	if err := snapshot.WriteLayout(path, lay); err != nil {
		logger.Printf("final layout: %v", err)
	} else {
		logger.Printf("final layout saved: %s", path)
		if idx != nil {
			idx.RecordLayout(path, lay)
		}
	}
	close(snapCh)
	<-snapDone
}

// auditLoggers fans one audit entry out to the JSONL log and the sqlite
// index.
type auditLoggers struct {
	jsonl *persistlog.AuditLogger
	idx   *indexdb.SQLiteIndex
}

func (a auditLoggers) WriteAudit(e room.AuditEntry) error {
	err := a.jsonl.WriteAudit(e)
	if a.idx != nil {
		_ = a.idx.WriteAudit(e)
	}
	return err
}
