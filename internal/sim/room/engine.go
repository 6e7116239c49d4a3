package room

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"roomforge/internal/persistence/snapshot"
	"roomforge/internal/protocol"
	"roomforge/internal/sim/catalogs"
)

type EngineConfig struct {
	ID         string
	GridSize   Vec3i
	CellSizeM  float64
	TickRateHz int

	OriginYawDeg float64
	OriginPos    Vec3f

	UndoHistoryCap     int
	ActMaxPerTick      int
	SnapshotEveryTicks int
}

type ActionEnvelope struct {
	SessionID string
	Act       protocol.ActMsg
}

type JoinRequest struct {
	Name string
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// TickLogEntry records one stepped tick with its action stream and the
// post-step state digest, enough to replay and verify a session.
type TickLogEntry struct {
	Tick    uint64           `json:"tick"`
	Actions []RecordedAction `json:"actions"`
	Digest  string           `json:"digest"`
}

type RecordedAction struct {
	SessionID string          `json:"session_id"`
	Act       protocol.ActMsg `json:"act"`
}

// AuditEntry records one committed mutation of the grid.
type AuditEntry struct {
	Tick        uint64   `json:"tick"`
	Actor       string   `json:"actor"`
	Action      string   `json:"action"` // "PLACE","REMOVE","UNDO"
	PlacementID int64    `json:"placement_id"`
	Piece       string   `json:"piece,omitempty"`
	Turns       [3]int   `json:"turns,omitempty"`
	Cells       [][3]int `json:"cells,omitempty"`
}

type TickLogger interface {
	WriteTick(TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(AuditEntry) error
}

type clientState struct {
	Out chan []byte
}

// Engine owns the grid, the validator and the registry, and advances them
// one explicit step at a time. All state is mutated from the single
// goroutine that calls Step*/Run; a concurrent host must serialize calls
// through the channels.
type Engine struct {
	cfg  EngineConfig
	pose Pose

	templates     map[string]*PieceTemplate
	catalogDigest string
	catalogCount  int

	grid      *Grid
	reg       *Registry
	validator *Validator

	tick           atomic.Uint64
	nextSessionNum atomic.Uint64
	clients        map[string]*clientState

	inbox chan ActionEnvelope
	join  chan JoinRequest
	leave chan string
	stop  chan struct{}

	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.LayoutV1

	// mutatedSinceSnapshot gates periodic layout exports.
	mutatedSinceSnapshot bool
}

func New(cfg EngineConfig, cats *catalogs.Catalogs) (*Engine, error) {
	if cfg.GridSize.X <= 0 || cfg.GridSize.Y <= 0 || cfg.GridSize.Z <= 0 {
		return nil, fmt.Errorf("invalid grid size %v", cfg.GridSize)
	}
	if cfg.CellSizeM <= 0 {
		return nil, fmt.Errorf("invalid cell size %v", cfg.CellSizeM)
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 30
	}

	templates := map[string]*PieceTemplate{}
	count := 0
	digest := ""
	if cats != nil {
		digest = cats.Pieces.Digest
		count = len(cats.Pieces.Palette)
		for _, id := range cats.Pieces.Palette {
			def := cats.Pieces.Defs[id]
			tpl := &PieceTemplate{
				ID:               def.ID,
				Pivot:            Vec3i{def.Pivot[0], def.Pivot[1], def.Pivot[2]},
				FragileTop:       def.FragileTop,
				MustBeStanding:   def.MustBeStanding,
				ForbidUpsideDown: def.ForbidUpsideDown,
			}
			for _, cell := range def.Cells {
				tpl.Offsets = append(tpl.Offsets, Vec3i{cell[0], cell[1], cell[2]})
			}
			templates[def.ID] = tpl
		}
	}

	grid := NewGrid(cfg.GridSize.X, cfg.GridSize.Y, cfg.GridSize.Z, cfg.CellSizeM)
	reg := NewRegistry(grid, cfg.UndoHistoryCap)

	e := &Engine{
		cfg:           cfg,
		pose:          Pose{Rot: FromYawDeg(cfg.OriginYawDeg), Origin: cfg.OriginPos},
		templates:     templates,
		catalogDigest: digest,
		catalogCount:  count,
		grid:          grid,
		reg:           reg,
		clients:       map[string]*clientState{},
		inbox:         make(chan ActionEnvelope, 256),
		join:          make(chan JoinRequest, 16),
		leave:         make(chan string, 16),
		stop:          make(chan struct{}),
	}
	e.validator = &Validator{
		Grid: grid,
		TemplateOf: func(id int64) (*PieceTemplate, bool) {
			p, ok := reg.Get(id)
			if !ok {
				return nil, false
			}
			tpl, ok := templates[p.Piece]
			return tpl, ok
		},
	}
	return e, nil
}

func (e *Engine) SetTickLogger(l TickLogger)                  { e.tickLogger = l }
func (e *Engine) SetAuditLogger(l AuditLogger)                { e.auditLogger = l }
func (e *Engine) SetSnapshotSink(ch chan<- snapshot.LayoutV1) { e.snapshotSink = ch }

func (e *Engine) Inbox() chan<- ActionEnvelope { return e.inbox }
func (e *Engine) Join() chan<- JoinRequest     { return e.join }
func (e *Engine) Leave() chan<- string         { return e.leave }

func (e *Engine) CurrentTick() uint64 { return e.tick.Load() }

func (e *Engine) Grid() *Grid     { return e.grid }
func (e *Engine) Pose() Pose      { return e.pose }
func (e *Engine) History() []int64 { return e.reg.History() }

// Template returns an authored piece template by id.
func (e *Engine) Template(piece string) (*PieceTemplate, bool) {
	tpl, ok := e.templates[piece]
	return tpl, ok
}

// PlacementCells exposes the absolute cells of a live placement for the
// presentation layer to position a visual instance.
func (e *Engine) PlacementCells(id int64) ([]Vec3i, bool) {
	return e.grid.Cells(id)
}

func (e *Engine) Placements() []*Placement { return e.reg.Placements() }

// Run drives the engine loop: pending requests accumulate between ticks
// and are applied in arrival order once per tick.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case req := <-e.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-e.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-e.inbox:
			pendingActions = append(pendingActions, env)
		case <-ticker.C:
			e.step(pendingJoins, pendingLeaves, pendingActions)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActions = pendingActions[:0]
		}
	}
}

func (e *Engine) Stop() { close(e.stop) }

// StepOnce advances exactly one tick with the given action stream and
// returns the stepped tick plus the post-step state digest. Used by tests
// and the replay tool.
func (e *Engine) StepOnce(actions []ActionEnvelope) (uint64, string) {
	e.step(nil, nil, actions)
	return e.tick.Load() - 1, e.stateDigest()
}

func (e *Engine) joinSession(name string, out chan []byte) JoinResponse {
	if name == "" {
		name = "client"
	}
	sessionID := fmt.Sprintf("S%d", e.nextSessionNum.Add(1))
	if out != nil {
		e.clients[sessionID] = &clientState{Out: out}
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		GridParams: protocol.GridParams{
			TickRateHz: e.cfg.TickRateHz,
			GridSize:   e.cfg.GridSize.ToArray(),
			CellSizeM:  e.cfg.CellSizeM,
			Origin: protocol.OriginPose{
				YawDeg: e.cfg.OriginYawDeg,
				Pos:    [3]float64{e.cfg.OriginPos.X, e.cfg.OriginPos.Y, e.cfg.OriginPos.Z},
			},
		},
		Catalog: protocol.DigestRef{Digest: e.catalogDigest, Count: e.catalogCount},
	}
	return JoinResponse{Welcome: welcome}
}

// sortedSessionIDs keeps broadcast order deterministic.
func (e *Engine) sortedSessionIDs() []string {
	ids := make([]string, 0, len(e.clients))
	for id := range e.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
