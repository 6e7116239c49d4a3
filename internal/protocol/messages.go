package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	GridParams      GridParams `json:"grid_params"`
	Catalog         DigestRef  `json:"catalog"`
}

type GridParams struct {
	TickRateHz int        `json:"tick_rate_hz"`
	GridSize   [3]int     `json:"grid_size"`
	CellSizeM  float64    `json:"cell_size_m"`
	Origin     OriginPose `json:"origin"`
}

// OriginPose anchors grid cell (0,0,0) in continuous space: a yaw about
// world up plus a translation. Quarter-turn piece rotations never touch it.
type OriginPose struct {
	YawDeg float64    `json:"yaw_deg"`
	Pos    [3]float64 `json:"pos"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// ACT (client -> server): a batch of placement actions for one tick.
type ActMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id,omitempty"`
	Actions         []ActionReq `json:"actions"`
}

// Action kinds.
const (
	ActPreview = "PREVIEW"
	ActConfirm = "CONFIRM"
	ActPickUp  = "PICK_UP"
	ActUndo    = "UNDO"
	ActSave    = "SAVE"
)

type ActionReq struct {
	ID     string `json:"id"` // client correlation id
	Kind   string `json:"kind"`
	Piece  string `json:"piece,omitempty"`
	Anchor [3]int `json:"anchor,omitempty"`
	Turns  [3]int `json:"turns,omitempty"` // quarter-turns around X, Y, Z
	// PlacementID targets PICK_UP, or reuses an id on CONFIRM after a pick-up.
	PlacementID int64 `json:"placement_id,omitempty"`
}

// RESULT (server -> client): one entry per submitted action, same order.
type ResultMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	SessionID       string         `json:"session_id"`
	Results         []ActionResult `json:"results"`
}

type ActionResult struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	OK          bool     `json:"ok"`
	Reason      string   `json:"reason,omitempty"` // R_* reject reason
	Error       string   `json:"error,omitempty"`  // E_* transport error
	PlacementID int64    `json:"placement_id,omitempty"`
	Cells       [][3]int `json:"cells,omitempty"`
}

// EVENT (server -> client): post-commit notifications for the presentation
// layer (spawn/remove visuals, audio cues). The core never awaits these.
type EventMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Tick            uint64           `json:"tick"`
	Events          []PlacementEvent `json:"events"`
}

// Placement event kinds.
const (
	EventPlaced  = "PLACED"
	EventRemoved = "REMOVED"
	EventUndone  = "UNDONE"
)

type PlacementEvent struct {
	Kind        string `json:"kind"`
	PlacementID int64  `json:"placement_id"`
	Piece       string `json:"piece"`
}

// STATE (server -> client): the live placement table plus the undo history,
// broadcast after every tick that mutated the grid.
type StateMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Tick            uint64           `json:"tick"`
	Placements      []PlacementState `json:"placements"`
	History         []int64          `json:"history"`
}

type PlacementState struct {
	ID    int64    `json:"id"`
	Piece string   `json:"piece"`
	Turns [3]int   `json:"turns"`
	Cells [][3]int `json:"cells"`
}
