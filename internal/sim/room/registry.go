package room

import (
	"sort"

	"roomforge/internal/protocol"
)

// Placement is a committed, id-tagged occupation of cells. It is only ever
// created whole on confirm and destroyed whole on removal; moving a piece
// is remove-then-reconfirm.
type Placement struct {
	ID    int64
	Piece string
	Turns Turns
	Cells []Vec3i
}

// Event is a post-commit notification for the presentation layer. Events
// accumulate during a step and are drained by the host; the registry never
// awaits consumers.
type Event struct {
	Kind        string // protocol.EventPlaced / EventRemoved / EventUndone
	PlacementID int64
	Piece       string
}

// Registry records successful placements as an ordered history and owns
// undo. The grid keeps the occupancy and id -> cells mapping; the registry
// keeps only metadata and ordering, so its history is always a subset of
// the grid's live ids.
type Registry struct {
	grid       *Grid
	placements map[int64]*Placement
	history    []int64
	historyCap int
	nextID     int64
	events     []Event
}

// NewRegistry creates a registry over a grid. historyCap bounds the undo
// history (oldest entries stop being undoable); zero means unbounded.
func NewRegistry(grid *Grid, historyCap int) *Registry {
	return &Registry{
		grid:       grid,
		placements: map[int64]*Placement{},
		historyCap: historyCap,
	}
}

// Confirm commits an already-validated cell set and returns the new
// placement id. Ids are positive and monotonically assigned; an id is never
// reused while any placement is live under it.
func (r *Registry) Confirm(tpl *PieceTemplate, cells []Vec3i, turns Turns) int64 {
	r.nextID++
	id := r.nextID
	r.commit(id, tpl.ID, cells, turns)
	return id
}

// ConfirmAs commits under a caller-chosen id, used when a picked-up piece
// is re-placed: the relocated piece is logically the same object and keeps
// its id. False if the id is invalid or still live.
func (r *Registry) ConfirmAs(id int64, tpl *PieceTemplate, cells []Vec3i, turns Turns) bool {
	if id <= 0 {
		return false
	}
	if _, live := r.placements[id]; live {
		return false
	}
	if id > r.nextID {
		r.nextID = id
	}
	r.commit(id, tpl.ID, cells, turns)
	return true
}

func (r *Registry) commit(id int64, piece string, cells []Vec3i, turns Turns) {
	r.grid.Place(id, cells)
	p := &Placement{ID: id, Piece: piece, Turns: turns}
	p.Cells, _ = r.grid.Cells(id)
	r.placements[id] = p
	r.history = append(r.history, id)
	if r.historyCap > 0 && len(r.history) > r.historyCap {
		r.history = r.history[1:]
	}
	r.events = append(r.events, Event{Kind: protocol.EventPlaced, PlacementID: id, Piece: piece})
}

// Undo pops the most recent history entry and removes its placement.
// Returns the undone id for the caller to discard external state; false on
// empty history.
func (r *Registry) Undo() (int64, bool) {
	if len(r.history) == 0 {
		return 0, false
	}
	id := r.history[len(r.history)-1]
	r.history = r.history[:len(r.history)-1]
	p := r.placements[id]
	r.grid.Remove(id)
	delete(r.placements, id)
	piece := ""
	if p != nil {
		piece = p.Piece
	}
	r.events = append(r.events, Event{Kind: protocol.EventUndone, PlacementID: id, Piece: piece})
	return id, true
}

// RemoveByID removes an arbitrary live placement, e.g. when a piece is
// picked back up for relocation. The id is also compacted out of the
// history; entries placed after it stay undoable in their original order.
func (r *Registry) RemoveByID(id int64) bool {
	p, ok := r.placements[id]
	if !ok {
		return false
	}
	r.grid.Remove(id)
	delete(r.placements, id)
	for i, h := range r.history {
		if h == id {
			r.history = append(r.history[:i], r.history[i+1:]...)
			break
		}
	}
	r.events = append(r.events, Event{Kind: protocol.EventRemoved, PlacementID: id, Piece: p.Piece})
	return true
}

// History returns the undo order, oldest first.
func (r *Registry) History() []int64 {
	out := make([]int64, len(r.history))
	copy(out, r.history)
	return out
}

// Get returns a live placement by id.
func (r *Registry) Get(id int64) (*Placement, bool) {
	p, ok := r.placements[id]
	return p, ok
}

// Placements returns all live placements ordered by id.
func (r *Registry) Placements() []*Placement {
	out := make([]*Placement, 0, len(r.placements))
	for _, p := range r.placements {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NextID is the highest id assigned so far.
func (r *Registry) NextID() int64 { return r.nextID }

// DrainEvents returns and clears the pending post-commit events.
func (r *Registry) DrainEvents() []Event {
	if len(r.events) == 0 {
		return nil
	}
	out := r.events
	r.events = nil
	return out
}
