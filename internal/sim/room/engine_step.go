package room

import (
	"encoding/json"

	"roomforge/internal/protocol"
)

// Step evaluates a candidate against the current grid without committing.
// This is the per-tick ghost-preview entry point for hosts that embed the
// engine directly instead of running the channel loop.
func (e *Engine) Step(c Candidate) Verdict {
	tpl, ok := e.templates[c.Piece]
	if !ok {
		return Verdict{Reason: protocol.ReasonInvalidShape}
	}
	return e.validator.Check(tpl, c.Anchor, c.Turns.Rotation())
}

// Commit validates a candidate and, on acceptance, commits it. reuseID > 0
// reuses a previously picked-up placement's id (relocation); 0 allocates.
func (e *Engine) Commit(c Candidate, reuseID int64) (int64, Verdict) {
	tpl, ok := e.templates[c.Piece]
	if !ok {
		return 0, Verdict{Reason: protocol.ReasonInvalidShape}
	}
	v := e.validator.Check(tpl, c.Anchor, c.Turns.Rotation())
	if !v.OK {
		return 0, v
	}
	var id int64
	if reuseID > 0 {
		if !e.reg.ConfirmAs(reuseID, tpl, v.Cells, c.Turns) {
			return 0, Verdict{Reason: protocol.ReasonBlocked, Cells: v.Cells}
		}
		id = reuseID
	} else {
		id = e.reg.Confirm(tpl, v.Cells, c.Turns)
	}
	e.mutatedSinceSnapshot = true
	e.audit("local", "PLACE", id, tpl.ID, c.Turns, v.Cells)
	return id, v
}

// PickUp removes a live placement for relocation, preserving the relative
// order of the remaining undo history.
func (e *Engine) PickUp(id int64) bool {
	p, ok := e.reg.Get(id)
	if !ok {
		return false
	}
	piece, turns, cells := p.Piece, p.Turns, p.Cells
	if !e.reg.RemoveByID(id) {
		return false
	}
	e.mutatedSinceSnapshot = true
	e.audit("local", "REMOVE", id, piece, turns, cells)
	return true
}

// Undo removes the most recent placement; false on empty history.
func (e *Engine) Undo() (int64, bool) {
	id, ok := e.reg.Undo()
	if !ok {
		return 0, false
	}
	e.mutatedSinceSnapshot = true
	e.audit("local", "UNDO", id, "", Turns{}, nil)
	return id, true
}

// DrainEvents hands the pending post-commit notifications to the caller.
func (e *Engine) DrainEvents() []Event { return e.reg.DrainEvents() }

func (e *Engine) step(joins []JoinRequest, leaves []string, actions []ActionEnvelope) {
	tick := e.tick.Load()

	for _, req := range joins {
		resp := e.joinSession(req.Name, req.Out)
		if req.Resp != nil {
			req.Resp <- resp
		}
	}
	for _, id := range leaves {
		delete(e.clients, id)
	}

	mutated := false
	for _, env := range actions {
		results := e.applyAct(tick, env)
		e.send(env.SessionID, protocol.ResultMsg{
			Type:            protocol.TypeResult,
			ProtocolVersion: protocol.Version,
			Tick:            tick,
			SessionID:       env.SessionID,
			Results:         results,
		})
	}

	if events := e.reg.DrainEvents(); len(events) > 0 {
		mutated = true
		msg := protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			Tick:            tick,
		}
		for _, ev := range events {
			msg.Events = append(msg.Events, protocol.PlacementEvent{
				Kind:        ev.Kind,
				PlacementID: ev.PlacementID,
				Piece:       ev.Piece,
			})
		}
		e.broadcast(msg)
	}

	if mutated {
		e.broadcast(e.stateMsg(tick))
	}

	if e.tickLogger != nil && len(actions) > 0 {
		entry := TickLogEntry{Tick: tick, Digest: e.stateDigest()}
		for _, env := range actions {
			entry.Actions = append(entry.Actions, RecordedAction{SessionID: env.SessionID, Act: env.Act})
		}
		_ = e.tickLogger.WriteTick(entry)
	}

	if e.snapshotSink != nil && e.cfg.SnapshotEveryTicks > 0 &&
		tick > 0 && tick%uint64(e.cfg.SnapshotEveryTicks) == 0 && e.mutatedSinceSnapshot {
		e.pushSnapshot()
	}

	e.tick.Add(1)
}

func (e *Engine) applyAct(tick uint64, env ActionEnvelope) []protocol.ActionResult {
	results := make([]protocol.ActionResult, 0, len(env.Act.Actions))
	for i, a := range env.Act.Actions {
		res := protocol.ActionResult{ID: a.ID, Kind: a.Kind}
		if e.cfg.ActMaxPerTick > 0 && i >= e.cfg.ActMaxPerTick {
			res.Error = protocol.ErrRateLimit
			results = append(results, res)
			continue
		}
		results = append(results, e.applyAction(env.SessionID, a, res))
	}
	return results
}

func (e *Engine) applyAction(session string, a protocol.ActionReq, res protocol.ActionResult) protocol.ActionResult {
	switch a.Kind {
	case protocol.ActPreview:
		tpl, ok := e.templates[a.Piece]
		if !ok {
			res.Error = protocol.ErrUnknownPiece
			return res
		}
		v := e.validator.Check(tpl, vec3i(a.Anchor), Turns(a.Turns).Rotation())
		res.OK = v.OK
		res.Reason = v.Reason
		res.Cells = cellArrays(v.Cells)

	case protocol.ActConfirm:
		tpl, ok := e.templates[a.Piece]
		if !ok {
			res.Error = protocol.ErrUnknownPiece
			return res
		}
		turns := Turns(a.Turns)
		v := e.validator.Check(tpl, vec3i(a.Anchor), turns.Rotation())
		res.OK = v.OK
		res.Reason = v.Reason
		res.Cells = cellArrays(v.Cells)
		if !v.OK {
			return res
		}
		var id int64
		if a.PlacementID > 0 {
			if !e.reg.ConfirmAs(a.PlacementID, tpl, v.Cells, turns) {
				res.OK = false
				res.Error = protocol.ErrBadRequest
				return res
			}
			id = a.PlacementID
		} else {
			id = e.reg.Confirm(tpl, v.Cells, turns)
		}
		e.mutatedSinceSnapshot = true
		res.PlacementID = id
		e.audit(session, "PLACE", id, tpl.ID, turns, v.Cells)

	case protocol.ActPickUp:
		p, ok := e.reg.Get(a.PlacementID)
		if !ok {
			res.Error = protocol.ErrUnknownID
			return res
		}
		piece, turns, cells := p.Piece, p.Turns, p.Cells
		e.reg.RemoveByID(a.PlacementID)
		e.mutatedSinceSnapshot = true
		res.OK = true
		res.PlacementID = a.PlacementID
		res.Cells = cellArrays(cells)
		e.audit(session, "REMOVE", a.PlacementID, piece, turns, cells)

	case protocol.ActUndo:
		id, ok := e.reg.Undo()
		if !ok {
			res.Error = protocol.ErrEmptyHistory
			return res
		}
		e.mutatedSinceSnapshot = true
		res.OK = true
		res.PlacementID = id
		e.audit(session, "UNDO", id, "", Turns{}, nil)

	case protocol.ActSave:
		if e.snapshotSink == nil {
			res.Error = protocol.ErrBadRequest
			return res
		}
		e.pushSnapshot()
		res.OK = true

	default:
		res.Error = protocol.ErrProtoBadRequest
	}
	return res
}

func (e *Engine) audit(actor, action string, id int64, piece string, turns Turns, cells []Vec3i) {
	if e.auditLogger == nil {
		return
	}
	_ = e.auditLogger.WriteAudit(AuditEntry{
		Tick:        e.tick.Load(),
		Actor:       actor,
		Action:      action,
		PlacementID: id,
		Piece:       piece,
		Turns:       turns.ToArray(),
		Cells:       cellArrays(cells),
	})
}

func (e *Engine) stateMsg(tick uint64) protocol.StateMsg {
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		History:         e.reg.History(),
	}
	for _, p := range e.reg.Placements() {
		msg.Placements = append(msg.Placements, protocol.PlacementState{
			ID:    p.ID,
			Piece: p.Piece,
			Turns: p.Turns.ToArray(),
			Cells: cellArrays(p.Cells),
		})
	}
	return msg
}

func (e *Engine) send(sessionID string, v any) {
	c, ok := e.clients[sessionID]
	if !ok || c.Out == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.Out <- b:
	default:
		// Slow client: drop rather than stall the tick.
	}
}

func (e *Engine) broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	for _, id := range e.sortedSessionIDs() {
		c := e.clients[id]
		if c.Out == nil {
			continue
		}
		select {
		case c.Out <- b:
		default:
		}
	}
}

func vec3i(a [3]int) Vec3i { return Vec3i{a[0], a[1], a[2]} }

func cellArrays(cells []Vec3i) [][3]int {
	if len(cells) == 0 {
		return nil
	}
	out := make([][3]int, 0, len(cells))
	for _, c := range cells {
		out = append(out, c.ToArray())
	}
	return out
}
