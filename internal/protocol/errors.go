package protocol

// Transport/session errors.
const (
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrBadRequest      = "E_BAD_REQUEST"
	ErrUnknownPiece    = "E_UNKNOWN_PIECE"
	ErrUnknownID       = "E_UNKNOWN_ID"
	ErrEmptyHistory    = "E_EMPTY_HISTORY"
	ErrRateLimit       = "E_RATE_LIMIT"
	ErrInternal        = "E_INTERNAL"
)

// Placement reject reasons. Exactly one is reported per rejected candidate,
// in validator pipeline order.
const (
	ReasonInvalidShape = "R_INVALID_SHAPE"
	ReasonBlocked      = "R_BLOCKED"
	ReasonUnsupported  = "R_UNSUPPORTED"
	ReasonFragile      = "R_FRAGILE"
	ReasonNotStanding  = "R_NOT_STANDING"
	ReasonUpsideDown   = "R_UPSIDE_DOWN"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrUnknownPiece:    {},
	ErrUnknownID:       {},
	ErrEmptyHistory:    {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

var knownReasons = map[string]struct{}{
	ReasonInvalidShape: {},
	ReasonBlocked:      {},
	ReasonUnsupported:  {},
	ReasonFragile:      {},
	ReasonNotStanding:  {},
	ReasonUpsideDown:   {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

func IsKnownReason(reason string) bool {
	if reason == "" {
		return true
	}
	_, ok := knownReasons[reason]
	return ok
}
