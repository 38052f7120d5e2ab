package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrUnknownEvent    = "E_UNKNOWN_EVENT"
	ErrSchema          = "E_SCHEMA"

	// Room routing.
	ErrNotInRoom    = "E_NOT_IN_ROOM"
	ErrRoomFinished = "E_ROOM_FINISHED"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrUnknownEvent:    {},
	ErrSchema:          {},
	ErrNotInRoom:       {},
	ErrRoomFinished:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
