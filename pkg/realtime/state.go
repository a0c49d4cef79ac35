package realtime

// State is the connector's finite-state machine value, transitioned
// by discrete inputs: open, connected event, stream error, manual
// disconnect.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateGivenUp
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateGivenUp:
		return "given-up"
	default:
		return "unknown"
	}
}
