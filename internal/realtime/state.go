package realtime

// State is the Connection Manager state. Exactly one is current.
type State int

const (
	StateDisconnected State = iota
	StateConnectingBidirectional
	StateConnectedBidirectional
	StateFallbackActive
	StateReconnectingBidirectional
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnectingBidirectional:
		return "connecting_bidirectional"
	case StateConnectedBidirectional:
		return "connected_bidirectional"
	case StateFallbackActive:
		return "fallback_active"
	case StateReconnectingBidirectional:
		return "reconnecting_bidirectional"
	default:
		return "unknown"
	}
}

// Mode identifies which driver handles send/receive.
type Mode int

const (
	ModeNone Mode = iota
	ModeBidirectional
	ModePushOnly
)

// String returns the string representation of a Mode.
func (m Mode) String() string {
	switch m {
	case ModeBidirectional:
		return "bidirectional"
	case ModePushOnly:
		return "push_only"
	default:
		return "none"
	}
}

// modeFor maps a state to the transport that owns it.
func modeFor(s State) Mode {
	switch s {
	case StateConnectingBidirectional, StateConnectedBidirectional, StateReconnectingBidirectional:
		return ModeBidirectional
	case StateFallbackActive:
		return ModePushOnly
	default:
		return ModeNone
	}
}
