package realtime

// State is the connectivity of a Channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// transition is an input to the state machine.
type transition int

const (
	evOpen transition = iota
	evConnect
	evConnectError
	evDisconnect
	evRetry
	evClose
)

func (t transition) String() string {
	return [...]string{"open", "connect", "connect_error", "disconnect", "retry", "close"}[t]
}

// transitions lists every legal move. close is legal from any state and
// handled separately.
var transitions = map[State]map[transition]State{
	Disconnected: {
		evOpen:  Connecting,
		evRetry: Connecting,
	},
	Connecting: {
		evConnect:      Connected,
		evConnectError: Disconnected,
	},
	Connected: {
		evDisconnect: Disconnected,
	},
}

// next returns the state after t, or false when t is not legal from s.
func next(s State, t transition) (State, bool) {
	if t == evClose {
		return Disconnected, true
	}
	to, ok := transitions[s][t]
	return to, ok
}
