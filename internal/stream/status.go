package stream

// State is the lifecycle state of one channel's connection.
type State int

const (
	// StateDisconnected means no connection exists (initial and terminal).
	StateDisconnected State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateConnected means the transport handshake completed.
	StateConnected
	// StateError means the transport failed; recovery requires an
	// explicit Reconnect.
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// AggregateStatus reduces a set of per-channel states to one global
// indicator: connected if any channel is connected, else connecting if
// any is connecting, else error if any errored, else disconnected.
// A single healthy channel masks the rest on purpose; the aggregate
// answers "is live data usable at all", not "is every channel healthy".
func AggregateStatus(states []State) State {
	var anyConnecting, anyError bool
	for _, s := range states {
		switch s {
		case StateConnected:
			return StateConnected
		case StateConnecting:
			anyConnecting = true
		case StateError:
			anyError = true
		}
	}
	if anyConnecting {
		return StateConnecting
	}
	if anyError {
		return StateError
	}
	return StateDisconnected
}
