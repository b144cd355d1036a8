package live

// State is the connection status of a pipeline.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateConnecting
	StateOpen
	StateClosed
	StateError
)

// String returns the lowercase state name used on the wire and in logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateError
}

// Operator-facing status strings.
const (
	StatusInitializing      = "Initializing..."
	StatusRequestingMic     = "Requesting microphone access..."
	StatusConnecting        = "Connecting to AI..."
	StatusConnected         = "Connected. Start talking!"
	StatusConnectionError   = "Connection error."
	StatusConnectionClosed  = "Connection closed."
	StatusConnectTimeout    = "Connection timed out."
	StatusInitializeFailure = "Failed to initialize. Check microphone permissions."
)
