package channel

// State is the lifecycle state of the dispatch channel connection.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
)

// String returns the string representation of the State.
func (state State) String() string {
	return string(state)
}

// Live reports whether a transport exists or is being established.
func (state State) Live() bool {
	return state != StateDisconnected
}
