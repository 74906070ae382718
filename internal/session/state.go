package session

import "fmt"

type State uint8

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticating
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}
