package session

import (
	"fmt"

	"avl-gateway/internal/codec"
)

// Event is something that happened on the connection. The set is closed.
type Event interface {
	isEvent()
}

type (
	Connect        struct{}
	Disconnect     struct{}
	ConnectionLost struct{}

	// PacketReceived carries a verified packet by value.
	PacketReceived struct{ Packet codec.Packet }
	PacketSent     struct{ ID uint32 }

	// AcknowledgementReceived confirms the packet with ID.
	AcknowledgementReceived struct{ ID uint32 }

	Authenticate struct {
		Identity string
		Secret   string
	}
	AuthSuccess struct{}
	AuthFailure struct{}

	// Timeout must be injected by the owner of the machine at least once per
	// configured timeout; the machine keeps no timer.
	Timeout       struct{}
	InvalidPacket struct{ Err error }
	ProtocolError struct{ Reason string }
)

func (Connect) isEvent()                 {}
func (Disconnect) isEvent()              {}
func (ConnectionLost) isEvent()          {}
func (PacketReceived) isEvent()          {}
func (PacketSent) isEvent()              {}
func (AcknowledgementReceived) isEvent() {}
func (Authenticate) isEvent()            {}
func (AuthSuccess) isEvent()             {}
func (AuthFailure) isEvent()             {}
func (Timeout) isEvent()                 {}
func (InvalidPacket) isEvent()           {}
func (ProtocolError) isEvent()           {}

// Action is something the owner of the machine must do, in order.
type Action interface {
	isAction()
	fmt.Stringer
}

type (
	SendAcknowledgement   struct{ ID uint32 }
	RequestRetransmission struct{ ID uint32 }
	DisconnectClient      struct{}
	ResetConnection       struct{}
)

func (SendAcknowledgement) isAction()   {}
func (RequestRetransmission) isAction() {}
func (DisconnectClient) isAction()      {}
func (ResetConnection) isAction()       {}

func (a SendAcknowledgement) String() string   { return fmt.Sprintf("ack(%#x)", a.ID) }
func (a RequestRetransmission) String() string { return fmt.Sprintf("retransmit(%#x)", a.ID) }
func (DisconnectClient) String() string        { return "disconnect" }
func (ResetConnection) String() string         { return "reset" }

// Result is the outcome of one Handle call.
type Result struct {
	State   State
	Actions []Action
}
