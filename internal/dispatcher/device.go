package dispatcher

import "time"

// DeviceState is the kind of presence change being announced.
type DeviceState int

const (
	DeviceStateUnknown    DeviceState = iota
	DeviceStateConnect                // handshake accepted
	DeviceStateDisconnect             // session torn down
)

func (s DeviceState) String() string {
	switch s {
	case DeviceStateConnect:
		return "connect"
	case DeviceStateDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// DeviceInfo is the static view of a terminal that presence sinks receive.
type DeviceInfo struct {
	IMEI       string
	RemoteIP   string
	RemotePort int
	State      DeviceState
	At         time.Time
}
