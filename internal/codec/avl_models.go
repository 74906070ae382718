package codec

import (
	"fmt"
	"time"
)

// CodecID selects the IO element layout used by every record of a frame.
type CodecID uint8

const (
	Codec8  CodecID = 0x08
	Codec8E CodecID = 0x8E
	// Codec16 has a known layout but no decoder; frames carrying it are rejected.
	Codec16 CodecID = 0x10
)

func (c CodecID) String() string {
	switch c {
	case Codec8:
		return "codec8"
	case Codec8E:
		return "codec8e"
	case Codec16:
		return "codec16"
	default:
		return fmt.Sprintf("codec(0x%02x)", uint8(c))
	}
}

// CoordScale converts fixed-point coordinates to degrees.
const CoordScale = 100000

const (
	MaxLongitude = 180 * CoordScale
	MaxLatitude  = 90 * CoordScale
)

type GPSData struct {
	Longitude  int32  `json:"longitude"`
	Latitude   int32  `json:"latitude"`
	Altitude   int16  `json:"altitude"`
	Angle      uint16 `json:"angle"`
	Satellites uint8  `json:"satellites"`
	Speed      uint16 `json:"speed"`
}

func (g GPSData) Lon() float64 { return float64(g.Longitude) / CoordScale }
func (g GPSData) Lat() float64 { return float64(g.Latitude) / CoordScale }

// IOGroup is the IO element block of a record. The concrete type is fixed by
// the frame's codec: *StandardIO, *ExtendedIO or *Codec16IO.
type IOGroup interface {
	Codec() CodecID
	EventID() uint16
	// Fixed returns every fixed-width element keyed by id.
	Fixed() map[uint16]uint64
	isIOGroup()
}

// StandardIO is the codec 8 element block: one byte ids and counts.
type StandardIO struct {
	Event  uint8            `json:"event_io_id"`
	Total  uint8            `json:"total_io"`
	Count1 uint8            `json:"n1"`
	One    map[uint8]uint8  `json:"one"`
	Count2 uint8            `json:"n2"`
	Two    map[uint8]uint16 `json:"two"`
	Count4 uint8            `json:"n4"`
	Four   map[uint8]uint32 `json:"four"`
	Count8 uint8            `json:"n8"`
	Eight  map[uint8]uint64 `json:"eight"`
}

func (*StandardIO) Codec() CodecID    { return Codec8 }
func (s *StandardIO) EventID() uint16 { return uint16(s.Event) }
func (*StandardIO) isIOGroup()        {}
func (s *StandardIO) Fixed() map[uint16]uint64 {
	out := make(map[uint16]uint64, len(s.One)+len(s.Two)+len(s.Four)+len(s.Eight))
	for id, v := range s.One {
		out[uint16(id)] = uint64(v)
	}
	for id, v := range s.Two {
		out[uint16(id)] = uint64(v)
	}
	for id, v := range s.Four {
		out[uint16(id)] = uint64(v)
	}
	for id, v := range s.Eight {
		out[uint16(id)] = v
	}
	return out
}

// ExtendedIO is the codec 8E element block: two byte ids and counts plus a
// bucket of length-prefixed values.
type ExtendedIO struct {
	Event  uint16            `json:"event_io_id"`
	Total  uint16            `json:"total_io"`
	Count1 uint16            `json:"n1"`
	One    map[uint16]uint8  `json:"one"`
	Count2 uint16            `json:"n2"`
	Two    map[uint16]uint16 `json:"two"`
	Count4 uint16            `json:"n4"`
	Four   map[uint16]uint32 `json:"four"`
	Count8 uint16            `json:"n8"`
	Eight  map[uint16]uint64 `json:"eight"`
	CountX uint16            `json:"nx"`
	Var    map[uint16][]byte `json:"var"`
}

func (*ExtendedIO) Codec() CodecID    { return Codec8E }
func (e *ExtendedIO) EventID() uint16 { return e.Event }
func (*ExtendedIO) isIOGroup()        {}
func (e *ExtendedIO) Fixed() map[uint16]uint64 {
	out := make(map[uint16]uint64, len(e.One)+len(e.Two)+len(e.Four)+len(e.Eight))
	for id, v := range e.One {
		out[id] = uint64(v)
	}
	for id, v := range e.Two {
		out[id] = uint64(v)
	}
	for id, v := range e.Four {
		out[id] = uint64(v)
	}
	for id, v := range e.Eight {
		out[id] = v
	}
	return out
}

// Codec16IO describes the codec 16 element block. Nothing decodes or encodes
// it yet.
type Codec16IO struct {
	Event      uint16            `json:"event_io_id"`
	Generation uint8             `json:"generation_type"`
	Total      uint8             `json:"total_io"`
	Count1     uint8             `json:"n1"`
	One        map[uint16]uint8  `json:"one"`
	Count2     uint8             `json:"n2"`
	Two        map[uint16]uint16 `json:"two"`
	Count4     uint8             `json:"n4"`
	Four       map[uint16]uint32 `json:"four"`
	Count8     uint8             `json:"n8"`
	Eight      map[uint16]uint64 `json:"eight"`
}

func (*Codec16IO) Codec() CodecID    { return Codec16 }
func (c *Codec16IO) EventID() uint16 { return c.Event }
func (*Codec16IO) isIOGroup()        {}
func (*Codec16IO) Fixed() map[uint16]uint64 {
	return map[uint16]uint64{}
}

type Record struct {
	Timestamp uint64  `json:"timestamp_ms"`
	Priority  uint8   `json:"priority"`
	GPS       GPSData `json:"gps"`
	IO        IOGroup `json:"io"`
}

func (r Record) Time() time.Time {
	return time.UnixMilli(int64(r.Timestamp)).UTC()
}

// Packet is one verified frame. It is never mutated after decoding.
type Packet struct {
	Preamble   uint32   `json:"preamble"`
	DataLength uint32   `json:"data_len"`
	CodecID    CodecID  `json:"codec_id"`
	Count1     uint8    `json:"qty1"`
	Records    []Record `json:"records"`
	Count2     uint8    `json:"qty2"`
	Checksum   uint32   `json:"crc"`
}

// ID is the value the session tracks for acknowledgement and retransmission.
// The protocol carries no sequence number, so the checksum stands in for one;
// two different frames can collide.
func (p Packet) ID() uint32 { return p.Checksum }

// Priority is the priority of the first record, 0 for an empty packet.
func (p Packet) Priority() uint8 {
	if len(p.Records) == 0 {
		return 0
	}
	return p.Records[0].Priority
}
