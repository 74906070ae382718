package codec

// Frame geometry.
const (
	preambleLen = 4
	headerLen   = 8 // preamble + data length
	crcLen      = 4
)

// Limits bounds what a FrameReader accepts. It is built once at startup and
// passed by value; nothing mutates it afterwards.
type Limits struct {
	// MinFrameSize is the smallest complete frame: one record with no IO elements.
	MinFrameSize int
	// MaxRecordSizeFM6XXX and MaxFrameSizeFM6XXX are the FM6XXX family ceilings.
	MaxRecordSizeFM6XXX int
	MaxFrameSizeFM6XXX  int
	// LargestFrameSize is the largest frame any terminal family sends. It sizes
	// read buffers; frames above it are still accepted up to MaxBuffered.
	LargestFrameSize int
	// MaxBuffered caps the accumulator. A declared frame that cannot fit is malformed.
	MaxBuffered int
}

func DefaultLimits() Limits {
	return Limits{
		MinFrameSize:        45,
		MaxRecordSizeFM6XXX: 255,
		MaxFrameSizeFM6XXX:  512,
		LargestFrameSize:    1280,
		MaxBuffered:         64 * 1024,
	}
}
