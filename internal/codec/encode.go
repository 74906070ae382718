package codec

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes p into a complete frame and fills in p.DataLength and
// p.Checksum. Count1 and Count2 are written as given.
func Encode(p *Packet) ([]byte, error) {
	if p.CodecID != Codec8 && p.CodecID != Codec8E {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, p.CodecID)
	}

	out := make([]byte, headerLen, DefaultLimits().LargestFrameSize)
	binary.BigEndian.PutUint32(out[:preambleLen], p.Preamble)
	out = append(out, uint8(p.CodecID), p.Count1)

	var err error
	for i, rec := range p.Records {
		if out, err = appendRecord(out, rec, p.CodecID); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	out = append(out, p.Count2)

	payload := out[headerLen:]
	p.DataLength = uint32(len(payload))
	p.Checksum = uint32(Checksum16(payload))
	binary.BigEndian.PutUint32(out[preambleLen:headerLen], p.DataLength)
	return binary.BigEndian.AppendUint32(out, p.Checksum), nil
}
