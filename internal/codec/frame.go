package codec

import (
	"encoding/binary"
	"fmt"
)

// FrameReader accumulates raw stream bytes and cuts them into verified
// packets. It is owned by a single connection and is not safe for concurrent use.
type FrameReader struct {
	limits Limits
	buf    []byte
}

func NewFrameReader(limits Limits) *FrameReader {
	return &FrameReader{
		limits: limits,
		buf:    make([]byte, 0, limits.LargestFrameSize),
	}
}

// Ingest appends p and tries to extract one frame. It returns (nil, nil) when
// more bytes are needed. On an error wrapping ErrMalformedFrame the whole
// buffer has been dropped.
func (f *FrameReader) Ingest(p []byte) (*Packet, error) {
	f.buf = append(f.buf, p...)
	return f.Next()
}

// Next tries to extract one more frame from the bytes already buffered.
func (f *FrameReader) Next() (*Packet, error) {
	if len(f.buf) < preambleLen {
		return nil, nil
	}
	if pre := binary.BigEndian.Uint32(f.buf[:preambleLen]); pre != 0 {
		f.Reset()
		return nil, fmt.Errorf("%w: got %#08x", ErrBadPreamble, pre)
	}
	if len(f.buf) < headerLen {
		return nil, nil
	}

	total := uint64(headerLen) + uint64(binary.BigEndian.Uint32(f.buf[preambleLen:headerLen])) + crcLen
	if total < uint64(f.limits.MinFrameSize) {
		f.Reset()
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, total)
	}
	if f.limits.MaxBuffered > 0 && total > uint64(f.limits.MaxBuffered) {
		f.Reset()
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, total)
	}
	if uint64(len(f.buf)) < total {
		return nil, nil
	}

	pkt, err := decodeFrame(f.buf[:total])
	if err != nil {
		f.Reset()
		return nil, err
	}
	n := copy(f.buf, f.buf[total:])
	f.buf = f.buf[:n]
	return pkt, nil
}

// Reset drops every buffered byte.
func (f *FrameReader) Reset() {
	f.buf = f.buf[:0]
}

// Buffered reports how many bytes wait for the rest of their frame.
func (f *FrameReader) Buffered() int { return len(f.buf) }

// decodeFrame decodes one complete frame. The checksum is verified before any
// record is parsed, and the records must fill the declared payload exactly.
func decodeFrame(frame []byte) (*Packet, error) {
	payload := frame[headerLen : len(frame)-crcLen]
	pkt := &Packet{
		Preamble:   binary.BigEndian.Uint32(frame[:preambleLen]),
		DataLength: binary.BigEndian.Uint32(frame[preambleLen:headerLen]),
		Checksum:   binary.BigEndian.Uint32(frame[len(frame)-crcLen:]),
	}
	if sum := uint32(Checksum16(payload)); sum != pkt.Checksum {
		return nil, fmt.Errorf("%w: calc=0x%04x recv=0x%08x", ErrChecksum, sum, pkt.Checksum)
	}

	r := &reader{buf: payload}
	codec, err := r.u8()
	if err != nil {
		return nil, err
	}
	pkt.CodecID = CodecID(codec)
	if pkt.CodecID != Codec8 && pkt.CodecID != Codec8E {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedCodec, codec)
	}
	if pkt.Count1, err = r.u8(); err != nil {
		return nil, err
	}

	pkt.Records = make([]Record, 0, pkt.Count1)
	for i := 0; i < int(pkt.Count1); i++ {
		rec, err := decodeRecord(r, pkt.CodecID)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		pkt.Records = append(pkt.Records, rec)
	}

	if pkt.Count2, err = r.u8(); err != nil {
		return nil, err
	}
	if pkt.Count2 != pkt.Count1 {
		return nil, fmt.Errorf("%w: leading %d, trailing %d", ErrCountMismatch, pkt.Count1, pkt.Count2)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingBytes, r.remaining())
	}
	return pkt, nil
}
