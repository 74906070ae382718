package codec

import (
	"encoding/binary"
	"fmt"
)

const maxIMEILen = 17

// Handshake replies written after the IMEI greeting.
var (
	HandshakeAccept = []byte{0x01}
	HandshakeReject = []byte{0x00}
)

// ParseHandshake reads the greeting a terminal sends before any frame: a two
// byte length and that many ASCII digits. It returns the IMEI and the number
// of bytes consumed, or n == 0 while the greeting is still incomplete.
func ParseHandshake(buf []byte) (imei string, n int, err error) {
	if len(buf) < 2 {
		return "", 0, nil
	}
	l := int(binary.BigEndian.Uint16(buf[:2]))
	if l == 0 || l > maxIMEILen {
		return "", 0, fmt.Errorf("%w: length %d", ErrBadHandshake, l)
	}
	if len(buf) < 2+l {
		return "", 0, nil
	}
	digits := buf[2 : 2+l]
	for _, c := range digits {
		if c < '0' || c > '9' {
			return "", 0, fmt.Errorf("%w: non-digit byte 0x%02x", ErrBadHandshake, c)
		}
	}
	return string(digits), 2 + l, nil
}

// EncodeHandshake builds the greeting for imei.
func EncodeHandshake(imei string) []byte {
	out := binary.BigEndian.AppendUint16(nil, uint16(len(imei)))
	return append(out, imei...)
}

// AckFrame is the server's reply to a frame: the accepted record count.
func AckFrame(records int) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(records))
}
