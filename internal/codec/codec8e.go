package codec

import (
	"encoding/binary"
	"fmt"
)

func decodeExtendedIO(r *reader) (*ExtendedIO, error) {
	var (
		e   ExtendedIO
		err error
	)
	if e.Event, err = r.u16(); err != nil {
		return nil, err
	}
	if e.Total, err = r.u16(); err != nil {
		return nil, err
	}

	if e.Count1, err = r.u16(); err != nil {
		return nil, err
	}
	if e.One, err = readBucket(r, int(e.Count1), 2+1, r.u16, r.u8); err != nil {
		return nil, err
	}

	if e.Count2, err = r.u16(); err != nil {
		return nil, err
	}
	if e.Two, err = readBucket(r, int(e.Count2), 2+2, r.u16, r.u16); err != nil {
		return nil, err
	}

	if e.Count4, err = r.u16(); err != nil {
		return nil, err
	}
	if e.Four, err = readBucket(r, int(e.Count4), 2+4, r.u16, r.u32); err != nil {
		return nil, err
	}

	if e.Count8, err = r.u16(); err != nil {
		return nil, err
	}
	if e.Eight, err = readBucket(r, int(e.Count8), 2+8, r.u16, r.u64); err != nil {
		return nil, err
	}

	if e.CountX, err = r.u16(); err != nil {
		return nil, err
	}
	e.Var = make(map[uint16][]byte, e.CountX)
	for i := 0; i < int(e.CountX); i++ {
		id, err := r.u16()
		if err != nil {
			return nil, err
		}
		n, err := r.u16()
		if err != nil {
			return nil, err
		}
		val, err := r.bytes(int(n))
		if err != nil {
			return nil, err
		}
		if _, dup := e.Var[id]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, id)
		}
		e.Var[id] = val
	}
	return &e, nil
}

func appendExtendedIO(b []byte, e *ExtendedIO) ([]byte, error) {
	for _, err := range []error{
		checkCount("1-byte", e.Count1, e.One),
		checkCount("2-byte", e.Count2, e.Two),
		checkCount("4-byte", e.Count4, e.Four),
		checkCount("8-byte", e.Count8, e.Eight),
		checkCount("variable", e.CountX, e.Var),
	} {
		if err != nil {
			return nil, err
		}
	}
	be := binary.BigEndian

	b = be.AppendUint16(b, e.Event)
	b = be.AppendUint16(b, e.Total)
	b = be.AppendUint16(b, e.Count1)
	b = appendBucket(b, e.One, be.AppendUint16, putU8)
	b = be.AppendUint16(b, e.Count2)
	b = appendBucket(b, e.Two, be.AppendUint16, be.AppendUint16)
	b = be.AppendUint16(b, e.Count4)
	b = appendBucket(b, e.Four, be.AppendUint16, be.AppendUint32)
	b = be.AppendUint16(b, e.Count8)
	b = appendBucket(b, e.Eight, be.AppendUint16, be.AppendUint64)
	b = be.AppendUint16(b, e.CountX)
	b = appendBucket(b, e.Var, be.AppendUint16, func(b []byte, v []byte) []byte {
		b = be.AppendUint16(b, uint16(len(v)))
		return append(b, v...)
	})
	return b, nil
}
