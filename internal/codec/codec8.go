package codec

import "encoding/binary"

func decodeStandardIO(r *reader) (*StandardIO, error) {
	var (
		s   StandardIO
		err error
	)
	if s.Event, err = r.u8(); err != nil {
		return nil, err
	}
	if s.Total, err = r.u8(); err != nil {
		return nil, err
	}

	if s.Count1, err = r.u8(); err != nil {
		return nil, err
	}
	if s.One, err = readBucket(r, int(s.Count1), 1+1, r.u8, r.u8); err != nil {
		return nil, err
	}

	if s.Count2, err = r.u8(); err != nil {
		return nil, err
	}
	if s.Two, err = readBucket(r, int(s.Count2), 1+2, r.u8, r.u16); err != nil {
		return nil, err
	}

	if s.Count4, err = r.u8(); err != nil {
		return nil, err
	}
	if s.Four, err = readBucket(r, int(s.Count4), 1+4, r.u8, r.u32); err != nil {
		return nil, err
	}

	if s.Count8, err = r.u8(); err != nil {
		return nil, err
	}
	if s.Eight, err = readBucket(r, int(s.Count8), 1+8, r.u8, r.u64); err != nil {
		return nil, err
	}
	return &s, nil
}

func appendStandardIO(b []byte, s *StandardIO) ([]byte, error) {
	for _, err := range []error{
		checkCount("1-byte", s.Count1, s.One),
		checkCount("2-byte", s.Count2, s.Two),
		checkCount("4-byte", s.Count4, s.Four),
		checkCount("8-byte", s.Count8, s.Eight),
	} {
		if err != nil {
			return nil, err
		}
	}
	be := binary.BigEndian

	b = append(b, s.Event, s.Total)
	b = append(b, s.Count1)
	b = appendBucket(b, s.One, putU8, putU8)
	b = append(b, s.Count2)
	b = appendBucket(b, s.Two, putU8, be.AppendUint16)
	b = append(b, s.Count4)
	b = appendBucket(b, s.Four, putU8, be.AppendUint32)
	b = append(b, s.Count8)
	b = appendBucket(b, s.Eight, putU8, be.AppendUint64)
	return b, nil
}
