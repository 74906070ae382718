package codec

import (
	"encoding/binary"
	"fmt"
)

func decodeRecord(r *reader, codec CodecID) (Record, error) {
	var (
		rec Record
		err error
	)
	if rec.Timestamp, err = r.u64(); err != nil {
		return Record{}, err
	}
	if rec.Timestamp == 0 {
		return Record{}, ErrZeroTimestamp
	}
	if rec.Priority, err = r.u8(); err != nil {
		return Record{}, err
	}
	if rec.GPS, err = decodeGPS(r); err != nil {
		return Record{}, err
	}

	switch codec {
	case Codec8:
		rec.IO, err = decodeStandardIO(r)
	case Codec8E:
		rec.IO, err = decodeExtendedIO(r)
	default:
		err = fmt.Errorf("%w: 0x%02x", ErrUnsupportedCodec, uint8(codec))
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func decodeGPS(r *reader) (GPSData, error) {
	b, err := r.take(15)
	if err != nil {
		return GPSData{}, err
	}
	g := GPSData{
		Longitude:  int32(binary.BigEndian.Uint32(b[0:4])),
		Latitude:   int32(binary.BigEndian.Uint32(b[4:8])),
		Altitude:   int16(binary.BigEndian.Uint16(b[8:10])),
		Angle:      binary.BigEndian.Uint16(b[10:12]),
		Satellites: b[12],
		Speed:      binary.BigEndian.Uint16(b[13:15]),
	}
	if g.Longitude < -MaxLongitude || g.Longitude > MaxLongitude {
		return GPSData{}, fmt.Errorf("%w: longitude %d", ErrCoordinateRange, g.Longitude)
	}
	if g.Latitude < -MaxLatitude || g.Latitude > MaxLatitude {
		return GPSData{}, fmt.Errorf("%w: latitude %d", ErrCoordinateRange, g.Latitude)
	}
	return g, nil
}

func appendRecord(b []byte, rec Record, codec CodecID) ([]byte, error) {
	be := binary.BigEndian
	b = be.AppendUint64(b, rec.Timestamp)
	b = append(b, rec.Priority)
	b = be.AppendUint32(b, uint32(rec.GPS.Longitude))
	b = be.AppendUint32(b, uint32(rec.GPS.Latitude))
	b = be.AppendUint16(b, uint16(rec.GPS.Altitude))
	b = be.AppendUint16(b, rec.GPS.Angle)
	b = append(b, rec.GPS.Satellites)
	b = be.AppendUint16(b, rec.GPS.Speed)

	switch io := rec.IO.(type) {
	case *StandardIO:
		if codec != Codec8 {
			return nil, fmt.Errorf("encode: codec8 io in %s packet", codec)
		}
		return appendStandardIO(b, io)
	case *ExtendedIO:
		if codec != Codec8E {
			return nil, fmt.Errorf("encode: codec8e io in %s packet", codec)
		}
		return appendExtendedIO(b, io)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec)
	}
}
