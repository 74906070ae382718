package pipeline

import (
	"encoding/hex"
	"time"

	"avl-gateway/internal/codec"
	"avl-gateway/internal/codec/fmxxx"
)

// liveWindow is how old a single record may be and still count as live.
const liveWindow = 120 * time.Second

func coordsValid(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	return true
}

func CalcFix(sats int, lat, lon float64) int {
	if sats > 3 && coordsValid(lat, lon) {
		return 1
	}
	return 0
}

// DecideMsgType reports 1 for a live record and 0 for one replayed from the
// terminal's buffer.
func DecideMsgType(isBatch bool, ts, now time.Time) int {
	if isBatch {
		return 0
	}
	if !ts.IsZero() && now.Sub(ts) > liveWindow {
		return 0
	}
	return 1
}

// BuildTracking projects one record onto a TrackingObject. isBatch is true
// when the record arrived together with others in the same packet.
func BuildTracking(imei string, codecID codec.CodecID, rec codec.Record, isBatch bool, now time.Time) *TrackingObject {
	lat, lon := rec.GPS.Lat(), rec.GPS.Lon()
	sats := int(rec.GPS.Satellites)
	ts := rec.Time()

	tr := &TrackingObject{
		IMEI:     imei,
		Codec:    codecID.String(),
		Datetime: ts.Format(time.RFC3339),
		Priority: rec.Priority,
		Lat:      lat,
		Lon:      lon,
		Alt:      int(rec.GPS.Altitude),
		Spd:      int(rec.GPS.Speed),
		Crs:      int(rec.GPS.Angle),
		Sats:     sats,
		PermIO:   map[string]uint64{},
		MsgType:  DecideMsgType(isBatch, ts, now),
		Fix:      CalcFix(sats, lat, lon),
	}
	if rec.IO == nil {
		return tr
	}

	tr.EventIO = rec.IO.EventID()
	for id, v := range rec.IO.Fixed() {
		tr.PermIO[fmxxx.Name(id)] = v
	}
	if ext, ok := rec.IO.(*codec.ExtendedIO); ok && len(ext.Var) > 0 {
		tr.VarIO = make(map[string]string, len(ext.Var))
		for id, v := range ext.Var {
			tr.VarIO[fmxxx.Name(id)] = hex.EncodeToString(v)
		}
	}
	return tr
}

// Track projects every record of pkts, in order.
func Track(imei string, pkts []codec.Packet, now time.Time) []*TrackingObject {
	var out []*TrackingObject
	for _, p := range pkts {
		isBatch := len(p.Records) > 1
		for _, rec := range p.Records {
			out = append(out, BuildTracking(imei, p.CodecID, rec, isBatch, now))
		}
	}
	return out
}
