package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"avl-gateway/internal/codec"
	"avl-gateway/internal/pipeline"
)

type stats struct {
	Bytes     int
	Packets   int
	Records   int
	Malformed int
}

type line struct {
	IMEI    string                     `json:"imei,omitempty"`
	ID      uint32                     `json:"id"`
	Codec   string                     `json:"codec"`
	Records []*pipeline.TrackingObject `json:"records"`
}

// replay reads r in chunks of at most chunk bytes. A leading IMEI greeting is
// consumed and stamped on every line; malformed frames are reported to errw
// and replay continues with the bytes that follow.
func replay(r io.Reader, w, errw io.Writer, chunk int, limits codec.Limits) (stats, error) {
	if chunk <= 0 {
		chunk = limits.LargestFrameSize
	}
	var (
		st       stats
		imei     string
		greeting []byte
		inFrames bool
	)
	frames := codec.NewFrameReader(limits)
	enc := json.NewEncoder(w)
	buf := make([]byte, chunk)

	emit := func(pkt *codec.Packet, err error) error {
		for {
			if err != nil {
				st.Malformed++
				fmt.Fprintf(errw, "malformed frame: %v\n", err)
				return nil
			}
			if pkt == nil {
				return nil
			}
			st.Packets++
			st.Records += len(pkt.Records)
			l := line{
				IMEI:    imei,
				ID:      pkt.ID(),
				Codec:   pkt.CodecID.String(),
				Records: pipeline.Track(imei, []codec.Packet{*pkt}, time.Now()),
			}
			if werr := enc.Encode(l); werr != nil {
				return werr
			}
			pkt, err = frames.Next()
		}
	}

	for {
		n, rerr := r.Read(buf)
		st.Bytes += n
		data := buf[:n]

		if !inFrames && n > 0 {
			greeting = append(greeting, data...)
			id, used, err := codec.ParseHandshake(greeting)
			switch {
			case err != nil:
				// Not a greeting: the capture starts with a frame.
				data, inFrames = greeting, true
			case used > 0:
				imei, data, inFrames = id, greeting[used:], true
			default:
				data = nil
			}
		}
		if inFrames && len(data) > 0 {
			if err := emit(frames.Ingest(data)); err != nil {
				return st, err
			}
		}

		if errors.Is(rerr, io.EOF) {
			if frames.Buffered() > 0 {
				fmt.Fprintf(errw, "%d trailing bytes without a complete frame\n", frames.Buffered())
			}
			return st, nil
		}
		if rerr != nil {
			return st, rerr
		}
	}
}
