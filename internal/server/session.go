package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"avl-gateway/internal/codec"
	"avl-gateway/internal/dispatcher"
	"avl-gateway/internal/observability"
	"avl-gateway/internal/pipeline"
	"avl-gateway/internal/session"
)

const (
	writeTimeout    = 5 * time.Second
	teardownTimeout = 5 * time.Second
)

// deviceSession owns the frame reader, state machine and pipeline of one
// connection. Nothing in it is shared with other sessions.
type deviceSession struct {
	srv     *TcpServer
	conn    net.Conn
	logger  *slog.Logger
	remote  string
	imei    string
	frames  *codec.FrameReader
	machine *session.Machine
	pipe    *pipeline.Pipeline
	readBuf []byte
}

func newDeviceSession(srv *TcpServer, conn net.Conn) *deviceSession {
	remote := conn.RemoteAddr().String()
	return &deviceSession{
		srv:     srv,
		conn:    conn,
		logger:  srv.logger.With("remote", remote),
		remote:  remote,
		frames:  codec.NewFrameReader(srv.opts.Limits),
		machine: session.NewMachine(srv.opts.SessionTimeout),
		pipe:    pipeline.New(srv.opts.BatchSize),
		readBuf: make([]byte, srv.opts.Limits.LargestFrameSize),
	}
}

func (d *deviceSession) run(ctx context.Context) {
	d.handle(ctx, session.Connect{}, nil)
	defer d.teardown(ctx)

	rest, ok := d.handshake(ctx)
	if !ok {
		return
	}
	if len(rest) > 0 && !d.ingest(ctx, rest) {
		return
	}

	for d.machine.State() == session.StateReady {
		n, err := d.read()
		if n > 0 && !d.ingest(ctx, d.readBuf[:n]) {
			return
		}
		switch {
		case err == nil:
		case errors.Is(err, os.ErrDeadlineExceeded):
			d.logger.Debug("read timeout", "imei", d.imei)
			d.handle(ctx, session.Timeout{}, nil)
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			return
		default:
			d.logger.Warn("read error", "imei", d.imei, "err", err)
			return
		}
	}
}

func (d *deviceSession) read() (int, error) {
	_ = d.conn.SetReadDeadline(time.Now().Add(d.srv.opts.SessionTimeout))
	return d.conn.Read(d.readBuf)
}

// handshake reads the IMEI greeting, asks the policy and replies. It returns
// any bytes that arrived after the greeting.
func (d *deviceSession) handshake(ctx context.Context) ([]byte, bool) {
	var pending []byte
	for {
		n, err := d.read()
		pending = append(pending, d.readBuf[:n]...)

		imei, used, perr := codec.ParseHandshake(pending)
		if perr != nil {
			observability.HandshakeRejected.Inc()
			d.logger.Warn("bad handshake", "err", perr, "bytes", len(pending))
			d.write(codec.HandshakeReject)
			d.handle(ctx, session.ProtocolError{Reason: perr.Error()}, nil)
			return nil, false
		}
		if used > 0 {
			return d.authenticate(ctx, imei, pending[used:])
		}

		switch {
		case err == nil:
		case errors.Is(err, os.ErrDeadlineExceeded):
			d.logger.Warn("no handshake before timeout")
			d.handle(ctx, session.Timeout{}, nil)
			return nil, false
		default:
			return nil, false
		}
	}
}

func (d *deviceSession) authenticate(ctx context.Context, imei string, rest []byte) ([]byte, bool) {
	d.handle(ctx, session.Authenticate{Identity: imei}, nil)

	ok, err := d.srv.policy.Verify(ctx, imei, "")
	if err != nil || !ok {
		observability.HandshakeRejected.Inc()
		d.logger.Warn("IMEI rejected", "imei", imei, "err", err)
		d.write(codec.HandshakeReject)
		d.handle(ctx, session.AuthFailure{}, nil)
		return nil, false
	}
	d.handle(ctx, session.AuthSuccess{}, nil)
	if !d.write(codec.HandshakeAccept) {
		return nil, false
	}

	observability.HandshakeOK.Inc()
	d.imei = imei
	d.logger = d.logger.With("imei", imei)
	d.logger.Info("IMEI detected")
	d.srv.register(imei, d.conn)
	d.announce(ctx, dispatcher.DeviceStateConnect)
	return rest, true
}

// ingest feeds p to the frame reader and handles every complete frame. It
// returns false once the session has left the ready state.
func (d *deviceSession) ingest(ctx context.Context, p []byte) bool {
	start := time.Now()
	pkt, err := d.frames.Ingest(p)
	for {
		if err != nil {
			observability.ParseErrors.WithLabelValues(parseReason(err)).Inc()
			d.logger.Warn("malformed frame", "err", err)
			d.handle(ctx, session.InvalidPacket{Err: err}, nil)
			return false
		}
		if pkt == nil {
			return true
		}
		observability.ObserveParseLatency(start)
		observability.PacketsRecv.WithLabelValues(pkt.CodecID.String()).Inc()

		d.handle(ctx, session.PacketReceived{Packet: *pkt}, pkt)
		if d.machine.State() != session.StateReady {
			return false
		}
		d.pipe.Submit(*pkt, d.srv.opts.BatchBudget)
		d.release(ctx, d.pipe.Release(), false)

		start = time.Now()
		pkt, err = d.frames.Next()
	}
}

// handle feeds ev to the machine and carries out the resulting actions. pkt
// is the packet ev refers to, if any.
func (d *deviceSession) handle(ctx context.Context, ev session.Event, pkt *codec.Packet) {
	from := d.machine.State()
	res := d.machine.Handle(ev)
	if res.State == session.StateError && from != session.StateError {
		observability.ProtocolErrors.WithLabelValues(from.String()).Inc()
		d.logger.Warn("session error", "from", from.String(), "event", eventName(ev))
	}

	for _, a := range res.Actions {
		switch a := a.(type) {
		case session.SendAcknowledgement:
			if pkt != nil && pkt.ID() == a.ID {
				if d.write(codec.AckFrame(len(pkt.Records))) {
					observability.RecordsAck.Add(float64(len(pkt.Records)))
					// The written ack is the only acknowledgement the protocol has.
					d.handle(ctx, session.AcknowledgementReceived{ID: a.ID}, nil)
				}
			}
		case session.RequestRetransmission:
			observability.Retransmissions.Inc()
			d.logger.Debug("retransmission requested", "id", a.ID)
		case session.DisconnectClient:
			_ = d.conn.Close()
		case session.ResetConnection:
			d.frames.Reset()
			d.release(ctx, d.pipe.Flush(), true)
		}
	}

	// The error state is only left through ConnectionLost, which the
	// teardown delivers once the connection is gone.
	if res.State == session.StateError {
		_ = d.conn.Close()
	}
}

func (d *deviceSession) write(b []byte) bool {
	_ = d.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := d.conn.Write(b); err != nil {
		d.logger.Warn("write failed", "err", err)
		_ = d.conn.Close()
		return false
	}
	return true
}

func (d *deviceSession) release(ctx context.Context, pkts []codec.Packet, final bool) {
	if len(pkts) == 0 {
		return
	}
	b := dispatcher.Batch{
		IMEI:    d.imei,
		Remote:  d.remote,
		Packets: pkts,
		Final:   final,
		At:      time.Now(),
	}
	if err := d.srv.handoff.Enqueue(ctx, b); err != nil {
		d.logger.Error("batch dropped", "packets", len(pkts), "final", final, "err", err)
	}
}

func (d *deviceSession) announce(ctx context.Context, state dispatcher.DeviceState) {
	info := dispatcher.DeviceInfo{IMEI: d.imei, State: state, At: time.Now()}
	if host, port, err := net.SplitHostPort(d.remote); err == nil {
		info.RemoteIP = host
		info.RemotePort, _ = strconv.Atoi(port)
	}
	if err := d.srv.handoff.Announce(ctx, info); err != nil {
		d.logger.Warn("announce failed", "state", state.String(), "err", err)
	}
}

// teardown reports the lost connection, which flushes the pipeline, and
// announces the disconnect. It runs on a context that outlives shutdown.
func (d *deviceSession) teardown(ctx context.Context) {
	_ = d.conn.Close()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	d.handle(ctx, session.ConnectionLost{}, nil)
	if d.imei == "" {
		return
	}
	d.srv.unregister(d.imei, d.conn)
	d.announce(ctx, dispatcher.DeviceStateDisconnect)
	d.logger.Info("device disconnected")
}

var parseReasons = []struct {
	err    error
	reason string
}{
	{codec.ErrBadPreamble, "bad_preamble"},
	{codec.ErrFrameTooShort, "too_short"},
	{codec.ErrFrameTooLarge, "too_large"},
	{codec.ErrChecksum, "checksum"},
	{codec.ErrCountMismatch, "count_mismatch"},
	{codec.ErrUnsupportedCodec, "unsupported_codec"},
	{codec.ErrZeroTimestamp, "zero_timestamp"},
	{codec.ErrCoordinateRange, "coordinate_range"},
	{codec.ErrTruncated, "truncated"},
	{codec.ErrTrailingBytes, "trailing_bytes"},
	{codec.ErrDuplicateID, "duplicate_id"},
}

func parseReason(err error) string {
	for _, r := range parseReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}

func eventName(ev session.Event) string {
	switch ev.(type) {
	case session.Timeout:
		return "timeout"
	case session.InvalidPacket:
		return "invalid_packet"
	case session.ProtocolError:
		return "protocol_error"
	case session.AuthFailure:
		return "auth_failure"
	default:
		return "unexpected"
	}
}
