package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"avl-gateway/internal/auth"
	"avl-gateway/internal/codec"
	"avl-gateway/internal/dispatcher"
	"avl-gateway/internal/session"
)

const testIMEI = "356307042441013"

type recordingHandoff struct {
	mu      sync.Mutex
	batches []dispatcher.Batch
	infos   []dispatcher.DeviceInfo
}

func (h *recordingHandoff) Enqueue(_ context.Context, b dispatcher.Batch) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, b)
	return nil
}

func (h *recordingHandoff) Announce(_ context.Context, info dispatcher.DeviceInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.infos = append(h.infos, info)
	return nil
}

func (h *recordingHandoff) snapshot() ([]dispatcher.Batch, []dispatcher.DeviceInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]dispatcher.Batch(nil), h.batches...), append([]dispatcher.DeviceInfo(nil), h.infos...)
}

func newTestServer(policy auth.Policy, timeout time.Duration) (*TcpServer, *recordingHandoff) {
	h := &recordingHandoff{}
	opts := Options{
		Limits:         codec.DefaultLimits(),
		SessionTimeout: timeout,
		BatchSize:      2,
	}
	return New(opts, policy, h, slog.New(slog.NewTextHandler(io.Discard, nil))), h
}

// startSession runs the session loop on one end of a pipe and returns the
// terminal's end plus a channel closed when the loop has torn down.
func startSession(t *testing.T, srv *TcpServer) (net.Conn, <-chan struct{}) {
	t.Helper()
	device, gateway := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.HandleConnection(context.Background(), gateway)
	}()
	t.Cleanup(func() { _ = device.Close() })
	_ = device.SetDeadline(time.Now().Add(10 * time.Second))
	return device, done
}

func frame(t *testing.T, ts uint64, records int) []byte {
	t.Helper()
	p := codec.Packet{CodecID: codec.Codec8E, Count1: uint8(records), Count2: uint8(records)}
	for i := 0; i < records; i++ {
		p.Records = append(p.Records, codec.Record{
			Timestamp: ts + uint64(i),
			Priority:  1,
			GPS:       codec.GPSData{Longitude: 2500000, Latitude: 5400000, Satellites: 7},
			IO: &codec.ExtendedIO{
				One: map[uint16]uint8{}, Two: map[uint16]uint16{}, Four: map[uint16]uint32{},
				Eight: map[uint16]uint64{}, Var: map[uint16][]byte{},
			},
		})
	}
	b, err := codec.Encode(&p)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	return b
}

func mustWrite(t *testing.T, c net.Conn, b []byte) {
	t.Helper()
	if _, err := c.Write(b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func expectRead(t *testing.T, c net.Conn, want []byte) {
	t.Helper()
	got := make([]byte, len(want))
	if _, err := io.ReadFull(c, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("read % x, want % x", got, want)
	}
}

func expectClosed(t *testing.T, c net.Conn, done <-chan struct{}) {
	t.Helper()
	if _, err := c.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("read after close = %v, want EOF", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func ack(n uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, n)
}

func TestSessionAcknowledgesAndBatches(t *testing.T) {
	srv, h := newTestServer(auth.AllowAll{}, 5*time.Second)
	device, done := startSession(t, srv)

	// Greeting and first frame in one write.
	mustWrite(t, device, append(codec.EncodeHandshake(testIMEI), frame(t, 1000, 1)...))
	expectRead(t, device, codec.HandshakeAccept)
	expectRead(t, device, ack(1))

	mustWrite(t, device, frame(t, 2000, 2))
	expectRead(t, device, ack(2))

	third := frame(t, 3000, 3)
	mustWrite(t, device, third[:10])
	mustWrite(t, device, third[10:])
	expectRead(t, device, ack(3))

	_ = device.Close()
	<-done

	batches, infos := h.snapshot()
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}
	if b := batches[0]; b.IMEI != testIMEI || b.Final || len(b.Packets) != 2 || b.Records() != 3 {
		t.Errorf("first batch = %+v", b)
	}
	if b := batches[1]; !b.Final || len(b.Packets) != 1 || b.Records() != 3 {
		t.Errorf("final batch = %+v", b)
	}
	if len(infos) != 2 || infos[0].State != dispatcher.DeviceStateConnect || infos[1].State != dispatcher.DeviceStateDisconnect {
		t.Fatalf("announcements = %+v", infos)
	}
	if infos[0].IMEI != testIMEI {
		t.Errorf("announced imei = %q", infos[0].IMEI)
	}
	if srv.ActiveIMEIs() != 0 {
		t.Errorf("ActiveIMEIs() = %d after disconnect", srv.ActiveIMEIs())
	}
}

func TestSessionClearsPendingOnAck(t *testing.T) {
	srv, _ := newTestServer(auth.AllowAll{}, time.Minute)
	device, gateway := net.Pipe()
	defer device.Close()
	defer gateway.Close()
	go func() { _, _ = io.Copy(io.Discard, device) }()

	ctx := context.Background()
	d := newDeviceSession(srv, gateway)
	d.handle(ctx, session.Connect{}, nil)
	d.handle(ctx, session.Authenticate{Identity: testIMEI}, nil)
	d.handle(ctx, session.AuthSuccess{}, nil)

	for i := 0; i < 500; i++ {
		if !d.ingest(ctx, frame(t, 1000+uint64(i)*10, 1)) {
			t.Fatalf("frame %d: session left ready state (%s)", i, d.machine.State())
		}
		if n := len(d.machine.Pending()); n != 0 {
			t.Fatalf("frame %d: %d pending after ack", i, n)
		}
	}
	if d.machine.State() != session.StateReady {
		t.Errorf("state = %s, want ready", d.machine.State())
	}
}

func TestSessionRejectedIMEI(t *testing.T) {
	srv, h := newTestServer(auth.NewAllowList("1"), 5*time.Second)
	device, done := startSession(t, srv)

	mustWrite(t, device, codec.EncodeHandshake(testIMEI))
	expectRead(t, device, codec.HandshakeReject)
	expectClosed(t, device, done)

	if batches, infos := h.snapshot(); len(batches) != 0 || len(infos) != 0 {
		t.Fatalf("rejected device produced batches %v, announcements %v", batches, infos)
	}
}

func TestSessionBadHandshake(t *testing.T) {
	srv, _ := newTestServer(auth.AllowAll{}, 5*time.Second)
	device, done := startSession(t, srv)

	mustWrite(t, device, []byte{0x00, 0x02, 'a', 'b'})
	expectRead(t, device, codec.HandshakeReject)
	expectClosed(t, device, done)
}

func TestSessionMalformedFrameDisconnects(t *testing.T) {
	srv, h := newTestServer(auth.AllowAll{}, 5*time.Second)
	device, done := startSession(t, srv)

	mustWrite(t, device, codec.EncodeHandshake(testIMEI))
	expectRead(t, device, codec.HandshakeAccept)

	mustWrite(t, device, frame(t, 1000, 1))
	expectRead(t, device, ack(1))

	bad := frame(t, 2000, 1)
	bad[len(bad)-1] ^= 0xFF
	mustWrite(t, device, bad)
	expectClosed(t, device, done)

	batches, infos := h.snapshot()
	if len(batches) != 1 || !batches[0].Final || len(batches[0].Packets) != 1 {
		t.Fatalf("batches = %+v, want the accepted packet flushed", batches)
	}
	if len(infos) != 2 || infos[1].State != dispatcher.DeviceStateDisconnect {
		t.Fatalf("announcements = %+v", infos)
	}
}

func TestSessionIdleTimeout(t *testing.T) {
	srv, h := newTestServer(auth.AllowAll{}, 50*time.Millisecond)
	device, done := startSession(t, srv)

	mustWrite(t, device, codec.EncodeHandshake(testIMEI))
	expectRead(t, device, codec.HandshakeAccept)
	expectClosed(t, device, done)

	if _, infos := h.snapshot(); len(infos) != 2 {
		t.Fatalf("announcements = %+v, want connect and disconnect", infos)
	}
}

func TestSessionHandshakeTimeout(t *testing.T) {
	srv, _ := newTestServer(auth.AllowAll{}, 50*time.Millisecond)
	device, done := startSession(t, srv)
	mustWrite(t, device, []byte{0x00})
	expectClosed(t, device, done)
}

func TestServeStopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(auth.AllowAll{}, 5*time.Second)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	mustWrite(t, conn, codec.EncodeHandshake(testIMEI))
	expectRead(t, conn, codec.HandshakeAccept)

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
