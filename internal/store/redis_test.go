package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"avl-gateway/internal/codec"
	"avl-gateway/internal/dispatcher"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRegistry(context.Background(), mr.Addr(), 0)
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestNewRegistryPingFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRegistry(ctx, "127.0.0.1:1", 0); err == nil {
		t.Fatal("NewRegistry() succeeded without a server")
	}
}

func TestPresenceAndCounters(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, imei := range []string{"356307042441013", "350000000000001"} {
		err := r.Announce(ctx, dispatcher.DeviceInfo{IMEI: imei, RemoteIP: "10.0.0.7", RemotePort: 5001, State: dispatcher.DeviceStateConnect, At: at})
		if err != nil {
			t.Fatalf("Announce() error: %v", err)
		}
	}

	rec := codec.Record{Timestamp: 1, GPS: codec.GPSData{Latitude: 5412345, Longitude: -712345}}
	b := dispatcher.Batch{
		IMEI: "356307042441013",
		At:   at.Add(time.Minute),
		Packets: []codec.Packet{
			{Records: []codec.Record{rec, rec}},
			{Records: []codec.Record{rec}},
		},
	}
	for i := 0; i < 2; i++ {
		if err := r.Deliver(ctx, b); err != nil {
			t.Fatalf("Deliver() error: %v", err)
		}
	}

	d, err := r.Device(ctx, "356307042441013")
	if err != nil {
		t.Fatalf("Device() error: %v", err)
	}
	want := Device{
		IMEI:     "356307042441013",
		Online:   true,
		Remote:   "10.0.0.7:5001",
		LastSeen: at.Add(time.Minute),
		Frames:   4,
		Records:  6,
		Lat:      54.12345,
		Lon:      -7.12345,
	}
	if !reflect.DeepEqual(d, want) {
		t.Fatalf("Device() = %+v, want %+v", d, want)
	}

	online, err := r.Online(ctx)
	if err != nil || !reflect.DeepEqual(online, []string{"350000000000001", "356307042441013"}) {
		t.Fatalf("Online() = %v, %v", online, err)
	}

	if err := r.Announce(ctx, dispatcher.DeviceInfo{IMEI: "356307042441013", State: dispatcher.DeviceStateDisconnect, At: at}); err != nil {
		t.Fatalf("Announce(disconnect) error: %v", err)
	}
	d, _ = r.Device(ctx, "356307042441013")
	if d.Online {
		t.Fatal("device still online after disconnect")
	}
	if online, _ := r.Online(ctx); !reflect.DeepEqual(online, []string{"350000000000001"}) {
		t.Fatalf("Online() after disconnect = %v", online)
	}
}

func TestDeviceMissing(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Device(context.Background(), "nope"); !errors.Is(err, redis.Nil) {
		t.Fatalf("Device() = %v, want redis.Nil", err)
	}
}
