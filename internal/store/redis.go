// Package store keeps device presence and counters in Redis.
package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"avl-gateway/internal/dispatcher"
)

const onlineKey = "devices:online"

func deviceKey(imei string) string { return "dev:" + imei }

// Device is the stored view of one terminal.
type Device struct {
	IMEI     string
	Online   bool
	Remote   string
	LastSeen time.Time
	Frames   int64
	Records  int64
	Lat, Lon float64
}

type Registry struct {
	rdb *redis.Client
}

// NewRegistry connects to addr and pings it.
func NewRegistry(ctx context.Context, addr string, db int) (*Registry, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Registry{rdb: rdb}, nil
}

func (r *Registry) Close() error { return r.rdb.Close() }

func (r *Registry) Name() string { return "redis" }

// Announce marks the device online or offline.
func (r *Registry) Announce(ctx context.Context, info dispatcher.DeviceInfo) error {
	key := deviceKey(info.IMEI)
	ts := info.At.UnixMilli()
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		switch info.State {
		case dispatcher.DeviceStateConnect:
			p.HSet(ctx, key,
				"online", 1,
				"remote", info.RemoteIP+":"+strconv.Itoa(info.RemotePort),
				"connected_at", ts,
				"last_seen", ts,
			)
			p.SAdd(ctx, onlineKey, info.IMEI)
		case dispatcher.DeviceStateDisconnect:
			p.HSet(ctx, key, "online", 0, "disconnected_at", ts)
			p.SRem(ctx, onlineKey, info.IMEI)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis announce %s: %w", info.IMEI, err)
	}
	return nil
}

// Deliver bumps the frame and record counters and stores the latest position.
func (r *Registry) Deliver(ctx context.Context, b dispatcher.Batch) error {
	if len(b.Packets) == 0 {
		return nil
	}
	key := deviceKey(b.IMEI)
	at := b.At
	if at.IsZero() {
		at = time.Now()
	}

	fields := []any{"last_seen", at.UnixMilli()}
	last := b.Packets[len(b.Packets)-1]
	if n := len(last.Records); n > 0 {
		gps := last.Records[n-1].GPS
		fields = append(fields,
			"lat", strconv.FormatFloat(gps.Lat(), 'f', 5, 64),
			"lon", strconv.FormatFloat(gps.Lon(), 'f', 5, 64),
		)
	}

	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, key, "frames", int64(len(b.Packets)))
		p.HIncrBy(ctx, key, "records", int64(b.Records()))
		p.HSet(ctx, key, fields...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis deliver %s: %w", b.IMEI, err)
	}
	return nil
}

// Device reads back what is stored for imei; redis.Nil when nothing is.
func (r *Registry) Device(ctx context.Context, imei string) (Device, error) {
	vals, err := r.rdb.HGetAll(ctx, deviceKey(imei)).Result()
	if err != nil {
		return Device{}, err
	}
	if len(vals) == 0 {
		return Device{}, redis.Nil
	}
	d := Device{IMEI: imei, Online: vals["online"] == "1", Remote: vals["remote"]}
	if ms, err := strconv.ParseInt(vals["last_seen"], 10, 64); err == nil {
		d.LastSeen = time.UnixMilli(ms).UTC()
	}
	d.Frames, _ = strconv.ParseInt(vals["frames"], 10, 64)
	d.Records, _ = strconv.ParseInt(vals["records"], 10, 64)
	d.Lat, _ = strconv.ParseFloat(vals["lat"], 64)
	d.Lon, _ = strconv.ParseFloat(vals["lon"], 64)
	return d, nil
}

// Online lists the IMEIs currently connected, sorted.
func (r *Registry) Online(ctx context.Context) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, onlineKey).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}
