package pipeline

import (
	"reflect"
	"testing"
	"time"

	"avl-gateway/internal/codec"
)

func pkt(id uint32, prio uint8) codec.Packet {
	return codec.Packet{
		CodecID:  codec.Codec8,
		Count1:   1,
		Count2:   1,
		Records:  []codec.Record{{Timestamp: 1, Priority: prio}},
		Checksum: id,
	}
}

func ids(pkts []codec.Packet) []uint32 {
	out := make([]uint32, 0, len(pkts))
	for _, p := range pkts {
		out = append(out, p.ID())
	}
	return out
}

func TestSubmitPlacement(t *testing.T) {
	tests := []struct {
		name  string
		prios []uint8
		want  []uint32
	}{
		{name: "low priority keeps arrival order", prios: []uint8{0, 3, 1}, want: []uint32{1, 2, 3}},
		{name: "high priority goes to head", prios: []uint8{1, 8, 255}, want: []uint32{3, 2, 1}},
		{
			name:  "middle band inserts before first lower",
			prios: []uint8{2, 5, 5, 9, 6, 4},
			want:  []uint32{4, 5, 2, 3, 6, 1},
		},
		{name: "middle band after equal and higher", prios: []uint8{7, 4, 4}, want: []uint32{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(100)
			for i, prio := range tt.prios {
				p.Submit(pkt(uint32(i+1), prio), 0)
			}
			if in, out := p.Stats(); in != len(tt.prios) || out != 0 {
				t.Fatalf("Stats() = %d, %d", in, out)
			}
			if got := ids(p.Flush()); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmptyPacketIsLowPriority(t *testing.T) {
	p := New(10)
	p.Submit(pkt(1, 2), 0)
	p.Submit(codec.Packet{Checksum: 2}, 0)
	if got := ids(p.Flush()); !reflect.DeepEqual(got, []uint32{1, 2}) {
		t.Fatalf("order = %v, want [1 2]", got)
	}
}

func TestBatchRelease(t *testing.T) {
	p := New(2)
	p.Submit(pkt(1, 1), 0)
	if in, out := p.Stats(); in != 1 || out != 0 {
		t.Fatalf("Stats() after one = %d, %d", in, out)
	}
	p.Submit(pkt(2, 8), 0)
	if in, out := p.Stats(); in != 0 || out != 2 {
		t.Fatalf("Stats() after batch = %d, %d", in, out)
	}
	if got := ids(p.Flush()); !reflect.DeepEqual(got, []uint32{2, 1}) {
		t.Fatalf("flush = %v, want [2 1]", got)
	}
	if in, out := p.Stats(); in != 0 || out != 0 {
		t.Fatalf("Stats() after flush = %d, %d", in, out)
	}
}

func TestFlushEmitsIncomingBeforeOutgoing(t *testing.T) {
	p := New(2)
	for i, prio := range []uint8{1, 1, 8} {
		p.Submit(pkt(uint32(i+1), prio), 0)
	}
	if in, out := p.Stats(); in != 1 || out != 2 {
		t.Fatalf("Stats() = %d, %d; want 1, 2", in, out)
	}
	if got := ids(p.Flush()); !reflect.DeepEqual(got, []uint32{3, 1, 2}) {
		t.Fatalf("flush = %v, want [3 1 2]", got)
	}
}

func TestRelease(t *testing.T) {
	p := New(2)
	if got := p.Release(); got != nil {
		t.Fatalf("Release() on empty = %v", got)
	}
	for i := 1; i <= 5; i++ {
		p.Submit(pkt(uint32(i), 0), 0)
	}
	if got := ids(p.Release()); !reflect.DeepEqual(got, []uint32{1, 2, 3, 4}) {
		t.Fatalf("Release() = %v", got)
	}
	if in, out := p.Stats(); in != 1 || out != 0 {
		t.Fatalf("Stats() after release = %d, %d", in, out)
	}
}

func TestSubmitBudget(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var calls int
	// Every reading is 10ms after the previous one.
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * 10 * time.Millisecond)
	}

	tests := []struct {
		name    string
		budget  time.Duration
		wantOut int
	}{
		{name: "no budget", budget: 0, wantOut: 0},
		{name: "negative budget", budget: -time.Second, wantOut: 0},
		{name: "smallest budget", budget: time.Nanosecond, wantOut: 1},
		{name: "budget exceeded", budget: 5 * time.Millisecond, wantOut: 1},
		{name: "budget equal to elapsed", budget: 10 * time.Millisecond, wantOut: 0},
		{name: "budget not reached", budget: time.Second, wantOut: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(10, WithClock(clock))
			p.Submit(pkt(1, 0), tt.budget)
			if _, out := p.Stats(); out != tt.wantOut {
				t.Fatalf("outgoing = %d, want %d", out, tt.wantOut)
			}
		})
	}
}
