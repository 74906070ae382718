package fmxxx

import "testing"

func TestName(t *testing.T) {
	tests := []struct {
		id   uint16
		want string
	}{
		{Ignition, "ignition"},
		{TotalOdometer, "total_odometer"},
		{ConnQuality, "connection_quality"},
		{9999, "io_9999"},
	}
	for _, tt := range tests {
		if got := Name(tt.id); got != tt.want {
			t.Errorf("Name(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
	if Known(9999) {
		t.Error("Known(9999) = true")
	}
}
