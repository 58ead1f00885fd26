package bootstrap

import (
	"errors"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"api", ModeAPI, false},
		{"worker", ModeWorker, false},
		{"all", ModeAll, false},
		{"", "", true},
		{"both", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCheckSharedLocks(t *testing.T) {
	down := errors.New("dial tcp: connection refused")

	tests := []struct {
		name     string
		mode     Mode
		redisURL string
		redisErr error
		wantErr  bool
	}{
		{"all without redis", ModeAll, "", nil, false},
		{"all with unreachable redis", ModeAll, "redis://cache:6379", down, false},
		{"api with redis", ModeAPI, "redis://cache:6379", nil, false},
		{"api without redis", ModeAPI, "", nil, true},
		{"worker without redis", ModeWorker, "", nil, true},
		{"api with unreachable redis", ModeAPI, "redis://cache:6379", down, true},
		{"worker with unreachable redis", ModeWorker, "redis://cache:6379", down, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSharedLocks(tt.mode, tt.redisURL, tt.redisErr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if tt.redisErr != nil && err != nil && !errors.Is(err, tt.redisErr) {
				t.Errorf("expected wrapped redis error, got %v", err)
			}
		})
	}
}
