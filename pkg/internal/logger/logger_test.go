package logger

import (
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warning ", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestKlogLogger_Level(t *testing.T) {
	l := NewKlogLogger()
	if !l.enabled(LevelDebug) {
		t.Error("new logger should pass everything")
	}
	l.SetLevel(LevelWarn)
	if l.enabled(LevelInfo) || !l.enabled(LevelWarn) || !l.enabled(LevelError) {
		t.Error("SetLevel(Warn) should filter debug and info only")
	}
}

func TestRecorder(t *testing.T) {
	var log Logger = NewRecorder()
	log.Info("session %s opened", "abc")
	log.Error("boom: %d", 7)
	log.SetLevel(LevelError)

	entries := log.(*Recorder).Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0] != "INFO session abc opened" || entries[1] != "ERROR boom: 7" {
		t.Errorf("unexpected entries %q", entries)
	}
}
