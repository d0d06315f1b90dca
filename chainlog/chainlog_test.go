package chainlog

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_LevelFollowsDebugFlag(t *testing.T) {
	SetDebug(false)
	if l := New(Node); l.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %v", l.GetLevel())
	}

	SetDebug(true)
	if l := New(Miner); l.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %v", l.GetLevel())
	}
	SetDebug(false)
}
