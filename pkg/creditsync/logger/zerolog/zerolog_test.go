package zerolog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mihaimyh/creditsync/pkg/creditsync"
)

func TestLogger_Info(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output))

	logger.Info("balance updated", creditsync.Field{Key: "user_id", Value: "user-1"})

	if output.Len() == 0 {
		t.Fatal("Expected info log to be written")
	}
	if !strings.Contains(output.String(), "user-1") {
		t.Errorf("Expected field in output, got %s", output.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output).Level(zerolog.WarnLevel))

	logger.Debug("debug message")
	logger.Info("info message")

	if output.Len() != 0 {
		t.Error("Expected debug and info to be filtered out")
	}

	logger.Warn("warn message")
	logger.Error("error message")

	if output.Len() == 0 {
		t.Error("Expected warn and error to be logged")
	}
}

func TestLogger_MultipleFields(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output))

	logger.Error("ledger write failed",
		creditsync.Field{Key: "user_id", Value: "user-1"},
		creditsync.Field{Key: "operation", Value: "add"},
		creditsync.Field{Key: "delta", Value: 250},
	)

	out := output.String()
	for _, want := range []string{"user_id", "operation", "delta"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output, got %s", want, out)
		}
	}
}
