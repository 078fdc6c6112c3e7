package shared

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLogLevel(t *testing.T) {
	tc := []struct {
		name  string
		level string
		want  log.Level
	}{
		{name: "debug", level: "debug", want: log.DebugLevel},
		{name: "mixed case and spaces", level: "  WARN ", want: log.WarnLevel},
		{name: "error", level: "error", want: log.ErrorLevel},
		{name: "unknown falls back to info", level: "chatty", want: log.InfoLevel},
		{name: "empty falls back to info", level: "", want: log.InfoLevel},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLogLevel(tt.level); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandHome("~/.plexsync"); got != filepath.Join(home, ".plexsync") {
		t.Errorf("ExpandHome(~/.plexsync) = %v, want %v", got, filepath.Join(home, ".plexsync"))
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome(/abs/path) = %v, want /abs/path", got)
	}
	if got := ExpandHome("~user/x"); got != "~user/x" {
		t.Errorf("ExpandHome(~user/x) = %v, want unchanged", got)
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("expected distinct ids")
	}
	if len(a) != 36 || strings.Count(a, "-") != 4 {
		t.Errorf("GenerateID() = %v, want uuid string", a)
	}
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "plexsync.log")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	logger.Info("hello", "component", "test")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file = %q, want it to contain message", data)
	}
}

func TestProcessLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plexsync.lock")

	first, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}

	if _, err := AcquireLock(path); !errors.Is(err, ErrLocked) {
		t.Errorf("second AcquireLock() error = %v, want %v", err, ErrLocked)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	again, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock() after release error = %v", err)
	}
	defer again.Release()

	var nilLock *ProcessLock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestBrowserCommand(t *testing.T) {
	tests := []struct {
		goos    string
		browser string
		want    string
		wantErr bool
	}{
		{goos: "darwin", want: "open"},
		{goos: "linux", want: "xdg-open"},
		{goos: "windows", want: "rundll32"},
		{goos: "linux", browser: "firefox", want: "firefox"},
		{goos: "plan9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.browser, func(t *testing.T) {
			cmd, err := browserCommand(tt.goos, tt.browser, "https://trakt.tv/oauth/authorize")
			if tt.wantErr {
				if !errors.Is(err, ErrNotImplemented) {
					t.Errorf("browserCommand() error = %v, want %v", err, ErrNotImplemented)
				}
				return
			}
			if err != nil {
				t.Fatalf("browserCommand() error = %v", err)
			}
			if cmd.Args[0] != tt.want || cmd.Args[len(cmd.Args)-1] != "https://trakt.tv/oauth/authorize" {
				t.Errorf("browserCommand() args = %v, want %s ... url", cmd.Args, tt.want)
			}
		})
	}
}
