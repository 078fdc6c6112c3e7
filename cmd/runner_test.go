package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/shared"
	tu "github.com/desertthunder/plexsync/internal/testing"
	"golang.org/x/oauth2"
)

var moviesLib = models.Library{Key: "1", Title: "Movies", Type: "movie"}

// fakeTrakt adds the authorization calls to the in-memory tracker.
type fakeTrakt struct {
	*tu.MockTracker
	token    *oauth2.Token
	redirect string
	codes    []string
}

func (f *fakeTrakt) AuthCodeURL(state string) string {
	return "https://trakt.example/oauth/authorize?state=" + state
}

func (f *fakeTrakt) RedirectURI() string { return f.redirect }

func (f *fakeTrakt) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	f.codes = append(f.codes, code)
	f.token = &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}
	return f.token, nil
}

func (f *fakeTrakt) Token() (*oauth2.Token, error) { return f.token, nil }

func movie(key, imdb string, watched bool) models.MediaItem {
	return models.MediaItem{Key: key, Kind: models.Movie, Title: "Movie " + key, Watched: watched, IDs: models.IDSet{models.IMDB: imdb}}
}

type fixture struct {
	runner  *Runner
	output  *bytes.Buffer
	config  *shared.Config
	library *tu.MockLibrary
	trakt   *fakeTrakt
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	config := shared.DefaultConfig()
	config.DataDir = t.TempDir()
	config.Sync.Ratings = false
	config.Sync.MutationDelay = 0
	config.Retry.MaxRetries = 0

	library := tu.NewMockLibrary([]models.Library{moviesLib, {Key: "9", Title: "Music", Type: "artist"}}, map[string][]models.MediaItem{
		"1": {movie("a", "tt1", true), movie("b", "tt2", true), movie("c", "tt3", false)},
	})
	trakt := &fakeTrakt{MockTracker: tu.NewMockTracker(), redirect: "urn:ietf:wg:oauth:2.0:oob"}
	output := &bytes.Buffer{}

	runner := NewRunner(RunnerOpts{
		Config:  config,
		Library: library,
		Trakt:   trakt,
		Logger:  shared.NewLogger(io.Discard),
		Output:  output,
	})
	return &fixture{runner: runner, output: output, config: config, library: library, trakt: trakt}
}

func (f *fixture) run(args ...string) error {
	f.output.Reset()
	return newApp(f.runner).Run(context.Background(), append([]string{"plexsync"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			library := tu.NewMockLibrary(nil, nil)

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Library:    library,
			})

			if runner.config != config || !runner.pinned {
				t.Error("expected config to be set and pinned")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.library != library {
				t.Error("expected library to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil || runner.pinned {
				t.Error("expected unpinned default config")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != nil {
				t.Error("expected no shared httpClient")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(output.String(), `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		commands := NewRunner(RunnerOpts{}).register()

		names := map[string]bool{}
		for _, cmd := range commands {
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "auth", "libraries", "sync", "daemon", "history", "tui"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("reads file and applies env", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		content := "data_dir = \"" + dir + "\"\n[sync]\ndirection = \"pull\"\n[log]\nlevel = \"debug\"\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: output})
		runner.lookupEnv = func(key string) (string, bool) {
			if key == "PLEX_TOKEN" {
				return "env-token", true
			}
			return "", false
		}

		if err := newApp(runner).Run(context.Background(), []string{"plexsync", "--config", path, "setup", "config"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if runner.config.Sync.Direction != "pull" {
			t.Errorf("expected direction from file, got %q", runner.config.Sync.Direction)
		}
		if runner.config.Plex.Token != "env-token" {
			t.Errorf("expected token from env, got %q", runner.config.Plex.Token)
		}
		if !runner.config.Sync.Movies {
			t.Error("expected keys missing from the file to keep defaults")
		}
		if !strings.Contains(output.String(), "Config already exists") {
			t.Errorf("expected existing config to be kept, got %q", output.String())
		}
	})

	t.Run("invalid file fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("[sync\n"), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})
		err := newApp(runner).Run(context.Background(), []string{"plexsync", "--config", path, "setup", "config"})
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		f := newFixture(t)
		path := filepath.Join(t.TempDir(), "nested", "config.toml")

		if err := f.run("--config", path, "setup", "config"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertDirExists(t, filepath.Dir(path))
		tu.AssertFileExists(t, path)
		if _, err := shared.LoadConfig(path); err != nil {
			t.Errorf("expected the written config to load, got %v", err)
		}
	})

	t.Run("database", func(t *testing.T) {
		f := newFixture(t)

		if err := f.run("setup", "database"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(f.config.DataDir, "plexsync.db"))
	})

	t.Run("database reset clears history", func(t *testing.T) {
		f := newFixture(t)

		if err := f.run("sync", "--dry-run"); err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		if err := f.run("setup", "database", "--reset"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := f.run("history"); err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if !strings.Contains(f.output.String(), "No sync runs recorded yet.") {
			t.Errorf("expected empty history, got %q", f.output.String())
		}
	})
}

func TestAuth(t *testing.T) {
	t.Run("url", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run("auth", "url"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(f.output.String(), "https://trakt.example/oauth/authorize?state=") {
			t.Errorf("expected authorization URL, got %q", f.output.String())
		}
	})

	t.Run("pin", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run("auth", "pin", "ABC123"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(f.trakt.codes) != 1 || f.trakt.codes[0] != "ABC123" {
			t.Errorf("expected code exchanged, got %v", f.trakt.codes)
		}
	})

	t.Run("pin without code", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run("auth", "pin"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("login needs a callback redirect", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run("auth", "login", "--no-browser"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig for the out-of-band redirect, got %v", err)
		}
	})

	t.Run("status", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run("auth", "status"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(f.output.String(), "Not authenticated") {
			t.Errorf("expected not authenticated, got %q", f.output.String())
		}

		f.trakt.token = &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}
		if err := f.run("auth", "status", "--verify"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := f.output.String()
		if !strings.Contains(out, "✓ Authenticated") || !strings.Contains(out, "Trakt accepted the token") {
			t.Errorf("expected verified status, got %q", out)
		}
	})
}

func TestCallbackAddr(t *testing.T) {
	tests := []struct {
		redirect string
		want     string
		wantErr  bool
	}{
		{redirect: "http://127.0.0.1:5000/callback", want: "127.0.0.1:5000"},
		{redirect: "http://localhost/callback", want: "localhost:80"},
		{redirect: "urn:ietf:wg:oauth:2.0:oob", wantErr: true},
		{redirect: "http://127.0.0.1:5000/other", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.redirect, func(t *testing.T) {
			got, err := callbackAddr(tt.redirect)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("expected %q, got %q (%v)", tt.want, got, err)
			}
		})
	}
}

func TestLibraries(t *testing.T) {
	f := newFixture(t)
	if err := f.run("libraries", "--json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var libs []libraryOutput
	if err := json.Unmarshal(f.output.Bytes(), &libs); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if len(libs) != 2 {
		t.Fatalf("expected 2 libraries, got %d", len(libs))
	}
	if !libs[0].Selected || libs[1].Selected || libs[1].Syncable {
		t.Errorf("expected only the movie library selected, got %+v", libs)
	}
}

func TestSync(t *testing.T) {
	t.Run("dry run plans and records", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run("sync", "--dry-run", "--json"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var out map[string]any
		if err := json.Unmarshal(f.output.Bytes(), &out); err != nil {
			t.Fatalf("failed to decode output: %v", err)
		}
		if out["dry_run"] != true || out["state"] != "completed" {
			t.Errorf("unexpected output %v", out)
		}
		if planned, _ := out["planned"].([]any); len(planned) != 2 {
			t.Errorf("expected 2 planned writes, got %v", out["planned"])
		}
		if f.trakt.Writes() != 0 {
			t.Error("expected no tracker writes during a dry run")
		}

		db, history, err := f.runner.openHistory()
		if err != nil {
			t.Fatalf("failed to open history: %v", err)
		}
		defer db.Close()
		runs, err := history.Recent(10)
		if err != nil {
			t.Fatalf("failed to read history: %v", err)
		}
		if len(runs) != 1 || runs[0].Source() != "cli" || !runs[0].DryRun() || runs[0].Counts().Planned != 2 {
			t.Errorf("expected one recorded dry run, got %d", len(runs))
		}
	})

	t.Run("pushes watched items", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run("sync", "--direction", "push"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(f.trakt.HistoryBatches) != 1 || len(f.trakt.HistoryBatches[0]) != 2 {
			t.Errorf("expected one batch of 2, got %v", f.trakt.HistoryBatches)
		}
		if !strings.Contains(f.output.String(), "Sync complete") {
			t.Errorf("expected summary, got %q", f.output.String())
		}
	})

	t.Run("invalid flags", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run("sync", "--direction", "sideways"); err == nil {
			t.Error("expected an error for an unknown direction")
		}
		if err := f.run("sync", "--batch-size", "0"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("failed run returns its error", func(t *testing.T) {
		f := newFixture(t)
		f.trakt.AuthErr = shared.ErrNotAuthenticated

		err := f.run("sync")
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if !strings.Contains(f.output.String(), "Sync failed") {
			t.Errorf("expected failure summary, got %q", f.output.String())
		}
	})

	t.Run("missing credentials without injected services", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.DataDir = t.TempDir()
		runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})

		err := newApp(runner).Run(context.Background(), []string{"plexsync", "sync"})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("lock held by another process", func(t *testing.T) {
		f := newFixture(t)
		lock, err := shared.AcquireLock(f.config.ResolvePath(lockFile))
		if err != nil {
			t.Fatalf("failed to take lock: %v", err)
		}
		defer lock.Release()

		if err := f.run("sync"); !errors.Is(err, shared.ErrLocked) {
			t.Errorf("expected ErrLocked, got %v", err)
		}
	})
}

func TestDaemonRunOnce(t *testing.T) {
	f := newFixture(t)
	if err := f.run("daemon", "--run-once"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	db, history, err := f.runner.openHistory()
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	defer db.Close()

	latest, err := history.Latest()
	if err != nil || latest == nil {
		t.Fatalf("expected a recorded run, got %v (%v)", latest, err)
	}
	if latest.Source() != "startup" || latest.Counts().Mutated != 2 {
		t.Errorf("unexpected run %+v", latest.View())
	}
}

func TestHistory(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run("history"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(f.output.String(), "No sync runs recorded yet") {
			t.Errorf("expected empty message, got %q", f.output.String())
		}
	})

	t.Run("export", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run("sync", "--dry-run"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		path := filepath.Join(t.TempDir(), "history.csv")
		if err := f.run("history", "--format", "csv", "--output", path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		content := tu.MustReadFile(t, path)
		if lines := strings.Split(strings.TrimSpace(content), "\n"); len(lines) != 2 {
			t.Errorf("expected header and one row, got %d lines", len(lines))
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		f := newFixture(t)
		if err := f.run("history", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
