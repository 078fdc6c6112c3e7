package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/tasks"
)

type scriptedEngine struct {
	updates []tasks.ProgressUpdate
	result  *tasks.Result
	opts    tasks.Options
}

func (e *scriptedEngine) Run(ctx context.Context, opts tasks.Options, progress chan<- tasks.ProgressUpdate) *tasks.Result {
	e.opts = opts
	for _, u := range e.updates {
		progress <- u
	}
	return e.result
}

func keyMsg(s string) tea.KeyMsg {
	if s == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drain runs cmd and feeds the resulting messages back into the model until the sync completes.
func drain(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	for range 20 {
		if cmd == nil {
			return
		}
		msg := cmd()
		_, cmd = m.Update(msg)
		if m.view == ResultView {
			return
		}
	}
	t.Fatal("sync did not complete")
}

func TestModel(t *testing.T) {
	baseOpts := tasks.Options{Movies: true, Shows: true, Watched: true, Direction: tasks.Push}

	t.Run("Confirm Toggles", func(t *testing.T) {
		m := NewModel(context.Background(), &scriptedEngine{}, baseOpts, nil)

		m.Update(keyMsg("d"))
		m.Update(keyMsg("t"))
		if !m.opts.DryRun || !m.opts.TwoWay {
			t.Errorf("expected dry run and two-way toggled on, got %+v", m.opts)
		}
		if view := m.View(); !strings.Contains(view, "two-way") {
			t.Errorf("expected mode shown in confirm view, got:\n%s", view)
		}

		m.Update(keyMsg("d"))
		if m.opts.DryRun {
			t.Error("expected dry run toggled back off")
		}
	})

	t.Run("Runs To Result", func(t *testing.T) {
		engine := &scriptedEngine{
			updates: []tasks.ProgressUpdate{
				{State: tasks.Authenticating, Message: "Authenticating with Trakt"},
				{State: tasks.Mutating, Step: 1, Total: 2, Stats: tasks.SyncStats{Seen: 4, Mutated: 1}},
			},
			result: &tasks.Result{State: tasks.Completed, Stats: tasks.SyncStats{Seen: 10, Matched: 8, Mutated: 3}},
		}
		var finished *tasks.Result
		m := NewModel(context.Background(), engine, baseOpts, func(r *tasks.Result) { finished = r })

		_, cmd := m.Update(keyMsg("enter"))
		if m.view != SyncView {
			t.Fatalf("expected sync view, got %v", m.view)
		}

		msg := cmd()
		m.Update(msg)
		if m.progress.State != tasks.Authenticating {
			t.Errorf("expected first progress update applied, got %v", m.progress.State)
		}
		if view := m.View(); !strings.Contains(view, "authenticating") {
			t.Errorf("expected state in sync view, got:\n%s", view)
		}

		drain(t, m, m.waitForProgress())

		if m.Result() == nil || m.Result().Stats.Mutated != 3 {
			t.Fatalf("expected final result, got %+v", m.Result())
		}
		if finished != m.Result() {
			t.Error("expected onFinish called with the result")
		}
		if view := m.View(); !strings.Contains(view, "Sync complete") {
			t.Errorf("expected completion title, got:\n%s", view)
		}

		m.Update(keyMsg("r"))
		if m.view != ConfirmView || m.Result() != nil {
			t.Error("expected restart to return to the confirm view")
		}
	})

	t.Run("Dry Run Lists Planned Writes", func(t *testing.T) {
		var planned []tasks.Mutation
		for i := range plannedPreview + 2 {
			planned = append(planned, tasks.Mutation{
				Direction: tasks.Push,
				Action:    tasks.AddHistory,
				Label:     "Movie " + string(rune('A'+i)),
				Via:       models.IMDB,
			})
		}
		engine := &scriptedEngine{result: &tasks.Result{State: tasks.Completed, DryRun: true, Planned: planned, Stats: tasks.SyncStats{Planned: len(planned)}}}
		m := NewModel(context.Background(), engine, baseOpts, nil)
		m.Update(keyMsg("d"))

		_, cmd := m.Update(keyMsg("enter"))
		drain(t, m, cmd)

		if !engine.opts.DryRun {
			t.Error("expected toggled dry run passed to the engine")
		}
		view := m.View()
		for _, want := range []string{"Dry run complete", "Would make 12 writes", "Movie A", "and 2 more"} {
			if !strings.Contains(view, want) {
				t.Errorf("result view missing %q:\n%s", want, view)
			}
		}
	})

	t.Run("Failure", func(t *testing.T) {
		engine := &scriptedEngine{result: &tasks.Result{State: tasks.Failed, Err: errors.New("authenticate with Trakt: not authenticated")}}
		m := NewModel(context.Background(), engine, baseOpts, nil)

		_, cmd := m.Update(keyMsg("enter"))
		drain(t, m, cmd)

		if view := m.View(); !strings.Contains(view, "Sync failed") || !strings.Contains(view, "not authenticated") {
			t.Errorf("expected failure in result view, got:\n%s", view)
		}
	})

	t.Run("Quit", func(t *testing.T) {
		m := NewModel(context.Background(), &scriptedEngine{}, baseOpts, nil)
		_, cmd := m.Update(keyMsg("q"))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})
}
