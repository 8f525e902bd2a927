package cli

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/forceview/pkg/config"
	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/session"
	"github.com/matzehuels/forceview/pkg/sim"
)

func newTestWatchModel(t *testing.T) watchModel {
	t.Helper()
	g := graph.Graph{
		Nodes: []graph.Node{{ID: "hub"}, {ID: "a"}, {ID: "b"}},
		Edges: []graph.Edge{{From: "hub", To: "a"}, {From: "hub", To: "b"}},
	}
	m, err := graph.ToBuffers(g, graph.DefaultRadiusOptions())
	if err != nil {
		t.Fatal(err)
	}
	sess, err := session.New(g, m, session.Options{Params: sim.DefaultParams()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sess.Close() })
	return newWatchModel(context.Background(), sess, 10*time.Millisecond, 0.02)
}

func update(t *testing.T, m watchModel, msg tea.Msg) (watchModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	wm, ok := next.(watchModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return wm, cmd
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewportCell(t *testing.T) {
	v := viewport{width: 20, height: 10, unitsPerCol: 1}
	if col, row := v.cell(r2.Vec{}); col != 10 || row != 5 {
		t.Errorf("origin at (%d,%d), want (10,5)", col, row)
	}
	if col, row := v.cell(r2.Vec{X: 4, Y: 4}); col != 14 || row != 7 {
		t.Errorf("(4,4) at (%d,%d), want (14,7)", col, row)
	}
	if v.contains(20, 0) || v.contains(0, -1) || !v.contains(19, 9) {
		t.Error("contains disagrees with the canvas bounds")
	}
}

func TestViewportFit(t *testing.T) {
	v := viewport{width: 20, height: 10, unitsPerCol: 1}
	v = v.fit([][2]float64{{-10, -5}, {30, 15}})

	if v.center != (r2.Vec{X: 10, Y: 5}) {
		t.Errorf("center = %v, want (10,5)", v.center)
	}
	if want := 40.0 / 18; math.Abs(v.unitsPerCol-want) > 1e-9 {
		t.Errorf("unitsPerCol = %v, want %v", v.unitsPerCol, want)
	}
	for _, p := range [][2]float64{{-10, -5}, {30, 15}} {
		if col, row := v.cell(r2.Vec{X: p[0], Y: p[1]}); !v.contains(col, row) {
			t.Errorf("%v falls outside the fitted view at (%d,%d)", p, col, row)
		}
	}
}

func TestDrawCanvas(t *testing.T) {
	g := graph.Graph{
		Nodes: []graph.Node{{ID: "a"}, {ID: "b"}},
		Edges: []graph.Edge{{From: "a", To: "b"}},
	}
	model, err := graph.ToBuffers(g, graph.DefaultRadiusOptions())
	if err != nil {
		t.Fatal(err)
	}
	v := viewport{width: 20, height: 10, unitsPerCol: 1}
	positions := [][2]float64{{-5, 0}, {5, 0}}

	lines := drawCanvas(v, model, positions, r2.Vec{Y: -4}, sim.NoNode, 0)
	if len(lines) != 10 {
		t.Fatalf("got %d lines, want 10", len(lines))
	}
	row := lines[5]
	for _, glyph := range []string{"◉", "●", "·"} {
		if !strings.Contains(row, glyph) {
			t.Errorf("row %q should contain %q", row, glyph)
		}
	}
	if !strings.Contains(lines[3], "+") {
		t.Errorf("pointer row %q should contain +", lines[3])
	}
}

func TestWatchFrameAdvances(t *testing.T) {
	m := newTestWatchModel(t)

	m, cmd := update(t, m, frameMsg(time.Now()))
	if cmd == nil {
		t.Error("a frame should schedule the next one")
	}
	if m.stats.Frame != 1 {
		t.Errorf("frame = %d, want 1", m.stats.Frame)
	}

	m, _ = update(t, m, key("p"))
	m, _ = update(t, m, frameMsg(time.Now()))
	if m.stats.Frame != 1 {
		t.Errorf("paused view advanced to frame %d", m.stats.Frame)
	}
}

func TestWatchPointerAndGrab(t *testing.T) {
	m := newTestWatchModel(t)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 60, Height: 20})

	start := m.pointer
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if got := m.pointer.X - start.X; math.Abs(got-m.view.unitsPerCol) > 1e-9 {
		t.Errorf("right moved the pointer by %v, want one column", got)
	}
	if got := m.sess.Input().Pointer; got != m.pointer {
		t.Errorf("session pointer = %v, want %v", got, m.pointer)
	}

	target := m.positions[2]
	m.pointer = r2.Vec{X: target[0], Y: target[1]}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeySpace})
	if m.grabbed != 2 {
		t.Fatalf("grabbed = %d, want 2", m.grabbed)
	}
	if got := m.sess.Input().Grabbed; got != 2 {
		t.Errorf("session grabbed = %d, want 2", got)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeySpace})
	if m.grabbed != sim.NoNode || m.sess.Input().Grabbed != sim.NoNode {
		t.Error("second space should release the node")
	}
}

func TestWatchZoom(t *testing.T) {
	m := newTestWatchModel(t)
	before := m.view.zoom()

	m, _ = update(t, m, key("+"))
	if got := m.view.zoom(); math.Abs(got-before*zoomStep) > 1e-9 {
		t.Errorf("zoom = %v, want %v", got, before*zoomStep)
	}
	if got := m.sess.Input().Scale; math.Abs(got-m.view.zoom()) > 1e-9 {
		t.Errorf("camera scale = %v, want %v", got, m.view.zoom())
	}
	m, _ = update(t, m, key("-"))
	if got := m.view.zoom(); math.Abs(got-before) > 1e-9 {
		t.Errorf("zoom = %v, want %v", got, before)
	}
}

func TestWatchReload(t *testing.T) {
	m := newTestWatchModel(t)
	f := config.Default()
	f.Simulation.Params.Repulsion = 123

	m, _ = update(t, m, reloadMsg(f))
	if got := m.sess.Params().Repulsion; got != 123 {
		t.Errorf("repulsion = %v, want 123", got)
	}
	if m.notice != "config reloaded" {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestWatchQuit(t *testing.T) {
	m := newTestWatchModel(t)
	for _, k := range []tea.KeyMsg{key("q"), {Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
		_, cmd := update(t, m, k)
		if cmd == nil {
			t.Fatalf("%q should quit", k.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%q should return tea.Quit", k.String())
		}
	}
}

func TestWatchViewShowsStatus(t *testing.T) {
	m := newTestWatchModel(t)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 60, Height: 12})
	m, _ = update(t, m, frameMsg(time.Now()))

	view := m.View()
	if !strings.Contains(view, "frame 1") {
		t.Errorf("status should show the frame count:\n%s", view)
	}
	if got := strings.Count(view, "\n"); got != 11 {
		t.Errorf("view has %d line breaks, want 11", got)
	}
}
