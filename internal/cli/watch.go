package cli

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/forceview/pkg/config"
	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/pipeline"
	"github.com/matzehuels/forceview/pkg/session"
	"github.com/matzehuels/forceview/pkg/sim"
)

// Watch view styles
var (
	watchEdgeStyle    = lipgloss.NewStyle().Foreground(colorDim)
	watchNodeStyle    = lipgloss.NewStyle().Foreground(colorCyan)
	watchHoverStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	watchGrabStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	watchPointerStyle = lipgloss.NewStyle().Foreground(colorRed)
	watchStatusStyle  = lipgloss.NewStyle().Foreground(colorGray)
)

const (
	// refUnitsPerCol is the zoom at which the camera scale is 1.
	refUnitsPerCol = 4.0
	zoomStep       = 1.25
	fastMove       = 5
	chromeRows     = 2
)

// watchCommand creates the watch command, a live terminal view of a session.
func (c *CLI) watchCommand() *cobra.Command {
	var (
		output   string
		noCache  bool
		resume   bool
		save     bool
		governed bool
		fps      float64
		flags    simFlags
	)

	cmd := &cobra.Command{
		Use:   "watch [graph.json|layout.json]",
		Short: "Watch a layout settle in the terminal and drag nodes around",
		Long: `Run a live simulation in the terminal.

Keys:
  arrows, hjkl   move the pointer (shift or HJKL for larger steps)
  space          grab the hovered or nearest node, or release it
  + / -          zoom in and out
  f              fit the layout to the screen
  p              pause
  q, esc         quit

When --config is given, edits to the simulation section are applied live.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, err := c.loadConfig()
			if err != nil {
				return err
			}
			opts := settings.Options()
			flags.apply(cmd.Flags(), &opts)
			if cmd.Flags().Changed("governor") {
				settings.Governor.Enabled = governed
			}
			if cmd.Flags().Changed("fps") {
				if !(fps > 0) {
					return fmt.Errorf("--fps must be positive, got %v", fps)
				}
				settings.Governor.TargetFPS = fps
			}

			runner, err := c.newRunner(ctx, settings, noCache)
			if err != nil {
				return fmt.Errorf("initialize runner: %w", err)
			}
			defer runner.Close()

			sess, err := c.openWatchSession(ctx, runner, args[0], settings, opts, resume)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := c.runWatch(ctx, sess, settings, opts.SettleThreshold); err != nil {
				return err
			}

			layout := sess.Layout()
			if save {
				if err := runner.SaveState(ctx, sess.Graph, layout); err != nil {
					return fmt.Errorf("save positions: %w", err)
				}
				printSuccess("Positions saved")
			}
			if output != "" {
				if err := graph.WriteLayoutFile(layout, output); err != nil {
					return fmt.Errorf("write output %s: %w", output, err)
				}
				printFile(output)
			}
			printStats(layoutStats{
				nodes:      len(layout.Nodes),
				edges:      len(layout.Edges),
				frames:     layout.Frames,
				settleness: layout.Settleness,
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the final layout to this file")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&resume, "resume", false, "start from positions saved by --save")
	cmd.Flags().BoolVar(&save, "save", false, "save positions on exit")
	cmd.Flags().BoolVar(&governed, "governor", false, "trade repulsion work for frame rate")
	cmd.Flags().Float64Var(&fps, "fps", sim.DefaultTargetFPS, "target frame rate")
	flags.register(cmd.Flags())
	registerInputCompletions(cmd)

	return cmd
}

// openWatchSession binds the input to a session, starting from the layout's
// positions or from saved state when resume is set.
func (c *CLI) openWatchSession(ctx context.Context, runner *pipeline.Runner, input string, settings config.File, opts pipeline.Options, resume bool) (*session.Session, error) {
	in, err := pipeline.ReadInput(input, os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", input, err)
	}
	m, err := graph.ToBuffers(in.Graph, opts.Radius)
	if err != nil {
		return nil, err
	}

	settings.Simulation.Strategy = opts.Strategy
	simOpts, err := settings.Simulation.SimOptions()
	if err != nil {
		return nil, err
	}
	simOpts = append(simOpts, sim.WithSeed(opts.Seed))

	sopts := session.Options{Params: opts.Params, SimOptions: simOpts}
	if settings.Governor.Enabled {
		sopts.Governor = &session.GovernorOptions{
			TargetFPS:   settings.Governor.TargetFPS,
			MinFraction: settings.Governor.MinFraction,
		}
	}
	switch {
	case in.Layout != nil:
		if pos, ok := in.Layout.Positions(m); ok {
			sopts.Positions = pos
		}
	case resume:
		pos, ok, err := runner.LoadState(ctx, in.Graph, m)
		if err != nil {
			c.Logger.Warn("load saved positions", "error", err)
		}
		if ok {
			sopts.Positions = pos
		}
	}
	return session.New(in.Graph, m, sopts)
}

// runWatch runs the terminal UI until the user quits or ctx is done.
func (c *CLI) runWatch(ctx context.Context, sess *session.Session, settings config.File, settle float64) error {
	tick := time.Duration(float64(time.Second) / settings.Governor.TargetFPS)
	model := newWatchModel(ctx, sess, tick, settle)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if c.ConfigPath != "" {
		// The alt screen owns the terminal; only errors get through.
		quiet := c.Logger.With()
		quiet.SetLevel(log.ErrorLevel)
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			_ = config.Watch(wctx, c.ConfigPath, quiet, func(f config.File) {
				p.Send(reloadMsg(f))
			})
		}()
	}

	final, err := p.Run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	if wm, ok := final.(watchModel); ok && wm.err != nil {
		return wm.err
	}
	return nil
}

// =============================================================================
// watchModel - Live simulation view
// =============================================================================

type (
	frameMsg  time.Time
	reloadMsg config.File
)

// viewport maps world coordinates onto terminal cells. A cell is twice as
// tall as it is wide.
type viewport struct {
	width, height int
	unitsPerCol   float64
	center        r2.Vec
}

func (v viewport) cell(p r2.Vec) (col, row int) {
	col = int(math.Floor((p.X-v.center.X)/v.unitsPerCol + float64(v.width)/2))
	row = int(math.Floor((p.Y-v.center.Y)/(2*v.unitsPerCol) + float64(v.height)/2))
	return col, row
}

func (v viewport) contains(col, row int) bool {
	return col >= 0 && col < v.width && row >= 0 && row < v.height
}

// zoom is the magnification relative to refUnitsPerCol.
func (v viewport) zoom() float64 { return refUnitsPerCol / v.unitsPerCol }

// fit centers v on positions and picks the zoom that shows all of them.
func (v viewport) fit(positions [][2]float64) viewport {
	if len(positions) == 0 || v.width < 3 || v.height < 3 {
		return v
	}
	lo := r2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	hi := r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, p := range positions {
		lo.X, lo.Y = min(lo.X, p[0]), min(lo.Y, p[1])
		hi.X, hi.Y = max(hi.X, p[0]), max(hi.Y, p[1])
	}
	v.center = r2.Scale(0.5, r2.Add(lo, hi))
	span := r2.Sub(hi, lo)
	v.unitsPerCol = max(
		span.X/float64(v.width-2),
		span.Y/(2*float64(v.height-2)),
		0.25,
	)
	return v
}

type watchModel struct {
	ctx    context.Context
	sess   *session.Session
	tick   time.Duration
	settle float64

	view      viewport
	fitted    bool
	pointer   r2.Vec
	grabbed   int
	paused    bool
	stats     sim.FrameStats
	positions [][2]float64
	lastTick  time.Time
	fps       float64
	notice    string
	err       error
}

func newWatchModel(ctx context.Context, sess *session.Session, tick time.Duration, settle float64) watchModel {
	return watchModel{
		ctx:       ctx,
		sess:      sess,
		tick:      tick,
		settle:    settle,
		view:      viewport{width: 80, height: 24 - chromeRows, unitsPerCol: refUnitsPerCol},
		grabbed:   sim.NoNode,
		stats:     sim.FrameStats{Active: sim.NoNode, Grabbed: sim.NoNode, Hovered: sim.NoNode},
		positions: sess.Positions(),
	}
}

func (m watchModel) Init() tea.Cmd {
	return m.nextFrame()
}

func (m watchModel) nextFrame() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.view.width = msg.Width
		m.view.height = max(msg.Height-chromeRows, 1)
		if !m.fitted {
			m.view = m.view.fit(m.positions)
			m.pointer = m.view.center
			m.fitted = true
			m.pushInput()
		}
		return m, nil

	case frameMsg:
		now := time.Time(msg)
		if !m.lastTick.IsZero() {
			if dt := now.Sub(m.lastTick).Seconds(); dt > 0 {
				if m.fps == 0 {
					m.fps = 1 / dt
				}
				m.fps = 0.9*m.fps + 0.1/dt
			}
		}
		m.lastTick = now
		if !m.paused {
			stats, err := m.sess.Step(m.ctx)
			if err != nil {
				m.err = err
				return m, tea.Quit
			}
			m.stats = stats
			m.positions = m.sess.Positions()
		}
		return m, m.nextFrame()

	case reloadMsg:
		if err := m.sess.SetParams(config.File(msg).Simulation.Params); err != nil {
			m.notice = "config rejected: " + err.Error()
		} else {
			m.notice = "config reloaded"
		}
		return m, nil
	}
	return m, nil
}

func (m watchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	step := r2.Vec{X: m.view.unitsPerCol, Y: 2 * m.view.unitsPerCol}
	move := func(dx, dy float64) {
		m.pointer = r2.Add(m.pointer, r2.Vec{X: dx * step.X, Y: dy * step.Y})
		m.pushInput()
	}

	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "left", "h":
		move(-1, 0)
	case "right", "l":
		move(1, 0)
	case "up", "k":
		move(0, -1)
	case "down", "j":
		move(0, 1)
	case "shift+left", "H":
		move(-fastMove, 0)
	case "shift+right", "L":
		move(fastMove, 0)
	case "shift+up", "K":
		move(0, -fastMove)
	case "shift+down", "J":
		move(0, fastMove)
	case " ", "space":
		m.toggleGrab()
	case "+", "=":
		m.view.unitsPerCol /= zoomStep
		m.pushInput()
	case "-", "_":
		m.view.unitsPerCol *= zoomStep
		m.pushInput()
	case "f", "0":
		m.view = m.view.fit(m.positions)
		m.pushInput()
	case "p":
		m.paused = !m.paused
	}
	return m, nil
}

// toggleGrab releases the held node, or grabs the hovered node and falls
// back to the node nearest the pointer.
func (m *watchModel) toggleGrab() {
	if m.grabbed != sim.NoNode {
		m.grabbed = sim.NoNode
		m.pushInput()
		return
	}
	target := m.stats.Hovered
	if target == sim.NoNode {
		target = m.nearest(3 * m.view.unitsPerCol)
	}
	if target == sim.NoNode {
		m.notice = "nothing under the pointer"
		return
	}
	m.grabbed = target
	m.notice = ""
	m.pushInput()
}

func (m watchModel) nearest(radius float64) int {
	ids, err := m.sess.Nearby(m.pointer, radius)
	if err != nil {
		return sim.NoNode
	}
	best, bestDist := sim.NoNode, math.Inf(1)
	for _, i := range ids {
		if i < 0 || i >= len(m.positions) {
			continue
		}
		p := m.positions[i]
		d := r2.Norm(r2.Sub(r2.Vec{X: p[0], Y: p[1]}, m.pointer))
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (m watchModel) pushInput() {
	m.sess.SetInput(session.Input{
		Pointer: m.pointer,
		Grabbed: m.grabbed,
		Scale:   m.view.zoom(),
	})
}

func (m watchModel) View() string {
	var b strings.Builder
	for _, line := range drawCanvas(m.view, m.sess.Model, m.positions, m.pointer, m.stats.Hovered, m.grabbed) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(watchStatusStyle.Render(m.statusLine()))
	b.WriteByte('\n')
	b.WriteString(StyleDim.Render("arrows/hjkl move · space grab · +/- zoom · f fit · p pause · q quit"))
	return b.String()
}

func (m watchModel) statusLine() string {
	parts := []string{
		fmt.Sprintf("frame %d", m.stats.Frame),
		fmt.Sprintf("settleness %.4f", m.stats.Settleness),
		fmt.Sprintf("window %d-%d", m.stats.WindowStart, m.stats.WindowEnd),
		fmt.Sprintf("zoom %.2fx", m.view.zoom()),
		fmt.Sprintf("%.0f fps", m.fps),
	}
	if m.stats.Frame > 0 && m.stats.Settleness < m.settle {
		parts = append(parts, StyleSuccess.Render("settled"))
	}
	if m.paused {
		parts = append(parts, StyleWarning.Render("paused"))
	}
	if id := m.nodeID(m.grabbed); id != "" {
		parts = append(parts, "holding "+watchGrabStyle.Render(id))
	} else if id := m.nodeID(m.stats.Hovered); id != "" {
		parts = append(parts, "over "+watchHoverStyle.Render(id))
	}
	if m.notice != "" {
		parts = append(parts, m.notice)
	}
	return strings.Join(parts, " · ")
}

func (m watchModel) nodeID(i int) string {
	if i < 0 || i >= m.sess.Model.Len() {
		return ""
	}
	return m.sess.Model.Nodes[i].ID
}

// =============================================================================
// Canvas
// =============================================================================

type cellKind uint8

const (
	cellEmpty cellKind = iota
	cellEdge
	cellNode
	cellHover
	cellGrab
	cellPointer
)

var cellStyles = map[cellKind]lipgloss.Style{
	cellEdge:    watchEdgeStyle,
	cellNode:    watchNodeStyle,
	cellHover:   watchHoverStyle,
	cellGrab:    watchGrabStyle,
	cellPointer: watchPointerStyle,
}

// drawCanvas rasterizes edges, nodes and the pointer into styled lines.
func drawCanvas(v viewport, model *graph.Model, positions [][2]float64, pointer r2.Vec, hovered, grabbed int) []string {
	if v.width <= 0 || v.height <= 0 {
		return nil
	}
	glyphs := make([][]rune, v.height)
	kinds := make([][]cellKind, v.height)
	for r := range glyphs {
		glyphs[r] = []rune(strings.Repeat(" ", v.width))
		kinds[r] = make([]cellKind, v.width)
	}
	put := func(col, row int, g rune, k cellKind) {
		if v.contains(col, row) && k >= kinds[row][col] {
			glyphs[row][col] = g
			kinds[row][col] = k
		}
	}
	at := func(i int) r2.Vec { return r2.Vec{X: positions[i][0], Y: positions[i][1]} }

	for e := range model.Sources {
		s, t := model.Sources[e], model.Targets[e]
		if s >= len(positions) || t >= len(positions) {
			continue
		}
		c0, r0 := v.cell(at(s))
		c1, r1 := v.cell(at(t))
		steps := max(abs(c1-c0), abs(r1-r0))
		for k := 1; k < steps; k++ {
			f := float64(k) / float64(steps)
			col := c0 + int(math.Round(f*float64(c1-c0)))
			row := r0 + int(math.Round(f*float64(r1-r0)))
			put(col, row, '·', cellEdge)
		}
	}

	for i := range positions {
		col, row := v.cell(at(i))
		switch {
		case i == grabbed:
			put(col, row, '◉', cellGrab)
		case i == hovered:
			put(col, row, '◎', cellHover)
		case i < len(model.Radii) && model.Radii[i]/v.unitsPerCol >= 2:
			put(col, row, '●', cellNode)
		default:
			put(col, row, '•', cellNode)
		}
	}

	if col, row := v.cell(pointer); v.contains(col, row) && kinds[row][col] < cellNode {
		put(col, row, '+', cellPointer)
	}

	lines := make([]string, v.height)
	for r := range glyphs {
		var b strings.Builder
		start := 0
		for c := 1; c <= v.width; c++ {
			if c < v.width && kinds[r][c] == kinds[r][start] {
				continue
			}
			run := string(glyphs[r][start:c])
			if style, ok := cellStyles[kinds[r][start]]; ok {
				run = style.Render(run)
			}
			b.WriteString(run)
			start = c
		}
		lines[r] = b.String()
	}
	return lines
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
