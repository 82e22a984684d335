// Package tui provides the interactive Bubble Tea flame graph explorer.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/theirongolddev/flamekit/internal/cli"
	"github.com/theirongolddev/flamekit/internal/config"
	"github.com/theirongolddev/flamekit/internal/fetch"
	"github.com/theirongolddev/flamekit/internal/metric"
	"github.com/theirongolddev/flamekit/internal/model"
	"github.com/theirongolddev/flamekit/internal/pipeline"
	"github.com/theirongolddev/flamekit/internal/store"
	"github.com/theirongolddev/flamekit/internal/tui/components"
	"github.com/theirongolddev/flamekit/internal/tui/theme"
)

// ProgressMsg reports file parsing progress.
type ProgressMsg struct {
	Current int
	Total   int
}

// ProfilesLoadedMsg is sent when the import finishes and the profile list
// has been read.
type ProfilesLoadedMsg struct {
	Profiles []model.ProfileInfo
	Import   *pipeline.ImportResult
	Err      error
	LoadTime time.Duration
}

// FlameMsg is sent when a submitted computation finishes.
type FlameMsg struct {
	Outcome fetch.Outcome
	Err     error
	Took    time.Duration
}

// Options configures the explorer.
type Options struct {
	DB          *store.DB
	ProfilesDir string
	// Profile preselects a profile by id or name.
	Profile string
	Metric  string
	Filters model.Filters
	Width   float64
	Logger  *log.Logger
	// ConfigPath is where the first-run form saves; empty means
	// config.ConfigPath().
	ConfigPath string
	// SkipSetup suppresses the first-run form.
	SkipSetup bool
	// Compute replaces pipeline.Compute.
	Compute fetch.ComputeFunc
}

// App is the root Bubble Tea model.
type App struct {
	db          *store.DB
	orch        *fetch.Orchestrator
	profilesDir string
	initial     Options

	// Data
	profiles   []model.ProfileInfo
	profileIdx int
	registry   *metric.Registry
	metricIdx  int
	filters    model.Filters
	loaded     bool
	loadTime   time.Duration

	// Committed graph and selection
	graph     *model.QueryData
	graphGen  uint64
	children  [][]int
	selected  int
	computeMs int64

	// In-flight state
	pending int
	err     error
	message string

	// UI state
	width    int
	height   int
	showHelp bool
	editing  bool
	input    textinput.Model

	// First-run setup (huh form)
	setupForm *huh.Form
	setupVals setupValues
	needSetup bool

	// Loading: channel-based progress subscription
	spinner     spinner.Model
	progress    int
	progressMax int
	loadSub     chan tea.Msg
}

const (
	minTerminalWidth = 40
	headerLines      = 2
	footerLines      = 2
	minFlameHeight   = 3
)

// New creates the explorer model.
func New(opts Options) App {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.ConfigPath()
	}
	_, statErr := os.Stat(opts.ConfigPath)
	needSetup := !opts.SkipSetup && os.IsNotExist(statErr)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent).Background(theme.Active.Surface)

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	fopts := []fetch.Option{fetch.WithLogger(logger), fetch.WithWidth(opts.Width)}
	if opts.Compute != nil {
		fopts = append(fopts, fetch.WithCompute(opts.Compute))
	}

	filters := opts.Filters
	if filters.View.Kind == "" {
		filters.View = model.TopDown()
	}

	return App{
		db:          opts.DB,
		orch:        fetch.New(opts.DB, fopts...),
		profilesDir: opts.ProfilesDir,
		initial:     opts,
		filters:     filters,
		selected:    -1,
		needSetup:   needSetup,
		spinner:     sp,
		input:       newFilterInput(),
		loadSub:     make(chan tea.Msg, 1),
	}
}

func newFilterInput() textinput.Model {
	ti := textinput.New()
	ti.Prompt = " filter> "
	ti.Placeholder = "show:main hide:gc from:handler elide:runtime pivot:malloc"
	ti.CharLimit = 512
	return ti
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		tea.EnableMouseCellMotion,
		loadProfilesCmd(a.db, a.profilesDir, a.loadSub),
		a.spinner.Tick,
	)
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if a.setupForm != nil {
			a.setupForm = a.setupForm.WithWidth(msg.Width).WithHeight(msg.Height)
		}
		a.input.Width = max(msg.Width-12, 10)
		return a, nil

	case tea.MouseMsg:
		if !a.loaded || a.showHelp || a.editing || (a.needSetup && a.setupForm != nil) {
			return a, nil
		}
		return a.updateMouse(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if !a.loaded {
			return a, nil
		}
		if a.needSetup && a.setupForm != nil {
			return a.updateSetupForm(msg)
		}
		if a.editing {
			return a.updateFilterInput(msg)
		}
		return a.updateKey(msg)

	case ProgressMsg:
		a.progress = msg.Current
		a.progressMax = msg.Total
		return a, waitForLoadMsg(a.loadSub)

	case ProfilesLoadedMsg:
		return a.onProfilesLoaded(msg)

	case FlameMsg:
		a.onFlame(msg)
		return a, nil

	case spinner.TickMsg:
		if !a.loaded || a.pending > 0 {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil
	}

	// Forward unhandled messages to the setup form (cursor blinks, etc.)
	if a.needSetup && a.setupForm != nil {
		return a.updateSetupForm(msg)
	}
	if a.editing {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a App) onProfilesLoaded(msg ProfilesLoadedMsg) (tea.Model, tea.Cmd) {
	first := !a.loaded
	a.loaded = true
	a.loadTime = msg.LoadTime
	a.profiles = msg.Profiles
	a.progress, a.progressMax = 0, 0

	switch {
	case msg.Err != nil:
		a.err = msg.Err
	case msg.Import != nil && msg.Import.Imported+msg.Import.Removed > 0:
		a.message = fmt.Sprintf("imported %d, removed %d", msg.Import.Imported, msg.Import.Removed)
	}

	if first && a.needSetup {
		a.setupForm = newSetupForm(len(a.profiles), a.profilesDir, &a.setupVals)
		if a.width > 0 {
			a.setupForm = a.setupForm.WithWidth(a.width).WithHeight(a.height)
		}
		return a, a.setupForm.Init()
	}

	idx := a.profileIdx
	if first {
		idx = a.findProfile(a.initial.Profile)
	} else if cur := a.currentProfile(); cur != nil {
		idx = a.findProfile(cur.ID)
	}
	return a, a.selectProfile(idx, first)
}

func (a App) findProfile(key string) int {
	for i, p := range a.profiles {
		if p.ID == key || (key != "" && p.Name == key) {
			return i
		}
	}
	return 0
}

func (a *App) currentProfile() *model.ProfileInfo {
	if a.profileIdx < 0 || a.profileIdx >= len(a.profiles) {
		return nil
	}
	return &a.profiles[a.profileIdx]
}

// selectProfile switches to profile i and recomputes. The metric by the
// same name is kept when the new profile has it.
func (a *App) selectProfile(i int, first bool) tea.Cmd {
	if len(a.profiles) == 0 {
		a.registry = nil
		a.graph = nil
		a.selected = -1
		return nil
	}
	a.profileIdx = (i%len(a.profiles) + len(a.profiles)) % len(a.profiles)

	want := a.initial.Metric
	if !first {
		if m, ok := a.currentMetric(); ok {
			want = m.Name
		}
	}

	reg, err := a.db.Registry(a.profiles[a.profileIdx].ID)
	if err != nil {
		a.err = err
		return nil
	}
	a.registry = reg
	a.metricIdx = 0
	for j, m := range reg.Metrics() {
		if m.Name == want {
			a.metricIdx = j
		}
	}
	return a.submit()
}

func (a App) currentMetric() (metric.Metric, bool) {
	if a.registry == nil || a.registry.Len() == 0 {
		return metric.Metric{}, false
	}
	return a.registry.Metrics()[a.metricIdx%a.registry.Len()], true
}

// submit hands the current metric and filters to the orchestrator. Results
// arrive as FlameMsg; only committed ones replace the graph.
func (a *App) submit() tea.Cmd {
	m, ok := a.currentMetric()
	if !ok {
		return nil
	}
	a.pending++
	a.message = ""

	orch := a.orch
	f := a.filters
	compute := func() tea.Msg {
		start := time.Now()
		out, err := orch.Submit(context.Background(), m, f)
		return FlameMsg{Outcome: out, Err: err, Took: time.Since(start)}
	}
	if a.pending == 1 {
		return tea.Batch(compute, a.spinner.Tick)
	}
	return compute
}

func (a *App) onFlame(msg FlameMsg) {
	if a.pending > 0 {
		a.pending--
	}

	switch msg.Outcome.State {
	case fetch.StateCommitted:
		if msg.Outcome.Generation <= a.graphGen {
			return
		}
		a.setGraph(msg.Outcome.Data, msg.Outcome.Generation)
		a.computeMs = msg.Took.Milliseconds()
		a.err = nil
	case fetch.StateErrored:
		// Only the latest submission's failure is worth showing; the last
		// committed graph stays on screen.
		if msg.Outcome.Generation == a.orch.Generation() {
			a.err = msg.Err
		}
	case fetch.StateSuperseded:
		if msg.Err != nil {
			a.message = msg.Err.Error()
		}
	}
}

func (a *App) setGraph(q *model.QueryData, gen uint64) {
	var prevHash uint64
	hadSelection := a.graph != nil && a.selected >= 0 && a.selected < len(a.graph.Nodes)
	if hadSelection {
		prevHash = a.graph.Nodes[a.selected].Hash
	}

	a.graph = q
	a.graphGen = gen
	a.children = make([][]int, len(q.Nodes))
	for _, n := range q.Nodes {
		if n.ParentID != nil {
			a.children[*n.ParentID] = append(a.children[*n.ParentID], n.ID)
		}
	}

	a.selected = -1
	if len(q.Nodes) == 0 {
		return
	}
	a.selected = 0
	if hadSelection {
		for _, n := range q.Nodes {
			if n.Hash == prevHash {
				a.selected = n.ID
				break
			}
		}
	}
}

func (a App) selectedNode() (model.Node, bool) {
	if a.graph == nil || a.selected < 0 || a.selected >= len(a.graph.Nodes) {
		return model.Node{}, false
	}
	return a.graph.Nodes[a.selected], true
}

func (a App) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "?" {
		a.showHelp = !a.showHelp
		return a, nil
	}
	if a.showHelp {
		a.showHelp = false
		return a, nil
	}

	switch key {
	case "q":
		return a, tea.Quit

	// Views
	case "t":
		return a, a.setView(model.TopDown())
	case "b":
		return a, a.setView(model.BottomUp())
	case "p", "enter":
		if n, ok := a.selectedNode(); ok {
			return a, a.setView(model.PivotOn(exact(n.Name)))
		}
		return a, nil
	case "tab":
		next := (components.TabIndex(a.filters.View.Kind) + 1) % len(components.Tabs)
		if components.Tabs[next].View == model.ViewPivot && a.filters.View.Pivot == "" {
			next = 0
		}
		return a, a.setView(viewForTab(next, a.filters.View.Pivot))

	// Metrics and profiles
	case "m", "M":
		if a.registry == nil || a.registry.Len() < 2 {
			return a, nil
		}
		step := 1
		if key == "M" {
			step = a.registry.Len() - 1
		}
		a.metricIdx = (a.metricIdx + step) % a.registry.Len()
		return a, a.submit()
	case "]":
		return a, a.selectProfile(a.profileIdx+1, false)
	case "[":
		return a, a.selectProfile(a.profileIdx-1, false)

	// Filters from the selection
	case "f":
		if n, ok := a.selectedNode(); ok {
			a.filters.ShowFromFrame = []string{exact(n.Name)}
			return a, a.submit()
		}
		return a, nil
	case "x":
		if n, ok := a.selectedNode(); ok {
			a.filters.HideFrame = append(a.filters.HideFrame, exact(n.Name))
			return a, a.submit()
		}
		return a, nil
	case "X":
		if n, ok := a.selectedNode(); ok {
			a.filters.HideStack = append(a.filters.HideStack, exact(n.Name))
			return a, a.submit()
		}
		return a, nil
	case "esc":
		view := a.filters.View
		if view.Kind == model.ViewPivot {
			view = model.TopDown()
		}
		a.filters = model.Filters{View: view}
		return a, a.submit()
	case "/":
		a.editing = true
		a.input.SetValue(a.query().String())
		a.input.CursorEnd()
		return a, a.input.Focus()

	// Reimport
	case "r":
		if a.pending > 0 {
			return a, nil
		}
		return a, refreshProfilesCmd(a.db, a.profilesDir)

	// Selection
	case "k", "up":
		a.moveVertical(true)
	case "j", "down":
		a.moveVertical(false)
	case "h", "left":
		a.moveSibling(-1)
	case "l", "right":
		a.moveSibling(1)
	case "g":
		if a.graph != nil && len(a.graph.Nodes) > 0 {
			a.selected = 0
		}
	}
	return a, nil
}

func viewForTab(i int, pivot string) model.View {
	switch components.Tabs[i].View {
	case model.ViewBottomUp:
		return model.BottomUp()
	case model.ViewPivot:
		return model.PivotOn(pivot)
	default:
		return model.TopDown()
	}
}

func (a *App) setView(v model.View) tea.Cmd {
	if v == a.filters.View {
		return nil
	}
	a.filters.View = v
	return a.submit()
}

func (a App) query() filterQuery {
	q := filterQuery{filters: a.filters}
	if a.filters.View.Kind == model.ViewPivot {
		q.pivot = a.filters.View.Pivot
	}
	return q
}

func (a App) updateFilterInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		a.editing = false
		a.input.Blur()
		q, err := parseFilterQuery(strings.TrimSpace(a.input.Value()))
		if err != nil {
			a.err = err
			return a, nil
		}
		view := a.filters.View
		switch {
		case q.pivot != "":
			view = model.PivotOn(q.pivot)
		case view.Kind == model.ViewPivot:
			view = model.TopDown()
		}
		q.filters.View = view
		a.filters = q.filters
		a.err = nil
		return a, a.submit()
	case "esc":
		a.editing = false
		a.input.Blur()
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// moveVertical moves the selection one row up or down on screen. Rows
// drawn above a node are its parent in top-down graphs and its children
// in bottom-up graphs.
func (a *App) moveVertical(up bool) {
	n, ok := a.selectedNode()
	if !ok {
		return
	}
	toParent := up
	if a.graph.View.Kind == model.ViewBottomUp {
		toParent = !up
	}
	if toParent {
		if n.ParentID != nil {
			a.selected = *n.ParentID
		}
		return
	}
	kids := a.children[n.ID]
	if len(kids) == 0 {
		return
	}
	best := kids[0]
	for _, k := range kids[1:] {
		if a.graph.Nodes[k].Width() > a.graph.Nodes[best].Width() {
			best = k
		}
	}
	a.selected = best
}

// moveSibling selects the nearest node on the same row in direction dir.
func (a *App) moveSibling(dir int) {
	n, ok := a.selectedNode()
	if !ok {
		return
	}
	best := -1
	for _, o := range a.graph.NodesAtDepth(n.Depth) {
		if o.ID == n.ID {
			continue
		}
		ahead := o.XStart > n.XStart
		if dir < 0 {
			ahead = o.XStart < n.XStart
		}
		if !ahead {
			continue
		}
		if best < 0 || closer(o.XStart, a.graph.Nodes[best].XStart, n.XStart) {
			best = o.ID
		}
	}
	if best >= 0 {
		a.selected = best
	}
}

func closer(x, y, from float64) bool {
	dx, dy := x-from, y-from
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx < dy
}

func (a App) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		a.moveVertical(true)
		return a, nil
	case tea.MouseButtonWheelDown:
		a.moveVertical(false)
		return a, nil
	case tea.MouseButtonLeft:
		if msg.Action != tea.MouseActionPress {
			return a, nil
		}
		if msg.Y == 0 {
			if tab := a.tabAtX(msg.X); tab >= 0 {
				if components.Tabs[tab].View == model.ViewPivot && a.filters.View.Pivot == "" {
					return a, nil
				}
				return a, a.setView(viewForTab(tab, a.filters.View.Pivot))
			}
		}
	}
	return a, nil
}

// tabAtX returns the tab index at the given X coordinate, or -1 if none.
// Hitboxes are derived from the same width rules used by RenderTabBar.
func (a App) tabAtX(x int) int {
	active := components.TabIndex(a.filters.View.Kind)
	pos := 0
	for i, tab := range components.Tabs {
		tabW := components.TabVisualWidth(tab, i == active)
		if x >= pos && x < pos+tabW {
			return i
		}
		pos += tabW

		// Separator is one column between tabs.
		if i < len(components.Tabs)-1 {
			pos++
		}
	}
	return -1
}

func (a App) updateSetupForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.setupForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.setupForm = f
	}

	switch a.setupForm.State {
	case huh.StateCompleted:
		prevDir := a.profilesDir
		if err := a.saveSetupConfig(); err != nil {
			a.err = fmt.Errorf("saving config: %w", err)
		}
		if v, err := model.ParseView(a.setupVals.defaultView, ""); err == nil {
			a.filters.View = v
		}
		a.needSetup = false
		a.setupForm = nil
		if a.profilesDir != prevDir {
			return a, refreshProfilesCmd(a.db, a.profilesDir)
		}
		return a, a.selectProfile(a.findProfile(a.initial.Profile), true)
	case huh.StateAborted:
		a.needSetup = false
		a.setupForm = nil
		return a, a.selectProfile(a.findProfile(a.initial.Profile), true)
	}
	return a, cmd
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}
	if !a.loaded {
		return a.viewLoading()
	}
	if a.needSetup && a.setupForm != nil {
		return a.setupForm.View()
	}
	if a.showHelp {
		return a.viewHelp()
	}
	return a.viewMain()
}

func (a App) viewTooNarrow() string {
	msg := fmt.Sprintf("\n  Terminal too narrow (%d cols)\n\n  flamekit needs at least %d columns.\n",
		a.width, minTerminalWidth)
	return padHeight(truncateHeight(msg, max(a.height, 5)), max(a.height, 5))
}

func (a App) viewLoading() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(2, 4)
	logoStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	subtitleStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	spinnerStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface)
	countStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)

	var b strings.Builder
	b.WriteString(logoStyle.Render("▁▃▅ flamekit"))
	b.WriteString(subtitleStyle.Render(" · flame graph explorer"))
	b.WriteString("\n\n")

	if a.progressMax > 0 {
		barW := min(max(a.width-30, 20), 40)
		pct := float64(a.progress) / float64(a.progressMax)
		b.WriteString(spinnerStyle.Render(a.spinner.View()))
		b.WriteString(subtitleStyle.Render(" Importing profiles\n\n"))
		b.WriteString(components.ProgressBar(pct, barW))
		b.WriteString("\n")
		b.WriteString(countStyle.Render(cli.FormatNumber(int64(a.progress))))
		b.WriteString(subtitleStyle.Render(" / "))
		b.WriteString(countStyle.Render(cli.FormatNumber(int64(a.progressMax))))
	} else {
		b.WriteString(spinnerStyle.Render(a.spinner.View()))
		b.WriteString(subtitleStyle.Render(" Loading profiles..."))
	}

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewHelp() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(1, 3)
	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	sectionStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(t.Cyan).Background(t.Surface).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)

	sections := []struct {
		title    string
		bindings []struct{ key, desc string }
	}{
		{"Navigation", []struct{ key, desc string }{
			{"↑ ↓ / k j", "Move between rows"},
			{"← → / h l", "Move along a row"},
			{"g", "Select the first root"},
			{"[ ]", "Previous / next profile"},
			{"m M", "Next / previous metric"},
		}},
		{"Views", []struct{ key, desc string }{
			{"t", "Top-down"},
			{"b", "Bottom-up"},
			{"p / Enter", "Pivot on the selected frame"},
			{"Tab", "Cycle views"},
		}},
		{"Filters", []struct{ key, desc string }{
			{"f", "Show from the selected frame"},
			{"x", "Elide the selected frame"},
			{"X", "Hide stacks through it"},
			{"/", "Edit the filter query"},
			{"Esc", "Clear filters"},
			{"r", "Reimport profiles"},
			{"q", "Quit"},
		}},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Keyboard Shortcuts"))
	b.WriteString("\n")
	for _, sec := range sections {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render(sec.title))
		b.WriteString("\n")
		for _, bind := range sec.bindings {
			fmt.Fprintf(&b, "  %s  %s\n",
				keyStyle.Render(fmt.Sprintf("%-10s", bind.key)),
				descStyle.Render(bind.desc))
		}
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Press any key to close"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewMain() string {
	t := theme.Active
	w := a.width

	// 1. Header: view tabs with profile and metric, then the filter line.
	detail := "no profiles"
	if p := a.currentProfile(); p != nil {
		detail = p.Name
		if m, ok := a.currentMetric(); ok {
			detail += " · " + m.Name
		}
	}
	header := components.RenderTabBar(components.TabIndex(a.filters.View.Kind), w, detail) + "\n" +
		a.renderFilterLine(w)

	// 2. Footer: selection details and the status bar.
	status := components.RenderStatusBar(w, components.Status{
		Spinner:    a.spinner.View(),
		Fetching:   a.pending > 0,
		Generation: a.graphGen,
		Err:        a.err,
		Message:    a.message,
		ComputeMs:  a.computeMs,
	})
	footer := a.renderDetails(w) + "\n" + status

	// 3. Flame graph fills the rest.
	flameH := max(a.height-headerLines-footerLines, minFlameHeight)
	var flame string
	if len(a.profiles) == 0 {
		hint := "  No profiles imported yet."
		if a.profilesDir == "" {
			hint += " Run `flamekit import <dir>` or set general.profiles_dir."
		}
		flame = lipgloss.Place(w, flameH, lipgloss.Left, lipgloss.Top,
			lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Background).Render(hint),
			lipgloss.WithWhitespaceBackground(t.Background))
	} else {
		flame = components.RenderFlame(a.graph, w, flameH, a.selected)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, flame, footer)
}

func (a App) renderFilterLine(w int) string {
	t := theme.Active
	if a.editing {
		return lipgloss.NewStyle().Background(t.Surface).Width(w).Render(a.input.View())
	}

	dim := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	accent := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)

	var line string
	if q := a.query().String(); q != "" {
		line = dim.Render(" ") + accent.Render(q)
	} else {
		line = dim.Render(" no filters")
	}
	if a.graph != nil {
		line += dim.Render(fmt.Sprintf("  │ %s of %s (%s)",
			cli.FormatValue(a.graph.AllRootsCumulativeValue, a.graph.Unit),
			cli.FormatValue(a.graph.UnfilteredCumulativeValue, a.graph.Unit),
			cli.FormatShare(a.graph.AllRootsCumulativeValue, a.graph.UnfilteredCumulativeValue)))
	}
	return lipgloss.NewStyle().Background(t.Surface).Width(w).MaxWidth(w).Render(line)
}

func (a App) renderDetails(w int) string {
	t := theme.Active
	base := lipgloss.NewStyle().Background(t.Background).Width(w).MaxWidth(w)
	n, ok := a.selectedNode()
	if !ok {
		return base.Render("")
	}

	name := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Background).Bold(true).Render(" " + n.Name)
	muted := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Background)
	unit := a.graph.Unit
	info := fmt.Sprintf("  self %s  total %s (%s)",
		cli.FormatValue(n.SelfValue, unit),
		cli.FormatValue(n.CumulativeValue, unit),
		cli.FormatShare(n.CumulativeValue, a.graph.AllRootsCumulativeValue))
	for _, k := range []string{metric.PropMapping, metric.PropSourceFile, metric.PropLine} {
		if v, ok := n.Properties[k]; ok {
			info += "  " + k + "=" + v
		}
	}
	return base.Render(name + muted.Render(info))
}

// ─── Helpers ────────────────────────────────────────────────────

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n")
}

func padHeight(s string, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) >= h {
		return s
	}
	return s + strings.Repeat("\n", h-len(lines))
}

// loadProfilesCmd imports profilesDir in a background goroutine. It streams
// ProgressMsg updates and a final ProfilesLoadedMsg through sub.
func loadProfilesCmd(db *store.DB, profilesDir string, sub chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		go func() {
			// Progress callback: non-blocking send so workers aren't stalled.
			// If the channel is full, we skip this update; the next one catches up.
			progressFn := func(current, total int) {
				select {
				case sub <- ProgressMsg{Current: current, Total: total}:
				default:
				}
			}
			sub <- importProfiles(db, profilesDir, progressFn)
		}()

		// Block until the first message (either ProgressMsg or ProfilesLoadedMsg)
		return <-sub
	}
}

// waitForLoadMsg blocks until the next message arrives from the loader goroutine.
func waitForLoadMsg(sub chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

// refreshProfilesCmd reimports in the background without progress UI.
func refreshProfilesCmd(db *store.DB, profilesDir string) tea.Cmd {
	return func() tea.Msg {
		return importProfiles(db, profilesDir, nil)
	}
}

func importProfiles(db *store.DB, profilesDir string, progressFn pipeline.ProgressFunc) ProfilesLoadedMsg {
	start := time.Now()
	msg := ProfilesLoadedMsg{}
	if db == nil {
		msg.Err = errors.New("no profile database")
		return msg
	}
	if profilesDir != "" {
		res, err := pipeline.LoadWithCache(profilesDir, db, progressFn)
		if err != nil {
			msg.Err = err
		}
		msg.Import = res
	}
	profiles, err := db.ListProfiles()
	if err != nil && msg.Err == nil {
		msg.Err = err
	}
	msg.Profiles = profiles
	msg.LoadTime = time.Since(start)
	return msg
}
