package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/chainstream/pkg/ui/components"
)

// StartupStep represents a step in the startup process.
type StartupStep struct {
	Name   string
	Status string // "pending", "connecting", "connected", "failed"
}

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"   // Initial welcome screen
	PhaseStartup   Phase = "startup"   // Loading/connecting
	PhaseDashboard Phase = "dashboard" // Main dashboard
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

var startupOrder = []string{"config", "ethereum", "stream"}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	// Components
	blocks *components.BlocksComponent
	fees   *components.FeesComponent
	stats  *components.StatsComponent
	status *components.StatusComponent

	keys KeyMap
	help help.Model

	// Phase state
	phase        Phase
	welcomeStart time.Time

	// State
	ready        bool
	quitting     bool
	paused       bool // Freeze the blocks table
	width        int
	height       int
	currentBlock uint64
	lastUpdate   time.Time
	aborted      *AbortedMsg
	errors       []ErrorEntry // Persistent error panel (last 3)
	activityFeed []string     // Recent activity messages

	// Startup state
	startupSteps map[string]*StartupStep
	startupTime  time.Time
}

// New creates a new TUI model.
func New() Model {
	now := time.Now()
	return Model{
		blocks:       components.NewBlocksComponent(64),
		fees:         components.NewFeesComponent(48),
		stats:        components.NewStatsComponent(),
		status:       components.NewStatusComponent(),
		keys:         DefaultKeyMap(),
		help:         help.New(),
		phase:        PhaseWelcome,
		welcomeStart: now,
		errors:       make([]ErrorEntry, 0, 3),
		activityFeed: make([]string, 0, 8),
		startupSteps: map[string]*StartupStep{
			"config":   {Name: "Loading configuration", Status: "pending"},
			"ethereum": {Name: "Connecting to Ethereum", Status: "pending"},
			"stream":   {Name: "Seeding chain window", Status: "pending"},
		},
		startupTime: now,
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd returns a command that sends a tick every 100ms for smooth animations.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m *Model) leaveWelcome() {
	m.phase = PhaseStartup
	m.startupTime = time.Now()
	// Trigger callback directly (don't use Send() from within Update)
	if OnStartModules != nil {
		go OnStartModules()
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		// During welcome phase, any other key skips to startup
		if m.phase == PhaseWelcome {
			m.leaveWelcome()
			return m, tickCmd()
		}
		switch {
		case key.Matches(msg, m.keys.Clear):
			m.blocks.Clear()
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Up):
			m.blocks.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.blocks.ScrollDown()
		case key.Matches(msg, m.keys.Errors):
			m.errors = make([]ErrorEntry, 0, 3)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ready = true

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m.leaveWelcome()
		}
		return m, tickCmd()

	case WelcomeCompleteMsg:
		if m.phase == PhaseWelcome {
			m.leaveWelcome()
		}

	case BlockMsg:
		m.currentBlock = msg.Number
		m.lastUpdate = time.Now()
		m.markStep("stream", "connected")
		if m.phase == PhaseStartup {
			m.phase = PhaseDashboard
		}

		st := m.stats.Stats()
		st.Blocks++
		m.stats.Update(st)

		if !m.paused {
			m.blocks.Add(components.BlockRow{
				Number:      msg.Number,
				Hash:        msg.Hash,
				Time:        msg.Timestamp.Format("15:04:05"),
				GasUsedPct:  msg.GasUsedPct,
				BaseFeeGwei: msg.BaseFeeGwei,
				NextFeeGwei: msg.NextFeeGwei,
				Reorged:     msg.Reorged,
			})
		}
		m.activityFeed = addActivity(m.activityFeed,
			fmt.Sprintf("Block #%d %s (%.1f%% gas)", msg.Number, msg.Hash, msg.GasUsedPct))

	case ReorgMsg:
		st := m.stats.Stats()
		st.Reorgs++
		st.BlocksRolled += int64(msg.Depth)
		st.MaxReorg = max(st.MaxReorg, msg.Depth)
		m.stats.Update(st)
		m.lastUpdate = time.Now()
		m.activityFeed = addActivity(m.activityFeed,
			fmt.Sprintf("Reorg at #%d: %d reverted, %d added, %s → %s",
				msg.Ancestor, msg.Depth, msg.Added, msg.OldHead, msg.NewHead))

	case AbortedMsg:
		m.aborted = &msg
		m.status.Update(components.ConnectionStatus{Name: "Stream", Connected: false, Detail: msg.Reason})
		if msg.Err != nil {
			m.addError(msg.Err.Error())
		}

	case FeeMsg:
		m.fees.Update(components.FeeSnapshot{
			Fork:        msg.Fork,
			BlockNumber: msg.BlockNumber,
			BaseFee:     msg.BaseFee,
			NextBaseFee: msg.NextBaseFee,
			BlobBaseFee: msg.BlobBaseFee,
			TipCap:      msg.TipCap,
			MaxFee:      msg.MaxFee,
		})
		m.lastUpdate = time.Now()

	case WindowMsg:
		st := m.stats.Stats()
		st.WindowSize = msg.Size
		m.stats.Update(st)

	case ConnectionStatusMsg:
		m.status.Update(components.ConnectionStatus{
			Name:       msg.Name,
			Connected:  msg.Connected,
			Detail:     msg.Detail,
			LastBlock:  m.currentBlock,
			LastUpdate: time.Now(),
		})
		if msg.Connected {
			m.markStep(strings.ToLower(msg.Name), "connected")
		}
		m.markStep("config", "done")

	case ErrorMsg:
		m.addError(msg.Error.Error())

	case LogMsg:
		m.activityFeed = addActivity(m.activityFeed, msg.Level+": "+msg.Message)

	case StartupMsg:
		m.markStep(msg.Step, msg.Status)
		if msg.Status == "failed" && msg.Message != "" {
			m.addError(msg.Message)
		}
	}

	return m, nil
}

func (m *Model) markStep(name, status string) {
	if step, ok := m.startupSteps[name]; ok {
		step.Status = status
	}
}

func (m *Model) addError(msg string) {
	st := m.stats.Stats()
	st.Errors++
	m.stats.Update(st)

	m.errors = append(m.errors, ErrorEntry{Message: msg, Timestamp: time.Now()})
	if len(m.errors) > 3 {
		m.errors = m.errors[len(m.errors)-3:]
	}
}

// addActivity adds an activity message and returns the updated slice (keeps last 6).
func addActivity(feed []string, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	line := fmt.Sprintf("[%s] %s", timestamp, message)
	feed = append(feed, line)
	if len(feed) > 6 {
		feed = feed[len(feed)-6:]
	}
	return feed
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcomeScreen()
	case PhaseStartup:
		return m.renderStartupScreen()
	}

	var b strings.Builder

	b.WriteString(BannerStyle.Render(" ⛓ chainstream "))
	b.WriteString("\n\n")

	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	if m.aborted != nil {
		abortStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorDanger)
		b.WriteString(abortStyle.Render(fmt.Sprintf("STREAM STOPPED: %s", m.aborted.Reason)))
		b.WriteString("\n\n")
	}

	visible := 12
	if m.height > 30 {
		visible = m.height - 22
	}
	leftCol := m.blocks.View(visible)

	var right strings.Builder
	right.WriteString(m.fees.View())
	right.WriteString("\n\n")
	right.WriteString(m.renderActivityFeed())
	rightCol := right.String()

	if m.width > 100 {
		left := PanelStyle.Width(m.width/2 - 2).Render(leftCol)
		r := PanelStyle.Width(m.width/2 - 2).Render(rightCol)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, r))
	} else {
		width := max(m.width-4, 40)
		b.WriteString(PanelStyle.Width(width).Render(leftCol))
		b.WriteString("\n")
		b.WriteString(PanelStyle.Width(width).Render(rightCol))
	}
	b.WriteString("\n")
	b.WriteString(m.stats.View())
	b.WriteString("\n\n")

	if len(m.errors) > 0 {
		errorStyle := lipgloss.NewStyle().Foreground(ColorDanger)
		errorHeader := lipgloss.NewStyle().Bold(true).Foreground(ColorDanger)

		b.WriteString(errorHeader.Render("ERRORS"))
		b.WriteString(Dim.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(errorStyle.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(Dim.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.paused {
		b.WriteString(PausedStyle.Render("⏸ PAUSED"))
		b.WriteString(" • ")
	}
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

// renderActivityFeed renders the recent activity feed.
func (m Model) renderActivityFeed() string {
	reorgStyle := lipgloss.NewStyle().Foreground(ColorWarning)
	blockStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))

	var sb strings.Builder
	sb.WriteString(SectionStyle.Render("LIVE ACTIVITY"))
	sb.WriteString("\n\n")

	if len(m.activityFeed) == 0 {
		sb.WriteString(Dim.Render("  Waiting for blocks..."))
		return sb.String()
	}

	for _, activity := range m.activityFeed {
		switch {
		case strings.Contains(activity, "Reorg"):
			sb.WriteString(reorgStyle.Render("  " + activity))
		case strings.Contains(activity, "Block #"):
			sb.WriteString(blockStyle.Render("  " + activity))
		default:
			sb.WriteString(Dim.Render("  " + activity))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderWelcomeScreen renders the animated welcome screen.
func (m Model) renderWelcomeScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	greenStyle := lipgloss.NewStyle().Foreground(ColorSecondary)

	elapsed := time.Since(m.welcomeStart)
	dots := strings.Repeat(".", int(elapsed.Milliseconds()/300)%4)

	var sb strings.Builder
	sb.WriteString("\n\n\n\n")

	logo := `
    ██████╗██╗  ██╗ █████╗ ██╗███╗   ██╗
   ██╔════╝██║  ██║██╔══██╗██║████╗  ██║
   ██║     ███████║███████║██║██╔██╗ ██║
   ██║     ██╔══██║██╔══██║██║██║╚██╗██║
   ╚██████╗██║  ██║██║  ██║██║██║ ╚████║
    ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝╚═╝  ╚═══╝
`
	sb.WriteString(titleStyle.Render(logo))
	sb.WriteString("\n")
	sb.WriteString(Dim.Render("             S T R E A M"))
	sb.WriteString("\n\n\n")
	sb.WriteString(greenStyle.Render(fmt.Sprintf("          Initializing%s", dots)))
	sb.WriteString("\n\n")
	sb.WriteString(Dim.Render("    Press any key to skip, or wait..."))
	sb.WriteString("\n")

	return sb.String()
}

// renderStartupScreen renders the loading/startup screen.
func (m Model) renderStartupScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).MarginBottom(1)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	successStyle := lipgloss.NewStyle().Foreground(ColorSecondary)
	connectingStyle := lipgloss.NewStyle().Foreground(ColorWarning)
	failedStyle := lipgloss.NewStyle().Foreground(ColorDanger)

	var sb strings.Builder

	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render("  ⛓ chainstream"))
	sb.WriteString("\n\n")
	sb.WriteString(headerStyle.Render("  Starting up..."))
	sb.WriteString("\n\n")

	for _, name := range startupOrder {
		step := m.startupSteps[name]

		var icon, statusText string
		var style lipgloss.Style

		switch step.Status {
		case "connected", "done":
			icon, statusText, style = "✓", "Ready", successStyle
		case "connecting":
			spinners := []string{"◐", "◓", "◑", "◒"}
			idx := int(time.Since(m.startupTime).Milliseconds()/200) % len(spinners)
			icon, statusText, style = spinners[idx], "Connecting...", connectingStyle
		case "failed":
			icon, statusText, style = "✗", "Failed", failedStyle
		default:
			icon, statusText, style = "○", "Pending", Dim
		}

		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			style.Render(icon),
			Dim.Render(step.Name),
			style.Render(statusText),
		))
	}

	sb.WriteString("\n")
	elapsed := time.Since(m.startupTime).Round(time.Second)
	sb.WriteString(Dim.Render(fmt.Sprintf("  Elapsed: %s", elapsed)))
	sb.WriteString("\n\n")
	sb.WriteString(Dim.Render("  Waiting for first block..."))
	sb.WriteString("\n")

	for _, err := range m.errors {
		sb.WriteString(failedStyle.Render("  • " + err.Message))
		sb.WriteString("\n")
	}

	return sb.String()
}

func (m Model) renderStatusBar() string {
	parts := []string{fmt.Sprintf("Head: #%d", m.currentBlock)}

	parts = append(parts, m.status.View())

	if !m.lastUpdate.IsZero() {
		ago := time.Since(m.lastUpdate).Round(time.Second)
		indicator := ""
		if ago < 2*time.Second {
			indicator = "▪"
		}
		parts = append(parts, Dim.Render(fmt.Sprintf("Updated: %s ago %s", ago, indicator)))
	}

	return strings.Join(parts, "  │  ")
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// OnStartModules is called when the welcome screen completes and modules should start.
// This is set by main.go to signal when to begin loading modules.
var OnStartModules func()

// Run starts the Bubble Tea program.
func Run() error {
	Program = tea.NewProgram(New(), tea.WithAltScreen())
	_, err := Program.Run()
	return err
}

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
	if _, ok := msg.(StartModulesMsg); ok && OnStartModules != nil {
		OnStartModules()
	}
}
