package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/council-go/internal/db"
	"github.com/raphaelgruber/council-go/internal/models"
)

const pollInterval = time.Second

var watchCmd = &cobra.Command{
	Use:   "watch <run-id>",
	Short: "Watch a running pipeline",
	Long: `Watch a run's stage progress live. Useful when a run was started in
another terminal or on another machine. Exits once the run reaches the
approval boundary or a terminal state.

Examples:
  council watch 4f1c9b2a`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	run, err := dbClient.GetRun(context.Background(), args[0])
	if err != nil {
		return err
	}
	return runWatchProgress(dbClient, run)
}

// stageFraction maps the last completed stage to pipeline progress.
func stageFraction(run *models.Run) float64 {
	switch run.CurrentStage {
	case models.StagePacket:
		return 0.25
	case models.StageDrafts:
		return 0.5
	case models.StageCritiques:
		return 0.75
	case models.StageSynthesis:
		return 1.0
	}
	return 0
}

// tickMsg triggers polling the run status
type tickMsg time.Time

// runUpdateMsg carries the updated run data
type runUpdateMsg struct {
	run *models.Run
	err error
}

// watchModel is the bubbletea model for run progress.
type watchModel struct {
	client   *db.Client
	runID    string
	run      *models.Run
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newWatchModel(c *db.Client, run *models.Run) watchModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return watchModel{
		client:   c,
		runID:    models.MustRecordIDString(run.ID),
		run:      run,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchRun()

	case runUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch run: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.run = msg.run

		// The pipeline is over once the run leaves created/running.
		switch m.run.Status {
		case models.RunStatusCreated, models.RunStatusRunning:
			return m, tickCmd()
		}
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m watchModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.run == nil {
		return "Loading run...\n"
	}

	status := styledStatus(m.run.Status)
	progressBar := m.progress.ViewAs(stageFraction(m.run))
	stage := m.run.CurrentStage
	if stage == "" {
		stage = "starting"
	}

	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop watching")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, stage, hint)
}

// finalView renders the completion message.
func (m watchModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nRun %s continues in background.\nUse 'council show %s' to check on it.\n",
			m.runID, m.runID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return fmt.Sprintf("\n✗ %s\n", m.err)
	}

	var out string
	switch m.run.Status {
	case models.RunStatusWaitingHuman:
		out = fmt.Sprintf("✓ Run %s is waiting for review.\n\nDecide with: council approve %s --as <you>\n",
			m.runID, m.runID)
	case models.RunStatusFailed:
		out = fmt.Sprintf("✗ Run %s failed.\n\nRetry with: council resume %s\n", m.runID, m.runID)
	default:
		out = fmt.Sprintf("Run %s is %s.\n", m.runID, styledStatus(m.run.Status))
	}
	return out
}

// fetchRun polls the run from the store.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m watchModel) fetchRun() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		run, err := m.client.GetRun(ctx, m.runID)
		return runUpdateMsg{run: run, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runWatchProgress runs the interactive progress UI for a run.
func runWatchProgress(c *db.Client, run *models.Run) error {
	model := newWatchModel(c, run)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(watchModel); ok && m.err != nil {
		return m.err
	}
	return nil
}
