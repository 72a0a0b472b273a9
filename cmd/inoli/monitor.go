package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/inoli/internal/device"
	"github.com/srg/inoli/internal/groutine"
	"github.com/srg/inoli/internal/ipc"
	"golang.org/x/term"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch live readings from the relay",
	Long: `Attach to a running relay and show live battery, heart-rate and step readings.

On a terminal this opens an interactive view with key bindings for common
requests. Without a terminal (or with --plain) every reading is printed as a
line.`,
	RunE: runMonitor,
}

var (
	monitorPlain   bool
	monitorHistory int
)

const defaultHistory = 8

func init() {
	monitorCmd.Flags().BoolVar(&monitorPlain, "plain", false, "Print readings line by line instead of the interactive view")
	monitorCmd.Flags().IntVar(&monitorHistory, "history", defaultHistory, "Readings kept in the history pane")
}

// attachRequests are sent on attach so the view fills in quickly.
var attachRequests = []ipc.Command{
	{Kind: ipc.KindName, Action: ipc.Get},
	{Kind: ipc.KindBattery, Action: ipc.Get},
	{Kind: ipc.KindHeartrateContinuous, Action: ipc.Set, Enable: true},
	{Kind: ipc.KindSteps, Action: ipc.Get},
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	if monitorHistory < 1 {
		return fmt.Errorf("invalid history size %d: must be at least 1", monitorHistory)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ipc.Dial(ctx, cfg.Socket, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, req := range attachRequests {
		if err := client.Send(req); err != nil {
			return err
		}
	}

	interactive := !monitorPlain && term.IsTerminal(int(os.Stdout.Fd()))
	if !interactive {
		return printReadings(ctx, cmd.OutOrStdout(), client.Messages(ctx))
	}

	// Log lines would tear the interactive view.
	logger.SetOutput(io.Discard)
	return runMonitorUI(ctx, client, monitorHistory, logger)
}

// printReadings writes one colored line per message until the stream ends.
func printReadings(ctx context.Context, out io.Writer, messages <-chan ipc.Message) error {
	stamp := color.New(color.Faint)
	colors := map[ipc.MessageKind]*color.Color{
		ipc.MessageBattery:   color.New(color.FgYellow),
		ipc.MessageHeartrate: color.New(color.FgMagenta),
		ipc.MessageSteps:     color.New(color.FgCyan),
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-messages:
			if !ok {
				return ErrRelayClosed
			}
			c, known := colors[m.Kind]
			if !known {
				c = color.New(color.Reset)
			}
			fmt.Fprintf(out, "%s %s\n", stamp.Sprint(time.Now().Format(time.TimeOnly)), c.Sprint(formatReading(m)))
		}
	}
}

// ----------------------------
// Interactive view
// ----------------------------

type reading struct {
	at  time.Time
	msg ipc.Message
}

// feedMsg tells the view that readings are waiting in the ring.
type feedMsg struct{}

// closedMsg reports the relay connection ended.
type closedMsg struct{}

// sentMsg reports the outcome of a keyboard-triggered request.
type sentMsg struct {
	cmd ipc.Command
	err error
}

type keymap struct {
	quit       key.Binding
	refresh    key.Binding
	heartRate  key.Binding
	continuous key.Binding
	alert      key.Binding
}

func newKeymap() keymap {
	return keymap{
		quit:       key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
		refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		heartRate:  key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "measure heart rate")),
		continuous: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "toggle continuous")),
		alert:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "vibrate")),
	}
}

var (
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 4, 0, 2)
	labelStyle   = lipgloss.NewStyle().Bold(true).Width(12)
	heartStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D94"))
	historyStyle = lipgloss.NewStyle().Faint(true)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
)

type monitorModel struct {
	send    func(ipc.Command) error
	feed    mpmc.RichOverlappedRingBuffer[reading]
	keymap  keymap
	help    help.Model
	maxRows int

	battery    *uint32
	heartRate  *uint32
	steps      *uint32
	continuous bool
	history    []reading
	status     string
	closed     bool
}

func newMonitorModel(send func(ipc.Command) error, feed mpmc.RichOverlappedRingBuffer[reading], history int) monitorModel {
	return monitorModel{
		send:       send,
		feed:       feed,
		keymap:     newKeymap(),
		help:       help.New(),
		maxRows:    history,
		continuous: true,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return nil
}

func (m monitorModel) request(cmd ipc.Command) tea.Cmd {
	return func() tea.Msg {
		return sentMsg{cmd: cmd, err: m.send(cmd)}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case feedMsg:
		m.drain()
	case closedMsg:
		m.drain()
		m.closed = true
		m.status = "relay closed the connection"
	case sentMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.cmd, msg.err)
		} else {
			m.status = fmt.Sprintf("sent %s", msg.cmd)
		}
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.quit):
			return m, tea.Quit
		case m.closed:
			return m, nil
		case key.Matches(msg, m.keymap.refresh):
			return m, tea.Batch(
				m.request(ipc.Command{Kind: ipc.KindBattery, Action: ipc.Get}),
				m.request(ipc.Command{Kind: ipc.KindSteps, Action: ipc.Get}),
			)
		case key.Matches(msg, m.keymap.heartRate):
			return m, m.request(ipc.Command{Kind: ipc.KindHeartrate, Action: ipc.Get})
		case key.Matches(msg, m.keymap.continuous):
			m.continuous = !m.continuous
			return m, m.request(ipc.Command{Kind: ipc.KindHeartrateContinuous, Action: ipc.Set, Enable: m.continuous})
		case key.Matches(msg, m.keymap.alert):
			return m, m.request(ipc.Command{Kind: ipc.KindAlert, Action: ipc.Set, Level: device.AlertMild})
		}
	}
	return m, nil
}

// drain applies every reading waiting in the ring.
func (m *monitorModel) drain() {
	for !m.feed.IsEmpty() {
		r, err := m.feed.Dequeue()
		if err != nil {
			return
		}
		v := r.msg.Value
		switch r.msg.Kind {
		case ipc.MessageBattery:
			m.battery = &v
		case ipc.MessageHeartrate:
			m.heartRate = &v
		case ipc.MessageSteps:
			m.steps = &v
		}
		m.history = append(m.history, r)
		if over := len(m.history) - m.maxRows; over > 0 {
			m.history = m.history[over:]
		}
	}
}

func value(v *uint32, unit string) string {
	if v == nil {
		return "--"
	}
	return fmt.Sprintf("%d%s", *v, unit)
}

func (m monitorModel) View() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("Battery") + value(m.battery, "%") + "\n")
	s.WriteString(labelStyle.Render(heartStyle.Render("♥")+" Heart") + value(m.heartRate, " bpm") + "\n")
	s.WriteString(labelStyle.Render("Steps") + value(m.steps, ""))

	var h strings.Builder
	for i := len(m.history) - 1; i >= 0; i-- {
		r := m.history[i]
		fmt.Fprintf(&h, "%s  %s\n", r.at.Format(time.TimeOnly), formatReading(r.msg))
	}

	out := boxStyle.Render(s.String()) + "\n" + historyStyle.Render(strings.TrimRight(h.String(), "\n"))
	if m.status != "" {
		out += "\n" + statusStyle.Render(m.status)
	}
	return out + "\n" + m.help.ShortHelpView([]key.Binding{
		m.keymap.quit, m.keymap.refresh, m.keymap.heartRate, m.keymap.continuous, m.keymap.alert,
	})
}

func runMonitorUI(ctx context.Context, client *ipc.Client, history int, logger *logrus.Logger) error {
	feed := mpmc.NewOverlappedRingBuffer[reading](uint32(history * 4))
	p := tea.NewProgram(newMonitorModel(client.Send, feed, history), tea.WithContext(ctx))

	messages := client.Messages(ctx)
	groutine.Go(ctx, "monitor-feed", func(ctx context.Context) {
		pumpReadings(messages, feed, p.Send, logger)
	})

	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// pumpReadings queues every relay message for the view and pokes it; closedMsg
// follows the last one.
func pumpReadings(messages <-chan ipc.Message, feed mpmc.RichOverlappedRingBuffer[reading], notify func(tea.Msg), logger *logrus.Logger) {
	for m := range messages {
		if overwrites, err := feed.EnqueueM(reading{at: time.Now(), msg: m}); err != nil {
			logger.WithError(err).Debug("Reading dropped")
		} else if overwrites > 0 {
			logger.WithField("overwrites", overwrites).Debug("View fell behind, oldest readings dropped")
		}
		notify(feedMsg{})
	}
	notify(closedMsg{})
}
