package main

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/zsiec/dtsflow/distribution"
)

func monitorCommand() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "TUI dashboard polling a running relay's REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api-addr", Value: envOr("API_ADDR", "https://localhost:4444"), Usage: "relay REST API base URL"},
			&cli.StringFlag{Name: "stream", Usage: "stream key to show detailed stats for"},
		},
		Action: runMonitor,
	}
}

func runMonitor(c *cli.Context) error {
	client := &http.Client{
		Timeout: 3 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	m := newMonitorModel(client, c.String("api-addr"), c.String("stream"))
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// monitorModel is the bubbletea model for the monitor dashboard, polled on
// a fixed interval from the relay's REST API.
type monitorModel struct {
	client    *http.Client
	apiAddr   string
	streamKey string

	streams  []distribution.StreamInfo
	snap     distribution.StreamSnapshot
	haveSnap bool
	err      string

	width, height int
}

func newMonitorModel(client *http.Client, apiAddr, streamKey string) monitorModel {
	return monitorModel{client: client, apiAddr: apiAddr, streamKey: streamKey}
}

type tickMsg time.Time

type streamsMsg struct {
	streams []distribution.StreamInfo
	err     error
}

type snapshotMsg struct {
	snap distribution.StreamSnapshot
	ok   bool
	err  error
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.fetchStreams(), m.fetchSnapshot())
}

func (m monitorModel) tick() tea.Cmd {
	return tea.Tick(1*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m monitorModel) fetchStreams() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Get(m.apiAddr + "/api/streams")
		if err != nil {
			return streamsMsg{err: err}
		}
		defer resp.Body.Close()

		var streams []distribution.StreamInfo
		if err := json.NewDecoder(resp.Body).Decode(&streams); err != nil {
			return streamsMsg{err: err}
		}
		return streamsMsg{streams: streams}
	}
}

func (m monitorModel) fetchSnapshot() tea.Cmd {
	if m.streamKey == "" {
		return nil
	}
	return func() tea.Msg {
		url := fmt.Sprintf("%s/api/streams/%s/stats", m.apiAddr, m.streamKey)
		resp, err := m.client.Get(url)
		if err != nil {
			return snapshotMsg{err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return snapshotMsg{ok: false}
		}

		var snap distribution.StreamSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{snap: snap, ok: true}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tickMsg:
		return m, tea.Batch(m.tick(), m.fetchStreams(), m.fetchSnapshot())
	case streamsMsg:
		if msg.err != nil {
			m.err = msg.err.Error()
		} else {
			m.streams = msg.streams
			m.err = ""
		}
	case snapshotMsg:
		if msg.err != nil {
			m.err = msg.err.Error()
		} else if msg.ok {
			m.snap = msg.snap
			m.haveSnap = true
		}
	}
	return m, nil
}

func (m monitorModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := fmt.Sprintf("┌─ dtsdemux monitor ─ %s ──────────────────────┐\n", m.apiAddr)
	s += fmt.Sprintf("│ Active streams: %-36d │\n", len(m.streams))
	for _, st := range m.streams {
		s += fmt.Sprintf("│   %-12s viewers=%-4d %dHz %dch %-10s │\n",
			st.Key, st.Viewers, st.SampleRate, st.Channels, st.Protocol)
	}
	s += "├──────────────────────────────────────────────────┤\n"

	if m.streamKey != "" && m.haveSnap {
		a := m.snap.Audio
		s += fmt.Sprintf("│ %s: %s %dHz %dch %6.1fkbps %5.1ffps     │\n",
			m.streamKey, a.Codec, a.SampleRate, a.Channels, a.BitrateKbps, a.FrameRate)
		s += fmt.Sprintf("│ frames=%-8d bytes=%-10d recovered=%-6d │\n",
			a.TotalFrames, a.TotalBytes, a.RecoveredErrors)
		s += fmt.Sprintf("│ viewers=%-4d ingest=%6.1fkbps                     │\n",
			m.snap.ViewerCount, m.snap.IngestKbps)
	} else if m.streamKey != "" {
		s += fmt.Sprintf("│ waiting for stats on %-28s │\n", m.streamKey)
	}

	if m.err != "" {
		s += fmt.Sprintf("│ error: %-43s │\n", m.err)
	}

	s += "│ q:Quit                                            │\n"
	s += "└────────────────────────────────────────────────────┘\n"
	return s
}
