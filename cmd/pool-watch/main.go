// pool-watch is a terminal dashboard over the simulator's read endpoints:
// reserves, price and the most recent confirmed actions.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
)

var (
	// 样式定义
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	valueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3")) // 黄色

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type reservesResponse struct {
	Reserves struct {
		A string `json:"a"`
		B string `json:"b"`
	} `json:"reserves"`
	ConfirmationRef string `json:"confirmationRef"`
}

type priceResponse struct {
	Price string `json:"price"`
}

type historyResponse struct {
	Entries []struct {
		Kind    string `json:"kind"`
		Pending bool   `json:"pending"`
		Price   string `json:"price"`
	} `json:"entries"`
}

type poolState struct {
	reserveA string
	reserveB string
	price    string
	ref      string
	history  historyResponse
	at       time.Time
}

type pollMsg struct {
	state poolState
	err   error
}

type tickMsg time.Time

type model struct {
	client   *resty.Client
	interval time.Duration

	state   poolState
	lastErr error
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.poll, tick(m.interval))
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) poll() tea.Msg {
	var state poolState

	var reserves reservesResponse
	if resp, err := m.client.R().SetResult(&reserves).Get("/api/simulator/reserves"); err != nil {
		return pollMsg{err: err}
	} else if resp.IsError() {
		return pollMsg{err: fmt.Errorf("reserves: status %d", resp.StatusCode())}
	}
	state.reserveA = reserves.Reserves.A
	state.reserveB = reserves.Reserves.B
	state.ref = reserves.ConfirmationRef

	var price priceResponse
	if resp, err := m.client.R().SetResult(&price).Get("/api/simulator/price"); err != nil {
		return pollMsg{err: err}
	} else if resp.IsError() {
		return pollMsg{err: fmt.Errorf("price: status %d", resp.StatusCode())}
	}
	state.price = price.Price

	// History is optional; a 404 just means the journal is disabled.
	var history historyResponse
	if resp, err := m.client.R().SetResult(&history).Get("/api/simulator/history?limit=8"); err == nil && !resp.IsError() {
		state.history = history
	}

	state.at = time.Now()
	return pollMsg{state: state}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.poll
		}
	case tickMsg:
		return m, tea.Batch(m.poll, tick(m.interval))
	case pollMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.lastErr = nil
		m.state = msg.state
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("defisim pool watch"))
	b.WriteString("\n\n")

	pool := fmt.Sprintf("%s %s\n%s %s\n%s %s",
		labelStyle.Render("reserve A:"), valueStyle.Render(orDash(m.state.reserveA)),
		labelStyle.Render("reserve B:"), valueStyle.Render(orDash(m.state.reserveB)),
		labelStyle.Render("price:   "), valueStyle.Render(orDash(m.state.price)),
	)
	b.WriteString(borderStyle.Render(pool))
	b.WriteString("\n")

	if len(m.state.history.Entries) > 0 {
		var rows []string
		for _, e := range m.state.history.Entries {
			row := fmt.Sprintf("%-18s price %s", e.Kind, orDash(e.Price))
			if e.Pending {
				row = pendingStyle.Render(row + "  (pending)")
			}
			rows = append(rows, row)
		}
		b.WriteString(borderStyle.Render(strings.Join(rows, "\n")))
		b.WriteString("\n")
	}

	if m.lastErr != nil {
		b.WriteString(errStyle.Render("error: " + m.lastErr.Error()))
		b.WriteString("\n")
	} else if !m.state.at.IsZero() {
		b.WriteString(labelStyle.Render("updated " + m.state.at.Format("15:04:05")))
		b.WriteString("\n")
	}

	b.WriteString(labelStyle.Render("q quit · r refresh"))
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func main() {
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		baseURL  = flag.String("url", getenv("DEFISIM_URL", "http://localhost:8080"), "simulator base URL")
		interval = flag.Duration("interval", 2*time.Second, "poll interval")
	)
	flag.Parse()

	m := model{
		client:   resty.New().SetBaseURL(*baseURL).SetTimeout(5 * time.Second),
		interval: *interval,
	}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
