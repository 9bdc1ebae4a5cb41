// Package tui is a terminal front end for the player: a mini player bar
// that expands into a full now playing sheet.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/supersonic-app/nowplaying/backend"
	"github.com/supersonic-app/nowplaying/ui/sheet"
	"github.com/supersonic-app/nowplaying/ui/util"
)

const (
	defaultSeekStep = 10 * time.Second
	noticeDuration  = 3 * time.Second
)

// Player is the command surface of the player state store used by the UI.
type Player interface {
	State() backend.UiState
	TogglePlayPause()
	SkipNext()
	SkipPrevious()
	SeekTo(ms int64)
	SkipTo(index int)
	ToggleFavorite()
}

type Options struct {
	Context context.Context
	Player  Player
	Events  *backend.EventQueue
	// Describes the secondary output, if any. May be nil.
	CastStatus func() string
	SeekStep   time.Duration
}

// Messages

type stateMsg backend.UiState

type eventMsg struct {
	event backend.PlayerEvent
}

type clearNoticeMsg int

type dialog struct {
	title string
	text  string
}

// carousel pages through the playlist in the expanded sheet.
type carousel struct {
	items []backend.PlaylistItem
	page  int
	ctrl  *sheet.Controller
}

func (c *carousel) SetPages(items []backend.PlaylistItem) {
	c.items = items
	c.page = 0
}

func (c *carousel) ScrollTo(index int) {
	c.page = index
	c.ctrl.OnPageSelected(sheet.PageChange{Index: index, Source: sheet.Programmatic})
}

func (c *carousel) swipe(delta int) {
	next := c.page + delta
	if next < 0 || next >= len(c.items) {
		return
	}
	c.page = next
	c.ctrl.OnPageSelected(sheet.PageChange{Index: next, Source: sheet.Interactive})
}

type Model struct {
	ctx        context.Context
	player     Player
	events     *backend.EventQueue
	castStatus func() string
	seekStep   time.Duration

	keys     keyMap
	help     help.Model
	styles   styles
	progress progress.Model
	width    int

	state    backend.UiState
	ctrl     *sheet.Controller
	carousel *carousel

	notice    string
	noticeSeq int
	dialog    *dialog
}

func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	step := opts.SeekStep
	if step <= 0 {
		step = defaultSeekStep
	}

	car := &carousel{}
	ctrl := sheet.NewController(car, opts.Player)
	car.ctrl = ctrl

	m := Model{
		ctx:        ctx,
		player:     opts.Player,
		events:     opts.Events,
		castStatus: opts.CastStatus,
		seekStep:   step,
		keys:       defaultKeyMap(),
		help:       help.New(),
		styles:     defaultStyles(),
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:      80,
		ctrl:       ctrl,
		carousel:   car,
	}
	m.state = opts.Player.State()
	m.ctrl.Render(m.state)
	return m
}

// SheetState reports the current state of the now playing sheet.
func (m Model) SheetState() sheet.State {
	return m.ctrl.State()
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.ctx, m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.progress.Width = max(10, msg.Width-16)
		return m, nil

	case stateMsg:
		m.state = backend.UiState(msg)
		m.ctrl.Render(m.state)
		return m, nil

	case eventMsg:
		cmd := m.handleEvent(msg.event)
		return m, tea.Batch(cmd, waitForEvent(m.ctx, m.events))

	case clearNoticeMsg:
		if int(msg) == m.noticeSeq {
			m.notice = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleEvent(e backend.PlayerEvent) tea.Cmd {
	if m.ctrl.HandleEvent(e) {
		return nil
	}
	switch e := e.(type) {
	case backend.ShowNotice:
		m.notice = e.Text
		m.noticeSeq++
		seq := m.noticeSeq
		return tea.Tick(noticeDuration, func(time.Time) tea.Msg {
			return clearNoticeMsg(seq)
		})
	case backend.ShowErrorDialog:
		m.dialog = &dialog{title: e.Title, text: e.Text}
	}
	return nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	// a dialog is modal until dismissed
	if m.dialog != nil {
		switch msg.String() {
		case "enter", "esc", " ":
			m.dialog = nil
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.PlayPause):
		m.player.TogglePlayPause()
	case key.Matches(msg, m.keys.Next):
		m.player.SkipNext()
	case key.Matches(msg, m.keys.Previous):
		m.player.SkipPrevious()
	case key.Matches(msg, m.keys.SeekFwd):
		m.seekBy(m.seekStep)
	case key.Matches(msg, m.keys.SeekBack):
		m.seekBy(-m.seekStep)
	case key.Matches(msg, m.keys.Favorite):
		if m.state.CurrentMediaID.IsPresent() {
			m.player.ToggleFavorite()
		}
	case key.Matches(msg, m.keys.Expand):
		m.ctrl.Toggle()
	case key.Matches(msg, m.keys.Back):
		m.ctrl.Back()
	case key.Matches(msg, m.keys.PageLeft):
		if m.ctrl.State() == sheet.Expanded {
			m.carousel.swipe(-1)
		}
	case key.Matches(msg, m.keys.PageRight):
		if m.ctrl.State() == sheet.Expanded {
			m.carousel.swipe(1)
		}
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) seekBy(d time.Duration) {
	st := m.state
	if !st.CurrentMediaID.IsPresent() || st.IsRadioStream {
		return
	}
	pos := st.PositionMs + d.Milliseconds()
	if st.DurationMs > 0 {
		pos = min(pos, st.DurationMs)
	}
	m.player.SeekTo(max(0, pos))
}

func (m Model) View() string {
	var b strings.Builder
	switch m.ctrl.State() {
	case sheet.Hidden:
		b.WriteString(m.styles.Muted.Render("Nothing playing"))
	case sheet.Collapsed:
		b.WriteString(m.miniPlayerView())
	case sheet.Expanded:
		b.WriteString(m.sheetView())
	}
	b.WriteString("\n")

	if m.dialog != nil {
		b.WriteString("\n")
		b.WriteString(m.styles.Dialog.Render(
			m.styles.DialogTitle.Render(m.dialog.title) + "\n\n" + m.dialog.text + "\n\n" +
				m.styles.Muted.Render("press enter to dismiss")))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(m.styles.Notice.Render(m.notice))
		b.WriteString("\n")
	}
	if m.castStatus != nil {
		if s := m.castStatus(); s != "" {
			b.WriteString(m.styles.Muted.Render(s))
			b.WriteString("\n")
		}
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) miniPlayerView() string {
	st := m.state
	line := fmt.Sprintf("%s %s", playIcon(st.IsPlaying),
		m.styles.Title.Render(util.Truncate(st.Title, max(10, m.width/2))))
	if st.Artist != "" {
		line += " " + m.styles.Artist.Render(util.Truncate(st.Artist, max(10, m.width/4)))
	}
	line += "  " + m.timeView()
	if st.IsFavorite {
		line += " " + m.styles.Favorite.Render("♥")
	}
	return m.styles.MiniBar.Width(max(20, m.width-1)).Render(line)
}

func (m Model) sheetView() string {
	st := m.state
	fav := m.styles.Muted.Render("♡")
	if st.IsFavorite {
		fav = m.styles.Favorite.Render("♥")
	}
	lines := []string{
		m.styles.Title.Render(st.Title) + "  " + fav,
		m.styles.Artist.Render(st.Artist),
		"",
	}
	if w := waveformView(st.Waveform, m.progress.Width); w != "" {
		lines = append(lines, m.styles.Muted.Render(w))
	}
	if st.IsRadioStream {
		lines = append(lines, m.styles.Live.Render("● LIVE"))
	} else {
		lines = append(lines, m.progress.ViewAs(util.Fraction(st.PositionMs, st.DurationMs)))
	}
	lines = append(lines, playIcon(st.IsPlaying)+"  "+m.timeView(), "", m.carouselView())
	return m.styles.Sheet.Width(max(30, m.width-2)).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) carouselView() string {
	items := m.carousel.items
	if len(items) == 0 {
		return ""
	}
	page := m.carousel.page
	var b strings.Builder
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf("%d / %d", page+1, len(items))))
	for i := max(0, page-1); i <= min(len(items)-1, page+1); i++ {
		b.WriteString("\n")
		title := util.Truncate(items[i].Title, max(10, m.width-12))
		marker := "  "
		if i == page {
			marker = "› "
		}
		if items[i].IsCurrent {
			title = m.styles.Current.Render(title)
		}
		b.WriteString(marker + title)
	}
	return b.String()
}

func (m Model) timeView() string {
	st := m.state
	if st.IsRadioStream {
		return m.styles.Live.Render("LIVE")
	}
	return m.styles.Muted.Render(util.MillisToTimeString(st.PositionMs) + " / " + util.MillisToTimeString(st.DurationMs))
}

func playIcon(playing bool) string {
	if playing {
		return "▶"
	}
	return "⏸"
}

var waveformBlocks = []rune("▁▂▃▄▅▆▇█")

// waveformView renders peak amplitudes in [0, 1] as a block sparkline
// of the given width.
func waveformView(peaks []float32, width int) string {
	if len(peaks) == 0 || width <= 0 {
		return ""
	}
	out := make([]rune, width)
	for i := range out {
		p := peaks[i*len(peaks)/width]
		idx := int(p * float32(len(waveformBlocks)-1))
		out[i] = waveformBlocks[max(0, min(len(waveformBlocks)-1, idx))]
	}
	return string(out)
}

// Commands

func waitForEvent(ctx context.Context, q *backend.EventQueue) tea.Cmd {
	if q == nil {
		return nil
	}
	return func() tea.Msg {
		e, err := q.Next(ctx)
		if err != nil {
			return nil
		}
		return eventMsg{event: e}
	}
}
