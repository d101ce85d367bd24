// Package ui is the bubbletea shell of the story client: a thread sidebar,
// the message log of the active thread, and a composer with the generation
// parameters.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/kahani/pkg/chat"
	"github.com/go-go-golems/kahani/pkg/conversation"
	"github.com/go-go-golems/kahani/pkg/events"
	"github.com/go-go-golems/kahani/pkg/generation"
	"github.com/go-go-golems/kahani/pkg/session"
)

const (
	appTitle            = "کہانی جنریٹر"
	emptyText           = "Create or select a chat to begin."
	composerPlaceholder = "اردو میں لکھیں یا خالی چھوڑیں..."
	submitLabel         = "کہانی بنائیں"
	busyLabel           = "تیار ہو رہے ہیں..."

	sidebarWidth   = 32
	composerHeight = 3
)

type focusArea int

const (
	focusComposer focusArea = iota
	focusMaxLength
	focusTemperature
	focusThreads
	focusCount
)

type overlayMode int

const (
	overlayNone overlayMode = iota
	overlayRename
	overlayDelete
	overlayHelp
)

type clipboardMsg struct {
	err error
}

type Option func(*Model)

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) { m.writeClipboard = write }
}

// WithRemoteSync makes the shell reload the store from loader whenever a
// thread event from another process arrives.
func WithRemoteSync(loader conversation.Loader) Option {
	return func(m *Model) { m.remote = loader }
}

type Model struct {
	ctx     context.Context
	ctrl    *session.Controller
	backend *GenerationBackend

	keys   keyMap
	styles Styles
	help   help.Model

	viewport    viewport.Model
	composer    textarea.Model
	maxLength   textinput.Model
	temperature textinput.Model
	titleInput  textinput.Model
	spinner     spinner.Model

	focus    focusArea
	overlay  overlayMode
	cursor   int
	status   string
	helpView string

	writeClipboard func(string) error
	remote         conversation.Loader

	width  int
	height int
}

func New(ctx context.Context, ctrl *session.Controller, params session.Params, opts ...Option) Model {
	ta := textarea.New()
	ta.Placeholder = composerPlaceholder
	ta.ShowLineNumbers = false
	ta.SetHeight(composerHeight)
	ta.KeyMap.InsertNewline.SetEnabled(false)

	ml := textinput.New()
	ml.Prompt = ""
	ml.CharLimit = 6
	ml.Width = 6
	ml.SetValue(strconv.Itoa(params.MaxLength))

	temp := textinput.New()
	temp.Prompt = ""
	temp.CharLimit = 5
	temp.Width = 5
	temp.SetValue(strconv.FormatFloat(params.Temperature, 'f', -1, 64))

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 120
	ti.Width = 40

	sp := spinner.New()
	sp.Spinner = spinner.Line

	vp := viewport.New(80, 10)
	vp.Style = lipgloss.NewStyle()

	m := Model{
		ctx:            ctx,
		ctrl:           ctrl,
		backend:        NewGenerationBackend(ctrl),
		keys:           defaultKeyMap(),
		styles:         NewStyles(ctrl.Store().Theme()),
		help:           help.New(),
		viewport:       vp,
		composer:       ta,
		maxLength:      ml,
		temperature:    temp,
		titleInput:     ti,
		spinner:        sp,
		writeClipboard: clipboard.WriteAll,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.spinner.Style = m.styles.Busy
	m.setFocus(focusComposer)
	m.syncCursor()
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case generationDoneMsg:
		out := m.ctrl.Complete(m.ctx, msg.sub, msg.resp, msg.err)
		m.syncCursor()
		m.refresh()
		if out.Reveal != nil {
			return m, waitForToken(out.Reveal)
		}
		return m, nil

	case tokenMsg:
		applied, err := m.ctrl.ApplyToken(m.ctx, msg.reveal, msg.token)
		if err != nil {
			m.noteError("save reply", err)
		}
		if !applied {
			return m, nil
		}
		m.refresh()
		return m, waitForToken(msg.reveal)

	case revealDoneMsg:
		m.ctrl.FinishReveal(msg.reveal)
		return m, nil

	case clipboardMsg:
		if msg.err != nil {
			m.status = "Copy failed: " + msg.err.Error()
		} else {
			m.status = "Reply copied to clipboard"
		}
		return m, nil

	case ThreadEventMsg:
		m.applyRemote(msg.Event)
		return m, nil

	case spinner.TickMsg:
		if !m.ctrl.InFlight() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m.updateFocused(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.backend.Interrupt()
		m.ctrl.StopReveal()
		return m, tea.Quit
	}

	switch m.overlay {
	case overlayHelp:
		if key.Matches(msg, m.keys.Help) || msg.String() == "esc" || msg.String() == "q" {
			m.overlay = overlayNone
		}
		return m, nil
	case overlayRename:
		switch msg.String() {
		case "esc":
			m.closeRename()
			return m, nil
		case "enter":
			m.commitRename()
			return m, nil
		}
		var cmd tea.Cmd
		m.titleInput, cmd = m.titleInput.Update(msg)
		return m, cmd
	case overlayDelete:
		switch strings.ToLower(msg.String()) {
		case "y", "enter":
			m.deleteActive()
		}
		m.overlay = overlayNone
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.helpView = renderHelp(m.styles.glamourStyle, m.modalWidth()-8)
		m.overlay = overlayHelp
		return m, nil
	case key.Matches(msg, m.keys.NewThread):
		m.newThread()
		return m, nil
	case key.Matches(msg, m.keys.Rename):
		return m.openRename()
	case key.Matches(msg, m.keys.Delete):
		if _, ok := m.ctrl.Store().Active(); ok {
			m.overlay = overlayDelete
		}
		return m, nil
	case key.Matches(msg, m.keys.Theme):
		m.toggleTheme()
		return m, nil
	case key.Matches(msg, m.keys.Copy):
		return m.copyReply()
	case key.Matches(msg, m.keys.NextFocus):
		cmd := m.setFocus((m.focus + 1) % focusCount)
		return m, cmd
	case key.Matches(msg, m.keys.PrevFocus):
		cmd := m.setFocus((m.focus + focusCount - 1) % focusCount)
		return m, cmd
	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusThreads {
		n := len(m.ctrl.Store().List())
		switch {
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < n-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Select):
			m.selectThread(m.cursor)
		}
		return m, nil
	}

	if key.Matches(msg, m.keys.Submit) {
		return m.submit()
	}
	if key.Matches(msg, m.keys.Newline) && m.focus == focusComposer {
		m.composer.InsertString("\n")
		return m, nil
	}
	return m.updateFocused(msg)
}

func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case focusComposer:
		m.composer, cmd = m.composer.Update(msg)
	case focusMaxLength:
		m.maxLength, cmd = m.maxLength.Update(msg)
	case focusTemperature:
		m.temperature, cmd = m.temperature.Update(msg)
	}
	return m, cmd
}

// submit sends the composer text. It is refused while a request is in
// flight, which is how the shell keeps one request at a time.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if !m.backend.IsFinished() {
		m.status = "A story is already being generated"
		return m, nil
	}
	params, warnings := m.params()
	cmd, err := m.backend.Start(m.ctx, m.composer.Value(), params)
	if err != nil {
		if errors.Is(err, session.ErrBusy) {
			m.status = "A story is already being generated"
		} else {
			m.noteError("submit", err)
		}
		return m, nil
	}
	m.composer.Reset()
	m.status = strings.Join(warnings, "; ")
	m.syncCursor()
	m.refresh()
	return m, tea.Batch(cmd, m.spinner.Tick)
}

// params parses the numeric inputs. Unparseable values fall back to the
// defaults; out-of-range values are sent as they are and only reported.
func (m Model) params() (session.Params, []string) {
	p := session.DefaultParams()
	var warnings []string
	if v := strings.TrimSpace(m.maxLength.Value()); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("max length %q is not a number, using %d", v, p.MaxLength))
		} else {
			p.MaxLength = n
		}
	}
	if v := strings.TrimSpace(m.temperature.Value()); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("temperature %q is not a number, using %.1f", v, p.Temperature))
		} else {
			p.Temperature = f
		}
	}
	req := generation.Request{MaxLength: p.MaxLength, Temperature: p.Temperature}
	warnings = append(warnings, req.Validate()...)
	return p, warnings
}

func (m *Model) setFocus(f focusArea) tea.Cmd {
	m.focus = f
	m.composer.Blur()
	m.maxLength.Blur()
	m.temperature.Blur()
	switch f {
	case focusComposer:
		return m.composer.Focus()
	case focusMaxLength:
		return m.maxLength.Focus()
	case focusTemperature:
		return m.temperature.Focus()
	case focusThreads:
		m.syncCursor()
	}
	return nil
}

// syncCursor points the sidebar cursor at the active thread.
func (m *Model) syncCursor() {
	activeID := m.ctrl.Store().ActiveID()
	threads := m.ctrl.Store().List()
	for i, th := range threads {
		if th.ID == activeID {
			m.cursor = i
			return
		}
	}
	if m.cursor >= len(threads) {
		m.cursor = max(len(threads)-1, 0)
	}
}

// applyRemote catches up with a change another process made. Selections
// are per process and carry no data, so they are ignored.
func (m *Model) applyRemote(ev events.ThreadEvent) {
	if m.remote == nil || ev.Type == events.EventThreadSelected {
		return
	}
	if ev.Type != events.EventMessageDelta {
		log.Debug().Str("type", string(ev.Type)).Str("thread_id", ev.ThreadID).Str("origin", ev.Origin).Msg("ui: remote thread event")
	}
	store := m.ctrl.Store()
	if err := store.Reload(m.ctx, m.remote); err != nil {
		m.noteError("reload threads", err)
		return
	}
	if id, ok := m.ctrl.Revealing(); ok {
		if _, exists := store.Thread(id); !exists {
			m.ctrl.StopReveal()
		}
	}
	if theme := store.Theme(); theme != m.styles.Theme {
		m.styles = NewStyles(theme)
		m.spinner.Style = m.styles.Busy
	}
	m.syncCursor()
	m.refresh()
}

func (m *Model) newThread() {
	th, err := m.ctrl.NewThread(m.ctx)
	if err != nil {
		m.noteError("create thread", err)
	}
	if th.ID != "" {
		m.status = ""
	}
	m.syncCursor()
	m.setFocus(focusComposer)
	m.refresh()
}

func (m *Model) selectThread(i int) {
	threads := m.ctrl.Store().List()
	if i < 0 || i >= len(threads) {
		return
	}
	if err := m.ctrl.Select(m.ctx, threads[i].ID); err != nil {
		m.noteError("select thread", err)
	}
	m.syncCursor()
	m.setFocus(focusComposer)
	m.refresh()
}

func (m Model) openRename() (tea.Model, tea.Cmd) {
	th, ok := m.ctrl.Store().Active()
	if !ok {
		return m, nil
	}
	m.titleInput.SetValue(th.Title)
	m.titleInput.CursorEnd()
	m.overlay = overlayRename
	cmd := m.titleInput.Focus()
	return m, cmd
}

func (m *Model) closeRename() {
	m.titleInput.Blur()
	m.overlay = overlayNone
}

// commitRename keeps the old title when the new one is empty.
func (m *Model) commitRename() {
	defer m.closeRename()
	th, ok := m.ctrl.Store().Active()
	if !ok {
		return
	}
	title := strings.TrimSpace(m.titleInput.Value())
	if title == "" || title == th.Title {
		return
	}
	if err := m.ctrl.Store().Rename(m.ctx, th.ID, title); err != nil {
		m.noteError("rename thread", err)
	}
	m.refresh()
}

func (m *Model) deleteActive() {
	th, ok := m.ctrl.Store().Active()
	if !ok {
		return
	}
	if err := m.ctrl.Delete(m.ctx, th.ID); err != nil {
		m.noteError("delete thread", err)
	} else {
		m.status = fmt.Sprintf("Deleted %q", th.DisplayTitle())
	}
	m.syncCursor()
	m.refresh()
}

func (m *Model) toggleTheme() {
	theme, err := m.ctrl.Store().ToggleTheme(m.ctx)
	if err != nil {
		m.noteError("save theme", err)
	}
	m.styles = NewStyles(theme)
	m.spinner.Style = m.styles.Busy
	m.refresh()
}

func (m Model) copyReply() (tea.Model, tea.Cmd) {
	th, ok := m.ctrl.Store().Active()
	if !ok {
		m.status = "Nothing to copy"
		return m, nil
	}
	text, ok := th.LastAssistantText()
	if !ok || strings.TrimSpace(text) == "" {
		m.status = "Nothing to copy"
		return m, nil
	}
	write := m.writeClipboard
	return m, func() tea.Msg {
		return clipboardMsg{err: write(text)}
	}
}

// noteError shows err in the status line. Persist failures leave the
// in-memory state changed, so they are reported as save errors only.
func (m *Model) noteError(action string, err error) {
	log.Warn().Err(err).Str("action", action).Msg("ui: action failed")
	var perr *conversation.PersistError
	if errors.As(err, &perr) {
		m.status = "Could not save: " + perr.Err.Error()
		return
	}
	m.status = "Could not " + action + ": " + err.Error()
}

func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	mainWidth := m.mainWidth()
	m.viewport.Width = mainWidth
	m.composer.SetWidth(max(mainWidth-2, 10))
	m.help.Width = mainWidth

	// header, status, params, composer with border, help
	fixed := 1 + 1 + 1 + composerHeight + 2 + 1
	if b := m.bannerView(); b != "" {
		fixed += lipgloss.Height(b)
	}
	m.viewport.Height = max(m.height-fixed, 3)
}

// refresh re-renders the active thread and scrolls to the newest message.
func (m *Model) refresh() {
	m.layout()
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m Model) mainWidth() int {
	return max(m.width-sidebarWidth, 20)
}

func (m Model) modalWidth() int {
	return min(max(m.width-20, 40), 100)
}

func (m Model) renderMessages() string {
	th, ok := m.ctrl.Store().Active()
	if !ok {
		return m.styles.Empty.Render(emptyText)
	}
	if len(th.Messages) == 0 {
		return m.styles.Empty.Render("Type a prompt below and press enter.")
	}
	width := m.viewport.Width - 2
	revealingID, revealing := m.ctrl.Revealing()

	var sb strings.Builder
	for i, msg := range th.Messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		label, textStyle := m.styles.UserLabel.Render("You"), m.styles.UserText
		if msg.Role == chat.RoleAssistant {
			label, textStyle = m.styles.Label.Render("Kahani"), m.styles.AssistantText
		}
		sb.WriteString(label)
		sb.WriteString(" ")
		sb.WriteString(m.styles.Timestamp.Render(msg.Time().Format("15:04")))
		sb.WriteString("\n")

		text := msg.Text
		if text == "" && revealing && revealingID == th.ID && i == len(th.Messages)-1 {
			text = "…"
		}
		if width > 10 {
			textStyle = textStyle.Width(width)
		}
		sb.WriteString(textStyle.Render(text))
	}
	return sb.String()
}

func (m Model) bannerView() string {
	b := m.ctrl.Banner()
	if b == "" {
		return ""
	}
	return m.styles.Banner.Width(m.mainWidth()).Render(b)
}

func (m Model) headerView() string {
	title := appTitle
	if th, ok := m.ctrl.Store().Active(); ok {
		title = th.DisplayTitle()
	}
	right := "🌙"
	if m.styles.Theme == chat.ThemeLight {
		right = "☀️"
	}
	if m.ctrl.InFlight() {
		right = m.spinner.View() + " " + m.styles.Busy.Render(busyLabel) + "  " + right
	}
	left := m.styles.Header.Render(title)
	gap := max(m.mainWidth()-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) sidebarView() string {
	threads := m.ctrl.Store().List()
	activeID := m.ctrl.Store().ActiveID()
	inner := sidebarWidth - 4

	var sb strings.Builder
	sb.WriteString(m.styles.SidebarTitle.Render("Chats"))
	sb.WriteString("\n\n")
	if len(threads) == 0 {
		sb.WriteString(m.styles.Empty.Render("No chats yet (ctrl+n)"))
	}
	for i, th := range threads {
		marker := "  "
		if m.focus == focusThreads && i == m.cursor {
			marker = m.styles.ThreadCursor.Render("> ")
		}
		style := m.styles.ThreadTitle
		if th.ID == activeID {
			style = m.styles.ThreadActive
		}
		sb.WriteString(marker)
		sb.WriteString(style.Render(truncate(th.DisplayTitle(), inner-2)))
		sb.WriteString("\n  ")
		sb.WriteString(m.styles.ThreadMeta.Render(th.Created().Format("2006-01-02 15:04")))
		sb.WriteString("\n")
	}
	return m.styles.Sidebar.
		Width(sidebarWidth - 2).
		Height(max(m.height-2, 1)).
		Render(sb.String())
}

func (m Model) paramsView() string {
	button := "[ " + submitLabel + " ]"
	if m.ctrl.InFlight() {
		button = m.styles.Busy.Render("[ " + busyLabel + " ]")
	}
	return m.styles.Label.Render("Max length: ") + m.maxLength.View() +
		"  " + m.styles.Label.Render("Temperature: ") + m.temperature.View() +
		"  " + button
}

func (m Model) composerView() string {
	style := m.styles.Composer
	if m.focus == focusComposer {
		style = m.styles.Focused
	}
	return style.Render(m.composer.View())
}

func (m Model) modal(title, body, footer string) string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		m.styles.ModalTitle.Render(title),
		"",
		body,
		"",
		m.styles.Status.Render(footer),
	)
	box := m.styles.Modal.Width(m.modalWidth()).Render(content)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.overlay {
	case overlayHelp:
		return m.modal(" Help ", m.helpView, "Press esc or f1 to close")
	case overlayRename:
		return m.modal(" Rename thread ", "نیا عنوان:\n"+m.titleInput.View(), "enter to save, esc to cancel")
	case overlayDelete:
		title := ""
		if th, ok := m.ctrl.Store().Active(); ok {
			title = th.DisplayTitle()
		}
		return m.modal(" Delete thread ", fmt.Sprintf("Delete %q and all its messages?", title), "y to delete, any other key to cancel")
	}

	parts := []string{m.headerView()}
	if b := m.bannerView(); b != "" {
		parts = append(parts, b)
	}
	parts = append(parts,
		m.viewport.View(),
		m.styles.Status.Render(m.status),
		m.paramsView(),
		m.composerView(),
		m.help.View(m.keys),
	)
	main := lipgloss.JoinVertical(lipgloss.Left, parts...)
	return lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), main)
}

func truncate(s string, n int) string {
	if n <= 1 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
