package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/kahani/pkg/chat"
)

type palette struct {
	accent    lipgloss.Color
	muted     lipgloss.Color
	text      lipgloss.Color
	userBg    lipgloss.Color
	botBg     lipgloss.Color
	activeBg  lipgloss.Color
	border    lipgloss.Color
	danger    lipgloss.Color
	glamStyle string
}

var (
	darkPalette = palette{
		accent:    lipgloss.Color("205"),
		muted:     lipgloss.Color("#8A8A8A"),
		text:      lipgloss.Color("#FFFDF5"),
		userBg:    lipgloss.Color("#2B2F45"),
		botBg:     lipgloss.Color("#1F2A24"),
		activeBg:  lipgloss.Color("62"),
		border:    lipgloss.Color("62"),
		danger:    lipgloss.Color("196"),
		glamStyle: "dark",
	}
	lightPalette = palette{
		accent:    lipgloss.Color("125"),
		muted:     lipgloss.Color("#6C6C6C"),
		text:      lipgloss.Color("#1A1A1A"),
		userBg:    lipgloss.Color("#E6E9F5"),
		botBg:     lipgloss.Color("#E8F3EC"),
		activeBg:  lipgloss.Color("#B8C4F0"),
		border:    lipgloss.Color("#7A86B8"),
		danger:    lipgloss.Color("160"),
		glamStyle: "light",
	}
)

// Styles is the set of lipgloss styles for one theme.
type Styles struct {
	Theme chat.Theme

	Sidebar       lipgloss.Style
	SidebarTitle  lipgloss.Style
	ThreadTitle   lipgloss.Style
	ThreadActive  lipgloss.Style
	ThreadCursor  lipgloss.Style
	ThreadMeta    lipgloss.Style
	Header        lipgloss.Style
	Busy          lipgloss.Style
	Empty         lipgloss.Style
	UserLabel     lipgloss.Style
	UserText      lipgloss.Style
	AssistantText lipgloss.Style
	Timestamp     lipgloss.Style
	Banner        lipgloss.Style
	Status        lipgloss.Style
	Label         lipgloss.Style
	Composer      lipgloss.Style
	Focused       lipgloss.Style
	Modal         lipgloss.Style
	ModalTitle    lipgloss.Style

	glamourStyle string
}

func NewStyles(theme chat.Theme) Styles {
	p := darkPalette
	if theme == chat.ThemeLight {
		p = lightPalette
	}
	return Styles{
		Theme:   theme,
		Sidebar: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(p.border).
			Padding(0, 1),
		SidebarTitle:  lipgloss.NewStyle().Bold(true).Foreground(p.accent),
		ThreadTitle:   lipgloss.NewStyle().Foreground(p.text),
		ThreadActive:  lipgloss.NewStyle().Bold(true).Foreground(p.text).Background(p.activeBg),
		ThreadCursor:  lipgloss.NewStyle().Foreground(p.accent),
		ThreadMeta:    lipgloss.NewStyle().Foreground(p.muted),
		Header:        lipgloss.NewStyle().Bold(true).Foreground(p.accent),
		Busy:          lipgloss.NewStyle().Foreground(p.accent).Bold(true),
		Empty:         lipgloss.NewStyle().Foreground(p.muted).Italic(true),
		UserLabel:     lipgloss.NewStyle().Bold(true).Foreground(p.accent),
		UserText:      lipgloss.NewStyle().Foreground(p.text).Background(p.userBg).Padding(0, 1),
		AssistantText: lipgloss.NewStyle().Foreground(p.text).Background(p.botBg).Padding(0, 1),
		Timestamp:     lipgloss.NewStyle().Foreground(p.muted),
		Banner:        lipgloss.NewStyle().Bold(true).Foreground(p.danger),
		Status:        lipgloss.NewStyle().Foreground(p.muted),
		Label:         lipgloss.NewStyle().Foreground(p.muted),
		Composer:      lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(p.muted),
		Focused: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(p.accent),
		Modal: lipgloss.NewStyle().
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(p.accent).
			Padding(1, 3),
		ModalTitle: lipgloss.NewStyle().
			Background(p.activeBg).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1).
			Bold(true),
		glamourStyle: p.glamStyle,
	}
}
