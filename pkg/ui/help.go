package ui

import (
	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"
)

const helpMarkdown = `# کہانی جنریٹر

Write a prompt in Urdu (or leave it empty) and press **enter**. The reply is
revealed word by word into the thread.

## Keys

| Key | Action |
|-----|--------|
| enter | generate a story from the composer |
| alt+enter | insert a newline in the composer |
| tab / shift+tab | move between composer, max length, temperature and threads |
| ↑ ↓ | move through threads (threads pane) |
| enter | open the highlighted thread (threads pane) |
| ctrl+n | start a new thread |
| ctrl+r | rename the active thread |
| ctrl+x | delete the active thread |
| ctrl+t | toggle dark and light theme |
| ctrl+y | copy the last reply to the clipboard |
| pgup / pgdn | scroll the conversation |
| f1 | toggle this help |
| ctrl+c | quit |

Max length is sent as given (suggested range 1 to 2000). Temperature is
sent as given (suggested range 0.1 to 2.0).
`

// renderHelp renders the help text with glamour, falling back to the raw
// markdown when rendering fails.
func renderHelp(style string, width int) string {
	opts := []glamour.TermRendererOption{glamour.WithStandardStyle(style)}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		log.Warn().Err(err).Msg("ui: could not create help renderer")
		return helpMarkdown
	}
	out, err := r.Render(helpMarkdown)
	if err != nil {
		log.Warn().Err(err).Msg("ui: could not render help")
		return helpMarkdown
	}
	return out
}
