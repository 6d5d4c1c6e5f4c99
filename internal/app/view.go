package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/session"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/ui"
)

// Prefix: "[HH:MM:SS] [GUEST] " is 19 visible chars.
const prefixWidth = 19

func (m *Model) scrollToBottom() {
	m.timelineScroll = m.maxTimelineScroll()
}

func (m Model) maxTimelineScroll() int {
	total := len(m.timelineLines(m.timelineWidth()))
	visible := m.timelineVisibleLines()
	if total <= visible {
		return 0
	}
	return total - visible
}

func (m Model) timelineVisibleLines() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + divider(1) + panel title(1) + divider(1) + notice(1) + footer(1) + padding
	reserved := 8
	return max(5, m.height-reserved)
}

func (m Model) timelineWidth() int {
	if m.width == 0 {
		return 80
	}
	return max(30, m.width-2)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderBody(m.timelineVisibleLines()+1))
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if m.notice != "" {
		sections = append(sections, ui.NoticeStyle.Render(m.notice))
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("WHATSWORD")
	if m.sess.ID == "" {
		return title
	}
	info := ui.DimStyle.Render(" session " + truncateToWidth(m.sess.ID, 24) + " as " + string(m.sess.Role))
	return title + info
}

func (m Model) renderStatusBar() string {
	var conn string
	switch m.conn.Status {
	case session.ConnOpen:
		conn = ui.ConnectedDotStyle.Render("● CONNECTED")
	case session.ConnConnecting:
		conn = ui.SpinnerStyle.Render(m.spinner.View() + " CONNECTING")
	default:
		conn = ui.IdleDotStyle.Render("○ " + strings.ToUpper(m.conn.String()))
	}

	var mic string
	cs := m.CaptureState()
	switch cs.Status {
	case session.CaptureListening, session.CaptureInterim:
		mic = ui.ListeningDotStyle.Render("● LISTENING")
	case session.CaptureUnsupported:
		mic = ui.DimStyle.Render("✕ NO MIC")
	default:
		mic = ui.IdleDotStyle.Render("○ MIC OFF")
	}

	return conn + "  " + mic
}

func (m Model) renderBody(height int) string {
	var lines []string

	switch m.phase {
	case PhaseConnecting:
		lines = append(lines, "")
		lines = append(lines, "  "+m.spinner.View()+ui.DimStyle.Render(" Connecting to session..."))

	case PhaseErrored:
		lines = append(lines, "")
		lines = append(lines, "  "+ui.ErrorStyle.Render("Error: ")+ui.ErrorTextStyle.Render(m.errorMessage))
		lines = append(lines, "")
		lines = append(lines, ui.DimStyle.Render("  Press r to reconnect or q to leave"))

	case PhaseLeft:
		lines = append(lines, "")
		lines = append(lines, ui.DimStyle.Render("  You left the conversation."))

	default:
		lines = append(lines, m.renderTimelineTitle())
		display := m.timelineLines(m.timelineWidth())
		if len(display) == 0 {
			lines = append(lines, "")
			lines = append(lines, ui.DimStyle.Render("  Press Space to start speaking"))
			break
		}

		contentHeight := height - 1
		start := 0
		if m.timelineLive {
			if len(display) > contentHeight {
				start = len(display) - contentHeight
			}
		} else {
			start = m.timelineScroll
		}
		if start < 0 {
			start = 0
		}
		end := min(start+contentHeight, len(display))
		for i := start; i < end; i++ {
			lines = append(lines, "  "+display[i])
		}
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderTimelineTitle() string {
	badge := ui.LiveBadgeStyle.Render(" LIVE")
	if !m.timelineLive {
		badge = ui.ScrollBadgeStyle.Render(" SCROLL")
	}
	return ui.PanelTitleStyle.Render("CONVERSATION") + badge
}

// timelineLines renders utterances and the live interim line into display
// lines of at most width columns.
func (m Model) timelineLines(width int) []string {
	textWidth := max(10, width-prefixWidth-2)
	indent := strings.Repeat(" ", prefixWidth)

	var out []string
	for _, u := range m.timeline.Entries() {
		ts := ui.TimestampStyle.Render(u.CreatedAt.Local().Format("[15:04:05]"))
		label := ui.PeerLabelStyle.Render(padRight("["+strings.ToUpper(string(u.Sender))+"]", 7) + " ")
		if u.Local(m.sess.Role) {
			label = ui.LocalLabelStyle.Render(padRight("[YOU]", 7) + " ")
		}
		wrapped := wrapText(u.OriginalText, textWidth)
		out = append(out, ts+" "+label+wrapped[0])
		for _, wl := range wrapped[1:] {
			out = append(out, indent+wl)
		}
		if u.TranslatedText != "" {
			for i, wl := range wrapText(u.TranslatedText, textWidth-2) {
				arrow := "  "
				if i == 0 {
					arrow = "→ "
				}
				out = append(out, indent+ui.TranslationStyle.Render(arrow+wl))
			}
		}
	}

	if cs := m.CaptureState(); cs.Status == session.CaptureInterim && cs.Text != "" {
		label := ui.PartialTextStyle.Render(padRight("[YOU]", 7) + " ")
		wrapped := wrapText(cs.Text+"▌", textWidth)
		out = append(out, strings.Repeat(" ", 11)+label+ui.PartialTextStyle.Render(wrapped[0]))
		for _, wl := range wrapped[1:] {
			out = append(out, indent+ui.PartialTextStyle.Render(wl))
		}
	}
	return out
}

func (m Model) renderFooter() string {
	var parts []string

	switch m.phase {
	case PhaseActive:
		if m.capture.Supported() {
			if m.CaptureState().Active() || m.capture.Intended() {
				parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Stop"))
			} else {
				parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Speak"))
			}
		}
		parts = append(parts, ui.FooterKeyStyle.Render("↑↓")+ui.FooterDescStyle.Render(" Scroll"))
	case PhaseErrored:
		parts = append(parts, ui.FooterKeyStyle.Render("r")+ui.FooterDescStyle.Render(" Reconnect"))
	}

	parts = append(parts, ui.FooterKeyStyle.Render("q")+ui.FooterDescStyle.Render(" Leave"))

	return strings.Join(parts, "  ")
}

// Helpers

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
