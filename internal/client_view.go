package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	portalTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	portalSubStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	portalMenuBox     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	portalMenuItem    = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).PaddingLeft(1)
	portalHotkeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	portalHintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	portalHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	portalFileBox     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	portalInputBox    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	portalNoticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	portalTimeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	portalNameStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	portalFileStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	portalMetaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("109"))
	portalLiveStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	portalWaitStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("178")).Italic(true)
	portalDeadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	portalDivider     = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
)

func (model *PortalModel) View() string {
	switch model.mode {
	case modeMenu:
		return model.renderMenuView()
	case modeJoinPrompt:
		return model.renderJoinView()
	default:
		return model.renderRoomView()
	}
}

func (model *PortalModel) renderMenuView() string {
	title := portalTitleStyle.Render("FilePortal")
	subtitle := portalSubStyle.Render("Share files through short-lived rooms, straight from the terminal")

	options := []string{
		renderPortalOption("1", "Create a room"),
		renderPortalOption("2", "Join a room"),
		renderPortalOption("q", "Quit"),
	}

	sections := []string{
		lipgloss.JoinVertical(lipgloss.Left, title, subtitle),
		portalMenuBox.Render(lipgloss.JoinVertical(lipgloss.Left, options...)),
	}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, portalHintStyle.Render("1) Create  •  2) Join  •  q) Quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *PortalModel) renderJoinView() string {
	header := portalTitleStyle.Render("Join a room")
	hint := portalHintStyle.Render("Enter the 6-digit code and press Enter. Esc goes back.")

	sections := []string{header, hint}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, portalInputBox.Render(model.textInput.View()))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *PortalModel) renderRoomView() string {
	headerSegments := []string{"FilePortal"}
	headerSegments = append(headerSegments, fmt.Sprintf("Room %s", model.roomCode))
	if model.username != "" {
		headerSegments = append(headerSegments, model.username)
	}
	headerSegments = append(headerSegments, "⏳ "+formatCountdown(model.remaining))
	header := portalHeaderStyle.Render(strings.Join(headerSegments, portalDivider))

	var statusLine string
	switch {
	case model.destroyed:
		statusLine = portalDeadStyle.Render("Room closed")
	case model.isConnected:
		statusLine = portalLiveStyle.Render("Live")
	default:
		statusLine = portalWaitStyle.Render("Connecting…")
	}

	var fileLines []string
	if len(model.files) == 0 {
		fileLines = append(fileLines, portalNoticeStyle.Render("No files yet. /upload <path> to share one."))
	} else {
		for _, file := range model.files {
			fileLines = append(fileLines, renderFileLine(file))
		}
	}
	filesView := portalFileBox.Render(lipgloss.JoinVertical(lipgloss.Left, fileLines...))

	var historyLines []string
	history := model.history
	if len(history) > 8 {
		history = history[len(history)-8:]
	}
	for _, entry := range history {
		timestamp := portalTimeStyle.Render(fmt.Sprintf("[%s]", time.Unix(entry.Ts, 0).Format("15:04:05")))
		line := lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", portalNameStyle.Render(entry.User), " ", portalFileStyle.Render(entry.Action))
		historyLines = append(historyLines, line)
	}
	var historyView string
	if len(historyLines) > 0 {
		historyView = portalFileBox.Render(lipgloss.JoinVertical(lipgloss.Left, historyLines...))
	}

	sections := []string{header, statusLine, filesView}
	if historyView != "" {
		sections = append(sections, historyView)
	}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections,
		portalInputBox.Render(model.textInput.View()),
		portalHintStyle.Render("/upload <path> • /download <index> [dir] • /destroy • /refresh • Esc quit"),
	)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderFileLine(file fileDTO) string {
	index := portalHotkeyStyle.Render(fmt.Sprintf("[%d]", file.Index))
	name := portalFileStyle.Render(file.OriginalName)
	meta := portalMetaStyle.Render(fmt.Sprintf("  %s · %s · from %s", file.HumanSize, file.Type, file.Sender))
	return lipgloss.JoinHorizontal(lipgloss.Left, index, " ", name, meta)
}

func renderPortalOption(hotkey string, label string) string {
	key := portalHotkeyStyle.Render(hotkey)
	return lipgloss.JoinHorizontal(lipgloss.Left, key, portalMenuItem.Render(label))
}

func (model *PortalModel) renderNotices() string {
	if len(model.notices) == 0 {
		return ""
	}
	var lines []string
	for _, notice := range model.notices {
		timestamp := portalTimeStyle.Render(fmt.Sprintf("[%s]", time.Unix(notice.ts, 0).Format("15:04:05")))
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", portalNoticeStyle.Render(notice.body)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func formatCountdown(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
