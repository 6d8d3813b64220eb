package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gqlchat/internal/chat"
)

var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuItemStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).PaddingLeft(1)
	menuHotkeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(0, 1).MarginTop(1)
	chatHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	successStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	noticeErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	roomSelectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	roomItemStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

func (model *TUIModel) View() string {
	switch model.mode {
	case modeAuthMenu:
		return model.renderAuthMenuView()
	case modeAuthUsername, modeAuthPassword, modeAuthDisplayName:
		return model.renderAuthPromptView()
	case modeRooms:
		return model.renderRoomsView()
	case modeNewRoom:
		return model.renderPrompt("Create a room", "Enter a name and press Enter. Esc goes back.")
	default:
		return model.renderChatView()
	}
}

func (model *TUIModel) renderAuthMenuView() string {
	title := appTitleStyle.Render("gqlchat")
	subtitle := subtitleStyle.Render(fmt.Sprintf("Terminal chat for %s  •  %s", model.server, VersionString()))

	options := []string{
		renderMenuOption("1", "Log in"),
		renderMenuOption("2", "Register"),
		renderMenuOption("q", "Quit"),
	}

	viewSections := []string{
		lipgloss.JoinVertical(lipgloss.Left, title, subtitle),
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, options...)),
	}
	if notices := model.renderSystemNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}
	viewSections = append(viewSections, menuHintStyle.Render("1) Log in  •  2) Register  •  q) Quit"))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderAuthPromptView() string {
	title := "Log in"
	if model.authIntent == authIntentRegister {
		title = "Create an account"
	}
	var hint string
	switch model.mode {
	case modeAuthPassword:
		hint = fmt.Sprintf("Password for %s", model.pendingUsername)
	case modeAuthDisplayName:
		hint = "Display name shown to others (Enter to skip)"
	default:
		hint = "Enter your username"
	}
	if model.authIntent == authIntentRegister {
		hint += "  •  Tab: log in instead"
	} else {
		hint += "  •  Tab: register instead"
	}
	return model.renderPrompt(title, hint)
}

func (model *TUIModel) renderPrompt(title, hint string) string {
	header := appTitleStyle.Render(title)
	hintText := menuHintStyle.Render(hint)

	viewSections := []string{header, hintText}
	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render(model.spinner.View()+" Working…"))
	}
	if notices := model.renderSystemNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}
	viewSections = append(viewSections, inputBoxStyle.Render(model.textInput.View()))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderRoomsView() string {
	user, _ := model.session.User()
	title := appTitleStyle.Render(fmt.Sprintf("Welcome, %s", user.Name()))
	subtitle := subtitleStyle.Render(fmt.Sprintf("Rooms: %d", len(model.rooms)))

	viewSections := []string{title, subtitle}
	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render(model.spinner.View()+" Loading rooms…"))
	}
	if notices := model.renderSystemNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}

	var roomLines []string
	if len(model.rooms) == 0 {
		roomLines = append(roomLines, menuHintStyle.Render("No rooms yet. Press N to create one."))
	}
	for idx, room := range model.rooms {
		if idx == model.selectedRoom {
			roomLines = append(roomLines, roomSelectedStyle.Render("➤ #"+room.Name))
		} else {
			roomLines = append(roomLines, roomItemStyle.Render("  #"+room.Name))
		}
	}
	viewSections = append(viewSections, menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, roomLines...)))
	viewSections = append(viewSections, menuHintStyle.Render("↑/↓ select • Enter open • N new room • R refresh • L logout • Q quit"))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderChatView() string {
	user, _ := model.session.User()
	room, _ := model.session.Room()

	headerSegments := []string{"gqlchat", "#" + room.Name, "User " + user.Name()}
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch {
	case model.timeline.LoadErr() != nil:
		statusLine = errorStyle.Render("Could not load messages: " + describeError(model.timeline.LoadErr()) + "  (/resync to retry)")
	case model.timeline.Loading():
		statusLine = connectingStyle.Render(model.spinner.View() + " Loading messages…")
	case model.feedErr != nil:
		statusLine = connectingStyle.Render(fmt.Sprintf("Live updates interrupted (%v). Reconnecting…", model.feedErr))
	case model.feed != nil:
		statusLine = connectedStyle.Render("Live")
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}

	var messageLines []string
	for _, msg := range model.timeline.Messages() {
		messageLines = append(messageLines, renderChatMessage(msg, user.ID))
	}
	if len(messageLines) == 0 {
		messageLines = append(messageLines, systemMessageStyle.Render("No messages yet. Say hi and start the conversation."))
	}

	sections := []string{header, statusLine}
	if notices := model.renderSystemNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, messageLines...)))
	if model.timeline.Sending() {
		sections = append(sections, connectingStyle.Render(model.spinner.View()+" Sending…"))
	}
	sections = append(sections,
		inputBoxStyle.Render(model.textInput.View()),
		menuHintStyle.Render("Enter send • Esc back • /resync • /logout"),
	)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderMenuOption(hotkey string, label string) string {
	key := menuHotkeyStyle.Render(hotkey)
	return lipgloss.JoinHorizontal(lipgloss.Left, key, menuItemStyle.Render(label))
}

func (model *TUIModel) renderSystemNotices() string {
	if len(model.notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(model.notices))
	for _, n := range model.notices {
		if n.isError {
			lines = append(lines, noticeErrorStyle.Render(n.text))
		} else {
			lines = append(lines, successStyle.Render(n.text))
		}
	}
	return noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// renderChatMessage renders one line with a local time label. Messages from
// selfID are highlighted.
func renderChatMessage(msg chat.Message, selfID string) string {
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", timeLabel(msg)))

	var nameStyle lipgloss.Style
	if msg.Sender.ID == selfID {
		nameStyle = activeUserStyle
	} else {
		nameStyle = usernameStyle.Copy().Foreground(colorForUser(msg.Sender.Username))
	}

	name := nameStyle.Render(msg.Sender.Name())
	bodyText := messageBodyStyle.Render(strings.ReplaceAll(msg.Content, "\n", "\n   "))

	return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", name, ": ", bodyText)
}

func timeLabel(msg chat.Message) string {
	if msg.Timestamp.IsZero() {
		return "--:--"
	}
	return msg.Timestamp.Local().Format("15:04")
}

func colorForUser(name string) lipgloss.Color {
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
