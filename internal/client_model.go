package internal

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gqlchat/internal/chat"
	"gqlchat/internal/session"
)

const (
	maxNotices     = 3
	refreshLimit   = 3
	refreshWindow  = 5 * time.Second
	slowDownNotice = "Slow down. Try again in a moment."
)

// TUIModel is the bubbletea model. Update is the only place session,
// timeline and feed state change.
type TUIModel struct {
	ctx     context.Context
	session *session.Session
	auth    Authenticator
	backend Backend
	server  string

	textInput textinput.Model
	spinner   spinner.Model
	mode      appMode
	notices   []notice
	loading   bool

	authIntent      authIntent
	pendingUsername string
	pendingPassword string

	rooms        []chat.Room
	selectedRoom int
	refreshes    *throttle

	timeline     *chat.Timeline
	feed         Feed
	feedCancel   context.CancelFunc
	feedErr      error
	retryDelay   time.Duration
	resyncOnLive bool
}

type appMode int

const (
	modeAuthMenu appMode = iota
	modeAuthUsername
	modeAuthPassword
	modeAuthDisplayName
	modeRooms
	modeNewRoom
	modeChat
)

type authIntent int

const (
	authIntentLogin authIntent = iota
	authIntentRegister
)

type notice struct {
	text    string
	isError bool
}

func NewTUIModel(ctx context.Context, deps ClientDeps) *TUIModel {
	input := textinput.New()
	input.CharLimit = 0

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))

	model := &TUIModel{
		ctx:             ctx,
		session:         deps.Session,
		auth:            deps.Auth,
		backend:         deps.Backend,
		server:          deps.Server,
		textInput:       input,
		spinner:         spin,
		pendingUsername: deps.Username,
		refreshes:       newThrottle(refreshLimit, refreshWindow),
		timeline:        chat.NewTimeline(),
	}
	model.session.Observe(model.onSessionEvent)

	switch model.session.View() {
	case session.ViewRoomSelection:
		model.enterRooms()
		model.loading = true
	default:
		model.enterAuthMenu()
	}
	return model
}

func (model *TUIModel) Init() tea.Cmd {
	cmds := []tea.Cmd{model.spinner.Tick}
	if model.mode == modeRooms {
		cmds = append(cmds, model.roomsCmd())
	}
	return tea.Batch(cmds...)
}

// onSessionEvent keeps the screen in step with the router.
func (model *TUIModel) onSessionEvent(event session.Event) {
	switch event.Kind {
	case session.EventLoggedIn, session.EventRoomCleared:
		model.enterRooms()
	case session.EventRoomSelected:
		model.enterChat()
	case session.EventLoggedOut:
		model.rooms = nil
		model.selectedRoom = 0
		model.authIntent = authIntentLogin
		model.enterAuthMenu()
	}
}

func (model *TUIModel) enterAuthMenu() {
	model.mode = modeAuthMenu
	model.loading = false
	model.pendingPassword = ""
	model.textInput.Reset()
	model.textInput.Blur()
	model.textInput.EchoMode = textinput.EchoNormal
	model.textInput.Prompt = ""
	model.textInput.Placeholder = ""
}

func (model *TUIModel) enterAuthPrompt(mode appMode) tea.Cmd {
	model.mode = mode
	model.textInput.Reset()
	model.textInput.EchoMode = textinput.EchoNormal
	switch mode {
	case modeAuthUsername:
		model.textInput.SetValue(model.pendingUsername)
		model.textInput.Placeholder = "Username"
		model.textInput.Prompt = "user> "
	case modeAuthPassword:
		model.textInput.Placeholder = "Password"
		model.textInput.Prompt = "pass> "
		model.textInput.EchoMode = textinput.EchoPassword
		model.textInput.EchoCharacter = '•'
	case modeAuthDisplayName:
		model.textInput.Placeholder = "Display name (optional)"
		model.textInput.Prompt = "name> "
	}
	return model.textInput.Focus()
}

func (model *TUIModel) enterRooms() {
	model.mode = modeRooms
	model.textInput.Reset()
	model.textInput.Blur()
	model.textInput.EchoMode = textinput.EchoNormal
	model.textInput.Prompt = ""
	model.textInput.Placeholder = ""
	model.pendingPassword = ""
}

func (model *TUIModel) enterChat() {
	model.mode = modeChat
	model.notices = nil
	model.textInput.Reset()
	model.textInput.EchoMode = textinput.EchoNormal
	model.textInput.Placeholder = "Type a message…"
	model.textInput.Prompt = "> "
	model.textInput.Focus()
}

func (model *TUIModel) addNotice(text string, isError bool) {
	model.notices = append(model.notices, notice{text: text, isError: isError})
	if len(model.notices) > maxNotices {
		model.notices = model.notices[len(model.notices)-maxNotices:]
	}
}

func (model *TUIModel) clearNotices() {
	model.notices = nil
}

// closeFeed cancels the live subscription, if any.
func (model *TUIModel) closeFeed() {
	if model.feedCancel != nil {
		model.feedCancel()
		model.feedCancel = nil
	}
	if model.feed != nil {
		model.feed.Close()
		model.feed = nil
	}
	model.feedErr = nil
	model.retryDelay = 0
	model.resyncOnLive = false
}

func (model *TUIModel) shutdown() {
	model.closeFeed()
	model.timeline.Close()
}
