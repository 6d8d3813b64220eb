package internal

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"gqlchat/internal/chat"
	"gqlchat/internal/graphql"
	"gqlchat/internal/session"
)

var errFeedClosed = errors.New("live feed closed")

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC {
			return model, tea.Quit
		}
		switch model.mode {
		case modeAuthMenu:
			return model, model.updateAuthMenu(typedMessage)
		case modeAuthUsername, modeAuthPassword, modeAuthDisplayName:
			return model, model.updateAuthPrompt(typedMessage)
		case modeRooms:
			return model, model.updateRooms(typedMessage)
		case modeNewRoom:
			return model, model.updateNewRoom(typedMessage)
		case modeChat:
			return model, model.updateChat(typedMessage)
		}
		return model, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		model.spinner, cmd = model.spinner.Update(typedMessage)
		return model, cmd

	case loginDoneMsg:
		model.loading = false
		if typedMessage.err != nil {
			model.addNotice(describeError(typedMessage.err), true)
			return model, model.enterAuthPrompt(modeAuthUsername)
		}
		if err := model.session.Login(model.ctx, typedMessage.token, typedMessage.user); err != nil {
			log.Printf("client: login: %v", err)
			model.addNotice(fmt.Sprintf("Could not start session: %v", err), true)
			return model, nil
		}
		model.clearNotices()
		model.loading = true
		return model, model.roomsCmd()

	case registerDoneMsg:
		model.loading = false
		if typedMessage.err != nil {
			model.addNotice(describeError(typedMessage.err), true)
			return model, model.enterAuthPrompt(modeAuthUsername)
		}
		model.clearNotices()
		model.authIntent = authIntentLogin
		model.pendingPassword = ""
		model.addNotice("Registration successful! Please log in.", false)
		return model, model.enterAuthPrompt(modeAuthUsername)

	case roomsLoadedMsg:
		if model.session.View() == session.ViewUnauthenticated {
			return model, nil
		}
		model.loading = false
		if typedMessage.err != nil {
			model.handleBackendError(typedMessage.err)
			return model, nil
		}
		model.rooms = typedMessage.rooms
		if model.selectedRoom >= len(model.rooms) {
			model.selectedRoom = max(len(model.rooms)-1, 0)
		}
		return model, nil

	case roomCreatedMsg:
		if model.session.View() == session.ViewUnauthenticated {
			return model, nil
		}
		model.loading = false
		if model.mode == modeNewRoom {
			model.enterRooms()
		}
		if typedMessage.err != nil {
			model.handleBackendError(typedMessage.err)
			return model, nil
		}
		model.selectedRoom = model.addRoom(typedMessage.room)
		model.addNotice(fmt.Sprintf("Room %q created.", typedMessage.room.Name), false)
		return model, model.roomsCmd()

	case messagesLoadedMsg:
		if typedMessage.err != nil {
			if model.timeline.FailLoad(typedMessage.fetch, typedMessage.err) {
				log.Printf("client: load messages for room %s: %v", typedMessage.fetch.Room, typedMessage.err)
				model.handleBackendError(typedMessage.err)
			}
			return model, nil
		}
		model.timeline.Replace(typedMessage.fetch, typedMessage.messages)
		return model, nil

	case sendDoneMsg:
		if typedMessage.err != nil {
			text, ok := model.timeline.FailSend(typedMessage.ticket)
			if !ok {
				return model, nil
			}
			model.restoreComposer(text)
			log.Printf("client: send message: %v", typedMessage.err)
			model.handleBackendError(typedMessage.err)
			return model, nil
		}
		if !model.timeline.IsCurrent(typedMessage.ticket) {
			return model, nil
		}
		model.timeline.ConfirmSend(typedMessage.ticket, typedMessage.message)
		return model, model.resyncCmd()

	case feedOpenedMsg:
		if !model.timeline.IsCurrent(typedMessage.ticket) {
			if typedMessage.feed != nil {
				typedMessage.feed.Close()
			}
			return model, nil
		}
		if typedMessage.err != nil {
			model.feedErr = typedMessage.err
			model.resyncOnLive = true
			return model, model.scheduleReconnect(typedMessage.ticket)
		}
		model.feed = typedMessage.feed
		model.feedErr = nil
		model.retryDelay = 0
		cmds := []tea.Cmd{waitForFeedCmd(typedMessage.ticket, typedMessage.feed)}
		if model.resyncOnLive {
			model.resyncOnLive = false
			cmds = append(cmds, model.resyncCmd())
		}
		return model, tea.Batch(cmds...)

	case feedMsg:
		if !model.timeline.IsCurrent(typedMessage.ticket) || model.feed == nil {
			return model, nil
		}
		model.timeline.Deliver(typedMessage.ticket, typedMessage.message)
		return model, waitForFeedCmd(typedMessage.ticket, model.feed)

	case feedClosedMsg:
		if !model.timeline.IsCurrent(typedMessage.ticket) {
			return model, nil
		}
		if model.feed != nil {
			model.feed.Close()
			model.feed = nil
		}
		model.feedErr = typedMessage.err
		if model.feedErr == nil {
			model.feedErr = errFeedClosed
		}
		model.resyncOnLive = true
		return model, model.scheduleReconnect(typedMessage.ticket)

	case resubscribeMsg:
		if model.timeline.IsCurrent(typedMessage.ticket) && model.feed == nil {
			return model, model.subscribeCmd(typedMessage.ticket)
		}
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) updateAuthMenu(key tea.KeyMsg) tea.Cmd {
	switch key.String() {
	case "1", "l", "L":
		model.clearNotices()
		model.authIntent = authIntentLogin
		return model.enterAuthPrompt(modeAuthUsername)
	case "2", "r", "R":
		model.clearNotices()
		model.authIntent = authIntentRegister
		return model.enterAuthPrompt(modeAuthUsername)
	case "q", "Q", "esc":
		return tea.Quit
	}
	return nil
}

func (model *TUIModel) updateAuthPrompt(key tea.KeyMsg) tea.Cmd {
	switch key.Type {
	case tea.KeyEsc:
		model.clearNotices()
		model.enterAuthMenu()
		return nil
	case tea.KeyTab:
		if model.loading {
			return nil
		}
		if model.mode == modeAuthUsername {
			model.pendingUsername = strings.TrimSpace(model.textInput.Value())
		}
		if model.authIntent == authIntentLogin {
			model.authIntent = authIntentRegister
		} else {
			model.authIntent = authIntentLogin
		}
		return model.enterAuthPrompt(modeAuthUsername)
	case tea.KeyEnter:
		if model.loading {
			return nil
		}
		return model.submitAuthPrompt()
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return cmd
}

func (model *TUIModel) submitAuthPrompt() tea.Cmd {
	value := model.textInput.Value()
	switch model.mode {
	case modeAuthUsername:
		username := strings.TrimSpace(value)
		if username == "" {
			model.addNotice("Username cannot be empty.", true)
			return nil
		}
		model.pendingUsername = username
		return model.enterAuthPrompt(modeAuthPassword)
	case modeAuthPassword:
		if value == "" {
			model.addNotice("Password cannot be empty.", true)
			return nil
		}
		if model.authIntent == authIntentRegister {
			model.pendingPassword = value
			return model.enterAuthPrompt(modeAuthDisplayName)
		}
		model.loading = true
		model.textInput.Reset()
		return model.loginCmd(model.pendingUsername, value)
	case modeAuthDisplayName:
		model.loading = true
		password := model.pendingPassword
		model.pendingPassword = ""
		return model.registerCmd(model.pendingUsername, password, strings.TrimSpace(value))
	}
	return nil
}

func (model *TUIModel) updateRooms(key tea.KeyMsg) tea.Cmd {
	switch key.String() {
	case "up", "k":
		if model.selectedRoom > 0 {
			model.selectedRoom--
		}
	case "down", "j":
		if model.selectedRoom < len(model.rooms)-1 {
			model.selectedRoom++
		}
	case "enter":
		if len(model.rooms) == 0 {
			return nil
		}
		return model.openRoom(model.rooms[model.selectedRoom])
	case "n", "N":
		model.clearNotices()
		model.mode = modeNewRoom
		model.textInput.Reset()
		model.textInput.Placeholder = "Room name"
		model.textInput.Prompt = "room> "
		return model.textInput.Focus()
	case "r", "R":
		model.clearNotices()
		if !model.refreshes.allow("rooms") {
			model.addNotice(slowDownNotice, true)
			return nil
		}
		model.loading = true
		return model.roomsCmd()
	case "l", "L":
		model.logout()
	case "q", "Q":
		return tea.Quit
	}
	return nil
}

func (model *TUIModel) updateNewRoom(key tea.KeyMsg) tea.Cmd {
	switch key.Type {
	case tea.KeyEsc:
		model.enterRooms()
		return nil
	case tea.KeyEnter:
		if model.loading {
			return nil
		}
		name := strings.TrimSpace(model.textInput.Value())
		if name == "" {
			model.addNotice("Room name cannot be empty.", true)
			return nil
		}
		model.loading = true
		return model.createRoomCmd(name)
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return cmd
}

func (model *TUIModel) updateChat(key tea.KeyMsg) tea.Cmd {
	switch key.Type {
	case tea.KeyEsc:
		return model.leaveRoom()
	case tea.KeyEnter:
		value := model.textInput.Value()
		trimmed := strings.TrimSpace(value)
		if strings.HasPrefix(trimmed, "/") {
			model.textInput.Reset()
			return model.runCommand(strings.ToLower(trimmed))
		}
		user, ok := model.session.User()
		if !ok {
			return nil
		}
		send, err := model.timeline.BeginSend(value)
		if err != nil {
			if errors.Is(err, chat.ErrSendPending) {
				log.Printf("client: send ignored while another is pending")
			}
			return nil
		}
		model.textInput.Reset()
		return model.sendCmd(send, user.ID)
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return cmd
}

// restoreComposer puts the text of a failed send back in front of whatever
// was typed since.
func (model *TUIModel) restoreComposer(text string) {
	if typed := model.textInput.Value(); typed != "" {
		text = text + " " + typed
	}
	model.textInput.SetValue(text)
	model.textInput.CursorEnd()
}

func (model *TUIModel) runCommand(command string) tea.Cmd {
	switch command {
	case "/logout":
		model.logout()
		return nil
	case "/resync":
		if !model.refreshes.allow("resync") {
			model.addNotice(slowDownNotice, true)
			return nil
		}
		return model.resyncCmd()
	case "/leave", "/back":
		return model.leaveRoom()
	case "/quit", "/exit":
		return tea.Quit
	}
	model.addNotice(fmt.Sprintf("Unknown command %s. Try /resync, /leave, /logout or /quit.", command), true)
	return nil
}

// openRoom activates room and starts its initial load and live feed.
func (model *TUIModel) openRoom(room chat.Room) tea.Cmd {
	if err := model.session.SelectRoom(room); err != nil {
		log.Printf("client: select room: %v", err)
		return nil
	}
	fetch := model.timeline.Open(room.ID)
	return tea.Batch(model.loadMessagesCmd(fetch), model.subscribeCmd(fetch.Ticket))
}

// leaveRoom drops the room's list and subscription and returns to the room list.
func (model *TUIModel) leaveRoom() tea.Cmd {
	model.closeFeed()
	model.timeline.Close()
	if err := model.session.ClearRoom(); err != nil {
		log.Printf("client: leave room: %v", err)
		return nil
	}
	model.loading = true
	return model.roomsCmd()
}

func (model *TUIModel) resyncCmd() tea.Cmd {
	fetch, ok := model.timeline.Resync()
	if !ok {
		return nil
	}
	return model.loadMessagesCmd(fetch)
}

func (model *TUIModel) logout() {
	model.closeFeed()
	model.timeline.Close()
	model.clearNotices()
	if err := model.session.Logout(model.ctx); err != nil {
		log.Printf("client: logout: %v", err)
		model.addNotice(fmt.Sprintf("Logged out, but the stored session could not be cleared: %v", err), true)
	}
}

// handleBackendError surfaces err and ends the session when the server
// no longer accepts the credential.
func (model *TUIModel) handleBackendError(err error) {
	if errors.Is(err, graphql.ErrUnauthorized) && model.session.View() != session.ViewUnauthenticated {
		model.logout()
	}
	model.addNotice(describeError(err), true)
}

func (model *TUIModel) addRoom(room chat.Room) int {
	for idx, existing := range model.rooms {
		if existing.ID == room.ID {
			return idx
		}
	}
	model.rooms = append(model.rooms, room)
	return len(model.rooms) - 1
}
