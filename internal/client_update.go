package internal

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type (
	roomCreatedMsg   createRoomResponse
	roomJoinedMsg    roomResponse
	roomRefreshedMsg roomResponse
	uploadedMsg      uploadResponse
	downloadedMsg    struct{ path string }
	destroyedMsg     struct{}
	apiErrorMsg      struct{ err error }
	wsConnectedMsg   struct{}
	wsEventMsg       Event
	wsClosedMsg      struct{ err error }
	reconnectMsg     struct{}
	tickMsg          struct{}
)

func (model *PortalModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC {
			model.closeWebsocket()
			return model, tea.Quit
		}
		switch model.mode {
		case modeMenu:
			switch typedMessage.String() {
			case "1", "c", "C":
				return model, model.createCmd()
			case "2", "j", "J":
				model.mode = modeJoinPrompt
				model.textInput.SetValue("")
				model.textInput.Placeholder = "Enter 6-digit room code…"
				model.textInput.Prompt = "room> "
				focusCmd := model.textInput.Focus()
				return model, focusCmd
			case "q", "Q", "3":
				return model, tea.Quit
			}
			return model, nil
		case modeJoinPrompt:
			switch typedMessage.Type {
			case tea.KeyEsc:
				model.mode = modeMenu
				model.textInput.SetValue("")
				model.textInput.Blur()
				model.textInput.Placeholder = ""
				model.textInput.Prompt = ""
				return model, nil
			case tea.KeyEnter:
				trimmed := strings.TrimSpace(model.textInput.Value())
				if trimmed == "" {
					return model, nil
				}
				if !ValidCode(trimmed) {
					model.addNotice("Room codes are exactly six digits.")
					return model, nil
				}
				return model, model.joinCmd(trimmed)
			}
			var cmd tea.Cmd
			model.textInput, cmd = model.textInput.Update(typedMessage)
			return model, cmd
		case modeRoom:
			if typedMessage.Type == tea.KeyEsc {
				model.closeWebsocket()
				return model, tea.Quit
			}
			if typedMessage.Type == tea.KeyEnter {
				trimmed := strings.TrimSpace(model.textInput.Value())
				model.textInput.SetValue("")
				return model.handleRoomCommand(trimmed)
			}
			var command tea.Cmd
			model.textInput, command = model.textInput.Update(typedMessage)
			return model, command
		}

	case roomCreatedMsg:
		model.roomCode = typedMessage.Code
		model.username = typedMessage.Username
		model.remaining = typedMessage.RemainingSeconds
		model.enterRoom()
		model.addNotice(fmt.Sprintf("Room %s created. Share the code to let others in.", model.roomCode))
		return model, tea.Batch(model.refreshCmd(), model.connectCmd(), tickCmd())

	case roomJoinedMsg:
		model.applyRoomView(roomResponse(typedMessage))
		model.enterRoom()
		return model, tea.Batch(model.connectCmd(), tickCmd())

	case roomRefreshedMsg:
		model.applyRoomView(roomResponse(typedMessage))
		return model, nil

	case uploadedMsg:
		model.addNotice(fmt.Sprintf("Sent %d file(s).", typedMessage.Uploaded))
		return model, model.refreshCmd()

	case downloadedMsg:
		model.addNotice("Saved to " + typedMessage.path)
		return model, model.refreshCmd()

	case destroyedMsg:
		model.destroyed = true
		model.addNotice("Room destroyed. All files are gone.")
		model.closeWebsocket()
		return model, nil

	case apiErrorMsg:
		if model.mode == modeJoinPrompt || model.mode == modeMenu {
			model.addNotice(typedMessage.err.Error())
			return model, nil
		}
		model.addNotice("Error: " + typedMessage.err.Error())
		return model, nil

	case wsConnectedMsg:
		model.isConnected = true
		return model, model.readOnceCmd()

	case wsEventMsg:
		return model.handleRoomEvent(Event(typedMessage))

	case wsClosedMsg:
		model.isConnected = false
		if model.mode == modeRoom && !model.destroyed {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case reconnectMsg:
		if model.mode == modeRoom && !model.isConnected && !model.destroyed {
			return model, model.connectCmd()
		}
		return model, nil

	case tickMsg:
		if model.mode != modeRoom || model.destroyed {
			return model, nil
		}
		if model.remaining > 0 {
			model.remaining--
		}
		if model.remaining == 0 {
			model.destroyed = true
			model.addNotice("Room expired.")
			model.closeWebsocket()
			return model, nil
		}
		return model, tickCmd()
	}
	return model, nil
}

// handleRoomCommand parses the slash commands entered in the room view.
func (model *PortalModel) handleRoomCommand(input string) (tea.Model, tea.Cmd) {
	if input == "" {
		return model, model.refreshCmd()
	}
	if !strings.HasPrefix(input, "/") {
		model.addNotice("Commands start with /. Try /upload, /download, /destroy, /quit.")
		return model, nil
	}

	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit":
		model.closeWebsocket()
		return model, tea.Quit
	case "/refresh":
		return model, model.refreshCmd()
	case "/destroy":
		if model.destroyed {
			model.addNotice("The room is already gone.")
			return model, nil
		}
		return model, model.destroyCmd()
	case "/upload":
		if model.destroyed {
			model.addNotice("The room is gone; nothing to upload to.")
			return model, nil
		}
		// The path may contain spaces, so split on the command only.
		path := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))
		if path == "" {
			model.addNotice("Usage: /upload <path>")
			return model, nil
		}
		return model, model.uploadCmd(path)
	case "/download":
		if len(fields) < 2 {
			model.addNotice("Usage: /download <index> [dir]")
			return model, nil
		}
		index, err := strconv.Atoi(fields[1])
		if err != nil || index < 0 {
			model.addNotice("File index must be a non-negative number.")
			return model, nil
		}
		destDir := ""
		if len(fields) >= 3 {
			destDir = fields[2]
		}
		return model, model.downloadCmd(index, destDir)
	default:
		model.addNotice("Unknown command. Try /upload, /download, /destroy, /refresh, /quit.")
		return model, nil
	}
}

// handleRoomEvent reacts to one server push, then queues the next read.
func (model *PortalModel) handleRoomEvent(event Event) (tea.Model, tea.Cmd) {
	switch event.Kind {
	case EventFilesAdded:
		model.addNotice("New files arrived.")
		return model, tea.Batch(model.refreshCmd(), model.readOnceCmd())
	case EventFileDownloaded:
		return model, tea.Batch(model.refreshCmd(), model.readOnceCmd())
	case EventRoomDestroyed:
		model.destroyed = true
		model.addNotice("The room has been destroyed.")
		model.closeWebsocket()
		return model, nil
	default:
		return model, model.readOnceCmd()
	}
}

func (model *PortalModel) applyRoomView(view roomResponse) {
	model.roomCode = view.Code
	if view.Username != "" {
		model.username = view.Username
	}
	model.files = view.Files
	model.history = view.History
	model.remaining = view.RemainingSeconds
}

func (model *PortalModel) enterRoom() {
	model.mode = modeRoom
	model.destroyed = false
	model.textInput.SetValue("")
	model.textInput.Placeholder = "Enter a command…"
	model.textInput.Prompt = "> "
	model.textInput.Focus()
}
