package internal

import (
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// PortalModel is the bubbletea model for the terminal client. One model
// instance covers the menu, the join prompt, and the room view.
type PortalModel struct {
	api           *apiClient
	textInput     textinput.Model
	mode          portalMode
	roomCode      string
	username      string
	files         []fileDTO
	history       []historyDTO
	remaining     int64
	destroyed     bool
	isConnected   bool
	websocketConn *websocket.Conn
	notices       []clientNotice
	fatalErr      error
}

type portalMode int

const (
	modeMenu portalMode = iota
	modeJoinPrompt
	modeRoom
)

type clientNotice struct {
	body string
	ts   int64
}

func NewPortalModel(serverURL, roomCode string) (*PortalModel, error) {
	api, err := newAPIClient(serverURL)
	if err != nil {
		return nil, err
	}

	input := textinput.New()
	input.CharLimit = 0
	input.Prompt = ""
	input.Placeholder = ""

	model := &PortalModel{
		api:      api,
		textInput: input,
		roomCode: roomCode,
		mode:     modeMenu,
	}
	return model, nil
}

func (model *PortalModel) Init() tea.Cmd {
	if model.roomCode != "" {
		return model.joinCmd(model.roomCode)
	}
	return nil
}

func (model *PortalModel) addNotice(body string) {
	model.notices = append(model.notices, clientNotice{body: body, ts: time.Now().Unix()})
	if len(model.notices) > 6 {
		model.notices = model.notices[len(model.notices)-6:]
	}
}
