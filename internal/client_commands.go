package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

func (model *PortalModel) createCmd() tea.Cmd {
	return func() tea.Msg {
		resp, err := model.api.CreateRoom()
		if err != nil {
			return apiErrorMsg{err: err}
		}
		return roomCreatedMsg(resp)
	}
}

func (model *PortalModel) joinCmd(code string) tea.Cmd {
	return func() tea.Msg {
		resp, err := model.api.Join(code)
		if err != nil {
			return apiErrorMsg{err: err}
		}
		return roomJoinedMsg(resp)
	}
}

func (model *PortalModel) refreshCmd() tea.Cmd {
	code := model.roomCode
	return func() tea.Msg {
		resp, err := model.api.Snapshot(code)
		if err != nil {
			return apiErrorMsg{err: err}
		}
		return roomRefreshedMsg(resp)
	}
}

func (model *PortalModel) uploadCmd(path string) tea.Cmd {
	code := model.roomCode
	return func() tea.Msg {
		resp, err := model.api.Upload(code, path)
		if err != nil {
			return apiErrorMsg{err: err}
		}
		return uploadedMsg(resp)
	}
}

func (model *PortalModel) downloadCmd(index int, destDir string) tea.Cmd {
	code := model.roomCode
	return func() tea.Msg {
		path, err := model.api.Download(code, index, destDir)
		if err != nil {
			return apiErrorMsg{err: err}
		}
		return downloadedMsg{path: path}
	}
}

func (model *PortalModel) destroyCmd() tea.Cmd {
	code := model.roomCode
	return func() tea.Msg {
		if err := model.api.Destroy(code); err != nil {
			return apiErrorMsg{err: err}
		}
		return destroyedMsg{}
	}
}

// connectCmd dials the watch websocket for live room events.
func (model *PortalModel) connectCmd() tea.Cmd {
	return func() tea.Msg {
		watchURL, err := model.api.watchURL(model.roomCode)
		if err != nil {
			return wsClosedMsg{err: err}
		}
		conn, _, err := websocket.DefaultDialer.Dial(watchURL, http.Header{})
		if err != nil {
			return wsClosedMsg{err: err}
		}
		model.websocketConn = conn
		return wsConnectedMsg{}
	}
}

func (model *PortalModel) readOnceCmd() tea.Cmd {
	return func() tea.Msg {
		if model.websocketConn == nil {
			return wsClosedMsg{err: fmt.Errorf("websocket not connected")}
		}
		messageType, payload, err := model.websocketConn.ReadMessage()
		if err != nil {
			return wsClosedMsg{err: err}
		}
		if messageType != websocket.TextMessage {
			return wsEventMsg{}
		}
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return wsEventMsg{}
		}
		return wsEventMsg(event)
	}
}

func (model *PortalModel) closeWebsocket() {
	if model.websocketConn != nil {
		_ = model.websocketConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = model.websocketConn.Close()
		model.websocketConn = nil
	}
	model.isConnected = false
}

func (model *PortalModel) scheduleReconnect() tea.Cmd {
	const retryDelay = 2 * time.Second
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}
