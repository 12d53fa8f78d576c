package app

import (
	tea "github.com/charmbracelet/bubbletea"

	intrnl "fileportal/internal"
)

// RunClient starts the terminal client against a running server.
func RunClient(cfg ClientConfig) error {
	model, err := intrnl.NewPortalModel(cfg.ServerURL, cfg.RoomCode)
	if err != nil {
		return err
	}
	program := tea.NewProgram(model)
	_, err = program.Run()
	return err
}
