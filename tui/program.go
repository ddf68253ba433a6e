package tui

import (
	"context"
	"errors"

	"microrail-remote/common"
	"microrail-remote/remote"

	tea "github.com/charmbracelet/bubbletea"
)

// Run показывает пульт, пока пользователь не выйдет или сессия не завершится
func Run(ctx context.Context, session *remote.Session, title string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(NewModel(session, title), tea.WithAltScreen(), tea.WithContext(ctx))
	session.OnStatus(func(s common.Status) {
		program.Send(StatusMsg(s))
	})

	sessionErr := make(chan error, 1)
	go func() {
		err := session.Run(ctx)
		sessionErr <- err
		program.Send(SessionEndedMsg{Err: err})
	}()

	_, err := program.Run()
	cancel()
	if serr := <-sessionErr; serr != nil {
		return serr
	}
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
