package tui

import (
	"errors"

	orchestration "github.com/JayTiptown/Conduit-coding-test/core"
	"github.com/JayTiptown/Conduit-coding-test/core/speechtotext"
	tea "github.com/charmbracelet/bubbletea"
)

// Start runs program on its own goroutine so it reads messages from the
// moment Start returns. The channel receives the result of Run once the
// program exits. A program stopped through its context reports nil.
func Start(program *tea.Program) <-chan error {
	exited := make(chan error, 1)
	go func() {
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			err = nil
		}
		exited <- err
	}()
	return exited
}

// ConversationOptions forwards conversation progress to program. Sends block
// until the program takes the message, so program must already be running.
// onRecognizerError, if set, runs after the error is shown.
func ConversationOptions(program *tea.Program, onRecognizerError func(error)) []orchestration.OrchestrateOption {
	return []orchestration.OrchestrateOption{
		orchestration.WithWordCallback(func(word speechtotext.Word) {
			program.Send(WordMsg{Text: word.Text, Start: word.Start, End: word.End})
		}),
		orchestration.WithPhaseChangedCallback(func(phase orchestration.Phase) {
			program.Send(PhaseMsg{Phase: phase})
		}),
		orchestration.WithTurnCallback(func(turnID, text string) {
			program.Send(TurnMsg{ID: turnID, Text: text})
		}),
		orchestration.WithSentenceCallback(func(turnID, sentence string) {
			program.Send(SentenceMsg{TurnID: turnID, Text: sentence})
		}),
		orchestration.WithRecognizerErrorCallback(func(err error) {
			program.Send(ErrorMsg{Err: err})
			if onRecognizerError != nil {
				onRecognizerError(err)
			}
		}),
	}
}
