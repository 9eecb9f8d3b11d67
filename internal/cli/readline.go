package cli

import (
	"errors"
	"io"

	"github.com/chzyer/readline"
)

// ReadlineReader reads questions with line editing and persistent history.
type ReadlineReader struct {
	rl *readline.Instance
}

func NewReadlineReader(historyFile string, stdout, stderr io.Writer) (*ReadlineReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         QuitWord,
		HistorySearchFold: true,
		Stdout:            stdout,
		Stderr:            stderr,
	})
	if err != nil {
		return nil, err
	}
	return &ReadlineReader{rl: rl}, nil
}

func (r *ReadlineReader) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupt
	}
	return line, err
}

func (r *ReadlineReader) Close() error {
	return r.rl.Close()
}
