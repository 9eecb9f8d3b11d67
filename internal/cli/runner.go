// Package cli runs the interactive question loop shared by both chat
// variants.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// QuitWord ends the session when typed on its own, ignoring case and
// surrounding whitespace.
const QuitWord = "sair"

// ErrInterrupt is returned by a LineReader when the user presses Ctrl+C.
var ErrInterrupt = errors.New("interrupted")

type LineReader interface {
	ReadLine(prompt string) (string, error)
}

type Responder interface {
	Respond(ctx context.Context, question string) (string, error)
}

type Options struct {
	Prompt        string
	AssistantName string
	Renderer      Renderer
	Stdout        io.Writer
	Stderr        io.Writer
	Logger        *slog.Logger
}

func IsQuit(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), QuitWord)
}

// Run reads questions until the quit word, EOF, an interrupt or ctx ends. A
// failed turn is reported and the session continues. The exit code is 0 for a
// normal end and 1 when the input itself fails.
func Run(ctx context.Context, reader LineReader, responder Responder, opts Options) int {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = PlainRenderer{}
	}
	name := firstNonEmpty(opts.AssistantName, "Assistant")

	for {
		if ctx.Err() != nil {
			_, _ = fmt.Fprintln(stdout, "Closing the program.")
			return 0
		}

		_, _ = fmt.Fprintln(stdout)
		line, err := reader.ReadLine(opts.Prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrInterrupt) || ctx.Err() != nil {
				_, _ = fmt.Fprintln(stdout, "Closing the program.")
				return 0
			}
			_, _ = fmt.Fprintf(stderr, "read input: %v\n", err)
			return 1
		}

		if IsQuit(line) {
			_, _ = fmt.Fprintln(stdout, "Closing the program.")
			return 0
		}
		question := strings.TrimSpace(line)
		if question == "" {
			continue
		}

		answer, err := responder.Respond(ctx, question)
		if err != nil {
			logger.Error("answer failed", slog.String("question", question), slog.Any("error", err))
			_, _ = fmt.Fprintf(stderr, "❌ %v\n", err)
			continue
		}
		_, _ = fmt.Fprintf(stdout, "\n🤖 %s: %s\n", name, renderer.Render(answer))
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
