package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ardanlabs/kronk/sdk/kronk"
	"github.com/ardanlabs/kronk/sdk/kronk/model"
	"github.com/ardanlabs/kronk/sdk/tools/libs"

	"github.com/askdb/askdb/internal/observability"
)

// chunk is one piece of a streamed chat response. The final chunk has done
// set.
type chunk struct {
	content string
	done    bool
	err     error
}

type engine interface {
	stream(ctx context.Context, d model.D) (<-chan chunk, error)
	unload(ctx context.Context) error
}

type loadFunc func(ctx context.Context, files []string) (engine, error)

type LocalConfig struct {
	ModelFiles []string

	load loadFunc
}

// Local runs the model in process through kronk.
type Local struct {
	engine engine
}

// LoadLocal installs the llama.cpp libraries when missing and loads the model
// files.
func LoadLocal(ctx context.Context, cfg LocalConfig, logger *slog.Logger) (*Local, error) {
	if len(cfg.ModelFiles) == 0 {
		return nil, fmt.Errorf("model files are required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	load := cfg.load
	if load == nil {
		load = loadKronk
	}

	start := time.Now()
	eng, err := load(ctx, cfg.ModelFiles)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", cfg.ModelFiles[0], err)
	}
	logger.Info("model loaded",
		slog.Any("files", cfg.ModelFiles),
		slog.Duration("duration", time.Since(start)),
	)
	return &Local{engine: eng}, nil
}

func (l *Local) Chat(ctx context.Context, messages []Message, params Params) (string, error) {
	start := time.Now()
	out, err := l.complete(ctx, messages, params)
	observability.ObserveLLMCall("chat", time.Since(start), err)
	return out, err
}

// Generate decodes the ChatML turns of prompt and lets the model apply its own
// chat template.
func (l *Local) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	start := time.Now()
	out, err := l.complete(ctx, ParseChatML(prompt), params)
	observability.ObserveLLMCall("generate", time.Since(start), err)
	return out, err
}

func (l *Local) Close(ctx context.Context) error {
	if l == nil || l.engine == nil {
		return nil
	}
	if err := l.engine.unload(ctx); err != nil {
		return fmt.Errorf("unload model: %w", err)
	}
	return nil
}

func (l *Local) complete(ctx context.Context, messages []Message, params Params) (string, error) {
	msgs := make([]model.D, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, model.TextMessage(m.Role, m.Content))
	}
	d := model.D{
		"messages":    msgs,
		"temperature": params.Temperature,
	}
	if params.MaxTokens > 0 {
		d["max_tokens"] = params.MaxTokens
	}

	ch, err := l.engine.stream(ctx, d)
	if err != nil {
		return "", fmt.Errorf("chat streaming: %w", err)
	}
	text, err := collect(ctx, ch)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(truncateAtStop(text, params.Stop)), nil
}

// collect joins streamed deltas. A final chunk that already carries the whole
// reply replaces the accumulated text.
func collect(ctx context.Context, ch <-chan chunk) (string, error) {
	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case c, ok := <-ch:
			if !ok {
				return b.String(), nil
			}
			if c.err != nil {
				return "", c.err
			}
			if !c.done {
				b.WriteString(c.content)
				continue
			}
			if strings.HasPrefix(c.content, b.String()) {
				return c.content, nil
			}
			return b.String() + c.content, nil
		}
	}
}

func truncateAtStop(text string, stop []string) string {
	cut := len(text)
	for _, s := range stop {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 && i < cut {
			cut = i
		}
	}
	return text[:cut]
}

// ParseChatML splits a ChatML prompt back into messages. The open assistant
// turn at the end is dropped. Text without ChatML markers becomes one user
// message.
func ParseChatML(prompt string) []Message {
	if !strings.Contains(prompt, "<|im_start|>") {
		return []Message{{Role: RoleUser, Content: strings.TrimSpace(prompt)}}
	}
	var out []Message
	for _, turn := range strings.Split(prompt, "<|im_start|>")[1:] {
		role, body, _ := strings.Cut(turn, "\n")
		role = strings.TrimSpace(role)
		body, _, _ = strings.Cut(body, "<|im_end|>")
		body = strings.TrimSpace(body)
		if role == RoleAssistant && body == "" {
			continue
		}
		out = append(out, Message{Role: role, Content: body})
	}
	return out
}

func loadKronk(ctx context.Context, files []string) (engine, error) {
	lib, err := libs.New()
	if err != nil {
		return nil, fmt.Errorf("create libs api: %w", err)
	}
	if _, err := lib.Download(ctx, kronk.FmtLogger); err != nil {
		return nil, fmt.Errorf("install llama.cpp: %w", err)
	}
	if err := kronk.Init(); err != nil {
		return nil, fmt.Errorf("init kronk: %w", err)
	}
	krn, err := kronk.New(model.Config{ModelFiles: files})
	if err != nil {
		return nil, fmt.Errorf("create inference model: %w", err)
	}
	return kronkEngine{krn: krn}, nil
}

type kronkEngine struct {
	krn *kronk.Kronk
}

func (e kronkEngine) stream(ctx context.Context, d model.D) (<-chan chunk, error) {
	ch, err := e.krn.ChatStreaming(ctx, d)
	if err != nil {
		return nil, err
	}
	out := make(chan chunk)
	go func() {
		defer close(out)
		for resp := range ch {
			if len(resp.Choice) == 0 {
				continue
			}
			choice := resp.Choice[0]
			c := chunk{content: choice.Delta.Content}
			switch choice.FinishReason() {
			case model.FinishReasonError:
				c = chunk{err: fmt.Errorf("error from model: %s", choice.Delta.Content)}
			case model.FinishReasonStop:
				c.done = true
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (e kronkEngine) unload(ctx context.Context) error {
	return e.krn.Unload(ctx)
}
