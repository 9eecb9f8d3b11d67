package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/sampler"
)

type snapshotSource interface {
	Wait(ctx context.Context, timeout time.Duration) (sampler.Snapshot, bool)
}

// SampleAgent answers from the background sample snapshot with one raw
// generation call.
type SampleAgent struct {
	source      snapshotSource
	gen         llm.Generator
	waitTimeout time.Duration
	params      llm.Params
	status      io.Writer
	logger      *slog.Logger
}

type SampleAgentConfig struct {
	Source      snapshotSource
	Generator   llm.Generator
	WaitTimeout time.Duration
	Temperature float64
	MaxTokens   int
	Status      io.Writer
	Logger      *slog.Logger
}

func NewSampleAgent(cfg SampleAgentConfig) (*SampleAgent, error) {
	if cfg.Source == nil || cfg.Generator == nil {
		return nil, fmt.Errorf("snapshot source and generator are required")
	}
	if cfg.WaitTimeout < 0 {
		cfg.WaitTimeout = 0
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SampleAgent{
		source:      cfg.Source,
		gen:         cfg.Generator,
		waitTimeout: cfg.WaitTimeout,
		params: llm.Params{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Stop:        []string{"<|im_end|>"},
		},
		status: cfg.Status,
		logger: logger,
	}, nil
}

func (a *SampleAgent) Respond(ctx context.Context, question string) (string, error) {
	ctx, logger := withTrace(ctx, a.logger)
	logger.Info("question received", slog.String("question", question))

	snapshot, ok := a.source.Wait(ctx, a.waitTimeout)
	if !ok {
		observability.IncrementSamplerWaitTimeout()
		observability.ObserveQuestion("sample", "still_loading")
		logger.Warn("sample snapshot not ready", slog.Duration("waited", a.waitTimeout))
		return StillLoading, nil
	}

	prompt, err := BuildSamplePrompt(question, snapshot)
	if err != nil {
		return "", err
	}
	status(a.status, "🤖 Generating answer from sampled data...")
	answer, err := a.gen.Generate(ctx, prompt, a.params)
	if err != nil {
		observability.ObserveQuestion("sample", "model_error")
		return "", fmt.Errorf("generate answer: %w", err)
	}
	observability.ObserveQuestion("sample", "answered")
	return strings.TrimSpace(answer), nil
}

// BuildSamplePrompt embeds the whole snapshot as JSON with the question and
// renders it with the chat template.
func BuildSamplePrompt(question string, snapshot sampler.Snapshot) (string, error) {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode sample snapshot: %w", err)
	}
	system := "You are a helpful assistant that answers questions about a database.\n" +
		"Below is a sample of rows from every table, as JSON keyed by table name.\n" +
		"Answer using only this data. If the sample is not enough, say so.\n\n" +
		string(data)
	return llm.RenderChatML([]llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: strings.TrimSpace(question)},
	}), nil
}
