// Package modelhub resolves the model weights into local files, fetching them
// on first use.
package modelhub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ardanlabs/kronk/sdk/kronk"
	"github.com/ardanlabs/kronk/sdk/tools/models"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/storage"
)

var ErrModelMissing = errors.New("model file not found")

// Downloader fetches a model from a remote repository and returns the local
// files holding its weights.
type Downloader interface {
	Download(ctx context.Context, modelURL string) ([]string, error)
}

type Config struct {
	Source     string
	Repo       string
	Filename   string
	CacheDir   string
	HubBaseURL string
	// Downloader defaults to the kronk model manager.
	Downloader Downloader
}

type Hub struct {
	cfg      Config
	store    storage.ObjectStore
	download Downloader
	logger   *slog.Logger
}

// New builds a hub. store is required only for the s3 source.
func New(cfg Config, store storage.ObjectStore, logger *slog.Logger) (*Hub, error) {
	if strings.TrimSpace(cfg.Filename) == "" {
		return nil, fmt.Errorf("model filename is required")
	}
	if strings.TrimSpace(cfg.CacheDir) == "" {
		cfg.CacheDir = "models"
	}
	switch cfg.Source {
	case config.ModelSourceHuggingFace:
		if strings.TrimSpace(cfg.Repo) == "" {
			return nil, fmt.Errorf("model repo is required for source %q", cfg.Source)
		}
		if strings.TrimSpace(cfg.HubBaseURL) == "" {
			cfg.HubBaseURL = "https://huggingface.co"
		}
	case config.ModelSourceS3:
		if store == nil {
			return nil, fmt.Errorf("object store is required for source %q", cfg.Source)
		}
	case config.ModelSourceNone:
	default:
		return nil, fmt.Errorf("unsupported model source %q", cfg.Source)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	download := cfg.Downloader
	if download == nil {
		download = KronkDownloader{}
	}
	return &Hub{
		cfg:      cfg,
		store:    store,
		download: download,
		logger:   logger,
	}, nil
}

// Path is where a pre-seeded or object-store model file lives.
func (h *Hub) Path() string {
	return filepath.Join(h.cfg.CacheDir, h.cfg.Filename)
}

// Ensure returns the local model files. A non-empty file at Path wins over any
// remote source.
func (h *Hub) Ensure(ctx context.Context) ([]string, error) {
	path := h.Path()
	if present(path) {
		h.logger.Info("model already cached", slog.String("path", path))
		return []string{path}, nil
	}

	start := time.Now()
	switch h.cfg.Source {
	case config.ModelSourceNone:
		return nil, fmt.Errorf("%w: %s", ErrModelMissing, path)

	case config.ModelSourceHuggingFace:
		modelURL := h.ResolveURL()
		h.logger.Info("downloading model", slog.String("source", h.cfg.Source), slog.String("url", modelURL))
		files, err := h.download.Download(ctx, modelURL)
		if err != nil {
			return nil, fmt.Errorf("fetch model: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("fetch model: %w: %s", ErrModelMissing, modelURL)
		}
		h.logger.Info("model downloaded",
			slog.Any("files", files),
			slog.Duration("duration", time.Since(start)),
		)
		return files, nil

	default:
		h.logger.Info("downloading model", slog.String("source", h.cfg.Source), slog.String("key", h.cfg.Filename))
		if err := os.MkdirAll(h.cfg.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("create model cache dir: %w", err)
		}
		body, err := h.store.Get(ctx, h.cfg.Filename)
		if err != nil {
			return nil, fmt.Errorf("fetch model: %w", err)
		}
		defer func() { _ = body.Close() }()

		written, err := writeAtomic(path, body)
		if err != nil {
			return nil, err
		}
		h.logger.Info("model downloaded",
			slog.String("path", path),
			slog.Int64("bytes", written),
			slog.Duration("duration", time.Since(start)),
		)
		return []string{path}, nil
	}
}

// ResolveURL is the hub download URL of the configured file.
func (h *Hub) ResolveURL() string {
	return strings.TrimRight(h.cfg.HubBaseURL, "/") + "/" +
		strings.Trim(h.cfg.Repo, "/") + "/resolve/main/" + url.PathEscape(h.cfg.Filename) + "?download=true"
}

// KronkDownloader stores models in the kronk model cache.
type KronkDownloader struct{}

func (KronkDownloader) Download(ctx context.Context, modelURL string) ([]string, error) {
	mdls, err := models.New()
	if err != nil {
		return nil, fmt.Errorf("create models api: %w", err)
	}
	mp, err := mdls.Download(ctx, kronk.FmtLogger, modelURL, "")
	if err != nil {
		return nil, fmt.Errorf("install model: %w", err)
	}
	return mp.ModelFiles, nil
}

func present(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		return err == nil && len(entries) > 0
	}
	return info.Size() > 0
}

// writeAtomic streams src into a sibling temp file and renames it over path.
func writeAtomic(path string, src io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp model file: %w", err)
	}
	tmpPath := tmp.Name()
	written, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil && written == 0 {
		err = fmt.Errorf("empty model download")
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("write model file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("move model file into place: %w", err)
	}
	return written, nil
}
