// Package cover_image is the batch worker that draws topic and area covers:
// prompt → image provider → blob storage → cover reference.
package cover_image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/jackzampolin/temario/internal/blob"
	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/jobs"
	"github.com/jackzampolin/temario/internal/keypool"
	"github.com/jackzampolin/temario/internal/providers"
	"github.com/jackzampolin/temario/internal/store"
	"github.com/jackzampolin/temario/internal/types"
)

// JobType is the job type handled by Worker.
const JobType = "cover_image"

// Target kinds accepted in BatchItem.TargetKey.
const (
	TargetTopic = "topic"
	TargetArea  = "area"
)

// ImageProviders looks up an image generator and its credential pool.
type ImageProviders interface {
	Image(name string) (providers.ImageGenerator, *keypool.Pool, error)
}

// Config configures a Worker.
type Config struct {
	Providers ImageProviders
	Provider  string // "" = registry default
	Rotator   *keypool.Rotator
	Storage   blob.Storage
	Areas     store.Areas
	Topics    store.Topics
	KeyPrefix string // default "covers"
	Logger    *slog.Logger
}

// Worker generates one cover per item. When the item has a target key the
// public URL is written to that topic or area; the URL is the payload.
type Worker struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Worker.
func New(cfg Config) *Worker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "covers"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Rotator == nil {
		cfg.Rotator = keypool.NewRotator(keypool.Config{Logger: cfg.Logger})
	}
	return &Worker{cfg: cfg, logger: cfg.Logger.With("worker", JobType)}
}

func (w *Worker) Type() string { return JobType }

// Process implements jobs.Worker. The object key is derived from the job
// and item ids, so a repeated item overwrites its own image.
func (w *Worker) Process(ctx context.Context, task jobs.Task) (string, error) {
	const op = "cover_image"

	prompt := strings.TrimSpace(task.Item.Prompt)
	if prompt == "" {
		return "", fault.New(fault.InvalidInput, op, "item %s has no prompt", task.Item.ID)
	}
	kind, id, err := ParseTarget(task.Item.TargetKey)
	if err != nil {
		return "", err
	}

	name := jobs.ContextString(task.Context, "provider")
	if name == "" {
		name = w.cfg.Provider
	}
	gen, pool, err := w.cfg.Providers.Image(name)
	if err != nil {
		return "", fault.Wrap(fault.InvalidInput, op, err)
	}

	img, err := keypool.Call(ctx, w.cfg.Rotator, pool, func(ctx context.Context, cred keypool.Credential) (*providers.Image, error) {
		return gen.GenerateImage(ctx, prompt, cred)
	})
	if err != nil {
		return "", err
	}

	key := path.Join(w.cfg.KeyPrefix, task.JobID, task.Item.ID+extension(img.ContentType))
	url, err := w.cfg.Storage.PutObject(ctx, key, bytes.NewReader(img.Data), img.ContentType)
	if err != nil {
		return "", fault.Wrap(fault.Persistence, op+".put", err)
	}

	switch kind {
	case TargetTopic:
		if err := w.cfg.Topics.SetTopicCover(ctx, id, url); err != nil {
			return "", targetErr(op, err)
		}
	case TargetArea:
		if err := w.cfg.Areas.UpdateArea(ctx, id, types.AreaUpdate{DefaultCoverRef: &url}); err != nil {
			return "", targetErr(op, err)
		}
	}

	w.logger.Debug("cover stored", "job_id", task.JobID, "item_id", task.Item.ID, "target", task.Item.TargetKey, "url", url)
	return url, nil
}

// ParseTarget splits "topic:<id>" or "area:<id>". An empty key has no target.
func ParseTarget(key string) (kind, id string, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", nil
	}
	kind, id, ok := strings.Cut(key, ":")
	if !ok || strings.TrimSpace(id) == "" || (kind != TargetTopic && kind != TargetArea) {
		return "", "", fault.New(fault.InvalidInput, "cover_image", "invalid target key %q (want topic:<id> or area:<id>)", key)
	}
	return kind, strings.TrimSpace(id), nil
}

// TopicItems builds one item per topic that has no cover yet. Item ids are
// the topic ids, so a repeated request for the same topics lines up.
func TopicItems(areaTitle string, topics []types.Topic) []types.BatchItem {
	var out []types.BatchItem
	for _, t := range topics {
		if t.CoverRef != "" {
			continue
		}
		out = append(out, types.BatchItem{
			ID:        t.ID,
			Prompt:    Prompt(areaTitle, t),
			TargetKey: TargetTopic + ":" + t.ID,
		})
	}
	return out
}

// Prompt describes the cover illustration for a topic.
func Prompt(areaTitle string, t types.Topic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ilustração de capa, estilo editorial e sem texto, para o tema de estudo jurídico %q", t.Title)
	if areaTitle != "" {
		fmt.Fprintf(&b, " da matéria %q", areaTitle)
	}
	b.WriteString(".")
	if len(t.Subtopics) > 0 {
		subs := t.Subtopics
		if len(subs) > 5 {
			subs = subs[:5]
		}
		fmt.Fprintf(&b, " Assuntos: %s.", strings.Join(subs, "; "))
	}
	return b.String()
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

func targetErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fault.Wrap(fault.NotFound, op, err)
	}
	return fault.Wrap(fault.Persistence, op, err)
}
