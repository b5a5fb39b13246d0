package clipload

import (
	"context"
	"runtime"
	"time"

	"github.com/normanking/cortexanim/internal/animation"
	"github.com/normanking/cortexanim/internal/catalog"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// LoadFunc loads one clip file.
type LoadFunc func(path, name string) (*animation.ClipEntry, error)

// Loader loads catalog entries concurrently.
type Loader struct {
	Concurrency int
	Load        LoadFunc
	Log         zerolog.Logger
}

// NewLoader returns a glTF loader. concurrency <= 0 uses GOMAXPROCS.
func NewLoader(concurrency int, log zerolog.Logger) *Loader {
	return &Loader{
		Concurrency: concurrency,
		Load:        loadEntry,
		Log:         log.With().Str("component", "clipload").Logger(),
	}
}

func loadEntry(path, name string) (*animation.ClipEntry, error) {
	clip, err := LoadClip(path, name)
	if err != nil {
		return nil, err
	}
	return &animation.ClipEntry{
		Name:     name,
		Clip:     clip,
		Duration: clip.Duration,
		Path:     path,
	}, nil
}

// LoadAll loads every entry. Files that fail are logged and skipped; the
// result keeps manifest order. Only context cancellation is an error.
func (l *Loader) LoadAll(ctx context.Context, entries []catalog.Entry) ([]animation.ClipEntry, error) {
	limit := l.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	results := make([]*animation.ClipEntry, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ce, err := l.Load(e.Path, e.Name)
			if err != nil {
				l.Log.Warn().Err(err).Str("path", e.Path).Msg("Failed to load clip, skipping")
				return nil
			}
			results[i] = ce
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]animation.ClipEntry, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	l.Log.Info().
		Int("loaded", len(out)).
		Int("failed", len(entries)-len(out)).
		Dur("elapsed", time.Since(start)).
		Msg("Clips loaded")
	return out, nil
}

// LoadAll is a convenience wrapper around a glTF Loader.
func LoadAll(ctx context.Context, entries []catalog.Entry, concurrency int, log zerolog.Logger) ([]animation.ClipEntry, error) {
	return NewLoader(concurrency, log).LoadAll(ctx, entries)
}
