package main

import (
	"context"
	"fmt"
	"time"

	"github.com/normanking/cortexanim/internal/animation"
	"github.com/normanking/cortexanim/internal/bus"
	"github.com/normanking/cortexanim/internal/catalog"
	"github.com/normanking/cortexanim/internal/clipload"
	"github.com/normanking/cortexanim/internal/config"
	"github.com/normanking/cortexanim/internal/ingress"
	"github.com/normanking/cortexanim/internal/logging"
	"github.com/normanking/cortexanim/internal/mixer"
	"github.com/normanking/cortexanim/internal/stage"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// App wires the stage to its asset, request and event sources.
type App struct {
	cfg    *config.Config
	logger *logging.Logger
	log    zerolog.Logger

	events  *bus.EventBus
	stage   *stage.Stage
	ingress *ingress.Client
	watcher *catalog.Watcher
}

func NewApp(cfg *config.Config, logger *logging.Logger) *App {
	events := bus.NewEventBus()
	return &App{
		cfg:    cfg,
		logger: logger,
		log:    logger.Component("app"),
		events: events,
		stage:  stage.New(stageOptions(cfg, logger), events, logger.Component("stage")),
	}
}

func stageOptions(cfg *config.Config, logger *logging.Logger) stage.Options {
	opts := stage.DefaultOptions()
	opts.Animation.CrossFade = cfg.Animation.CrossFade
	opts.Animation.ClampOnFinish = cfg.Animation.ClampOnFinish
	animLog := logger.Component("animation")
	opts.Animation.Logger = &animLog
	opts.Idle.Interval = cfg.Idle.Interval
	opts.Idle.Jitter = cfg.Idle.Jitter
	opts.Idle.Cooldown = cfg.Idle.Cooldown
	opts.DefaultHold = cfg.Animation.ReturnHold
	if cfg.Idle.Seed != 0 {
		opts.Seed = cfg.Idle.Seed
	}
	return opts
}

// loadCharacter reads the manifest and loads its clips and skeleton.
func loadCharacter(ctx context.Context, cfg *config.Config, log zerolog.Logger) (stage.Character, error) {
	manifest, err := catalog.LoadManifest(cfg.Assets.Manifest)
	if err != nil {
		return stage.Character{}, err
	}
	entries := catalog.Dedupe(manifest.Entries(), log)

	clips, err := clipload.LoadAll(ctx, entries, cfg.Assets.Concurrency, log)
	if err != nil {
		return stage.Character{}, err
	}
	if len(clips) == 0 {
		return stage.Character{}, fmt.Errorf("no clip in %s could be loaded", cfg.Assets.Manifest)
	}

	skeleton, err := loadSkeleton(cfg, manifest, clips, log)
	if err != nil {
		return stage.Character{}, err
	}

	return stage.Character{
		Skeleton:  skeleton,
		Clips:     clips,
		IdleNames: idleNamesFor(entries, clips, cfg.Idle.Variant),
	}, nil
}

func loadSkeleton(cfg *config.Config, manifest *catalog.Manifest, clips []animation.ClipEntry, log zerolog.Logger) (*mixer.Skeleton, error) {
	path := cfg.Assets.Character
	if path == "" {
		path = manifest.CharacterPath()
	}
	if path == "" {
		log.Info().Msg("No character model configured, deriving skeleton from clips")
		return clipload.SkeletonFromClips(lo.Map(clips, func(c animation.ClipEntry, _ int) *mixer.Clip { return c.Clip })), nil
	}
	sk, err := clipload.LoadSkeleton(path)
	if err != nil {
		return nil, fmt.Errorf("load character %s: %w", path, err)
	}
	return sk, nil
}

// idleNamesFor returns the loaded idle clips of the variant, or every loaded
// idle clip when the variant has none.
func idleNamesFor(entries []catalog.Entry, clips []animation.ClipEntry, variant string) []string {
	loaded := lo.SliceToMap(clips, func(c animation.ClipEntry) (string, struct{}) { return c.Name, struct{}{} })
	isLoaded := func(name string, _ int) bool {
		_, ok := loaded[name]
		return ok
	}
	names := lo.Filter(catalog.IdleNames(entries, variant), isLoaded)
	if len(names) == 0 && variant != "" {
		names = lo.Filter(catalog.IdleNames(entries, ""), isLoaded)
	}
	return names
}

// Start loads the character and brings up ingress and manifest watching.
func (a *App) Start(ctx context.Context) error {
	a.events.SubscribeAll(func(e bus.Event) {
		a.log.Debug().Str("event", string(e.Type)).Interface("data", e.Data).Msg("Event")
	})

	if err := a.reload(ctx); err != nil {
		return err
	}

	if a.cfg.Assets.Watch {
		w, err := catalog.NewWatcher(a.cfg.Assets.Manifest, catalog.DefaultDebounce, func(string) {
			if err := a.reload(ctx); err != nil {
				a.log.Error().Err(err).Msg("Manifest reload failed")
			}
		}, a.logger.Component("catalog"))
		if err != nil {
			return fmt.Errorf("watch manifest: %w", err)
		}
		a.watcher = w
	}

	if a.cfg.Ingress.Enabled {
		c := ingress.NewClient(a.cfg.Ingress.URL, a.stage, a.logger.Component("ingress"))
		c.SetStateCallback(func(connected bool) {
			t := bus.EventIngressDisconnected
			if connected {
				t = bus.EventIngressConnected
			}
			a.events.Publish(bus.Event{Type: t})
		})
		if err := c.Connect(ctx); err != nil {
			return fmt.Errorf("ingress: %w", err)
		}
		a.ingress = c
	}
	return nil
}

func (a *App) reload(ctx context.Context) error {
	start := time.Now()
	ch, err := loadCharacter(ctx, a.cfg, a.logger.Component("assets"))
	if err != nil {
		return err
	}
	if err := a.stage.Load(ch); err != nil {
		return err
	}
	a.log.Info().Dur("elapsed", time.Since(start)).Msg("Character ready")
	return nil
}

// Run drives the frame loop until ctx is done.
func (a *App) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.FrameInterval())
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.stage.Tick(now.Sub(last).Seconds())
			last = now
		}
	}
}

// Shutdown stops every source and disposes the character.
func (a *App) Shutdown() {
	if a.ingress != nil {
		a.ingress.Disconnect()
	}
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close manifest watcher")
		}
	}
	if err := a.stage.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close stage")
	}
}
