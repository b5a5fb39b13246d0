// cortexanim drives the body animation of an AI companion avatar: it loads a
// character's clips, keeps it idling, and plays what the dialogue service asks for.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/normanking/cortexanim/internal/catalog"
	"github.com/normanking/cortexanim/internal/clipload"
	"github.com/normanking/cortexanim/internal/config"
	"github.com/normanking/cortexanim/internal/dispatch"
	"github.com/normanking/cortexanim/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version information (set at build time)
var version = "dev"

func main() {
	var (
		configFile string
		manifest   string
		logLevel   string
	)

	loadConfig := func(cmd *cobra.Command) (*config.Config, error) {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		if cmd.Flags().Changed("manifest") {
			cfg.Assets.Manifest = manifest
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		return cfg, nil
	}

	rootCmd := &cobra.Command{
		Use:           "cortexanim",
		Short:         "Animation playback and blending for an AI companion avatar",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ~/.cortexanim/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&manifest, "manifest", "m", "", "animation manifest")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Load the character and run the frame loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("ingress") {
				cfg.Ingress.URL, _ = cmd.Flags().GetString("ingress")
				cfg.Ingress.Enabled = true
			}
			if watch, _ := cmd.Flags().GetBool("watch"); watch {
				cfg.Assets.Watch = true
			}

			logger, err := logging.New(&logging.Config{
				Dir:        cfg.Log.Dir,
				Level:      cfg.Log.Level,
				MaxHistory: cfg.Log.MaxHistory,
				Console:    cfg.Log.Console,
			})
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := NewApp(cfg, logger)
			defer app.Shutdown()
			if err := app.Start(ctx); err != nil {
				return err
			}

			log := logger.Component("app")
			log.Info().
				Str("version", version).
				Int("fps", cfg.Loop.FPS).
				Bool("ingress", cfg.Ingress.Enabled).
				Msg("Running")
			app.Run(ctx)
			return nil
		},
	}
	runCmd.Flags().String("ingress", "", "dialogue service WebSocket URL (enables ingress)")
	runCmd.Flags().Bool("watch", false, "reload the character when the manifest changes")

	clipsCmd := &cobra.Command{
		Use:   "clips",
		Short: "List the clips of the manifest by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			m, err := catalog.LoadManifest(cfg.Assets.Manifest)
			if err != nil {
				return err
			}
			entries := catalog.Dedupe(m.Entries(), zerolog.Nop())

			durations := map[string]float64{}
			if load, _ := cmd.Flags().GetBool("load"); load {
				clips, err := clipload.LoadAll(cmd.Context(), entries, cfg.Assets.Concurrency, zerolog.Nop())
				if err != nil {
					return err
				}
				for _, c := range clips {
					durations[c.Name] = c.Duration
				}
			}

			out := cmd.OutOrStdout()
			groups := catalog.ByCategory(entries)
			for _, cat := range catalog.Categories {
				if len(groups[cat]) == 0 {
					continue
				}
				fmt.Fprintf(out, "%s (%d)\n", cat, len(groups[cat]))
				for _, e := range groups[cat] {
					if d, ok := durations[e.Name]; ok {
						fmt.Fprintf(out, "  %-50s %6.2fs\n", e.Name, d)
					} else {
						fmt.Fprintf(out, "  %s\n", e.Name)
					}
				}
			}
			return nil
		},
	}
	clipsCmd.Flags().Bool("load", false, "load each clip and show its duration")

	resolveCmd := &cobra.Command{
		Use:   "resolve <description>",
		Short: "Show which clip a description resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			m, err := catalog.LoadManifest(cfg.Assets.Manifest)
			if err != nil {
				return err
			}
			names := catalog.Names(catalog.Dedupe(m.Entries(), zerolog.Nop()))
			name, err := dispatch.NewResolver(names).Resolve(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, clipsCmd, resolveCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
