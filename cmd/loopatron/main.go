package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/satindergrewal/loopatron/internal/api"
	"github.com/satindergrewal/loopatron/internal/audio"
	"github.com/satindergrewal/loopatron/internal/audio/speaker"
	"github.com/satindergrewal/loopatron/internal/config"
	"github.com/satindergrewal/loopatron/internal/controller"
	"github.com/satindergrewal/loopatron/internal/export"
	"github.com/satindergrewal/loopatron/internal/input"
	"github.com/satindergrewal/loopatron/internal/picker"
	"github.com/satindergrewal/loopatron/internal/remix"
	"github.com/satindergrewal/loopatron/internal/shell"
	"github.com/satindergrewal/loopatron/internal/store"
	"github.com/satindergrewal/loopatron/internal/stream"
)

var flags struct {
	clusters    int
	maxClusters int
	useV1       bool
	verbose     bool
	port        int
	outputDir   string
	db          string
	logLevel    string
	noSpeaker   bool
	noShell     bool
}

var rootCmd = &cobra.Command{
	Use:   "loopatron [file]",
	Short: "Beat-level remix player that exports seamless loop points",
	Long: `loopatron analyzes a track into beats, plays it back and lets you jump
between beats that sound alike. Mark a loop and export it to loop.txt for the
looping audio converter.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.IntVarP(&flags.clusters, "clusters", "c", 0, "fixed number of beat clusters (0 picks automatically)")
	f.IntVar(&flags.maxClusters, "max-clusters", 24, "upper bound for automatic cluster selection")
	f.BoolVar(&flags.useV1, "use-v1", false, "use the v1 cluster count heuristic")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "print full track info after loading")
	f.IntVarP(&flags.port, "port", "p", 8080, "HTTP port for the API and streams (0 disables)")
	f.StringVarP(&flags.outputDir, "output-dir", "o", ".", "directory loop.txt is written to")
	f.StringVar(&flags.db, "db", store.DefaultDBFile, "analysis cache and export history database")
	f.StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.BoolVar(&flags.noSpeaker, "no-speaker", false, "do not play on the local sound card")
	f.BoolVar(&flags.noShell, "no-shell", false, "run without the interactive prompt")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("clusters") {
		cfg.Clusters = flags.clusters
	}
	if f.Changed("max-clusters") {
		cfg.MaxClusters = flags.maxClusters
	}
	if f.Changed("use-v1") {
		cfg.UseV1 = flags.useV1
	}
	if f.Changed("verbose") {
		cfg.Verbose = flags.verbose
	}
	if f.Changed("port") {
		cfg.Port = flags.port
	}
	if f.Changed("output-dir") {
		cfg.OutputDir = flags.outputDir
	}
	if f.Changed("db") {
		cfg.DBPath = flags.db
	}
	if f.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if flags.noSpeaker {
		cfg.LocalOutput = false
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("loopatron starting up...")

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	// Output: the channel renders frames, the broadcaster fans them out.
	channel := audio.NewChannel()
	go channel.Run(ctx)

	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, channel.Frames())

	if cfg.LocalOutput {
		spk, err := speaker.New(audio.SampleRate, broadcaster.Subscribe(stream.KindSpeaker).C)
		if err != nil {
			log.Warnf("Local playback disabled: %v", err)
		} else {
			defer spk.Close()
		}
	}

	engine := remix.New(remix.WithCache(db), remix.WithSampleRate(audio.SampleRate))
	exporter := export.New(cfg.OutputDir, export.WithPreview(cfg.ExportPreview), export.WithHistory(db))

	dialogs := picker.New()
	opts := controller.OptionsFromConfig(cfg)
	opts.Picker = dialogs
	opts.Notifier = dialogs
	ctrl := controller.New(engine, channel, exporter, opts)
	go ctrl.Run(ctx)

	var rtc *stream.WebRTCHandler
	if cfg.WebRTC && cfg.Port > 0 {
		if rtc, err = stream.NewWebRTCHandler(broadcaster, audio.SampleRate); err != nil {
			log.Warnf("WebRTC disabled: %v", err)
			rtc = nil
		} else {
			defer rtc.Close()
		}
	}

	var server *http.Server
	if cfg.Port > 0 {
		server = newServer(cfg, ctrl, db, broadcaster, rtc)
		go func() {
			log.Printf("loopatron API on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("HTTP server error: %v", err)
				cancel()
			}
		}()
	}

	if len(args) == 1 {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if _, err := ctrl.Do(ctx, input.Command{Kind: input.Open, Path: path}); err != nil {
			return err
		}
	}

	if !flags.noShell {
		go func() {
			if err := shell.New(ctrl).Run(ctx); err != nil {
				log.Errorf("Shell: %v", err)
			}
			cancel()
		}()
	}

	<-ctx.Done()
	log.Println("Shutting down...")
	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
	}
	return nil
}

func newServer(cfg config.Config, ctrl *controller.Controller, db *store.Store, b *stream.Broadcaster, rtc *stream.WebRTCHandler) *http.Server {

	srv := api.New(ctrl,
		api.WithHistory(db),
		api.WithListeners(func() map[string]int {
			out := make(map[string]int)
			for kind, n := range b.Counts() {
				out[string(kind)] = n
			}
			return out
		}),
	)
	srv.Handle("/stream", stream.NewHTTPHandler(b, audio.SampleRate))
	if rtc != nil {
		srv.Handle("/offer", rtc)
	}

	return &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: srv}
}
