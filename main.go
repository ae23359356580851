// ABOUTME: Entry point for the conference client
// ABOUTME: Joins a bridge, streams a voice source and plays the mix
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linksphere/confbridge/internal/app"
	"github.com/linksphere/confbridge/internal/bridge"
	"github.com/linksphere/confbridge/internal/logger"
	"github.com/linksphere/confbridge/internal/version"
	"github.com/linksphere/confbridge/pkg/audio/output"
	"github.com/linksphere/confbridge/pkg/audio/source"
)

var (
	serverAddr  string
	id          string
	file        string
	loop        bool
	toneHz      float64
	muteOutput  bool
	useTLS      bool
	discoverFor time.Duration
	logFile     string
	debug       bool
)

var rootCmd = &cobra.Command{
	Use:          "confbridge",
	Short:        "Join a conference bridge",
	Version:      version.Version,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&serverAddr, "server", "s", "", "Bridge host:port (skip mDNS)")
	f.StringVar(&id, "id", "", "Party id (default: random)")
	f.StringVarP(&file, "file", "f", "", "MP3 or FLAC file to send instead of a tone")
	f.BoolVar(&loop, "loop", true, "Restart the file when it ends")
	f.Float64Var(&toneHz, "tone", 440, "Test tone frequency when no file is given")
	f.BoolVar(&muteOutput, "mute-output", false, "Do not play the received mix")
	f.BoolVar(&useTLS, "tls", false, "Connect with wss://")
	f.DurationVar(&discoverFor, "discovery-timeout", 10*time.Second, "How long to browse mDNS for a bridge")
	f.StringVar(&logFile, "log-file", "", "Log file path (default: console)")
	f.BoolVar(&debug, "debug", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level := "info"
	if debug {
		level = "debug"
	}
	if err := logger.Init(&logger.Config{Level: level, Filename: logFile, Console: true, MaxSize: 10}, "dev"); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if id == "" {
		id = uuid.NewString()
	}

	var src source.Source
	if file != "" {
		s, err := source.OpenFile(file, loop)
		if err != nil {
			return err
		}
		src = s
		logger.Info("voice source", zap.String("file", file),
			zap.Int("rate", s.SampleRate()), zap.Int("channels", s.Channels()))
	} else {
		src = source.NewTone(toneHz, bridge.SampleRate)
	}

	var out output.Output
	if !muteOutput {
		out = output.NewOto()
	}

	talker := app.New(app.Config{
		ServerAddr:       serverAddr,
		TLS:              useTLS,
		ID:               id,
		Source:           src,
		Output:           out,
		DiscoveryTimeout: discoverFor,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("joining conference", zap.String("id", id), zap.String("server", serverAddr))
	err := talker.Run(ctx)
	if errors.Is(err, app.ErrConnectionClosed) {
		logger.Info("bridge ended the session")
		return nil
	}
	return err
}
