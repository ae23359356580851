// ABOUTME: Entry point for the conference bridge server
// ABOUTME: Loads configuration, applies flags and runs until interrupted
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linksphere/confbridge/internal/config"
	"github.com/linksphere/confbridge/internal/logger"
	"github.com/linksphere/confbridge/internal/server"
	"github.com/linksphere/confbridge/internal/version"
)

const defaultTUILogFile = "confbridge-server.log"

var (
	configFile  string
	envFile     string
	addr        string
	name        string
	masterHosts []string
	autoAdmit   bool
	noMDNS      bool
	useTUI      bool
	debug       bool
	logFile     string
)

var rootCmd = &cobra.Command{
	Use:          "confbridge-server",
	Short:        "Many-to-many audio conference bridge",
	Version:      version.Version,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	f.StringVar(&envFile, "env-file", "", "Environment file (default .env when present)")
	f.StringVar(&addr, "addr", "", "Listen address, e.g. :3000")
	f.StringVar(&name, "name", "", "Bridge name advertised over mDNS")
	f.StringSliceVar(&masterHosts, "master-hosts", nil, "Remote hosts allowed to connect as master")
	f.BoolVar(&autoAdmit, "auto-admit", false, "Admit every client to the mix on connect")
	f.BoolVar(&noMDNS, "no-mdns", false, "Disable mDNS advertisement")
	f.BoolVar(&useTUI, "tui", false, "Show the status dashboard; logs go to file only")
	f.BoolVar(&debug, "debug", false, "Enable debug logging")
	f.StringVar(&logFile, "log-file", "", "Log file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.Options{ConfigFile: configFile, EnvFile: envFile})
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting bridge",
		zap.String("product", version.Product),
		zap.String("version", version.Version),
		zap.String("name", cfg.Name),
		zap.String("addr", cfg.Addr))

	srv, err := server.New(server.Config{
		Addr:        cfg.Addr,
		Name:        cfg.Name,
		Engine:      cfg.Bridge(),
		MasterHosts: cfg.MasterHosts,
		AutoAdmit:   cfg.AutoAdmit,
		EnableMDNS:  cfg.EnableMDNS,
		UseTUI:      useTUI,
		TLSCertFile: cfg.TLSCertFile,
		TLSKeyFile:  cfg.TLSKeyFile,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// applyFlags overrides loaded settings with flags given on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = addr
	}
	if flags.Changed("name") {
		cfg.Name = name
	}
	if flags.Changed("master-hosts") {
		cfg.MasterHosts = masterHosts
	}
	if flags.Changed("auto-admit") {
		cfg.AutoAdmit = autoAdmit
	}
	if noMDNS {
		cfg.EnableMDNS = false
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if flags.Changed("log-file") {
		cfg.Log.Filename = logFile
	}
	if useTUI {
		// The dashboard owns the terminal.
		if cfg.Log.Filename == "" {
			cfg.Log.Filename = defaultTUILogFile
		}
		cfg.Log.Console = false
	}
}
