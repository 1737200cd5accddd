package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bosley/signspeak/audio"
	"github.com/bosley/signspeak/config"
	"github.com/bosley/signspeak/settings"
	"github.com/bosley/signspeak/speech"
)

const (
	Version = "0.3.0"
	appName = "signspeak"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	loadConfig := func() (config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		level, err := config.ParseLevel(cfg.LogLevel)
		if err != nil {
			return cfg, err
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return cfg, nil
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture and feedback service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(signalContext(), cfg)
		},
	}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Sign language to voice translator",
		Long: `signspeak captures still frames from a camera, recognizes the sign
being shown and speaks it aloud. Results are kept in a short local history
and persisted per user.`,
		SilenceUsage: true,
		RunE:         serveCmd.RunE,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "List audio output devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audio.ListOutputDevices()
			if err != nil {
				return fmt.Errorf("list audio devices: %w", err)
			}

			fmt.Println("Available audio output devices:")
			for _, device := range devices {
				fmt.Printf("[%d] %s\n", device.Index, device.Name)
				fmt.Printf("    Max Output Channels: %d\n", device.MaxOutputChannels)
				fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
				fmt.Println()
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "say [text]",
		Short: "Speak a phrase with the stored voice settings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			voice, err := speech.NewVoice(cfg.Voice.Engine, cfg.Voice.EspeakPath, audio.NewPlayer(cfg.Voice.Device))
			if err != nil {
				return err
			}
			prefs := settings.NewManager(settings.NewFileStore(cfg.SettingsPath))
			return voice.Say(signalContext(), strings.Join(args, " "), prefs.Profile())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()
	return ctx
}
