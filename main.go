// Package main provides the entry point for the speakstream CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/speakstream/internal/config"
	"github.com/dgnsrekt/speakstream/internal/logging"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	cfg        config.Config
	logCloser  io.Closer

	rootCmd = &cobra.Command{
		Use:   "speakstream",
		Short: "Speak text with a local neural voice",
		Long: paragraph(
			fmt.Sprintf("\nConvert text to speech with a local Kokoro model, %s.", keyword("streaming as it goes")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logCloser != nil {
				_ = logCloser.Close()
			}
		},
	}
)

// loadConfig reads the config file named by --config, when given, then
// resolves defaults, file, environment and flags into cfg.
func loadConfig(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = loaded
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.Cache.Enabled = false
	}

	closer, err := logging.Setup(cfg.ToLogConfig())
	if err != nil {
		return err
	}
	logCloser = closer
	cfg.LogSummary()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.String("model", "", "path to the ONNX model")
	flags.String("voices-dir", "", "directory holding voice style tables")
	flags.String("dictionary", "", "pronunciation dictionary (default bundled)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-file", "", "write logs to this file")
	flags.Bool("no-cache", false, "disable the clip cache")

	// Config bindings
	_ = viper.BindPFlag("model.path", flags.Lookup("model"))
	_ = viper.BindPFlag("voices.dir", flags.Lookup("voices-dir"))
	_ = viper.BindPFlag("dictionary.path", flags.Lookup("dictionary"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.file", flags.Lookup("log-file"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, speakCmd, phonemizeCmd, tokenizeCmd, voicesCmd, cacheCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := config.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		configFile = used
		return
	}
	configFile = filepath.Join(dirs[0], config.AppName+".yml")
}
