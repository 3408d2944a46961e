package cmd

import (
	"os"
	"time"

	"github.com/jsphweid/midinotesduration/config"
	"github.com/jsphweid/midinotesduration/constants"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	window     int
	outlier    string
	channel    string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:   "notedur",
	Short: "Measures how long MIDI notes are held",
	Long: `notedur listens to a MIDI input, pairs note on/off events into hold
durations and shows their distribution, with optional outlier filtering.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd, &loaded); err != nil {
			return err
		}
		cfg = loaded
		return setupLogging(cfg.LogLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", constants.GetConfigPath(), "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", constants.GetLogLevel(), "trace, debug, info, warn or error")
	rootCmd.PersistentFlags().IntVar(&window, "window", constants.DefaultWindowSize, "number of most recent durations kept")
	rootCmd.PersistentFlags().StringVar(&outlier, "outlier", "6", `hide durations more than this many standard deviations above the mean ("off" to show all)`)
	rootCmd.PersistentFlags().StringVar(&channel, "channel", "all", `MIDI channel 1-16 or "all"`)
}

// applyFlags lets explicitly set flags win over file and environment.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("window") {
		c.WindowSize = window
	}
	if flags.Changed("outlier") {
		k, err := config.ParseOutlierThreshold(outlier)
		if err != nil {
			return err
		}
		c.OutlierThreshold = k
	}
	if flags.Changed("channel") {
		c.Channel = channel
	}
	return c.Validate()
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	return nil
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
