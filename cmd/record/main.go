package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/obiente/warmup/voicecapture/internal/audio"
	"github.com/obiente/warmup/voicecapture/internal/config"
	"github.com/obiente/warmup/voicecapture/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one spoken answer and print its transcript",
	Long: `Listens on the default microphone (or replays a WAV file) until the
stop phrase is spoken, then prints the transcript without the phrase.`,
	SilenceUsage: true,
	RunE:         runRecord,
}

func init() {
	rootCmd.Flags().StringP("config", "c", os.Getenv("VOICE_CONFIG"), "Path to the YAML config file")
	rootCmd.Flags().StringP("input", "i", "", "Replay a WAV file instead of the microphone")
	rootCmd.Flags().String("log-level", "", "Override the configured log level")
}

func runRecord(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	input, _ := cmd.Flags().GetString("input")
	level, _ := cmd.Flags().GetString("log-level")

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if level == "" {
		level = cfg.LogLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)

	var src audio.Source = audio.Device{}
	if input != "" {
		src = audio.WAVFile{Path: input}
	}

	eng, err := engine.New(cfg.Voice, src, nil)
	if err != nil {
		return fmt.Errorf("initialize recognizer: %w", err)
	}
	defer eng.Close()

	log.Info().Msgf("Listening... Say '%s' to stop.", cfg.Voice.StopPhrase)
	text, err := eng.TranscribeAudio()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
