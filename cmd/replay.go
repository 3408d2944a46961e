package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/jsphweid/midinotesduration/metrics"
	"github.com/jsphweid/midinotesduration/midi"
	"github.com/jsphweid/midinotesduration/note"
	"github.com/jsphweid/midinotesduration/recorder"
	"github.com/jsphweid/midinotesduration/session"
	"github.com/jsphweid/midinotesduration/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	replayRaw  bool
	replayJSON bool
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayRaw, "raw", false, "draw every retained duration, ignoring the outlier filter")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "print the final snapshot as JSON instead of a histogram")
}

var replayCmd = &cobra.Command{
	Use:   "replay <path> [maxNum]",
	Short: "Feeds note events from .mid files through the recorder",
	Long: `Reads a .mid file, or every .mid file under a directory, and records the
hold duration of every note in it. maxNum limits how many files are read.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxNum := 0
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("maxNum must be a positive integer, got %q", args[1])
			}
			maxNum = n
		}

		paths, err := util.GatherAllMidiPaths(args[0], maxNum)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no midi files found in %s", args[0])
		}

		sess := session.New(recorder.New(cfg.RecorderOptions()...), metrics.New(), session.WithDebounce(0))
		Replay(sess, paths, cfg.MidiChannel())

		snap := sess.Snapshot()
		if replayJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		samples := snap.Filtered
		if replayRaw {
			samples = snap.Raw
		}
		printSnapshot(snap, cfg.HistogramBins, samples)
		return nil
	},
}

// Replay ingests every note event of the files at paths into sess. Each
// file's notes are paired only with each other, so a note left hanging at
// the end of one file never closes in the next. It returns how many files
// were read.
func Replay(sess *session.Session, paths []string, ch note.Channel) int {
	read := 0
	for i, path := range paths {
		s, err := midi.ReadMidiFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping file")
			continue
		}
		read++

		recorded := 0
		for _, ev := range midi.FileEvents(s, ch) {
			ev.Note = fileScoped(i, ev.Note)
			if sess.Ingest(ev) {
				recorded++
			}
		}
		log.Debug().Str("path", path).Int("recorded", recorded).Msg("replayed")
	}
	log.Info().Int("files", read).Int("samples", sess.Recorder().Len()).Msg("replay done")
	return read
}

func fileScoped(file int, id string) string {
	return strconv.Itoa(file) + ":" + id
}
