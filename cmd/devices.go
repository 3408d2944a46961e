package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jsphweid/midinotesduration/midi"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(devicesCmd)
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Lists MIDI inputs and which one serve would connect to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		watcher, err := midi.NewWatcher(midi.WatcherOptions{})
		if err != nil {
			return err
		}
		defer watcher.Close()

		inputs, err := watcher.Inputs()
		if err != nil {
			return fmt.Errorf("listing midi inputs: %w", err)
		}
		if len(inputs) == 0 {
			fmt.Println("no midi inputs found")
			return nil
		}

		var candidates []string
		for _, in := range inputs {
			if !midi.Excluded(in.Name) {
				candidates = append(candidates, in.Name)
			}
		}
		pick, _ := midi.PickInput(candidates, cfg.Device, cfg.PreferredDevices)

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSTATUS")
		for _, in := range inputs {
			status := ""
			switch {
			case midi.Excluded(in.Name):
				status = "excluded"
			case in.Name == pick:
				status = "selected"
			}
			fmt.Fprintf(tw, "%s\t%s\n", in.Name, status)
		}
		return tw.Flush()
	},
}
