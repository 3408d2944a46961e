package main

import "github.com/jsphweid/midinotesduration/cmd"

func main() {
	cmd.Execute()
}
