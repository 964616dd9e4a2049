package main

import (
	"github.com/vst-controls/green-machine/cmd/gm-ctl/cmd"
)

func main() {
	cmd.Execute()
}
