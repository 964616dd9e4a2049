package main

import (
	"github.com/vst-controls/green-machine/cmd/gm-controller/cmd"
)

func main() {
	cmd.Execute()
}
