package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/voluzi/memwatch/cmd/memwatch/cmd"
)

func main() {
	cmd.Execute()
}
