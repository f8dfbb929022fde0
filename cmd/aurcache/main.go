package main

import (
	"github.com/aurcache/aurcache/cmd/aurcache/cmd"
)

func main() {
	cmd.Execute()
}
