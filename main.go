package main

import (
	"github.com/Evan-Kim2028/sui-sandbox-sub009/command/root"
)

func main() {
	root.NewRootCommand().Execute()
}
