package main

import "github.com/theirongolddev/flamekit/cmd"

func main() {
	cmd.Execute()
}
