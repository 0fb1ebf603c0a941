package main

import "github.com/agentic-research/pvf/cmd"

func main() {
	cmd.Execute()
}
