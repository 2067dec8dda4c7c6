package main

import "github.com/agentic-research/tarim/cmd"

func main() {
	cmd.Execute()
}
