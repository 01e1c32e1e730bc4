package main

import "github.com/agentic-research/rota/cmd"

func main() {
	cmd.Execute()
}
