package main

import "github.com/spec-kit/ticket-tracker/internal/cli"

func main() {
	cli.Execute()
}
