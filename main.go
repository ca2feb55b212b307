package main

import "github.com/chorequest/chorequest/internal/cli"

func main() {
	cli.Execute()
}
