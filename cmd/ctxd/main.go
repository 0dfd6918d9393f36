package main

import "github.com/pattern-foundry/ctxd/internal/cli"

func main() {
	cli.Execute()
}
