package main

import (
	"context"

	"github.com/aropan/raic-cli/cmd/raic/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
