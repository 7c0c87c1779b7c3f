// ch is the cloud-harness CLI for supervising coding agents in git worktrees.
package main

import (
	"os"

	"github.com/zyahav/cloud-harness/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
