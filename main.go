// Command tfs is a transactional filesystem operation engine: it executes
// a batch of moves, copies, renames, directory creations, and quarantines
// declared in a manifest as a single all-or-nothing unit, and can undo the
// result later from the journal alone.
package main

import (
	"os"

	"github.com/jopamo/tfs/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
