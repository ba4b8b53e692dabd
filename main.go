// The main package for the mediavid executable.
package main

import (
	"github.com/JakeFAU/mediavid-client/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
