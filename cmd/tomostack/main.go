// tomostack is the command line front end for the tomography data
// model: inspect TIFF stacks, convert them into volumes with state
// documents, and examine saved state.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
