// Command swrwatch keeps a set of JSON endpoints fresh with swrcache and
// prints every state transition.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	os.Exit(realMain())
}

func realMain() int {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "swrwatch:", err)
		return 1
	}
	return 0
}
