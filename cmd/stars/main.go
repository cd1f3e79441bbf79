// Command stars runs the star catalogue HTTP service and its maintenance
// tasks.
//
//	stars serve
//	stars migrate up | down [N] | version | force V | drop
//	stars seed stars.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
