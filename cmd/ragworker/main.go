// Command ragworker operates a ragonometrics deployment: it migrates the
// store schema, enqueues and inspects pipeline runs, drives the worker
// pool, and manages the dead letter queue.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ragworker:", err)
		os.Exit(1)
	}
}
