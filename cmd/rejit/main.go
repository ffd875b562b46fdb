// Command rejit matches, dumps and rewrites patterns with the rejit engine.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
