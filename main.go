package main

import "os"

func main() {
	err := newRootCmd().Execute()
	reportError(os.Stderr, err)
	os.Exit(exitCode(err))
}
