package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var result *resultError
		if !errors.As(err, &result) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
