package main

import (
	"fmt"
	"os"

	"github.com/Anmol-Dhiman/stellar-fusionX/fusiond"
)

func main() {
	if err := fusiond.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
