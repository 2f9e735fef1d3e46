package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/licensetool"
)

func main() {
	if err := licensetool.NewRootCommand(time.Now).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
