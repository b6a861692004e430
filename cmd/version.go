package cmd

import (
	"fmt"
	"io"
	"os"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// runVersion displays version information.
func runVersion() {
	printVersion(os.Stdout)
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "docent %s\n", AppVersion)
	fmt.Fprintf(w, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", GitCommit)
}
