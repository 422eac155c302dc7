// Command objfs runs filesystem operations against an object storage bucket.
package main

import (
	"fmt"
	"os"

	"github.com/koustreak/objectfs/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "objfs:", err)
		os.Exit(1)
	}
}
