// Command coderclaw is the command-line front end for project-context
// management.
//
// Usage:
//
//	coderclaw init [path]    create the project-context directory tree
//	coderclaw status [path]  report whether the directory exists
//
// Exit code 0 on success; non-zero with a machine-readable error on stderr
// otherwise.
package main

import (
	"fmt"
	"os"

	"github.com/coderclaw/coderclaw/internal/projectctx"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "error: missing command (expected 'init' or 'status')")
		return 2
	}

	path := "."
	if len(args) > 1 {
		path = args[1]
	}

	switch args[0] {
	case "init":
		if err := projectctx.Init(path); err != nil {
			fmt.Fprintf(os.Stderr, "error: init failed: %v\n", err)
			return 1
		}
		fmt.Printf("initialized project context at %s\n", projectctx.Dir(path))
		return 0

	case "status":
		if !projectctx.Exists(path) {
			fmt.Fprintf(os.Stderr, "error: no project context at %s\n", projectctx.Dir(path))
			return 1
		}
		fmt.Printf("project context present at %s\n", projectctx.Dir(path))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command '%s'\n", args[0])
		return 2
	}
}
