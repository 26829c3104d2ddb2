package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

// Version information, set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCommand()
	if err := fang.Execute(ctx, root, fang.WithVersion(Version), fang.WithCommit(Commit)); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "router",
		Short: "Multi-agent AG-UI/A2A chat router",
		Long: `router forwards incoming AG-UI chat requests to one of several
configured backend agents (AG-UI or A2A), choosing the agent by
@mention override, sticky session, semantic match, or LLM fallback
classification, and streams the chosen agent's response back to the
client as AG-UI events over SSE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.AddCommand(newServeCommand())
	return root
}
