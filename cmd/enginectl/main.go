// Command enginectl is a thin convenience wrapper around the engine
// module: it loads an AppConfig and the orchestration graph store, runs one
// orchestration graph to completion, and
// renders the event stream. It is not part of the module's public API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/kataras/golog"

	"github.com/dagforge/engine/config"
	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/event"
	"github.com/dagforge/engine/log"
	"github.com/dagforge/engine/orchestration"
)

// Exit codes per the CLI's documented contract.
const (
	exitSuccess           = 0
	exitGenericFailure    = 1
	exitConfigurationErr  = 2
	exitRecoveryExhausted = 3
)

var (
	statusOK   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	statusFail = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	statusNode = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("enginectl", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to an AppConfig JSON file")
	graphDir := fs.String("graphs", "", "directory of orchestration graph JSON files")
	graphID := fs.String("graph", "", "id of the orchestration graph to run")
	if err := fs.Parse(args); err != nil {
		return exitConfigurationErr
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, statusFail.Render("config: "+err.Error()))
		return exitConfigurationErr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, statusFail.Render("config: "+err.Error()))
		return exitConfigurationErr
	}
	if *graphDir == "" || *graphID == "" {
		fmt.Fprintln(os.Stderr, statusFail.Render("enginectl: -graphs and -graph are required"))
		return exitConfigurationErr
	}

	logger := log.NewGologLogger(golog.Default)
	sink := event.NewInMemorySink()

	store := orchestration.NewStore(*graphDir, logger)
	if err := store.Load(); err != nil {
		fmt.Fprintln(os.Stderr, statusFail.Render("enginectl: loading graphs: "+err.Error()))
		return exitGenericFailure
	}
	g, ok := store.Get(*graphID)
	if !ok {
		fmt.Fprintln(os.Stderr, statusFail.Render(fmt.Sprintf("enginectl: unknown graph %q", *graphID)))
		return exitGenericFailure
	}

	executor := orchestration.New(orchestration.Config{
		Store:  store,
		Sink:   sink,
		Logger: logger,
	})

	ctx := context.Background()
	_, err = executor.Run(ctx, g, *graphID)
	renderEvents(sink.Events())
	if err != nil {
		fmt.Fprintln(os.Stderr, statusFail.Render("enginectl: "+err.Error()))
		if kind, ok := engineerr.KindOf(err); ok && kind == engineerr.ExhaustedAttempts {
			return exitRecoveryExhausted
		}
		return exitGenericFailure
	}

	fmt.Println(statusOK.Render("run completed"))
	return exitSuccess
}

func renderEvents(events []event.Event) {
	for _, e := range events {
		line := fmt.Sprintf("%-28s %s", e.Kind, statusNode.Render(e.NodeID))
		if e.Err != nil {
			line += "  " + statusFail.Render(e.Err.Error())
		}
		fmt.Println(line)
	}
}
