// Package main provides the panelctl admin CLI entrypoint: read-only
// inspection of a running panelrund instance over its HTTP boundary.
//
// Usage:
//
//	panelctl inspect panel <panel-id> [--addr http://localhost:8080] [--tui]
//	panelctl stats [--addr http://localhost:8080] [--tui]
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/panelkit/runtime/cli/client"
	"github.com/panelkit/runtime/cli/render"
	"github.com/panelkit/runtime/cli/tui"
	"github.com/panelkit/runtime/types"
)

// Shared flags for read-only commands.
var (
	addrFlag = &cli.StringFlag{
		Name:    "addr",
		Aliases: []string{"a"},
		Usage:   "panelrund base address",
		Value:   "http://localhost:8080",
	}
	formatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}
	noColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
	tuiFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode",
	}
)

func readOnlyFlags() []cli.Flag {
	return []cli.Flag{addrFlag, formatFlag, noColorFlag, tuiFlag}
}

func main() {
	app := &cli.App{
		Name:    "panelctl",
		Usage:   "inspect a running panelrund instance",
		Version: types.Version,
		Commands: []*cli.Command{
			inspectCommand(),
			statsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a single panel",
		Subcommands: []*cli.Command{
			{
				Name:      "panel",
				Usage:     "Inspect a panel by ID",
				ArgsUsage: "<panel-id>",
				Flags:     readOnlyFlags(),
				Action:    inspectPanelAction,
			},
		},
	}
}

func inspectPanelAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("panel-id required", 1)
	}
	id := c.Args().First()

	cl := client.New(c.String("addr"))
	info, err := cl.GetPanel(id)
	if err != nil {
		return fmt.Errorf("fetch panel: %w", err)
	}
	state, err := cl.GetState(id)
	if err != nil {
		return fmt.Errorf("fetch panel state: %w", err)
	}

	data := &tui.PanelInspection{Info: *info, State: state}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return r.RenderTUI("inspect_panel", data)
	}
	return r.Render(data)
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show aggregate health and sandbox pool statistics",
		Flags:  readOnlyFlags(),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	cl := client.New(c.String("addr"))
	h, err := cl.Health()
	if err != nil {
		return fmt.Errorf("fetch health: %w", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return r.RenderTUI("stats_health", h)
	}
	return r.Render(h)
}
