package main

import (
	"flag"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestReadOnlyFlagsIncludesAddr(t *testing.T) {
	flags := readOnlyFlags()

	var sawAddr, sawFormat, sawNoColor, sawTUI bool
	for _, f := range flags {
		switch f.Names()[0] {
		case "addr":
			sawAddr = true
		case "format":
			sawFormat = true
		case "no-color":
			sawNoColor = true
		case "tui":
			sawTUI = true
		}
	}

	if !sawAddr || !sawFormat || !sawNoColor || !sawTUI {
		t.Errorf("readOnlyFlags() missing expected flag: addr=%v format=%v no-color=%v tui=%v",
			sawAddr, sawFormat, sawNoColor, sawTUI)
	}
}

func TestAddrFlagDefault(t *testing.T) {
	if addrFlag.Value != "http://localhost:8080" {
		t.Errorf("addrFlag default = %q, want http://localhost:8080", addrFlag.Value)
	}
}

func TestInspectPanelActionRequiresArg(t *testing.T) {
	app := cli.NewApp()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range readOnlyFlags() {
		if err := f.Apply(set); err != nil {
			t.Fatalf("apply flag: %v", err)
		}
	}
	if err := set.Parse(nil); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	c := cli.NewContext(app, set, nil)

	err := inspectPanelAction(c)
	if err == nil {
		t.Fatal("expected error when no panel-id is given")
	}
	exitErr, ok := err.(cli.ExitCoder)
	if !ok {
		t.Fatalf("expected cli.ExitCoder, got %T", err)
	}
	if exitErr.ExitCode() != 1 {
		t.Errorf("exit code = %d, want 1", exitErr.ExitCode())
	}
}
