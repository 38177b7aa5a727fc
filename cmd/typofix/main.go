// Command typofix is the entry point for the typofix correction daemon and its
// companion commands.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/typofix/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "typofix: %v\n", err)
		return 1
	}
	return 0
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "typofix",
		Short: "Fix typos in the focused text field",
		Long: `typofix corrects the sentence around the caret in whatever application
holds input focus. The daemon (typofix serve) waits for a trigger from a
global shortcut, SIGUSR1 or POST /trigger, sends the text to the configured
correction backend and writes the result back in place.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to the YAML configuration file (defaults and TYPOFIX_* variables when empty)")
	root.PersistentFlags().StringSliceVar(&g.envFiles, "env-file", nil, "dotenv files to load before reading the configuration (default .env)")

	root.AddCommand(
		newServeCmd(g),
		newTriggerCmd(g),
		newCorrectCmd(g),
		newProfilesCmd(g),
	)
	return root
}

// load reads the configuration selected by the global flags.
func (g *globalFlags) load() (*config.Config, error) {
	if err := config.LoadEnv(g.envFiles...); err != nil {
		return nil, err
	}
	if g.configPath != "" {
		return config.Load(g.configPath)
	}
	cfg := &config.Config{}
	config.ApplyEnv(cfg, os.LookupEnv)
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger returns a text logger on w whose level follows lv.
func newLogger(w io.Writer, lv *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv}))
}
