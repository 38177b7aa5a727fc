package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/typofix/internal/app"
	"github.com/MrWong99/typofix/internal/profile"
)

func newProfilesCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Print the effective application profile table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			t, err := app.BuildProfiles(cfg)
			if err != nil {
				return err
			}
			return printProfiles(cmd.OutOrStdout(), t, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printProfiles(w io.Writer, t *profile.Table, asJSON bool) error {
	profiles := append(t.Profiles(), t.Default())
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(profiles)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tAPP ID\tSTRATEGY\tREAD\tWRITE\tSOURCE")
	for _, p := range profiles {
		name := p.Name
		if name == "" {
			name = "-"
		}
		id := p.AppID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\t%s\n",
			name, id, p.PreferredStrategy, p.SupportsDirectRead, p.SupportsDirectWrite, p.Source)
	}
	return tw.Flush()
}
