package main

import (
	"fmt"

	"fastpreload/internal/graphfile"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and graph file without connecting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			def, err := graphfile.Load(cfg.Preload.GraphFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "root: %s\n", def.RootEntity())
			for _, v := range def.Graph.Vertices() {
				fmt.Fprintf(out, "vertex %s (table %s)\n", v.Entity, v.Table)
				for e := range v.Edges() {
					flags := ""
					if e.SkipLoading {
						flags = " [skip]"
					}
					fmt.Fprintf(out, "  %s.%s <- %s (%s)%s\n", e.OwnerEntity(), e.Name, e.PrimaryKey, e.Kind(), flags)
				}
			}
			return nil
		},
	}
}
