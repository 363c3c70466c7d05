package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml"
	"github.com/benjaminschreck/go-geosxml/pkg/geosxml/units"
)

func newUnitsCmd(a *app) *cobra.Command {
	var (
		to   string
		list bool
	)

	cmd := &cobra.Command{
		Use:   "units [LITERAL]",
		Short: "Normalize a unit literal to SI or convert it",
		Example: `  geosxml units '5 km'
  geosxml units '1[atm]' --to MPa
  geosxml units --list`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				fmt.Fprintln(out, strings.Join(units.Symbols(), " "))
				return nil
			}
			if len(args) == 0 {
				return errors.New("a unit literal is required")
			}

			q, err := units.ParseQuantity(args[0])
			if err != nil {
				return err
			}

			if to == "" {
				fmt.Fprintf(out, "%s [%s]\n", geosxml.FormatNumber(q.Value, a.config.Precision), q.Dim)
				return nil
			}

			target, err := units.ParseUnit(to)
			if err != nil {
				return err
			}
			if target.Dim != q.Dim {
				return fmt.Errorf("cannot convert %s to %s: dimensions %s and %s differ", args[0], to, q.Dim, target.Dim)
			}
			v, err := units.Express(q.Value, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s\n", geosxml.FormatNumber(v, a.config.Precision), to)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Express the value in this unit instead of SI")
	cmd.Flags().BoolVar(&list, "list", false, "List the known unit symbols")
	return cmd
}
