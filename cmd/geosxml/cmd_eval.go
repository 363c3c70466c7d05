package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml"
)

func newEvalCmd(a *app) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "eval EXPR",
		Short: "Evaluate one expression",
		Long: `Evaluate EXPR the way the expression pass would and print the result.
The surrounding backticks are optional. Unit literals are normalized to SI.`,
		Example: `  geosxml eval '2 m + 200 cm'
  geosxml eval '$L$ * 2' -p L=3.0
  geosxml eval 'sqrt(k / mu)' -p k=1e-12 -p mu=1[cP]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseParameterFlags(params)
			if err != nil {
				return err
			}

			e, err := a.expander()
			if err != nil {
				return err
			}
			v, err := e.Evaluate(args[0], geosxml.ParametersFromMap(overrides))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), e.Format(v))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&params, "parameter", "p", nil, "Define a parameter (name=value, repeatable)")
	return cmd
}
