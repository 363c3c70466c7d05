package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml"
)

func newCheckCmd(a *app) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "check INPUT",
		Short: "Report parameter declarations and references without expanding",
		Long: `Splice the included files of INPUT and report every parameter that is declared,
unused or referenced without a declaration. Exits non-zero when a reference is undefined.
Names given with -p count as declared.`,
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
			result, err := e.IncludeFile(args[0], geosxml.WithContext(cmd.Context()))
			if err != nil {
				return err
			}

			report := e.CollectReferences(result.Document)
			report = withOverrides(report, overrides)
			printReport(cmd.OutOrStdout(), result, report)
			return report.Err()
		},
	}

	cmd.Flags().StringArrayVarP(&params, "parameter", "p", nil, "Treat a parameter as supplied (name=value, repeatable)")
	return cmd
}

// withOverrides drops undefined references that an override would satisfy
func withOverrides(report geosxml.ReferenceReport, overrides map[string]string) geosxml.ReferenceReport {
	if len(overrides) == 0 {
		return report
	}
	undefined := report.Undefined[:0:0]
	for _, ref := range report.Undefined {
		if _, ok := overrides[ref.Name]; !ok {
			undefined = append(undefined, ref)
		}
	}
	report.Undefined = undefined

	unused := report.Unused[:0:0]
	for _, name := range report.Unused {
		if _, ok := overrides[name]; !ok {
			unused = append(unused, name)
		}
	}
	report.Unused = unused
	return report
}

func printReport(w io.Writer, result *geosxml.Result, report geosxml.ReferenceReport) {
	fmt.Fprintf(w, "Files (%d):\n", len(result.Files))
	for _, f := range result.Files {
		fmt.Fprintf(w, "  %s\n", f)
	}

	fmt.Fprintf(w, "Parameters (%d declared, %d references):\n", len(report.Declared), len(report.Referenced))
	for _, name := range report.Declared {
		fmt.Fprintf(w, "  %s\n", name)
	}

	if len(report.Unused) > 0 {
		fmt.Fprintf(w, "Unused (%d):\n", len(report.Unused))
		for _, name := range report.Unused {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}

	if len(report.Undefined) > 0 {
		fmt.Fprintf(w, "Undefined (%d):\n", len(report.Undefined))
		for _, ref := range report.Undefined {
			fmt.Fprintf(w, "  %s at %s\n", ref.Name, ref)
		}
	}
}
