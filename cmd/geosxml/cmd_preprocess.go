package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml"
	"github.com/benjaminschreck/go-geosxml/pkg/geosxml/watch"
)

type preprocessOptions struct {
	output         string
	params         []string
	parametersFile string
	jobs           int
	watch          bool
	convertUnits   bool
}

func newPreprocessCmd(a *app) *cobra.Command {
	opts := &preprocessOptions{}

	cmd := &cobra.Command{
		Use:   "preprocess INPUT...",
		Short: "Flatten input decks into self-contained XML files",
		Long: `Flatten each input deck: splice included files, substitute parameters and
evaluate expressions. The path of every file written is printed, one per line.

Without -o the output is written next to the input as prep_<uuid>.xml.`,
		Example: `  geosxml preprocess main.xml -o flat.xml
  geosxml preprocess main.xml -p L=3.0 -p nx=20
  geosxml preprocess case1.xml case2.xml case3.xml -j 2
  geosxml preprocess main.xml -o flat.xml --watch`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPreprocess(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (single input only)")
	cmd.Flags().StringArrayVarP(&opts.params, "parameter", "p", nil, "Override a parameter (name=value, repeatable)")
	cmd.Flags().StringVar(&opts.parametersFile, "parameters-file", "", "YAML file of parameter overrides")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 4, "Number of inputs compiled concurrently")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Recompile whenever the input or an included file changes")
	cmd.Flags().BoolVar(&opts.convertUnits, "convert-units", false, "Convert bracketed unit literals outside expressions")

	return cmd
}

func (a *app) runPreprocess(cmd *cobra.Command, inputs []string, opts *preprocessOptions) error {
	if opts.output != "" && len(inputs) > 1 {
		return errors.New("--output requires a single input")
	}
	if opts.watch && len(inputs) > 1 {
		return errors.New("--watch requires a single input")
	}

	overrides, err := collectOverrides(opts.parametersFile, opts.params)
	if err != nil {
		return err
	}

	if opts.convertUnits {
		a.config.ConvertUnitLiterals = true
	}
	e, err := a.expander()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.watch {
		return a.watchInput(ctx, cmd, e, inputs[0], opts.output, overrides)
	}

	outputs := make([]string, len(inputs))
	eg, egCtx := errgroup.WithContext(ctx)
	if opts.jobs > 0 {
		eg.SetLimit(opts.jobs)
	}
	for i, input := range inputs {
		i, input := i, input
		eg.Go(func() error {
			out, err := e.CompileFile(input, opts.output,
				geosxml.WithOverrides(overrides), geosxml.WithContext(egCtx))
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			outputs[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, out := range outputs {
		fmt.Fprintln(cmd.OutOrStdout(), out)
	}
	return nil
}

// watchInput recompiles one input to a fixed output until interrupted
func (a *app) watchInput(ctx context.Context, cmd *cobra.Command, e *geosxml.Expander, input, output string, overrides map[string]string) error {
	if output == "" {
		output = filepath.Join(filepath.Dir(input), "prep_"+uuid.NewString()+".xml")
	}

	compile := func(ctx context.Context) ([]string, error) {
		result, err := e.ProcessFile(input, geosxml.WithOverrides(overrides), geosxml.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if err := e.WriteDocument(result.Document, output); err != nil {
			return result.Files, err
		}
		fmt.Fprintln(cmd.OutOrStdout(), output)
		return result.Files, nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.New([]string{input}, compile, watch.WithLogger(geosxml.NewZapLogger(a.logger)))
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	a.logger.Info("Watching for changes", zap.String("input", input), zap.Strings("files", w.Files()))
	select {
	case <-ctx.Done():
	case <-w.Done():
	}

	stats := w.Stats()
	a.logger.Info("Watcher stopped", zap.Int("runs", stats.Runs), zap.Int("failures", stats.Failures))
	return nil
}
