package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/vk/signalgrid/internal/cli"
	"github.com/vk/signalgrid/internal/compile"
	"github.com/vk/signalgrid/internal/config"
	"github.com/vk/signalgrid/internal/ctxlog"
	"github.com/vk/signalgrid/internal/layout"
	"github.com/vk/signalgrid/internal/signal"
)

// main is the entrypoint for the planview tool.
func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling.
func run(outW io.Writer, args []string) error {
	opts, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	logger := newLogger(opts.LogLevel, opts.LogFormat, os.Stderr)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	model, err := config.LoadFile(opts.GraphPath)
	if err != nil {
		return err
	}
	ops, err := model.Materialize()
	if err != nil {
		return err
	}

	modelOpts := model.EffectiveOptions()
	if opts.Planner != "" {
		modelOpts.Planner = opts.Planner
	}
	floatType, err := signal.ParseDtype(modelOpts.FloatType)
	if err != nil {
		return err
	}

	result, err := compile.Run(ctx, ops, compile.Options{
		Planner:       modelOpts.Planner,
		FloatType:     floatType,
		MinibatchSize: modelOpts.MinibatchSize,
		SortPasses:    modelOpts.SortPasses,
	})
	if err != nil {
		return err
	}

	printResult(outW, result)
	return nil
}

// newLogger creates and configures a new slog.Logger instance. It does not
// set the global logger, allowing for isolated logger instances.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}

func printResult(outW io.Writer, result *compile.Result) {
	fmt.Fprintf(outW, "plan: %d groups, %d operators\n", len(result.Plan), result.Plan.Operators())
	for gi, group := range result.Plan {
		fmt.Fprintf(outW, "  group %d (%s, %d ops):", gi, group[0].Kind, len(group))
		for _, op := range group {
			fmt.Fprintf(outW, " %s", op.Label)
		}
		fmt.Fprintln(outW)
	}

	fmt.Fprintf(outW, "signal order: %d base signals\n", len(result.Signals))
	for _, s := range result.Signals {
		fmt.Fprintf(outW, "  %s\n", s)
	}

	keys := make([]layout.Key, 0, len(result.Arrays))
	for k := range result.Arrays {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	fmt.Fprintf(outW, "layout: %d base arrays\n", len(result.Arrays))
	for _, k := range keys {
		arr := result.Arrays[k]
		fmt.Fprintf(outW, "  array %d: %s rows=%d tail=%v trainable=%t minibatched=%t\n",
			arr.Key, arr.Dtype, arr.Rows, arr.TailShape, arr.Trainable, arr.Minibatched)
	}
}
