package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/KromDaniel/rejit/pkg/rejit"
)

// app holds state shared by every subcommand.
type app struct {
	v        *viper.Viper
	logger   *slog.Logger
	registry *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	var cfgFile string

	cmd := &cobra.Command{
		Use:          "rejit",
		Short:        "Match regular expressions with a JIT-compiled Pike VM",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, cfgFile)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.writeMetrics(cmd.OutOrStdout())
		},
	}

	fs := cmd.PersistentFlags()
	fs.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	fs.String("log-level", "warn", "log level: debug, info, warn or error")
	fs.String("log-fmt", "tint", "log format: tint, text or json")
	fs.Bool("no-jit", false, "always use the interpreter")
	fs.Int("max-threads", 0, "bound on live threads per match, 0 for none")
	fs.Bool("metrics", false, "print metrics in text exposition format on exit")
	_ = a.v.BindPFlags(fs)

	cmd.AddCommand(newMatchCmd(a), newDumpCmd(a), newRewriteCmd(a))
	return cmd
}

func (a *app) init(cmd *cobra.Command, cfgFile string) error {
	a.v.SetEnvPrefix("REJIT")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	level, err := parseLevel(a.v.GetString("log-level"))
	if err != nil {
		return err
	}
	handler, err := newHandler(a.v.GetString("log-fmt"), level, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.logger = slog.New(handler)

	a.registry = prometheus.NewRegistry()
	return rejit.RegisterMetrics(a.registry)
}

// compile builds pattern with the configured options.
func (a *app) compile(pattern string) (*rejit.Regexp, error) {
	return rejit.New(rejit.Options{
		Pattern:    pattern,
		Logger:     a.logger,
		DisableJIT: a.v.GetBool("no-jit"),
		MaxThreads: a.v.GetInt("max-threads"),
	})
}

func (a *app) writeMetrics(w io.Writer) error {
	if !a.v.GetBool("metrics") {
		return nil
	}
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log-level %q: expected debug, info, warn or error", s)
}

func newHandler(format string, level slog.Level, w io.Writer) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "tint", "":
		return tint.NewHandler(w, &tint.Options{Level: level}), nil
	case "text", "logfmt":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}), nil
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), nil
	}
	return nil, fmt.Errorf("invalid log-fmt %q: expected tint, text or json", format)
}
