// Command basisrx receives Basis packets and captures, plots or dumps them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rjboer/GoBasis/internal/app"
	"github.com/rjboer/GoBasis/internal/capture"
	"github.com/rjboer/GoBasis/internal/config"
	"github.com/rjboer/GoBasis/internal/discovery"
	"github.com/rjboer/GoBasis/internal/dsp"
	"github.com/rjboer/GoBasis/internal/logging"
	"github.com/rjboer/GoBasis/internal/plot"
	"github.com/rjboer/GoBasis/internal/source"
	"github.com/rjboer/GoBasis/internal/telemetry"
)

const modeDiscover = "discover"

const telemetryService = "_basis-telemetry._tcp"

// swapped in tests
var (
	openSource = source.Open
	discover   = discovery.Discover
	announce   = discovery.Announce
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv); err != nil {
		fmt.Fprintf(os.Stderr, "basisrx: %v\n", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	mode       string
	configPath string
	saveConfig string
	packets    int
	announce   bool
	cfg        config.Config
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, lookup func(string) (string, bool)) error {
	cli, err := parseConfig(args, lookup, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	cfg := cli.cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return err
	}
	logger := logging.New(level, format, stderr)
	logging.SetDefault(logger)

	if cli.saveConfig != "" {
		if err := config.Save(cli.saveConfig, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		logger.Info("configuration saved", logging.F("path", cli.saveConfig))
	}

	if cli.mode == modeDiscover {
		return runDiscover(ctx, cfg, stdout)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := telemetry.NewMetrics(reg)
	hub := telemetry.NewHub(cfg.Web.HistoryLimit, logger, metrics)

	reporters := telemetry.MultiReporter{hub}
	if cfg.Web.Addr != "" {
		ws := telemetry.NewWebServer(cfg.Web.Addr, hub, reg)
		go func() {
			if err := ws.Start(ctx); err != nil {
				logger.Error("web telemetry server error", logging.Err(err))
			}
		}()
		if cli.announce {
			port, err := portOf(cfg.Web.Addr)
			if err != nil {
				return err
			}
			a, err := announce("basisrx "+hub.SessionID()[:8], telemetryService, port,
				map[string]string{"session": hub.SessionID(), "mode": cli.mode})
			if err != nil {
				return err
			}
			defer a.Shutdown()
		}
	} else if cli.mode != app.ModeDump {
		reporters = append(reporters, telemetry.NewStdoutReporter(logger))
	}

	analyzer, err := dsp.NewAnalyzer(cfg.Plot.Window, 0)
	if err != nil {
		return err
	}
	appCfg := app.Config{
		Mode:        cli.mode,
		MaxPackets:  cli.packets,
		SkipInvalid: cfg.Capture.SkipInvalid,
		Analyzer:    analyzer,
		Out:         stdout,
	}

	var w *capture.Writer
	switch cli.mode {
	case app.ModeCapture:
		w, err = capture.Create(cfg.Capture.Output, cfg.Capture.DesiredSamples)
		if err != nil {
			return err
		}
		w.SetSession(hub.SessionID())
		appCfg.Capture = w
	case app.ModePlot:
		appCfg.Plotter, err = plot.New(cfg.Plot.Dir, analyzer)
		if err != nil {
			return err
		}
		if appCfg.MaxPackets == 0 {
			appCfg.MaxPackets = cfg.Plot.Packets
		}
	}

	src, err := openSource(ctx, cfg.Source, logger)
	if err != nil {
		if w != nil {
			w.Close() //nolint:errcheck
		}
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	r := app.NewReceiver(src, reporters, logger, appCfg)
	runErr := r.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	if w != nil {
		metrics.CapturedSamples.Add(float64(w.Samples()))
		if err := w.Close(); err != nil && runErr == nil {
			runErr = err
		}
		fmt.Fprintf(stdout, "captured %d samples (%s) to %s\n", w.Samples(), w.Metadata().Format, cfg.Capture.Output)
	}
	for _, f := range r.Counters().Plots {
		fmt.Fprintf(stdout, "wrote %s\n", f)
	}
	return runErr
}

func runDiscover(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	start := time.Now()
	hosts, err := discover(ctx, cfg.Discovery.Timeout)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	if len(hosts) == 0 {
		fmt.Fprintf(stdout, "no publishers found (%s)\n", time.Since(start).Truncate(time.Millisecond))
		return nil
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tTRANSPORT\tENDPOINT\tFORMAT\tRATE")
	for _, h := range hosts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", h.Instance, h.Transport(), h.Endpoint(), h.TXT["format"], h.TXT["rate"])
	}
	return tw.Flush()
}

func portOf(addr string) (int, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return 0, fmt.Errorf("web address %q has no port", addr)
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil || port <= 0 {
		return 0, fmt.Errorf("web address %q has no usable port", addr)
	}
	return port, nil
}

// configPath finds -config before the full flag set is built, since the file
// supplies the flag defaults.
func configPath(args []string, lookup func(string) (string, bool)) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return envString(lookup, "BASIS_CONFIG", "")
}

func parseConfig(args []string, lookup func(string) (string, bool), stderr io.Writer) (cliConfig, error) {
	path := configPath(args, lookup)
	defaults, err := config.Load(path)
	if err != nil {
		return cliConfig{}, err
	}

	cli := cliConfig{cfg: defaults}
	c := &cli.cfg
	fs := flag.NewFlagSet("basisrx", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cli.configPath, "config", path, "YAML configuration file")
	fs.StringVar(&cli.saveConfig, "save-config", "", "Write the effective configuration to this YAML file")
	fs.StringVar(&cli.mode, "mode", envString(lookup, "BASIS_MODE", app.ModeCapture), "Run mode (capture|plot|dump|discover)")
	fs.IntVar(&cli.packets, "n", envInt(lookup, "BASIS_PACKETS", 0), "Packets to plot or dump (0: plot.packets for plot, unlimited for dump)")
	fs.BoolVar(&cli.announce, "announce", envBool(lookup, "BASIS_ANNOUNCE", false), "Advertise the web telemetry endpoint over mDNS")

	fs.StringVar(&c.Source.Kind, "source", envString(lookup, "BASIS_SOURCE", c.Source.Kind), "Packet source (udp|tcp|pcap|mock)")
	fs.StringVar(&c.Source.Address, "a", envString(lookup, "BASIS_ADDR", c.Source.Address), "Multicast group, bind address or TCP host")
	fs.IntVar(&c.Source.Port, "p", envInt(lookup, "BASIS_PORT", c.Source.Port), "Port")
	fs.StringVar(&c.Source.Interface, "i", envString(lookup, "BASIS_IFACE", c.Source.Interface), "Multicast interface name")
	fs.DurationVar(&c.Source.ReadTimeout, "timeout", envDuration(lookup, "BASIS_TIMEOUT", c.Source.ReadTimeout), "Receive timeout (0 waits forever)")
	fs.StringVar(&c.Source.PCAPFile, "pcap", envString(lookup, "BASIS_PCAP", c.Source.PCAPFile), "Replay UDP payloads from a pcap/pcapng file")
	fs.StringVar(&c.Source.Mock.Format, "mock-format", envString(lookup, "BASIS_MOCK_FORMAT", c.Source.Mock.Format), "Sample format generated by the mock source")

	fs.IntVar(&c.Capture.DesiredSamples, "d", envInt(lookup, "BASIS_DESIRED", c.Capture.DesiredSamples), "Desired number of samples to capture")
	fs.StringVar(&c.Capture.Output, "o", envString(lookup, "BASIS_OUTPUT", c.Capture.Output), "Capture output file")
	fs.BoolVar(&c.Capture.SkipInvalid, "skip-invalid", envBool(lookup, "BASIS_SKIP_INVALID", c.Capture.SkipInvalid), "Keep running past rejected packets")

	fs.StringVar(&c.Plot.Dir, "plot-dir", envString(lookup, "BASIS_PLOT_DIR", c.Plot.Dir), "Directory for PNG plots")
	fs.StringVar(&c.Plot.Window, "window", envString(lookup, "BASIS_WINDOW", c.Plot.Window), "Spectrum window (hann|hamming|none)")

	fs.StringVar(&c.Web.Addr, "web-addr", envString(lookup, "BASIS_WEB_ADDR", c.Web.Addr), "Optional web telemetry listen address (e.g. :8080)")
	fs.DurationVar(&c.Discovery.Timeout, "discover-timeout", envDuration(lookup, "BASIS_DISCOVER_TIMEOUT", c.Discovery.Timeout), "mDNS browse duration")
	fs.StringVar(&c.Logging.Level, "log-level", envString(lookup, "BASIS_LOG_LEVEL", c.Logging.Level), "Log level (debug|info|warn|error)")
	fs.StringVar(&c.Logging.Format, "log-format", envString(lookup, "BASIS_LOG_FORMAT", c.Logging.Format), "Log format (text|json)")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	if fs.NArg() > 0 {
		return cliConfig{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	sourceSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "source" {
			sourceSet = true
		}
	})
	if _, ok := lookup("BASIS_SOURCE"); ok {
		sourceSet = true
	}
	if c.Source.PCAPFile != "" && !sourceSet {
		c.Source.Kind = config.SourcePCAP
	}

	switch cli.mode {
	case app.ModeCapture, app.ModePlot, app.ModeDump, modeDiscover:
	default:
		return cliConfig{}, fmt.Errorf("unknown mode %q", cli.mode)
	}
	if cli.packets < 0 {
		return cliConfig{}, fmt.Errorf("-n must not be negative, got %d", cli.packets)
	}
	if err := c.Validate(); err != nil {
		return cliConfig{}, err
	}
	return cli, nil
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envDuration(lookup func(string) (string, bool), key string, def time.Duration) time.Duration {
	if val, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}
