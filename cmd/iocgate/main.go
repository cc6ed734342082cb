package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tomoyayamashita/iocgate/internal/cache"
	"github.com/tomoyayamashita/iocgate/internal/config"
	"github.com/tomoyayamashita/iocgate/internal/ecosystem"
	"github.com/tomoyayamashita/iocgate/internal/feed"
	"github.com/tomoyayamashita/iocgate/internal/indicator"
	"github.com/tomoyayamashita/iocgate/internal/logger"
	"github.com/tomoyayamashita/iocgate/internal/policy"
	"github.com/tomoyayamashita/iocgate/internal/report"
	"github.com/tomoyayamashita/iocgate/internal/scan"
)

// Default lockfile kinds, overridable with --lockfiles-config
//
//go:embed lockfiles.yaml
var defaultLockfilesYAML []byte

// errBlocked signals a policy block. The report and the decision log have
// already been written, so main only sets the exit code.
var errBlocked = errors.New("blocked by policy")

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errBlocked) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "iocgate [flags] <lockfile>",
		Short: "iocgate - check a lockfile against an IOC feed",
		Long: `iocgate downloads a published list of compromised npm packages and reports
every listed package that is resolved in a package-lock.json, npm-shrinkwrap.json
or yarn.lock file.`,
		Example: `  iocgate package-lock.json
  iocgate --feed-file iocs.csv yarn.lock
  iocgate --ci --format json package-lock.json`,
		Args:          cobra.ExactArgs(1),
		RunE:          runScan,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: ./iocgate.yaml or ~/.iocgate/iocgate.yaml)")
	flags.String(config.KeyFeedURL, feed.DefaultURL, "IOC feed URL (CSV)")
	flags.String(config.KeyFeedFile, "", "Read the IOC feed from a local CSV file instead of downloading it")
	flags.Duration(config.KeyTimeout, feed.DefaultTimeout, "Feed download timeout")
	flags.String(config.KeyFormat, string(report.FormatText), "Output format: text or json")
	flags.Bool(config.KeyNoColor, false, "Disable colored output")
	flags.String(config.KeyMode, string(policy.ModePermissive), "Policy mode: strict, warn, or permissive")
	flags.Bool(config.KeyCI, false, "Enable CI mode (fail on any finding)")
	flags.String(config.KeyLogLevel, string(logger.LevelError), "Log level: debug, info, warn, error")
	flags.String(config.KeyDataDir, "", "Data directory for the feed cache (default: ~/.iocgate/feeds)")
	flags.Duration(config.KeyCacheTTL, 0, "Reuse a cached feed younger than this instead of downloading")
	flags.Bool(config.KeyOffline, false, "Never download; use the cached feed")
	flags.Bool(config.KeyNoCache, false, "Do not read or write the feed cache")
	flags.String(config.KeyLockfilesConfig, "", "Path to lockfiles config file")

	rootCmd.AddCommand(newSelfCheckCmd())
	rootCmd.AddCommand(newPrintConfigCmd())

	return rootCmd
}

// app holds what every command needs once settings are resolved
type app struct {
	settings  *config.Settings
	log       *logger.Logger
	detector  *ecosystem.Detector
	lockfiles *ecosystem.Config
	source    scan.FeedSource
	cache     *cache.FeedCache
}

func (rt *app) Close() {
	if rt.cache != nil {
		rt.cache.Close()
	}
}

func setup(cmd *cobra.Command) (*app, error) {
	settings, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	log := logger.NewLogger(cmd.ErrOrStderr(), settings.LogLevel)
	if settings.ConfigFile != "" {
		log.Debug("config_loaded", "Using config file", map[string]interface{}{
			"path": settings.ConfigFile,
		})
	}

	// Load lockfile kinds (with automatic fallback to embedded default)
	lockfiles, err := ecosystem.LoadConfig(settings.LockfilesConfig, defaultLockfilesYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to load lockfiles config: %w", err)
	}

	rt := &app{
		settings:  settings,
		log:       log,
		detector:  ecosystem.NewDetector(lockfiles),
		lockfiles: lockfiles,
	}

	if settings.FeedFile != "" {
		rt.source = feed.FileSource{Path: settings.FeedFile}
		return rt, nil
	}

	if settings.UseCache() {
		rt.cache, err = openCache(settings)
		if err != nil {
			if settings.Offline {
				return nil, err
			}
			// Continue without the cache
			log.Warn("feed_cache_unavailable", "Feed cache disabled for this run", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	rt.source = feed.NewHTTPSource(feed.Config{
		URL:     settings.FeedURL,
		Timeout: settings.Timeout,
		Cache:   rt.cache,
		MaxAge:  settings.CacheTTL,
		Offline: settings.Offline,
		Logger:  log,
	})

	return rt, nil
}

func openCache(settings *config.Settings) (*cache.FeedCache, error) {
	dir, err := settings.CacheDir()
	if err != nil {
		return nil, err
	}
	return cache.Open(dir)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runScan(cmd *cobra.Command, args []string) error {
	// Arguments are valid; from here on errors are not usage errors
	cmd.SilenceUsage = true

	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signalContext()
	defer stop()

	scanner := scan.NewScanner(scan.Config{
		Detector: rt.detector,
		Feed:     rt.source,
		Logger:   rt.log,
	})

	rep, err := scanner.Run(ctx, args[0])
	if err != nil {
		if errors.Is(err, scan.ErrUnsupportedLockfile) {
			return fmt.Errorf("please provide a %s file: %w",
				strings.Join(rt.detector.SupportedNames(), " or "), err)
		}
		return err
	}

	engine := policy.NewEngine(rt.settings.Mode, rt.settings.CI)
	result := engine.Evaluate(policy.PolicyInput{
		Summary:  rep.Summary(),
		Lockfile: rep.Lockfile.Path,
	})
	rt.log.LogDecision(result, engine.GetMode(), engine.IsCI(), rep.RunID)

	opts := report.Options{
		Format:  rt.settings.Format,
		NoColor: rt.settings.NoColor,
	}
	if opts.Format == report.FormatJSON {
		opts.Decision = &result
	}
	if err := report.Write(cmd.OutOrStdout(), rep, opts); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if result.ShouldBlock() {
		return errBlocked
	}
	return nil
}

func newSelfCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-check",
		Short: "Check iocgate configuration, feed and cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "iocgate self-check")
			fmt.Fprintln(out, "==================")

			rt, err := setup(cmd)
			if err != nil {
				fmt.Fprintf(out, "❌ Failed to load config: %v\n", err)
				return err
			}
			defer rt.Close()

			fmt.Fprintf(out, "✅ Lockfiles config loaded: %d kinds (%s)\n",
				len(rt.lockfiles.Lockfiles), strings.Join(rt.detector.SupportedNames(), ", "))

			if rt.cache != nil {
				printCacheStatus(out, rt.cache)
			}

			fmt.Fprintln(out, "\nTesting IOC feed...")
			ctx, stop := signalContext()
			defer stop()

			text, err := rt.source.Fetch(ctx)
			if err != nil {
				fmt.Fprintf(out, "❌ Failed to fetch IOC feed: %v\n", err)
				return err
			}

			records := indicator.Parse(text)
			if len(records) == 0 {
				fmt.Fprintln(out, "⚠️  IOC feed contains no package entries")
			} else {
				fmt.Fprintf(out, "✅ IOC feed is readable (%d entries, first: %s)\n", len(records), records[0])
			}

			fmt.Fprintln(out, "\n✅ iocgate is ready to use!")
			return nil
		},
	}
}

func printCacheStatus(out io.Writer, c *cache.FeedCache) {
	entries, err := c.Entries()
	if err != nil {
		fmt.Fprintf(out, "⚠️  Feed cache at %s is unreadable: %v\n", c.Path(), err)
		return
	}

	fmt.Fprintf(out, "✅ Feed cache opened: %s (%d feeds)\n", c.Path(), len(entries))
	for _, e := range entries {
		fmt.Fprintf(out, "   - %s: %d bytes, fetched %s\n", e.URL, e.Size, e.FetchedAt.Format("2006-01-02 15:04:05 MST"))
	}
}

func newPrintConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print-config",
		Short: "Print current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			out := cmd.OutOrStdout()

			settings, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			configFile := settings.ConfigFile
			if configFile == "" {
				configFile = "[none]"
			}
			fmt.Fprintf(out, "# config file: %s\n", configFile)

			data, err := yaml.Marshal(settings)
			if err != nil {
				return fmt.Errorf("failed to encode settings: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
}
