package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/PentesterFlow/frontier/internal/crawl"
	"github.com/PentesterFlow/frontier/internal/logger"
	"github.com/PentesterFlow/frontier/internal/ratelimit"
	"github.com/PentesterFlow/frontier/internal/shutdown"
	"github.com/PentesterFlow/frontier/pkg/frontier"
)

var version = "0.1.0"

const defaultSeed = "https://example.com/"

type runOptions struct {
	configFile string
	saveConfig string
	seedsFile  string
	jsonOutput bool

	// Frontier
	capacity      int
	shards        int
	releaseOnFull bool
	logLevel      string
	pretty        bool

	// Crawl
	workers         int
	rateLimit       float64
	hostRateLimit   float64
	burst           int
	statusInterval  time.Duration
	shutdownTimeout time.Duration

	// Synthetic site
	fanout  int
	depth   int
	latency time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "frontier",
		Short: "frontier - deduplicating bounded URL frontier",
		Long: `frontier - a bounded, deduplicating URL frontier for concurrent crawlers.

The run command drives worker goroutines over a synthetic link graph to
exercise the frontier under backpressure and report its counters.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "frontier %s\n", version)
		},
	}
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	runCmd := &cobra.Command{
		Use:   "run [seed...]",
		Short: "Crawl a synthetic link graph from the given seeds",
		Long: `Crawl a synthetic link graph from the given seeds.

Every page below the depth limit links to fanout children and back to its
host's root, so the run exercises both backpressure and deduplication.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, opts, args)
		},
	}

	flags := runCmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	flags.StringVar(&opts.saveConfig, "save-config", "", "Write the effective configuration to this file")
	flags.StringVar(&opts.seedsFile, "seeds-file", "", "File with one seed URL per line")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print the result as JSON")

	// Frontier flags
	flags.IntVar(&opts.capacity, "capacity", 0, "Maximum queued URLs")
	flags.IntVar(&opts.shards, "shards", 0, "Visited set shards")
	flags.BoolVar(&opts.releaseOnFull, "release-on-full", false, "Unmark URLs refused by a full queue")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&opts.pretty, "pretty", true, "Human-readable log output")

	// Crawl flags
	flags.IntVarP(&opts.workers, "workers", "w", crawl.DefaultWorkers, "Number of concurrent workers")
	flags.Float64VarP(&opts.rateLimit, "rate-limit", "r", 0, "Visits per second across all hosts (0 = unlimited)")
	flags.Float64Var(&opts.hostRateLimit, "host-rate-limit", 0, "Visits per second to one host (0 = unlimited)")
	flags.IntVar(&opts.burst, "burst", 1, "Rate limiter burst")
	flags.DurationVar(&opts.statusInterval, "status-interval", 0, "Progress log interval (0 = off)")
	flags.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", shutdown.DefaultTimeout, "Time allowed for shutdown hooks")

	// Synthetic site flags
	flags.IntVar(&opts.fanout, "fanout", 3, "Links per page")
	flags.IntVarP(&opts.depth, "max-depth", "d", 4, "Depth of the link graph")
	flags.DurationVar(&opts.latency, "latency", 0, "Simulated fetch latency")

	return runCmd
}

func runCrawl(cmd *cobra.Command, opts *runOptions, args []string) error {
	config, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if opts.saveConfig != "" {
		if err := config.SaveToFile(opts.saveConfig); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	}

	seeds, err := loadSeeds(opts.seedsFile, args)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log := config.Logger().WithField("run_id", runID)

	f, err := frontier.NewFromConfig(config, frontier.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to create frontier: %w", err)
	}

	site, err := newSyntheticSite(opts.fanout, opts.depth, opts.latency)
	if err != nil {
		return err
	}
	log.Event(logger.DebugLevel).
		Int("fanout", opts.fanout).
		Int("depth", opts.depth).
		Int("pages_per_host", site.pageCount()).
		Int("capacity", config.Capacity).
		Msg("Synthetic site ready")

	runner, err := crawl.New(f, site,
		crawl.WithWorkers(opts.workers),
		crawl.WithLimiter(ratelimit.NewLimiter(opts.rateLimit, opts.hostRateLimit, opts.burst)),
		crawl.WithLogger(log),
		crawl.WithStatusInterval(opts.statusInterval),
	)
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	shutdownConfig := shutdown.DefaultConfig()
	shutdownConfig.Timeout = opts.shutdownTimeout
	shutdownConfig.Logger = log
	handler := shutdown.New(shutdownConfig)
	handler.RegisterFunc("frontier", runner.Stop)

	result, err := runner.Run(handler.Context(), seeds)
	if shutdownErr := handler.Shutdown(); shutdownErr != nil {
		log.Event(logger.WarnLevel).Err(shutdownErr).Msg("Shutdown finished with errors")
	}
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	if result.Interrupted {
		log.Warn("Crawl interrupted before the frontier drained")
	}
	log.StatsEvent("Crawl complete", f.Metrics().Snapshot().Summary())

	if opts.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), runID, result)
	}
	printSummary(cmd.OutOrStdout(), runID, result)
	return nil
}

// loadConfig layers defaults, the config file, FRONTIER_* environment
// variables and explicitly set flags, in that order.
func loadConfig(cmd *cobra.Command, opts *runOptions) (*frontier.Config, error) {
	config := frontier.DefaultConfig()
	if opts.configFile != "" {
		fileConfig, err := frontier.LoadFromFile(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	if err := config.ApplyEnv(frontier.EnvPrefix); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("capacity") {
		config.Capacity = opts.capacity
	}
	if flags.Changed("shards") {
		config.Shards = opts.shards
	}
	if flags.Changed("release-on-full") {
		config.ReleaseOnFull = opts.releaseOnFull
	}
	if flags.Changed("log-level") {
		config.Log.Level = opts.logLevel
	}
	if flags.Changed("pretty") {
		config.Log.Pretty = opts.pretty
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// loadSeeds returns the seeds from args followed by those in path. Blank
// lines and lines starting with # are skipped.
func loadSeeds(path string, args []string) ([]string, error) {
	seeds := append([]string(nil), args...)

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open seeds file: %w", err)
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			seeds = append(seeds, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read seeds file: %w", err)
		}
	}

	if len(seeds) == 0 {
		seeds = []string{defaultSeed}
	}
	return seeds, nil
}

func writeJSON(w io.Writer, runID string, result *crawl.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		RunID string `json:"run_id"`
		*crawl.Result
	}{runID, result})
}

func printSummary(w io.Writer, runID string, result *crawl.Result) {
	stats := result.Stats
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Crawl Summary")
	fmt.Fprintln(w, "=============")
	fmt.Fprintf(w, "Run ID:             %s\n", runID)
	fmt.Fprintf(w, "Duration:           %v\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Pages Visited:      %d\n", result.Visited)
	fmt.Fprintf(w, "Visit Errors:       %d\n", result.Errors)
	fmt.Fprintf(w, "URLs Added:         %d\n", stats.URLsAdded)
	fmt.Fprintf(w, "Duplicates Skipped: %d\n", stats.DuplicatesSkipped)
	fmt.Fprintf(w, "Dropped (burned):   %d\n", stats.Dropped)
	fmt.Fprintf(w, "Distinct URLs:      %d\n", stats.Visited)
	if result.Interrupted {
		fmt.Fprintf(w, "Interrupted:        %d URLs left unvisited\n", len(result.Unvisited))
	}
	fmt.Fprintln(w)
}
