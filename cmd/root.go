package cmd

import (
	"context"
	"errors"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/tanq16/splitdl/internal/config"
	"github.com/tanq16/splitdl/internal/engine"
	"github.com/tanq16/splitdl/internal/fileio"
	"github.com/tanq16/splitdl/internal/output"
	"github.com/tanq16/splitdl/internal/state"
	"github.com/tanq16/splitdl/internal/utils"
)

var (
	outputPath    string
	segments      int
	concurrency   int
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	configPath    string
	debug         bool
	quiet         bool
)

var SplitdlVersion = "dev"

const (
	exitFatal   = 1
	exitPartial = 2
)

var rootCmd = &cobra.Command{
	Use:     "splitdl [URL]",
	Short:   "splitdl downloads a file over parallel range requests and resumes where it left off",
	Version: SplitdlVersion,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			output.PrintError(err.Error())
			os.Exit(exitFatal)
		}
		utils.InitLogger(cfg.Debug)

		url := args[0]
		parsedURL, err := u.Parse(url)
		if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
			output.PrintError("Invalid URL, expected an http or https link")
			os.Exit(exitFatal)
		}
		if outputPath == "" {
			outputPath = utils.OutputPathFromURL(url)
		}
		os.Exit(runDownload(cfg, url, outputPath))
	},
}

func runDownload(cfg *config.Config, url, outPath string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := utils.GetLogger("download")
	client := utils.NewHTTPClient(cfg.HTTPClientConfig())
	eng := engine.New(url, outPath, cfg.Segments, cfg.Concurrency,
		engine.WithClient(client),
		engine.WithChunkSize(cfg.ChunkSize),
		engine.WithCheckpointChunks(cfg.CheckpointChunks),
		engine.WithObserver(engine.LogObserver(utils.GetLogger("segments"))),
	)

	var display *output.Display
	if !quiet && term.IsTerminal(int(os.Stdout.Fd())) {
		display = output.NewDisplay(filepath.Base(outPath))
		eng.Subscribe(display)
		// the live view owns the terminal; only warnings interleave with it
		if !cfg.Debug {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		}
		display.StartDisplay()
	}
	log.Debug().Str("url", url).Str("output", outPath).Int("segments", cfg.Segments).Int("concurrency", cfg.Concurrency).Msg("Download configured")

	result, err := eng.Start(ctx)
	if display != nil {
		display.StopDisplay()
	}
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrMetadata):
			output.PrintError(fmt.Sprintf("Could not read file information: %v", err))
		case errors.Is(err, fileio.ErrFileSystem):
			output.PrintError(fmt.Sprintf("Could not prepare output file: %v", err))
		case errors.Is(err, state.ErrStateCorruption):
			output.PrintError(fmt.Sprintf("Resume state is unreadable: %v", err))
			output.PrintDetail(fmt.Sprintf("Remove it with: splitdl clean %s", outPath))
		default:
			output.PrintError(fmt.Sprintf("Download failed: %v", err))
		}
		return exitFatal
	}

	if result.Outcome == engine.Complete {
		output.PrintSuccess(fmt.Sprintf("Downloaded %s (%s) in %s", outPath, utils.FormatBytes(uint64(result.TotalSize)), result.Elapsed.Round(time.Millisecond)))
		return 0
	}
	if result.Interrupted {
		output.PrintWarning(fmt.Sprintf("Download paused at %s of %s", utils.FormatBytes(uint64(result.Downloaded)), utils.FormatBytes(uint64(result.TotalSize))))
	} else {
		output.PrintWarning(fmt.Sprintf("Download incomplete: %d segment(s) failed", len(result.Failed())))
		for _, seg := range result.Failed() {
			output.PrintDetail(fmt.Sprintf("  segment %d: %v", seg.ID, seg.Err))
		}
	}
	output.PrintInfo("Run the same command again to resume")
	return exitPartial
}

// loadConfig layers explicitly set flags over the file and environment
// configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("segments") {
		cfg.Segments = segments
	}
	if flags.Changed("connections") {
		cfg.Concurrency = concurrency
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		cfg.KATimeout = kaTimeout
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent = userAgent
	}
	if flags.Changed("proxy") {
		cfg.ProxyURL = proxyURL
	}
	if flags.Changed("proxy-username") {
		cfg.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		cfg.ProxyPassword = proxyPassword
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	for k, v := range utils.ParseHeaderArgs(headers) {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		cfg.Headers[k] = v
	}
	// Check if proxy URL contains auth
	parsedProxy, err := u.Parse(cfg.ProxyURL)
	if cfg.ProxyURL != "" && err == nil && parsedProxy.User != nil && cfg.ProxyUsername == "" {
		cfg.ProxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			cfg.ProxyPassword = password
		}
		parsedProxy.User = nil
		cfg.ProxyURL = parsedProxy.String()
	}
	return cfg, cfg.Validate()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFatal)
	}
}

// flagAliases maps alternate spellings onto registered flag names.
func flagAliases(f *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "concurrency":
		name = "connections"
	}
	return pflag.NormalizedName(name)
}

func init() {
	defaults := config.Default()
	rootCmd.Flags().SetNormalizeFunc(flagAliases)
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (inferred from the URL if not provided)")
	rootCmd.Flags().IntVarP(&segments, "segments", "s", defaults.Segments, "Number of byte-range segments")
	rootCmd.Flags().IntVarP(&concurrency, "connections", "c", defaults.Concurrency, "Maximum segments downloaded at once (alias --concurrency)")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", defaults.Timeout, "Connection and response header timeout (eg. 5s, 10m)")
	rootCmd.Flags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", defaults.KATimeout, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.Flags().StringVarP(&userAgent, "user-agent", "a", defaults.UserAgent, "User agent ('randomize' picks a browser agent)")
	rootCmd.Flags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.Flags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.Flags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Disable the live progress display")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default $SPLITDL_CONFIG_FILE or <user config dir>/splitdl.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCleanCmd())
}
