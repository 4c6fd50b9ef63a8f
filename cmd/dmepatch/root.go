package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"example.com/dmepatch/internal/catalog"
	"example.com/dmepatch/internal/common"
	"example.com/dmepatch/internal/config"
)

var (
	buildVersion = "dev"
	buildDate    = "unknown"
)

var (
	// Global flags
	verbose     bool
	quiet       bool
	jsonOut     bool
	configPath  string
	catalogPath string
	variant     string

	cfg       config.Config
	logCloser io.Closer
	activeCat *catalog.Catalog
)

var rootCmd = &cobra.Command{
	Use:   "dmepatch",
	Short: "Detect, check and patch MS43 DME firmware images",
	Long: `dmepatch identifies a Siemens MS43 firmware image by the version tag at
0x70040, reports whether each known modification site holds the original or
the patched bytes, and applies or reverts the whole modification set.
Every site is validated before the first byte is written.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
			logCloser = nil
		}
	},
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (built %s)", buildVersion, buildDate)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default "+config.DefaultPath+" if present)")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "Additional catalog YAML appended to the builtin sets")
	rootCmd.PersistentFlags().StringVar(&variant, "variant", "", "Hardware variant to use when a version exists in several")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var console io.Writer
	if verbose && !quiet {
		console = os.Stderr
	}
	switch {
	case cfg.Logs.Directory != "":
		logCloser, err = common.SetupLogging(cfg.Logs, "dmepatch", console)
		if err != nil {
			return fmt.Errorf("setup logging: %w", err)
		}
	case console != nil:
		common.SetLogOutput(console)
	default:
		common.SetLogOutput(io.Discard)
	}
	path := catalogPath
	if path == "" {
		path = cfg.Catalog
	}
	activeCat, err = catalog.Load(path)
	if err != nil {
		return err
	}
	if path != "" {
		common.Logf("catalog %s loaded, %d sets", path, activeCat.Len())
	}
	return nil
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v\n", err)
		os.Exit(1)
	}
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func readImage(path string) ([]byte, error) {
	printVerbose("Loading file: %s\n", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	printVerbose("Successfully read %s.\n", common.FormatBytes(int64(len(data))))
	common.Logf("read %s (%d bytes)", path, len(data))
	return data, nil
}

func currentCatalog() *catalog.Catalog {
	if activeCat == nil {
		return catalog.Default()
	}
	return activeCat
}
