package cmd

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"CorpusAgent/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Global flags
var (
	configFlag string
	modelFlag  string
	corpusFlag string
	stateFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "corpusagent",
	Short: "Corpus Agent - a tool-using agent over a local document corpus",
	Long: `Corpus Agent answers questions about a local document corpus by driving a
remote reasoning agent through read-only retrieval tools (search, read,
list). Conversation history is persisted remotely per thread; turn records
and thread metadata are kept locally.

Global Flags:
  --config     Path to config file (default: corpusagent.yaml if present)
  --model      Agent model to use
  --corpus     Corpus root directory
  --state-dir  Local state directory (threads, turn logs)`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Agent model to use")
	rootCmd.PersistentFlags().StringVar(&corpusFlag, "corpus", "", "Corpus root directory")
	rootCmd.PersistentFlags().StringVar(&stateFlag, "state-dir", "", "Local state directory")
}

// Execute runs the root command.
func Execute() {
	// .env is optional; shell environment always wins.
	_ = godotenv.Load()

	logPath := fmt.Sprintf("workspace/logs/%s.log", time.Now().Format("20060102"))
	level := logger.INFO
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		level = logger.DEBUG
	case "WARN":
		level = logger.WARN
	case "ERROR":
		level = logger.ERROR
	}
	if err := logger.Init(logPath, level, "corpus-agent"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logger: %v\n", err)
	}

	logger.Info("System", "Corpus Agent Starting", map[string]interface{}{
		"version": "1.0.0",
		"os":      runtime.GOOS,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
