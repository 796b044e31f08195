package cmd

import (
	"context"
	"fmt"
	"strings"

	"CorpusAgent/pkg/engine/runtime"

	"github.com/spf13/cobra"
)

var (
	askThreadFlag   string
	askNoStreamFlag bool
	askPreambleFlag string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a one-shot question about the corpus",
	Args:  cobra.MinimumNArgs(1),
	Run:   runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askThreadFlag, "thread", "", "Continue an existing thread")
	askCmd.Flags().BoolVar(&askNoStreamFlag, "no-stream", false, "Disable live provider event streaming")
	askCmd.Flags().StringVar(&askPreambleFlag, "preamble", "", "Preamble for a newly created thread")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	orch, err := newOrchestrator(cfg)
	if err != nil {
		fmt.Printf("Error initializing engine: %v\n", err)
		return
	}

	ctx := context.Background()
	question := strings.Join(args, " ")

	threadID := askThreadFlag
	if threadID == "" && askPreambleFlag != "" {
		t, err := orch.EnsureThread(ctx, "")
		if err != nil {
			fmt.Printf("Error creating thread: %v\n", err)
			return
		}
		if err := orch.SetPreamble(ctx, t.ThreadID, askPreambleFlag); err != nil {
			fmt.Printf("Error setting preamble: %v\n", err)
			return
		}
		threadID = t.ThreadID
	}

	result, err := runTurn(ctx, orch, runtime.TurnRequest{
		ThreadID:  threadID,
		UserText:  question,
		Streaming: !askNoStreamFlag,
	})
	if err != nil {
		fmt.Printf("\n❌ Error: %v\n", err)
		return
	}
	fmt.Printf("\nThread: %s\n", result.ThreadID)
}
