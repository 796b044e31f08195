package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List threads with their last-answer previews",
	Run:   runThreads,
}

var threadsHistoryCmd = &cobra.Command{
	Use:   "history <thread-id>",
	Short: "Show a thread's message history",
	Args:  cobra.ExactArgs(1),
	Run:   runThreadsHistory,
}

func init() {
	threadsCmd.AddCommand(threadsHistoryCmd)
	rootCmd.AddCommand(threadsCmd)
}

func runThreads(cmd *cobra.Command, args []string) {
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
	printThreads(context.Background(), orch)
}

func runThreadsHistory(cmd *cobra.Command, args []string) {
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
	printMessages(context.Background(), orch, args[0])
}
