package cmd

import (
	"context"
	"fmt"
	"strings"

	"CorpusAgent/cmd/ui"
	"CorpusAgent/pkg/engine/runtime"

	"github.com/spf13/cobra"
)

var (
	listThreadsFlag  bool
	chatPreambleFlag string
	chatNoStreamFlag bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [thread-id]",
	Short: "Start an interactive chat over the corpus",
	Run:   runChat,
}

func init() {
	chatCmd.Flags().BoolVarP(&listThreadsFlag, "list", "l", false, "List all threads")
	chatCmd.Flags().StringVar(&chatPreambleFlag, "preamble", "", "Preamble for a new thread")
	chatCmd.Flags().BoolVar(&chatNoStreamFlag, "no-stream", false, "Disable live provider event streaming")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) {
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

	if listThreadsFlag {
		printThreads(ctx, orch)
		return
	}

	threadID := ""
	if len(args) > 0 {
		threadID = args[0]
		if _, err := orch.EnsureThread(ctx, threadID); err != nil {
			fmt.Printf("Thread '%s' not found, starting a new thread...\n", threadID)
			threadID = ""
		}
	}

	if threadID == "" {
		t, err := orch.EnsureThread(ctx, "")
		if err != nil {
			fmt.Printf("Error creating thread: %v\n", err)
			return
		}
		threadID = t.ThreadID
		if chatPreambleFlag != "" {
			if err := orch.SetPreamble(ctx, threadID, chatPreambleFlag); err != nil {
				fmt.Printf("Warning: failed to set preamble: %v\n", err)
			}
		}
	}

	printChatBanner(threadID, cfg.CorpusRoot)

	// Initialize history manager
	historyMgr, err := NewHistoryManager(cfg.StateDir)
	if err != nil {
		fmt.Printf("Warning: Failed to initialize history: %v\n", err)
	}

	var inputHistory []string
	if historyMgr != nil {
		if stored, err := historyMgr.Load(); err == nil {
			inputHistory = stored
		}
	}

	for {
		in, err := ui.ReadInputWithHistory("\n💬 You: ", inputHistory)
		if err != nil {
			fmt.Printf("Input error: %v\n", err)
			return
		}
		if in.Cancelled {
			return
		}

		text := strings.TrimSpace(in.Value)
		if text == "" {
			continue
		}

		if len(inputHistory) == 0 || inputHistory[len(inputHistory)-1] != text {
			inputHistory = append(inputHistory, text)
			if historyMgr != nil {
				go func(t string) {
					_ = historyMgr.Append(t)
				}(text)
			}
		}

		switch strings.ToLower(text) {
		case "/quit", "/exit", "/q":
			fmt.Println("\nGoodbye.")
			return
		case "/help", "/?":
			fmt.Println("\nCommands:")
			fmt.Println("  /history   Show this thread's message history")
			fmt.Println("  /threads   List all threads")
			fmt.Println("  /help      Show help")
			fmt.Println("  /quit      Exit")
			continue
		case "/threads":
			printThreads(ctx, orch)
			continue
		case "/history":
			printMessages(ctx, orch, threadID)
			continue
		}

		if _, err := runTurn(ctx, orch, runtime.TurnRequest{
			ThreadID:  threadID,
			UserText:  text,
			Streaming: !chatNoStreamFlag,
		}); err != nil {
			fmt.Printf("\n❌ Error: %v\n", err)
		}
	}
}

func printThreads(ctx context.Context, orch *runtime.Orchestrator) {
	threads, err := orch.ListThreads(ctx)
	if err != nil {
		fmt.Printf("Error listing threads: %v\n", err)
		return
	}
	if len(threads) == 0 {
		fmt.Println("No threads found.")
		return
	}

	fmt.Println("\n📂 Threads:")
	for _, t := range threads {
		preview := t.Preview
		if preview == "" {
			preview = "(no answer yet)"
		}
		fmt.Printf("  %s - %s - %s\n", t.ThreadID, t.UpdatedAt.Format("2006-01-02 15:04"), preview)
	}
	fmt.Println("\nResume with: corpusagent chat <thread-id>")
}

func printMessages(ctx context.Context, orch *runtime.Orchestrator, threadID string) {
	items, err := orch.ThreadMessages(ctx, threadID)
	if err != nil {
		fmt.Printf("Error reading history: %v\n", err)
		return
	}
	if len(items) == 0 {
		fmt.Println("No messages yet.")
		return
	}
	fmt.Println()
	for _, it := range items {
		icon := "💬"
		if it.Role == "assistant" {
			icon = "🤖"
		}
		fmt.Printf("%s %s: %s\n", icon, it.Role, it.Text)
	}
}

func printChatBanner(threadID, corpusRoot string) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    📚 Corpus Agent Chat                       ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Thread: %-53s ║\n", threadID)
	fmt.Printf("║  Corpus: %-53s ║\n", truncateLabel(corpusRoot, 53))
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  Commands:                                                    ║")
	fmt.Println("║    /history   Show this thread's message history              ║")
	fmt.Println("║    /threads   List all threads                                ║")
	fmt.Println("║    /quit      Exit                                            ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  Tips:                                                        ║")
	fmt.Println("║    • Ctrl+J to insert newline, Enter to send                  ║")
	fmt.Println("║    • Press ESC twice to interrupt a running turn              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
}

func truncateLabel(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-(max-3):]
}
