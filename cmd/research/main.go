package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/clients"
	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/config"
	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/research"
)

var (
	message        string
	maxLoops       int
	initialQueries int
	reasoningModel string
	jsonOutput     bool
)

func main() {
	cfg := config.Load()
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	rootCmd := &cobra.Command{
		Use:   "research",
		Short: "Answer a question with iterative grounded web research",
		Long:  `research generates search queries for a question, runs grounded Gemini searches, reflects on the gathered evidence and loops until the answer is sufficient or the loop limit is reached, then prints a cited answer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}

			if !cmd.Flags().Changed("message") {
				// Interactive Mode
				reader := bufio.NewReader(os.Stdin)
				fmt.Print("Enter research question: ")
				input, _ := reader.ReadString('\n')
				message = strings.TrimSpace(input)
			}
			if strings.TrimSpace(message) == "" {
				return research.ErrMissingMessage
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			llm, err := clients.GoogleAi(ctx, cfg)
			if err != nil {
				return err
			}
			searcher, err := clients.NewGeminiSearcher(ctx, cfg)
			if err != nil {
				return err
			}

			engine := research.NewEngine(cfg, clients.NewLangchainGenerator(llm), searcher, logger)
			engine.OnStateUpdate = func(st research.ResearchState) {
				logger.Info("Step complete", "phase", st.Phase, "loops", st.LoopCount, "findings", len(st.Findings))
			}

			result, err := engine.Run(ctx, research.Request{
				Message:                 message,
				MaxResearchLoops:        maxLoops,
				InitialSearchQueryCount: initialQueries,
				ReasoningModel:          reasoningModel,
			})
			if err != nil {
				return fmt.Errorf("research failed: %w", err)
			}

			return printResult(cmd, result.Response())
		},
	}

	rootCmd.Flags().StringVarP(&message, "message", "m", "", "The question to research")
	rootCmd.Flags().IntVar(&maxLoops, "loops", 0, "Maximum research loops (default from MAX_RESEARCH_LOOPS)")
	rootCmd.Flags().IntVar(&initialQueries, "queries", 0, "Initial search query count (default from INITIAL_SEARCH_QUERY_COUNT)")
	rootCmd.Flags().StringVar(&reasoningModel, "model", "", "Reasoning model used for reflection and the final answer")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full response as JSON")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func printResult(cmd *cobra.Command, resp research.Response) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintln(out, resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for i, s := range resp.Sources {
			fmt.Fprintf(out, "%d. %s - %s\n", i+1, s.Title, s.URL)
		}
	}
	fmt.Fprintf(out, "\nResearch loops completed: %d\n", resp.ResearchLoopsCompleted)
	return nil
}
