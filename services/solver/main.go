// Solver turns screenshots of a coding problem into a worked solution.
// A run walks a fixed chain of model calls:
//
//	extract problem → edge cases → solution insights → approach
//	  → code → complexity
//
// and streams an event after each step. A debug follow-up sends new
// screenshots of the candidate's code and test output together with the
// extracted problem and gets back an analysis and a fix.
//
// "solver serve" exposes REST + WebSocket for the UI and optionally mirrors
// events to RabbitMQ. "solver solve" and "solver debug" run once from the
// terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/forge-ai/solver/services/solver/internal"
	"github.com/forge-ai/solver/services/solver/internal/pipeline"
	"github.com/forge-ai/solver/services/solver/internal/provider"
	"github.com/forge-ai/solver/services/solver/internal/screenshot"
	"github.com/forge-ai/solver/shared/events"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "solver",
		Short:   "Screenshot to coding-solution pipeline",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			setupLogging()
		},
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST + WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := internal.ConfigFromEnv()
			ctx := cmd.Context()

			s, err := internal.NewService(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			printBanner()
			log.Info().
				Str("api_port", cfg.APIPort).
				Str("provider", cfg.Provider).
				Bool("amqp", cfg.AMQPURL != "").
				Msg("solver online")

			if err := s.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}

	var language string
	solveCmd := &cobra.Command{
		Use:   "solve [screenshot...]",
		Short: "Solve the problem shown in the given screenshots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := internal.ConfigFromEnv()
			if language == "" {
				language = cfg.Language
			}
			orch, images, printed, err := oneShot(cfg, args)
			if err != nil {
				return err
			}

			sol, err := orch.Solve(cmd.Context(), pipeline.SolveRequest{Images: images, Language: language})
			orch.Close()
			<-printed
			if err != nil {
				return err
			}
			fmt.Printf("\n```%s\n%s\n```\n\nTime:  %s\nSpace: %s\n", sol.Language, sol.Code, sol.TimeComplexity, sol.SpaceComplexity)
			return nil
		},
	}
	solveCmd.Flags().StringVarP(&language, "lang", "l", "", "solution language (default $LANGUAGE or python)")

	var problemFile, codeFile string
	debugCmd := &cobra.Command{
		Use:   "debug [screenshot...]",
		Short: "Review a candidate solution against new screenshots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := internal.ConfigFromEnv()
			if language == "" {
				language = cfg.Language
			}

			raw, err := os.ReadFile(problemFile)
			if err != nil {
				return fmt.Errorf("read problem: %w", err)
			}
			var problem events.ProblemInfo
			if err := json.Unmarshal(raw, &problem); err != nil {
				return fmt.Errorf("parse problem %s: %w", problemFile, err)
			}
			var previous string
			if codeFile != "" {
				b, err := os.ReadFile(codeFile)
				if err != nil {
					return fmt.Errorf("read code: %w", err)
				}
				previous = string(b)
			}

			orch, images, printed, err := oneShot(cfg, args)
			if err != nil {
				return err
			}

			res, err := orch.Debug(cmd.Context(), pipeline.DebugRequest{
				Problem:      problem,
				Images:       images,
				Language:     language,
				PreviousCode: previous,
			})
			orch.Close()
			<-printed
			if err != nil {
				return err
			}
			fmt.Printf("\n%s\n", res.DebugAnalysis)
			return nil
		},
	}
	debugCmd.Flags().StringVarP(&language, "lang", "l", "", "solution language (default $LANGUAGE or python)")
	debugCmd.Flags().StringVarP(&problemFile, "problem", "p", "", "JSON file with the extracted problem")
	debugCmd.Flags().StringVarP(&codeFile, "code", "c", "", "file with the current solution")
	debugCmd.MarkFlagRequired("problem")

	rootCmd.AddCommand(serveCmd, solveCmd, debugCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("solver exited")
		os.Exit(1)
	}
}

// setupLogging mirrors the service logger: console output unless LOG_JSON=1,
// debug level when DEBUG=1.
func setupLogging() {
	if os.Getenv("LOG_JSON") != "1" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// oneShot loads the screenshots and builds an orchestrator whose events are
// logged. printed closes after the run's terminal event is logged.
func oneShot(cfg internal.Config, paths []string) (*pipeline.Orchestrator, []provider.Image, <-chan struct{}, error) {
	registry, err := internal.NewRegistry(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	images, err := screenshot.New(cfg.MaxImageEdge).LoadFiles(paths)
	if err != nil {
		return nil, nil, nil, err
	}

	evs := make(chan events.RunEvent, 16)
	printed := make(chan struct{})
	orch := pipeline.NewOrchestrator(registry, evs)
	go func() {
		defer close(printed)
		for ev := range evs {
			printEvent(ev)
			if events.Terminal(ev.Kind) {
				return
			}
		}
	}()
	return orch, images, printed, nil
}

func printEvent(ev events.RunEvent) {
	e := log.Info().Str("queue", ev.Queue)
	switch p := ev.Payload.(type) {
	case events.ProblemExtractedPayload:
		e = e.Str("problem", firstLine(p.Problem.ProblemStatement))
	case events.EdgeCasesPayload:
		e = e.Strs("edge_cases", p.EdgeCases)
	case events.SolutionThinkingPayload:
		e = e.Strs("thoughts", p.Thoughts)
	case events.ApproachPayload:
		e = e.Strs("thoughts", p.Thoughts)
	case events.RunFailedPayload:
		e = log.Error().Str("stage", p.Stage).Str("classification", p.Classification).Str("reason", p.Message)
	case events.DebugFailedPayload:
		e = log.Error().Str("classification", p.Classification).Str("reason", p.Message)
	case events.RunCancelledPayload:
		e = log.Warn().Str("stage", p.Stage)
	}
	e.Msg(ev.Kind)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func printBanner() {
	log.Info().Msg("╔══════════════════════════════════════╗")
	log.Info().Msg("║  SOLVER  v0.1                        ║")
	log.Info().Msg("║  Screenshots → Coding Solutions      ║")
	log.Info().Msg("╚══════════════════════════════════════╝")
}
