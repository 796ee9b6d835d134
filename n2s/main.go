package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeafMist/noise-to-signal/internal/config"
	"github.com/DeafMist/noise-to-signal/internal/ingest"
	"github.com/DeafMist/noise-to-signal/internal/logger"
	"github.com/DeafMist/noise-to-signal/internal/models"
	"github.com/DeafMist/noise-to-signal/internal/processing"
	"github.com/DeafMist/noise-to-signal/internal/summarize"
)

// app carries what every subcommand shares. Tests swap the streams, the
// clock and the generator factory.
type app struct {
	log       *slog.Logger
	stdin     io.Reader
	stdout    io.Writer
	now       func() time.Time
	fetcher   *ingest.Fetcher
	generator func() (summarize.Generator, *config.Summarizer, error)
}

func main() {
	a := &app{
		log:       logger.NewWithWriter(os.Stderr, "n2s", os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")),
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		now:       time.Now,
		fetcher:   ingest.NewFetcher(),
		generator: anthropicGenerator,
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "n2s",
		Short:         "Turn raw text into a structured analysis",
		Long:          `n2s wraps text or web pages into document:v1 records, analyzes them into analysis:v1 records and optionally explains the result with a language model.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)

	root.AddCommand(
		a.documentCmd(),
		a.ingestCmd(),
		a.analyzeCmd(),
		a.summarizeCmd(),
		a.runCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "n2s %s (%s)\n", models.AnalysisVersion, ingest.Version)
			},
		},
	)
	return root
}

func anthropicGenerator() (summarize.Generator, *config.Summarizer, error) {
	cfg, err := config.LoadSummarizer()
	if err != nil {
		return nil, nil, err
	}
	gen, err := summarize.NewAnthropicGenerator(cfg)
	if err != nil {
		return nil, nil, err
	}
	return gen, cfg, nil
}

// newAnalyzer builds the analyzer from NLP_* settings. With entityModel set,
// entities come from the language model and fall back to the heuristics.
func (a *app) newAnalyzer(entityModel bool) (*processing.Analyzer, error) {
	cfg, err := config.LoadPipeline()
	if err != nil {
		return nil, err
	}
	if !entityModel {
		return processing.FromPipeline(cfg)
	}

	lex, err := processing.LoadLexicon(cfg.LexiconFile)
	if err != nil {
		return nil, err
	}
	gen, scfg, err := a.generator()
	if err != nil {
		return nil, fmt.Errorf("entity model: %w", err)
	}
	recognizer := processing.ModelRecognizer{
		Model:    summarize.EntityModel{Gen: gen, Timeout: scfg.Timeout, MaxChars: 8000},
		Fallback: processing.HeuristicRecognizer{Lexicon: lex},
	}
	opts := append(processing.PipelineOptions(cfg, lex), processing.WithRecognizer(recognizer))
	return processing.NewAnalyzer(opts...), nil
}

// readInput reads a file, or stdin when path is "-" or empty.
func (a *app) readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(a.stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// writeOutput writes data to path, or stdout when path is "-" or empty.
func (a *app) writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := a.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func argOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
