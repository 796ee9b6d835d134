package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeafMist/noise-to-signal/internal/config"
	"github.com/DeafMist/noise-to-signal/internal/document"
	"github.com/DeafMist/noise-to-signal/internal/models"
	"github.com/DeafMist/noise-to-signal/internal/store"
	"github.com/DeafMist/noise-to-signal/internal/summarize"
)

func (a *app) documentCmd() *cobra.Command {
	var title, url, out string
	cmd := &cobra.Command{
		Use:   "document [file]",
		Short: "Wrap plain text into a document:v1 record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.readInput(argOrEmpty(args))
			if err != nil {
				return err
			}
			doc, err := document.New(string(text), title, url, a.now())
			if err != nil {
				return err
			}
			return a.emit(out, doc)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Document title")
	cmd.Flags().StringVar(&url, "url", "", "Source URL")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func (a *app) ingestCmd() *cobra.Command {
	var out, payloadOut string
	cmd := &cobra.Command{
		Use:   "ingest <url>",
		Short: "Fetch a web page and emit its text as a document:v1 record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.ingest(cmd.Context(), args[0], payloadOut)
			if err != nil {
				return err
			}
			return a.emit(out, doc)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&payloadOut, "payload", "", "Also write the raw ingest payload here")
	return cmd
}

func (a *app) analyzeCmd() *cobra.Command {
	var out string
	var entityModel bool
	cmd := &cobra.Command{
		Use:   "analyze [document.json]",
		Short: "Analyze a document:v1 record into analysis:v1",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.readInput(argOrEmpty(args))
			if err != nil {
				return err
			}
			analyzer, err := a.newAnalyzer(entityModel)
			if err != nil {
				return err
			}
			analysis, err := analyzer.AnalyzeJSON(data)
			if err != nil {
				return err
			}
			a.logAnalysis(analysis)
			return a.emit(out, analysis)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&entityModel, "entity-model", false, "Tag entities with the language model, falling back to heuristics")
	return cmd
}

func (a *app) summarizeCmd() *cobra.Command {
	var out string
	var opts summarize.Options
	cmd := &cobra.Command{
		Use:   "summarize [analysis.json]",
		Short: "Explain an analysis:v1 record with the language model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.readInput(argOrEmpty(args))
			if err != nil {
				return err
			}
			var analysis models.Analysis
			if err := json.Unmarshal(data, &analysis); err != nil {
				return fmt.Errorf("decode analysis: %w", err)
			}

			text, err := a.summarize(cmd.Context(), analysis, opts)
			if err != nil {
				return err
			}
			return a.writeOutput(out, []byte(text+"\n"))
		},
	}
	addSummaryFlags(cmd, &opts)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	var (
		dir         string
		title       string
		skipSummary bool
		entityModel bool
		persist     bool
		opts        summarize.Options
	)
	cmd := &cobra.Command{
		Use:   "run <file|url|->",
		Short: "Run the whole pipeline and write every artifact to a directory",
		Long: `run writes document.json and analysis.json to --dir, then llm_output.txt
or llm_output.html unless --skip-summary is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var doc models.Document
			var err error
			if isURL(args[0]) {
				doc, err = a.ingest(ctx, args[0], "")
			} else {
				var text []byte
				if text, err = a.readInput(args[0]); err == nil {
					doc, err = document.New(string(text), title, "", a.now())
				}
			}
			if err != nil {
				return err
			}
			if err := document.WriteJSON(filepath.Join(dir, "document.json"), doc); err != nil {
				return err
			}

			analyzer, err := a.newAnalyzer(entityModel)
			if err != nil {
				return err
			}
			analysis, err := analyzer.Analyze(doc)
			if err != nil {
				return err
			}
			a.logAnalysis(analysis)
			if err := document.WriteJSON(filepath.Join(dir, "analysis.json"), analysis); err != nil {
				return err
			}

			if persist {
				if err := a.persist(ctx, doc, analysis); err != nil {
					return err
				}
			}

			if skipSummary {
				fmt.Fprintln(cmd.OutOrStdout(), dir)
				return nil
			}
			text, err := a.summarize(ctx, analysis, opts)
			if err != nil {
				return err
			}
			name := "llm_output.txt"
			if opts.Format == "html" {
				name = "llm_output.html"
			}
			if err := os.WriteFile(filepath.Join(dir, name), []byte(text+"\n"), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "out", "Directory for the artifacts")
	cmd.Flags().StringVar(&title, "title", "", "Document title for text input")
	cmd.Flags().BoolVar(&skipSummary, "skip-summary", false, "Stop after analysis.json")
	cmd.Flags().BoolVar(&entityModel, "entity-model", false, "Tag entities with the language model, falling back to heuristics")
	cmd.Flags().BoolVar(&persist, "store", false, "Also record the event in the SQLite store (SQLITE_PATH)")
	addSummaryFlags(cmd, &opts)
	return cmd
}

func addSummaryFlags(cmd *cobra.Command, opts *summarize.Options) {
	cmd.Flags().StringVar(&opts.Tier, "tier", "tier1", "Explanation depth: tier1 or tier2")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "Output format: text or html")
	cmd.Flags().StringVar(&opts.Length, "length", "short", "Output length: short, medium or long")
}

func (a *app) ingest(ctx context.Context, url, payloadOut string) (models.Document, error) {
	payload, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return models.Document{}, err
	}
	a.log.Info("ingested page",
		slog.String("url", payload.URL),
		slog.Int("html_bytes", payload.HTMLBytes),
		slog.String("hash", payload.Hash),
	)
	if payloadOut != "" {
		if err := document.WriteJSON(payloadOut, payload); err != nil {
			return models.Document{}, err
		}
	}
	return payload.Document()
}

func (a *app) summarize(ctx context.Context, analysis models.Analysis, opts summarize.Options) (string, error) {
	gen, cfg, err := a.generator()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	return summarize.NewService(gen, a.log).Summarize(ctx, analysis, opts)
}

func (a *app) persist(ctx context.Context, doc models.Document, analysis models.Analysis) error {
	events, err := store.Open(config.LoadCommon().SQLitePath)
	if err != nil {
		return err
	}
	defer events.Close()

	source := "cli"
	if doc.Meta.URL != nil {
		source = *doc.Meta.URL
	}
	ev, err := events.Save(ctx, doc.Content.Text, source, analysis)
	if err != nil {
		return err
	}
	a.log.Info("event stored", slog.String("event_id", ev.ID), slog.String("label", ev.Label))
	return nil
}

func (a *app) emit(out string, v any) error {
	data, err := document.Marshal(v)
	if err != nil {
		return err
	}
	return a.writeOutput(out, data)
}

func (a *app) logAnalysis(analysis models.Analysis) {
	a.log.Info("analysis complete",
		slog.String("hash", analysis.Hash),
		slog.Int("words", analysis.Stats.Words),
		slog.Int("sections", len(analysis.Sections)),
		slog.Float64("stance_index", analysis.Modality.StanceIndex),
		slog.Duration("reading_time", time.Duration(analysis.Stats.ReadingMinutes*float64(time.Minute))),
	)
}
