// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/relay-dev/relay/internal/provider"
	"github.com/relay-dev/relay/internal/router"
	relayerr "github.com/relay-dev/relay/pkg/errors"
)

// submitFunc runs one job, locally or through a gateway.
type submitFunc func(ctx context.Context, job router.Job) (*router.Result, error)

func addSubmitFlags(cmd *cobra.Command) {
	cmd.Flags().String("gateway", "", "submit through a running gateway at host:port instead of routing locally")
	cmd.Flags().StringP("output", "o", "text", "output format: text or yaml")
}

// withSubmitter hands fn a submitter bound to --gateway when set, or to a
// locally wired engine sharing the configured health store.
func withSubmitter(cmd *cobra.Command, fn func(ctx context.Context, submit submitFunc) error) error {
	ctx := cmd.Context()

	if addr, _ := cmd.Flags().GetString("gateway"); addr != "" {
		return fn(ctx, newGatewayClient(addr).submit)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	eng, err := WireEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eng.Close(closeCtx); err != nil {
			slog.Warn("closing engine", "error", err)
		}
	}()

	return fn(ctx, eng.Router.Submit)
}

// jobReport is one routed job as printed by --output yaml.
type jobReport struct {
	Source    string  `yaml:"source"`
	Provider  string  `yaml:"provider"`
	LatencyMs int64   `yaml:"latency_ms"`
	Cost      float64 `yaml:"cost"`
	Attempts  int     `yaml:"attempts"`
	Output    string  `yaml:"output"`
}

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <file>...",
		Short: "Extract text from documents",
		Long: "Route a text extraction job for each file. Several files are sent as consecutive " +
			"chunks of one document, in the order given.",
		Args: cobra.MinimumNArgs(1),
		RunE: runExtract,
	}
	addSubmitFlags(cmd)
	cmd.Flags().String("media-type", "", "override the detected media type")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	override, _ := cmd.Flags().GetString("media-type")
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	jobs := make([]router.Job, len(args))
	for i, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return relayerr.Errorf(relayerr.CodeCLIInputInvalid, "reading %s: %w", path, err)
		}
		req := provider.ExtractRequest{Content: content, MediaType: override}
		if req.MediaType == "" {
			req.MediaType = detectMediaType(content)
		}
		if len(args) > 1 {
			req.Chunk = &provider.ChunkInfo{Index: i, Total: len(args)}
		}
		jobs[i] = router.ExtractJob(req)
	}

	return withSubmitter(cmd, func(ctx context.Context, submit submitFunc) error {
		reports := make([]jobReport, 0, len(jobs))
		for i, job := range jobs {
			res, err := submit(ctx, job)
			if err != nil {
				return describeJobError(args[i], err)
			}
			reports = append(reports, newJobReport(args[i], res))
			slog.Debug("chunk extracted", "file", args[i], "provider", res.Provider, "latency_ms", res.LatencyMs)
		}
		return printReports(cmd.OutOrStdout(), format, reports)
	})
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze extracted text",
		Long:  "Route a content analysis job for the text in file. Use - to read from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	addSubmitFlags(cmd)
	cmd.Flags().String("document-type", "", "document type hint, e.g. invoice")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	docType, _ := cmd.Flags().GetString("document-type")
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	var text []byte
	if args[0] == "-" {
		text, err = io.ReadAll(cmd.InOrStdin())
	} else {
		text, err = os.ReadFile(args[0])
	}
	if err != nil {
		return relayerr.Errorf(relayerr.CodeCLIInputInvalid, "reading %s: %w", args[0], err)
	}

	job := router.AnalyzeJob(provider.AnalyzeRequest{Text: string(text), DocumentType: docType})
	return withSubmitter(cmd, func(ctx context.Context, submit submitFunc) error {
		res, err := submit(ctx, job)
		if err != nil {
			return describeJobError(args[0], err)
		}
		return printReports(cmd.OutOrStdout(), format, []jobReport{newJobReport(args[0], res)})
	})
}

// detectMediaType sniffs content and drops MIME parameters such as charset.
func detectMediaType(content []byte) string {
	mt, _, _ := strings.Cut(mimetype.Detect(content).String(), ";")
	return strings.TrimSpace(mt)
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("output")
	switch format {
	case "text", "yaml":
		return format, nil
	}
	return "", relayerr.Errorf(relayerr.CodeCLIInputInvalid, "unknown output format %q (want text or yaml)", format)
}

func newJobReport(source string, res *router.Result) jobReport {
	return jobReport{
		Source:    source,
		Provider:  res.Provider,
		LatencyMs: res.LatencyMs,
		Cost:      res.Cost,
		Attempts:  res.Attempts,
		Output:    res.Output,
	}
}

func printReports(w io.Writer, format string, reports []jobReport) error {
	if format == "yaml" {
		return yaml.NewEncoder(w).Encode(reports)
	}

	for _, r := range reports {
		if _, err := fmt.Fprintln(w, r.Output); err != nil {
			return err
		}
	}
	for _, r := range reports {
		if _, err := fmt.Fprintf(w, "# %s: %s, %dms, $%.6f, %d attempt(s)\n",
			r.Source, r.Provider, r.LatencyMs, r.Cost, r.Attempts); err != nil {
			return err
		}
	}
	return nil
}

// describeJobError adds the source file and, on exhaustion, the last
// provider error to a routing failure.
func describeJobError(source string, err error) error {
	switch relayerr.CodeOf(err) {
	case relayerr.CodeRouterNoProviders:
		return relayerr.New(relayerr.CodeRouterNoProviders, source+": no healthy providers")
	case relayerr.CodeRouterExhausted:
		last := relayerr.StringField(err, "last_error")
		return relayerr.New(relayerr.CodeRouterExhausted,
			fmt.Sprintf("%s: all providers failed (last error: %s)", source, last),
			relayerr.FieldLastError(last))
	}
	return fmt.Errorf("%s: %w", source, err)
}
