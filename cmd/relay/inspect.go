// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/relay-dev/relay/internal/config"
	"github.com/relay-dev/relay/internal/provider"
	"github.com/relay-dev/relay/internal/router"
	"github.com/relay-dev/relay/internal/server"
	"github.com/relay-dev/relay/internal/store"
	relayerr "github.com/relay-dev/relay/pkg/errors"
	"github.com/relay-dev/relay/pkg/health"
)

// nowFunc is the clock used to compute cooldown state for display.
var nowFunc = time.Now

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// withStore runs fn against the configured store without wiring providers.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, st store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("closing store", "error", err)
		}
	}()
	return fn(cmd.Context(), cfg, st)
}

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health [provider]",
		Short: "Show provider health",
		Long:  "Print the stored health of every configured provider, or of one provider, as YAML.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHealth,
	}
	cmd.Flags().String("gateway", "", "read from a running gateway at host:port instead of the local store")
	return cmd
}

func runHealth(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if addr, _ := cmd.Flags().GetString("gateway"); addr != "" {
		gw := newGatewayClient(addr)
		if len(args) == 1 {
			var detail server.ProviderHealthDetail
			if err := gw.getJSON(cmd.Context(), "/api/v1/providers/"+url.PathEscape(args[0])+"/health", &detail); err != nil {
				return err
			}
			return writeYAML(out, []server.ProviderHealthDetail{detail})
		}
		var body struct {
			Providers []server.ProviderHealthDetail `json:"providers"`
		}
		if err := gw.getJSON(cmd.Context(), "/api/v1/providers/health", &body); err != nil {
			return err
		}
		return writeYAML(out, body.Providers)
	}

	return withStore(cmd, func(ctx context.Context, cfg *config.Config, st store.Store) error {
		names := cfg.ProviderNames()
		if len(args) == 1 {
			if !slices.Contains(names, args[0]) {
				return fmt.Errorf("provider %q is not configured (configured: %v)", args[0], names)
			}
			names = args[:1]
		}

		records, err := st.Health().Get(ctx, names)
		if err != nil {
			return err
		}
		now := nowFunc()
		details := make([]server.ProviderHealthDetail, 0, len(names))
		for _, name := range names {
			rec, ok := records[name]
			if !ok {
				rec = health.Healthy(name)
			}
			details = append(details, server.NewProviderHealthDetail(rec, now))
		}
		return writeYAML(out, details)
	})
}

// routePlan explains which providers a job of one type would try.
type routePlan struct {
	JobType    string         `yaml:"job_type"`
	Order      []string       `yaml:"order"`
	Candidates []string       `yaml:"candidates"`
	Skipped    []skippedRoute `yaml:"skipped,omitempty"`
}

type skippedRoute struct {
	Provider      string    `yaml:"provider"`
	CooldownUntil time.Time `yaml:"cooldown_until"`
}

func newRouteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route <job-type>",
		Short: "Show the providers a job would try",
		Long: "Print the configured order for a job type (extract_text or analyze_content) and the " +
			"providers currently eligible, after skipping those in cooldown.",
		Args: cobra.ExactArgs(1),
		RunE: runRoute,
	}
}

func runRoute(cmd *cobra.Command, args []string) error {
	jobType, err := router.ParseJobType(args[0])
	if err != nil {
		return err
	}

	return withStore(cmd, func(ctx context.Context, cfg *config.Config, st store.Store) error {
		order := cfg.Orders()[jobType]
		r, err := router.New(router.Config{
			Orders:   cfg.Orders(),
			Adapters: noAdapters{},
			Health:   st.Health(),
			Recorder: noRecorder{},
			Now:      nowFunc,
		})
		if err != nil {
			return err
		}

		candidates, err := r.Candidates(ctx, jobType)
		if err != nil {
			return err
		}
		plan := routePlan{JobType: string(jobType), Order: order, Candidates: candidates}
		if plan.Candidates == nil {
			plan.Candidates = []string{}
		}

		records, err := st.Health().Get(ctx, order)
		if err != nil {
			return err
		}
		for _, name := range order {
			if slices.Contains(candidates, name) {
				continue
			}
			skip := skippedRoute{Provider: name}
			if rec, ok := records[name]; ok && rec.CooldownUntil != nil {
				skip.CooldownUntil = rec.CooldownUntil.UTC()
			}
			plan.Skipped = append(plan.Skipped, skip)
		}

		return writeYAML(cmd.OutOrStdout(), plan)
	})
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent jobs",
		Long:  "Print recent entries of the job log, newest first, as YAML.",
		Args:  cobra.NoArgs,
		RunE:  runJobs,
	}
	cmd.Flags().Int("limit", 20, "maximum number of entries")
	cmd.Flags().String("job-type", "", "only jobs of this type")
	cmd.Flags().String("provider", "", "only jobs completed by this provider")
	cmd.Flags().String("gateway", "", "read from a running gateway at host:port instead of the local store")
	return cmd
}

func runJobs(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	jobType, _ := cmd.Flags().GetString("job-type")
	prov, _ := cmd.Flags().GetString("provider")
	filter := store.JobFilter{JobType: jobType, Provider: prov, Limit: limit}

	if addr, _ := cmd.Flags().GetString("gateway"); addr != "" {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(filter.EffectiveLimit()))
		if jobType != "" {
			q.Set("job_type", jobType)
		}
		if prov != "" {
			q.Set("provider", prov)
		}
		var body struct {
			Jobs []*store.JobEntry `json:"jobs"`
		}
		if err := newGatewayClient(addr).getJSON(cmd.Context(), "/api/v1/jobs?"+q.Encode(), &body); err != nil {
			return err
		}
		return writeYAML(cmd.OutOrStdout(), body.Jobs)
	}

	return withStore(cmd, func(ctx context.Context, _ *config.Config, st store.Store) error {
		entries, err := st.Jobs().Query(ctx, filter)
		if err != nil {
			return err
		}
		if entries == nil {
			entries = []*store.JobEntry{}
		}
		return writeYAML(cmd.OutOrStdout(), entries)
	})
}

// noAdapters and noRecorder let route build a router that only plans.
type noAdapters struct{}

func (noAdapters) Get(name string) (provider.Adapter, error) {
	return nil, relayerr.Errorf(relayerr.CodeProviderNotFound, "provider %q is not wired for planning", name)
}

type noRecorder struct{}

func (noRecorder) RecordAttempt(context.Context, health.Outcome) {}
func (noRecorder) RecordJob(context.Context, store.JobEntry)     {}
