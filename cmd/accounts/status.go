// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// ProbeStatus is the result of one health probe.
type ProbeStatus struct {
	Probe  string `json:"probe"`
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd(opts *rootOptions) *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running accounts service",
		Long: `Query the liveness and readiness probes of a running accounts
service on its metrics address. Exits non-zero when the service is not ready.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := opts.loadConfig(cmd, false)
			if err != nil {
				return err
			}
			if conf.Metrics.Addr == "" {
				return oops.Code("CONFIG_INVALID").With("field", "metrics.addr").
					Errorf("metrics address is disabled; nothing to query")
			}
			return runStatus(cmd.Context(), cmd, conf.Metrics.Addr, cfg)
		},
	}
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "probe timeout")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, addr string, cfg *statusConfig) error {
	client := &http.Client{Timeout: cfg.timeout}
	base := "http://" + probeHost(addr)
	statuses := []ProbeStatus{
		queryProbe(ctx, client, "liveness", base+"/healthz/liveness"),
		queryProbe(ctx, client, "readiness", base+"/healthz/readiness"),
	}

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		for _, s := range statuses {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), formatProbe(s))
		}
	}

	for _, s := range statuses {
		if !s.OK {
			return oops.Code("SERVICE_NOT_READY").With("probe", s.Probe).Errorf("accounts service is not ready")
		}
	}
	return nil
}

func queryProbe(ctx context.Context, client *http.Client, name, url string) ProbeStatus {
	status := ProbeStatus{Probe: name, URL: url}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp, err := client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	status.Status = resp.StatusCode
	status.OK = resp.StatusCode == http.StatusOK
	return status
}

func formatProbe(s ProbeStatus) string {
	switch {
	case s.OK:
		return fmt.Sprintf("%-10s ok", s.Probe)
	case s.Error != "":
		return fmt.Sprintf("%-10s down (%s)", s.Probe, s.Error)
	default:
		return fmt.Sprintf("%-10s failing (HTTP %d)", s.Probe, s.Status)
	}
}

// probeHost turns a listen address into a dialable one: ":9101" becomes
// "localhost:9101".
func probeHost(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
