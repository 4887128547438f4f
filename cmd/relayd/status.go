package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/relayd/internal/agent"
)

func statusCmd(gf *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the status of a running agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := gf.load()
				if err != nil {
					return err
				}
				addr = localAddr(cfg.Status.Host, cfg.Status.Port)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			snap, err := fetchStatus(ctx, addr)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), snap)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Status server address (defaults to the configured one)")
	return cmd
}

// localAddr maps a wildcard listen host to loopback.
func localAddr(host string, port int) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func fetchStatus(ctx context.Context, addr string) (*agent.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent not reachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed: %s", resp.Status)
	}

	var snap agent.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("invalid status response: %w", err)
	}
	return &snap, nil
}

func printStatus(w io.Writer, s *agent.Snapshot) {
	desired := "unknown"
	if s.DesiredOn != nil {
		desired = onOff(*s.DesiredOn)
	}

	rows := [][2]string{
		{"phase", s.Phase},
		{"link", s.LinkState},
		{"ssid", s.SSID},
		{"ip", s.IP},
		{"mac", s.MAC},
		{"access point", fmt.Sprintf("%t (persistent %t)", s.APActive, s.APPersistent)},
		{"server", s.ServerURL},
		{"device id", fmt.Sprintf("%d", s.DeviceID)},
		{"token", s.Token},
		{"relay", onOff(s.RelayOn)},
		{"desired", desired},
		{"polarity", s.Polarity},
		{"force off", fmt.Sprintf("%t", s.ForceOff)},
		{"poll interval", (time.Duration(s.PollIntervalMs) * time.Millisecond).String()},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%-14s %s\n", row[0]+":", row[1])
	}

	keys := make([]string, 0, len(s.LastErrors))
	for k := range s.LastErrors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-14s %s\n", "error "+k+":", s.LastErrors[k])
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
