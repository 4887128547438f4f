package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/relayd/internal/app"
	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/ledger"
)

// The store commands work on the database directly and must not run while
// the agent is running: the agent holds its own copy of the preferences.

func provisionCmd(gf *globalFlags) *cobra.Command {
	var creds device.Credentials

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Write network and controller credentials to the durable store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.SSID == "" {
				return errors.New("--ssid is required")
			}

			cfg, err := gf.load()
			if err != nil {
				return err
			}
			store, events, database, err := app.OpenPrefs(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			stored, err := store.RewriteCredentials(creds)
			if err != nil {
				return err
			}
			if err := events.Append(ledger.EventCredentialsChanged, "cli", map[string]any{
				"ssid":       stored.SSID,
				"server_url": stored.ServerURL,
			}); err != nil {
				log.Warn().Err(err).Msg("Failed to record credentials change")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "saved ssid=%q server=%q, device identity cleared\n", stored.SSID, stored.ServerURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&creds.SSID, "ssid", "", "Network name")
	cmd.Flags().StringVar(&creds.Passphrase, "passphrase", "", "Network passphrase")
	cmd.Flags().StringVar(&creds.ServerURL, "server", "", "Controller base URL (keeps the current one when empty)")
	return cmd
}

func resetCmd(gf *globalFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the device identity, or every stored preference with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gf.load()
			if err != nil {
				return err
			}
			store, events, database, err := app.OpenPrefs(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			if all {
				if err := store.Reset(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "all preferences cleared")
			} else {
				if err := store.ClearIdentity(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "device identity cleared")
			}

			if err := events.Append(ledger.EventIdentityCleared, "cli", map[string]any{"all": all}); err != nil {
				log.Warn().Err(err).Msg("Failed to record reset")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Clear credentials, directives and calibration too")
	return cmd
}
