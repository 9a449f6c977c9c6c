package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tariel-x/affiliates/internal/backfill"
	"github.com/tariel-x/affiliates/internal/handlers"
	"github.com/tariel-x/affiliates/internal/leaderboard"
	"github.com/tariel-x/affiliates/internal/monthkey"
	"github.com/tariel-x/affiliates/internal/payout"

	"github.com/spf13/cobra"
)

func newBackfillCmd(a *app) *cobra.Command {
	var guildID string
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Store every current member of the community",
		RunE: func(cmd *cobra.Command, args []string) error {
			if guildID == "" {
				guildID = a.cfg.GuildID
			}
			if guildID == "" {
				return errors.New("--guild or AFFILIATE_GUILD_ID is required")
			}

			c, err := a.openCore()
			if err != nil {
				return err
			}
			defer c.close()

			_, client, err := a.discordClient()
			if err != nil {
				return err
			}

			n, err := backfill.New(client, c.store, a.cfg.BackfillBatchSize, a.logger).Run(cmd.Context(), guildID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backfilled %d members\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "community id (defaults to AFFILIATE_GUILD_ID)")
	return cmd
}

func newDispatchCmd(a *app) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Send the payout summaries of a closed month",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.openCore()
			if err != nil {
				return err
			}
			defer c.close()

			if month == "" {
				month, err = c.months.Previous(c.months.ForInstant(time.Now()))
				if err != nil {
					return err
				}
			}
			if _, err := monthkey.Parse(month); err != nil {
				return err
			}

			_, client, err := a.discordClient()
			if err != nil {
				return err
			}

			report, err := payout.NewDispatcher(c.aggregator, c.store, client, a.logger).Dispatch(cmd.Context(), month)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: eligible=%d sent=%d skipped=%d failed=%d\n",
				report.Month, report.Eligible, report.Sent, report.Skipped, report.Failed)
			return err
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month key YYYY-MM (defaults to the previous month)")
	return cmd
}

func newLeaderboardCmd(a *app) *cobra.Command {
	var (
		month  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the leaderboards of a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.openCore()
			if err != nil {
				return err
			}
			defer c.close()

			if month == "" {
				month = c.months.ForInstant(time.Now())
			}
			boards, err := c.aggregator.BuildLeaderboards(cmd.Context(), month)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(boards)
			}
			fmt.Fprintln(cmd.OutOrStdout(), leaderboard.RenderLive(boards))
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month key YYYY-MM (defaults to the current month)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of the rendered message")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	var (
		adminID string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.EnsureKeys(a.logger); err != nil {
				return err
			}
			token, err := handlers.GenerateToken(a.cfg.JWTSecret, adminID, time.Now(), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&adminID, "admin", "", "admin id stored in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime, 0 for no expiry")
	_ = cmd.MarkFlagRequired("admin")
	return cmd
}
