package cli

import (
	"fmt"
	"time"

	service "github.com/okian/skillrank/internal/app"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/spf13/cobra"
)

func newLeaderboardCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the ranked leaderboard for a scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.validateOutput(); err != nil {
				return err
			}
			scope, err := scopeFlag(cmd)
			if err != nil {
				return err
			}
			minGames, err := cmd.Flags().GetInt("min-games")
			if err != nil {
				return fmt.Errorf("failed to get min-games flag: %w", err)
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}

			return g.withService(cmd.Context(), func(svc *service.Service) error {
				entries, err := svc.Leaderboard(cmd.Context(), scope, minGames, limit)
				if err != nil {
					return err
				}
				if g.output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				table := newTable(cmd.OutOrStdout(), "Rank", "Player", "Rating", "RD", "Volatility", "Games", "W", "L")
				for _, e := range entries {
					table.Append([]string{
						fmt.Sprintf("%d", e.Rank),
						e.PlayerID,
						fmt.Sprintf("%.1f", e.Rating),
						fmt.Sprintf("%.1f", e.Deviation),
						fmt.Sprintf("%.5f", e.Volatility),
						fmt.Sprintf("%d", e.GamesPlayed),
						fmt.Sprintf("%d", e.Wins),
						fmt.Sprintf("%d", e.Losses),
					})
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().String("scope", string(model.ScopeOverall), "rating scope (overall, game:<id>)")
	cmd.Flags().Int("min-games", 0, "only list players with at least this many games")
	cmd.Flags().Int("limit", 0, "number of entries to show (0 uses the service default)")
	return cmd
}

func newHistoryCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history PLAYER_ID",
		Short: "Show a player's rating history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.validateOutput(); err != nil {
				return err
			}
			scope, err := scopeFlag(cmd)
			if err != nil {
				return err
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}

			return g.withService(cmd.Context(), func(svc *service.Service) error {
				points, err := svc.History(cmd.Context(), scope, args[0], limit)
				if err != nil {
					return err
				}
				if g.output == outputJSON {
					if points == nil {
						points = []model.HistoryPoint{}
					}
					return writeJSON(cmd.OutOrStdout(), points)
				}
				table := newTable(cmd.OutOrStdout(), "Period", "Rating", "RD", "Volatility", "Games", "W", "L")
				for _, h := range points {
					table.Append([]string{
						model.PeriodOf(h.PeriodEnd.Add(-time.Nanosecond)).String(),
						fmt.Sprintf("%.1f", h.Rating),
						fmt.Sprintf("%.1f", h.Deviation),
						fmt.Sprintf("%.5f", h.Volatility),
						fmt.Sprintf("%d", h.PeriodGames),
						fmt.Sprintf("%d", h.PeriodWins),
						fmt.Sprintf("%d", h.PeriodLosses),
					})
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().String("scope", string(model.ScopeOverall), "rating scope (overall, game:<id>)")
	cmd.Flags().Int("limit", 0, "number of periods to show (0 shows all)")
	return cmd
}

func scopeFlag(cmd *cobra.Command) (model.Scope, error) {
	raw, err := cmd.Flags().GetString("scope")
	if err != nil {
		return model.Scope{}, fmt.Errorf("failed to get scope flag: %w", err)
	}
	return model.ParseScope(raw)
}
