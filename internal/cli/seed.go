package cli

import (
	"fmt"
	"time"

	service "github.com/okian/skillrank/internal/app"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/okian/skillrank/internal/seed"
	"github.com/spf13/cobra"
)

type seedResult struct {
	Contests     int     `json:"contests"`
	Participants int     `json:"participants"`
	Elapsed      string  `json:"elapsed"`
	Recalculated bool    `json:"recalculated"`
	Periods      int     `json:"periods,omitempty"`
	Concordance  float64 `json:"concordance,omitempty"`
}

func newSeedCmd(g *globals) *cobra.Command {
	def := seed.DefaultConfig(time.Time{})
	var (
		cfg         = def
		from        string
		recalculate bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert a synthetic contest history with known player strengths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.validateOutput(); err != nil {
				return err
			}
			p, err := model.ParsePeriod(from)
			if err != nil {
				return err
			}
			cfg.From = p.Start()

			ds, err := seed.Generate(cfg)
			if err != nil {
				return err
			}

			return g.withService(cmd.Context(), func(svc *service.Service) error {
				stats, err := seed.Insert(cmd.Context(), svc, ds.Contests)
				if err != nil {
					return err
				}
				res := seedResult{
					Contests:     stats.Contests,
					Participants: stats.Participants,
					Elapsed:      stats.Duration.Round(time.Millisecond).String(),
				}

				if recalculate {
					sum, err := svc.RecalculateHistorical(cmd.Context())
					if err != nil {
						return err
					}
					entries, err := svc.Leaderboard(cmd.Context(), model.Overall(), 0, cfg.Players)
					if err != nil {
						return err
					}
					ranked := make([]string, len(entries))
					for i, e := range entries {
						ranked[i] = e.PlayerID
					}
					c, err := seed.Concordance(ds.Players, ranked)
					if err != nil {
						return err
					}
					res.Recalculated = true
					res.Periods = sum.Periods
					res.Concordance = c
				}

				if g.output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				table := newTable(cmd.OutOrStdout(), "Contests", "Participants", "Elapsed", "Periods", "Concordance")
				periods, concordance := "-", "-"
				if res.Recalculated {
					periods = fmt.Sprintf("%d", res.Periods)
					concordance = fmt.Sprintf("%.3f", res.Concordance)
				}
				table.Append([]string{
					fmt.Sprintf("%d", res.Contests),
					fmt.Sprintf("%d", res.Participants),
					res.Elapsed,
					periods,
					concordance,
				})
				table.Render()
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.Players, "players", def.Players, "number of players")
	flags.IntVar(&cfg.Contests, "contests", def.Contests, "number of contests")
	flags.StringSliceVar(&cfg.Games, "games", def.Games, "game ids contests are spread over")
	flags.IntVar(&cfg.MinSeats, "min-seats", def.MinSeats, "fewest participants per contest")
	flags.IntVar(&cfg.MaxSeats, "max-seats", def.MaxSeats, "most participants per contest")
	flags.StringVar(&from, "from", model.PeriodOf(time.Now().UTC().AddDate(0, -def.Months, 0)).String(), "first month (YYYY-MM)")
	flags.IntVar(&cfg.Months, "months", def.Months, "number of months to spread contests over")
	flags.Float64Var(&cfg.Noise, "noise", def.Noise, "per-contest performance noise")
	flags.Uint64Var(&cfg.Seed, "seed", def.Seed, "random seed")
	flags.BoolVar(&recalculate, "recalculate", false, "run a historical recalculation and score the leaderboard")
	return cmd
}
