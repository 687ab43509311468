// Package recalc drives Glicko-2 batch recomputation: one scope and period
// at a time, or every period since the first contest.
package recalc

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"
	"github.com/okian/skillrank/internal/adapters/contests"
	"github.com/okian/skillrank/internal/adapters/repository"
	"github.com/okian/skillrank/internal/domain/glicko"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/okian/skillrank/internal/domain/period"
	"github.com/okian/skillrank/pkg/logger"
	"github.com/okian/skillrank/pkg/metrics"
)

// Calculator is the rating update the orchestrator applies per player.
type Calculator interface {
	Update(prior glicko.Rating, results []glicko.Result) (glicko.Rating, error)
}

// PeriodReport summarises one RecalculatePeriod call.
type PeriodReport struct {
	Scope    model.Scope   `json:"scope"`
	Period   model.Period  `json:"period"`
	Rated    int           `json:"rated"`
	Inactive int           `json:"inactive"`
	Skipped  int           `json:"skipped"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Summary aggregates several period reports.
type Summary struct {
	Periods  int `json:"periods"`
	Rated    int `json:"rated"`
	Inactive int `json:"inactive"`
	Skipped  int `json:"skipped"`
}

func (s *Summary) add(r PeriodReport) {
	s.Periods++
	s.Rated += r.Rated
	s.Inactive += r.Inactive
	s.Skipped += r.Skipped
}

// Orchestrator recomputes ratings from contests and persists them.
type Orchestrator struct {
	store       repository.Store
	source      contests.Source
	calc        Calculator
	concurrency int
	clock       clockwork.Clock
	logger      logger.Logger
	pool        pond.ResultPool[outcome]
}

// New wires an orchestrator.
func New(store repository.Store, source contests.Source, calc Calculator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		source:      source,
		calc:        calc,
		concurrency: runtime.NumCPU(),
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("recalc")
	}
	o.pool = pond.NewResultPool[outcome](o.concurrency)
	return o
}

// Close waits for in-flight rating tasks and stops the pool.
func (o *Orchestrator) Close() {
	o.pool.StopAndWait()
}

// prior is a player's standing as of the start of the period.
type prior struct {
	rating              glicko.Rating
	games, wins, losses int
	// known is false for players with no rating before the period.
	known bool
	// stored is the current latest row, nil when the player has none.
	stored *model.PlayerRating
}

type outcome struct {
	playerID string
	rating   glicko.Rating
	games    int
	wins     int
	losses   int
	base     *prior
	active   bool
	skipped  bool
}

func seed() glicko.Rating {
	return glicko.Rating{Rating: model.DefaultRating, Deviation: model.DefaultDeviation, Volatility: model.DefaultVolatility}
}

// RecalculatePeriod recomputes scope for the given month and commits it as
// one unit. Running it again for the same inputs yields the same state.
func (o *Orchestrator) RecalculatePeriod(ctx context.Context, scope model.Scope, year int, month time.Month) (PeriodReport, error) {
	start := o.clock.Now()
	p, err := model.NewPeriod(year, month)
	if err != nil {
		return PeriodReport{}, err
	}
	if !scope.Valid() {
		return PeriodReport{}, fmt.Errorf("%w: %v", model.ErrInvalidScope, scope)
	}
	report := PeriodReport{Scope: scope, Period: p}
	end := p.End()

	all, err := o.source.ContestsBetween(ctx, p.Start(), end)
	if err != nil {
		return report, fmt.Errorf("%w: load contests for %s: %w", ErrSource, p, err)
	}

	priors, err := o.loadPriors(ctx, scope, end)
	if err != nil {
		return report, err
	}

	activity := period.Aggregate(scope, p, all, func(id string) (glicko.Rating, bool) {
		pr, ok := priors[id]
		if !ok || !pr.known {
			return glicko.Rating{}, false
		}
		return pr.rating, true
	})

	outcomes, err := o.rate(ctx, priors, activity)
	if err != nil {
		return report, err
	}

	commit := repository.PeriodCommit{Scope: scope, PeriodEnd: end}
	for i := range outcomes {
		out := &outcomes[i]
		switch {
		case out.skipped:
			report.Skipped++
			continue
		case out.active:
			report.Rated++
		default:
			report.Inactive++
		}
		commit.History = append(commit.History, model.HistoryPoint{
			PlayerID:     out.playerID,
			Scope:        scope,
			PeriodEnd:    end,
			Rating:       out.rating.Rating,
			Deviation:    out.rating.Deviation,
			Volatility:   out.rating.Volatility,
			PeriodGames:  out.games,
			PeriodWins:   out.wins,
			PeriodLosses: out.losses,
		})
		// A re-run of an older period refreshes its history point but never
		// moves the latest row backwards.
		if out.base.stored != nil && end.Before(out.base.stored.LastPeriodEnd) {
			continue
		}
		commit.Latest = append(commit.Latest, model.PlayerRating{
			PlayerID:      out.playerID,
			Scope:         scope,
			Rating:        out.rating.Rating,
			Deviation:     out.rating.Deviation,
			Volatility:    out.rating.Volatility,
			GamesPlayed:   out.base.games + out.games,
			Wins:          out.base.wins + out.wins,
			Losses:        out.base.losses + out.losses,
			LastPeriodEnd: end,
		})
	}

	if err := o.store.CommitPeriod(ctx, commit); err != nil {
		metrics.RecordErrorByComponent("recalc", "store")
		return report, fmt.Errorf("commit %s %s: %w", scope, p, err)
	}

	report.Elapsed = o.clock.Since(start)
	metrics.RecordPeriodDuration(string(scope.Kind), float64(report.Elapsed.Milliseconds()))
	metrics.RecordPlayersRated(report.Rated)
	metrics.RecordPlayersInactive(report.Inactive)
	o.logger.Info(ctx, "period committed",
		logger.String("scope", scope.String()),
		logger.String("period", p.String()),
		logger.Int("contests", len(all)),
		logger.Int("rated", report.Rated),
		logger.Int("inactive", report.Inactive),
		logger.Int("skipped", report.Skipped),
	)
	return report, nil
}

// loadPriors resolves every rated player's standing at the start of the
// period ending at end. Rows already written for this or a later period are
// rewound through history so that re-runs start from the same state.
func (o *Orchestrator) loadPriors(ctx context.Context, scope model.Scope, end time.Time) (map[string]*prior, error) {
	rows, err := o.store.ListLatest(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list ratings for %s: %w", scope, err)
	}
	out := make(map[string]*prior, len(rows))
	for i := range rows {
		row := rows[i]
		pr := &prior{stored: &row}
		out[row.PlayerID] = pr
		if row.LastPeriodEnd.Before(end) {
			pr.known = true
			pr.rating = glicko.Rating{Rating: row.Rating, Deviation: row.Deviation, Volatility: row.Volatility}
			pr.games, pr.wins, pr.losses = row.GamesPlayed, row.Wins, row.Losses
			continue
		}

		history, err := o.store.GetHistory(ctx, row.PlayerID, scope, 0)
		if err != nil {
			return nil, fmt.Errorf("rewind %s in %s: %w", row.PlayerID, scope, err)
		}
		pr.games, pr.wins, pr.losses = row.GamesPlayed, row.Wins, row.Losses
		for _, h := range history { // newest first
			if !h.PeriodEnd.Before(end) {
				pr.games -= h.PeriodGames
				pr.wins -= h.PeriodWins
				pr.losses -= h.PeriodLosses
				continue
			}
			if !pr.known {
				pr.known = true
				pr.rating = glicko.Rating{Rating: h.Rating, Deviation: h.Deviation, Volatility: h.Volatility}
			}
		}
		pr.games, pr.wins, pr.losses = max(pr.games, 0), max(pr.wins, 0), max(pr.losses, 0)
	}
	return out, nil
}

// rate runs the calculator for every active player and every known
// inactive player on the worker pool.
func (o *Orchestrator) rate(ctx context.Context, priors map[string]*prior, activity map[string]*period.Activity) ([]outcome, error) {
	group := o.pool.NewGroupContext(ctx)
	submit := func(id string, base *prior, act *period.Activity) {
		group.SubmitErr(func() (outcome, error) {
			out := outcome{playerID: id, base: base, active: act != nil && act.Games > 0}
			start := seed()
			if base.known {
				start = base.rating
			}
			var results []glicko.Result
			if act != nil {
				results = act.Results
				out.games, out.wins, out.losses = act.Games, act.Wins, act.Losses
			}
			next, err := o.calc.Update(start, results)
			if errors.Is(err, glicko.ErrNumericDivergence) {
				metrics.RecordPlayersSkipped("numeric_divergence", 1)
				o.logger.Warn(ctx, "rating update diverged, player left unchanged",
					logger.String("player_id", id), logger.Error(err))
				out.skipped = true
				return out, nil
			}
			if err != nil {
				return out, fmt.Errorf("rate %s: %w", id, err)
			}
			out.rating = next
			return out, nil
		})
	}

	for id, act := range activity {
		base, ok := priors[id]
		if !ok {
			base = &prior{}
		}
		submit(id, base, act)
	}
	for id, base := range priors {
		if _, active := activity[id]; active || !base.known {
			continue
		}
		submit(id, base, nil)
	}
	return group.Wait()
}

// RecalculateAllScopes recomputes the overall scope and then every game
// scope for p.
func (o *Orchestrator) RecalculateAllScopes(ctx context.Context, p model.Period) (Summary, error) {
	var sum Summary
	games, err := o.source.GameIDs(ctx)
	if err != nil {
		return sum, fmt.Errorf("%w: list games: %w", ErrSource, err)
	}
	scopes := make([]model.Scope, 0, len(games)+1)
	scopes = append(scopes, model.Overall())
	for _, g := range games {
		scopes = append(scopes, model.Game(g))
	}
	for _, s := range scopes {
		r, err := o.RecalculatePeriod(ctx, s, p.Year, p.Month)
		if err != nil {
			return sum, err
		}
		sum.add(r)
	}
	return sum, nil
}

// RecalculateAllHistorical wipes every rating and replays all periods from
// the month of the first contest through the current month, in order.
func (o *Orchestrator) RecalculateAllHistorical(ctx context.Context) (Summary, error) {
	var sum Summary
	raw, err := o.source.EarliestStart(ctx)
	if err != nil {
		return sum, fmt.Errorf("%w: earliest contest: %w", ErrSource, err)
	}
	if strings.TrimSpace(raw) == "" {
		o.logger.Info(ctx, "no contests, nothing to recalculate")
		return sum, nil
	}
	first, err := ParseStart(raw)
	if err != nil {
		metrics.RecordErrorByComponent("recalc", "date_parse")
		return sum, err
	}

	months := period.Months(first, o.clock.Now())
	o.logger.Info(ctx, "historical recalculation started",
		logger.String("from", model.PeriodOf(first).String()),
		logger.Int("periods", len(months)),
	)
	if err := o.store.ClearAll(ctx); err != nil {
		return sum, fmt.Errorf("clear ratings: %w", err)
	}
	for _, p := range months {
		s, err := o.RecalculateAllScopes(ctx, p)
		sum.Periods += s.Periods
		sum.Rated += s.Rated
		sum.Inactive += s.Inactive
		sum.Skipped += s.Skipped
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

var startLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseStart reads a stored contest timestamp. Values without a zone are UTC.
func ParseStart(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range startLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, raw)
}
