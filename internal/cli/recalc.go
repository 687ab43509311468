package cli

import (
	"fmt"
	"io"

	service "github.com/okian/skillrank/internal/app"
	"github.com/okian/skillrank/internal/app/recalc"
	"github.com/okian/skillrank/internal/domain/model"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const scopeAll = "all"

func newRecalcCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recalculate ratings synchronously",
	}

	periodCmd := &cobra.Command{
		Use:   "period YYYY-MM",
		Short: "Recalculate one monthly period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.validateOutput(); err != nil {
				return err
			}
			p, err := model.ParsePeriod(args[0])
			if err != nil {
				return err
			}
			rawScope, err := cmd.Flags().GetString("scope")
			if err != nil {
				return fmt.Errorf("failed to get scope flag: %w", err)
			}
			var scope model.Scope
			if rawScope != scopeAll {
				if scope, err = model.ParseScope(rawScope); err != nil {
					return err
				}
			}

			return g.withService(cmd.Context(), func(svc *service.Service) error {
				if rawScope == scopeAll {
					sum, err := svc.RecalculateAllScopes(cmd.Context(), p)
					if err != nil {
						return err
					}
					return g.printSummary(cmd.OutOrStdout(), sum)
				}
				rep, err := svc.RecalculatePeriod(cmd.Context(), scope, p)
				if err != nil {
					return err
				}
				if g.output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), rep)
				}
				table := newTable(cmd.OutOrStdout(), "Scope", "Period", "Rated", "Inactive", "Skipped", "Elapsed")
				table.Append([]string{
					rep.Scope.String(),
					rep.Period.String(),
					fmt.Sprintf("%d", rep.Rated),
					fmt.Sprintf("%d", rep.Inactive),
					fmt.Sprintf("%d", rep.Skipped),
					rep.Elapsed.String(),
				})
				table.Render()
				return nil
			})
		},
	}
	periodCmd.Flags().String("scope", scopeAll, "scope to recalculate (overall, game:<id>, all)")

	allCmd := &cobra.Command{
		Use:   "all",
		Short: "Wipe every rating and replay all periods in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.validateOutput(); err != nil {
				return err
			}
			return g.withService(cmd.Context(), func(svc *service.Service) error {
				sum, err := svc.RecalculateHistorical(cmd.Context())
				if err != nil {
					return err
				}
				return g.printSummary(cmd.OutOrStdout(), sum)
			})
		},
	}

	cmd.AddCommand(periodCmd, allCmd)
	return cmd
}

func (g *globals) printSummary(w io.Writer, sum recalc.Summary) error {
	if g.output == outputJSON {
		return writeJSON(w, sum)
	}
	table := newTable(w, "Periods", "Rated", "Inactive", "Skipped")
	table.Append([]string{
		fmt.Sprintf("%d", sum.Periods),
		fmt.Sprintf("%d", sum.Rated),
		fmt.Sprintf("%d", sum.Inactive),
		fmt.Sprintf("%d", sum.Skipped),
	})
	table.Render()
	return nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(header)
	return table
}
