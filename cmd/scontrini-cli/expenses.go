package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"scontrini/internal/core"
	"scontrini/internal/store"
)

const dateLayout = "2006-01-02"

func expensesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expenses",
		Short: "Inspect recorded expenses",
	}

	var preset, from, to, category string
	list := &cobra.Command{
		Use:   "list",
		Short: "List expenses in a date range",
		Long: `List expenses newest first. Without flags the current month is shown;
--from and --to select a custom range (both days included).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := resolveRange(preset, from, to, time.Now())
			if err != nil {
				return err
			}
			expenses, err := a.expenses.ListExpenses(cmd.Context(), store.ExpenseFilter{Range: r, CategoryID: category})
			if err != nil {
				return err
			}
			categories, err := a.categories.ListCategories(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "DATE\tDESCRIPTION\tCATEGORY\tAMOUNT\t")
			for _, e := range expenses {
				name := e.CategoryID
				if c, ok := core.FindCategory(categories, e.CategoryID); ok {
					name = c.Name
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", e.Date.Format(dateLayout), e.Description, name, e.Amount)
			}
			totals := core.Summarize(expenses)
			fmt.Fprintf(w, "\t%d expenses\t\t%s\t\n", totals.Count, totals.Total)
			return w.Flush()
		},
	}
	list.Flags().StringVar(&preset, "range", "", "preset: today, yesterday, last7days, thisMonth, lastMonth")
	list.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	list.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	list.Flags().StringVar(&category, "category", "", "only this category id")
	cmd.AddCommand(list)

	return cmd
}

// resolveRange defaults to the current month; dates alone mean custom.
func resolveRange(preset, from, to string, now time.Time) (core.DateRange, error) {
	p := core.RangePreset(preset)
	if p == "" {
		p = core.RangeThisMonth
		if from != "" || to != "" {
			p = core.RangeCustom
		}
	}

	var fromDay, toDay time.Time
	if p == core.RangeCustom {
		var err error
		if fromDay, err = time.ParseInLocation(dateLayout, from, now.Location()); err != nil {
			return core.DateRange{}, fmt.Errorf("%w: --from: %v", core.ErrInvalidRange, err)
		}
		if toDay, err = time.ParseInLocation(dateLayout, to, now.Location()); err != nil {
			return core.DateRange{}, fmt.Errorf("%w: --to: %v", core.ErrInvalidRange, err)
		}
	}
	return core.ResolveRange(p, now, fromDay, toDay)
}
