package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"donations/internal/core"
	"donations/internal/locale"
)

func newAddCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME AMOUNT CURRENCY",
		Short: "Record a donation",
		Example: `  donations-admin add "أحمد" 50 USD
  donations-admin add "سارة" ١٠٠ TRY`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmount(args[1])
			if err != nil {
				return err
			}
			currency, err := core.ParseCurrency(args[2])
			if err != nil {
				return err
			}
			d, err := e.rt.App.Donations.Add(cmd.Context(), args[0], amount, currency)
			if err != nil && !core.IsPersistence(err) {
				return err
			}
			if err != nil {
				pterm.Warning.Printfln("Recorded in memory only: %v", err)
				return nil
			}
			pterm.Success.Printfln("Added %s %s from %s (%s)", locale.FormatAmount(d.Amount), d.Currency, d.Name, d.ID)
			return nil
		},
	}
}

func newSummaryCmd(e *env) *cobra.Command {
	var currency string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show totals, per-currency statistics and top donors",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter core.Currency
			if c := strings.TrimSpace(currency); c != "" && !strings.EqualFold(c, "all") {
				var err error
				if filter, err = core.ParseCurrency(c); err != nil {
					return err
				}
			}
			v := e.rt.App.Dashboard.View(cmd.Context(), filter)

			pterm.DefaultSection.Printfln("%d donations from %d donors, %d today", v.TotalCount, v.DonorCount, v.TodayCount)

			stats := pterm.TableData{{"Currency", "Count", "Total", "Largest"}}
			for _, st := range v.Stats {
				stats = append(stats, []string{
					string(st.Currency),
					fmt.Sprint(st.Count),
					locale.FormatAmount(st.Sum),
					locale.FormatAmount(st.Max),
				})
			}
			if err := pterm.DefaultTable.WithHasHeader().WithData(stats).Render(); err != nil {
				return err
			}

			for _, c := range core.Currencies {
				top := v.Top[c]
				if len(top) == 0 {
					continue
				}
				pterm.DefaultSection.WithLevel(2).Printfln("Top donors (%s)", c)
				rows := pterm.TableData{{"#", "Name", "Amount"}}
				for i, d := range top {
					rows = append(rows, []string{fmt.Sprint(i + 1), d.Name, locale.FormatAmount(d.Amount)})
				}
				if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&currency, "currency", "c", "", "Only include one currency (USD, TRY, SYP)")
	return cmd
}

func newRatesCmd(e *env) *cobra.Command {
	var tryRate, sypRate float64
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Show or update the exchange rates against USD",
		Example: `  donations-admin rates
  donations-admin rates --try 42.5 --syp 13000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			update := core.RateTable{}
			if cmd.Flags().Changed("try") {
				update[core.TRY] = tryRate
			}
			if cmd.Flags().Changed("syp") {
				update[core.SYP] = sypRate
			}
			if len(update) > 0 {
				if err := e.rt.App.Rates.Set(cmd.Context(), update); err != nil {
					return err
				}
				pterm.Success.Println("Exchange rates saved")
			}

			rates := e.rt.App.Rates.Get()
			data := pterm.TableData{{"Currency", "Per 1 USD"}}
			for _, c := range core.Currencies {
				data = append(data, []string{string(c), fmt.Sprint(rates[c])})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}
	cmd.Flags().Float64Var(&tryRate, "try", 0, "Turkish lira per US dollar")
	cmd.Flags().Float64Var(&sypRate, "syp", 0, "Syrian pounds per US dollar")
	return cmd
}
