package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/platinummonkey/crmgate/pkg/reports"
)

func newReportCommand() *Command {
	cmd := &Command{
		Name:        "report",
		Description: "Show the financial report for a financial year",
		Flags:       flag.NewFlagSet("report", flag.ContinueOnError),
		Run:         runReport,
	}

	cmd.Flags.Int64("tenant", 0, "Tenant id (system admins only, default own tenant)")
	cmd.Flags.Int("year", 0, "Financial year label, the calendar year it ends in (default current)")
	cmd.Flags.Bool("all", false, "Every tenant (system admins only)")
	cmd.Flags.Bool("json", false, "Print JSON")

	return cmd
}

func runReport(ctx context.Context, env *Env, args []string) error {
	cmd := newReportCommand()
	if err := parseFlags(cmd.Flags, env, args); err != nil {
		return err
	}

	tenantID, _ := strconv.ParseInt(cmd.Flags.Lookup("tenant").Value.String(), 10, 64)
	year, _ := strconv.Atoi(cmd.Flags.Lookup("year").Value.String())
	all := cmd.Flags.Lookup("all").Value.String() == "true"
	asJSON := cmd.Flags.Lookup("json").Value.String() == "true"
	if all && tenantID != 0 {
		return usagef("--all and --tenant are mutually exclusive")
	}

	client, err := env.authenticatedClient()
	if err != nil {
		return err
	}

	var summaries []*reports.Summary
	if all {
		if summaries, err = client.AllFinancials(ctx, year); err != nil {
			return err
		}
	} else {
		summary, err := client.Financials(ctx, tenantID, year)
		if err != nil {
			return err
		}
		summaries = []*reports.Summary{summary}
	}

	if asJSON {
		enc := json.NewEncoder(env.Out)
		enc.SetIndent("", "  ")
		if all {
			return enc.Encode(summaries)
		}
		return enc.Encode(summaries[0])
	}
	for _, s := range summaries {
		if err := printSummary(env, s); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(env *Env, s *reports.Summary) error {
	fmt.Fprintf(env.Out, "%s FY%d (%s to %s)\n", s.TenantName, s.FinancialYear.Label,
		s.FinancialYear.Start.Format("2006-01-02"), s.FinancialYear.End.AddDate(0, 0, -1).Format("2006-01-02"))

	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SALESPERSON\tCLIENTS\tANNUAL\tFORECAST\tCOLLECTED\tWON\tWON VALUE\tPIPELINE")
	row := func(name string, t reports.Totals) {
		fmt.Fprintf(tw, "%s\t%d\t%s%s\t%s%s\t%s%s\t%d\t%s%s\t%s%s\n", name, t.Clients,
			s.CurrencySymbol, money(t.AnnualValue),
			s.CurrencySymbol, money(t.ForecastValue),
			s.CurrencySymbol, money(t.CollectedValue),
			t.WonDeals,
			s.CurrencySymbol, money(t.WonValue),
			s.CurrencySymbol, money(t.PipelineValue))
	}
	for _, p := range s.Salespeople {
		name := p.DisplayName
		if name == "" {
			name = fmt.Sprintf("user %d", p.UserID)
		}
		row(name, p.Totals)
	}
	row("TOTAL", s.Totals)
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(env.Out)
	return nil
}
