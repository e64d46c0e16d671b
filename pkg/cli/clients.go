package cli

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/platinummonkey/crmgate/pkg/apiclient"
	"github.com/platinummonkey/crmgate/pkg/paging"
)

func newClientsCommand() *Command {
	cmd := &Command{
		Name:        "clients",
		Description: "List the clients in your scope",
		Flags:       flag.NewFlagSet("clients", flag.ContinueOnError),
		Run:         runClients,
	}

	cmd.Flags.String("search", "", "Filter by name")
	cmd.Flags.String("status", "", "Filter by status (Active, Prospect, Inactive)")
	cmd.Flags.Bool("include-inactive", false, "Include deleted clients")
	cmd.Flags.Int("page", 1, "Page number")
	cmd.Flags.Int("page-size", paging.DefaultPageSize, "Page size")

	return cmd
}

func runClients(ctx context.Context, env *Env, args []string) error {
	cmd := newClientsCommand()
	if err := parseFlags(cmd.Flags, env, args); err != nil {
		return err
	}

	page, _ := strconv.Atoi(cmd.Flags.Lookup("page").Value.String())
	pageSize, _ := strconv.Atoi(cmd.Flags.Lookup("page-size").Value.String())
	query := apiclient.ClientQuery{
		Search:          cmd.Flags.Lookup("search").Value.String(),
		Status:          cmd.Flags.Lookup("status").Value.String(),
		IncludeInactive: cmd.Flags.Lookup("include-inactive").Value.String() == "true",
		Params:          paging.Params{Page: page, PageSize: pageSize},
	}

	client, err := env.authenticatedClient()
	if err != nil {
		return err
	}
	result, err := client.ListClients(ctx, query)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tOWNER\tANNUAL\tFORECAST\tCOLLECTED")
	for _, c := range result.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			c.ID, c.Name, c.Status, c.AssignedSalesPersonID,
			money(c.AnnualValue), money(c.ForecastValue), money(c.CollectedValue))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "\n%d client(s), page %d of %d\n", result.TotalCount, result.Page, result.TotalPages)
	return nil
}

func newReassignCommand() *Command {
	cmd := &Command{
		Name:        "reassign",
		Description: "Move a client to another salesperson",
		Flags:       flag.NewFlagSet("reassign", flag.ContinueOnError),
		Run:         runReassign,
	}

	cmd.Flags.Int64("client", 0, "Client id")
	cmd.Flags.Int64("to", 0, "New salesperson user id")

	return cmd
}

func runReassign(ctx context.Context, env *Env, args []string) error {
	cmd := newReassignCommand()
	if err := parseFlags(cmd.Flags, env, args); err != nil {
		return err
	}

	clientID, _ := strconv.ParseInt(cmd.Flags.Lookup("client").Value.String(), 10, 64)
	to, _ := strconv.ParseInt(cmd.Flags.Lookup("to").Value.String(), 10, 64)
	if clientID <= 0 || to <= 0 {
		return usagef("--client and --to are required")
	}

	client, err := env.authenticatedClient()
	if err != nil {
		return err
	}
	updated, err := client.ReassignClient(ctx, clientID, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "Client %d (%s) is now assigned to user %d\n", updated.ID, updated.Name, updated.AssignedSalesPersonID)
	return nil
}

// money formats minor units
func money(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
