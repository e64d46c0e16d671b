package cli

import (
	"context"
	"flag"
	"fmt"
)

func newLoginCommand() *Command {
	cmd := &Command{
		Name:        "login",
		Description: "Log in and store the session",
		Flags:       flag.NewFlagSet("login", flag.ContinueOnError),
		Run:         runLogin,
	}

	cmd.Flags.String("email", "", "Account email")
	cmd.Flags.String("password", "", "Password (default $CRMGATE_PASSWORD)")

	return cmd
}

func runLogin(ctx context.Context, env *Env, args []string) error {
	cmd := newLoginCommand()
	if err := parseFlags(cmd.Flags, env, args); err != nil {
		return err
	}

	email := cmd.Flags.Lookup("email").Value.String()
	password := firstNonEmpty(cmd.Flags.Lookup("password").Value.String(), env.Getenv("CRMGATE_PASSWORD"))
	if email == "" || password == "" {
		return usagef("email and password are required")
	}

	client, err := env.anonymousClient()
	if err != nil {
		return err
	}
	session, err := client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := saveSession(env.SessionPath, session); err != nil {
		return err
	}

	fmt.Fprintf(env.Out, "Logged in as %s (token valid until %s)\n", email, session.ValidTo.Local().Format("2006-01-02 15:04"))
	return nil
}

func newLogoutCommand() *Command {
	return &Command{
		Name:        "logout",
		Description: "Forget the stored session",
		Flags:       flag.NewFlagSet("logout", flag.ContinueOnError),
		Run: func(ctx context.Context, env *Env, args []string) error {
			return removeSession(env.SessionPath)
		},
	}
}

func newWhoamiCommand() *Command {
	return &Command{
		Name:        "whoami",
		Description: "Show the logged in user",
		Flags:       flag.NewFlagSet("whoami", flag.ContinueOnError),
		Run:         runWhoami,
	}
}

func runWhoami(ctx context.Context, env *Env, args []string) error {
	client, err := env.authenticatedClient()
	if err != nil {
		return err
	}
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return err
	}

	tenant := "-"
	if user.TenantID != nil {
		tenant = fmt.Sprint(*user.TenantID)
	}
	fmt.Fprintf(env.Out, "%s (%s)\n", user.Email, user.DisplayName)
	fmt.Fprintf(env.Out, "  id:     %d\n", user.ID)
	fmt.Fprintf(env.Out, "  role:   %s\n", user.Role)
	fmt.Fprintf(env.Out, "  tenant: %s\n", tenant)
	return nil
}
