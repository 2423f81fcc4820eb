// ABOUTME: Account, subscription, and identity subcommands
// ABOUTME: Each command resumes the stored session first when it needs one

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/lamp/internal/account"
	"github.com/2389/lamp/internal/apperr"
	"github.com/2389/lamp/internal/auth"
	"github.com/2389/lamp/internal/flow"
	"github.com/2389/lamp/internal/route"
)

// ensureSignedIn resumes the stored session and fails if there is none.
func ensureSignedIn(ctx context.Context, a *app) (flow.Result, error) {
	res, err := a.flow.CheckSession(ctx)
	if err != nil {
		return res, err
	}
	if !res.Session.State.SignedIn() {
		return res, apperr.Auth(apperr.CodeNotSignedIn, "")
	}
	return res, nil
}

func printLanding(a *app, res flow.Result) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	if !res.Session.State.SignedIn() {
		fmt.Println("Signed out.")
		return
	}
	u := res.Session.User
	fmt.Printf("Signed in as %s ", u.Email)
	gray.Printf("(%s, plan %s)\n", res.Session.State, u.EffectivePlan())
	cyan.Printf("→ %s ", res.Destination.Title)
	gray.Printf("%s\n", res.Destination.Path)

	switch res.Destination.Decision {
	case route.Registration:
		fmt.Println("  Run `lamp register --phone <number> --consent` to finish.")
	case route.FreeTierExhausted:
		if u.SMSUsage != nil {
			fmt.Printf("  %d of %d free messages used this month.\n", u.SMSUsage.MessagesSent, u.SMSUsage.MessageLimit)
		}
		fmt.Println("  Run `lamp prices` to see plans.")
	case route.GettingStarted:
		if a.cfg.Phones.SMS != "" {
			fmt.Printf("  Text %s to chat by SMS, or run `lamp chat`.\n", a.cfg.Phones.SMS)
		} else {
			fmt.Println("  Run `lamp chat` to start.")
		}
	}
}

func cmdSession(ctx context.Context, a *app) error {
	res, err := a.flow.CheckSession(ctx)
	if err != nil {
		return err
	}
	printLanding(a, res)
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	p := parseArgs(args)
	reader := stdinReader()

	email, ok := p.get("email")
	if !ok {
		email = prompt(reader, "Email", "")
	}
	password, ok := p.get("password")
	if !ok {
		password = prompt(reader, "Password", "")
	}

	res, err := a.flow.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	printLanding(a, res)
	return nil
}

func cmdOAuth(ctx context.Context, a *app, args []string) error {
	p := parseArgs(args)
	if len(p.positional) < 1 {
		return fmt.Errorf("usage: lamp oauth <code> [--redirect URI]")
	}
	redirect, ok := p.get("redirect")
	if !ok {
		redirect = a.cfg.Gateway.BaseURL + "/auth/callback"
	}

	res, err := a.flow.ExchangeCode(ctx, p.positional[0], redirect)
	if err != nil {
		return err
	}
	printLanding(a, res)
	return nil
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	p := parseArgs(args, "consent")
	if _, err := ensureSignedIn(ctx, a); err != nil {
		return err
	}

	form := auth.RegistrationForm{
		PhoneNumber:  p.values["phone"],
		FirstName:    p.values["first"],
		LastName:     p.values["last"],
		BibleVersion: p.values["version"],
		SMSConsent:   p.bools["consent"],
	}
	res, err := a.flow.Register(ctx, form)
	if err != nil {
		return err
	}
	printLanding(a, res)
	return nil
}

func cmdProfile(ctx context.Context, a *app, args []string) error {
	p := parseArgs(args)
	res, err := ensureSignedIn(ctx, a)
	if err != nil {
		return err
	}

	patch := account.ProfilePatch{
		Email:        p.ptr("email"),
		PhoneNumber:  p.ptr("phone"),
		FirstName:    p.ptr("first"),
		LastName:     p.ptr("last"),
		BibleVersion: p.ptr("version"),
	}
	if patch != (account.ProfilePatch{}) {
		res, err = a.flow.UpdateProfile(ctx, patch)
		if err != nil {
			return err
		}
	}

	u := res.Session.User
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  Email\t%s\n", u.Email)
	fmt.Fprintf(w, "  Name\t%s %s\n", u.FirstName, u.LastName)
	fmt.Fprintf(w, "  Phone\t%s\n", u.PhoneNumber)
	fmt.Fprintf(w, "  Bible version\t%s\n", u.BibleVersion)
	fmt.Fprintf(w, "  Plan\t%s\n", u.EffectivePlan())
	fmt.Fprintf(w, "  Registered\t%t\n", u.IsRegistered)
	fmt.Fprintf(w, "  Subscribed\t%t\n", u.IsSubscribed)
	return w.Flush()
}

func cmdLogout(ctx context.Context, a *app) error {
	if err := a.flow.SignOut(ctx); err != nil {
		return err
	}
	a.chat.Reset()
	color.Green("Signed out.\n")
	return nil
}

func cmdForgot(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lamp forgot <email>")
	}
	if err := a.flow.ForgotPassword(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("If that account exists, a reset link is on its way.")
	return nil
}

func cmdReset(ctx context.Context, a *app, args []string) error {
	p := parseArgs(args)
	if len(p.positional) < 1 {
		return fmt.Errorf("usage: lamp reset <token> [--password P]")
	}
	password, ok := p.get("password")
	if !ok {
		password = prompt(stdinReader(), "New password", "")
	}
	if err := a.flow.ResetPassword(ctx, p.positional[0], password); err != nil {
		return err
	}
	color.Green("Password updated. Run `lamp login` to sign in.\n")
	return nil
}

func cmdPrices(ctx context.Context, a *app) error {
	prices, err := a.flow.Prices(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tPLAN\tPRICE")
	fmt.Fprintln(w, "  --\t----\t-----")
	for _, pr := range prices {
		fmt.Fprintf(w, "  %s\t%s\t%d.%02d %s/%s\n", pr.ID, pr.Nickname, pr.Amount/100, pr.Amount%100, pr.Currency, pr.Interval)
	}
	return w.Flush()
}

func cmdCheckout(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lamp checkout <price-id>")
	}
	if _, err := ensureSignedIn(ctx, a); err != nil {
		return err
	}
	redirect, err := a.flow.Checkout(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Open to subscribe: %s\n", redirect.URL)
	return nil
}

func cmdPortal(ctx context.Context, a *app) error {
	if _, err := ensureSignedIn(ctx, a); err != nil {
		return err
	}
	redirect, err := a.flow.Portal(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Open to manage billing: %s\n", redirect.URL)
	return nil
}

func cmdAliases(ctx context.Context, a *app) error {
	res, err := ensureSignedIn(ctx, a)
	if err != nil {
		return err
	}
	links, err := a.store.ListAliases(ctx, res.Session.UserID())
	if err != nil {
		return err
	}
	if len(links) == 0 {
		fmt.Println("  (no linked identities)")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  KIND\tKEY\tLINKED")
	for _, l := range links {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", l.PreviousKind, l.PreviousKey, l.CreatedAt.Local().Format("Jan 02 15:04"))
	}
	return w.Flush()
}
