// ABOUTME: Entry point for the lamp client CLI
// ABOUTME: Signs in against the account gateway, routes the user, and drives chat sessions

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/lamp/internal/apperr"
	"github.com/2389/lamp/internal/flow"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _
 | | __ _ _ __ ___  _ __
 | |/ _' | '_ ' _ \| '_ \
 | | (_| | | | | | | |_) |
 |_|\__,_|_| |_| |_| .__/
                   |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}
	if cmd == "version" {
		fmt.Println(version)
		return
	}

	a, err := newApp(ctx)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "session", "status":
		err = cmdSession(ctx, a)
	case "login":
		err = cmdLogin(ctx, a, args)
	case "oauth":
		err = cmdOAuth(ctx, a, args)
	case "register":
		err = cmdRegister(ctx, a, args)
	case "profile":
		err = cmdProfile(ctx, a, args)
	case "logout":
		err = cmdLogout(ctx, a)
	case "forgot":
		err = cmdForgot(ctx, a, args)
	case "reset":
		err = cmdReset(ctx, a, args)
	case "chat":
		err = cmdChat(ctx, a, args)
	case "prices":
		err = cmdPrices(ctx, a)
	case "checkout":
		err = cmdCheckout(ctx, a, args)
	case "portal":
		err = cmdPortal(ctx, a)
	case "aliases":
		err = cmdAliases(ctx, a)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		a.Close()
		os.Exit(1)
	}

	a.Close()
	if err != nil {
		report(a, err)
		os.Exit(1)
	}
}

// report prints the single user-facing message for err. Classified errors
// show their mapped message; the cause goes to the debug log.
func report(a *app, err error) {
	if errors.Is(err, flow.ErrDuplicateAttempt) {
		color.Yellow("That sign-in link was already used.\n")
		return
	}
	if apperr.KindOf(err) == "" {
		color.Red("Error: %v\n", err)
		return
	}
	a.logger.Debug("command failed", "kind", apperr.KindOf(err), "code", apperr.CodeOf(err), "error", err)
	color.Red("%s\n", apperr.UserMessage(err))
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	cyan.Print(banner)
	gray.Printf("  version: %s\n\n", version)
	fmt.Println("Usage: lamp <command> [args]")
	fmt.Println()
	yellow.Println("Account:")
	fmt.Println("  session                          Resume the stored session and show where you land")
	fmt.Println("  login --email E [--password P]   Sign in, or sign up if the account is new")
	fmt.Println("  oauth <code> [--redirect URI]    Finish a sign-in link")
	fmt.Println("  register --phone N --consent     Complete registration")
	fmt.Println("           [--first F] [--last L] [--version V]")
	fmt.Println("  profile [--phone N] [--first F] [--last L] [--version V] [--email E]")
	fmt.Println("  forgot <email>                   Email a password reset link")
	fmt.Println("  reset <token> [--password P]     Set a new password")
	fmt.Println("  logout                           Sign out")
	fmt.Println("  aliases                          Show identities linked to you on this device")
	fmt.Println()
	yellow.Println("Chat:")
	fmt.Println("  chat                             Interactive chat (REPL)")
	fmt.Println("  chat list                        List sessions")
	fmt.Println("  chat open <id>                   Show a session's transcript")
	fmt.Println("  chat send [--session ID] <msg>   Send a message (new session without --session)")
	fmt.Println("  chat delete <id>                 Delete a session")
	fmt.Println("  chat export <id> [--out FILE]    Export a transcript as HTML")
	fmt.Println()
	yellow.Println("Subscription:")
	fmt.Println("  prices                           List plans")
	fmt.Println("  checkout <price-id>              Get a checkout link")
	fmt.Println("  portal                           Get the billing portal link")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  LAMP_CONFIG                      Config file (default: $XDG_CONFIG_HOME/lamp/config.yaml)")
	fmt.Println()
}
