// ABOUTME: Chat subcommands and the interactive chat REPL
// ABOUTME: The REPL renders controller snapshots as they are published

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/lamp/internal/account"
	"github.com/2389/lamp/internal/auth"
	"github.com/2389/lamp/internal/chat"
)

func cmdChat(ctx context.Context, a *app, args []string) error {
	res, err := ensureSignedIn(ctx, a)
	if err != nil {
		return err
	}
	// Pin chat requests to this sign-in; a sign-out in between drops them.
	ctx = auth.WithSession(ctx, res.Session)

	if len(args) == 0 {
		return chatREPL(ctx, a)
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return chatList(ctx, a)
	case "open":
		if len(rest) < 1 {
			return fmt.Errorf("usage: lamp chat open <id>")
		}
		if err := a.chat.SelectSession(ctx, rest[0]); err != nil {
			return err
		}
		printTranscript(a.chat.Snapshot().Transcript)
		return nil
	case "send":
		return chatSend(ctx, a, rest)
	case "delete":
		if len(rest) < 1 {
			return fmt.Errorf("usage: lamp chat delete <id>")
		}
		if _, err := a.chat.ListSessions(ctx); err != nil {
			return err
		}
		a.chat.DeleteSession(ctx, rest[0])
		fmt.Printf("Deleted %s\n", rest[0])
		return nil
	case "export":
		return chatExport(ctx, a, rest)
	default:
		return fmt.Errorf("unknown chat command: %s", sub)
	}
}

func chatList(ctx context.Context, a *app) error {
	sessions, err := a.chat.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("  (no sessions)")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTITLE\tCREATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", s.SessionID, sessionTitle(s), s.CreatedAt.Local().Format("Jan 02 15:04"))
	}
	return w.Flush()
}

func chatSend(ctx context.Context, a *app, args []string) error {
	p := parseArgs(args)
	text := strings.Join(p.positional, " ")

	if id, ok := p.get("session"); ok {
		if err := a.chat.SelectSession(ctx, id); err != nil {
			return err
		}
	} else {
		a.chat.NewSessionDraft()
	}

	reply, err := a.chat.SendMessage(ctx, text)
	if err != nil {
		return err
	}
	printMessage(*reply)
	if active := a.chat.Snapshot().Active; active != nil {
		color.New(color.FgHiBlack).Printf("session %s\n", active.SessionID)
	}
	return nil
}

func chatExport(ctx context.Context, a *app, args []string) error {
	p := parseArgs(args)
	if len(p.positional) < 1 {
		return fmt.Errorf("usage: lamp chat export <id> [--out FILE]")
	}
	if err := a.chat.SelectSession(ctx, p.positional[0]); err != nil {
		return err
	}

	snap := a.chat.Snapshot()
	title := "Conversation"
	if snap.Active != nil {
		title = sessionTitle(*snap.Active)
	}
	page, err := chat.RenderHTML(title, snap.Transcript)
	if err != nil {
		return err
	}

	out, ok := p.get("out")
	if !ok {
		_, err = os.Stdout.Write(page)
		return err
	}
	if err := os.WriteFile(out, page, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	color.Green("Wrote %s\n", out)
	return nil
}

func chatREPL(ctx context.Context, a *app) error {
	gray := color.New(color.FgHiBlack)
	gray.Println("Type a message. Commands: /new, /list, /open <id>, /quit")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Show a thinking marker while a send is in flight.
	updates := a.chat.Subscribe(ctx)
	go func() {
		pending := false
		for snap := range updates {
			if snap.Pending && !pending {
				gray.Println("…")
			}
			pending = snap.Pending
		}
	}()

	a.chat.NewSessionDraft()
	reader := stdinReader()
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/new":
			a.chat.NewSessionDraft()
			gray.Println("New conversation.")
		case line == "/list":
			if err := chatList(ctx, a); err != nil {
				report(a, err)
			}
		case strings.HasPrefix(line, "/open "):
			if err := a.chat.SelectSession(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/open "))); err != nil {
				report(a, err)
				continue
			}
			printTranscript(a.chat.Snapshot().Transcript)
		default:
			reply, err := a.chat.SendMessage(ctx, line)
			if err != nil {
				report(a, err)
				continue
			}
			printMessage(*reply)
		}
	}
}

func sessionTitle(s account.Session) string {
	if s.Title != "" {
		return s.Title
	}
	return "Untitled"
}

func printTranscript(msgs []account.Message) {
	if len(msgs) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for _, m := range msgs {
		printMessage(m)
	}
}

func printMessage(m account.Message) {
	if m.Role == account.RoleUser {
		color.New(color.FgCyan).Print("you: ")
	} else {
		color.New(color.FgGreen).Print("lamp: ")
	}
	fmt.Println(m.Content)
}
