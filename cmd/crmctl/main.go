// crmctl is a command-line front end for the CRM: phone sign-in, profile, contacts and live updates.
//
//	crmctl login -phone +60123456789
//	crmctl verify -phone +60123456789 -code 123456
//	crmctl contacts -search ahmad
//	crmctl watch -notifications
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"resultmarketing-crm/client/internal/app"
	"resultmarketing-crm/client/internal/config"
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app.App, args []string) error
}

var commands = map[string]command{
	"login":    {"login -phone PHONE", runLogin},
	"verify":   {"verify -phone PHONE -code CODE", runVerify},
	"logout":   {"logout", runLogout},
	"whoami":   {"whoami", runWhoami},
	"refresh":  {"refresh", runRefresh},
	"profile":  {"profile [-name N] [-email E] [-company C]", runProfile},
	"contacts": {"contacts [-search S] [-category C] [-limit N] [-offset N] | contacts add -name N [...]", runContacts},
	"stats":    {"stats", runStats},
	"watch":    {"watch [-notifications]", runWatch},
	"health":   {"health", runHealth},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: crmctl <command> [flags]")
	for _, name := range []string{"login", "verify", "logout", "whoami", "refresh", "profile", "contacts", "stats", "watch", "health"} {
		fmt.Fprintln(os.Stderr, "  crmctl "+commands[name].usage)
	}
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("crmctl: ")
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	runErr := cmd.run(ctx, a, os.Args[2:])
	if a.LoginRequired() {
		fmt.Fprintln(os.Stderr, "session expired; run: crmctl login -phone PHONE")
	}
	if err := a.Close(); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatal(runErr)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
