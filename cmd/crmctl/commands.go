package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"resultmarketing-crm/client/internal/apiclient"
	"resultmarketing-crm/client/internal/app"
	"resultmarketing-crm/client/internal/contacts/domain"
	"resultmarketing-crm/client/internal/crmapi"
	"resultmarketing-crm/client/internal/realtime"
	sessiondomain "resultmarketing-crm/client/internal/session/domain"
)

// wasSet reports which flags of fs were given on the command line.
func wasSet(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func runLogin(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	phone := fs.String("phone", "", "Phone number in international format")
	_ = fs.Parse(args)

	ch, err := a.Session.RequestCode(ctx, *phone)
	if err != nil {
		return err
	}
	if a.Session.IsDemo() {
		fmt.Println(demoCodeHint(a.Mode.OTPCodeLength, ch.Phone))
		return nil
	}
	fmt.Printf("code sent to %s, valid until %s\n", ch.Phone, ch.ExpiresAt.Local().Format(time.Kitchen))
	return nil
}

func demoCodeHint(codeLen int, phone string) string {
	return fmt.Sprintf("demo mode: enter any %d-character code for %s", codeLen, phone)
}

func runVerify(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	phone := fs.String("phone", "", "Phone number the code was sent to")
	code := fs.String("code", "", "One-time code")
	_ = fs.Parse(args)

	id, err := a.Session.VerifyCode(ctx, *phone, *code)
	if err != nil {
		return err
	}
	fmt.Printf("signed in as %s (%s)\n", id.Phone, id.ID)
	return nil
}

func runLogout(ctx context.Context, a *app.App, _ []string) error {
	if err := a.Session.SignOut(ctx); err != nil {
		return err
	}
	fmt.Println("signed out")
	return nil
}

func runWhoami(_ context.Context, a *app.App, _ []string) error {
	id := a.Session.Identity()
	if id == nil {
		fmt.Println("not signed in")
		return nil
	}
	out := struct {
		*sessiondomain.Identity
		Demo      bool      `json:"demo"`
		ExpiresAt time.Time `json:"expires_at,omitzero"`
	}{Identity: id, Demo: a.Session.IsDemo()}
	if cred := a.Session.Credential(); cred != nil {
		out.ExpiresAt = cred.ExpiresAt
	}
	return printJSON(out)
}

func runRefresh(ctx context.Context, a *app.App, _ []string) error {
	if err := a.Session.Refresh(ctx); err != nil {
		return err
	}
	if cred := a.Session.Credential(); cred != nil && !cred.ExpiresAt.IsZero() {
		fmt.Printf("session valid until %s\n", cred.ExpiresAt.Local().Format(time.RFC3339))
	}
	return nil
}

func runProfile(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email address")
	company := fs.String("company", "", "Company")
	_ = fs.Parse(args)

	set := wasSet(fs)
	var patch sessiondomain.ProfilePatch
	if set["name"] {
		patch.Name = name
	}
	if set["email"] {
		patch.Email = email
	}
	if set["company"] {
		patch.Company = company
	}
	id, err := a.Session.UpdateProfile(ctx, patch)
	if err != nil {
		return err
	}
	return printJSON(id)
}

func runContacts(ctx context.Context, a *app.App, args []string) error {
	if len(args) > 0 && args[0] == "add" {
		return runContactAdd(ctx, a, args[1:])
	}
	fs := flag.NewFlagSet("contacts", flag.ExitOnError)
	search := fs.String("search", "", "Match name, email, company or phone")
	category := fs.String("category", "", "Only this category")
	limit := fs.Int("limit", domain.DefaultListLimit, "Page size")
	offset := fs.Int("offset", 0, "Rows to skip")
	_ = fs.Parse(args)

	if a.Contacts != nil {
		page, err := a.Contacts.List(ctx, domain.ListOptions{Limit: *limit, Offset: *offset, Search: *search, Category: *category})
		if err != nil {
			return err
		}
		printContacts(page.Items, page.Count)
		return nil
	}
	list, err := a.API.Contacts.List(ctx, crmapi.ContactQuery{Limit: *limit, Offset: *offset, Search: *search, Category: *category})
	if err != nil {
		return friendly(err)
	}
	printContacts(list.Contacts, list.Total)
	return nil
}

func runContactAdd(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("contacts add", flag.ExitOnError)
	var c domain.Contact
	fs.StringVar(&c.Name, "name", "", "Full name (required)")
	fs.StringVar(&c.Phone, "phone", "", "Phone number")
	fs.StringVar(&c.Email, "email", "", "Email address")
	fs.StringVar(&c.Company, "company", "", "Company")
	fs.StringVar(&c.Category, "category", "", "Category (default Other)")
	fs.StringVar(&c.Notes, "notes", "", "Notes")
	_ = fs.Parse(args)

	var created *domain.Contact
	var err error
	if a.Contacts != nil {
		created, err = a.Contacts.Create(ctx, &c)
	} else {
		c.Normalize()
		created, err = a.API.Contacts.Create(ctx, &c)
		err = friendly(err)
	}
	if err != nil {
		return err
	}
	return printJSON(created)
}

func printContacts(items []domain.Contact, total int) {
	for _, c := range items {
		line := c.Name
		if c.Company != "" {
			line += " (" + c.Company + ")"
		}
		fmt.Printf("%-36s  %-40s  %-14s  %s\n", c.ID, line, c.Category, c.Phone)
	}
	fmt.Printf("%d of %d contacts\n", len(items), total)
}

func runStats(ctx context.Context, a *app.App, _ []string) error {
	var stats *domain.DashboardStats
	var err error
	if a.Contacts != nil {
		stats, err = a.Contacts.Stats(ctx)
	} else {
		stats, err = a.API.Dashboard.Stats(ctx)
		err = friendly(err)
	}
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runWatch(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	notifications := fs.Bool("notifications", false, "Also watch the signed-in user's notifications")
	_ = fs.Parse(args)

	if a.Realtime == nil {
		return errors.New("live updates need SUPABASE_URL and SUPABASE_ANON_KEY")
	}
	show := func(ev realtime.Event) {
		fmt.Printf("%s %s %s.%s %s\n", ev.CommitTimestamp.Local().Format(time.TimeOnly), ev.Topic, ev.Type, ev.Table, ev.Record)
	}
	ch, err := a.Realtime.SubscribeContacts(ctx, show)
	if err != nil {
		return err
	}
	defer func() { _ = a.Realtime.Unsubscribe(context.Background(), ch) }()

	if *notifications {
		uid := a.Session.UserID()
		if uid == "" {
			return errors.New("sign in to watch notifications")
		}
		nch, err := a.Realtime.SubscribeNotifications(ctx, uid, show)
		if err != nil {
			return err
		}
		defer func() { _ = a.Realtime.Unsubscribe(context.Background(), nch) }()
	}
	fmt.Fprintln(os.Stderr, "watching for changes; press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

func runHealth(ctx context.Context, a *app.App, _ []string) error {
	report := func(name string, st crmapi.HealthStatus) bool {
		if st.OK {
			fmt.Printf("%-8s ok %s\n", name, strings.TrimSpace(string(st.Data)))
			return true
		}
		fmt.Printf("%-8s down: %s\n", name, st.Error)
		return false
	}
	apiOK := report("api", a.API.Health.CheckAPI(ctx))
	aiOK := report("ai", a.API.Health.CheckAI(ctx))
	if !apiOK || !aiOK {
		return errors.New("one or more services are unhealthy")
	}
	return nil
}

// friendly replaces request failures with the message a user should see.
func friendly(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s (%w)", apiclient.FriendlyMessage(err), err)
}
