// seed inserts sample contacts and activities for local testing.
// Idempotent: skips inserts if the user already has contacts.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"resultmarketing-crm/client/internal/config"
	"resultmarketing-crm/client/internal/contacts"
	"resultmarketing-crm/client/internal/contacts/domain"
	"resultmarketing-crm/client/internal/contacts/repository"
	"resultmarketing-crm/client/internal/db"
)

const defaultUserID = "dev-user-001"

type fixedUser string

func (u fixedUser) UserID() string { return string(u) }

func sampleContacts(now time.Time) []domain.Contact {
	tomorrow := now.Add(24 * time.Hour)
	today := now
	lastWeek := now.Add(-7 * 24 * time.Hour)
	return []domain.Contact{
		{Name: "Ahmad bin Hassan", Phone: "+60123456789", Email: "ahmad@xyzcorp.my", Company: "XYZ Corp",
			Position: "Procurement Manager", Category: "Client", Location: "Kuala Lumpur", FollowUpDate: &today},
		{Name: "Sarah Lee", Phone: "+60129876543", Email: "sarah.lee@abc.com.my", Company: "ABC Sdn Bhd",
			Category: "Prospect", Location: "Petaling Jaya", LastContactDate: &lastWeek, FollowUpDate: &tomorrow},
		{Name: "Lim Wei Ming", Phone: "+60167778888", Company: "Lim Trading", Category: "Partner", Location: "Penang",
			IsFavorite: true},
		{Name: "Priya Nair", Email: "priya@startup.io", Company: "Startup.io", Category: "Prospect",
			Notes: "Met at the SME expo"},
		{Name: "Tan Mei Ling", Phone: "+60193334444"},
	}
}

func main() {
	userID := flag.String("user", defaultUserID, "User ID that owns the seeded contacts")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; add it to .env or the environment")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	repo := repository.NewPostgresRepository(conn)
	existing, err := repo.List(ctx, *userID, domain.ListOptions{Limit: 1})
	if err != nil {
		log.Fatalf("check existing contacts: %v", err)
	}
	if existing.Count > 0 {
		log.Printf("seed: user %s already has %d contacts, skipping", *userID, existing.Count)
		return
	}

	svc := contacts.NewService(repo, fixedUser(*userID), contacts.NewRepoRecorder(repo))
	created, err := svc.Import(ctx, sampleContacts(time.Now().UTC()), "seed data")
	if err != nil {
		log.Fatalf("seed contacts: %v", err)
	}
	if _, err := svc.Create(ctx, &domain.Contact{Name: "Nurul Izzah", Company: "Izzah Consulting", Category: "Client"}); err != nil {
		log.Fatalf("seed contact: %v", err)
	}
	log.Printf("seed: inserted %d contacts for user %s", len(created)+1, *userID)
}
