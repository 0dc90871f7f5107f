package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/tripnest/booking-backend/internal/config"
	"github.com/tripnest/booking-backend/internal/database"
	"github.com/tripnest/booking-backend/internal/models"
)

var tables = []string{
	"booking_audits",
	"pending_releases",
	"bookings",
	"departures",
	"plans",
}

func main() {
	var (
		dbURLFlag string
		reset     bool
		seed      bool
		vendorID  string
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&reset, "reset", false, "truncate all booking tables after creating the schema")
	flag.BoolVar(&seed, "seed", false, "insert sample plans and departures")
	flag.StringVar(&vendorID, "vendor", "", "vendor user id that owns the seeded plans (required with -seed)")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}
	if seed && vendorID == "" {
		log.Fatal("-seed requires -vendor")
	}

	// Build minimal database config without loading full app config
	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Println("Connected to database. Applying schema...")
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}
	fmt.Println("Schema is up to date.")

	if reset {
		for _, table := range tables {
			if _, err := db.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
				log.Fatalf("failed to truncate %s: %v", table, err)
			}
		}
		fmt.Println("All booking data cleared.")
	}

	if seed {
		if err := seedData(ctx, db, vendorID); err != nil {
			log.Fatalf("failed to seed data: %v", err)
		}
	}

	fmt.Println("Row counts:")
	for _, table := range tables {
		var count int
		if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+table); err != nil {
			log.Printf("  %s: error: %v", table, err)
			continue
		}
		fmt.Printf("  %s: %d\n", table, count)
	}
}

// seedData inserts two plans with a week of daily departures each
func seedData(ctx context.Context, db database.DB, vendorID string) error {
	plans := database.NewPlanRepository(db)
	departures := database.NewDepartureRepository(db)

	premiumCut := 90.0
	samples := []*models.Plan{
		{VendorID: vendorID, Name: "Ella Rock Sunrise Hike", Price: 45, IsActive: true},
		{VendorID: vendorID, Name: "Yala Safari Full Day", Price: 120, VendorCut: &premiumCut, IsActive: true},
	}

	start := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	for _, plan := range samples {
		if err := plans.Create(ctx, plan); err != nil {
			return err
		}
		for day := 0; day < 7; day++ {
			d := &models.Departure{
				PlanID:         plan.ID,
				DepartureTime:  start.Add(time.Duration(day)*24*time.Hour + 5*time.Hour),
				PickupLocation: "Ella Railway Station",
				PickupTime:     "05:00",
				TotalCapacity:  12,
				Status:         models.DepartureStatusScheduled,
			}
			if err := departures.Create(ctx, d); err != nil {
				return err
			}
		}
		fmt.Printf("Seeded plan %q (%s) with 7 departures\n", plan.Name, plan.ID)
	}
	return nil
}
