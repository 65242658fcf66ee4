package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careline/teleconsult/internal/db"
)

const (
	clinicianCount = 40
	patientCount   = 2000
	requestCount   = 200
	slotDays       = 5
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	pool, err := db.ConnectPostgres(context.Background(), dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	clinicianIDs, err := seedClinicians(context.Background(), pool, clinicianCount)
	if err != nil {
		log.Fatalf("seed clinicians: %v", err)
	}
	if err := seedPatients(context.Background(), pool, patientCount); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSlots(context.Background(), pool, clinicianIDs); err != nil {
		log.Fatalf("seed slots: %v", err)
	}
	if err := seedRequests(context.Background(), pool, requestCount); err != nil {
		log.Fatalf("seed requests: %v", err)
	}

	log.Println("seed complete")
}

func seedClinicians(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d clinicians", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO clinicians (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("clinicians seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			phone := gofakeit.Phone()
			dob := gofakeit.DateRange(
				time.Date(1935, time.January, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2010, time.December, 31, 0, 0, 0, 0, time.UTC),
			)

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, phone_number, date_of_birth, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, phone, dob)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// seedSlots gives every clinician a 9-to-17 weekday grid of half-hour
// slots for the next few days.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, clinicianIDs []uuid.UUID) error {
	log.Printf("seeding slots for %d clinicians over %d days", len(clinicianIDs), slotDays)

	now := time.Now().UTC()
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	total := 0
	for _, clinicianID := range clinicianIDs {
		for day := 1; day <= slotDays; day++ {
			date := now.AddDate(0, 0, day)
			if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}

			dayStart := time.Date(date.Year(), date.Month(), date.Day(), 9, 0, 0, 0, time.UTC)
			for hour := 0; hour < 16; hour++ {
				start := dayStart.Add(time.Duration(hour) * 30 * time.Minute)
				_, err := tx.Exec(ctx, `
					INSERT INTO slots (id, owner_user_id, start_at, end_at, consultation_id, created_at, updated_at)
					VALUES ($1, $2, $3, $4, NULL, now(), now())
				`, uuid.New(), clinicianID, start, start.Add(30*time.Minute))
				if err != nil {
					return err
				}
				total++
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("slots seeded: %d", total)
	return nil
}

func seedRequests(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d pending requests", count)

	symptoms := []string{
		"persistent dry cough for two weeks",
		"sharp lower back pain after lifting",
		"itchy rash spreading on both arms",
		"recurring migraines with light sensitivity",
		"dizziness when standing up",
		"sore throat and mild fever",
		"swollen ankle after a fall",
		"trouble sleeping for a month",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO consultation_requests (id, phone_number, symptom_text, status, created_at, updated_at)
			VALUES ($1, $2, $3, 'pending', now(), now())
		`, uuid.New(), gofakeit.Phone(), symptoms[gofakeit.Number(0, len(symptoms)-1)])
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("pending requests seeded")
	return nil
}
