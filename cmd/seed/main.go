package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
	"github.com/muratovtemurbek/healthhub-uz/pkg/database"
)

// Seeds a development database with doctors and patients. Every account
// gets the password "password123".
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	hash, err := argon2id.CreateHash("password123", argon2id.DefaultParams)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	if err := seedDoctors(context.Background(), pool, hash, 20); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, hash, 200); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func weekdaySchedule() []byte {
	slots := []string{}
	for h := 9; h < 17; h++ {
		slots = append(slots, time.Date(0, 1, 1, h, 0, 0, 0, time.UTC).Format("15:04"))
		slots = append(slots, time.Date(0, 1, 1, h, 30, 0, 0, time.UTC).Format("15:04"))
	}
	schedule := map[string][]string{
		"monday":    slots,
		"tuesday":   slots,
		"wednesday": slots,
		"thursday":  slots,
		"friday":    slots[:8],
	}
	raw, _ := json.Marshal(schedule)
	return raw
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, hash string, count int) error {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	facilityID := uuid.New()
	schedule := weekdaySchedule()

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		email := gofakeit.Email()
		spec := specializations[gofakeit.Number(0, len(specializations)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, login, email, password_hash, role, verified, active)
			VALUES ($1, $2, $3, $4, 'doctor', true, true)
		`, id, name, email, hash)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO doctor_profiles (user_id, specialization, facility_id, price, available, timezone, schedule)
			VALUES ($1, $2, $3, $4, true, 'Asia/Tashkent', $5)
		`, id, spec, facilityID, int64(gofakeit.Number(5, 50))*10000, schedule)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, hash string, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 100

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
			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, login, email, password_hash, role, verified, active)
				VALUES ($1, $2, $3, $4, 'patient', false, true)
			`, uuid.New(), gofakeit.Name(), gofakeit.Email(), hash)
			if err != nil {
				tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	log.Println("patients seeded")
	return nil
}
