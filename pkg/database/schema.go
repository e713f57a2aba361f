package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the schema if it does not exist. The partial unique
// indexes are load-bearing: slot exclusivity, single live code, payment
// and reminder dedup all rest on them rather than on application checks.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			login TEXT NOT NULL,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'patient',
			verified BOOLEAN NOT NULL DEFAULT false,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email))`,

		`CREATE TABLE IF NOT EXISTS doctor_profiles (
			user_id UUID PRIMARY KEY REFERENCES users(id),
			specialization TEXT NOT NULL DEFAULT '',
			facility_id UUID,
			price BIGINT NOT NULL DEFAULT 0,
			available BOOLEAN NOT NULL DEFAULT true,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			schedule JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id UUID PRIMARY KEY,
			doctor_id UUID NOT NULL REFERENCES users(id),
			patient_id UUID NOT NULL REFERENCES users(id),
			visit_date DATE NOT NULL,
			visit_time TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			symptoms TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			amount BIGINT NOT NULL DEFAULT 0,
			paid BOOLEAN NOT NULL DEFAULT false,
			payment_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS appointments_slot_key
			ON appointments (doctor_id, visit_date, visit_time)
			WHERE status IN ('pending', 'confirmed')`,
		`CREATE INDEX IF NOT EXISTS appointments_patient_idx ON appointments (patient_id, visit_date)`,
		`CREATE INDEX IF NOT EXISTS appointments_doctor_idx ON appointments (doctor_id, visit_date)`,

		`CREATE TABLE IF NOT EXISTS verifications (
			user_id UUID PRIMARY KEY REFERENCES users(id),
			code TEXT NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			chat_id BIGINT,
			chat_handle TEXT,
			attempts INT NOT NULL DEFAULT 0,
			verified BOOLEAN NOT NULL DEFAULT false,
			verified_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS verifications_live_code_key
			ON verifications (code) WHERE verified = false`,

		`CREATE TABLE IF NOT EXISTS reminder_jobs (
			id UUID PRIMARY KEY,
			dedup_key TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			run_after TIMESTAMPTZ NOT NULL,
			leased_until TIMESTAMPTZ,
			payload JSONB NOT NULL DEFAULT '{}',
			attempts INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 5,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS reminder_jobs_dedup_key
			ON reminder_jobs (dedup_key) WHERE status IN ('pending', 'leased', 'delivered')`,
		`CREATE INDEX IF NOT EXISTS reminder_jobs_due_idx ON reminder_jobs (status, run_after)`,

		`CREATE TABLE IF NOT EXISTS medicine_reminders (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			drug_name TEXT NOT NULL,
			dose TEXT NOT NULL DEFAULT '',
			times JSONB NOT NULL DEFAULT '[]',
			start_date DATE NOT NULL,
			end_date DATE,
			status TEXT NOT NULL DEFAULT 'active',
			with_food BOOLEAN NOT NULL DEFAULT false,
			before_food BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS medicine_reminders_active_idx
			ON medicine_reminders (status, start_date, end_date)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			appointment_id UUID,
			amount BIGINT NOT NULL,
			provider TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			provider_tx_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS payments_completed_key
			ON payments (appointment_id) WHERE status = 'completed'`,
		`CREATE INDEX IF NOT EXISTS payments_provider_tx_idx ON payments (provider_tx_id)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL DEFAULT '{}',
			read BOOLEAN NOT NULL DEFAULT false,
			delivery_note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			read_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS notifications_user_idx ON notifications (user_id, created_at)`,
	}

	for _, q := range queries {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
