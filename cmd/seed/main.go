package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xXGrimmesXx/CabiLib/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	typeIDs, err := seedAppointmentTypes(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed appointment types: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 40)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, patientIDs, typeIDs, 300); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedAppointmentTypes(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	log.Println("seeding appointment types")

	types := []struct {
		name     string
		price    float64
		duration int
		isGroup  bool
	}{
		{"Séance individuelle", 50, 45, false},
		{"Bilan ergothérapique", 180, 90, false},
		{"Séance groupe habiletés sociales", 35, 60, true},
		{"Entretien parents", 40, 30, false},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(types))
	for _, t := range types {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_types (id, name, description, price, duration_minutes, location, color, is_group)
			VALUES ($1, $2, '', $3, $4, 'Cabinet', $5, $6)
		`, id, t.name, t.price, t.duration, gofakeit.HexColor(), t.isGroup)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		birth := gofakeit.DateRange(
			time.Now().AddDate(-15, 0, 0),
			time.Now().AddDate(-4, 0, 0),
		)

		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, first_name, last_name, billing_name, birth_date,
				phone, email, address, city, school, accommodation, follow_up_state, notes,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '', 'active', '', now(), now())
		`, id, gofakeit.FirstName(), gofakeit.LastName(), gofakeit.LastName(), birth,
			gofakeit.Phone(), gofakeit.Email(), gofakeit.Street(), gofakeit.City(),
			gofakeit.Company())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, patientIDs, typeIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d appointments", count)

	presences := []string{"present", "absent", "excused_absent", "cancelled", "to_be_determined"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		start := gofakeit.DateRange(
			time.Now().AddDate(0, -3, 0),
			time.Now().AddDate(0, 1, 0),
		).Truncate(15 * time.Minute)

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (id, patient_id, type_id, start_at, reason, presence,
				invoice_id, external_event_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULL, NULL, now(), now())
		`, uuid.New(),
			patientIDs[gofakeit.Number(0, len(patientIDs)-1)],
			typeIDs[gofakeit.Number(0, len(typeIDs)-1)],
			start,
			gofakeit.Sentence(4),
			presences[gofakeit.Number(0, len(presences)-1)])
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
