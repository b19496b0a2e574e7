package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/arklim/tollgate/internal/infra/config"
	"github.com/arklim/tollgate/internal/infra/security"
	postgresrepo "github.com/arklim/tollgate/internal/repository/postgres"
)

const (
	totalIdentities = 100
	initialBalance  = 10000
	seedSecret      = "seed-secret-for-load-testing"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Database,
		cfg.Postgres.SSLMode,
	)

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("unable to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	if err := postgresrepo.InitSchema(ctx, conn); err != nil {
		log.Fatalf("init schema: %v", err)
	}

	log.Println("--- Seeding Database ---")

	var count int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		log.Fatalf("count identities: %v", err)
	}
	if count >= totalIdentities {
		log.Printf("database already has %d identities, skipping", count)
		return
	}

	// All seeded identities share one secret so load generators can log in.
	secretHash, err := security.HashSecret(seedSecret)
	if err != nil {
		log.Fatalf("hash seed secret: %v", err)
	}

	log.Printf("generating %d identities...", totalIdentities)
	now := time.Now().UTC()

	identityRows := make([][]interface{}, 0, totalIdentities)
	balanceRows := make([][]interface{}, 0, totalIdentities)
	for i := 0; i < totalIdentities; i++ {
		id := uuid.NewString()
		identityRows = append(identityRows, []interface{}{
			id, fmt.Sprintf("seed-%03d", i), secretHash, false, now,
		})
		balanceRows = append(balanceRows, []interface{}{
			id, int64(initialBalance), now,
		})
	}

	copied, err := conn.CopyFrom(
		ctx,
		pgx.Identifier{"identities"},
		[]string{"id", "label", "secret_hash", "deactivated", "created_at"},
		pgx.CopyFromRows(identityRows),
	)
	if err != nil {
		log.Fatalf("bulk insert identities failed: %v", err)
	}

	if _, err := conn.CopyFrom(
		ctx,
		pgx.Identifier{"balances"},
		[]string{"identity_id", "amount", "updated_at"},
		pgx.CopyFromRows(balanceRows),
	); err != nil {
		log.Fatalf("bulk insert balances failed: %v", err)
	}

	log.Printf("successfully seeded %d identities with balance %d", copied, initialBalance)
}
