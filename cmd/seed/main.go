// Command seed creates a demo tenant and issues an API key, for local
// development against a fresh database. Grounded on
// original_source/backend/seed.py.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/webhookrelay/relay/internal/apikey"
	"github.com/webhookrelay/relay/internal/config"
	"github.com/webhookrelay/relay/internal/store"
)

func main() {
	name := flag.String("name", "Demo Corp", "tenant name")
	flag.Parse()

	cfg := config.LoadFromEnv()
	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}

	st := store.NewPGStore(db)

	token, err := randomToken()
	if err != nil {
		log.Fatalf("failed to generate tenant token: %v", err)
	}
	tenant, err := st.CreateTenant(ctx, *name, token)
	if err != nil {
		log.Fatalf("failed to create tenant: %v", err)
	}

	rawKey, err := apikey.Generate()
	if err != nil {
		log.Fatalf("failed to generate api key: %v", err)
	}
	hashed, err := apikey.Hash(rawKey, cfg.APIKeySalt)
	if err != nil {
		log.Fatalf("failed to hash api key: %v", err)
	}
	if _, err := st.CreateApiKey(ctx, tenant.ID, hashed); err != nil {
		log.Fatalf("failed to persist api key: %v", err)
	}

	fmt.Println("=== Demo Tenant Seeded ===")
	fmt.Printf("Tenant name : %s\n", tenant.Name)
	fmt.Printf("Tenant id   : %s\n", tenant.ID)
	fmt.Printf("Ingress URL : %s/in/%s\n", cfg.FrontendURL, tenant.Token)
	fmt.Printf("API KEY     : %s  (store this securely!)\n", rawKey)
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
