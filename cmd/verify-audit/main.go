// Command verify-audit walks delivery_audit_log end to end and checks
// the hash chain and Ed25519 signatures internal/streaming produced,
// reporting the first corruption it finds. Grounded on
// kernel/internal/audit/chain_verifer.go's VerifyChain, run as a
// standalone CLI the way devops/tools/jwkgen.go is a standalone CLI.
package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/webhookrelay/relay/internal/config"
	"github.com/webhookrelay/relay/internal/signing"
	"github.com/webhookrelay/relay/internal/streaming"
)

func main() {
	signerID := flag.String("signer-id", "worker-local", "expected signer_id on every record")
	flag.Parse()

	cfg := config.LoadFromEnv()
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "error: DATABASE_URL is required")
		os.Exit(2)
	}
	if cfg.SigningKeySeed == "" {
		fmt.Fprintln(os.Stderr, "error: SIGNING_KEY_SEED is required to recover the signer's public key")
		os.Exit(2)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open postgres: %v\n", err)
		os.Exit(2)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: ping postgres: %v\n", err)
		os.Exit(2)
	}

	signer := signing.NewLocalSignerFromSeed(*signerID, cfg.SigningKeySeed)
	pub := signer.PublicKey()
	if len(pub) != ed25519.PublicKeySize {
		fmt.Fprintln(os.Stderr, "error: recovered public key has unexpected size")
		os.Exit(2)
	}

	if err := streaming.VerifyChain(ctx, db, *signerID, pub); err != nil {
		fmt.Fprintf(os.Stderr, "chain verification FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("delivery_audit_log chain verified OK")
}
