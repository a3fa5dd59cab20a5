package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edupoint/rewards-api/pkg/config"
	"github.com/edupoint/rewards-api/pkg/database"
)

type accountRow struct {
	StudentID string `db:"student_id"`
	Currency  string `db:"currency"`
	Balance   int64  `db:"balance"`
}

type driftRow struct {
	StudentID string
	Currency  string
	Cached    int64
	Replayed  int64
}

// ledger_audit replays every currency account against the transaction log and
// reports cached balances that disagree with the replayed sum. Exits non-zero
// when drift is found so it can gate deploys and cron alerts.
func main() {
	var (
		timeout  time.Duration
		failFast bool
	)
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall audit timeout")
	flag.BoolVar(&failFast, "fail-fast", false, "Stop at the first drifted account")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	drifts, checked, err := audit(ctx, db, failFast)
	if err != nil {
		log.Fatalf("audit failed: %v", err)
	}

	fmt.Printf("checked %d accounts, %d drifted\n", checked, len(drifts))
	for _, d := range drifts {
		fmt.Printf("DRIFT student=%s currency=%s cached=%d replayed=%d delta=%d\n",
			d.StudentID, d.Currency, d.Cached, d.Replayed, d.Cached-d.Replayed)
	}
	if len(drifts) > 0 {
		os.Exit(1)
	}
}

func audit(ctx context.Context, db *sqlx.DB, failFast bool) ([]driftRow, int, error) {
	var accounts []accountRow
	const listQuery = `SELECT student_id, currency, balance FROM student_currency_accounts ORDER BY student_id, currency`
	if err := db.SelectContext(ctx, &accounts, listQuery); err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}

	const replayQuery = `SELECT COALESCE(SUM(amount), 0) FROM ledger_transactions WHERE student_id = $1 AND currency = $2`
	var drifts []driftRow
	for i, account := range accounts {
		var replayed int64
		if err := db.GetContext(ctx, &replayed, replayQuery, account.StudentID, account.Currency); err != nil {
			return nil, i, fmt.Errorf("replay %s/%s: %w", account.StudentID, account.Currency, err)
		}
		if replayed != account.Balance {
			drifts = append(drifts, driftRow{
				StudentID: account.StudentID,
				Currency:  account.Currency,
				Cached:    account.Balance,
				Replayed:  replayed,
			})
			if failFast {
				return drifts, i + 1, nil
			}
		}
	}
	return drifts, len(accounts), nil
}
