package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"stockledger/internal/domain"
	"stockledger/internal/repos"
)

const maxTxAttempts = 3

// isTransient spots sqlite lock contention. Anything else is a real
// failure and is not retried.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "database is locked") || strings.Contains(s, "busy")
}

// retryTx runs fn in a transaction, retrying transient storage failures a
// bounded number of times. Business errors pass through untouched; a
// transient failure that survives all attempts surfaces as ErrStorage.
// Callers make fn retry-safe via movement idempotency keys.
func retryTx(db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = repos.WithTx(db, fn)
		if err == nil || !isTransient(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 25 * time.Millisecond)
	}
	return fmt.Errorf("%w: %v", domain.ErrStorage, err)
}
