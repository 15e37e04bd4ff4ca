// Package ledgerdb opens a ledger.Store for a configured driver and applies
// its migrations.
package ledgerdb

import (
	"fmt"

	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger/pgstore"
	"github.com/boloukiamir-bit/industrial-competence-platform-sub007/internal/ledger/sqlstore"
)

// Open returns a migrated store. An empty driver or "memory" yields a
// process-local store.
func Open(driver, dsn string) (ledger.Store, error) {
	switch driver {
	case "", "memory":
		return ledger.NewInMemoryStore(), nil
	case string(ledger.DBSQLite):
		store, err := sqlstore.OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := ledger.Migrate(store.DB(), ledger.DBSQLite); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return store, nil
	case string(ledger.DBPostgres):
		store, err := pgstore.OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
		if err := ledger.Migrate(store.DB(), ledger.DBPostgres); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}
