// Package storetest opens isolated in-memory stores for tests.
package storetest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/tariel-x/affiliates/internal/database"
	"github.com/tariel-x/affiliates/internal/store"
)

// Open returns a store backed by a per-test in-memory sqlite database.
func Open(t testing.TB) *store.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Initialize(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return store.New(db)
}
