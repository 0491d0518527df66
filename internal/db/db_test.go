package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-spot-backend/config"
	"parking-spot-backend/internal/model"
)

func TestInitSQLite(t *testing.T) {
	gdb, err := Init(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:dbinit?mode=memory&cache=shared",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)

	for _, table := range []any{&model.User{}, &model.ParkingSpot{}, &model.Release{}, &model.Request{}, &model.Hold{}, &model.PushSubscription{}} {
		assert.True(t, gdb.Migrator().HasTable(table))
	}
	assert.True(t, gdb.Migrator().HasIndex(&model.Release{}, "idx_release_active_slot"))
	assert.True(t, gdb.Migrator().HasIndex(&model.Hold{}, "idx_hold_active_user_kind"))
}

func TestInitRejectsUnknownDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
