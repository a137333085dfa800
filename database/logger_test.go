package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLoggerWritesToZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := newGormLogger(zap.New(core), gormlogger.Warn)
	ctx := context.Background()

	gl.Trace(ctx, time.Now().Add(-time.Second), func() (string, int64) { return "SELECT * FROM bookings", 3 }, nil)
	gl.Trace(ctx, time.Now(), func() (string, int64) { return "UPDATE bookings SET version = 2", 0 }, errors.New("disk full"))
	gl.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)

	entries := logs.All()
	require.Len(t, entries, 2, "fast successful queries stay quiet at warn")
	for _, e := range entries {
		assert.Equal(t, "gorm", e.LoggerName)
		assert.Equal(t, zapcore.WarnLevel, e.Level)
		assert.NotContains(t, e.Message, "\n")
	}
	assert.Contains(t, entries[0].Message, "SLOW SQL")
	assert.Contains(t, entries[0].Message, "SELECT * FROM bookings")
	assert.Contains(t, entries[1].Message, "disk full")
}

func TestGormLoggerSilent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := newGormLogger(zap.New(core), gormlogger.Silent)

	gl.Error(context.Background(), "boom %d", 1)
	assert.Zero(t, logs.Len())
}
