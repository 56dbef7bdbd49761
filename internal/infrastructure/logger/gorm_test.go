package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLogger_Trace(t *testing.T) {
	ctx := context.Background()
	stmt := func() (string, int64) { return `SELECT * FROM "production_runs"`, 1 }

	t.Run("errors log at error level", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Warn)

		gl.Trace(ctx, time.Now(), stmt, errors.New("deadlock detected"))
		assert.Equal(t, 1, recorded.FilterLevelExact(zapcore.ErrorLevel).Len())
	})

	t.Run("record not found is ignored", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Warn)

		gl.Trace(ctx, time.Now(), stmt, gormlogger.ErrRecordNotFound)
		assert.Zero(t, recorded.Len())
	})

	t.Run("slow statements warn", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Warn, WithSlowThreshold(10*time.Millisecond))

		gl.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
		entries := recorded.FilterLevelExact(zapcore.WarnLevel).All()
		if assert.Len(t, entries, 1) {
			assert.Equal(t, "Slow SQL", entries[0].Message)
		}
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Info).LogMode(gormlogger.Silent)

		gl.Trace(ctx, time.Now(), stmt, errors.New("boom"))
		assert.Zero(t, recorded.Len())
	})
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("DEBUG"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel(""))
}
