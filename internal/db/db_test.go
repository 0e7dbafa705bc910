package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"proxygen/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type captureWriter struct {
	lines []string
}

func (c *captureWriter) Printf(format string, args ...interface{}) {
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	w := &captureWriter{}
	l := newGormLogger(w)
	stmt := func() (string, int64) { return "SELECT * FROM profiles", 0 }

	l.Trace(context.Background(), time.Now(), stmt, gorm.ErrRecordNotFound)
	assert.Empty(t, w.lines)

	l.Trace(context.Background(), time.Now(), stmt, errors.New("disk I/O error"))
	require.Len(t, w.lines, 1)
	assert.Contains(t, w.lines[0], "disk I/O error")
}

func TestRegisteringProfileLogsNothing(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	prev := logger.Log
	logger.Log = zap.New(core).Sugar()
	t.Cleanup(func() { logger.Log = prev })

	r := newRegistry(t)
	_, err := r.Ensure("home", "https://a.example/sub", "http")
	require.NoError(t, err)

	_, err = r.Get("missing")
	require.Error(t, err)

	assert.Zero(t, logs.Len(), "unexpected log lines: %v", logs.All())
}
