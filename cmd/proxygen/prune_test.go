package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAge(t *testing.T) {
	d, err := parseAge("30d")
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, d)

	d, err = parseAge("36h")
	require.NoError(t, err)
	assert.Equal(t, 36*time.Hour, d)

	for _, bad := range []string{"", "0d", "-5h", "xd", "soon"} {
		_, err := parseAge(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2<<20))
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "never refreshed", formatAge(nil))
	past := time.Now().Add(-3 * time.Hour)
	assert.Equal(t, "3h ago", formatAge(&past))
	old := time.Now().Add(-72 * time.Hour)
	assert.Equal(t, "3d ago", formatAge(&old))
}
