package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDerivesKeysFromPrefix(t *testing.T) {
	r := New(nil, "xtick", time.Minute, "", " ")
	require.Equal(t, "xtick:latest", r.keyLatest)
	require.Equal(t, "xtick:report", r.reportStream)
	require.Equal(t, "xtick:ticker", r.tickerChan)

	r = New(nil, "xtick", time.Minute, "ops:report", "ops:ticker")
	require.Equal(t, "xtick:latest", r.keyLatest)
	require.Equal(t, "ops:report", r.reportStream)
	require.Equal(t, "ops:ticker", r.tickerChan)
}
