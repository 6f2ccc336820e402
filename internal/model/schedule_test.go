package model_test

import (
	"testing"
	"time"

	"github.com/dataq-tools/pulseweb/internal/model"
	"github.com/stretchr/testify/require"
)

func TestParseCron(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"@hourly", "@every 30m", "0 * * * *", "*/15 2 * * 1-5"} {
		require.NoError(t, model.ParseCron(expr), expr)
	}

	for _, expr := range []string{"", "often", "* * * * * *", "61 * * * *"} {
		require.Error(t, model.ParseCron(expr), expr)
	}
}

func TestParseISODuration(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Duration{
		"P1D":     24 * time.Hour,
		"PT10M":   10 * time.Minute,
		"PT90S":   90 * time.Second,
		"P1DT12H": 36 * time.Hour,
		"PT0.5S":  500 * time.Millisecond,
	}
	for in, want := range cases {
		got, err := model.ParseISODuration(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "P", "PT", "1d", "24h", "P1DT", "PXD"} {
		_, err := model.ParseISODuration(in)
		require.Error(t, err, in)
	}
}
