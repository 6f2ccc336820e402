package report_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dataq-tools/pulseweb/internal/model"
	"github.com/dataq-tools/pulseweb/internal/report"
)

// analyzerStdout is what the analyzer prints for a three pulse recording,
// summary table first, detailed listing after.
const analyzerStdout = `
Pulse Analysis Complete!
Found 3 current pulses
Peak current range: 1.20 - 5.60 A
Highest peak: 5.60 A
Results saved to: foo.xlsx
Pulse summary table added to the right of the raw data

Pulse Summary:
              Peak Current
Pulse 1      120
Pulse 2      340
Pulse 3      560

Individual Pulse Details:
Pulse 1: 1.20 A at 0.100s
Pulse 2: 3.40 A at 0.205s
Pulse 3: 5.60 A at 0.310s
`

func TestParse(t *testing.T) {
	t.Parallel()

	rec := report.Parse(analyzerStdout)
	require.Equal(t, 3, rec.TotalPulses)
	require.Equal(t, "1.20 - 5.60 A", rec.PeakCurrentRange)
	require.InDelta(t, 5.6, rec.HighestPeak, 1e-9)

	// the detailed section supersedes the summary rows
	require.Equal(t, []model.Pulse{
		{Number: 1, PeakCurrent: 1.2, PeakTime: 0.1},
		{Number: 2, PeakCurrent: 3.4, PeakTime: 0.205},
		{Number: 3, PeakCurrent: 5.6, PeakTime: 0.31},
	}, rec.Pulses)
}

func TestParseIdempotent(t *testing.T) {
	t.Parallel()

	first := report.Parse(analyzerStdout)
	second := report.Parse(analyzerStdout)
	require.Equal(t, first, second)
}

func TestParseLooseOnly(t *testing.T) {
	t.Parallel()

	rec := report.Parse(`
Found 2 current pulses
Pulse 1      120
Pulse 7      340
`)
	require.Equal(t, 2, rec.TotalPulses)
	// ordinals are kept verbatim, timing defaults to zero
	require.Equal(t, []model.Pulse{
		{Number: 1, PeakCurrent: 120},
		{Number: 7, PeakCurrent: 340},
	}, rec.Pulses)
}

func TestParseDetailedSupersedesLoose(t *testing.T) {
	t.Parallel()

	rec := report.Parse(`
Pulse 1      999
Individual Pulse Details:
Pulse 1: 1.20 A at 0.100s
`)
	require.Equal(t, []model.Pulse{
		{Number: 1, PeakCurrent: 1.2, PeakTime: 0.1},
	}, rec.Pulses)
}

func TestParseEmptyDetailedSection(t *testing.T) {
	t.Parallel()

	// once the header is seen, loose lines are never consulted again,
	// even when no detailed line follows
	rec := report.Parse(`
Pulse 1      120
Individual Pulse Details:
Pulse 2      340
`)
	require.Empty(t, rec.Pulses)
}

func TestParseLastMatchWins(t *testing.T) {
	t.Parallel()

	rec := report.Parse(`
Found 2 current pulses
Highest peak: 1.00 A
Found 3 current pulses
Highest peak: 5.60 A
`)
	require.Equal(t, 3, rec.TotalPulses)
	require.InDelta(t, 5.6, rec.HighestPeak, 1e-9)
}

func TestParseNoise(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		rec := report.Parse("")
		require.Zero(t, rec.TotalPulses)
		require.Empty(t, rec.Pulses)
	})

	t.Run("unrelated text", func(t *testing.T) {
		t.Parallel()
		rec := report.Parse(`
INFO - Loading data from: foo.xlsx
INFO - Loaded 5000 data points
No pulses detected. Try adjusting the threshold parameters.
`)
		require.Zero(t, rec.TotalPulses)
		require.Empty(t, rec.Pulses)
	})

	t.Run("count without pulse lines", func(t *testing.T) {
		t.Parallel()
		// tolerated inconsistency: the count is trusted as reported
		rec := report.Parse("Found 4 current pulses")
		require.Equal(t, 4, rec.TotalPulses)
		require.Empty(t, rec.Pulses)
	})
}
