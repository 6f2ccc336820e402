// Package report scrapes the analyzer stage stdout into a typed record.
//
// The analyzer talks in human-readable diagnostic text, not a defined wire
// format, so this is a best-effort line scrape: known lines are extracted,
// everything else is ignored. Later matches for the same field overwrite
// earlier ones.
package report

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/dataq-tools/pulseweb/internal/model"
)

// detailedHeader starts the authoritative per-pulse listing. Once seen,
// pulses collected from the loose summary rows are discarded and only
// detailed rows append, even if none follow.
const detailedHeader = "Individual Pulse Details"

var (
	reFound   = regexp.MustCompile(`Found\s+(\d+)\s+current pulses`)
	reRange   = regexp.MustCompile(`Peak current range:\s*(\d+(?:\.\d+)?\s*-\s*\d+(?:\.\d+)?\s*A)`)
	reHighest = regexp.MustCompile(`Highest peak:\s*(\d+(?:\.\d+)?)`)

	// Pulse 2: 3.40 A at 0.205s
	reDetailed = regexp.MustCompile(`^Pulse\s+(\d+):\s*(\d+(?:\.\d+)?)\s*A\s+at\s+(\d+(?:\.\d+)?)s`)

	// Pulse 2      340   (summary table row, no timing information)
	reLoose = regexp.MustCompile(`^Pulse\s+(\d+)\s+(\d+(?:\.\d+)?)\s*$`)
)

// Parse converts analyzer stdout into an AnalysisRecord. Pure function:
// same text in, same record out, no state kept between calls. Text with
// no recognizable lines yields an empty record, not an error.
func Parse(stdout string) model.AnalysisRecord {
	rec := model.AnalysisRecord{
		Pulses: []model.Pulse{},
	}

	detailed := false
	sc := bufio.NewScanner(strings.NewReader(strings.TrimSpace(stdout)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		switch {
		case strings.Contains(line, "Found") && strings.Contains(line, "current pulses"):
			if m := reFound.FindStringSubmatch(line); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					rec.TotalPulses = n
				}
			}

		case strings.Contains(line, "Peak current range:"):
			if m := reRange.FindStringSubmatch(line); m != nil {
				rec.PeakCurrentRange = m[1]
			}

		case strings.Contains(line, "Highest peak:"):
			if m := reHighest.FindStringSubmatch(line); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					rec.HighestPeak = v
				}
			}

		case strings.Contains(line, detailedHeader):
			// the detailed section supersedes anything collected so far
			rec.Pulses = rec.Pulses[:0]
			detailed = true

		case detailed:
			if m := reDetailed.FindStringSubmatch(line); m != nil {
				rec.Pulses = append(rec.Pulses, pulse(m[1], m[2], m[3]))
			}

		default:
			if m := reLoose.FindStringSubmatch(line); m != nil {
				rec.Pulses = append(rec.Pulses, pulse(m[1], m[2], ""))
			}
		}
	}

	return rec
}

func pulse(number, peak, at string) model.Pulse {
	var p model.Pulse
	p.Number, _ = strconv.Atoi(number)
	p.PeakCurrent, _ = strconv.ParseFloat(peak, 64)
	if at != "" {
		p.PeakTime, _ = strconv.ParseFloat(at, 64)
	}
	return p
}
