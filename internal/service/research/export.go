// internal/service/research/export.go

package research

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"magnet/internal/domain/research"
)

var csvHeader = []string{
	"rank", "id", "source", "title", "problem_score",
	"engagement_raw", "engagement_z", "neg_sentiment", "is_question",
	"pain_markers", "cluster_density", "time_decay", "cluster_id", "created_utc",
}

// WriteExport encodes a run in the given format
func WriteExport(w io.Writer, run research.Run, format research.ExportFormat) error {
	switch format {
	case research.ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	case research.ExportCSV:
		return writeCSV(w, run)
	case research.ExportMarkdown:
		return writeMarkdown(w, run)
	default:
		return fmt.Errorf("%w: %q", research.ErrUnknownFormat, format)
	}
}

// writeCSV writes one row per ranked item, in rank order
func writeCSV(w io.Writer, run research.Run) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("error writing csv header: %w", err)
	}

	for i, item := range run.Ranked {
		clusterID := ""
		if item.ClusterID != nil {
			clusterID = strconv.Itoa(*item.ClusterID)
		}
		created := ""
		if item.CreatedUTC != nil {
			created = formatFloat(*item.CreatedUTC)
		}

		record := []string{
			strconv.Itoa(i + 1),
			item.ID,
			item.Source,
			item.Title,
			formatFloat(item.ProblemScore),
			strconv.FormatInt(item.Why.EngagementRaw, 10),
			formatFloat(item.Why.EngagementZ),
			formatFloat(item.Why.NegSentiment),
			formatFloat(item.Why.IsQuestion),
			formatFloat(item.Why.PainMarkers),
			formatFloat(item.Why.ClusterDensity),
			formatFloat(item.Why.TimeDecay),
			clusterID,
			created,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("error writing csv row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func writeMarkdown(w io.Writer, run research.Run) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Research Results - Run %s\n\n", run.ID)
	fmt.Fprintf(&b, "- Completed: %s\n", run.CompletedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Items: %d\n", run.TotalItems)
	fmt.Fprintf(&b, "- Clusters: %d\n\n", len(run.Trends))

	b.WriteString("## Top Problems\n\n")
	b.WriteString("| Rank | Title | Source | Score |\n")
	b.WriteString("|---|---|---|---|\n")
	for i, item := range run.Ranked {
		fmt.Fprintf(&b, "| %d | %s | %s | %.3f |\n", i+1, markdownCell(item.Title), markdownCell(item.Source), item.ProblemScore)
	}

	b.WriteString("\n## Cluster Trends\n")
	for _, report := range run.Trends {
		fmt.Fprintf(&b, "\n### Cluster %d (%s)\n\n", report.ClusterID, report.Trend)
		fmt.Fprintf(&b, "- Size: %d\n", report.Size)
		fmt.Fprintf(&b, "- SMA short/long: %.2f / %.2f\n", report.SMAShort, report.SMALong)
		if len(report.TopKeywords) > 0 {
			fmt.Fprintf(&b, "- Keywords: %s\n", strings.Join(report.TopKeywords, ", "))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// markdownCell keeps a value on one table row
func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
