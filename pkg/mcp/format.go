package mcp

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/glossa-app/glossa/pkg/models"
)

func formatVocabulary(items []models.VocabularyAnalysis) string {
	if len(items) == 0 {
		return "No words to report."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %10s %9s  %s\n", "Word", "Difficulty", "Technical", "Definition")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, it := range items {
		technical := ""
		if it.IsTechnicalTerm {
			technical = "yes"
		}
		fmt.Fprintf(&b, "%-24s %10d %9s  %s\n", it.Word, it.Difficulty, technical, it.Definition)
	}
	return b.String()
}

func formatCacheStats(stats map[models.Namespace]models.CacheStats, usage models.CacheUsage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %8s %8s %8s %9s\n", "Namespace", "Entries", "Hits", "Misses", "Hit Rate")
	b.WriteString(strings.Repeat("-", 49) + "\n")
	for _, ns := range models.Namespaces {
		s := stats[ns]
		fmt.Fprintf(&b, "%-12s %8d %8d %8d %8.1f%%\n",
			ns, usage.Entries[ns], s.Hits, s.Misses, s.HitRate*100)
	}
	quota := "unlimited"
	if usage.QuotaBytes > 0 {
		quota = humanize.IBytes(uint64(usage.QuotaBytes))
	}
	fmt.Fprintf(&b, "\nStorage: %s of %s\n", humanize.IBytes(uint64(usage.BytesInUse)), quota)
	return b.String()
}

func formatStatus(status models.ServiceStatus) string {
	var b strings.Builder
	for _, id := range models.BackendIDs {
		state := "unavailable"
		if ok, known := status.BackendAvailable[id]; !known {
			state = "not configured"
		} else if ok {
			state = "available"
		}
		fmt.Fprintf(&b, "%-6s %s\n", id, state)
	}
	if !status.LastChecked.IsZero() {
		fmt.Fprintf(&b, "Last checked %s\n", humanize.Time(status.LastChecked))
	}
	return b.String()
}

func formatAttempts(rows []models.Attempt) string {
	if len(rows) == 0 {
		return "No attempts found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-36s %-18s %-6s %-8s %4s %8s  %s\n",
		"Time", "Request", "Capability", "Backend", "Outcome", "Try", "Latency", "Error")
	b.WriteString(strings.Repeat("-", 120) + "\n")
	for _, a := range rows {
		errText := ""
		if a.ErrorKind != "" {
			errText = a.ErrorKind + ": " + a.Message
		}
		fmt.Fprintf(&b, "%-20s %-36s %-18s %-6s %-8s %4d %6dms  %s\n",
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			a.RequestID, a.Capability, a.Backend, a.Outcome, a.Attempts, a.LatencyMs, errText)
	}
	return b.String()
}
