package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"portal-chat/internal/storage"
)

// DailyStats содержит статистику за день
type DailyStats struct {
	Date             string                    `json:"date"`
	TotalTurns       int                       `json:"total_turns"`
	StreamedTurns    int                       `json:"streamed_turns"`
	UniquePrincipals int                       `json:"unique_principals"`
	Sessions         int                       `json:"sessions"`
	Tokens           int                       `json:"tokens"`
	ToolCallsTotal   int                       `json:"tool_calls_total"`
	ToolsByName      map[string]int            `json:"tools_by_name"`
	TurnsByAgent     map[string]int            `json:"turns_by_agent"`
	PrincipalStats   map[string]PrincipalStats `json:"principal_stats"`
}

// PrincipalStats содержит статистику по пользователю портала
type PrincipalStats struct {
	Principal string `json:"principal"`
	Turns     int    `json:"turns"`
	ToolCalls int    `json:"tool_calls"`
	Tokens    int    `json:"tokens"`
}

// AnalyzeDailyLogs анализирует журнал за указанную дату
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:           startOfDay.Format("2006-01-02"),
		ToolsByName:    make(map[string]int),
		TurnsByAgent:   make(map[string]int),
		PrincipalStats: make(map[string]PrincipalStats),
	}
	sessions := make(map[string]bool)

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		// Считаем только настоящие ходы с сообщением пользователя
		if event.UserMessage == "" {
			continue
		}
		stats.TotalTurns++
		stats.Tokens += event.Tokens
		if event.Streamed {
			stats.StreamedTurns++
		}
		if event.SessionID != "" {
			sessions[event.SessionID] = true
		}
		if event.Agent != "" {
			stats.TurnsByAgent[event.Agent]++
		}

		ps := stats.PrincipalStats[event.Principal]
		ps.Principal = event.Principal
		ps.Turns++
		ps.Tokens += event.Tokens
		for _, name := range event.Tools {
			stats.ToolCallsTotal++
			stats.ToolsByName[name]++
			ps.ToolCalls++
		}
		stats.PrincipalStats[event.Principal] = ps
	}

	stats.UniquePrincipals = len(stats.PrincipalStats)
	stats.Sessions = len(sessions)
	return stats
}

// GenerateReportSummary создает текстовое резюме для журнала и отчетов
func (ds *DailyStats) GenerateReportSummary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Portal chat usage for %s:\n\n", ds.Date)
	fmt.Fprintf(&sb, "- Turns: %d (%d streamed)\n", ds.TotalTurns, ds.StreamedTurns)
	fmt.Fprintf(&sb, "- Principals: %d\n", ds.UniquePrincipals)
	fmt.Fprintf(&sb, "- Sessions: %d\n", ds.Sessions)
	fmt.Fprintf(&sb, "- Tokens: %d\n", ds.Tokens)
	fmt.Fprintf(&sb, "- Tool calls: %d\n", ds.ToolCallsTotal)

	if len(ds.TurnsByAgent) > 0 {
		sb.WriteString("\nAgents:\n")
		for _, name := range sortedKeys(ds.TurnsByAgent) {
			fmt.Fprintf(&sb, "- %s: %d turns\n", name, ds.TurnsByAgent[name])
		}
	}
	if len(ds.ToolsByName) > 0 {
		sb.WriteString("\nTools:\n")
		for _, name := range sortedKeys(ds.ToolsByName) {
			fmt.Fprintf(&sb, "- %s: %d calls\n", name, ds.ToolsByName[name])
		}
	}
	if len(ds.PrincipalStats) > 0 {
		sb.WriteString("\nPrincipals:\n")
		names := make([]string, 0, len(ds.PrincipalStats))
		for name := range ds.PrincipalStats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ps := ds.PrincipalStats[name]
			fmt.Fprintf(&sb, "- %s: %d turns", name, ps.Turns)
			if ps.ToolCalls > 0 {
				fmt.Fprintf(&sb, ", %d tool calls", ps.ToolCalls)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// ToJSON сериализует статистику в JSON для детального анализа
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
