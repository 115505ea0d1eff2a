// Package prompt builds the triage prompts and parses the answer schema.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bryanwahyu/automaton-risk/internal/domain/scans"
)

// maxPromptAlerts caps the alerts sent to the model.
const maxPromptAlerts = 200

// SystemPrompt provides strict directions and schema for JSON output.
func SystemPrompt() string {
	return `You are a senior application security analyst triaging the alerts of one dynamic web scan. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase severity values: critical, high, medium, low, info.
- counts.total must equal counts.critical + counts.high + counts.medium + counts.low.
- findings groups alerts with the same root cause; include at least a title, severity, and summary. Keep items concise.
- Only reason about the alerts provided. Do not invent endpoints or evidence.

Schema (example with empty values):
{
  "scan_id": "<string>",
  "target": "<string>",
  "counts": {"critical": 0, "high": 0, "medium": 0, "low": 0, "total": 0},
  "findings": [
    {
      "title": "<string>",
      "severity": "<critical|high|medium|low|info>",
      "summary": "<string>",
      "recommendation": "<string>"
    }
  ],
  "advice": "<string>"
}`
}

type promptAlert struct {
	Name        string `json:"alert_name"`
	Risk        string `json:"risk"`
	Confidence  string `json:"confidence,omitempty"`
	Description string `json:"description,omitempty"`
	Solution    string `json:"solution,omitempty"`
}

// UserPrompt lists the alerts of run as compact JSON.
func UserPrompt(run *scans.ScanRun, alerts []scans.Alert) (string, error) {
	list := make([]promptAlert, 0, min(len(alerts), maxPromptAlerts))
	for i, a := range alerts {
		if i == maxPromptAlerts {
			break
		}
		list = append(list, promptAlert{
			Name:        a.Name,
			Risk:        a.Risk,
			Confidence:  a.Confidence,
			Description: trim(a.Description, 400),
			Solution:    trim(a.Solution, 400),
		})
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Triage the scan %s of target %s (status %s, %d alerts) and respond with the JSON per schema.\nAlerts: %s",
		run.ID, run.Target, run.Status, len(alerts), b), nil
}

type Counts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

type Finding struct {
	Title          string `json:"title"`
	Severity       string `json:"severity"`
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
}

// Triage is the answer schema of SystemPrompt.
type Triage struct {
	ScanID   string    `json:"scan_id"`
	Target   string    `json:"target"`
	Counts   Counts    `json:"counts"`
	Findings []Finding `json:"findings"`
	Advice   string    `json:"advice"`
}

var severities = map[string]bool{"critical": true, "high": true, "medium": true, "low": true, "info": true}

// ParseTriage decodes and checks a model answer. A wrong total is corrected,
// an unknown severity is an error.
func ParseTriage(raw string) (*Triage, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")
	var t Triage
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode triage: %w", err)
	}
	for i := range t.Findings {
		sev := strings.ToLower(strings.TrimSpace(t.Findings[i].Severity))
		if !severities[sev] {
			return nil, fmt.Errorf("finding %d: unknown severity %q", i, t.Findings[i].Severity)
		}
		t.Findings[i].Severity = sev
	}
	if t.Findings == nil {
		t.Findings = []Finding{}
	}
	if t.Counts.Critical < 0 || t.Counts.High < 0 || t.Counts.Medium < 0 || t.Counts.Low < 0 {
		return nil, errors.New("negative count")
	}
	t.Counts.Total = t.Counts.Critical + t.Counts.High + t.Counts.Medium + t.Counts.Low
	return &t, nil
}

// Helper to keep summaries concise
func trim(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
