package prompt

import (
	"regexp"
	"sort"

	"github.com/bryanwahyu/automaton-risk/internal/domain/scans"
)

// Credential leaks inside alert evidence escalate a finding to critical.
var detectors = []struct {
	re    *regexp.Regexp
	title string
}{
	{regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`), "private key"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AWS access key"},
	{regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{20,}`), "GitHub token"},
	{regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`), "Google API key"},
	{regexp.MustCompile(`xox[baprs]-[A-Za-z0-9\-]{10,}`), "Slack token"},
	{regexp.MustCompile(`sk_(?:live|test)_[0-9A-Za-z]{10,}`), "Stripe secret key"},
	{regexp.MustCompile(`[A-Za-z0-9-_]{8,}\.eyJ[A-Za-z0-9-_]{5,}\.[A-Za-z0-9-_]{10,}`), "JWT"},
	{regexp.MustCompile(`://[^\s/:@]+:[^\s/@]+@`), "credentials in URL"},
}

var severityRank = map[string]int{"critical": 4, "high": 3, "medium": 2, "low": 1, "info": 0}

// Severity maps an engine risk label to a triage severity.
func Severity(risk string) string {
	switch scans.NormalizeRisk(risk) {
	case "High":
		return "high"
	case "Medium":
		return "medium"
	case "Low":
		return "low"
	default:
		return "info"
	}
}

// Heuristic triages alerts without a language model: one finding per alert
// name at its highest severity, counted once per finding.
func Heuristic(run *scans.ScanRun, alerts []scans.Alert) *Triage {
	out := &Triage{ScanID: string(run.ID), Target: run.Target, Findings: []Finding{}}
	byName := map[string]*Finding{}
	occurrences := map[string]int{}
	var order []string

	for _, a := range alerts {
		sev := Severity(a.Risk)
		for _, d := range detectors {
			if d.re.MatchString(a.Description) {
				sev = "critical"
				break
			}
		}
		f, ok := byName[a.Name]
		if !ok {
			f = &Finding{Title: a.Name, Severity: sev, Summary: trim(a.Description, 160), Recommendation: trim(a.Solution, 240)}
			byName[a.Name] = f
			order = append(order, a.Name)
		}
		if severityRank[sev] > severityRank[f.Severity] {
			f.Severity = sev
		}
		occurrences[a.Name]++
	}

	for _, name := range order {
		f := byName[name]
		if n := occurrences[name]; n > 1 && f.Summary == "" {
			f.Summary = "Reported on multiple URLs."
		}
		switch f.Severity {
		case "critical":
			out.Counts.Critical++
		case "high":
			out.Counts.High++
		case "medium":
			out.Counts.Medium++
		case "low":
			out.Counts.Low++
		}
		out.Findings = append(out.Findings, *f)
	}
	sort.SliceStable(out.Findings, func(i, j int) bool {
		return severityRank[out.Findings[i].Severity] > severityRank[out.Findings[j].Severity]
	})
	// Cap findings to a reasonable number to keep output compact
	if len(out.Findings) > 20 {
		out.Findings = out.Findings[:20]
	}
	out.Counts.Total = out.Counts.Critical + out.Counts.High + out.Counts.Medium + out.Counts.Low

	switch {
	case out.Counts.Critical > 0:
		out.Advice = "Immediate action required: credentials appear in responses. Rotate them and remove them from the application output."
	case out.Counts.High > 0:
		out.Advice = "Fix high risk findings before the next release and rescan to confirm."
	case out.Counts.Medium+out.Counts.Low > 0:
		out.Advice = "Harden headers and configuration; schedule medium and low findings into regular maintenance."
	default:
		out.Advice = "No actionable findings. Keep scanning on every deploy."
	}
	return out
}
