package policy

import (
	"regexp"
	"strings"
)

// RiskLevel indicates the danger level of an operation.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskWarning
	RiskBlocked
)

// RiskResult contains the analysis of an operation's risk.
type RiskResult struct {
	Level  RiskLevel
	Reason string
}

type riskPattern struct {
	regex  *regexp.Regexp
	level  RiskLevel
	reason string
}

// Analyzer screens commands and tool parameters for destructive semantics
// before the gate decides.
type Analyzer struct {
	patterns []riskPattern
}

// NewAnalyzer creates an analyzer with the default denylist.
func NewAnalyzer() *Analyzer {
	return &Analyzer{patterns: defaultPatterns()}
}

func defaultPatterns() []riskPattern {
	return []riskPattern{
		{
			regex:  regexp.MustCompile(`rm\s+(-[rf]+\s+)*(/|/\*|\.\.|~)(\s|$)`),
			level:  RiskBlocked,
			reason: "destructive filesystem operation on critical path",
		},
		{
			regex:  regexp.MustCompile(`rm\s+-rf\s+\.git(\s|$)`),
			level:  RiskBlocked,
			reason: "deleting .git destroys repository history",
		},
		{
			regex:  regexp.MustCompile(`mkfs\s`),
			level:  RiskBlocked,
			reason: "filesystem formatting is blocked",
		},
		{
			regex:  regexp.MustCompile(`dd\s+.*of=/dev/`),
			level:  RiskBlocked,
			reason: "direct device write is blocked",
		},
		{
			regex:  regexp.MustCompile(`git\s+push\s+.*--force(\s|$)`),
			level:  RiskBlocked,
			reason: "force push destroys remote history",
		},
		{
			regex:  regexp.MustCompile(`(?i)DROP\s+(DATABASE|TABLE)`),
			level:  RiskBlocked,
			reason: "dropping database objects requires explicit confirmation",
		},
		{
			regex:  regexp.MustCompile(`(?i)DELETE\s+FROM\s+\w+\s*(;|$)`),
			level:  RiskWarning,
			reason: "DELETE without WHERE clause affects all rows",
		},
		{
			regex:  regexp.MustCompile(`git\s+add\s+.*(\.env|id_rsa|id_ed25519|\.pem|\.key)`),
			level:  RiskBlocked,
			reason: "secrets must never be committed",
		},
		{
			regex:  regexp.MustCompile(`curl\s+.*\|\s*(bash|sh)`),
			level:  RiskWarning,
			reason: "piping curl to shell is risky",
		},
		{
			regex:  regexp.MustCompile(`git\s+reset\s+--hard`),
			level:  RiskWarning,
			reason: "hard reset discards uncommitted changes",
		},
	}
}

// Analyze checks a command string against the denylist.
func (a *Analyzer) Analyze(command string) RiskResult {
	cmd := strings.TrimSpace(command)
	for _, p := range a.patterns {
		if p.regex.MatchString(cmd) {
			return RiskResult{Level: p.level, Reason: p.reason}
		}
	}
	return RiskResult{Level: RiskSafe}
}
