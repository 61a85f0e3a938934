// Package classifier labels a finished CLI run and extracts best-effort
// metrics from its free-text output.
package classifier

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nadimtuhin/loopwork/internal/clistrategy"
	"github.com/nadimtuhin/loopwork/pkg/models"
)

// Input is the outcome of one process-runner invocation plus the context
// needed to classify it.
type Input struct {
	ExitCode        int
	Stdout          string
	Stderr          string
	WallMs          int64
	Strategy        clistrategy.Strategy
	ModelDescriptor models.ModelDescriptor
}

// Output is the classification plus whatever metrics could be parsed.
type Output struct {
	Status  models.Classification
	Metrics models.ExtractedMetrics
}

var (
	tokensInPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)input tokens?:\s*(\d+)`),
		regexp.MustCompile(`(?i)prompt tokens?:\s*(\d+)`),
		regexp.MustCompile(`(?i)tokens:\s*(\d+)\s*input`),
	}
	tokensOutPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)output tokens?:\s*(\d+)`),
		regexp.MustCompile(`(?i)completion tokens?:\s*(\d+)`),
		regexp.MustCompile(`(?i)tokens:\s*(\d+)\s*output`),
	}
	toolCallsPattern  = regexp.MustCompile(`(?i)tool calls?:\s*(\d+)`)
	totalTokensFallback = regexp.MustCompile(`(?i)tokens?(?: used)?:\s*(\d+)`)
)

// Classify applies the engine's fixed decision order (first match wins) and
// extracts whatever metrics the combined output contains. It never returns
// an error: ambiguous output always yields ClassFailure.
func Classify(in Input) Output {
	combined := in.Stdout + "\n" + in.Stderr

	status := decide(in, combined)
	return Output{
		Status:  status,
		Metrics: extractMetrics(combined),
	}
}

func decide(in Input, combined string) models.Classification {
	if in.Strategy != nil && in.Strategy.DetectCacheCorruption(combined) {
		return models.ClassCacheCorrupt
	}
	if in.Strategy != nil {
		for _, p := range in.Strategy.RateLimitPatterns() {
			if p.MatchString(combined) {
				return models.ClassRateLimited
			}
		}
		for _, p := range in.Strategy.QuotaExceededPatterns() {
			if p.MatchString(combined) {
				return models.ClassQuotaExhausted
			}
		}
	}
	if in.ExitCode == 0 && strings.TrimSpace(in.Stdout) != "" {
		return models.ClassSuccess
	}
	return models.ClassFailure
}

func extractMetrics(combined string) models.ExtractedMetrics {
	var m models.ExtractedMetrics
	m.TokensIn = firstMatch(tokensInPatterns, combined)
	m.TokensOut = firstMatch(tokensOutPatterns, combined)
	m.ToolCalls = firstMatch([]*regexp.Regexp{toolCallsPattern}, combined)

	if m.TokensIn != nil && m.TokensOut != nil {
		total := *m.TokensIn + *m.TokensOut
		m.TotalTokens = &total
	} else {
		m.TotalTokens = firstMatch([]*regexp.Regexp{totalTokensFallback}, combined)
	}
	return m
}

func firstMatch(patterns []*regexp.Regexp, text string) *int {
	for _, p := range patterns {
		if sub := p.FindStringSubmatch(text); sub != nil {
			if n, err := strconv.Atoi(sub[1]); err == nil {
				return &n
			}
		}
	}
	return nil
}
