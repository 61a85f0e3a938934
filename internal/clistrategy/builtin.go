package clistrategy

import (
	"regexp"

	"github.com/nadimtuhin/loopwork/pkg/models"
)

// promptMode describes how a CLI variant receives the prompt text.
type promptMode int

const (
	promptStdin promptMode = iota
	promptFlag
	promptPositional
)

var defaultRateLimitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rate.?limit`),
	regexp.MustCompile(`\b429\b`),
	regexp.MustCompile(`(?i)too many requests`),
}

var defaultQuotaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)quota.?exceed`),
	regexp.MustCompile(`(?i)insufficient.?quota`),
	regexp.MustCompile(`(?i)billing.?hard.?limit`),
}

// baseStrategy implements Strategy for the common case: a prompt delivered
// via stdin, a positional flag, or `-p`, plus an optional cache directory
// that ClearCache reports on. Each built-in variant
// wraps baseStrategy and only overrides what differs.
type baseStrategy struct {
	tag                models.CLI
	executable         string
	mode               promptMode
	cacheDir           string
	corruptionPatterns []*regexp.Regexp
	rateLimitPatterns  []*regexp.Regexp
	quotaPatterns      []*regexp.Regexp
}

func (b *baseStrategy) Tag() models.CLI { return b.tag }

func (b *baseStrategy) Build(in Input) Invocation {
	env := make(map[string]string, len(in.BaseEnv)+len(in.Descriptor.Env))
	for k, v := range in.BaseEnv {
		env[k] = v
	}
	for k, v := range in.Descriptor.Env {
		env[k] = v
	}
	if b.tag == models.CLIOpencode && in.Permissions != "" {
		env["OPENCODE_PERMISSION"] = in.Permissions
	}

	args := append([]string{}, in.Descriptor.Args...)
	if in.Descriptor.Model != "" {
		args = append(args, "--model", in.Descriptor.Model)
	}

	var stdin string
	switch b.mode {
	case promptStdin:
		stdin = in.Prompt
	case promptFlag:
		args = append(args, "-p", in.Prompt)
	case promptPositional:
		args = append(args, in.Prompt)
	}

	return Invocation{
		Args:         args,
		Env:          env,
		StdinPayload: stdin,
		DisplayName:  string(b.tag) + "/" + in.Descriptor.Model,
	}
}

func (b *baseStrategy) DetectCacheCorruption(output string) bool {
	for _, p := range b.corruptionPatterns {
		if p.MatchString(output) {
			return true
		}
	}
	return false
}

// ClearCache reports whether this variant has a cache directory configured.
// It does not delete or modify anything on disk, so a true result does not
// mean any cache was removed.
func (b *baseStrategy) ClearCache() bool {
	return b.cacheDir != ""
}

func (b *baseStrategy) RateLimitPatterns() []*regexp.Regexp { return b.rateLimitPatterns }

func (b *baseStrategy) QuotaExceededPatterns() []*regexp.Regexp { return b.quotaPatterns }

var _ Strategy = (*baseStrategy)(nil)

func builtins() []Strategy {
	return []Strategy{
		&baseStrategy{
			tag:        models.CLIClaude,
			executable: "claude",
			mode:       promptFlag,
			cacheDir:   "~/.claude",
			corruptionPatterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)ENOENT.*\.claude`),
				regexp.MustCompile(`(?i)cache.*corrupt`),
			},
			rateLimitPatterns: defaultRateLimitPatterns,
			quotaPatterns:     defaultQuotaPatterns,
		},
		&baseStrategy{
			tag:        models.CLIOpencode,
			executable: "opencode",
			mode:       promptPositional,
			cacheDir:   "~/.cache/opencode",
			corruptionPatterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)ENOENT.*\.cache[/\\]opencode`),
				regexp.MustCompile(`(?i)ENOENT.*opencode[/\\]node_modules`),
			},
			rateLimitPatterns: defaultRateLimitPatterns,
			quotaPatterns:     defaultQuotaPatterns,
		},
		&baseStrategy{
			tag:        models.CLIGemini,
			executable: "gemini",
			mode:       promptFlag,
			cacheDir:   "~/.gemini",
			corruptionPatterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)ENOENT.*\.gemini`),
			},
			rateLimitPatterns: append(append([]*regexp.Regexp{}, defaultRateLimitPatterns...),
				regexp.MustCompile(`(?i)RESOURCE_EXHAUSTED`)),
			quotaPatterns: defaultQuotaPatterns,
		},
		&baseStrategy{
			tag:                models.CLIDroid,
			executable:         "droid",
			mode:               promptFlag,
			cacheDir:           "",
			corruptionPatterns: nil,
			rateLimitPatterns:  defaultRateLimitPatterns,
			quotaPatterns:      defaultQuotaPatterns,
		},
		&baseStrategy{
			tag:        models.CLICrush,
			executable: "crush",
			mode:       promptStdin,
			cacheDir:   "~/.crush",
			corruptionPatterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)ENOENT.*\.crush`),
			},
			rateLimitPatterns: defaultRateLimitPatterns,
			quotaPatterns:     defaultQuotaPatterns,
		},
		&baseStrategy{
			tag:                models.CLIKimi,
			executable:         "kimi",
			mode:               promptFlag,
			cacheDir:           "",
			corruptionPatterns: nil,
			rateLimitPatterns:  defaultRateLimitPatterns,
			quotaPatterns:      defaultQuotaPatterns,
		},
		&baseStrategy{
			tag:        models.CLIKilocode,
			executable: "kilocode",
			mode:       promptStdin,
			cacheDir:   "~/.kilocode",
			corruptionPatterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)ENOENT.*\.kilocode`),
			},
			rateLimitPatterns: defaultRateLimitPatterns,
			quotaPatterns:     defaultQuotaPatterns,
		},
	}
}
