// Package passwordpolicy validates candidate passwords against configurable rules.
//
// Checks run in a fixed order and the first failing rule is reported:
// length, complexity, reuse of a previous password, username, forbidden
// keywords, sequential characters, repetitive characters.
package passwordpolicy

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Rule names a single password check.
type Rule string

const (
	RuleLength      Rule = "length"
	RuleComplexity  Rule = "complexity"
	RuleOldPassword Rule = "old_password"
	RuleUsername    Rule = "username"
	RuleKeywords    Rule = "keywords"
	RuleSequential  Rule = "sequential"
	RuleRepetitive  Rule = "repetitive"
)

var messages = map[Rule]string{
	RuleLength:      "Password is too short.",
	RuleComplexity:  "Password is too weak.",
	RuleOldPassword: "Password cannot be the same as the previous one.",
	RuleUsername:    "Password cannot contain username.",
	RuleKeywords:    "Password cannot contain keywords.",
	RuleSequential:  "Password cannot contain sequential characters.",
	RuleRepetitive:  "Password cannot contain repetitive characters.",
}

// Violation reports the rule a candidate password failed.
type Violation struct {
	Rule    Rule
	Message string
}

func (v *Violation) Error() string {
	return v.Message
}

func violation(rule Rule) *Violation {
	return &Violation{Rule: rule, Message: messages[rule]}
}

// Config toggles individual checks and sets their thresholds.
type Config struct {
	Enabled bool

	CheckLength     bool
	MinLength       int
	CheckComplexity bool
	MinComplexity   int

	CheckOldPassword   bool
	CheckUsername      bool
	CheckExclusionList bool
	ExclusionList      []string
	CheckSequential    bool
	SequenceLength     int
	CheckRepetitive    bool
	RepeatLength       int
}

// DefaultExclusionList holds the product keywords rejected by default.
var DefaultExclusionList = []string{
	"osd", "host", "dashboard", "pool", "block", "nfs", "ceph",
	"monitors", "gateway", "logs", "crush", "maps",
}

// DefaultConfig returns a configuration with every check enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		CheckLength:        true,
		MinLength:          8,
		CheckComplexity:    true,
		MinComplexity:      10,
		CheckOldPassword:   true,
		CheckUsername:      true,
		CheckExclusionList: true,
		ExclusionList:      append([]string(nil), DefaultExclusionList...),
		CheckSequential:    true,
		SequenceLength:     3,
		CheckRepetitive:    true,
		RepeatLength:       3,
	}
}

// Context carries per-user inputs for a validation.
type Context struct {
	Username string
	// PasswordHashes lists the current hash followed by the history, most recent first.
	PasswordHashes []string
	ForbiddenWords []string
}

// HashMatcher reports whether candidate produces hash.
type HashMatcher func(hash, candidate string) bool

// Engine evaluates the configured checks.
type Engine struct {
	cfg     Config
	matches HashMatcher
}

// NewEngine builds an Engine. A nil matcher disables the reuse check.
func NewEngine(cfg Config, matcher HashMatcher) *Engine {
	return &Engine{cfg: cfg, matches: matcher}
}

// Config returns the active configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Validate returns a *Violation for the first failing check, or nil.
func (e *Engine) Validate(candidate string, pctx Context) error {
	if !e.cfg.Enabled {
		return nil
	}
	if e.cfg.CheckLength && len([]rune(candidate)) < e.cfg.MinLength {
		return violation(RuleLength)
	}
	if e.cfg.CheckComplexity && Complexity(candidate) < e.cfg.MinComplexity {
		return violation(RuleComplexity)
	}
	if e.cfg.CheckOldPassword && e.matches != nil {
		for _, hash := range pctx.PasswordHashes {
			if hash != "" && e.matches(hash, candidate) {
				return violation(RuleOldPassword)
			}
		}
	}

	// Casers carry state and must not be shared between goroutines.
	fold := cases.Fold()
	folded := fold.String(candidate)
	if e.cfg.CheckUsername && pctx.Username != "" && strings.Contains(folded, fold.String(pctx.Username)) {
		return violation(RuleUsername)
	}
	if e.cfg.CheckExclusionList && e.containsKeyword(fold, folded, pctx.ForbiddenWords) {
		return violation(RuleKeywords)
	}
	if e.cfg.CheckSequential && hasSequence(folded, e.cfg.SequenceLength) {
		return violation(RuleSequential)
	}
	if e.cfg.CheckRepetitive && hasRepetition(folded, e.cfg.RepeatLength) {
		return violation(RuleRepetitive)
	}
	return nil
}

func (e *Engine) containsKeyword(fold cases.Caser, folded string, extra []string) bool {
	for _, words := range [][]string{e.cfg.ExclusionList, extra} {
		for _, word := range words {
			word = strings.TrimSpace(word)
			if word == "" {
				continue
			}
			if strings.Contains(folded, fold.String(word)) {
				return true
			}
		}
	}
	return false
}

// Complexity scores a password: digits and lowercase letters count 1,
// uppercase 2, punctuation and symbols 3, anything else 5.
func Complexity(password string) int {
	score := 0
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			score++
		case unicode.IsLower(r):
			score++
		case unicode.IsUpper(r):
			score += 2
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			score += 3
		default:
			score += 5
		}
	}
	return score
}

// hasSequence detects runs of n consecutive ascending or descending digits
// or letters, e.g. "123", "cba".
func hasSequence(s string, n int) bool {
	if n < 2 {
		return false
	}
	runes := []rune(s)
	up, down := 1, 1
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		if !sameClass(prev, cur) {
			up, down = 1, 1
			continue
		}
		switch cur - prev {
		case 1:
			up++
			down = 1
		case -1:
			down++
			up = 1
		default:
			up, down = 1, 1
		}
		if up >= n || down >= n {
			return true
		}
	}
	return false
}

func sameClass(a, b rune) bool {
	return (unicode.IsDigit(a) && unicode.IsDigit(b)) || (unicode.IsLetter(a) && unicode.IsLetter(b))
}

// hasRepetition detects n identical characters in a row.
func hasRepetition(s string, n int) bool {
	if n < 2 {
		return false
	}
	runes := []rune(s)
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= n {
				return true
			}
			continue
		}
		run = 1
	}
	return false
}
