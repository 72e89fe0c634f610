// Package lexicon provides the symptom lexicon and the CEL-based keyword matcher.
package lexicon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-health/triage/internal/domain"
)

// Match conditions used when a rule carries no expression of its own.
const (
	substringExpression = `keywords.exists(k, text.contains(k))`
	wordExpression      = `keywords.exists(k, words.contains(" " + k + " "))`
)

// Lexicon is an immutable, ordered set of compiled disease rules.
// It is safe for concurrent use.
type Lexicon struct {
	version string
	mode    domain.MatchMode
	rules   []*compiledRule
}

type compiledRule struct {
	rule     domain.DiseaseRule
	keywords []string
	program  cel.Program
}

// New validates and compiles rules. Declaration order is preserved and
// defines the order of Detect results.
func New(rules []domain.DiseaseRule, mode domain.MatchMode) (*Lexicon, error) {
	if mode == "" {
		mode = domain.MatchSubstring
	}
	if mode != domain.MatchSubstring && mode != domain.MatchWord {
		return nil, fmt.Errorf("%w: unknown match mode %q", domain.ErrInvalidInput, mode)
	}

	env, err := cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("words", cel.StringType),
		cel.Variable("tokens", cel.ListType(cel.StringType)),
		cel.Variable("keywords", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	seen := make(map[string]bool, len(rules))
	compiled := make([]*compiledRule, 0, len(rules))

	for i, r := range rules {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("%w: rule %d has no name", domain.ErrInvalidInput, i)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("%w: duplicate rule name %q", domain.ErrInvalidInput, r.Name)
		}
		seen[r.Name] = true

		c, err := compileRule(env, cloneRule(r), mode)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, c)
	}

	return &Lexicon{
		version: fingerprint(rules, mode),
		mode:    mode,
		rules:   compiled,
	}, nil
}

func compileRule(env *cel.Env, r domain.DiseaseRule, mode domain.MatchMode) (*compiledRule, error) {
	lowered := make([]string, 0, len(r.Keywords))
	keywords := make([]string, 0, len(r.Keywords))
	for _, k := range r.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		needle := k
		if mode == domain.MatchWord {
			needle = strings.Join(tokenize(k), " ")
		}
		if needle == "" {
			continue
		}
		lowered = append(lowered, k)
		keywords = append(keywords, needle)
	}
	r.Keywords = lowered
	if len(keywords) == 0 {
		return nil, fmt.Errorf("%w: rule %q has no keywords", domain.ErrInvalidInput, r.Name)
	}

	expr := r.Expression
	if expr == "" {
		expr = substringExpression
		if mode == domain.MatchWord {
			expr = wordExpression
		}
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", r.Name, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", r.Name, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", r.Name, err)
	}

	return &compiledRule{
		rule:     r,
		keywords: keywords,
		program:  program,
	}, nil
}

// Detect returns a snapshot of every rule that matches text, in
// declaration order. Text that matches nothing yields an empty slice.
func (l *Lexicon) Detect(text string) []domain.DetectionMatch {
	matches := make([]domain.DetectionMatch, 0)

	normalized := strings.ToLower(text)
	if strings.TrimSpace(normalized) == "" {
		return matches
	}

	tokens := tokenize(normalized)
	words := " " + strings.Join(tokens, " ") + " "

	for _, c := range l.rules {
		out, _, err := c.program.Eval(map[string]any{
			"text":     normalized,
			"words":    words,
			"tokens":   tokens,
			"keywords": c.keywords,
		})
		if err != nil {
			slog.Warn("lexicon rule evaluation failed", "rule", c.rule.Name, "error", err)
			continue
		}
		if out != types.True {
			continue
		}

		matches = append(matches, domain.DetectionMatch{
			Disease:          c.rule.Name,
			MedicationAdvice: c.rule.MedicationAdvice,
			DoctorAdvice:     c.rule.DoctorAdvice,
			Symptoms:         append([]string(nil), c.rule.Symptoms...),
		})
	}

	return matches
}

// Rules returns copies of the loaded rules in declaration order.
func (l *Lexicon) Rules() []domain.DiseaseRule {
	rules := make([]domain.DiseaseRule, len(l.rules))
	for i, c := range l.rules {
		rules[i] = cloneRule(c.rule)
	}
	return rules
}

// Version identifies the lexicon content. Two lexicons with the same rules
// and mode share a version.
func (l *Lexicon) Version() string {
	return l.version
}

// Mode returns the keyword match mode.
func (l *Lexicon) Mode() domain.MatchMode {
	return l.mode
}

// Len returns the number of rules.
func (l *Lexicon) Len() int {
	return len(l.rules)
}

// tokenize splits text into runs of letters and digits.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func cloneRule(r domain.DiseaseRule) domain.DiseaseRule {
	r.Keywords = append([]string(nil), r.Keywords...)
	r.Symptoms = append([]string(nil), r.Symptoms...)
	return r
}

func fingerprint(rules []domain.DiseaseRule, mode domain.MatchMode) string {
	data, _ := json.Marshal(struct {
		Mode  domain.MatchMode     `json:"mode"`
		Rules []domain.DiseaseRule `json:"rules"`
	}{mode, rules})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6])
}
