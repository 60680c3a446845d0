// FILE: pkg/rag/guardrail/classifier.go
// PURPOSE: Refuse diagnosis, prescription and treatment-decision requests before retrieval

package guardrail

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"oncare-chatbot-be/internal/constant"
	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/pkg/logger"

	"gopkg.in/yaml.v3"
)

const module = "guardrail"

//go:embed patterns.yaml
var defaultPatterns []byte

// Rule blocks questions containing any of Patterns or matching any of Expressions. Both are
// applied to the normalized question, so expressions are written without whitespace.
type Rule struct {
	Reason      entity.GuardrailReason `yaml:"reason"`
	Patterns    []string               `yaml:"patterns"`
	Expressions []string               `yaml:"expressions"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

type compiledPattern struct {
	reason     entity.GuardrailReason
	normalized string
	expr       *regexp.Regexp
	raw        string
}

func (p compiledPattern) matches(normalized string) bool {
	if p.expr != nil {
		return p.expr.MatchString(normalized)
	}
	return strings.Contains(normalized, p.normalized)
}

// ModelChecker is an optional second opinion for questions the patterns let through.
type ModelChecker interface {
	Check(ctx context.Context, query string) (entity.GuardrailReason, error)
}

type Classifier struct {
	mu           sync.RWMutex
	patterns     []compiledPattern
	overridePath string
	checker      ModelChecker
	logger       logger.ILogger
}

type Option func(*Classifier)

// WithOverrideFile adds the rules of a YAML file on top of the built-in list.
func WithOverrideFile(path string) Option {
	return func(c *Classifier) {
		c.overridePath = path
	}
}

func WithModelChecker(checker ModelChecker) Option {
	return func(c *Classifier) {
		c.checker = checker
	}
}

func NewClassifier(logger logger.ILogger, opts ...Option) (*Classifier, error) {
	c := &Classifier{logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rebuilds the pattern list from the embedded rules and the override file.
// On error the previous list stays active.
func (c *Classifier) Reload() error {
	rules, err := ParseRules(defaultPatterns)
	if err != nil {
		return fmt.Errorf("parse built-in guardrail patterns: %w", err)
	}

	if c.overridePath != "" {
		data, err := os.ReadFile(c.overridePath)
		switch {
		case err == nil:
			extra, err := ParseRules(data)
			if err != nil {
				return fmt.Errorf("parse guardrail override %s: %w", c.overridePath, err)
			}
			rules = append(rules, extra...)
		case os.IsNotExist(err):
			c.logger.Warn(module, "Guardrail override file not found, using built-in patterns", map[string]interface{}{
				"path": c.overridePath,
			})
		default:
			return fmt.Errorf("read guardrail override %s: %w", c.overridePath, err)
		}
	}

	compiled, err := compile(rules)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.patterns = compiled
	c.mu.Unlock()

	c.logger.Info(module, "Guardrail patterns loaded", map[string]interface{}{
		"count": len(compiled),
	})
	return nil
}

// ParseRules decodes a rules YAML document and rejects unknown reasons.
func ParseRules(data []byte) ([]Rule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	for _, rule := range file.Rules {
		switch rule.Reason {
		case entity.GuardrailReasonDiagnosis, entity.GuardrailReasonPrescription, entity.GuardrailReasonTreatmentDecision:
		default:
			return nil, fmt.Errorf("unknown guardrail reason %q", rule.Reason)
		}
	}
	return file.Rules, nil
}

func compile(rules []Rule) ([]compiledPattern, error) {
	seen := make(map[string]bool)
	var out []compiledPattern
	for _, rule := range rules {
		for _, p := range rule.Patterns {
			n := Normalize(p)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, compiledPattern{reason: rule.Reason, normalized: n, raw: p})
		}
		for _, e := range rule.Expressions {
			if e == "" || seen["re:"+e] {
				continue
			}
			seen["re:"+e] = true
			expr, err := regexp.Compile(e)
			if err != nil {
				return nil, fmt.Errorf("compile guardrail expression %q: %w", e, err)
			}
			out = append(out, compiledPattern{reason: rule.Reason, expr: expr, raw: e})
		}
	}
	return out, nil
}

// Normalize lower-cases s and drops all whitespace, so spacing variants match the same pattern.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// Classify never blocks a question on a model failure; the error is returned instead and the
// caller treats it as an upstream outage.
func (c *Classifier) Classify(ctx context.Context, query string) (entity.GuardrailVerdict, error) {
	normalized := Normalize(query)

	c.mu.RLock()
	patterns := c.patterns
	c.mu.RUnlock()

	for _, p := range patterns {
		if p.matches(normalized) {
			return blocked(p.reason, p.raw), nil
		}
	}

	if c.checker == nil {
		return allowed(), nil
	}

	reason, err := c.checker.Check(ctx, query)
	if err != nil {
		return entity.GuardrailVerdict{}, err
	}
	if reason != entity.GuardrailReasonNone {
		return blocked(reason, "model"), nil
	}
	return allowed(), nil
}

func blocked(reason entity.GuardrailReason, pattern string) entity.GuardrailVerdict {
	return entity.GuardrailVerdict{
		Blocked:          true,
		Reason:           reason,
		StandardResponse: constant.RefusalMessage,
		MatchedPattern:   pattern,
	}
}

func allowed() entity.GuardrailVerdict {
	return entity.GuardrailVerdict{Reason: entity.GuardrailReasonNone}
}
