// Package sentiment is a small multinomial naive Bayes classifier trained
// on a fixed phrase set. It is illustrative and never consulted by detection.
package sentiment

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/opensource-health/triage/internal/domain"
)

// Labels.
const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

// Example is one labelled training phrase.
type Example struct {
	Text  string
	Label string
}

// Prediction is the classifier output. Scores are posterior probabilities
// and sum to 1.
type Prediction struct {
	Label  string             `json:"label"`
	Scores map[string]float64 `json:"scores"`
}

// Classifier is immutable once trained and safe for concurrent use.
type Classifier struct {
	labels     []string
	priors     map[string]float64
	wordCounts map[string]map[string]int
	totalWords map[string]int
	vocabulary map[string]struct{}
}

// Train builds a classifier with Laplace smoothing.
func Train(examples []Example) (*Classifier, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("%w: no training examples", domain.ErrInvalidInput)
	}

	c := &Classifier{
		priors:     make(map[string]float64),
		wordCounts: make(map[string]map[string]int),
		totalWords: make(map[string]int),
		vocabulary: make(map[string]struct{}),
	}

	docs := make(map[string]int)
	for _, ex := range examples {
		if ex.Label == "" {
			return nil, fmt.Errorf("%w: example %q has no label", domain.ErrInvalidInput, ex.Text)
		}
		docs[ex.Label]++
		if c.wordCounts[ex.Label] == nil {
			c.wordCounts[ex.Label] = make(map[string]int)
		}
		for _, w := range tokenize(ex.Text) {
			c.wordCounts[ex.Label][w]++
			c.totalWords[ex.Label]++
			c.vocabulary[w] = struct{}{}
		}
	}

	for label, n := range docs {
		c.labels = append(c.labels, label)
		c.priors[label] = math.Log(float64(n) / float64(len(examples)))
	}
	sort.Strings(c.labels)

	return c, nil
}

// Default returns a classifier trained on the built-in corpus.
func Default() *Classifier {
	c, err := Train(Corpus())
	if err != nil {
		panic(err)
	}
	return c
}

// Predict classifies text. Ties resolve to the alphabetically first label.
func (c *Classifier) Predict(text string) Prediction {
	words := tokenize(text)
	vocab := float64(len(c.vocabulary))

	logs := make(map[string]float64, len(c.labels))
	best := ""
	for _, label := range c.labels {
		score := c.priors[label]
		denom := float64(c.totalWords[label]) + vocab
		for _, w := range words {
			if _, known := c.vocabulary[w]; !known {
				continue
			}
			score += math.Log((float64(c.wordCounts[label][w]) + 1) / denom)
		}
		logs[label] = score
		if best == "" || score > logs[best] {
			best = label
		}
	}

	return Prediction{Label: best, Scores: normalize(logs)}
}

// Labels returns the known labels in sorted order.
func (c *Classifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

// normalize turns log scores into probabilities using log-sum-exp.
func normalize(logs map[string]float64) map[string]float64 {
	max := math.Inf(-1)
	for _, v := range logs {
		if v > max {
			max = v
		}
	}
	sum := 0.0
	for _, v := range logs {
		sum += math.Exp(v - max)
	}
	out := make(map[string]float64, len(logs))
	for k, v := range logs {
		out[k] = math.Exp(v-max) / sum
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
