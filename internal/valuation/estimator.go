// Package valuation assigns a point value to a new listing. A generative model
// is asked first; any failure falls back to the rule-based value.
package valuation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/metrics"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Model completes a prompt with free-form text.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Input struct {
	Title           string
	Author          string
	Condition       string
	SimilarListings int
	PendingDemand   int
}

type Estimate struct {
	Points    int    `json:"points"`
	Source    string `json:"source"`
	Reasoning string `json:"reasoning,omitempty"`
}

var (
	errNoJSON      = errors.New("no JSON object in reply")
	errNoPoints    = errors.New("reply has no numeric points")
	errOutOfBounds = errors.New("points out of range")
)

type Estimator struct {
	model   Model
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewEstimator accepts a nil model; every estimate is then rule-based.
func NewEstimator(model Model, timeout time.Duration, m *metrics.Metrics) *Estimator {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Estimator{model: model, timeout: timeout, metrics: m}
}

// Estimate always returns a value in [50, 500] that is a multiple of 10.
func (e *Estimator) Estimate(ctx context.Context, in Input) Estimate {
	if in.SimilarListings < 0 {
		in.SimilarListings = 0
	}
	if in.PendingDemand < 0 {
		in.PendingDemand = 0
	}
	if e.model != nil {
		est, err := e.ask(ctx, in)
		if err == nil {
			e.metrics.Valuation(SourceModel)
			return est
		}
		log.WithError(err).WithFields(log.Fields{
			"title":     in.Title,
			"condition": in.Condition,
		}).Warn("valuation model unavailable, using rule-based value")
	}
	e.metrics.Valuation(SourceFallback)
	return Estimate{
		Points: RuleBased(in.Condition, in.SimilarListings, in.PendingDemand),
		Source: SourceFallback,
	}
}

func (e *Estimator) ask(ctx context.Context, in Input) (Estimate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	reply, err := e.model.Complete(ctx, Prompt(in))
	if err != nil {
		return Estimate{}, err
	}
	points, reasoning, err := ParseReply(reply)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{Points: points, Source: SourceModel, Reasoning: reasoning}, nil
}

// Prompt describes the book and its market to the model.
func Prompt(in Input) string {
	var b strings.Builder
	b.WriteString("You price second-hand books for a swap marketplace that trades in points.\n")
	fmt.Fprintf(&b, "Title: %s\nAuthor: %s\nCondition: %s\n", in.Title, in.Author, in.Condition)
	fmt.Fprintf(&b, "Other available copies of this book: %d\n", in.SimilarListings)
	fmt.Fprintf(&b, "Members currently waiting for this book: %d\n", in.PendingDemand)
	fmt.Fprintf(&b, "A typical book in GOOD condition is worth 100 points. Values range from %d to %d.\n",
		domain.MinPointValue, domain.MaxPointValue)
	b.WriteString(`Reply with one JSON object only: {"points": <number>, "reasoning": "<one sentence>"}`)
	return b.String()
}

// ParseReply reads points from the first well-formed JSON object in reply and
// rounds it to the nearest 10.
func ParseReply(reply string) (int, string, error) {
	obj, err := firstObject(reply)
	if err != nil {
		return 0, "", err
	}
	p := gjson.GetBytes(obj, "points")
	if p.Type != gjson.Number {
		return 0, "", errNoPoints
	}
	v := p.Float()
	if math.IsNaN(v) || math.IsInf(v, 0) || v < domain.MinPointValue || v > domain.MaxPointValue {
		return 0, "", fmt.Errorf("%w: %v", errOutOfBounds, v)
	}
	points := int(math.Round(v/10) * 10)
	return clamp(points), gjson.GetBytes(obj, "reasoning").String(), nil
}

func firstObject(text string) ([]byte, error) {
	for i := strings.IndexByte(text, '{'); i >= 0; {
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err == nil {
			return raw, nil
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, errNoJSON
}
