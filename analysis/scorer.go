package analysis

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/lavraseats/lavraseats/llm"
	"github.com/lavraseats/lavraseats/metrics"
	"github.com/lavraseats/lavraseats/models"
)

const (
	MaxReviewLength = 3000
	NeutralScore    = 5.0
	MinScore        = 0.0
	MaxScore        = 10.0

	RationaleInputRejected = "text too long for detailed analysis"
	RationaleBadFormat     = "formatting error in model response"
	RationaleUnavailable   = "scoring system unavailable"
)

// Outcome tells which path produced a result. Only OutcomeOK carries model
// output; every other outcome carries a fixed fallback.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeInputRejected  Outcome = "input_rejected"
	OutcomeMalformed      Outcome = "malformed_output"
	OutcomeSchemaMismatch Outcome = "schema_mismatch"
	OutcomeTransportError Outcome = "transport_error"
)

type Scoring struct {
	Sentiment models.Sentiment
	Score     float64
	Rationale string
	Outcome   Outcome
}

// Scorer turns review text into a sentiment and a 0-10 score.
type Scorer struct {
	model llm.Invoker
	gen   llm.GenerationConfig
}

func NewScorer(model llm.Invoker, gen llm.GenerationConfig) *Scorer {
	return &Scorer{model: model, gen: gen}
}

func neutral(rationale string, outcome Outcome) Scoring {
	return Scoring{Sentiment: models.Neutral, Score: NeutralScore, Rationale: rationale, Outcome: outcome}
}

// Score never fails: any problem with the input, the transport or the reply
// yields the neutral fallback.
func (s *Scorer) Score(ctx context.Context, text string) Scoring {
	result := s.score(ctx, text)
	metrics.ScoringOutcomes.WithLabelValues(string(result.Outcome)).Inc()

	return result
}

func (s *Scorer) score(ctx context.Context, text string) Scoring {
	if text == "" || utf8.RuneCountInString(text) > MaxReviewLength {
		return neutral(RationaleInputRejected, OutcomeInputRejected)
	}

	reply, err := s.model.Invoke(ctx, BuildScoringPrompt(text), s.gen)
	if err != nil {
		slog.Error("sentiment scoring call failed", "error", err)
		return neutral(RationaleUnavailable, OutcomeTransportError)
	}

	parsed, err := ParseSentiment(reply)
	if err != nil {
		slog.Warn("sentiment reply rejected", "error", err, "raw", reply)
		return neutral(RationaleBadFormat, outcomeFor(err))
	}

	score := clamp(parsed.Score)
	if score != parsed.Score {
		slog.Warn("sentiment score out of range, clamped", "score", parsed.Score, "clamped", score)
	}

	return Scoring{
		Sentiment: parsed.Sentiment,
		Score:     score,
		Rationale: parsed.Rationale,
		Outcome:   OutcomeOK,
	}
}

func outcomeFor(err error) Outcome {
	var oe *OutputError
	if errors.As(err, &oe) && oe.Kind == SchemaMismatch {
		return OutcomeSchemaMismatch
	}
	return OutcomeMalformed
}

func clamp(score float64) float64 {
	switch {
	case score < MinScore:
		return MinScore
	case score > MaxScore:
		return MaxScore
	default:
		return score
	}
}
