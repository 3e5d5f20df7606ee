package analysis

import (
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/lavraseats/lavraseats/models"
)

// SentimentResult is the validated shape of a scoring reply.
type SentimentResult struct {
	Rationale string           `json:"rationale"`
	Sentiment models.Sentiment `json:"sentiment"`
	Score     float64          `json:"score"`
}

// RecommendationResult is the validated shape of a matching reply. A nil
// RestaurantID means the model found no match.
type RecommendationResult struct {
	RestaurantID *int64 `json:"recommended_restaurant_id"`
	Message      string `json:"explanatory_message"`
}

func mismatch(format string, args ...any) *OutputError {
	return &OutputError{Kind: SchemaMismatch, Reason: fmt.Sprintf(format, args...)}
}

// ValidateSentiment accepts only an object carrying every field with the
// right type. The score is not range checked here.
func ValidateSentiment(value any) (SentimentResult, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return SentimentResult{}, mismatch("expected object, got %T", value)
	}

	rationale, err := stringField(obj, "rationale")
	if err != nil {
		return SentimentResult{}, err
	}

	label, err := stringField(obj, "sentiment")
	if err != nil {
		return SentimentResult{}, err
	}
	sentiment := models.Sentiment(label)
	if !sentiment.Valid() {
		return SentimentResult{}, mismatch("sentiment %q is not one of positive, neutral, negative", label)
	}

	raw, present := obj["score"]
	if !present {
		return SentimentResult{}, mismatch("missing field score")
	}
	score, ok := number(raw)
	if !ok {
		return SentimentResult{}, mismatch("score must be a finite number, got %v", raw)
	}

	return SentimentResult{Rationale: rationale, Sentiment: sentiment, Score: score}, nil
}

// ValidateRecommendation requires recommended_restaurant_id to be present
// and either an integer or null.
func ValidateRecommendation(value any) (RecommendationResult, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return RecommendationResult{}, mismatch("expected object, got %T", value)
	}

	raw, present := obj["recommended_restaurant_id"]
	if !present {
		return RecommendationResult{}, mismatch("missing field recommended_restaurant_id")
	}

	var id *int64
	if raw != nil {
		n, ok := integer(raw)
		if !ok {
			return RecommendationResult{}, mismatch("recommended_restaurant_id must be an integer or null, got %v", raw)
		}
		id = &n
	}

	message, err := stringField(obj, "explanatory_message")
	if err != nil {
		return RecommendationResult{}, err
	}

	return RecommendationResult{RestaurantID: id, Message: message}, nil
}

// ParseSentiment runs extraction and validation on a raw scoring reply.
func ParseSentiment(raw string) (SentimentResult, error) {
	value, err := Extract(raw)
	if err != nil {
		return SentimentResult{}, err
	}

	result, err := ValidateSentiment(value)
	if err != nil {
		return SentimentResult{}, withRaw(err, raw)
	}

	return result, nil
}

// ParseRecommendation runs extraction and validation on a raw matching reply.
func ParseRecommendation(raw string) (RecommendationResult, error) {
	value, err := Extract(raw)
	if err != nil {
		return RecommendationResult{}, err
	}

	result, err := ValidateRecommendation(value)
	if err != nil {
		return RecommendationResult{}, withRaw(err, raw)
	}

	return result, nil
}

func withRaw(err error, raw string) error {
	if oe, ok := err.(*OutputError); ok {
		oe.Raw = raw
	}
	return err
}

func stringField(obj map[string]any, key string) (string, error) {
	raw, present := obj[key]
	if !present {
		return "", mismatch("missing field %s", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", mismatch("%s must be a string, got %T", key, raw)
	}
	return s, nil
}

func number(raw any) (float64, bool) {
	var f float64
	switch v := raw.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = v
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// integer accepts integral values only; 3 and 3.0 pass, 3.5 does not.
func integer(raw any) (int64, bool) {
	if n, ok := raw.(json.Number); ok {
		if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
			return i, true
		}
	}

	f, ok := number(raw)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}
