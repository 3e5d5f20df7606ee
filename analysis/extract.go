package analysis

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
)

type FailureKind string

const (
	MalformedModelOutput FailureKind = "malformed_model_output"
	SchemaMismatch       FailureKind = "schema_mismatch"
)

// OutputError reports why a model reply could not be turned into a typed
// result. Raw keeps the reply for diagnostics.
type OutputError struct {
	Kind   FailureKind
	Reason string
	Raw    string
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Extract strips markdown code fences from a model reply and decodes the
// JSON inside it. When the cleaned text is not valid JSON it retries on the
// span between the first '{' and the last '}'.
func Extract(raw string) (any, error) {
	cleaned := stripFences(raw)

	if value, err := decode(cleaned); err == nil {
		return value, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if value, err := decode(cleaned[start : end+1]); err == nil {
			return value, nil
		}
	}

	slog.Warn("model reply contains no parseable json", "raw", raw)

	return nil, &OutputError{Kind: MalformedModelOutput, Reason: "no json object found", Raw: raw}
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = s[len("```json"):]
	case strings.HasPrefix(s, "```"):
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	return strings.TrimSpace(s)
}

// decode keeps numbers as json.Number so integer fields can be told apart
// from fractional ones.
func decode(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}

	// trailing garbage after the first value
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after json value")
	}

	return value, nil
}
