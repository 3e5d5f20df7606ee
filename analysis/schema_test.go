package analysis

import (
	"testing"

	"github.com/lavraseats/lavraseats/models"
	"github.com/stretchr/testify/require"
)

func TestParseSentiment(t *testing.T) {
	got, err := ParseSentiment(`{"rationale":"Great taste.","sentiment":"positive","score":9.5}`)
	require.NoError(t, err)
	require.Equal(t, SentimentResult{Rationale: "Great taste.", Sentiment: models.Positive, Score: 9.5}, got)
}

func TestParseSentimentAllowsOutOfRangeScore(t *testing.T) {
	got, err := ParseSentiment(`{"rationale":"r","sentiment":"positive","score":15}`)
	require.NoError(t, err)
	require.Equal(t, 15.0, got.Score)
}

func TestParseSentimentIgnoresExtraFields(t *testing.T) {
	got, err := ParseSentiment(`{"rationale":"r","sentiment":"neutral","score":5,"pillars":{"taste":4}}`)
	require.NoError(t, err)
	require.Equal(t, models.Neutral, got.Sentiment)
}

func TestParseSentimentMismatch(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "missing sentiment", raw: `{"rationale":"r","score":5}`},
		{name: "missing rationale", raw: `{"sentiment":"positive","score":5}`},
		{name: "missing score", raw: `{"rationale":"r","sentiment":"positive"}`},
		{name: "sentiment wrong case", raw: `{"rationale":"r","sentiment":"Positive","score":5}`},
		{name: "sentiment out of enum", raw: `{"rationale":"r","sentiment":"positivo","score":5}`},
		{name: "score as string", raw: `{"rationale":"r","sentiment":"positive","score":"9"}`},
		{name: "score null", raw: `{"rationale":"r","sentiment":"positive","score":null}`},
		{name: "rationale as number", raw: `{"rationale":1,"sentiment":"positive","score":5}`},
		{name: "array", raw: `[{"rationale":"r","sentiment":"positive","score":5}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSentiment(tt.raw)

			var oe *OutputError
			require.ErrorAs(t, err, &oe)
			require.Equal(t, SchemaMismatch, oe.Kind)
			require.Equal(t, tt.raw, oe.Raw)
		})
	}
}

func TestParseRecommendation(t *testing.T) {
	t.Run("integer id", func(t *testing.T) {
		got, err := ParseRecommendation(`{"recommended_restaurant_id": 3, "explanatory_message": "Polite staff."}`)
		require.NoError(t, err)
		require.NotNil(t, got.RestaurantID)
		require.EqualValues(t, 3, *got.RestaurantID)
		require.Equal(t, "Polite staff.", got.Message)
	})

	t.Run("integral float id", func(t *testing.T) {
		got, err := ParseRecommendation(`{"recommended_restaurant_id": 3.0, "explanatory_message": "m"}`)
		require.NoError(t, err)
		require.EqualValues(t, 3, *got.RestaurantID)
	})

	t.Run("explicit null", func(t *testing.T) {
		got, err := ParseRecommendation("```json\n{\"recommended_restaurant_id\": null, \"explanatory_message\": \"No evidence.\"}\n```")
		require.NoError(t, err)
		require.Nil(t, got.RestaurantID)
		require.Equal(t, "No evidence.", got.Message)
	})
}

func TestParseRecommendationMismatch(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "missing id", raw: `{"explanatory_message":"m"}`},
		{name: "missing message", raw: `{"recommended_restaurant_id":1}`},
		{name: "fractional id", raw: `{"recommended_restaurant_id":1.5,"explanatory_message":"m"}`},
		{name: "string id", raw: `{"recommended_restaurant_id":"1","explanatory_message":"m"}`},
		{name: "null message", raw: `{"recommended_restaurant_id":1,"explanatory_message":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecommendation(tt.raw)

			var oe *OutputError
			require.ErrorAs(t, err, &oe)
			require.Equal(t, SchemaMismatch, oe.Kind)
		})
	}
}

func TestParseRecommendationMalformed(t *testing.T) {
	_, err := ParseRecommendation("sorry, nothing fits")

	var oe *OutputError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, MalformedModelOutput, oe.Kind)
}
