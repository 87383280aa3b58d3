package classifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helpdeck-io/triage-engine/internal/models"
)

func TestParseClassification_ValidPayload(t *testing.T) {
	parsed := parseClassification(`{
		"category": "billing",
		"priority": "urgent",
		"sentiment": "frustrated",
		"language": "en",
		"confidence": 0.93,
		"reasoning": "Duplicate charge complaint.",
		"suggested_team_id": 4,
		"suggested_agent_id": 17
	}`)

	require.False(t, parsed.Degraded)
	require.Equal(t, models.CategoryBilling, parsed.Category)
	require.Equal(t, models.PriorityUrgent, parsed.Priority)
	require.Equal(t, models.SentimentFrustrated, parsed.Sentiment)
	require.Equal(t, models.LanguageEN, parsed.Language)
	require.InDelta(t, 0.93, parsed.Confidence, 1e-9)
	require.Equal(t, "Duplicate charge complaint.", parsed.Reasoning)
	require.NotNil(t, parsed.SuggestedTeamID)
	require.Equal(t, int64(4), *parsed.SuggestedTeamID)
	require.NotNil(t, parsed.SuggestedAgentID)
	require.Equal(t, int64(17), *parsed.SuggestedAgentID)
}

func TestParseClassification_CodeFencedJSON(t *testing.T) {
	parsed := parseClassification("```json\n{\"category\":\"sales\",\"priority\":\"low\",\"sentiment\":\"positive\",\"language\":\"de\",\"confidence\":0.8}\n```")
	require.False(t, parsed.Degraded)
	require.Equal(t, models.CategorySales, parsed.Category)
	require.Equal(t, models.LanguageDE, parsed.Language)
}

func TestParseClassification_QuotedConfidence(t *testing.T) {
	parsed := parseClassification(`{"category":"general","priority":"normal","sentiment":"neutral","language":"en","confidence":"0.75"}`)
	require.False(t, parsed.Degraded)
	require.InDelta(t, 0.75, parsed.Confidence, 1e-9)
}

func TestParseClassification_OutOfRangeConfidenceNeverPropagated(t *testing.T) {
	for _, raw := range []string{"1.7", "-0.2", "42"} {
		parsed := parseClassification(`{"category":"billing","priority":"normal","sentiment":"neutral","language":"en","confidence":` + raw + `}`)
		require.True(t, parsed.Degraded, "confidence %s", raw)
		require.Zero(t, parsed.Confidence, "confidence %s", raw)
	}
}

func TestParseClassification_MissingConfidence(t *testing.T) {
	parsed := parseClassification(`{"category":"billing","priority":"normal","sentiment":"neutral","language":"en"}`)
	require.True(t, parsed.Degraded)
	require.Zero(t, parsed.Confidence)
	// Enum fields that did validate are kept.
	require.Equal(t, models.CategoryBilling, parsed.Category)
}

func TestParseClassification_UnknownEnumsDefault(t *testing.T) {
	parsed := parseClassification(`{"category":"refunds","priority":"asap","sentiment":"angry","language":"klingon","confidence":0.99}`)
	require.True(t, parsed.Degraded)
	require.Equal(t, models.CategoryOther, parsed.Category)
	require.Equal(t, models.PriorityNormal, parsed.Priority)
	require.Equal(t, models.SentimentNeutral, parsed.Sentiment)
	require.Equal(t, models.LanguageOther, parsed.Language)
	require.Zero(t, parsed.Confidence)
}

func TestParseClassification_LanguageAliasAndCase(t *testing.T) {
	parsed := parseClassification(`{"category":"Billing","priority":"HIGH","sentiment":"neutral","language":"English","confidence":0.9}`)
	require.False(t, parsed.Degraded)
	require.Equal(t, models.CategoryBilling, parsed.Category)
	require.Equal(t, models.PriorityHigh, parsed.Priority)
	require.Equal(t, models.LanguageEN, parsed.Language)
}

func TestParseClassification_MalformedJSONFullyDefaults(t *testing.T) {
	for _, response := range []string{"not json at all", "", `["array"]`, `{"category": }`} {
		parsed := parseClassification(response)
		require.True(t, parsed.Degraded, "response %q", response)
		require.Equal(t, models.CategoryOther, parsed.Category)
		require.Equal(t, models.PriorityNormal, parsed.Priority)
		require.Equal(t, models.SentimentNeutral, parsed.Sentiment)
		require.Equal(t, models.LanguageOther, parsed.Language)
		require.Zero(t, parsed.Confidence)
		require.Nil(t, parsed.SuggestedAgentID)
	}
}

func TestParseClassification_SuggestionCoercion(t *testing.T) {
	parsed := parseClassification(`{"category":"billing","priority":"normal","sentiment":"neutral","language":"en","confidence":0.9,"suggested_team_id":"12","suggested_agent_id":3.5}`)
	require.False(t, parsed.Degraded)
	require.NotNil(t, parsed.SuggestedTeamID)
	require.Equal(t, int64(12), *parsed.SuggestedTeamID)
	require.Nil(t, parsed.SuggestedAgentID)

	parsed = parseClassification(`{"category":"billing","priority":"normal","sentiment":"neutral","language":"en","confidence":0.9,"suggested_team_id":0,"suggested_agent_id":-4}`)
	require.Nil(t, parsed.SuggestedTeamID)
	require.Nil(t, parsed.SuggestedAgentID)
}

func TestParseClassification_ConfidenceAlwaysInRange(t *testing.T) {
	responses := []string{
		`{"confidence": 2.0}`,
		`{"confidence": -1}`,
		`{"confidence": "NaN"}`,
		`{"confidence": null}`,
		`{"category":"billing","priority":"urgent","sentiment":"negative","language":"en","confidence":1.0}`,
		`{"category":"billing","priority":"urgent","sentiment":"negative","language":"en","confidence":0}`,
		"garbage",
	}
	for _, response := range responses {
		parsed := parseClassification(response)
		require.GreaterOrEqual(t, parsed.Confidence, 0.0, "response %q", response)
		require.LessOrEqual(t, parsed.Confidence, 1.0, "response %q", response)
	}
}
