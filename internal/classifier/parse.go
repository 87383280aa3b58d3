package classifier

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/helpdeck-io/triage-engine/internal/llm"
	"github.com/helpdeck-io/triage-engine/internal/models"
)

// parsedClassification is the validated form of one model response.
// Degraded means some field could not be trusted; degraded results always
// carry Confidence 0 so they never pass the auto-assignment gate.
type parsedClassification struct {
	Category         models.Category
	Priority         models.Priority
	Sentiment        models.Sentiment
	Language         models.Language
	Confidence       float64
	Reasoning        string
	SuggestedTeamID  *int64
	SuggestedAgentID *int64
	Degraded         bool
}

var languageAliases = map[string]models.Language{
	"english":    models.LanguageEN,
	"spanish":    models.LanguageES,
	"french":     models.LanguageFR,
	"german":     models.LanguageDE,
	"portuguese": models.LanguagePT,
}

// parseClassification validates untrusted model output. Unknown enum
// values fall back to their defaults, a missing or out-of-range
// confidence becomes 0, and a response that is not JSON at all yields a
// fully defaulted record. Parsing never fails.
func parseClassification(response string) parsedClassification {
	parsed := parsedClassification{
		Category:  models.CategoryOther,
		Priority:  models.PriorityNormal,
		Sentiment: models.SentimentNeutral,
		Language:  models.LanguageOther,
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(llm.StripCodeFence(response)), &payload); err != nil {
		parsed.Degraded = true
		return parsed
	}

	if category := models.Category(normalized(payload, "category")); category.Valid() {
		parsed.Category = category
	} else {
		parsed.Degraded = true
	}
	if priority := models.Priority(normalized(payload, "priority")); priority.Valid() {
		parsed.Priority = priority
	} else {
		parsed.Degraded = true
	}
	if sentiment := models.Sentiment(normalized(payload, "sentiment")); sentiment.Valid() {
		parsed.Sentiment = sentiment
	} else {
		parsed.Degraded = true
	}

	lang := normalized(payload, "language")
	if alias, ok := languageAliases[lang]; ok {
		lang = string(alias)
	}
	if language := models.Language(lang); language.Valid() {
		parsed.Language = language
	} else {
		parsed.Degraded = true
	}

	if confidence, ok := floatField(payload, "confidence"); ok && confidence >= 0 && confidence <= 1 {
		parsed.Confidence = confidence
	} else {
		parsed.Degraded = true
	}

	if reasoning, ok := payload["reasoning"].(string); ok {
		parsed.Reasoning = strings.TrimSpace(reasoning)
	}

	// Routing suggestions are hints the router re-validates, so garbage
	// here is dropped rather than degrading the record.
	parsed.SuggestedTeamID = idField(payload, "suggested_team_id")
	parsed.SuggestedAgentID = idField(payload, "suggested_agent_id")

	if parsed.Degraded {
		parsed.Confidence = 0
	}
	return parsed
}

func normalized(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return strings.ToLower(strings.TrimSpace(s))
}

// floatField coerces a number-ish value. Models occasionally quote their
// numbers.
func floatField(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// idField coerces a positive integer id, nil for anything else.
func idField(payload map[string]any, key string) *int64 {
	f, ok := floatField(payload, key)
	if !ok {
		return nil
	}
	id := int64(f)
	if id <= 0 || float64(id) != f {
		return nil
	}
	return &id
}
