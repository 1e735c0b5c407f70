package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/raine/ecosort-bot/internal/waste"
)

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

// rawResult mirrors the response schema with pointer fields so that missing
// keys can be told apart from zero values.
type rawResult struct {
	Category   *string  `json:"category"`
	ItemName   *string  `json:"itemName"`
	Reasoning  *string  `json:"reasoning"`
	Confidence *float64 `json:"confidence"`
}

// ParseResult validates a model reply and converts it to a Result. Every
// failure wraps ErrMalformedResponse; a partially populated result is never
// returned.
func ParseResult(text string) (*waste.Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response JSON: %v (response: %s)", ErrMalformedResponse, err, jsonStr)
	}

	var missing []string
	if raw.Category == nil {
		missing = append(missing, "category")
	}
	if raw.ItemName == nil {
		missing = append(missing, "itemName")
	}
	if raw.Reasoning == nil {
		missing = append(missing, "reasoning")
	}
	if raw.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing fields %s", ErrMalformedResponse, strings.Join(missing, ", "))
	}

	category, err := waste.ParseCategory(*raw.Category)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	itemName := strings.TrimSpace(*raw.ItemName)
	if itemName == "" {
		return nil, fmt.Errorf("%w: blank itemName", ErrMalformedResponse)
	}

	return &waste.Result{
		Category:   category,
		ItemName:   itemName,
		Reasoning:  strings.TrimSpace(*raw.Reasoning),
		Confidence: clampConfidence(*raw.Confidence),
	}, nil
}

// clampConfidence forces a confidence into [0,1]. JSON cannot carry NaN or
// infinities, so only range needs handling.
func clampConfidence(c float64) float64 {
	return math.Max(0, math.Min(1, c))
}
