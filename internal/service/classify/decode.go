package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"smartmail/internal/model"
)

const (
	defaultConfidence = 0.5
	defaultReasoning  = "No reasoning provided"
	parseErrReasoning = "Parsing error"
)

var errNotObject = errors.New("classification output is not a JSON object")

// Decoded is the outcome of decoding model output. Err is set when the
// Classification is the fallback rather than what the model returned.
type Decoded struct {
	Classification model.Classification
	Err            error
}

// Fallback is used whenever the model output cannot be trusted.
func Fallback() model.Classification {
	return model.Classification{
		Category:   model.CategoryOther,
		Confidence: defaultConfidence,
		Reasoning:  parseErrReasoning,
	}
}

// Decode turns raw model text into a Classification. It never fails: bad
// output yields the fallback with Err set.
func Decode(text string) Decoded {
	var fields map[string]any
	if err := json.Unmarshal([]byte(stripFences(text)), &fields); err != nil {
		return Decoded{Classification: Fallback(), Err: err}
	}
	if fields == nil {
		return Decoded{Classification: Fallback(), Err: errNotObject}
	}

	c := model.Classification{
		Category:   model.CategoryOther,
		Confidence: defaultConfidence,
		Reasoning:  defaultReasoning,
	}
	if v, ok := fields["category"].(string); ok {
		c.Category = model.ParseCategory(strings.TrimSpace(v))
	}
	if v, ok := fields["confidence"]; ok && v != nil {
		f, err := toFloat(v)
		if err != nil {
			return Decoded{Classification: Fallback(), Err: err}
		}
		c.Confidence = model.ClampConfidence(f)
	}
	if v, ok := fields["reasoning"].(string); ok {
		c.Reasoning = v
	}
	if v, ok := fields["summary"].(string); ok {
		c.Summary = v
	}
	return Decoded{Classification: c}
}

// stripFences removes a surrounding markdown code fence and its json tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.Trim(s, "`")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimPrefix(s, "JSON")
	return strings.TrimSpace(s)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("confidence %q: %w", n, err)
		}
		return f, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("confidence has type %T", v)
}
