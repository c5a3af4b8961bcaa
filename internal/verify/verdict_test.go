package verify

import (
	"testing"
)

func TestParseVerdictPlainJSON(t *testing.T) {
	raw := `{"verified": true, "confidence_score": 95, "reasoning": "Concrete foundation visible."}`
	v := ParseVerdict(raw)

	if !v.Verified {
		t.Error("Expected verified=true")
	}
	if v.Confidence != 95 {
		t.Errorf("Expected confidence 95, got %d", v.Confidence)
	}
	if v.Degraded {
		t.Error("Clean JSON must not be degraded")
	}
}

func TestParseVerdictCodeFenced(t *testing.T) {
	raw := "```json\n{\"verified\": false, \"confidence_score\": 20, \"reasoning\": \"No construction activity.\"}\n```"
	v := ParseVerdict(raw)

	if v.Verified {
		t.Error("Expected verified=false")
	}
	if v.Confidence != 20 {
		t.Errorf("Expected confidence 20, got %d", v.Confidence)
	}
	if v.Degraded {
		t.Error("Fenced JSON must not be degraded")
	}
}

func TestParseVerdictSurroundingProse(t *testing.T) {
	raw := `Here is my assessment: {"verified": true, "confidence_score": 80, "reasoning": "Roof installed."} Hope that helps.`
	v := ParseVerdict(raw)

	if !v.Verified || v.Confidence != 80 {
		t.Errorf("Failed to extract embedded JSON: %+v", v)
	}
}

func TestParseVerdictDegradedPositive(t *testing.T) {
	v := ParseVerdict("The milestone appears to be complete and can be approved.")

	if !v.Degraded {
		t.Error("Expected degraded verdict")
	}
	if !v.Verified {
		t.Error("Keyword heuristic should infer verified=true")
	}
	if v.Confidence != degradedConfidence {
		t.Errorf("Expected confidence %d, got %d", degradedConfidence, v.Confidence)
	}
}

func TestParseVerdictDegradedNegated(t *testing.T) {
	v := ParseVerdict("The work is not complete, the claim is rejected.")

	if !v.Degraded {
		t.Error("Expected degraded verdict")
	}
	if v.Verified {
		t.Error("Negated keywords must not infer verified=true")
	}
}

func TestParseVerdictMalformedJSON(t *testing.T) {
	// 括号存在但不是合法JSON，退回启发式
	v := ParseVerdict(`{"verified": tru`)
	if !v.Degraded {
		t.Error("Malformed JSON should degrade to heuristic")
	}
}

func TestErrorVerdict(t *testing.T) {
	v := ErrorVerdict("AI inference failed after 3 attempts")

	if v.Verified {
		t.Error("Error verdict must not be verified")
	}
	if v.Confidence != 0 {
		t.Errorf("Expected confidence 0, got %d", v.Confidence)
	}
	if v.Reasoning == "" {
		t.Error("Error verdict must carry a reason")
	}
}
