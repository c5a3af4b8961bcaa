package verify

import (
	"encoding/json"
	"strings"
)

// 解析失败时使用的兜底置信度
const degradedConfidence = 40

// Verdict 验证判定结果。Degraded为true表示模型输出无法结构化解析，
// 判定由启发式规则推断，Raw保留原始输出供人工复核。
type Verdict struct {
	Verified   bool   `json:"verified"`
	Confidence int    `json:"confidence_score"`
	Reasoning  string `json:"reasoning"`
	Degraded   bool   `json:"degraded,omitempty"`
	Raw        string `json:"-"`
}

// ParseVerdict 从模型自由文本中恢复结构化判定。
// 解析失败不报错，降级为启发式判定，调用方总能拿到结构化结果。
func ParseVerdict(raw string) Verdict {
	text := stripCodeFences(raw)

	// 定位第一个 { 到最后一个 } 之间的JSON对象
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		var v Verdict
		if err := json.Unmarshal([]byte(text[start:end+1]), &v); err == nil {
			v.Raw = raw
			return v
		}
	}

	return degradedVerdict(raw)
}

// stripCodeFences 去掉markdown代码围栏
func stripCodeFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// degradedVerdict 根据关键词推断判定
func degradedVerdict(raw string) Verdict {
	lower := strings.ToLower(raw)

	negated := strings.Contains(lower, "not verified") ||
		strings.Contains(lower, "not complete") ||
		strings.Contains(lower, "unverified") ||
		strings.Contains(lower, "rejected")

	positive := strings.Contains(lower, "verified") ||
		strings.Contains(lower, "approved") ||
		strings.Contains(lower, "complete")

	return Verdict{
		Verified:   positive && !negated,
		Confidence: degradedConfidence,
		Reasoning:  strings.TrimSpace(raw),
		Degraded:   true,
		Raw:        raw,
	}
}

// ErrorVerdict 推理彻底失败时的显式错误判定
func ErrorVerdict(reason string) Verdict {
	return Verdict{
		Verified:   false,
		Confidence: 0,
		Reasoning:  reason,
	}
}
