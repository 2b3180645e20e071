// Package tone maps a tone key to the prompt fragment describing that voice.
package tone

import (
	"sort"
	"strings"
)

// Default is the key used when none is given or the given key is unknown.
const Default = "正常"

const defaultFragment = "语气自然真诚，像普通顾客分享真实体验，娓娓道来，不刻意煽情也不过分平淡。"

var fragments = map[string]string{
	"正常": defaultFragment,
	"热情": "语气热情洋溢，充满感染力，多表达惊喜和满意，让读者感受到强烈的推荐意愿，但不要浮夸。",
	"幽默": "语气轻松幽默，可以适当调侃和使用生活化的比喻，读起来有趣好玩，但不低俗、不抖机灵过度。",
	"文艺": "语气文艺细腻，注重氛围和感受的描写，可以有少量画面感强的修辞，整体温柔有质感。",
	"简洁": "语气简洁干脆，句子短而有力，直接说重点和亮点，不绕弯子。",
	"专业": "语气专业客观，像资深食客或测评博主，从口味、食材、火候、服务、性价比等维度给出有依据的评价。",
}

var aliases = map[string]string{
	"normal":       "正常",
	"default":      "正常",
	"enthusiastic": "热情",
	"warm":         "热情",
	"humorous":     "幽默",
	"funny":        "幽默",
	"literary":     "文艺",
	"poetic":       "文艺",
	"concise":      "简洁",
	"brief":        "简洁",
	"professional": "专业",
	"expert":       "专业",
}

// Normalize returns the prompt fragment for key. Unknown and empty keys get
// the default fragment.
func Normalize(key string) string {
	if canonical, ok := Canonical(key); ok {
		return fragments[canonical]
	}
	return defaultFragment
}

// Canonical resolves key, or one of its English aliases, to the recognized
// Chinese key.
func Canonical(key string) (string, bool) {
	k := strings.TrimSpace(key)
	if _, ok := fragments[k]; ok {
		return k, true
	}
	if canonical, ok := aliases[strings.ToLower(k)]; ok {
		return canonical, true
	}
	return "", false
}

// Keys lists the recognized canonical keys in a stable order.
func Keys() []string {
	keys := make([]string, 0, len(fragments))
	for k := range fragments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
