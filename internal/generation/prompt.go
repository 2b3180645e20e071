package generation

import (
	"fmt"
	"strings"
)

// SystemInstruction frames the model as a review copywriter.
const SystemInstruction = "你是资深大众点评文案策划，擅长写真实、具体、有温度的好评文案，能够根据不同需求调整语气风格。输出纯文本，不要解释，不要加前后引号。"

// Token budget bounds for a review.
const (
	MinTokens     = 128
	MaxTokenLimit = 2048
)

// PromptInput is everything a review prompt is built from.
type PromptInput struct {
	// Category is the category's display name.
	Category string
	// Umbrella marks a broad top-level category such as 美食.
	Umbrella bool
	// Labels are the dish names recognized from images.
	Labels []string
	// Keyword is the free-text subject given by the caller.
	Keyword string
	// Reference is optional sample text to draw from.
	Reference string
	// ToneFragment is the normalized tone description.
	ToneFragment string
	// Words is the target length in characters, already clamped.
	Words int
}

// MaxTokens returns the completion budget for a target length.
func MaxTokens(words int) int {
	n := words * 2
	if n < MinTokens {
		return MinTokens
	}
	if n > MaxTokenLimit {
		return MaxTokenLimit
	}
	return n
}

// BuildPrompt renders the user instruction for a review.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "你是一名资深大众点评老用户，请根据以下信息写一段走心好评文案，约 %d 字左右。\n\n", in.Words)

	b.WriteString("【语气要求（最重要）】\n")
	b.WriteString(in.ToneFragment)
	b.WriteString("\n\n")

	b.WriteString("【基础信息】\n")
	fmt.Fprintf(&b, "- 分类：%s\n", orNone(in.Category))
	labels := nonBlank(in.Labels)
	if len(labels) > 0 {
		fmt.Fprintf(&b, "- 图片中识别出的菜品：%s\n", strings.Join(labels, "、"))
	}
	if kw := strings.TrimSpace(in.Keyword); kw != "" {
		fmt.Fprintf(&b, "- 关键词/主题：%s\n", kw)
	}
	fmt.Fprintf(&b, "- 参考文案：%s\n\n", orNone(in.Reference))

	b.WriteString("【内容要求】\n")
	b.WriteString("1. 贴地气，语言自然真实，像真实用户写的好评，不要像广告。\n")
	b.WriteString("2. 尽量包含具体细节（环境、服务、口味、性价比等），让人能“脑补出画面”。\n")
	switch {
	case len(labels) > 0:
		b.WriteString("3. 围绕识别出的菜品展开，可以写口感、火候、分量和推荐理由。\n")
	case in.Umbrella:
		fmt.Fprintf(&b, "3. “%s”是一个大分类，不要出现具体菜名或特别细的项目，只写通用体验。\n", in.Category)
	default:
		b.WriteString("3. 如果关键词是大分类（如“美食”“亲子”“旅游/出行”等），不要出现具体菜名或特别细的项目，只写通用体验。\n")
	}
	b.WriteString("4. 可以参考以下结构自由发挥（不必全部使用）：场景与店铺亮点，具体体验细节，推荐的菜或项目以及推荐理由，适合的人群和小建议，温暖结尾或轻微安利。\n\n")

	b.WriteString("【限制】\n")
	b.WriteString("- 不使用 Emoji 或其他装饰性符号。\n")
	b.WriteString("- 避免特别夸张和空洞的形容（如“超级无敌”“一生推”“YYDS”等）。\n")
	b.WriteString("- 不要输出条目列表或小标题，只输出一整段自然连贯的中文好评。\n\n")

	b.WriteString("现在请按照以上要求，直接输出最终成品文案，不要添加任何额外说明。")
	return b.String()
}

func orNone(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "无"
	}
	return s
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
