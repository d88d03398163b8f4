// Package support 实现客服对话的自动应答核心
// 包括意图识别、固定话术生成以及不活跃判断
// 这里的函数都是纯函数，不访问存储
package support

import (
	"strings"
	"unicode"
)

// Intent 访客消息的意图分类
type Intent string

// 意图常量
const (
	IntentEscalation Intent = "escalation" // 要求人工客服
	IntentGreeting   Intent = "greeting"   // 打招呼
	IntentVehicles   Intent = "vehicles"   // 车辆/库存
	IntentPricing    Intent = "pricing"    // 价格/金融
	IntentShipping   Intent = "shipping"   // 运输/交付
	IntentContact    Intent = "contact"    // 联系方式/门店信息
	IntentParts      Intent = "parts"      // 配件
	IntentGeneral    Intent = "general"    // 兜底
)

// 置信度仅供参考，下游逻辑只看意图本身
const (
	keywordConfidence  = 0.9
	fallbackConfidence = 0.5
)

// Classification 意图识别结果
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Keyword    string  `json:"keyword,omitempty"` // 命中的关键词，兜底时为空
}

// IntentClassifier 意图识别接口
// 以后可以替换为真正的 NLU 模型，而无需改动会话状态机
type IntentClassifier interface {
	Classify(text string) Classification
}

// Rule 一个意图及其关键词
type Rule struct {
	Intent   Intent
	Keywords []string
}

// DefaultRules 返回默认的规则表，顺序即优先级
// escalation 必须排在第一位：同时包含人工请求和其他话题的消息一律按人工请求处理
//
// 匹配是子串包含而不是分词。输入会先把标点换成空格再在前后各补一个空格，
// 所以像 " hi " 这样两边带空格的关键词只匹配独立的单词，
// 不会命中 "vehicle"、"important"、"entire"、"iphone" 之类的词
func DefaultRules() []Rule {
	return []Rule{
		{IntentEscalation, []string{
			"help", "agent", "human", "talk to someone", "speak to someone",
			"real person", "representative", "customer service", "operator",
		}},
		{IntentGreeting, []string{
			" hi ", "hello", " hey ", "good morning", "good afternoon",
			"good evening", "greetings",
		}},
		{IntentVehicles, []string{
			"vehicle", " car ", " cars ", "suv", "sedan", "truck", "pickup",
			"inventory", "in stock", "test drive", "model",
		}},
		{IntentPricing, []string{
			"price", "pricing", "cost", "how much", "financ", "payment",
			"loan", "discount", "quote", " deal ", " deals ",
		}},
		{IntentShipping, []string{
			"shipping", "shipped", "deliver", "transport", "export",
			" import ", " imports ", " imported ", " importing ", "freight",
		}},
		{IntentContact, []string{
			"contact", " phone ", " phones ", "phone number", "email", "address",
			"location", "opening hours", "hours", "where are you", "call you",
			"call me", "visit",
		}},
		{IntentParts, []string{
			"parts", " part ", "spare", "accessor", " tire ", " tires ", " tyre ",
			" tyres ", "brake", "battery", "filter",
		}},
	}
}

// KeywordClassifier 基于关键词子串匹配的意图识别器
// 按规则顺序依次检查，第一个命中的意图胜出
type KeywordClassifier struct {
	rules []Rule
}

// NewKeywordClassifier 创建关键词识别器
// 不传规则时使用 DefaultRules
func NewKeywordClassifier(rules ...Rule) *KeywordClassifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &KeywordClassifier{rules: rules}
}

// Classify 识别一条消息的意图
// 空消息和未命中任何关键词的消息都归为 general
func (c *KeywordClassifier) Classify(text string) Classification {
	normalized := normalize(text)
	if normalized == "" {
		return Classification{Intent: IntentGeneral, Confidence: fallbackConfidence}
	}

	padded := " " + normalized + " "
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(padded, kw) {
				return Classification{
					Intent:     rule.Intent,
					Confidence: keywordConfidence,
					Keyword:    strings.TrimSpace(kw),
				}
			}
		}
	}

	return Classification{Intent: IntentGeneral, Confidence: fallbackConfidence}
}

// normalize 转小写，标点和连续空白都折叠成一个空格
// "Hi." 和 "a car!" 因此与 "hi"、"a car" 等价
func normalize(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}
