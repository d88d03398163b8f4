package support

import (
	"fmt"
)

// DefaultEscalationThreshold 访客连续请求人工的次数达到该值后转人工
const DefaultEscalationThreshold = 3

// 系统消息
const (
	HandoffMessage     = "Connecting you with a member of our team. An agent will join this chat shortly - please stay on this page."
	HandbackMessage    = "Our agent has handed this conversation back to the virtual assistant. Ask me anything, or ask for a human again at any time."
	ClosingMessage     = "This conversation has been marked as resolved. Thank you for contacting us! Send a new message any time if you need more help."
	WelcomeBackMessage = "Welcome back! How can I help you today? You can ask about vehicles, pricing, shipping, parts, or ask to speak with our team."
	agentJoinedFormat  = "%s has joined the conversation."
)

// 各意图对应的固定回复
var cannedReplies = map[Intent]string{
	IntentGreeting: "Hello and welcome! I'm the virtual assistant. I can help you browse our vehicles, check pricing and financing, " +
		"arrange shipping, or find spare parts. What are you looking for today?",
	IntentVehicles: "We have a wide range of new and used vehicles in stock, from sedans and SUVs to pickup trucks. " +
		"Browse the inventory page for the latest arrivals, or tell me the make, model or budget you have in mind.",
	IntentPricing: "Prices are listed on each vehicle's page and include a breakdown of fees. We also offer financing and trade-in options - " +
		"tell me which vehicle you're interested in and I can point you to a quote.",
	IntentShipping: "We ship vehicles nationwide and overseas. Delivery times depend on the destination, usually 1-3 weeks domestically " +
		"and 4-8 weeks internationally. Share your destination for an estimate.",
	IntentContact: "You can reach us by phone or email using the details on our Contact page, or visit the showroom during opening hours. " +
		"Our location is shown on the map at the bottom of every page.",
	IntentParts: "We stock genuine and aftermarket spare parts including brakes, filters, batteries, tyres and accessories. " +
		"Tell me the vehicle and the part you need and I'll check availability.",
	IntentGeneral: "I'm the virtual assistant and can help with vehicles, pricing and financing, shipping, contact details and spare parts. " +
		"If you'd rather talk to a person, just say \"talk to a human\".",
}

// Responder 根据意图生成回复文本
type Responder struct {
	threshold int
}

// NewResponder 创建 Responder
// threshold 为转人工阈值，<= 0 时使用默认值
func NewResponder(threshold int) *Responder {
	if threshold <= 0 {
		threshold = DefaultEscalationThreshold
	}
	return &Responder{threshold: threshold}
}

// Threshold 返回转人工阈值
func (r *Responder) Threshold() int {
	return r.threshold
}

// Reply 返回非 escalation 意图的固定回复
// 未知意图按 general 处理
func (r *Responder) Reply(intent Intent) string {
	if reply, ok := cannedReplies[intent]; ok {
		return reply
	}
	return cannedReplies[IntentGeneral]
}

// ShouldHandOff 更新后的计数是否达到转人工阈值
func (r *Responder) ShouldHandOff(count int) bool {
	return count >= r.threshold
}

// EscalationAck 未达阈值时的确认回复，带上当前次数并追问细节
func (r *Responder) EscalationAck(count int) string {
	return fmt.Sprintf("I understand you'd like to speak with someone from our team (request %d of %d). "+
		"Before I connect you, could you tell me a bit more about what you need? "+
		"I may be able to help right away with vehicles, pricing, shipping or parts.", count, r.threshold)
}

// AgentJoined 客服接入时的系统消息
func AgentJoined(agentName string) string {
	if agentName == "" {
		agentName = "An agent"
	}
	return fmt.Sprintf(agentJoinedFormat, agentName)
}
