package wsserver

import (
	"math/rand"

	"InterviewStream/internal/protocol"
)

// 静态问题库：按问题类型选题下发
// 真实系统里由出题服务生成，这里保留参考实现的内置题目

var questionBank = []protocol.InterviewQuestion{
	{
		Text:       "Tell me about a time when you had to work with a difficult team member. How did you handle the situation?",
		Type:       "behavioral",
		Category:   "teamwork",
		Difficulty: "medium",
	},
	{
		Text:       "Describe your approach to debugging a complex software issue.",
		Type:       "technical",
		Category:   "problem-solving",
		Difficulty: "medium",
	},
	{
		Text:       "How would you prioritize features for a new product launch?",
		Type:       "situational",
		Category:   "decision-making",
		Difficulty: "medium",
	},
}

// pickQuestion 按类型选题，类型为空或没有匹配时随机
func pickQuestion(questionType string) *protocol.InterviewQuestion {
	if questionType != "" {
		var matched []protocol.InterviewQuestion
		for _, q := range questionBank {
			if q.Type == questionType {
				matched = append(matched, q)
			}
		}
		if len(matched) > 0 {
			q := matched[rand.Intn(len(matched))]
			return &q
		}
	}
	q := questionBank[rand.Intn(len(questionBank))]
	return &q
}
