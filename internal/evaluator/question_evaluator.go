package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"interview-review-go/internal/config"
	"interview-review-go/internal/types"

	openai "github.com/sashabaranov/go-openai"
)

// ChatCompleter 评估引擎的最小依赖面，*openai.Client天然满足，测试时可替换
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const questionPromptTemplate = `Analyze the provided interview question and transcript for the candidate. Provide a comprehensive evaluation based on the given information.

Return a JSON object with the following fields:
- "interview_question": the interview question being evaluated
- "transcript_analysis": an object with string fields "question_relevance", "answer_completeness", "content_analysis", "communication_skills", "critical_thinking", "professional_demeanor", "technical_proficiency", "soft_skills", "cultural_fit"
- "areas_for_improvement": a list of areas where the candidate can improve
- "scoring": an object mapping each analysis category to an integer score

Technologies: %s
Tags: %s
Level: %s
Interview Question: %s
Interview Question Explanation: %s
Transcript: %s

Ensure all scores are on a scale of 1-10. Include an assessment of how well the candidate understood and addressed the specific interview question.
Return output in json format only.`

// QuestionEvaluator 单题评估器，调用评估模型产出叙述分析与各维度评分
type QuestionEvaluator struct {
	client ChatCompleter
	cfg    *config.OpenAIConfig
}

// NewQuestionEvaluator 创建单题评估器
func NewQuestionEvaluator(client ChatCompleter, cfg *config.OpenAIConfig) *QuestionEvaluator {
	return &QuestionEvaluator{client: client, cfg: cfg}
}

// Evaluate 评估一道题目及其作答。
// 空作答不跳过，照常送评，由模型按空内容打分。
// 模型调用失败、响应非法、scoring为空都是硬错误，由上层把整个作业标记FAILED。
func (e *QuestionEvaluator) Evaluate(ctx context.Context, question *types.QuestionItem) (*types.QuestionEvaluation, error) {
	if question == nil {
		return nil, fmt.Errorf("题目不能为空")
	}

	prompt := fmt.Sprintf(questionPromptTemplate,
		strings.Join(question.Technologies, ", "),
		strings.Join(question.Tags, ", "),
		question.Level,
		question.QuestionText,
		question.QuestionExplanation,
		question.TranscriptText,
	)

	content, err := e.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("单题评估调用失败 (qid=%s): %w", question.QID, err)
	}

	var eval types.QuestionEvaluation
	if err := json.Unmarshal([]byte(cleanJSONResponse(content)), &eval); err != nil {
		return nil, fmt.Errorf("解析单题评估响应失败 (qid=%s): %w", question.QID, err)
	}

	avgPoints, avgPct, err := CalculateScores(eval.Scoring, question.Point)
	if err != nil {
		return nil, fmt.Errorf("计算单题得分失败 (qid=%s): %w", question.QID, err)
	}

	// 派生字段与题目回带字段
	eval.AveragePoints = avgPoints
	eval.AveragePercentage = avgPct
	eval.QID = question.QID
	eval.Level = question.Level
	eval.Technologies = question.Technologies
	eval.Tags = question.Tags

	return &eval, nil
}

// complete 发送JSON模式的聊天补全请求并返回首个choice的文本
func (e *QuestionEvaluator) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		Temperature: e.cfg.Temperature,
		TopP:        e.cfg.TopP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("评估模型未返回任何choice")
	}
	return resp.Choices[0].Message.Content, nil
}

// cleanJSONResponse 剥离模型偶尔包裹的Markdown代码块标记
func cleanJSONResponse(content string) string {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}
