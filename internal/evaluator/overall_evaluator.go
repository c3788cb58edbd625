package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"interview-review-go/internal/config"
	"interview-review-go/internal/types"

	openai "github.com/sashabaranov/go-openai"
)

const overallPromptTemplate = `Analyze the provided interview review for the candidate. Provide a comprehensive evaluation based on the given information.

Return a JSON object with the following fields:
- "summary": a list of strings giving an overall summary of the interview
- "areas_for_improvement": a list of areas where the candidate can improve
- "recommendation": a final recommendation regarding the candidate

Candidate Interview Review: %s

Return output in json format only.`

// overallNarrative 汇总评估模型返回的叙述部分
type overallNarrative struct {
	Summary             []string `json:"summary"`
	AreasForImprovement []string `json:"areas_for_improvement"`
	Recommendation      string   `json:"recommendation"`
}

// OverallEvaluator 作业级汇总评估器。
// 数值汇总（总分、平均百分比、档位、技术/标签并集）由本服务确定性计算，
// 只有叙述性的summary和recommendation来自评估模型。
type OverallEvaluator struct {
	client ChatCompleter
	cfg    *config.OpenAIConfig
}

// NewOverallEvaluator 创建汇总评估器
func NewOverallEvaluator(client ChatCompleter, cfg *config.OpenAIConfig) *OverallEvaluator {
	return &OverallEvaluator{client: client, cfg: cfg}
}

// Evaluate 基于全部单题评估产出作业级汇总结果
func (e *OverallEvaluator) Evaluate(ctx context.Context, evaluations []types.QuestionEvaluation) (*types.OverallResult, error) {
	if len(evaluations) == 0 {
		return nil, fmt.Errorf("单题评估列表为空，无法汇总")
	}

	prompt := fmt.Sprintf(overallPromptTemplate, formatInterviewDetails(evaluations))

	content, err := e.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("汇总评估调用失败: %w", err)
	}

	var narrative overallNarrative
	if err := json.Unmarshal([]byte(cleanJSONResponse(content)), &narrative); err != nil {
		return nil, fmt.Errorf("解析汇总评估响应失败: %w", err)
	}

	result := aggregateScores(evaluations)
	result.Summary = narrative.Summary
	result.Recommendation = narrative.Recommendation
	return result, nil
}

func (e *OverallEvaluator) complete(ctx context.Context, prompt string) (string, error) {
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

// aggregateScores 对单题评估做确定性数值汇总
func aggregateScores(evaluations []types.QuestionEvaluation) *types.OverallResult {
	var totalScore, totalPercentage float64
	techSet := make(map[string]bool)
	tagSet := make(map[string]bool)

	for _, ev := range evaluations {
		totalScore += ev.AveragePoints
		totalPercentage += ev.AveragePercentage
		for _, t := range ev.Technologies {
			techSet[t] = true
		}
		for _, t := range ev.Tags {
			tagSet[t] = true
		}
	}

	averagePercentage := Round2(totalPercentage / float64(len(evaluations)))

	return &types.OverallResult{
		TotalScore:         Round2(totalScore),
		AveragePercentage:  averagePercentage,
		OverallPerformance: PerformanceBand(averagePercentage),
		Technologies:       sortedKeys(techSet),
		Tags:               sortedKeys(tagSet),
	}
}

// sortedKeys 并集排序输出，保证同一输入产出稳定结果
func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatInterviewDetails 把单题评估拼装成供汇总模型阅读的文本
func formatInterviewDetails(evaluations []types.QuestionEvaluation) string {
	var sb strings.Builder
	for _, ev := range evaluations {
		sb.WriteString(fmt.Sprintf("Interview Question: %s\n\n", ev.InterviewQuestion))
		sb.WriteString("Transcript Analysis:\n")
		ta := ev.TranscriptAnalysis
		sb.WriteString(fmt.Sprintf("question_relevance: %s\n", ta.QuestionRelevance))
		sb.WriteString(fmt.Sprintf("answer_completeness: %s\n", ta.AnswerCompleteness))
		sb.WriteString(fmt.Sprintf("content_analysis: %s\n", ta.ContentAnalysis))
		sb.WriteString(fmt.Sprintf("communication_skills: %s\n", ta.CommunicationSkills))
		sb.WriteString(fmt.Sprintf("critical_thinking: %s\n", ta.CriticalThinking))
		sb.WriteString(fmt.Sprintf("professional_demeanor: %s\n", ta.ProfessionalDemeanor))
		sb.WriteString(fmt.Sprintf("technical_proficiency: %s\n", ta.TechnicalProficiency))
		sb.WriteString(fmt.Sprintf("soft_skills: %s\n", ta.SoftSkills))
		sb.WriteString(fmt.Sprintf("cultural_fit: %s\n", ta.CulturalFit))
		sb.WriteString("\nAreas for Improvement:\n")
		for _, area := range ev.AreasForImprovement {
			sb.WriteString(fmt.Sprintf("- %s\n", area))
		}
		sb.WriteString(strings.Repeat("=", 40) + "\n")
	}
	return sb.String()
}
