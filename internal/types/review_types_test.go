package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 构造一个合法的提交消息
func validSubmission() *InterviewSubmission {
	return &InterviewSubmission{
		ID:      "job-001",
		Profile: "backend-engineer",
		Interview: []QuestionItem{
			{
				QID:            "q-1",
				Level:          LevelIntermediate,
				Technologies:   []string{"Go"},
				Tags:           []string{"concurrency"},
				Point:          2,
				QuestionText:   "Explain goroutines.",
				TranscriptText: "Goroutines are lightweight threads.",
			},
		},
	}
}

func TestValidateAcceptsWellFormedSubmission(t *testing.T) {
	sub := validSubmission()
	assert.NoError(t, sub.Validate())
}

func TestValidateNormalizesJobIDAlias(t *testing.T) {
	sub := validSubmission()
	sub.ID = ""
	sub.JobID = "job-legacy-42"

	require.NoError(t, sub.Validate())
	// 归一化后只剩规范的ID字段
	assert.Equal(t, "job-legacy-42", sub.ID)
	assert.Empty(t, sub.JobID)
}

func TestValidateRejectsMalformedSubmissions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*InterviewSubmission)
	}{
		{"缺少id", func(s *InterviewSubmission) { s.ID = "" }},
		{"题目列表为空", func(s *InterviewSubmission) { s.Interview = nil }},
		{"题目缺少qid", func(s *InterviewSubmission) { s.Interview[0].QID = "" }},
		{"level非法", func(s *InterviewSubmission) { s.Interview[0].Level = "expert" }},
		{"point为零", func(s *InterviewSubmission) { s.Interview[0].Point = 0 }},
		{"point为负", func(s *InterviewSubmission) { s.Interview[0].Point = -1 }},
		{"缺少questionText", func(s *InterviewSubmission) { s.Interview[0].QuestionText = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubmission()
			tt.mutate(sub)
			err := sub.Validate()
			require.Error(t, err)
			// 所有校验失败都归类为格式非法
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestValidateAllowsEmptyTranscript(t *testing.T) {
	// 空作答是合法输入，照常送评
	sub := validSubmission()
	sub.Interview[0].TranscriptText = ""
	assert.NoError(t, sub.Validate())
}

func TestQuestionLevelValid(t *testing.T) {
	assert.True(t, LevelBeginner.Valid())
	assert.True(t, LevelIntermediate.Valid())
	assert.True(t, LevelAdvanced.Valid())
	assert.False(t, QuestionLevel("expert").Valid())
	assert.False(t, QuestionLevel("").Valid())
}

func TestSubmissionUnmarshalWireFormat(t *testing.T) {
	raw := `{
		"id": "job-wire-1",
		"profile": "java-dev",
		"interview": [{
			"qid": "123e4567",
			"level": "advanced",
			"technologies": ["Java"],
			"tags": ["concurrency"],
			"point": 3,
			"questionText": "What is thread pooling?",
			"questionExplanation": "Tests concurrency knowledge.",
			"transcriptText": "Thread pooling reuses threads."
		}]
	}`

	var sub InterviewSubmission
	require.NoError(t, json.Unmarshal([]byte(raw), &sub))
	require.NoError(t, sub.Validate())

	assert.Equal(t, "job-wire-1", sub.ID)
	assert.Equal(t, LevelAdvanced, sub.Interview[0].Level)
	assert.Equal(t, 3.0, sub.Interview[0].Point)
	assert.Equal(t, "What is thread pooling?", sub.Interview[0].QuestionText)
}
