package storage

import "time"

// 事件类型，写入 outbox_messages.event_type
const (
	EventResumeParsed    = "resume.parsed"
	EventAnswerEvaluated = "answer.evaluated"
	EventResumeEvaluated = "resume.evaluated"
)

// ResumeParsedEvent 简历解析完成
type ResumeParsedEvent struct {
	ApplicationID   string    `json:"application_id"`
	CompanyID       string    `json:"company_id"`
	CandidateID     string    `json:"candidate_id,omitempty"`
	ResumeObjectKey string    `json:"resume_object_key,omitempty"`
	ParsedTextKey   string    `json:"parsed_text_key,omitempty"`
	FileMD5         string    `json:"file_md5"`
	Empty           bool      `json:"empty"` // 提取失败，rawText 为空
	ParsedAt        time.Time `json:"parsed_at"`
}

// AnswerEvaluatedEvent 面试回答评估完成
type AnswerEvaluatedEvent struct {
	ApplicationID  string    `json:"application_id"`
	CompanyID      string    `json:"company_id"`
	EvaluationID   string    `json:"evaluation_id"`
	QuestionNumber int       `json:"question_number"`
	Criterion      string    `json:"criterion"`
	Score          int       `json:"score"`
	Recommendation string    `json:"recommendation"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}

// ResumeEvaluatedEvent 简历评估完成
type ResumeEvaluatedEvent struct {
	ApplicationID string    `json:"application_id"`
	CompanyID     string    `json:"company_id"`
	JobID         string    `json:"job_id"`
	ScorePercent  int       `json:"score_percent"`
	Qualified     bool      `json:"qualified"`
	PassThreshold int       `json:"pass_threshold"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}
