package models

import (
	"time"

	"gorm.io/datatypes"
)

// SchemaVersion 当前代码期望的表结构版本，AutoMigrate 后写入 schema_migrations
const SchemaVersion = 3

// Company 租户（招聘方公司），保存加密后的模型访问凭据
type Company struct {
	CompanyID       string    `gorm:"type:char(36);primaryKey"`
	Name            string    `gorm:"type:varchar(255);not null"`
	LLMKeyEncrypted string    `gorm:"type:text"`         // v1:base64(nonce||ciphertext)，旧数据可能是明文或 JSON
	LLMProjectID    string    `gorm:"type:varchar(255)"` // 可选，可能同样是加密格式
	LLMModel        string    `gorm:"type:varchar(100)"` // 为空时使用全局默认模型
	CreatedAt       time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Company) TableName() string {
	return "companies"
}

// Job 岗位
type Job struct {
	JobID              string    `gorm:"type:char(36);primaryKey"`
	CompanyID          string    `gorm:"type:char(36);not null;index:idx_jobs_company_id"`
	JobTitle           string    `gorm:"type:varchar(255);not null"`
	JobLevel           string    `gorm:"type:varchar(20)"` // junior | mid | senior
	JobDescriptionText string    `gorm:"type:text;not null"`
	PassThreshold      int       `gorm:"default:0"` // 0 表示使用全局默认阈值
	Status             string    `gorm:"type:varchar(50);default:'ACTIVE';index:idx_jobs_status"`
	CreatedAt          time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt          time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// InterviewRound 岗位的面试轮次，Criteria 为评估维度目录（JSON 字符串数组）
type InterviewRound struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	JobID       string         `gorm:"type:char(36);not null;uniqueIndex:idx_round_job_seq"`
	RoundNumber int            `gorm:"not null;uniqueIndex:idx_round_job_seq"`
	Name        string         `gorm:"type:varchar(255)"`
	Criteria    datatypes.JSON `gorm:"type:json"`
	CreatedAt   time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt   time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (InterviewRound) TableName() string {
	return "interview_rounds"
}

// Application 候选人对某个岗位的申请，简历解析和评估结果都写在这一行
type Application struct {
	ApplicationID      string         `gorm:"type:char(36);primaryKey"`
	CompanyID          string         `gorm:"type:char(36);not null;index:idx_app_company_id"`
	JobID              string         `gorm:"type:char(36);not null;index:idx_app_job_id"`
	CandidateID        string         `gorm:"type:char(36);index:idx_app_candidate_id"`
	CurrentRound       int            `gorm:"default:1"`
	ResumeText         string         `gorm:"type:mediumtext"`
	ResumeParsed       datatypes.JSON `gorm:"type:json"`
	ResumeObjectKey    string         `gorm:"type:varchar(1024)"`
	ResumeFileMD5      string         `gorm:"type:char(32);index:idx_app_resume_md5"`
	ResumeEvaluation   datatypes.JSON `gorm:"type:json"`
	ResumeScore        *int           `gorm:"type:int"`
	ResumeQualified    *bool          `gorm:"type:tinyint(1)"`
	ResumeEvaluatedAt  *time.Time     `gorm:"type:datetime(6)"`
	ProcessingStatus   string         `gorm:"type:varchar(50);default:'PENDING_RESUME';index:idx_app_processing_status"`
	NormalizerVersion  string         `gorm:"type:varchar(20)"`
	CreatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Application) TableName() string {
	return "applications"
}

// 申请处理状态
const (
	StatusPendingResume   = "PENDING_RESUME"
	StatusResumeParsed    = "RESUME_PARSED"
	StatusResumeEmpty     = "RESUME_EMPTY" // 解析失败，等待调用方补充表单数据
	StatusResumeEvaluated = "RESUME_EVALUATED"
)

// AnswerEvaluationRecord 单个面试回答的评估结果，(application_id, question_number) 唯一
type AnswerEvaluationRecord struct {
	EvaluationID    string         `gorm:"type:char(36);primaryKey"`
	ApplicationID   string         `gorm:"type:char(36);not null;uniqueIndex:idx_answer_app_question"`
	QuestionNumber  int            `gorm:"not null;uniqueIndex:idx_answer_app_question"`
	QuestionText    string         `gorm:"type:text"`
	Criterion       string         `gorm:"type:varchar(255)"`
	CriterionSource string         `gorm:"type:varchar(50)"`
	Score           int            `gorm:"not null"`
	Recommendation  string         `gorm:"type:varchar(50)"`
	Evaluation      datatypes.JSON `gorm:"type:json;not null"`
	Source          string         `gorm:"type:varchar(50)"`
	EvaluatedAt     time.Time      `gorm:"type:datetime(6)"`
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (AnswerEvaluationRecord) TableName() string {
	return "application_answer_evaluations"
}

// SchemaMigration 已应用的表结构版本
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	AppliedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (SchemaMigration) TableName() string {
	return "schema_migrations"
}
