package storage

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gorm.io/datatypes"
	"gorm.io/gorm/logger"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/config"
	"hiregenai/internal/constants"
	"hiregenai/internal/storage/models"
	"hiregenai/internal/types"
)

func TestParseCriteria(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"字符串数组", `["Technical Skills", "Team Player", "Communication"]`, []string{"Technical Skills", "Team Player", "Communication"}},
		{"对象数组", `[{"name": "Leadership"}, {"label": "Problem Solving"}, {"criterion": "Culture Fit"}]`, []string{"Leadership", "Problem Solving", "Culture Fit"}},
		{"去空白和重复", `[" Team Player ", "", "Team Player", {"weight": 2}]`, []string{"Team Player"}},
		{"空", ``, []string{}},
		{"非法JSON", `[not json`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCriteria(datatypes.JSON(tt.raw)))
		})
	}
}

func TestNewOutboxMessage(t *testing.T) {
	at := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	msg, err := NewOutboxMessage("app-1", EventAnswerEvaluated, "hiregenai.evaluation.exchange", "answer.evaluated",
		AnswerEvaluatedEvent{ApplicationID: "app-1", QuestionNumber: 3, Score: 82, EvaluatedAt: at})
	require.NoError(t, err)

	assert.Equal(t, "app-1", msg.AggregateID)
	assert.Equal(t, EventAnswerEvaluated, msg.EventType)
	assert.Equal(t, models.OutboxStatusPending, msg.Status)
	assert.Equal(t, "answer.evaluated", msg.TargetRoutingKey)

	payload := gjson.Parse(msg.Payload)
	assert.Equal(t, int64(3), payload.Get("question_number").Int())
	assert.Equal(t, int64(82), payload.Get("score").Int())

	_, err = NewOutboxMessage("app-1", "bad", "x", "y", make(chan int))
	assert.Error(t, err)
}

func TestObjectKeys(t *testing.T) {
	assert.Equal(t, "applications/app-9/resume/abc.pdf", OriginalObjectKey("app-9", "abc", "CV Jane.PDF"))
	assert.Equal(t, "applications/unassigned/resume/abc", OriginalObjectKey("", "abc", "resume"))
	assert.Equal(t, "applications/app-9/resume/abc.txt", ParsedTextObjectKey("app-9", "abc"))
}

func TestFormatKey(t *testing.T) {
	assert.Equal(t, "app:resume:parsed:d41d8cd9", FormatKey(constants.KeyParsedResume, "d41d8cd9"))
	assert.Equal(t, "app:application:lock:app-1", FormatKey(constants.KeyResumeEvaluationLock, "app-1"))
}

func TestDSNAndLogLevel(t *testing.T) {
	cfg := &config.MySQLConfig{Host: "db", Port: 3306, Username: "u", Password: "p", Database: "hire",
		ConnectTimeoutSeconds: 10, ReadTimeoutSeconds: 30, WriteTimeoutSeconds: 30}
	assert.Equal(t, "u:p@tcp(db:3306)/hire?charset=utf8mb4&parseTime=True&loc=UTC&timeout=10s&readTimeout=30s&writeTimeout=30s", DSN(cfg))

	assert.Equal(t, logger.Silent, gormLogLevel(1))
	assert.Equal(t, logger.Info, gormLogLevel(4))
	assert.Equal(t, logger.Error, gormLogLevel(0))
}

// 以下测试需要真实的 MySQL / Redis，通过环境变量开启

func testMySQLConfig(t *testing.T) *config.MySQLConfig {
	host := os.Getenv("HIREGENAI_TEST_MYSQL_HOST")
	if host == "" {
		t.Skip("HIREGENAI_TEST_MYSQL_HOST 未设置，跳过 MySQL 集成测试")
	}
	port, _ := strconv.Atoi(os.Getenv("HIREGENAI_TEST_MYSQL_PORT"))
	if port == 0 {
		port = 3306
	}
	return &config.MySQLConfig{
		Host:                  host,
		Port:                  port,
		Username:              os.Getenv("HIREGENAI_TEST_MYSQL_USER"),
		Password:              os.Getenv("HIREGENAI_TEST_MYSQL_PASSWORD"),
		Database:              os.Getenv("HIREGENAI_TEST_MYSQL_DATABASE"),
		MaxIdleConns:          2,
		MaxOpenConns:          5,
		ConnectTimeoutSeconds: 5,
		ReadTimeoutSeconds:    10,
		WriteTimeoutSeconds:   10,
		LogLevel:              1,
		AutoMigrate:           true,
	}
}

func TestApplicationStoreIntegration(t *testing.T) {
	db, err := NewMySQL(testMySQLConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	store := NewApplicationStore(db.DB(), zerolog.Nop())

	companyID := uuid.Must(uuid.NewV7()).String()
	jobID := uuid.Must(uuid.NewV7()).String()
	appID := uuid.Must(uuid.NewV7()).String()
	require.NoError(t, db.DB().Create(&models.Company{CompanyID: companyID, Name: "Acme", LLMKeyEncrypted: "v1:xyz"}).Error)
	require.NoError(t, db.DB().Create(&models.Job{JobID: jobID, CompanyID: companyID, JobTitle: "Backend Engineer", JobDescriptionText: "Go"}).Error)
	require.NoError(t, db.DB().Create(&models.InterviewRound{JobID: jobID, RoundNumber: 1, Criteria: datatypes.JSON(`["Technical Skills","Team Player"]`)}).Error)
	require.NoError(t, db.DB().Create(&models.Application{ApplicationID: appID, CompanyID: companyID, JobID: jobID, CurrentRound: 1}).Error)

	cred, err := store.CompanyCredential(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, "v1:xyz", cred.EncryptedKey)

	_, err = store.GetApplication(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	catalog, err := store.RoundCriteria(ctx, jobID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Technical Skills", "Team Player"}, catalog)

	catalog, err = store.RoundCriteria(ctx, jobID, 2)
	require.NoError(t, err)
	assert.Empty(t, catalog)

	// 同一问题写两次只保留最后一次，evaluation_id 沿用第一次的
	var ids, eventIDs []string
	for _, score := range []int{40, 75} {
		rec := &models.AnswerEvaluationRecord{
			EvaluationID:   uuid.Must(uuid.NewV7()).String(),
			ApplicationID:  appID,
			QuestionNumber: 1,
			Score:          score,
			Evaluation:     datatypes.JSON(`{}`),
			EvaluatedAt:    time.Now().UTC(),
		}
		require.NoError(t, store.SaveAnswerEvaluation(ctx, rec, func(evaluationID string) *models.OutboxMessage {
			eventIDs = append(eventIDs, evaluationID)
			return nil
		}))
		ids = append(ids, rec.EvaluationID)
	}
	var recs []models.AnswerEvaluationRecord
	require.NoError(t, db.DB().Where("application_id = ?", appID).Find(&recs).Error)
	require.Len(t, recs, 1)
	assert.Equal(t, 75, recs[0].Score)
	assert.Equal(t, []string{recs[0].EvaluationID, recs[0].EvaluationID}, ids)
	assert.Equal(t, ids, eventIDs)

	err = store.SaveParsedResume(ctx, "missing", ParsedResumeUpdate{FileMD5: "x"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRedisParseCacheIntegration(t *testing.T) {
	addr := os.Getenv("HIREGENAI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HIREGENAI_TEST_REDIS_ADDR 未设置，跳过 Redis 集成测试")
	}
	r, err := NewRedis(&config.RedisConfig{Address: addr, DialTimeoutSeconds: 2, ReadTimeoutSeconds: 2, WriteTimeoutSeconds: 2}, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	md5 := uuid.Must(uuid.NewV4()).String()

	_, hit, err := r.GetParsedDocument(ctx, md5)
	require.NoError(t, err)
	assert.False(t, hit)

	doc := types.EmptyParsedDocument()
	doc.RawText = "Jane Doe\nGo engineer"
	doc.Skills = []string{"Go"}
	require.NoError(t, r.SetParsedDocument(ctx, md5, doc, time.Minute))

	got, hit, err := r.GetParsedDocument(ctx, md5)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, doc, got)

	lockKey := FormatKey(constants.KeyResumeEvaluationLock, md5)
	token, err := r.AcquireLock(ctx, lockKey, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	second, err := r.AcquireLock(ctx, lockKey, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second, "锁被占用时不能再次获取")

	released, err := r.ReleaseLock(ctx, lockKey, "not-the-owner")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = r.ReleaseLock(ctx, lockKey, token)
	require.NoError(t, err)
	assert.True(t, released)
}
