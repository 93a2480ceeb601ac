package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/credentials"
	"hiregenai/internal/criterion"
	"hiregenai/internal/llm"
	"hiregenai/internal/scoring"
	"hiregenai/internal/storage"
	"hiregenai/internal/storage/models"
	"hiregenai/internal/types"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	mu           sync.Mutex
	companies    map[string]*models.Company
	jobs         map[string]*models.Job
	applications map[string]*models.Application
	criteria     map[string][]string

	answers     []*models.AnswerEvaluationRecord
	parsed      map[string]storage.ParsedResumeUpdate
	evaluations map[string]storage.ResumeEvaluationUpdate
	events      []*models.OutboxMessage
	saveErr     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		companies: map[string]*models.Company{
			"c1": {CompanyID: "c1", Name: "Acme"},
			"c2": {CompanyID: "c2", Name: "Globex"},
		},
		jobs: map[string]*models.Job{
			"j1": {JobID: "j1", CompanyID: "c1", JobTitle: "Backend Engineer", JobLevel: "senior",
				JobDescriptionText: "Senior Go engineer with PostgreSQL and Kubernetes.", PassThreshold: 70},
		},
		applications: map[string]*models.Application{
			"a1": {ApplicationID: "a1", CompanyID: "c1", JobID: "j1", CandidateID: "cand-1", CurrentRound: 1,
				ResumeText: "Jane Doe. Built Go services on PostgreSQL."},
			"a2": {ApplicationID: "a2", CompanyID: "c1", JobID: "j1", CurrentRound: 1},
		},
		criteria:    map[string][]string{"j1/1": {"Technical", "Team Player"}},
		parsed:      map[string]storage.ParsedResumeUpdate{},
		evaluations: map[string]storage.ResumeEvaluationUpdate{},
	}
}

func (r *fakeRepo) GetApplication(_ context.Context, id string) (*models.Application, error) {
	if a, ok := r.applications[id]; ok {
		return a, nil
	}
	return nil, apperrors.NewNotFoundError("fake.GetApplication", fmt.Sprintf("application %s not found", id))
}

func (r *fakeRepo) GetJob(_ context.Context, id string) (*models.Job, error) {
	if j, ok := r.jobs[id]; ok {
		return j, nil
	}
	return nil, apperrors.NewNotFoundError("fake.GetJob", fmt.Sprintf("job %s not found", id))
}

func (r *fakeRepo) GetCompany(_ context.Context, id string) (*models.Company, error) {
	if c, ok := r.companies[id]; ok {
		return c, nil
	}
	return nil, apperrors.NewNotFoundError("fake.GetCompany", fmt.Sprintf("company %s not found", id))
}

func (r *fakeRepo) RoundCriteria(_ context.Context, jobID string, round int) ([]string, error) {
	return append([]string{}, r.criteria[fmt.Sprintf("%s/%d", jobID, round)]...), nil
}

func (r *fakeRepo) record(event *models.OutboxMessage) {
	if event != nil {
		r.events = append(r.events, event)
	}
}

// SaveAnswerEvaluation 与 MySQL 的 upsert 一致：同一 (application, question) 覆盖并沿用原 id
func (r *fakeRepo) SaveAnswerEvaluation(_ context.Context, rec *models.AnswerEvaluationRecord, buildEvent storage.AnswerEventFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	replaced := false
	for i, prev := range r.answers {
		if prev.ApplicationID == rec.ApplicationID && prev.QuestionNumber == rec.QuestionNumber {
			rec.EvaluationID = prev.EvaluationID
			r.answers[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		r.answers = append(r.answers, rec)
	}
	if buildEvent != nil {
		r.record(buildEvent(rec.EvaluationID))
	}
	return nil
}

func (r *fakeRepo) SaveParsedResume(_ context.Context, id string, upd storage.ParsedResumeUpdate, event *models.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.parsed[id] = upd
	r.record(event)
	return nil
}

func (r *fakeRepo) SaveResumeEvaluation(_ context.Context, id string, upd storage.ResumeEvaluationUpdate, event *models.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.evaluations[id] = upd
	r.record(event)
	return nil
}

type fakeCredentials struct {
	calls int
	err   error
}

func (f *fakeCredentials) Resolve(_ context.Context, companyID string) (credentials.Credential, error) {
	f.calls++
	if f.err != nil {
		return credentials.Credential{}, f.err
	}
	return credentials.Credential{APIKey: "sk-" + companyID}, nil
}

// fakeModels 所有租户共用一个 mock 模型
type fakeModels struct {
	mock  *llm.MockChatClient
	names []string
}

func (f *fakeModels) ChatModel(apiKey, projectID, modelName string) (model.ToolCallingChatModel, error) {
	f.names = append(f.names, modelName)
	return f.mock, nil
}

type fakeParser struct {
	calls int
}

func (f *fakeParser) ParseNamed(_ context.Context, data []byte, _, _ string) types.ParsedDocument {
	f.calls++
	if string(data) == "%PDF-1.4 corrupt" {
		return types.EmptyParsedDocument()
	}
	doc := types.EmptyParsedDocument()
	doc.RawText = string(data)
	doc.Skills = []string{"Go"}
	return doc
}

func (f *fakeParser) MaxBytes() int64 { return 64 }

type fakeCache struct {
	mu   sync.Mutex
	docs map[string]types.ParsedDocument
	err  error
}

func (c *fakeCache) GetParsedDocument(_ context.Context, md5 string) (types.ParsedDocument, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return types.ParsedDocument{}, false, c.err
	}
	doc, ok := c.docs[md5]
	return doc, ok, nil
}

func (c *fakeCache) SetParsedDocument(_ context.Context, md5 string, doc types.ParsedDocument, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[md5] = doc
	return nil
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (a *fakeArchive) UploadOriginal(_ context.Context, appID, md5, fileName string, _ []byte, _ string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	key := storage.OriginalObjectKey(appID, md5, fileName)
	a.mu.Lock()
	a.keys = append(a.keys, key)
	a.mu.Unlock()
	return key, nil
}

func (a *fakeArchive) UploadParsedText(_ context.Context, appID, md5, _ string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	key := storage.ParsedTextObjectKey(appID, md5)
	a.mu.Lock()
	a.keys = append(a.keys, key)
	a.mu.Unlock()
	return key, nil
}

type fakeLocker struct {
	held     map[string]string
	released []string
	err      error
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	if _, ok := l.held[key]; ok {
		return "", nil
	}
	l.held[key] = "token-" + key
	return l.held[key], nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key, token string) (bool, error) {
	if l.held[key] != token {
		return false, nil
	}
	delete(l.held, key)
	l.released = append(l.released, key)
	return true, nil
}

type harness struct {
	svc     *Service
	repo    *fakeRepo
	creds   *fakeCredentials
	models  *fakeModels
	parser  *fakeParser
	cache   *fakeCache
	archive *fakeArchive
	locker  *fakeLocker
}

func newHarness(t *testing.T, responses ...llm.MockResponse) *harness {
	t.Helper()
	engine, err := scoring.NewEngine(scoring.WithMode(scoring.ModeSinglePass))
	require.NoError(t, err)
	resolver, err := criterion.NewResolver(criterion.WithStrategy(criterion.StrategyKeyword))
	require.NoError(t, err)

	h := &harness{
		repo:    newFakeRepo(),
		creds:   &fakeCredentials{},
		models:  &fakeModels{mock: llm.NewMockChatClientSequential(responses...)},
		parser:  &fakeParser{},
		cache:   &fakeCache{docs: map[string]types.ParsedDocument{}},
		archive: &fakeArchive{},
		locker:  &fakeLocker{held: map[string]string{}},
	}
	svc, err := New(Components{
		Repository:  h.repo,
		Credentials: h.creds,
		Models:      h.models,
		Normalizer:  h.parser,
		Criteria:    resolver,
		Answers:     scoring.NewAnswerScorer(engine, ""),
		Resumes:     scoring.NewResumeScorer(engine),
		Cache:       h.cache,
		Archive:     h.archive,
		Locker:      h.locker,
	}, Settings{
		Exchange:           "hiregenai.evaluation",
		ResumeParsedKey:    "resume.parsed",
		AnswerEvaluatedKey: "answer.evaluated",
		ResumeEvaluatedKey: "resume.evaluated",
		TransportTextLimit: 10,
		Logger:             zerolog.Nop(),
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedTime }
	h.svc = svc
	return h
}

var errBoom = errors.New("boom")
