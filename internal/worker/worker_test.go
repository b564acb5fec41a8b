package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/resumeiq/pipeline/constants"
	"github.com/resumeiq/pipeline/internal/analyze"
	"github.com/resumeiq/pipeline/internal/blob"
	"github.com/resumeiq/pipeline/internal/common"
	"github.com/resumeiq/pipeline/internal/entity"
	"github.com/resumeiq/pipeline/internal/extract"
	"github.com/resumeiq/pipeline/internal/producer"
	"github.com/resumeiq/pipeline/internal/queue"
	"github.com/resumeiq/pipeline/internal/repository"
)

type stubExtractor struct {
	text  string
	errs  []error // consumed per call; nil entry means success
	calls int
}

func (s *stubExtractor) Extract(_ context.Context, _ string) (string, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return s.text, nil
}

type stubAnalyzer struct {
	result *entity.AnalysisResult
	errs   []error
	calls  int
}

func (s *stubAnalyzer) Analyze(_ context.Context, _, _ string) (*entity.AnalysisResult, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.result, nil
}

type harness struct {
	store   *repository.MemStore
	queue   *queue.MemQueue
	gateway *blob.MemGateway
	worker  *Worker
	now     time.Time
}

func newHarness(t *testing.T, cfg Config, ex extract.Extractor, an analyze.Analyzer) *harness {
	t.Helper()
	h := &harness{
		store:   repository.NewMemStore(),
		queue:   queue.NewMemQueue(),
		gateway: blob.NewMemGateway(),
		now:     time.Now().UTC(),
	}
	h.queue.Now = func() time.Time { return h.now }
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h.worker = New(h.queue, h.store, h.gateway, ex, an, cfg, logger)
	return h
}

// submit pushes one document through the producer and returns the job id.
func (h *harness) submit(t *testing.T, owner, content string) uuid.UUID {
	t.Helper()
	p := producer.New(h.gateway, h.store, h.queue, slog.Default())
	id, err := p.Submit(context.Background(), owner, []byte(content), "resume.pdf")
	require.NoError(t, err)
	return id
}

// expireLeases moves the fake clock past every outstanding lease.
func (h *harness) expireLeases(lease time.Duration) {
	h.now = h.now.Add(lease + time.Second)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func analysisFixture() *entity.AnalysisResult {
	return &entity.AnalysisResult{
		Score:            82,
		OptimizedContent: "John Doe, Senior Engineer. Skills: Go, SQL.",
		Suggestions: []entity.Suggestion{
			{Category: "Keywords", Description: "Add more", Priority: 3},
		},
		Profile: &entity.CandidateProfile{
			FullName: "John Doe",
			Skills:   []string{"Go", "SQL"},
		},
	}
}

func TestWorker_HappyPath(t *testing.T) {
	ex := &stubExtractor{text: "John Doe, Senior Engineer, Skills: Go, SQL"}
	an := &stubAnalyzer{result: analysisFixture()}
	h := newHarness(t, Config{}, ex, an)

	jobID := h.submit(t, "user-1", "%PDF-1.4 fake resume bytes")

	require.NoError(t, h.worker.PollOnce(context.Background()))

	job, err := h.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusAnalyzed, job.Status)
	require.NotNil(t, job.Score)
	require.Equal(t, 82, *job.Score)
	require.Len(t, job.Suggestions, 1)
	require.Equal(t, 3, job.Suggestions[0].Priority)
	require.NotNil(t, job.Profile)
	require.Equal(t, "John Doe", job.Profile.FullName)
	require.NotNil(t, job.ExtractedText)
	require.Equal(t, ex.text, *job.ExtractedText)

	require.Equal(t, 0, h.queue.Len(), "message must be deleted after success")
	require.Empty(t, h.queue.Poisoned())
	require.Equal(t, []string{"PENDING->PROCESSING", "PROCESSING->ANALYZED"}, h.store.Transitions)
}

func TestWorker_RollbackThenSuccess(t *testing.T) {
	ex := &stubExtractor{text: "resume text"}
	an := &stubAnalyzer{
		result: analysisFixture(),
		errs: []error{
			common.NewAppError("ANALYSIS_ERROR", "upstream hiccup", common.ErrAnalysis),
			nil,
		},
	}
	cfg := Config{Lease: time.Minute}
	h := newHarness(t, cfg, ex, an)

	jobID := h.submit(t, "user-1", "resume bytes")

	// First delivery: extraction succeeds (checkpointed), analysis fails,
	// job rolls back, message stays leased.
	require.NoError(t, h.worker.PollOnce(context.Background()))
	job, err := h.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusPending, job.Status)
	require.NotNil(t, job.ExtractedText)
	require.Equal(t, 1, h.queue.Len())

	// Lease still held: polling again delivers nothing.
	require.NoError(t, h.worker.PollOnce(context.Background()))
	require.Equal(t, 1, an.calls)

	// Lease expires, redelivery succeeds.
	h.expireLeases(cfg.Lease)
	require.NoError(t, h.worker.PollOnce(context.Background()))

	job, err = h.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusAnalyzed, job.Status)
	require.Len(t, job.Suggestions, 1, "only the successful call's suggestions survive")

	// Extraction ran once: the second attempt reused the checkpoint.
	require.Equal(t, 1, ex.calls)
	require.Equal(t, 2, an.calls)

	require.Equal(t, []string{
		"PENDING->PROCESSING",
		"PROCESSING->PENDING",
		"PENDING->PROCESSING",
		"PROCESSING->ANALYZED",
	}, h.store.Transitions)
}

func TestWorker_RetryExhaustionPoisons(t *testing.T) {
	const maxRetries = 5
	ex := &stubExtractor{}
	// Extraction fails on every attempt.
	for i := 0; i < maxRetries+1; i++ {
		ex.errs = append(ex.errs, common.NewAppError("EXTRACTION_ERROR", "document unreadable", common.ErrExtraction))
	}
	an := &stubAnalyzer{result: analysisFixture()}
	cfg := Config{MaxRetries: maxRetries, Lease: time.Minute}
	h := newHarness(t, cfg, ex, an)

	jobID := h.submit(t, "user-2", "corrupt bytes")

	// Deliveries 1..maxRetries attempt processing and roll back.
	for i := 0; i < maxRetries; i++ {
		require.NoError(t, h.worker.PollOnce(context.Background()))
		h.expireLeases(cfg.Lease)
	}
	require.Equal(t, maxRetries, ex.calls)

	// The next delivery exceeds the budget: poisoned, failed, deleted.
	require.NoError(t, h.worker.PollOnce(context.Background()))

	poisoned := h.queue.Poisoned()
	require.Len(t, poisoned, 1)
	require.Equal(t, jobID.String(), poisoned[0].JobID)
	require.Equal(t, "user-2", poisoned[0].OwnerID)
	require.NotEmpty(t, poisoned[0].Reason)
	require.False(t, poisoned[0].FailedAt.IsZero())

	job, err := h.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)

	require.Equal(t, 0, h.queue.Len())
	require.Equal(t, maxRetries, ex.calls, "poisoned delivery must not attempt processing")
	require.Equal(t, 0, an.calls)

	// Nothing more to do on later polls.
	h.expireLeases(cfg.Lease)
	require.NoError(t, h.worker.PollOnce(context.Background()))
	require.Len(t, h.queue.Poisoned(), 1)
}

func TestWorker_RedeliveryAfterAnalyzedIsNoOp(t *testing.T) {
	ex := &stubExtractor{text: "resume text"}
	an := &stubAnalyzer{result: analysisFixture()}
	h := newHarness(t, Config{}, ex, an)

	jobID := h.submit(t, "user-3", "resume bytes")
	require.NoError(t, h.worker.PollOnce(context.Background()))

	// Simulate a duplicate delivery of the same message.
	require.NoError(t, h.queue.Enqueue(context.Background(), entity.QueueMessage{
		JobID:   jobID.String(),
		OwnerID: "user-3",
	}))
	require.NoError(t, h.worker.PollOnce(context.Background()))

	job, err := h.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusAnalyzed, job.Status)
	require.Len(t, job.Suggestions, 1, "suggestions must not duplicate")
	require.Equal(t, "John Doe", job.Profile.FullName)
	require.Equal(t, 0, h.queue.Len(), "duplicate message must be deleted")
	require.Equal(t, 1, an.calls, "no reprocessing of a settled job")
}

func TestWorker_UnknownJobDropsMessage(t *testing.T) {
	h := newHarness(t, Config{}, &stubExtractor{text: "x"}, &stubAnalyzer{result: analysisFixture()})

	require.NoError(t, h.queue.Enqueue(context.Background(), entity.QueueMessage{
		JobID:   uuid.New().String(),
		OwnerID: "ghost",
	}))
	require.NoError(t, h.worker.PollOnce(context.Background()))
	require.Equal(t, 0, h.queue.Len())
}

// gatedAnalyzer blocks its first call until released, so tests can hold one
// delivery mid-analysis while a redelivery of the same message runs.
type gatedAnalyzer struct {
	result  *entity.AnalysisResult
	started chan struct{}
	release chan struct{}
	failOn  map[int32]bool
	calls   atomic.Int32
}

func newGatedAnalyzer(result *entity.AnalysisResult, failOn map[int32]bool) *gatedAnalyzer {
	return &gatedAnalyzer{
		result:  result,
		started: make(chan struct{}),
		release: make(chan struct{}),
		failOn:  failOn,
	}
}

func (a *gatedAnalyzer) Analyze(_ context.Context, _, _ string) (*entity.AnalysisResult, error) {
	n := a.calls.Add(1)
	if n == 1 {
		close(a.started)
		<-a.release
	}
	if a.failOn[n] {
		return nil, common.NewAppError("ANALYSIS_ERROR", "upstream hiccup", common.ErrAnalysis)
	}
	return a.result, nil
}

func TestWorker_DuplicateDeliveryConverges(t *testing.T) {
	an := newGatedAnalyzer(analysisFixture(), nil)
	ex := &stubExtractor{text: "resume text"}
	cfg := Config{Lease: time.Minute}
	h := newHarness(t, cfg, ex, an)

	jobID := h.submit(t, "user-5", "resume bytes")

	// Worker A takes the message and stalls inside the analysis stage.
	done := make(chan error, 1)
	go func() { done <- h.worker.PollOnce(context.Background()) }()
	<-an.started

	// A's lease expires while it is still working; worker B receives the
	// redelivery, finds the job already PROCESSING, and runs it to
	// completion.
	h.expireLeases(cfg.Lease)
	require.NoError(t, h.worker.PollOnce(context.Background()))

	// A wakes up, loses the SaveAnalysis race and must converge without
	// disturbing B's committed result.
	close(an.release)
	require.NoError(t, <-done)

	job, err := h.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusAnalyzed, job.Status)
	require.Equal(t, 82, *job.Score)
	require.Len(t, job.Suggestions, 1)

	require.Equal(t, 0, h.queue.Len())
	require.Empty(t, h.queue.Poisoned())
	require.Equal(t, int32(2), an.calls.Load())
	// No rollback ever happened; the duplicate never regressed the job.
	require.Equal(t, []string{"PENDING->PROCESSING", "PROCESSING->ANALYZED"}, h.store.Transitions)
}

func TestWorker_SkippedSaveKeepsMessageUntilSettled(t *testing.T) {
	// The redelivered attempt fails and rolls the job back while the first
	// attempt is still mid-analysis.
	an := newGatedAnalyzer(analysisFixture(), map[int32]bool{2: true})
	ex := &stubExtractor{text: "resume text"}
	cfg := Config{Lease: time.Minute}
	h := newHarness(t, cfg, ex, an)

	jobID := h.submit(t, "user-6", "resume bytes")

	done := make(chan error, 1)
	go func() { done <- h.worker.PollOnce(context.Background()) }()
	<-an.started

	h.expireLeases(cfg.Lease)
	require.NoError(t, h.worker.PollOnce(context.Background()))

	// The first attempt finishes its analysis but the job is back in
	// PENDING, so its result is discarded and the message must survive.
	close(an.release)
	require.NoError(t, <-done)

	job, err := h.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusPending, job.Status)
	require.Equal(t, 1, h.queue.Len(), "unsettled job must keep its message")

	// The surviving message redelivers and the job completes normally.
	h.expireLeases(cfg.Lease)
	require.NoError(t, h.worker.PollOnce(context.Background()))

	job, err = h.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStatusAnalyzed, job.Status)
	require.Equal(t, 0, h.queue.Len())
	require.Equal(t, int32(3), an.calls.Load())
}

func TestWorker_MalformedMessageIsPoisoned(t *testing.T) {
	h := newHarness(t, Config{}, &stubExtractor{text: "x"}, &stubAnalyzer{result: analysisFixture()})

	require.NoError(t, h.queue.Enqueue(context.Background(), entity.QueueMessage{
		JobID:   "not-a-uuid",
		OwnerID: "user-4",
	}))
	require.NoError(t, h.worker.PollOnce(context.Background()))

	require.Equal(t, 0, h.queue.Len())
	poisoned := h.queue.Poisoned()
	require.Len(t, poisoned, 1)
	require.Equal(t, "malformed message payload", poisoned[0].Reason)
}
