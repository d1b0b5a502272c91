package review

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/scriptdeck/greenlight-backend/internal/ingestion"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/dbctx"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/retrieval"
	"github.com/scriptdeck/greenlight-backend/internal/types"
)

type fakeSubmissionRepo struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*types.Submission
}

func newFakeSubmissionRepo(subs ...*types.Submission) *fakeSubmissionRepo {
	m := map[uuid.UUID]*types.Submission{}
	for _, s := range subs {
		m[s.ID] = s
	}
	return &fakeSubmissionRepo{subs: m}
}

func (f *fakeSubmissionRepo) Create(dbc dbctx.Context, subs []*types.Submission) ([]*types.Submission, error) {
	return subs, nil
}

func (f *fakeSubmissionRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Submission
	for _, id := range ids {
		if s, ok := f.subs[id]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSubmissionRepo) List(dbc dbctx.Context, status string) ([]*types.Submission, error) {
	return nil, nil
}

func (f *fakeSubmissionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil
	}
	if v, ok := updates["status"].(string); ok {
		s.Status = v
	}
	if v, ok := updates["last_error"].(string); ok {
		s.LastError = v
	}
	return nil
}

func (f *fakeSubmissionRepo) ClaimForProcessing(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return false, nil
	}
	if s.Status != types.SubmissionStatusQueued && s.Status != types.SubmissionStatusFailed {
		return false, nil
	}
	s.Status = types.SubmissionStatusProcessing
	s.LastError = ""
	return true, nil
}

func (f *fakeSubmissionRepo) status(id uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[id].Status
}

type fakeReportRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*types.FinalReport
	upserts int
}

func newFakeReportRepo() *fakeReportRepo {
	return &fakeReportRepo{byID: map[uuid.UUID]*types.FinalReport{}}
}

func (f *fakeReportRepo) Upsert(dbc dbctx.Context, report *types.FinalReport) (*types.FinalReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	f.byID[report.SubmissionID] = report
	return report, nil
}

func (f *fakeReportRepo) GetBySubmissionID(dbc dbctx.Context, submissionID uuid.UUID) (*types.FinalReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[submissionID], nil
}

type fakeSearcher struct{}

func (fakeSearcher) SearchDocs(ctx context.Context, q retrieval.Query) ([]retrieval.Result, error) {
	return []retrieval.Result{{ChunkID: uuid.New(), Text: "doc context", Origin: retrieval.OriginLexical, Score: 0.4}}, nil
}

func (fakeSearcher) SearchScript(ctx context.Context, submissionID uuid.UUID, q retrieval.Query) ([]retrieval.Result, error) {
	return []retrieval.Result{{ChunkID: uuid.New(), Text: "script excerpt", Origin: retrieval.OriginVector, Score: 0.8}}, nil
}

type fakeAgentEvaluator struct {
	mu      sync.Mutex
	calls   int
	scores  map[AgentName]float64
	failFor AgentName
}

func (f *fakeAgentEvaluator) Evaluate(ctx context.Context, member RosterMember, meta SubmissionMeta, scriptExcerpts, docChunks []retrieval.Result) (*AgentReview, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if member.Name == f.failFor {
		return nil, apperr.Newf(apperr.KindUpstream, "agent %s provider failure", member.Name)
	}
	score := 7.5
	if s, ok := f.scores[member.Name]; ok {
		score = s
	}
	return &AgentReview{
		Agent:      member.Name,
		Score:      score,
		Confidence: 0.8,
		Findings:   []Finding{{Severity: SeverityStrength, Summary: "solid " + string(member.Name)}},
	}, nil
}

type fakeSynthesizer struct {
	err error
}

func (f *fakeSynthesizer) Render(ctx context.Context, meta SubmissionMeta, cal *Calibration) (*RenderedReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &RenderedReport{
		ReportText:          "coverage for " + meta.Title,
		NotificationSubject: "Your coverage is ready",
		NotificationBody:    "Read the full report online.",
	}, nil
}

type fakeIngester struct {
	calls int
	err   error
}

func (f *fakeIngester) Run(ctx context.Context, parentID uuid.UUID, sourceKind, sourceRef string) (*ingestion.Report, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ingestion.Report{ParentID: parentID, Total: 10, Processed: 10}, nil
}

func queuedSubmission() *types.Submission {
	return &types.Submission{
		ID:        uuid.New(),
		Writer:    "R. Okafor",
		Title:     "Harmattan Season",
		Format:    "tv_drama",
		Genre:     "family saga",
		Region:    "west_africa",
		Platform:  "streaming",
		Status:    types.SubmissionStatusQueued,
		SourceRef: "uploads/harmattan-s1e1.txt",
	}
}

func newTestOrchestrator(t *testing.T, subs *fakeSubmissionRepo, reports *fakeReportRepo, eval *fakeAgentEvaluator, synth *fakeSynthesizer, ing *fakeIngester) *Orchestrator {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewOrchestrator(subs, reports, fakeSearcher{}, eval, synth, ing, nil, log)
}

func TestRunCompletesAndUpsertsReport(t *testing.T) {
	sub := queuedSubmission()
	subs := newFakeSubmissionRepo(sub)
	reports := newFakeReportRepo()
	eval := &fakeAgentEvaluator{}
	ing := &fakeIngester{}
	o := newTestOrchestrator(t, subs, reports, eval, &fakeSynthesizer{}, ing)

	report, err := o.Run(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if subs.status(sub.ID) != types.SubmissionStatusCompleted {
		t.Fatalf("status: want=%s got=%s", types.SubmissionStatusCompleted, subs.status(sub.ID))
	}
	if eval.calls != len(roster) {
		t.Fatalf("agent calls: want=%d got=%d", len(roster), eval.calls)
	}
	if ing.calls != 1 {
		t.Fatalf("ingestion calls: want=1 got=%d", ing.calls)
	}
	if reports.upserts != 1 || report.SubmissionID != sub.ID {
		t.Fatalf("report upserts=%d submission=%s", reports.upserts, report.SubmissionID)
	}
	if report.ReportText == "" || report.NotificationSubject == "" {
		t.Fatalf("report missing synthesis output: %+v", report)
	}
}

func TestRunConcurrentDuplicateGetsConflict(t *testing.T) {
	sub := queuedSubmission()
	subs := newFakeSubmissionRepo(sub)
	o := newTestOrchestrator(t, subs, newFakeReportRepo(), &fakeAgentEvaluator{}, &fakeSynthesizer{}, &fakeIngester{})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		conflicts int
		successes int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Run(context.Background(), sub.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.Is(err, apperr.KindConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	if successes != 1 || conflicts != 1 {
		t.Fatalf("want exactly one success and one conflict, got successes=%d conflicts=%d", successes, conflicts)
	}
}

func TestRunAgentFailureIsFatal(t *testing.T) {
	sub := queuedSubmission()
	subs := newFakeSubmissionRepo(sub)
	reports := newFakeReportRepo()
	o := newTestOrchestrator(t, subs, reports, &fakeAgentEvaluator{failFor: AgentPacing}, &fakeSynthesizer{}, &fakeIngester{})

	_, err := o.Run(context.Background(), sub.ID)
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("kind: want=%v got=%v (err=%v)", apperr.KindUpstream, apperr.KindOf(err), err)
	}
	if subs.status(sub.ID) != types.SubmissionStatusFailed {
		t.Fatalf("status: want=%s got=%s", types.SubmissionStatusFailed, subs.status(sub.ID))
	}
	if reports.upserts != 0 {
		t.Fatalf("no report expected on agent failure, got %d upserts", reports.upserts)
	}
	if subs.subs[sub.ID].LastError == "" {
		t.Fatalf("last_error should record the cause")
	}
}

func TestRunIngestionFailureIsFatal(t *testing.T) {
	sub := queuedSubmission()
	subs := newFakeSubmissionRepo(sub)
	ingErr := apperr.Newf(apperr.KindFailedPrecondition, "embedding failure rate too high")
	o := newTestOrchestrator(t, subs, newFakeReportRepo(), &fakeAgentEvaluator{}, &fakeSynthesizer{}, &fakeIngester{err: ingErr})

	_, err := o.Run(context.Background(), sub.ID)
	if !errors.Is(err, ingErr) {
		t.Fatalf("error: want=%v got=%v", ingErr, err)
	}
	if subs.status(sub.ID) != types.SubmissionStatusFailed {
		t.Fatalf("status: want=%s got=%s", types.SubmissionStatusFailed, subs.status(sub.ID))
	}
}

func TestRunSynthesisFailureNeverLeavesProcessing(t *testing.T) {
	sub := queuedSubmission()
	subs := newFakeSubmissionRepo(sub)
	synthErr := apperr.Newf(apperr.KindUpstream, "synthesis provider down")
	o := newTestOrchestrator(t, subs, newFakeReportRepo(), &fakeAgentEvaluator{}, &fakeSynthesizer{err: synthErr}, &fakeIngester{})

	_, err := o.Run(context.Background(), sub.ID)
	if !errors.Is(err, synthErr) {
		t.Fatalf("error: want=%v got=%v", synthErr, err)
	}
	if got := subs.status(sub.ID); got == types.SubmissionStatusProcessing {
		t.Fatalf("submission stuck in processing")
	}
}

func TestRunFailedSubmissionIsRerunnable(t *testing.T) {
	sub := queuedSubmission()
	sub.Status = types.SubmissionStatusFailed
	sub.LastError = "previous provider outage"
	subs := newFakeSubmissionRepo(sub)
	o := newTestOrchestrator(t, subs, newFakeReportRepo(), &fakeAgentEvaluator{}, &fakeSynthesizer{}, &fakeIngester{})

	if _, err := o.Run(context.Background(), sub.ID); err != nil {
		t.Fatalf("Run on failed submission: %v", err)
	}
	if subs.status(sub.ID) != types.SubmissionStatusCompleted {
		t.Fatalf("status: want=%s got=%s", types.SubmissionStatusCompleted, subs.status(sub.ID))
	}
}

func TestRunUnknownSubmission(t *testing.T) {
	o := newTestOrchestrator(t, newFakeSubmissionRepo(), newFakeReportRepo(), &fakeAgentEvaluator{}, &fakeSynthesizer{}, &fakeIngester{})
	_, err := o.Run(context.Background(), uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("kind: want=%v got=%v", apperr.KindNotFound, apperr.KindOf(err))
	}
}
