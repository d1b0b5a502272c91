package review

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scriptdeck/greenlight-backend/internal/ingestion"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/dbctx"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/repos"
	"github.com/scriptdeck/greenlight-backend/internal/retrieval"
	"github.com/scriptdeck/greenlight-backend/internal/sse"
	"github.com/scriptdeck/greenlight-backend/internal/types"
)

// Ingester is the slice of the ingestion pipeline the orchestrator runs
// before reviewing a submission with a source document.
type Ingester interface {
	Run(ctx context.Context, parentID uuid.UUID, sourceKind, sourceRef string) (*ingestion.Report, error)
}

// Publisher pushes review progress events; the redis bus satisfies it.
// A nil publisher disables progress events without touching the run.
type Publisher interface {
	Publish(ctx context.Context, msg sse.Message) error
}

// Orchestrator drives one submission through the full review: claim,
// ingest, agent fan-out, judge, synthesis, persist.
type Orchestrator struct {
	submissions repos.SubmissionRepo
	reports     repos.FinalReportRepo
	retriever   retrieval.Searcher
	evaluator   Evaluator
	synthesizer Synthesizer
	pipeline    Ingester
	bus         Publisher
	weights     RubricWeights
	log         *logger.Logger
}

func NewOrchestrator(
	submissions repos.SubmissionRepo,
	reports repos.FinalReportRepo,
	retriever retrieval.Searcher,
	evaluator Evaluator,
	synthesizer Synthesizer,
	pipeline Ingester,
	bus Publisher,
	baseLog *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		submissions: submissions,
		reports:     reports,
		retriever:   retriever,
		evaluator:   evaluator,
		synthesizer: synthesizer,
		pipeline:    pipeline,
		bus:         bus,
		weights:     DefaultRubricWeights(),
		log:         baseLog.With("service", "ReviewOrchestrator"),
	}
}

// Run executes one review. The queued|failed -> processing claim is a
// conditional update, so a concurrent duplicate request gets a conflict
// instead of a second run. Every failure path records failed status
// plus the error before propagating it unchanged.
func (o *Orchestrator) Run(ctx context.Context, submissionID uuid.UUID) (*types.FinalReport, error) {
	dbc := dbctx.Context{Ctx: ctx}

	subs, err := o.submissions.GetByIDs(dbc, []uuid.UUID{submissionID})
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, apperr.Newf(apperr.KindNotFound, "submission %s not found", submissionID)
	}
	sub := subs[0]

	claimed, err := o.submissions.ClaimForProcessing(dbc, submissionID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, apperr.Newf(apperr.KindConflict, "submission %s is already being reviewed", submissionID)
	}
	o.emit(ctx, submissionID, sse.EventReviewClaimed, nil)

	report, err := o.process(ctx, sub)
	if err != nil {
		return nil, o.fail(ctx, submissionID, err)
	}

	if uErr := o.submissions.UpdateFields(dbc, submissionID, map[string]interface{}{
		"status": types.SubmissionStatusCompleted,
	}); uErr != nil {
		return nil, o.fail(ctx, submissionID, uErr)
	}
	o.emit(ctx, submissionID, sse.EventReviewCompleted, map[string]any{
		"overall_score": report.OverallScore,
	})
	o.log.Info("Review completed", "submission_id", submissionID, "overall_score", report.OverallScore)
	return report, nil
}

func (o *Orchestrator) process(ctx context.Context, sub *types.Submission) (*types.FinalReport, error) {
	dbc := dbctx.Context{Ctx: ctx}
	meta := metaFrom(sub)

	if sub.SourceRef != "" {
		ingReport, err := o.pipeline.Run(ctx, sub.ID, types.SourceKindScript, sub.SourceRef)
		if err != nil {
			return nil, err
		}
		o.emit(ctx, sub.ID, sse.EventReviewIngested, map[string]any{
			"processed": ingReport.Processed,
			"total":     ingReport.Total,
		})
	}

	o.emit(ctx, sub.ID, sse.EventReviewAgentsStarted, map[string]any{"agents": len(roster)})

	reviews, err := o.runAgents(ctx, meta)
	if err != nil {
		return nil, err
	}

	cal, err := Calibrate(sub.ID, reviews, o.weights)
	if err != nil {
		return nil, err
	}
	o.emit(ctx, sub.ID, sse.EventReviewCalibrated, map[string]any{
		"overall_score": cal.OverallScore,
		"ethics_capped": cal.EthicsCapped,
	})

	rendered, err := o.synthesizer.Render(ctx, meta, cal)
	if err != nil {
		return nil, err
	}

	report, err := buildFinalReport(cal, rendered)
	if err != nil {
		return nil, err
	}
	return o.reports.Upsert(dbc, report)
}

// runAgents fans the whole roster out concurrently and waits for every
// member. Any single failure cancels the rest: a missing score would
// corrupt calibration, so there is no partial tolerance here.
func (o *Orchestrator) runAgents(ctx context.Context, meta SubmissionMeta) ([]AgentReview, error) {
	members := Roster()
	reviews := make([]AgentReview, len(members))

	g, gctx := errgroup.WithContext(ctx)
	for i, member := range members {
		i, member := i, member
		g.Go(func() error {
			scriptExcerpts, docChunks, err := o.assembleContext(gctx, member, meta)
			if err != nil {
				return fmt.Errorf("assemble context for %s: %w", member.Name, err)
			}
			rv, err := o.evaluator.Evaluate(gctx, member, meta, scriptExcerpts, docChunks)
			if err != nil {
				return err
			}
			reviews[i] = *rv
			o.emit(gctx, meta.SubmissionID, sse.EventReviewAgentCompleted, map[string]any{
				"agent": member.Name,
				"score": rv.Score,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reviews, nil
}

// assembleContext queries both corpora concurrently; each search fans
// out to its vector and lexical signals internally.
func (o *Orchestrator) assembleContext(ctx context.Context, member RosterMember, meta SubmissionMeta) (scriptExcerpts, docChunks []retrieval.Result, err error) {
	query := contextQuery(member, meta)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var sErr error
		scriptExcerpts, sErr = o.retriever.SearchScript(gctx, meta.SubmissionID, retrieval.Query{
			Text: query,
			K:    member.Profile.K,
		})
		return sErr
	})
	g.Go(func() error {
		var dErr error
		docChunks, dErr = o.retriever.SearchDocs(gctx, retrieval.Query{
			Text:     query,
			K:        member.Profile.K,
			DocTypes: member.Profile.DocTypes,
			Platform: meta.Platform,
			Region:   meta.Region,
		})
		return dErr
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return scriptExcerpts, docChunks, nil
}

// contextQuery derives the retrieval query from the agent's focus and
// the submission format; every agent queries the script corpus the same
// way.
func contextQuery(member RosterMember, meta SubmissionMeta) string {
	format := meta.Format
	if format == "" {
		format = "script"
	}
	return fmt.Sprintf("%s in a %s", member.Focus, format)
}

func (o *Orchestrator) fail(ctx context.Context, submissionID uuid.UUID, cause error) error {
	dbc := dbctx.Context{Ctx: ctx}
	if uErr := o.submissions.UpdateFields(dbc, submissionID, map[string]interface{}{
		"status":     types.SubmissionStatusFailed,
		"last_error": truncateError(cause),
	}); uErr != nil {
		o.log.Error("Failed to record failed status", "submission_id", submissionID, "error", uErr)
	}
	o.emit(ctx, submissionID, sse.EventReviewFailed, map[string]any{"error": truncateError(cause)})
	o.log.Error("Review failed", "submission_id", submissionID, "error", cause)
	return cause
}

func (o *Orchestrator) emit(ctx context.Context, submissionID uuid.UUID, event sse.Event, data map[string]any) {
	if o.bus == nil {
		return
	}
	msg := sse.Message{
		Channel: sse.SubmissionChannel(submissionID),
		Event:   event,
		Data:    data,
	}
	if err := o.bus.Publish(ctx, msg); err != nil {
		o.log.Warn("Failed to publish review event", "event", event, "error", err)
	}
}

func metaFrom(sub *types.Submission) SubmissionMeta {
	return SubmissionMeta{
		SubmissionID: sub.ID,
		Writer:       sub.Writer,
		Title:        sub.Title,
		Format:       sub.Format,
		DraftVersion: sub.DraftVersion,
		Genre:        sub.Genre,
		Region:       sub.Region,
		Platform:     sub.Platform,
	}
}

func buildFinalReport(cal *Calibration, rendered *RenderedReport) (*types.FinalReport, error) {
	bucketScores, err := json.Marshal(cal.BucketScores)
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "marshal bucket scores", err)
	}
	highlights, err := json.Marshal(cal.Highlights)
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "marshal highlights", err)
	}
	risks, err := json.Marshal(cal.Risks)
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "marshal risks", err)
	}
	actionPlan, err := json.Marshal(cal.ActionPlan)
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "marshal action plan", err)
	}
	references, err := json.Marshal(cal.References)
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "marshal references", err)
	}
	return &types.FinalReport{
		SubmissionID:        cal.SubmissionID,
		OverallScore:        cal.OverallScore,
		BucketScores:        bucketScores,
		Highlights:          highlights,
		Risks:               risks,
		ActionPlan:          actionPlan,
		References:          references,
		ReportText:          rendered.ReportText,
		NotificationSubject: rendered.NotificationSubject,
		NotificationBody:    rendered.NotificationBody,
	}, nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}
