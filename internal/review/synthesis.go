package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/platform/openai"
)

// RenderedReport is the writer-facing prose layer over a calibration.
type RenderedReport struct {
	ReportText          string `json:"report_text"`
	NotificationSubject string `json:"notification_subject"`
	NotificationBody    string `json:"notification_body"`
}

// Synthesizer turns a calibrated report into prose the writer reads.
type Synthesizer interface {
	Render(ctx context.Context, meta SubmissionMeta, cal *Calibration) (*RenderedReport, error)
}

const synthesisSystemPrompt = `You write script coverage reports for working writers.
Turn the calibrated panel output into clear, direct prose: lead with the verdict,
cover strengths before risks, end with the action plan. No filler, no hedging.
Also produce a short notification subject and body announcing the report.`

var renderedReportSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"report_text":          map[string]any{"type": "string"},
		"notification_subject": map[string]any{"type": "string"},
		"notification_body":    map[string]any{"type": "string"},
	},
	"required":             []string{"report_text", "notification_subject", "notification_body"},
	"additionalProperties": false,
}

type llmSynthesizer struct {
	client openai.Client
	log    *logger.Logger
}

func NewSynthesizer(client openai.Client, baseLog *logger.Logger) Synthesizer {
	return &llmSynthesizer{client: client, log: baseLog.With("service", "Synthesizer")}
}

func (s *llmSynthesizer) Render(ctx context.Context, meta SubmissionMeta, cal *Calibration) (*RenderedReport, error) {
	if cal == nil {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "nil calibration")
	}

	calBlob, err := json.Marshal(cal)
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "marshal calibration", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Submission: %q by %s (%s", meta.Title, meta.Writer, meta.Format)
	if meta.Genre != "" {
		fmt.Fprintf(&b, ", %s", meta.Genre)
	}
	b.WriteString(").\n\nCalibrated panel output:\n")
	b.Write(calBlob)

	raw, err := s.client.GenerateJSON(ctx, synthesisSystemPrompt, b.String(), "rendered_report", renderedReportSchema)
	if err != nil {
		return nil, err
	}
	blob, err := json.Marshal(raw)
	if err != nil {
		return nil, apperr.New(apperr.KindUpstream, "re-encode synthesis output", err)
	}
	var out RenderedReport
	if err := json.Unmarshal(blob, &out); err != nil {
		return nil, apperr.New(apperr.KindUpstream, "decode synthesis output", err)
	}
	if strings.TrimSpace(out.ReportText) == "" {
		return nil, apperr.Newf(apperr.KindUpstream, "synthesis returned empty report text")
	}
	return &out, nil
}
