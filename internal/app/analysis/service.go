package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/capture"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/observability"
)

const DefaultTimeout = 30 * time.Second

var errNotObject = errors.New("model output is not a JSON object")

// Service calls the external analyzer under a bounded timeout and always
// returns a validated result.
type Service struct {
	analyzer domain.Analyzer
	timeout  time.Duration
}

func NewService(analyzer domain.Analyzer, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{analyzer: analyzer, timeout: timeout}
}

// Analyze never returns an error: a sparse transcript short-circuits, and any
// analyzer failure degrades to the unavailable result.
func (s *Service) Analyze(
	ctx context.Context,
	tr capture.Transcript,
	actx domain.AnalysisContext,
	contextSummary string,
) (domain.AnalysisResult, Report) {
	log := observability.LoggerFromContext(ctx).With("session_id", actx.CheckInID)

	userText := strings.Join(tr.Transcripts, "\n")
	if TooShort(userText) {
		log.Info("transcript too short, skipping analysis", "chars", len([]rune(userText)))
		return Insufficient(contextSummary), Report{Fallback: FallbackInsufficient}
	}

	raw, err := s.call(ctx, tr.FullConversation, actx)
	if err != nil {
		log.Warn("analysis unavailable", "error", err)
		return Unavailable(), Report{Fallback: FallbackUnavailable, Cause: err}
	}

	res, rep := Validate(raw)
	if len(rep.DefaultsApplied) > 0 {
		log.Warn("analysis defaults applied", "fields", rep.DefaultsApplied)
	}
	return res, rep
}

func (s *Service) call(ctx context.Context, transcript string, actx domain.AnalysisContext) (domain.RawAnalysis, error) {
	if s.analyzer == nil {
		return nil, errors.New("no analyzer configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		raw domain.RawAnalysis
		err error
	}
	// Buffered so an adapter that ignores ctx can still finish and exit.
	done := make(chan result, 1)

	go func() {
		// A misbehaving adapter must not take the finalize path down with it.
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("analyzer panic: %v", r)}
			}
		}()
		raw, err := s.analyzer.AnalyzeTranscript(ctx, transcript, actx)
		done <- result{raw: raw, err: err}
	}()

	select {
	case r := <-done:
		raw, err := r.raw, r.err
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if raw == nil {
			return nil, errNotObject
		}
		return raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
