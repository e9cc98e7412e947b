// Package finalize closes an active check-in: it flushes capture, runs the
// analysis, completes the session and hands it to downstream enrichment.
package finalize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/analysis"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/capture"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/sessions"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/observability"
)

const (
	DefaultCaptureStopGrace = 2 * time.Second
	DefaultNotifyTimeout    = 15 * time.Second
)

type Options struct {
	CaptureStopGrace time.Duration
	NotifyTimeout    time.Duration
}

type Finalizer struct {
	sessions *sessions.Service
	analysis *analysis.Service
	notifier domain.CompletionNotifier

	captureGrace  time.Duration
	notifyTimeout time.Duration

	detached sync.WaitGroup
}

// NewFinalizer wires the finalizer. notifier may be nil.
func NewFinalizer(
	sessionSvc *sessions.Service,
	analysisSvc *analysis.Service,
	notifier domain.CompletionNotifier,
	opts Options,
) *Finalizer {
	if opts.CaptureStopGrace <= 0 {
		opts.CaptureStopGrace = DefaultCaptureStopGrace
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	return &Finalizer{
		sessions:      sessionSvc,
		analysis:      analysisSvc,
		notifier:      notifier,
		captureGrace:  opts.CaptureStopGrace,
		notifyTimeout: opts.NotifyTimeout,
	}
}

type Result struct {
	Session *domain.Session
	Report  analysis.Report
}

// Finalize completes an active session. It fails only when the session is
// not active or the completion write fails; analysis problems degrade to a
// neutral result.
func (f *Finalizer) Finalize(ctx context.Context, id domain.SessionID, handle domain.CaptureHandle) (*Result, error) {
	log := observability.LoggerFromContext(ctx).With("session_id", id)

	sess, err := f.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != domain.StatusActive {
		return nil, &domain.TransitionError{SessionID: id, Op: "finalize", Status: sess.Status}
	}
	log = log.With("user_id", sess.UserID)
	log.Info("finalizing session")

	if flushed := f.stopCapture(ctx, id, handle); flushed != nil {
		sess = flushed
	}

	var turns []domain.Turn
	if sess.TextData != nil {
		turns = sess.TextData.Turns
	}
	tr := capture.FinalizeTranscript(turns)

	res, rep := f.analysis.Analyze(ctx, tr, f.analysisContext(ctx, sess), contextSummary(sess))

	done, err := f.sessions.Complete(ctx, id, res, res.TextScore)
	if err != nil {
		log.Error("failed to complete session", "error", err)
		return nil, err
	}

	log.Info("session finalized",
		"final_score", res.TextScore,
		"fallback", rep.Fallback,
		"defaults_applied", len(rep.DefaultsApplied),
	)

	f.notify(ctx, done)

	return &Result{Session: done, Report: rep}, nil
}

// Wait blocks until detached notifications have finished.
func (f *Finalizer) Wait() {
	f.detached.Wait()
}

// stopCapture signals the handle and waits at most the grace period for a
// final visual summary. It returns the updated session when one was attached.
func (f *Finalizer) stopCapture(ctx context.Context, id domain.SessionID, handle domain.CaptureHandle) *domain.Session {
	if handle == nil {
		return nil
	}
	log := observability.LoggerFromContext(ctx).With("session_id", id)

	summaries := make(chan *domain.VisualData, 1)
	go func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.captureGrace)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Warn("capture stop panicked", "panic", fmt.Sprint(r))
				summaries <- nil
			}
		}()

		v, err := handle.Stop(stopCtx)
		if err != nil {
			log.Warn("capture stop failed", "error", err)
		}
		summaries <- v
	}()

	timer := time.NewTimer(f.captureGrace)
	defer timer.Stop()

	select {
	case v := <-summaries:
		if v == nil {
			return nil
		}
		updated, err := f.sessions.AttachCapture(ctx, id, domain.CaptureFragment{Visual: v})
		if err != nil {
			log.Warn("could not attach final visual summary", "error", err)
			return nil
		}
		return updated
	case <-timer.C:
		log.Warn("capture stop exceeded grace period", "grace_ms", f.captureGrace.Milliseconds())
		return nil
	}
}

func (f *Finalizer) analysisContext(ctx context.Context, sess *domain.Session) domain.AnalysisContext {
	actx := domain.AnalysisContext{
		CheckInID:        sess.ID,
		AssessmentType:   sess.AssessmentType,
		StudentFirstName: sess.FirstName,
	}

	prev, err := f.sessions.LatestCompleted(ctx, sess.UserID)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("previous session lookup failed",
			"session_id", sess.ID, "error", err)
		return actx
	}
	if prev != nil && prev.Analysis != nil {
		actx.PreviousThemes = append([]string(nil), prev.Analysis.Themes...)
		if prev.FinalScore != nil {
			score := *prev.FinalScore
			actx.PreviousScore = &score
		}
	}
	return actx
}

func contextSummary(sess *domain.Session) string {
	who := "the user"
	if sess.FirstName != "" {
		who = sess.FirstName
	}
	return fmt.Sprintf("%s assessment with %s", sess.AssessmentType, who)
}

// notify runs the completion hook detached from the request. Its failures
// are logged only; the session is already durably completed.
func (f *Finalizer) notify(ctx context.Context, done *domain.Session) {
	if f.notifier == nil {
		return
	}
	log := observability.LoggerFromContext(ctx).With("session_id", done.ID)
	snapshot := done.Clone()
	base := context.WithoutCancel(ctx)

	f.detached.Add(1)
	go func() {
		defer f.detached.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("completion notifier panicked", "panic", fmt.Sprint(r))
			}
		}()

		nctx, cancel := context.WithTimeout(base, f.notifyTimeout)
		defer cancel()

		if err := f.notifier.SessionCompleted(nctx, snapshot); err != nil {
			log.Warn("completion notification failed", "error", err)
			return
		}
		log.Debug("completion notification delivered")
	}()
}
