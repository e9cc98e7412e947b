package sessions_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/adapters/storage/memory"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/analysis"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/sessions"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

func newService(t *testing.T) (*sessions.Service, *memory.SessionStore) {
	t.Helper()
	store := memory.NewSessionStore()
	var mu sync.Mutex
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := sessions.NewService(store).WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	})
	return svc, store
}

func create(t *testing.T, svc *sessions.Service, user domain.UserID) *domain.Session {
	t.Helper()
	out, err := svc.Create(context.Background(), sessions.CreateInput{UserID: user, AssessmentType: domain.AssessmentCheckIn})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return out.Session
}

func TestCreateSupersedesPendingSession(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	first := create(t, svc, "u-1")
	out, err := svc.Create(ctx, sessions.CreateInput{UserID: "u-1"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	if len(out.Superseded) != 1 || out.Superseded[0] != first.ID {
		t.Fatalf("expected first session superseded, got %v", out.Superseded)
	}
	prev, err := svc.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if prev.Status != domain.StatusCancelled || prev.CancelReason != domain.CancelSuperseded {
		t.Fatalf("prior session should be cancelled as superseded, got %s/%s", prev.Status, prev.CancelReason)
	}
	if n := store.PendingCount("u-1"); n != 1 {
		t.Fatalf("expected exactly one pending session, got %d", n)
	}
	if out.Session.AssessmentType != domain.AssessmentCheckIn {
		t.Fatalf("default assessment type should be checkin, got %q", out.Session.AssessmentType)
	}
}

func TestCreateDoesNotTouchOtherUsersOrActiveSessions(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	other := create(t, svc, "u-2")
	active := create(t, svc, "u-1")
	if _, err := svc.Activate(ctx, active.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	create(t, svc, "u-1")

	got, _ := svc.Get(ctx, active.ID)
	if got.Status != domain.StatusActive {
		t.Fatalf("active session must not be superseded, got %s", got.Status)
	}
	if store.PendingCount("u-2") != 1 {
		t.Fatalf("other user's pending session was touched: %s", other.ID)
	}
}

func TestConcurrentCreateKeepsOnePending(t *testing.T) {
	svc, store := newService(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Create(context.Background(), sessions.CreateInput{UserID: "u-1"})
		}()
	}
	wg.Wait()

	if n := store.PendingCount("u-1"); n != 1 {
		t.Fatalf("expected one pending session, got %d", n)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newService(t)
	for _, in := range []sessions.CreateInput{
		{UserID: ""},
		{UserID: "u-1", AssessmentType: "weekly"},
	} {
		if _, err := svc.Create(context.Background(), in); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("%+v: expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	s := create(t, svc, "u-1")

	if _, err := svc.AttachCapture(ctx, s.ID, domain.CaptureFragment{}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("capture on pending: expected ErrInvalidState, got %v", err)
	}
	if _, err := svc.Activate(ctx, s.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	got, err := svc.AttachCapture(ctx, s.ID, domain.CaptureFragment{Turns: []domain.Turn{
		{Role: "assistant", Text: "How are you?"},
		{Role: "user", Text: "Good, sleeping better"},
	}})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if got.TextData == nil || len(got.TextData.Turns) != 2 || got.TextData.Turns[0].Role != domain.RoleAgent {
		t.Fatalf("capture not merged: %+v", got.TextData)
	}

	res, _ := analysis.Validate(domain.RawAnalysis{"text_score": float64(70)})
	done, err := svc.Complete(ctx, s.ID, res, res.TextScore)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.StatusCompleted || *done.FinalScore != 70 {
		t.Fatalf("unexpected completed session %+v", done)
	}

	if _, err := svc.Complete(ctx, s.ID, res, res.TextScore); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("double complete: expected ErrInvalidState, got %v", err)
	}
	if _, err := svc.AttachCapture(ctx, s.ID, domain.CaptureFragment{Turns: []domain.Turn{{Role: "user", Text: "late"}}}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("capture after completion: expected ErrInvalidState, got %v", err)
	}
	if _, err := svc.Cancel(ctx, s.ID, "oops"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("cancel completed: expected ErrInvalidState, got %v", err)
	}
}

func TestConcurrentCompleteExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	s := create(t, svc, "u-1")
	if _, err := svc.Activate(ctx, s.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	res, _ := analysis.Validate(domain.RawAnalysis{"text_score": float64(55)})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		refused int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Complete(ctx, s.ID, res, res.TextScore)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, domain.ErrInvalidState) {
				refused++
			}
		}()
	}
	wg.Wait()

	if ok != 1 || refused != 9 {
		t.Fatalf("expected 1 success and 9 refusals, got %d/%d", ok, refused)
	}
}

func TestCancelIdempotentAndNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	s := create(t, svc, "u-1")

	if _, err := svc.Cancel(ctx, s.ID, domain.CancelAbandoned); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	again, err := svc.Cancel(ctx, s.ID, domain.CancelAbandoned)
	if err != nil || again.Status != domain.StatusCancelled {
		t.Fatalf("second cancel should be a no-op, got %v / %v", again, err)
	}
	if _, err := svc.Activate(ctx, s.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("activate cancelled: expected ErrInvalidState, got %v", err)
	}
	if _, err := svc.Activate(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
