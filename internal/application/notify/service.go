package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/federicoroldos/sofull-site/internal/domain"
	s3infra "github.com/federicoroldos/sofull-site/internal/infrastructure/s3"
	"github.com/federicoroldos/sofull-site/internal/infrastructure/sns"
)

// Result is the dispatcher's answer for one auth event.
type Result struct {
	SentWelcome bool `json:"sentWelcome"`
	SentLogin   bool `json:"sentLogin"`
	Skipped     bool `json:"skipped,omitempty"`
}

// EmailStateStore is the minimal interface the dispatcher requires from the
// per-user state store.
type EmailStateStore interface {
	Get(ctx context.Context, userID string) (*domain.EmailState, error)
	ClaimEvent(ctx context.Context, userID string, t domain.EventType, ev domain.EmailEvent) error
	MarkEventSent(ctx context.Context, userID string, t domain.EventType, sentAt int64) error
	MarkEventFailed(ctx context.Context, userID string, t domain.EventType, failedAt int64) error
	Merge(ctx context.Context, userID string, mut domain.EmailStateMutation) error
}

// Mailer is the transactional email provider.
type Mailer interface {
	Send(toEmail, toName, subject, text, html string) error
}

// TemplateLoader resolves the subject/body templates for an event type.
type TemplateLoader interface {
	Load(ctx context.Context, t domain.EventType) s3infra.Template
}

type Service interface {
	Dispatch(ctx context.Context, ident domain.Identity, meta domain.ClientMetadata) (*Result, error)
}

// ServiceDeps bundles the dispatcher's collaborators.
type ServiceDeps struct {
	States    EmailStateStore
	Mailer    Mailer
	Templates TemplateLoader
	Outcomes  sns.OutcomePublisher // optional

	LoginCooldown time.Duration
	Now           func() time.Time
}

type service struct {
	deps ServiceDeps
}

func NewService(deps ServiceDeps) Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{deps: deps}
}

// Dispatch runs the claim-then-send-then-record sequence for one verified
// auth event. At most one notification per event type per authentication
// instant: the conditional claim is the serialization point, the email call
// happens outside it, and the recorded outcome makes replays cheap no-ops.
func (s *service) Dispatch(ctx context.Context, ident domain.Identity, meta domain.ClientMetadata) (*Result, error) {
	now := s.deps.Now().UTC()
	nowMs := now.UnixMilli()

	state, err := s.deps.States.Get(ctx, ident.UID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load email state: %w", err)
	}

	plan := ComputePlan(state, ident.AuthTimeMs, now, s.deps.LoginCooldown)
	if plan.Empty() {
		s.publish(ctx, ident.UID, Result{Skipped: true}, meta, nowMs)
		return &Result{Skipped: true}, nil
	}

	instant := nowMs
	if ident.AuthTimeMs != nil {
		instant = *ident.AuthTimeMs
	}

	result := &Result{}
	for _, t := range []domain.EventType{domain.EventWelcome, domain.EventLogin} {
		if (t == domain.EventWelcome && !plan.SendWelcome) || (t == domain.EventLogin && !plan.SendLogin) {
			continue
		}
		sent, err := s.claimAndSend(ctx, ident, t, instant, nowMs)
		if err != nil {
			// Abort before touching the other event type; the failed record
			// keeps this one reclaimable.
			return nil, err
		}
		if sent {
			if t == domain.EventWelcome {
				result.SentWelcome = true
			} else {
				result.SentLogin = true
			}
		}
	}

	if result.SentWelcome || result.SentLogin {
		mut := domain.EmailStateMutation{LastAuthEventTime: &instant}
		if result.SentWelcome {
			welcome := true
			mut.WelcomeSent = &welcome
		}
		if result.SentLogin {
			mut.LastLoginEmailAt = &nowMs
		}
		if err := s.deps.States.Merge(ctx, ident.UID, mut); err != nil {
			// The notification went out; losing the merge only risks one
			// redundant suppression check later. Log and answer success.
			slog.Error("merge email state failed", "uid", ident.UID, "err", err)
		}
	} else {
		result.Skipped = true
	}

	s.publish(ctx, ident.UID, *result, meta, nowMs)
	return result, nil
}

// claimAndSend returns (true, nil) when this request won the claim and the
// email went out, (false, nil) when another request already holds the claim.
func (s *service) claimAndSend(ctx context.Context, ident domain.Identity, t domain.EventType, instant, nowMs int64) (bool, error) {
	ev := domain.EmailEvent{
		EventID:    EventID(t, instant),
		Status:     domain.EventPending,
		CreatedAt:  nowMs,
		AuthTimeMs: ident.AuthTimeMs,
	}
	if err := s.deps.States.ClaimEvent(ctx, ident.UID, t, ev); err != nil {
		if errors.Is(err, domain.ErrAlreadyClaimed) {
			slog.Info("notification already claimed", "uid", ident.UID, "type", t, "event_id", ev.EventID)
			return false, nil
		}
		return false, fmt.Errorf("claim %s: %w", t, err)
	}

	tpl := s.deps.Templates.Load(ctx, t)
	name := ident.DisplayName
	if name == "" {
		name = ident.Email
	}
	text := strings.ReplaceAll(tpl.Text, "{{name}}", name)
	html := strings.ReplaceAll(tpl.HTML, "{{name}}", name)

	if err := s.deps.Mailer.Send(ident.Email, ident.DisplayName, tpl.Subject, text, html); err != nil {
		slog.Error("email send failed", "uid", ident.UID, "type", t, "err", err)
		if recErr := s.deps.States.MarkEventFailed(ctx, ident.UID, t, s.deps.Now().UnixMilli()); recErr != nil {
			slog.Error("record failed event", "uid", ident.UID, "type", t, "err", recErr)
		}
		return false, fmt.Errorf("send %s email: %w", t, domain.ErrSendFailed)
	}

	if err := s.deps.States.MarkEventSent(ctx, ident.UID, t, s.deps.Now().UnixMilli()); err != nil {
		slog.Error("record sent event", "uid", ident.UID, "type", t, "err", err)
	}
	return true, nil
}

func (s *service) publish(ctx context.Context, uid string, result Result, meta domain.ClientMetadata, nowMs int64) {
	if s.deps.Outcomes == nil {
		return
	}
	err := s.deps.Outcomes.PublishOutcome(ctx, sns.Outcome{
		UserID:      uid,
		SentWelcome: result.SentWelcome,
		SentLogin:   result.SentLogin,
		Skipped:     result.Skipped,
		Country:     meta.Country,
		OccurredAt:  nowMs,
	})
	if err != nil {
		slog.Warn("outcome publish failed", "uid", uid, "err", err)
	}
}
