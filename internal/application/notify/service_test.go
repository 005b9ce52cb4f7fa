package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/federicoroldos/sofull-site/internal/domain"
	s3infra "github.com/federicoroldos/sofull-site/internal/infrastructure/s3"
	"github.com/federicoroldos/sofull-site/internal/infrastructure/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStateStore struct{ mock.Mock }

func (m *mockStateStore) Get(ctx context.Context, userID string) (*domain.EmailState, error) {
	args := m.Called(ctx, userID)
	if s, _ := args.Get(0).(*domain.EmailState); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStateStore) ClaimEvent(ctx context.Context, userID string, t domain.EventType, ev domain.EmailEvent) error {
	return m.Called(ctx, userID, t, ev).Error(0)
}
func (m *mockStateStore) MarkEventSent(ctx context.Context, userID string, t domain.EventType, sentAt int64) error {
	return m.Called(ctx, userID, t, sentAt).Error(0)
}
func (m *mockStateStore) MarkEventFailed(ctx context.Context, userID string, t domain.EventType, failedAt int64) error {
	return m.Called(ctx, userID, t, failedAt).Error(0)
}
func (m *mockStateStore) Merge(ctx context.Context, userID string, mut domain.EmailStateMutation) error {
	return m.Called(ctx, userID, mut).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) Send(toEmail, toName, subject, text, html string) error {
	return m.Called(toEmail, toName, subject, text, html).Error(0)
}

type stubTemplates struct{}

func (stubTemplates) Load(_ context.Context, t domain.EventType) s3infra.Template {
	return s3infra.Template{Subject: "s-" + string(t), Text: "hi {{name}}", HTML: "<p>hi {{name}}</p>"}
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishOutcome(ctx context.Context, o sns.Outcome) error {
	return m.Called(ctx, o).Error(0)
}

// --- builder ---

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(ss *mockStateStore, ml *mockMailer, pub sns.OutcomePublisher) Service {
	return NewService(ServiceDeps{
		States:        ss,
		Mailer:        ml,
		Templates:     stubTemplates{},
		Outcomes:      pub,
		LoginCooldown: 12 * time.Hour,
		Now:           func() time.Time { return now },
	})
}

func ident(authTimeMs *int64) domain.Identity {
	return domain.Identity{UID: "u1", Email: "a@b.com", DisplayName: "Alice", AuthTimeMs: authTimeMs}
}

// --- Dispatch ---

func TestDispatch_NewUser_SendsWelcome(t *testing.T) {
	ss := &mockStateStore{}
	ml := &mockMailer{}

	ss.On("Get", mock.Anything, "u1").Return(nil, domain.ErrNotFound)
	ss.On("ClaimEvent", mock.Anything, "u1", domain.EventWelcome, mock.MatchedBy(func(ev domain.EmailEvent) bool {
		return ev.Status == domain.EventPending && ev.EventID == EventID(domain.EventWelcome, 0)
	})).Return(nil)
	ml.On("Send", "a@b.com", "Alice", "s-welcome", "hi Alice", "<p>hi Alice</p>").Return(nil)
	ss.On("MarkEventSent", mock.Anything, "u1", domain.EventWelcome, now.UnixMilli()).Return(nil)
	ss.On("Merge", mock.Anything, "u1", mock.MatchedBy(func(mut domain.EmailStateMutation) bool {
		return mut.WelcomeSent != nil && *mut.WelcomeSent &&
			mut.LastAuthEventTime != nil && *mut.LastAuthEventTime == 0 &&
			mut.LastLoginEmailAt == nil
	})).Return(nil)

	result, err := newService(ss, ml, nil).Dispatch(context.Background(), ident(ms(0)), domain.ClientMetadata{})

	require.NoError(t, err)
	assert.True(t, result.SentWelcome)
	assert.False(t, result.SentLogin)
	assert.False(t, result.Skipped)
	ss.AssertExpectations(t)
	ml.AssertExpectations(t)
}

func TestDispatch_SecondSignIn_SendsLogin(t *testing.T) {
	ss := &mockStateStore{}
	ml := &mockMailer{}

	state := &domain.EmailState{UserID: "u1", WelcomeSent: true, LastAuthEventTime: ms(0)}
	ss.On("Get", mock.Anything, "u1").Return(state, nil)
	ss.On("ClaimEvent", mock.Anything, "u1", domain.EventLogin, mock.Anything).Return(nil)
	ml.On("Send", "a@b.com", "Alice", "s-login", mock.Anything, mock.Anything).Return(nil)
	ss.On("MarkEventSent", mock.Anything, "u1", domain.EventLogin, now.UnixMilli()).Return(nil)
	ss.On("Merge", mock.Anything, "u1", mock.MatchedBy(func(mut domain.EmailStateMutation) bool {
		return mut.WelcomeSent == nil &&
			mut.LastAuthEventTime != nil && *mut.LastAuthEventTime == 3_600_000 &&
			mut.LastLoginEmailAt != nil && *mut.LastLoginEmailAt == now.UnixMilli()
	})).Return(nil)

	result, err := newService(ss, ml, nil).Dispatch(context.Background(), ident(ms(3_600_000)), domain.ClientMetadata{})

	require.NoError(t, err)
	assert.False(t, result.SentWelcome)
	assert.True(t, result.SentLogin)
	ss.AssertExpectations(t)
}

func TestDispatch_ReplayedAuthTime_Skips(t *testing.T) {
	ss := &mockStateStore{}

	state := &domain.EmailState{UserID: "u1", WelcomeSent: true, LastAuthEventTime: ms(3_600_000)}
	ss.On("Get", mock.Anything, "u1").Return(state, nil)

	result, err := newService(ss, &mockMailer{}, nil).Dispatch(context.Background(), ident(ms(3_600_000)), domain.ClientMetadata{})

	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.False(t, result.SentWelcome)
	assert.False(t, result.SentLogin)
	// Short-circuit: no claim, no send, no merge.
	ss.AssertNotCalled(t, "ClaimEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ss.AssertNotCalled(t, "Merge", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_ConcurrentDuplicate_ClaimLost_ReportsSkipped(t *testing.T) {
	ss := &mockStateStore{}
	ml := &mockMailer{}

	ss.On("Get", mock.Anything, "u1").Return(nil, domain.ErrNotFound)
	ss.On("ClaimEvent", mock.Anything, "u1", domain.EventWelcome, mock.Anything).Return(domain.ErrAlreadyClaimed)

	result, err := newService(ss, ml, nil).Dispatch(context.Background(), ident(ms(0)), domain.ClientMetadata{})

	require.NoError(t, err)
	assert.True(t, result.Skipped)
	ml.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ss.AssertNotCalled(t, "Merge", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_SendFailure_RecordsFailedAndPropagates(t *testing.T) {
	ss := &mockStateStore{}
	ml := &mockMailer{}

	ss.On("Get", mock.Anything, "u1").Return(nil, domain.ErrNotFound)
	ss.On("ClaimEvent", mock.Anything, "u1", domain.EventWelcome, mock.Anything).Return(nil)
	ml.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	ss.On("MarkEventFailed", mock.Anything, "u1", domain.EventWelcome, now.UnixMilli()).Return(nil)

	result, err := newService(ss, ml, nil).Dispatch(context.Background(), ident(ms(0)), domain.ClientMetadata{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSendFailed))
	assert.Nil(t, result)
	ss.AssertExpectations(t)
	// No partial top-level merge after a failed send.
	ss.AssertNotCalled(t, "Merge", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_StateStoreFault_Propagates(t *testing.T) {
	ss := &mockStateStore{}
	ss.On("Get", mock.Anything, "u1").Return(nil, errors.New("throttled"))

	_, err := newService(ss, &mockMailer{}, nil).Dispatch(context.Background(), ident(ms(0)), domain.ClientMetadata{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrSendFailed))
}

func TestDispatch_PublishesOutcome_BestEffort(t *testing.T) {
	ss := &mockStateStore{}
	pub := &mockPublisher{}

	state := &domain.EmailState{UserID: "u1", WelcomeSent: true, LastAuthEventTime: ms(3_600_000)}
	ss.On("Get", mock.Anything, "u1").Return(state, nil)
	pub.On("PublishOutcome", mock.Anything, mock.MatchedBy(func(o sns.Outcome) bool {
		return o.UserID == "u1" && o.Skipped && o.Country == "UY"
	})).Return(errors.New("sns down")) // publish failure must not surface

	result, err := newService(ss, &mockMailer{}, pub).Dispatch(
		context.Background(), ident(ms(3_600_000)), domain.ClientMetadata{Country: "UY"})

	require.NoError(t, err)
	assert.True(t, result.Skipped)
	pub.AssertExpectations(t)
}

// End-to-end decision sequence for one user: welcome, then login, then replay.
func TestDispatch_SignInSequence(t *testing.T) {
	ml := &mockMailer{}
	ml.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// t=0: brand-new user.
	ss := &mockStateStore{}
	ss.On("Get", mock.Anything, "u1").Return(nil, domain.ErrNotFound)
	ss.On("ClaimEvent", mock.Anything, "u1", domain.EventWelcome, mock.Anything).Return(nil)
	ss.On("MarkEventSent", mock.Anything, "u1", domain.EventWelcome, mock.Anything).Return(nil)
	ss.On("Merge", mock.Anything, "u1", mock.Anything).Return(nil)
	r1, err := newService(ss, ml, nil).Dispatch(context.Background(), ident(ms(0)), domain.ClientMetadata{})
	require.NoError(t, err)
	assert.True(t, r1.SentWelcome)
	assert.False(t, r1.SentLogin)

	// t=3600s: same user signs in again.
	ss = &mockStateStore{}
	ss.On("Get", mock.Anything, "u1").Return(&domain.EmailState{
		UserID: "u1", WelcomeSent: true, LastAuthEventTime: ms(0),
	}, nil)
	ss.On("ClaimEvent", mock.Anything, "u1", domain.EventLogin, mock.Anything).Return(nil)
	ss.On("MarkEventSent", mock.Anything, "u1", domain.EventLogin, mock.Anything).Return(nil)
	ss.On("Merge", mock.Anything, "u1", mock.Anything).Return(nil)
	r2, err := newService(ss, ml, nil).Dispatch(context.Background(), ident(ms(3_600_000)), domain.ClientMetadata{})
	require.NoError(t, err)
	assert.False(t, r2.SentWelcome)
	assert.True(t, r2.SentLogin)

	// Replay of auth_time=3600s.
	ss = &mockStateStore{}
	ss.On("Get", mock.Anything, "u1").Return(&domain.EmailState{
		UserID: "u1", WelcomeSent: true, LastAuthEventTime: ms(3_600_000),
	}, nil)
	r3, err := newService(ss, ml, nil).Dispatch(context.Background(), ident(ms(3_600_000)), domain.ClientMetadata{})
	require.NoError(t, err)
	assert.True(t, r3.Skipped)
}
