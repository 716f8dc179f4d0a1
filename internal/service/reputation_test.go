package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuntius-io/nuntius/config"
	"github.com/nuntius-io/nuntius/internal/domain"
	"github.com/nuntius-io/nuntius/pkg/logger"
)

func defaultBounceParams() config.BounceConfig {
	return config.BounceConfig{Consecutive: 1, Duration: 7, Limit: 3}
}

func newReputation(t *testing.T, sendRepo *memorySendRecordRepo, subRepo *memorySubscriberRepo) *ReputationService {
	return NewReputationService(sendRepo, subRepo, defaultBounceParams(), logger.NewTestLogger(t))
}

func addRecord(repo *memorySendRecordRepo, email string, result domain.SendResult, age time.Duration) {
	repo.add(&domain.SendRecord{
		Email:    email,
		Result:   result,
		Datetime: time.Now().Add(-age),
	})
}

func subscribedAlice(subRepo *memorySubscriberRepo) {
	subRepo.add(&domain.Subscriber{
		ID: 1, Email: "alice@example.com", Status: domain.SubscriberStatusSubscribed,
	})
}

func TestBounceFirstContactFailsClosed(t *testing.T) {
	sendRepo := newMemorySendRecordRepo()
	subRepo := newMemorySubscriberRepo()
	subscribedAlice(subRepo)

	bounced, err := newReputation(t, sendRepo, subRepo).
		HandleBounce(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, bounced)

	s, _ := subRepo.GetByEmail(context.Background(), "alice@example.com")
	assert.Equal(t, domain.SubscriberStatusBounced, s.Status)
}

func TestBounceSparedByRecentSuccessWithinLimit(t *testing.T) {
	sendRepo := newMemorySendRecordRepo()
	subRepo := newMemorySubscriberRepo()
	subscribedAlice(subRepo)
	addRecord(sendRepo, "alice@example.com", domain.SendResultOk, 24*time.Hour)
	addRecord(sendRepo, "alice@example.com", domain.SendResultBounced, time.Hour)

	bounced, err := newReputation(t, sendRepo, subRepo).
		HandleBounce(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.False(t, bounced)

	s, _ := subRepo.GetByEmail(context.Background(), "alice@example.com")
	assert.Equal(t, domain.SubscriberStatusSubscribed, s.Status)
}

func TestBounceOverLimitDespiteRecentSuccess(t *testing.T) {
	sendRepo := newMemorySendRecordRepo()
	subRepo := newMemorySubscriberRepo()
	subscribedAlice(subRepo)
	addRecord(sendRepo, "alice@example.com", domain.SendResultOk, 6*24*time.Hour)
	for i := 0; i < 4; i++ {
		addRecord(sendRepo, "alice@example.com", domain.SendResultBounced,
			time.Duration(i+1)*time.Hour)
	}

	bounced, err := newReputation(t, sendRepo, subRepo).
		HandleBounce(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, bounced)
}

func TestBounceSparedByConsecutiveWindowSuccess(t *testing.T) {
	sendRepo := newMemorySendRecordRepo()
	subRepo := newMemorySubscriberRepo()
	subscribedAlice(subRepo)
	// The only success is outside the 7 day horizon, but it sits inside the
	// most recent consecutive+1 records.
	addRecord(sendRepo, "alice@example.com", domain.SendResultOk, 30*24*time.Hour)
	addRecord(sendRepo, "alice@example.com", domain.SendResultBounced, time.Hour)

	bounced, err := newReputation(t, sendRepo, subRepo).
		HandleBounce(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.False(t, bounced)
}

func TestBounceToleranceExhausted(t *testing.T) {
	sendRepo := newMemorySendRecordRepo()
	subRepo := newMemorySubscriberRepo()
	subscribedAlice(subRepo)
	addRecord(sendRepo, "alice@example.com", domain.SendResultOk, 30*24*time.Hour)
	addRecord(sendRepo, "alice@example.com", domain.SendResultBounced, 2*time.Hour)
	addRecord(sendRepo, "alice@example.com", domain.SendResultBounced, time.Hour)

	bounced, err := newReputation(t, sendRepo, subRepo).
		HandleBounce(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, bounced)
}

func TestComplaintAndUnsubscribeApplyDirectly(t *testing.T) {
	sendRepo := newMemorySendRecordRepo()
	subRepo := newMemorySubscriberRepo()
	subscribedAlice(subRepo)
	subRepo.add(&domain.Subscriber{
		ID: 2, Email: "bob@example.com", Status: domain.SubscriberStatusSubscribed,
	})
	svc := newReputation(t, sendRepo, subRepo)

	require.NoError(t, svc.HandleComplaint(context.Background(), "alice@example.com"))
	require.NoError(t, svc.HandleUnsubscribe(context.Background(), "bob@example.com"))

	alice, _ := subRepo.GetByEmail(context.Background(), "alice@example.com")
	bob, _ := subRepo.GetByEmail(context.Background(), "bob@example.com")
	assert.Equal(t, domain.SubscriberStatusComplained, alice.Status)
	assert.Equal(t, domain.SubscriberStatusUnsubscribed, bob.Status)
}
