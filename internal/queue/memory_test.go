package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnqueueAndClaim_DeliversOnce(t *testing.T) {
	q := NewMemoryQueue(DefaultMaxAttempts)
	ctx := context.Background()

	enqueued, err := q.Enqueue(ctx, KindClassify, `{"message_id":7}`)
	require.NoError(t, err)
	require.NotEmpty(t, enqueued.ID)
	require.Equal(t, StatusPending, enqueued.Status)
	require.Equal(t, 0, enqueued.Attempts)

	job, err := q.Claim(ctx, KindClassify)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, enqueued.ID, job.ID)
	require.Equal(t, `{"message_id":7}`, job.Payload)
	require.Equal(t, StatusRunning, job.Status)
	require.Equal(t, 1, job.Attempts)

	// A running job must not be visible to other workers.
	again, err := q.Claim(ctx, KindClassify)
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestClaim_IsKindScoped(t *testing.T) {
	q := NewMemoryQueue(DefaultMaxAttempts)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, KindClassify, `{}`)
	require.NoError(t, err)

	job, err := q.Claim(ctx, KindGenerateDraft)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestClaim_HonorsRunAtOrdering(t *testing.T) {
	q := NewMemoryQueue(DefaultMaxAttempts)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := q.Enqueue(ctx, KindClassify, `{}`)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	// Park all three, then release them with explicit due times so the
	// claim order is fully determined by run_at.
	for range ids {
		job, err := q.Claim(ctx, KindClassify)
		require.NoError(t, err)
		require.NotNil(t, job)
	}
	now := time.Now()
	require.NoError(t, q.Retry(ctx, ids[2], now.Add(-3*time.Second), "x"))
	require.NoError(t, q.Retry(ctx, ids[0], now.Add(-2*time.Second), "x"))
	require.NoError(t, q.Retry(ctx, ids[1], now.Add(-time.Second), "x"))

	var got []string
	for i := 0; i < 3; i++ {
		job, err := q.Claim(ctx, KindClassify)
		require.NoError(t, err)
		require.NotNil(t, job)
		got = append(got, job.ID)
	}
	require.Equal(t, []string{ids[2], ids[0], ids[1]}, got)
}

func TestRetry_FutureRunAtDefersDelivery(t *testing.T) {
	q := NewMemoryQueue(DefaultMaxAttempts)
	ctx := context.Background()

	enqueued, err := q.Enqueue(ctx, KindClassify, `{}`)
	require.NoError(t, err)

	job, err := q.Claim(ctx, KindClassify)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Retry(ctx, enqueued.ID, time.Now().Add(time.Hour), "provider timeout"))

	job, err = q.Claim(ctx, KindClassify)
	require.NoError(t, err)
	require.Nil(t, job)

	snapshot := q.Job(enqueued.ID)
	require.NotNil(t, snapshot)
	require.Equal(t, StatusPending, snapshot.Status)
	require.Equal(t, "provider timeout", snapshot.LastError)
}

func TestRetry_RedeliveryIncrementsAttempts(t *testing.T) {
	q := NewMemoryQueue(DefaultMaxAttempts)
	ctx := context.Background()

	enqueued, err := q.Enqueue(ctx, KindClassify, `{}`)
	require.NoError(t, err)

	job, err := q.Claim(ctx, KindClassify)
	require.NoError(t, err)
	require.Equal(t, 1, job.Attempts)

	require.NoError(t, q.Retry(ctx, enqueued.ID, time.Now().Add(-time.Second), "x"))

	job, err = q.Claim(ctx, KindClassify)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, 2, job.Attempts)
}

func TestCompleteAndFail_AreTerminal(t *testing.T) {
	q := NewMemoryQueue(DefaultMaxAttempts)
	ctx := context.Background()

	done, err := q.Enqueue(ctx, KindClassify, `{}`)
	require.NoError(t, err)
	dead, err := q.Enqueue(ctx, KindClassify, `{}`)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		job, err := q.Claim(ctx, KindClassify)
		require.NoError(t, err)
		require.NotNil(t, job)
	}
	require.NoError(t, q.Complete(ctx, done.ID))
	require.NoError(t, q.Fail(ctx, dead.ID, "malformed payload"))

	job, err := q.Claim(ctx, KindClassify)
	require.NoError(t, err)
	require.Nil(t, job)

	require.Equal(t, 1, q.CountByStatus(KindClassify, StatusCompleted))
	require.Equal(t, 1, q.CountByStatus(KindClassify, StatusFailed))
	require.Equal(t, "malformed payload", q.Job(dead.ID).LastError)
}
