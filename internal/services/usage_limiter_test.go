package services

import (
	"context"
	"testing"
	"time"

	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	apperrors "github.com/Dungyy/Gerz-platform-sub000/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLimitCountsLiveResources(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	limiter := NewUsageLimiter(f.db)
	setPlan(t, f.db, f.org, models.PlanFree)

	check, err := limiter.CheckLimit(ctx, f.org.ID, models.ResourceWorkers)
	require.NoError(t, err)
	assert.Equal(t, int64(2), check.Current)
	require.NotNil(t, check.Max)
	assert.Equal(t, 2, *check.Max)
	assert.False(t, check.Allowed)

	require.NoError(t, f.db.Model(f.worker2).Update("removed_at", time.Now().UTC()).Error)
	check, err = limiter.CheckLimit(ctx, f.org.ID, models.ResourceWorkers)
	require.NoError(t, err)
	assert.Equal(t, int64(1), check.Current, "removed actors do not count")
	assert.True(t, check.Allowed)
	assert.NoError(t, limiter.Ensure(ctx, f.org.ID, models.ResourceWorkers))

	check, err = limiter.CheckLimit(ctx, f.org.ID, models.ResourceProperties)
	require.NoError(t, err)
	assert.False(t, check.Allowed, "free plan allows one property")
}

func TestPendingInvitationsDoNotCount(t *testing.T) {
	ctx := context.Background()
	f, svc, _ := newInvitationFixture(t)
	setPlan(t, f.db, f.org, models.PlanFree)
	require.NoError(t, f.db.Model(f.manager).Update("removed_at", time.Now().UTC()).Error)

	issue(t, svc, f.owner, "m1@maple.test", models.RoleManager)
	count, err := NewUsageLimiter(f.db).Count(ctx, f.org.ID, models.ResourceManagers)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEnsureLimitExceeded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	limiter := NewUsageLimiter(f.db)
	setPlan(t, f.db, f.org, models.PlanFree)

	err := limiter.Ensure(ctx, f.org.ID, models.ResourceManagers)
	require.ErrorIs(t, err, apperrors.ErrLimitExceeded)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, models.ResourceManagers, appErr.Details["resource"])
	assert.Equal(t, int64(1), appErr.Details["current"])
	assert.Equal(t, 1, appErr.Details["max"])
}

func TestEnterpriseIsUnlimited(t *testing.T) {
	f := newFixture(t)
	setPlan(t, f.db, f.org, models.PlanEnterprise)

	check, err := NewUsageLimiter(f.db).CheckLimit(context.Background(), f.org.ID, models.ResourceWorkers)
	require.NoError(t, err)
	assert.Nil(t, check.Max)
	assert.True(t, check.Allowed)
}

func TestExpiredTrialFallsBackToFree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ends := time.Now().UTC().Add(24 * time.Hour)
	require.NoError(t, f.db.Model(f.org).Updates(map[string]interface{}{
		"subscription_status": models.SubscriptionTrialing,
		"trial_ends_at":       ends,
	}).Error)
	limiter := NewUsageLimiter(f.db)

	report, err := limiter.Usage(ctx, f.org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStarter, report.EffectiveTier)
	assert.Len(t, report.Items, len(models.AllResourceTypes))

	limiter.now = fixedClock(ends.Add(time.Minute))
	report, err = limiter.Usage(ctx, f.org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStarter, report.PlanTier)
	assert.Equal(t, models.PlanFree, report.EffectiveTier)
	assert.ErrorIs(t, limiter.Ensure(ctx, f.org.ID, models.ResourceWorkers), apperrors.ErrLimitExceeded)
}

func TestLimitsAreScopedPerOrganization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := createOrg(t, f.db, "Elm Street", "ELM00001", models.PlanFree)
	createActor(t, f.db, other.ID, models.RoleOwner, "owner@elm.test")

	count, err := NewUsageLimiter(f.db).Count(ctx, other.ID, models.ResourceWorkers)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = NewUsageLimiter(f.db).Count(ctx, other.ID, models.ResourceType("parking"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
