package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dungyy/Gerz-platform-sub000/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fanoutFixture struct {
	*fixture
	requests *RequestService
	pub      *recordingPublisher
	fanout   *NotificationFanout
	email    *fakeEmailSender
	sms      *fakeSMSSender
	unread   *fakeUnreadPublisher
}

func newFanoutFixture(t *testing.T) *fanoutFixture {
	f := newFixture(t)
	ff := &fanoutFixture{
		fixture: f,
		pub:     &recordingPublisher{},
		email:   &fakeEmailSender{},
		sms:     &fakeSMSSender{},
		unread:  &fakeUnreadPublisher{},
	}
	ff.requests = NewRequestService(f.db, ff.pub)
	ff.fanout = NewNotificationFanout(f.db, ff.email, ff.sms, ff.unread, FanoutOptions{Workers: 2, BufferSize: 8})
	return ff
}

// drain 同步处理已记录的全部事件
func (ff *fanoutFixture) drain(t *testing.T) {
	t.Helper()
	ff.pub.mu.Lock()
	events := ff.pub.events
	ff.pub.events = nil
	ff.pub.mu.Unlock()
	for _, evt := range events {
		require.NoError(t, ff.fanout.Handle(context.Background(), evt))
	}
}

func (ff *fanoutFixture) inbox(t *testing.T, actor *models.Actor) []models.Notification {
	t.Helper()
	var list []models.Notification
	require.NoError(t, ff.db.Where("recipient_id = ?", actor.ID).Order("id ASC").Find(&list).Error)
	return list
}

func inboxTypes(list []models.Notification) []models.EventType {
	out := make([]models.EventType, len(list))
	for i, n := range list {
		out[i] = n.Type
	}
	return out
}

func setPrefs(t *testing.T, ff *fanoutFixture, actor *models.Actor, mutate func(*models.NotificationPrefs)) {
	t.Helper()
	prefs := models.DefaultNotificationPrefs()
	mutate(&prefs)
	require.NoError(t, ff.db.Model(actor).Update("preferences", datatypes.NewJSONType(prefs)).Error)
}

func TestFanoutFollowsRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	ff := newFanoutFixture(t)

	req := createLeak(t, ff.fixture, ff.requests)
	ff.drain(t)
	assert.Equal(t, []models.EventType{models.EventRequestCreated}, inboxTypes(ff.inbox(t, ff.owner)))
	assert.Equal(t, []models.EventType{models.EventRequestCreated}, inboxTypes(ff.inbox(t, ff.manager)))
	assert.Empty(t, ff.inbox(t, ff.worker))
	assert.Empty(t, ff.inbox(t, ff.tenant))

	_, err := ff.requests.Assign(ctx, ff.manager, req.ID, ff.worker.ID)
	require.NoError(t, err)
	ff.drain(t)
	workerInbox := ff.inbox(t, ff.worker)
	require.Len(t, workerInbox, 1)
	assert.Equal(t, models.EventRequestAssigned, workerInbox[0].Type)
	assert.Equal(t, req.ID, *workerInbox[0].RelatedRequestID)
	assert.Len(t, ff.inbox(t, ff.manager), 1, "the acting manager is not notified")
	tenantInbox := ff.inbox(t, ff.tenant)
	require.Len(t, tenantInbox, 1, "tenant hears that the request was assigned")
	assert.Equal(t, models.EventRequestStatusChanged, tenantInbox[0].Type)
	assert.Contains(t, tenantInbox[0].Body, "已分配")

	_, err = ff.requests.SetStatus(ctx, ff.worker, req.ID, models.StatusInProgress)
	require.NoError(t, err)
	ff.drain(t)
	tenantInbox = ff.inbox(t, ff.tenant)
	require.Len(t, tenantInbox, 2)
	assert.Equal(t, models.EventRequestStatusChanged, tenantInbox[1].Type)
	assert.Contains(t, tenantInbox[1].Body, "处理中")
	assert.Len(t, ff.inbox(t, ff.worker), 1, "the acting worker is not notified")

	_, err = ff.requests.SetStatus(ctx, ff.manager, req.ID, models.StatusCompleted)
	require.NoError(t, err)
	ff.drain(t)
	assert.Len(t, ff.inbox(t, ff.tenant), 3)
	assert.Equal(t, []models.EventType{models.EventRequestAssigned, models.EventRequestStatusChanged},
		inboxTypes(ff.inbox(t, ff.worker)), "assignee hears about completion by someone else")

	assert.Empty(t, ff.inbox(t, ff.tenant2))
	assert.Empty(t, ff.inbox(t, ff.worker2))
}

func TestFanoutExcludesCreatorAndRemovedActors(t *testing.T) {
	ff := newFanoutFixture(t)
	require.NoError(t, ff.db.Model(ff.owner).Update("removed_at", time.Now().UTC()).Error)

	_, err := ff.requests.Create(context.Background(), ff.manager, &CreateRequestInput{UnitID: ff.unit2.ID, Title: "Broken heater"})
	require.NoError(t, err)
	ff.drain(t)

	assert.Empty(t, ff.inbox(t, ff.manager))
	assert.Empty(t, ff.inbox(t, ff.owner))
}

func TestInternalCommentSkipsTenant(t *testing.T) {
	ctx := context.Background()
	ff := newFanoutFixture(t)
	req := createLeak(t, ff.fixture, ff.requests)
	_, err := ff.requests.Assign(ctx, ff.manager, req.ID, ff.worker.ID)
	require.NoError(t, err)
	ff.drain(t)
	before := len(ff.inbox(t, ff.tenant))

	_, err = ff.requests.AddComment(ctx, ff.manager, req.ID, &AddCommentInput{Text: "Parts ordered", IsInternal: true})
	require.NoError(t, err)
	ff.drain(t)
	assert.Len(t, ff.inbox(t, ff.tenant), before, "tenant never sees internal comments")
	assert.Equal(t, models.EventRequestCommentAdded, ff.inbox(t, ff.worker)[1].Type)

	_, err = ff.requests.AddComment(ctx, ff.worker, req.ID, &AddCommentInput{Text: "On my way"})
	require.NoError(t, err)
	ff.drain(t)
	assert.Len(t, ff.inbox(t, ff.tenant), before+1)
	managerInbox := ff.inbox(t, ff.manager)
	assert.Equal(t, models.EventRequestCommentAdded, managerInbox[len(managerInbox)-1].Type,
		"previous commenters are notified")
}

func TestEmergencyOverridesDisabledPreference(t *testing.T) {
	ff := newFanoutFixture(t)
	setPrefs(t, ff, ff.owner, func(p *models.NotificationPrefs) {
		p.NewRequest.Enabled = false
		p.Emergency = models.EventPref{}
	})

	_, err := ff.requests.Create(context.Background(), ff.tenant, &CreateRequestInput{
		UnitID:   ff.unit.ID,
		Title:    "Gas smell",
		Priority: models.PriorityEmergency,
	})
	require.NoError(t, err)
	ff.drain(t)

	assert.Equal(t, []models.EventType{models.EventRequestPriorityEmergency}, inboxTypes(ff.inbox(t, ff.owner)))
	assert.Equal(t, []models.EventType{models.EventRequestCreated, models.EventRequestPriorityEmergency},
		inboxTypes(ff.inbox(t, ff.manager)))
	assert.NotContains(t, ff.email.recipients(), ff.owner.Email, "override covers in-app only")
}

func TestExternalChannels(t *testing.T) {
	ctx := context.Background()
	ff := newFanoutFixture(t)
	setPrefs(t, ff, ff.worker, func(p *models.NotificationPrefs) {
		p.Assignment = models.EventPref{Enabled: true, Email: true, SMS: true}
	})
	require.NoError(t, ff.db.Model(ff.worker).Update("phone", "+15550002222").Error)

	req := createLeak(t, ff.fixture, ff.requests)
	ff.drain(t)
	assert.ElementsMatch(t, []string{ff.owner.Email, ff.manager.Email}, ff.email.recipients())

	_, err := ff.requests.Assign(ctx, ff.manager, req.ID, ff.worker.ID)
	require.NoError(t, err)
	ff.drain(t)
	assert.Contains(t, ff.email.recipients(), ff.worker.Email)
	assert.Equal(t, 0, ff.sms.count(), "SMS is off for the organization")

	require.NoError(t, ff.db.Model(ff.org).Update("sms_enabled", true).Error)
	_, err = ff.requests.Unassign(ctx, ff.manager, req.ID)
	require.NoError(t, err)
	_, err = ff.requests.Assign(ctx, ff.manager, req.ID, ff.worker.ID)
	require.NoError(t, err)
	ff.drain(t)
	assert.Equal(t, 2, ff.sms.count(), "unassign and assign both use the assignment group")

	require.NoError(t, ff.db.Model(ff.worker).Update("phone", nil).Error)
	_, err = ff.requests.Unassign(ctx, ff.manager, req.ID)
	require.NoError(t, err)
	ff.drain(t)
	assert.Equal(t, 2, ff.sms.count(), "no phone, no SMS")
}

func TestExternalFailureKeepsInApp(t *testing.T) {
	ff := newFanoutFixture(t)
	ff.email.err = errors.New("smtp down")

	createLeak(t, ff.fixture, ff.requests)
	ff.drain(t)
	assert.Len(t, ff.inbox(t, ff.owner), 1)
	assert.Len(t, ff.email.recipients(), 2)
}

func TestUnreadCountIsPublished(t *testing.T) {
	ff := newFanoutFixture(t)
	createLeak(t, ff.fixture, ff.requests)
	createLeak(t, ff.fixture, ff.requests)
	ff.drain(t)

	msg, ok := ff.unread.lastFor(ff.owner.ID)
	require.True(t, ok)
	assert.Equal(t, int64(2), msg.Unread)
	assert.Equal(t, string(models.EventRequestCreated), msg.Type)
	assert.NotZero(t, msg.NotificationID)

	_, ok = ff.unread.lastFor(ff.tenant.ID)
	assert.False(t, ok)
}

func TestHandleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ff := newFanoutFixture(t)
	createLeak(t, ff.fixture, ff.requests)
	evt := ff.pub.last()

	require.NoError(t, ff.fanout.Handle(ctx, evt))
	require.NoError(t, ff.fanout.Handle(ctx, evt))
	assert.Len(t, ff.inbox(t, ff.owner), 1)

	var stored models.DomainEvent
	require.NoError(t, ff.db.First(&stored, evt.ID).Error)
	assert.NotNil(t, stored.DispatchedAt)
	assert.Equal(t, 1, stored.Attempts)
}

func TestRedeliverPicksUpStaleEvents(t *testing.T) {
	ctx := context.Background()
	ff := newFanoutFixture(t)
	createLeak(t, ff.fixture, ff.requests)

	n, err := ff.fanout.Redeliver(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh events are left to the live path")
	assert.Empty(t, ff.inbox(t, ff.owner))

	ff.fanout.now = fixedClock(time.Now().UTC().Add(2 * time.Hour))
	n, err = ff.fanout.Redeliver(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, ff.inbox(t, ff.owner), 1)

	n, err = ff.fanout.Redeliver(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublishAndClose(t *testing.T) {
	ff := newFanoutFixture(t)
	ff.requests = NewRequestService(ff.db, ff.fanout)
	ff.fanout.Start()

	for i := 0; i < 3; i++ {
		createLeak(t, ff.fixture, ff.requests)
	}
	ff.fanout.Close()
	assert.Len(t, ff.inbox(t, ff.owner), 3)

	createLeak(t, ff.fixture, ff.requests)
	var pending int64
	require.NoError(t, ff.db.Model(&models.DomainEvent{}).Where("dispatched_at IS NULL").Count(&pending).Error)
	assert.Equal(t, int64(1), pending, "events after close stay in the outbox")
}

func TestCloseWithoutStartDrainsQueue(t *testing.T) {
	ff := newFanoutFixture(t)
	ff.requests = NewRequestService(ff.db, ff.fanout)

	createLeak(t, ff.fixture, ff.requests)
	ff.fanout.Close()
	assert.Len(t, ff.inbox(t, ff.manager), 1)
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []uint{3, 5}, dedupe([]uint{3, 0, 5, 3, 7}, 7))
	assert.Empty(t, dedupe(nil, 1))
}
