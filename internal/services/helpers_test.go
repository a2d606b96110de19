package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dungyy/Gerz-platform-sub000/internal/database"
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/notify"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/queue"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB 内存 SQLite，单连接保证同一个库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

type fixture struct {
	db       *gorm.DB
	org      *models.Organization
	owner    *models.Actor
	manager  *models.Actor
	worker   *models.Actor
	worker2  *models.Actor
	tenant   *models.Actor
	tenant2  *models.Actor
	property *models.Property
	unit     *models.Unit
	unit2    *models.Unit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{db: db}
	f.org = createOrg(t, db, "Maple Court", "MAPLE001", models.PlanStarter)
	f.owner = createActor(t, db, f.org.ID, models.RoleOwner, "owner@maple.test")
	f.manager = createActor(t, db, f.org.ID, models.RoleManager, "manager@maple.test")
	f.worker = createActor(t, db, f.org.ID, models.RoleWorker, "worker@maple.test")
	f.worker2 = createActor(t, db, f.org.ID, models.RoleWorker, "worker2@maple.test")
	f.tenant = createActor(t, db, f.org.ID, models.RoleTenant, "tenant@maple.test")
	f.tenant2 = createActor(t, db, f.org.ID, models.RoleTenant, "tenant2@maple.test")

	f.property = &models.Property{OrganizationID: f.org.ID, Name: "Maple Court", City: "Springfield"}
	require.NoError(t, db.Create(f.property).Error)
	f.unit = createUnit(t, db, f.property, "1A", f.tenant)
	f.unit2 = createUnit(t, db, f.property, "1B", f.tenant2)
	return f
}

func createOrg(t *testing.T, db *gorm.DB, name, code string, tier models.PlanTier) *models.Organization {
	t.Helper()
	org := &models.Organization{
		Name:               name,
		Code:               code,
		PlanTier:           tier,
		SubscriptionStatus: models.SubscriptionActive,
	}
	require.NoError(t, db.Create(org).Error)
	return org
}

func createActor(t *testing.T, db *gorm.DB, orgID uint, role models.Role, email string) *models.Actor {
	t.Helper()
	actor := &models.Actor{
		OrganizationID: orgID,
		Role:           role,
		Email:          email,
		Name:           email,
		PasswordHash:   "not-a-real-hash",
		Preferences:    datatypes.NewJSONType(models.DefaultNotificationPrefs()),
	}
	require.NoError(t, db.Create(actor).Error)
	return actor
}

func createUnit(t *testing.T, db *gorm.DB, property *models.Property, label string, occupant *models.Actor) *models.Unit {
	t.Helper()
	unit := &models.Unit{OrganizationID: property.OrganizationID, PropertyID: property.ID, Label: label}
	if occupant != nil {
		unit.TenantID = uintPtr(occupant.ID)
	}
	require.NoError(t, db.Create(unit).Error)
	if occupant != nil {
		require.NoError(t, db.Model(occupant).Update("unit_id", unit.ID).Error)
		occupant.UnitID = uintPtr(unit.ID)
	}
	return unit
}

func setPlan(t *testing.T, db *gorm.DB, org *models.Organization, tier models.PlanTier) {
	t.Helper()
	require.NoError(t, db.Model(org).Update("plan_tier", tier).Error)
	org.PlanTier = tier
}

// requireAssignmentInvariant assigned_to 非空当且仅当状态为 assigned/in_progress/completed
func requireAssignmentInvariant(t *testing.T, db *gorm.DB) {
	t.Helper()
	var all []models.MaintenanceRequest
	require.NoError(t, db.Find(&all).Error)
	for _, r := range all {
		require.Equal(t, r.Status.HasAssignee(), r.AssignedTo != nil,
			"request %d status=%s assigned_to=%v", r.ID, r.Status, r.AssignedTo)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.DomainEvent
}

func (p *recordingPublisher) Publish(evt *models.DomainEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, len(p.events))
	for i, evt := range p.events {
		out[i] = evt.Type
	}
	return out
}

func (p *recordingPublisher) last() *models.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

type fakeEmailSender struct {
	mu   sync.Mutex
	sent []notify.Email
	err  error
}

func (s *fakeEmailSender) SendEmail(_ context.Context, email notify.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, email)
	return s.err
}

func (s *fakeEmailSender) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, e := range s.sent {
		out[i] = e.ToAddress
	}
	return out
}

type fakeSMSSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *fakeSMSSender) SendSMS(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, fmt.Sprintf("%s|%s", to, body))
	return s.err
}

func (s *fakeSMSSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeUnreadPublisher struct {
	mu       sync.Mutex
	messages []queue.UnreadMessage
}

func (p *fakeUnreadPublisher) PublishUnread(_ context.Context, msg queue.UnreadMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeUnreadPublisher) lastFor(actorID uint) (queue.UnreadMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.messages) - 1; i >= 0; i-- {
		if p.messages[i].ActorID == actorID {
			return p.messages[i], true
		}
	}
	return queue.UnreadMessage{}, false
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
