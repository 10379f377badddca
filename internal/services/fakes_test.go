package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onegreenvn/green-outreach-services-backend/internal/apperrors"
	"github.com/onegreenvn/green-outreach-services-backend/internal/config"
	"github.com/onegreenvn/green-outreach-services-backend/internal/database/repository"
	"github.com/onegreenvn/green-outreach-services-backend/internal/messaging"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

// In-memory stores shared by the service tests. Conditional updates reuse the
// repository Cond/Patch types so guards behave like the SQL versions.

type memCampaignStore struct {
	mu        sync.Mutex
	campaigns map[string]models.Campaign
}

func newMemCampaignStore(campaigns ...models.Campaign) *memCampaignStore {
	s := &memCampaignStore{campaigns: map[string]models.Campaign{}}
	for _, c := range campaigns {
		s.campaigns[c.ID] = c
	}
	return s
}

func (s *memCampaignStore) Create(ctx context.Context, campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if campaign.ID == "" {
		campaign.ID = uuid.New().String()
	}
	for i := range campaign.Steps {
		campaign.Steps[i].CampaignID = campaign.ID
	}
	s.campaigns[campaign.ID] = *campaign
	return nil
}

func (s *memCampaignStore) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, apperrors.NewNotFound("campaign", id)
	}
	return &c, nil
}

func (s *memCampaignStore) GetByTenantAndID(ctx context.Context, tenantID, id string) (*models.Campaign, error) {
	c, err := s.GetByID(ctx, id)
	if err != nil || c.TenantID != tenantID {
		return nil, apperrors.NewNotFound("campaign", id)
	}
	return c, nil
}

func (s *memCampaignStore) ListByTenant(ctx context.Context, tenantID string, offset, limit int) ([]models.Campaign, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Campaign
	for _, c := range s.campaigns {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, int64(len(out)), nil
}

func (s *memCampaignStore) ListActiveByTrigger(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Campaign
	for _, c := range s.campaigns {
		if c.TenantID == tenantID && c.IsActive && c.TriggerType == triggerType {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memCampaignStore) SetActive(ctx context.Context, tenantID, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return apperrors.NewNotFound("campaign", id)
	}
	c.IsActive = active
	s.campaigns[id] = c
	return nil
}

type memLeadStore struct {
	mu    sync.Mutex
	leads map[string]models.Lead
}

func newMemLeadStore(leads ...models.Lead) *memLeadStore {
	s := &memLeadStore{leads: map[string]models.Lead{}}
	for _, l := range leads {
		s.leads[l.ID] = l
	}
	return s
}

func (s *memLeadStore) put(l models.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[l.ID] = l
}

func (s *memLeadStore) GetByID(ctx context.Context, tenantID, id string) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || l.TenantID != tenantID {
		return nil, apperrors.NewNotFound("lead", id)
	}
	return &l, nil
}

func (s *memLeadStore) GetByIDs(ctx context.Context, tenantID string, ids []string) ([]models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lead
	for _, id := range ids {
		if l, ok := s.leads[id]; ok && l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memLeadStore) FindIDsByPhones(ctx context.Context, tenantID string, phones []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	for _, p := range phones {
		for _, l := range s.leads {
			if l.TenantID == tenantID && l.Phone == p {
				out[p] = l.ID
			}
		}
	}
	return out, nil
}

type memEnrollmentStore struct {
	mu   sync.Mutex
	rows map[string]*models.Enrollment
}

func newMemEnrollmentStore() *memEnrollmentStore {
	return &memEnrollmentStore{rows: map[string]*models.Enrollment{}}
}

func (s *memEnrollmentStore) CreateIfAbsent(ctx context.Context, e *models.Enrollment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.CampaignID == e.CampaignID && row.LeadID == e.LeadID {
			return false, nil
		}
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	row := *e
	s.rows[e.ID] = &row
	return true, nil
}

func (s *memEnrollmentStore) get(id string) *models.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil
	}
	out := *row
	return &out
}

func (s *memEnrollmentStore) all() []models.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Enrollment, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, *row)
	}
	return out
}

func (s *memEnrollmentStore) GetByID(ctx context.Context, tenantID, id string) (*models.Enrollment, error) {
	e := s.get(id)
	if e == nil || e.TenantID != tenantID {
		return nil, apperrors.NewNotFound("enrollment", id)
	}
	return e, nil
}

func (s *memEnrollmentStore) GetByCampaignAndLead(ctx context.Context, campaignID, leadID string) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.CampaignID == campaignID && row.LeadID == leadID {
			out := *row
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memEnrollmentStore) ListByCampaign(ctx context.Context, tenantID, campaignID string, status models.EnrollmentStatus, offset, limit int) ([]models.Enrollment, int64, error) {
	var out []models.Enrollment
	for _, e := range s.all() {
		if e.TenantID == tenantID && e.CampaignID == campaignID && (status == "" || e.Status == status) {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (s *memEnrollmentStore) ListOpenByLead(ctx context.Context, tenantID, leadID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, e := range s.all() {
		if e.TenantID == tenantID && e.LeadID == leadID && e.Status.IsOpen() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memEnrollmentStore) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, e := range s.all() {
		if e.Status == models.EnrollmentStatusActive && e.NextSendAt != nil && !e.NextSendAt.After(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextSendAt.Before(*out[j].NextSendAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memEnrollmentStore) UpdateIf(ctx context.Context, cond repository.EnrollmentCond, patch repository.EnrollmentPatch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[cond.ID]
	if !ok || !cond.Matches(row) {
		return false, nil
	}
	patch.Apply(row)
	return true, nil
}

type memCreditStore struct {
	mu       sync.Mutex
	balances map[string]int64
	txns     []models.CreditTransaction
	refunded map[string]bool
}

func newMemCreditStore(balances map[string]int64) *memCreditStore {
	if balances == nil {
		balances = map[string]int64{}
	}
	return &memCreditStore{balances: balances, refunded: map[string]bool{}}
}

func (s *memCreditStore) EnsureAccount(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[tenantID]; !ok {
		s.balances[tenantID] = 0
	}
	return nil
}

func (s *memCreditStore) GetBalance(ctx context.Context, tenantID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[tenantID], nil
}

func (s *memCreditStore) ApplyDelta(ctx context.Context, tenantID string, expected int64, txn *models.CreditTransaction) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.balances[tenantID]
	if !ok || current != expected {
		return false, nil
	}
	if txn.RefundOf != nil {
		if s.refunded[*txn.RefundOf] {
			return false, apperrors.NewConflict("transaction %s is already refunded", *txn.RefundOf)
		}
		s.refunded[*txn.RefundOf] = true
	}
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	txn.TenantID = tenantID
	txn.BalanceAfter = expected + txn.Amount
	s.balances[tenantID] = txn.BalanceAfter
	s.txns = append(s.txns, *txn)
	return true, nil
}

func (s *memCreditStore) GetTransaction(ctx context.Context, tenantID, id string) (*models.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txns {
		if t.ID == id && t.TenantID == tenantID {
			return &t, nil
		}
	}
	return nil, apperrors.NewNotFound("credit transaction", id)
}

func (s *memCreditStore) ListTransactions(ctx context.Context, tenantID string, offset, limit int) ([]models.CreditTransaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CreditTransaction
	for _, t := range s.txns {
		if t.TenantID == tenantID {
			out = append(out, t)
		}
	}
	return out, int64(len(out)), nil
}

func (s *memCreditStore) countType(kind models.TransactionType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.txns {
		if t.Type == kind {
			n++
		}
	}
	return n
}

type memBatchStore struct {
	mu         sync.Mutex
	campaigns  map[string]*models.BatchCampaign
	recipients map[string][]*models.BatchCampaignRecipient
}

func newMemBatchStore() *memBatchStore {
	return &memBatchStore{
		campaigns:  map[string]*models.BatchCampaign{},
		recipients: map[string][]*models.BatchCampaignRecipient{},
	}
}

func (s *memBatchStore) Create(ctx context.Context, campaign *models.BatchCampaign, recipients []models.BatchCampaignRecipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if campaign.ID == "" {
		campaign.ID = uuid.New().String()
	}
	row := *campaign
	s.campaigns[campaign.ID] = &row
	for i := range recipients {
		recipients[i].BatchCampaignID = campaign.ID
		if recipients[i].ID == "" {
			recipients[i].ID = uuid.New().String()
		}
		r := recipients[i]
		s.recipients[campaign.ID] = append(s.recipients[campaign.ID], &r)
	}
	return nil
}

func (s *memBatchStore) get(id string) *models.BatchCampaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *s.campaigns[id]
	return &out
}

func (s *memBatchStore) GetByID(ctx context.Context, tenantID, id string) (*models.BatchCampaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.campaigns[id]
	if !ok || row.TenantID != tenantID {
		return nil, apperrors.NewNotFound("batch campaign", id)
	}
	out := *row
	return &out, nil
}

func (s *memBatchStore) List(ctx context.Context, tenantID string, offset, limit int) ([]models.BatchCampaign, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BatchCampaign
	for _, row := range s.campaigns {
		if row.TenantID == tenantID {
			out = append(out, *row)
		}
	}
	return out, int64(len(out)), nil
}

func (s *memBatchStore) ListDue(ctx context.Context, now time.Time, limit int) ([]models.BatchCampaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BatchCampaign
	for _, row := range s.campaigns {
		due := row.Status == models.BatchStatusScheduled || row.Status == models.BatchStatusRunning
		if due && row.NextBatchDate != nil && !row.NextBatchDate.After(now) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *memBatchStore) UpdateIf(ctx context.Context, cond repository.BatchCond, patch repository.BatchPatch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.campaigns[cond.ID]
	if !ok || !cond.Matches(row) {
		return false, nil
	}
	patch.Apply(row)
	return true, nil
}

func (s *memBatchStore) NextPending(ctx context.Context, batchID string, limit int) ([]models.BatchCampaignRecipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BatchCampaignRecipient
	for _, r := range s.recipients[batchID] {
		if r.Status == models.RecipientPending && len(out) < limit {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memBatchStore) MarkRecipient(ctx context.Context, recipientID string, status models.RecipientStatus, lastError string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.recipients {
		for _, r := range list {
			if r.ID == recipientID && r.Status == models.RecipientPending {
				r.Status = status
				r.LastError = lastError
				t := at
				r.AttemptedAt = &t
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *memBatchStore) ListRecipients(ctx context.Context, batchID string) ([]models.BatchCampaignRecipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BatchCampaignRecipient, 0, len(s.recipients[batchID]))
	for _, r := range s.recipients[batchID] {
		out = append(out, *r)
	}
	return out, nil
}

type memScheduledStore struct {
	mu   sync.Mutex
	rows map[string]*models.ScheduledMessage
}

func newMemScheduledStore() *memScheduledStore {
	return &memScheduledStore{rows: map[string]*models.ScheduledMessage{}}
}

func (s *memScheduledStore) Create(ctx context.Context, msg *models.ScheduledMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	row := *msg
	s.rows[msg.ID] = &row
	return nil
}

func (s *memScheduledStore) get(id string) *models.ScheduledMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *s.rows[id]
	return &out
}

func (s *memScheduledStore) GetByID(ctx context.Context, tenantID, id string) (*models.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.TenantID != tenantID {
		return nil, apperrors.NewNotFound("scheduled message", id)
	}
	out := *row
	return &out, nil
}

func (s *memScheduledStore) List(ctx context.Context, tenantID string, status models.ScheduledMessageStatus, offset, limit int) ([]models.ScheduledMessage, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduledMessage
	for _, row := range s.rows {
		if row.TenantID == tenantID && (status == "" || row.Status == status) {
			out = append(out, *row)
		}
	}
	return out, int64(len(out)), nil
}

func (s *memScheduledStore) ListDue(ctx context.Context, now, claimableBefore time.Time, limit int) ([]models.ScheduledMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduledMessage
	for _, row := range s.rows {
		if row.Status != models.ScheduledPending || row.ScheduledFor.After(now) {
			continue
		}
		if row.ClaimedAt != nil && !row.ClaimedAt.Before(claimableBefore) {
			continue
		}
		out = append(out, *row)
	}
	return out, nil
}

func (s *memScheduledStore) UpdateIf(ctx context.Context, cond repository.ScheduledCond, patch repository.ScheduledPatch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[cond.ID]
	if !ok || !cond.Matches(row) {
		return false, nil
	}
	patch.Apply(row)
	return true, nil
}

// fakeProvider records sends; failures > 0 makes that many calls fail first.
// afterSend runs once the provider has answered.
type fakeProvider struct {
	mu        sync.Mutex
	sent      []messaging.Message
	failures  int
	delay     time.Duration
	afterSend func()
}

func (p *fakeProvider) Send(ctx context.Context, msg messaging.Message) (*messaging.Receipt, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.afterSend != nil {
		defer p.afterSend()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return nil, errors.New("provider unavailable")
	}
	p.sent = append(p.sent, msg)
	return &messaging.Receipt{ProviderMessageID: uuid.New().String(), Status: "queued"}, nil
}

func (p *fakeProvider) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []map[string]interface{}
}

func (p *fakePublisher) PublishMessage(ctx context.Context, queueName string, message map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, message)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		if t, ok := e["type"].(string); ok {
			out = append(out, t)
		}
	}
	return out
}

type activityEntry struct {
	EntityType string
	EntityID   string
	Stage      string
	Status     string
}

type recordingActivity struct {
	mu      sync.Mutex
	entries []activityEntry
}

func (a *recordingActivity) Log(ctx context.Context, tenantID, entityType, entityID, stage, status, message string, metadata map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, activityEntry{EntityType: entityType, EntityID: entityID, Stage: stage, Status: status})
}

func (a *recordingActivity) stages(entityID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		if e.EntityID == entityID {
			out = append(out, e.Stage)
		}
	}
	return out
}

// fixedClock is a settable clock for the services' now field
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock(t time.Time) *fixedClock { return &fixedClock{t: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

const (
	testTenant  = "11111111-1111-1111-1111-111111111111"
	otherTenant = "22222222-2222-2222-2222-222222222222"
)

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{
			BatchSize:              100,
			Concurrency:            4,
			DispatchTimeout:        time.Second,
			RetryInterval:          30 * time.Minute,
			MaxConsecutiveFailures: 3,
			ClaimLease:             5 * time.Minute,
		},
		Provider:              config.ProviderConfig{SenderID: "GREEN"},
		RabbitMQ:              config.RabbitMQConfig{MessageQueue: "message_events"},
		Credit:                config.CreditConfig{MediaSurcharge: 2},
		DisqualifyingStatuses: []string{"do_not_contact", "unsubscribed"},
	}
}

func testLead(id string) models.Lead {
	return models.Lead{ID: id, TenantID: testTenant, Phone: "+84900000" + id[len(id)-3:], Status: "new"}
}

// dripCampaign builds an active campaign with steps delayed by the given hours
func dripCampaign(id string, trigger models.Trigger, delays ...int) models.Campaign {
	raw, _ := models.EncodeTrigger(trigger)
	c := models.Campaign{
		ID:            id,
		TenantID:      testTenant,
		Name:          "drip " + id,
		TriggerType:   trigger.Type(),
		TriggerConfig: raw,
		IsActive:      true,
	}
	for i, h := range delays {
		c.Steps = append(c.Steps, models.CampaignStep{
			ID:         uuid.New().String(),
			CampaignID: id,
			StepNumber: i + 1,
			DelayDays:  h / 24,
			DelayHours: h % 24,
			Message:    "step message",
		})
	}
	return c
}
