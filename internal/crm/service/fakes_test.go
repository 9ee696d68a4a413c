package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brightdesk/crm-backend/internal/crm/domain"
	"github.com/brightdesk/crm-backend/internal/crm/repository"
	"github.com/brightdesk/crm-backend/internal/fx"
	"github.com/brightdesk/crm-backend/pkg/actor"
	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/logger"
	"github.com/brightdesk/crm-backend/pkg/testutil"
)

// memState is the in-memory database behind the fake stores.
type memState struct {
	tenants   map[string]domain.Tenant
	settings  map[string]domain.TenantSettings
	subs      map[string]domain.Subscription
	users     map[string]domain.User
	pipelines map[string]domain.Pipeline
	stages    map[string]domain.Stage
	deals     map[string]domain.Deal
	items     []domain.DealItem
	history   []domain.StageHistory
	clients   map[string]domain.Client
	products  map[string]domain.Product
	invoices  map[string]domain.Invoice
	tasks     map[string]domain.Task
}

func (s memState) clone() memState {
	return memState{
		tenants:   cloneMap(s.tenants),
		settings:  cloneMap(s.settings),
		subs:      cloneMap(s.subs),
		users:     cloneMap(s.users),
		pipelines: cloneMap(s.pipelines),
		stages:    cloneMap(s.stages),
		deals:     cloneMap(s.deals),
		items:     append([]domain.DealItem(nil), s.items...),
		history:   append([]domain.StageHistory(nil), s.history...),
		clients:   cloneMap(s.clients),
		products:  cloneMap(s.products),
		invoices:  cloneMap(s.invoices),
		tasks:     cloneMap(s.tasks),
	}
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type memDB struct {
	mu    sync.Mutex
	st    memState
	clock time.Time

	// injected failures
	roleErr        error
	setStageErr    error
	insertItemsErr error
}

func newMemDB() *memDB {
	return &memDB{
		clock: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		st: memState{
			tenants:   map[string]domain.Tenant{},
			settings:  map[string]domain.TenantSettings{},
			subs:      map[string]domain.Subscription{},
			users:     map[string]domain.User{},
			pipelines: map[string]domain.Pipeline{},
			stages:    map[string]domain.Stage{},
			deals:     map[string]domain.Deal{},
			clients:   map[string]domain.Client{},
			products:  map[string]domain.Product{},
			invoices:  map[string]domain.Invoice{},
			tasks:     map[string]domain.Task{},
		},
	}
}

func (m *memDB) now() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

// fakeTx restores the state snapshot when fn fails, like a rollback.
type fakeTx struct {
	db    *memDB
	calls int
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	f.db.mu.Lock()
	f.calls++
	snapshot := f.db.st.clone()
	f.db.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.db.mu.Lock()
		f.db.st = snapshot
		f.db.mu.Unlock()
		return err
	}
	return nil
}

type fakeCaps struct {
	caps domain.Caps
	err  error
}

func (f *fakeCaps) Caps(context.Context) (domain.Caps, error) { return f.caps, f.err }

type fakeFX struct {
	snap  *fx.Snapshot
	err   error
	calls int
}

func (f *fakeFX) Snapshot(context.Context) (*fx.Snapshot, error) {
	f.calls++
	return f.snap, f.err
}

type fakeFiles struct {
	mu        sync.Mutex
	saved     map[string]string
	removed   []string
	saveErr   error
	removeErr error
}

func (f *fakeFiles) Save(_ context.Context, tenantID, category, filename string, r io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	path := fmt.Sprintf("/uploads/%s/%s/%s%s", tenantID, category, uuid.NewString(), strings.ToLower(filenameExt(filename)))
	f.saved[path] = string(body)
	return path, nil
}

func (f *fakeFiles) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.saved, path)
	return nil
}

func filenameExt(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

// --- deals ---

type fakeDeals struct{ db *memDB }

func visibleDeal(caps domain.Caps, f repository.DealFilter, d domain.Deal) bool {
	if d.TenantID != f.TenantID {
		return false
	}
	if f.PipelineID != "" && d.PipelineID != f.PipelineID {
		return false
	}
	if f.OwnerID != "" && caps.HasOwnerID && (d.OwnerID == nil || *d.OwnerID != f.OwnerID) {
		return false
	}
	return true
}

func projectDeal(caps domain.Caps, d domain.Deal) domain.Deal {
	if !caps.HasClientID {
		d.ClientID = nil
	}
	if !caps.HasOwnerID {
		d.OwnerID = nil
	}
	if !caps.HasProposalFilePath {
		d.ProposalFilePath = nil
	}
	d.HasProposal = d.ProposalFilePath != nil
	d.Items = nil
	return d
}

func (f *fakeDeals) List(_ context.Context, caps domain.Caps, flt repository.DealFilter) ([]domain.Deal, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []domain.Deal{}
	for _, d := range f.db.st.deals {
		if visibleDeal(caps, flt, d) {
			out = append(out, projectDeal(caps, d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeDeals) Get(_ context.Context, caps domain.Caps, flt repository.DealFilter, id string) (*domain.Deal, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	d, ok := f.db.st.deals[id]
	if !ok || !visibleDeal(caps, flt, d) {
		return nil, errors.NotFound("deal")
	}
	p := projectDeal(caps, d)
	return &p, nil
}

func (f *fakeDeals) Insert(_ context.Context, caps domain.Caps, deal *domain.Deal) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if deal.ID == "" {
		deal.ID = uuid.NewString()
	}
	deal.CreatedAt = f.db.now()
	deal.UpdatedAt = deal.CreatedAt
	stored := projectDeal(caps, *deal)
	f.db.st.deals[deal.ID] = stored
	return nil
}

func (f *fakeDeals) Update(_ context.Context, caps domain.Caps, tenantID, id string, p repository.DealPatch) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	d, ok := f.db.st.deals[id]
	if !ok || d.TenantID != tenantID {
		return errors.NotFound("deal")
	}
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Value != nil {
		d.Value = *p.Value
	}
	if p.Currency != nil {
		d.Currency = *p.Currency
	}
	if p.ClientIDSet && caps.HasClientID {
		d.ClientID = p.ClientID
	}
	if p.OwnerIDSet && caps.HasOwnerID {
		d.OwnerID = p.OwnerID
	}
	d.UpdatedAt = f.db.now()
	f.db.st.deals[id] = d
	return nil
}

func (f *fakeDeals) SetStage(_ context.Context, tenantID, id, stageID string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.setStageErr != nil {
		return f.db.setStageErr
	}
	d, ok := f.db.st.deals[id]
	if !ok || d.TenantID != tenantID {
		return errors.NotFound("deal")
	}
	d.StageID = stageID
	f.db.st.deals[id] = d
	return nil
}

func (f *fakeDeals) SetProposalPath(_ context.Context, tenantID, id, path string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	d, ok := f.db.st.deals[id]
	if !ok || d.TenantID != tenantID {
		return errors.NotFound("deal")
	}
	d.ProposalFilePath = &path
	f.db.st.deals[id] = d
	return nil
}

func (f *fakeDeals) Delete(_ context.Context, tenantID, id string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	d, ok := f.db.st.deals[id]
	if !ok || d.TenantID != tenantID {
		return errors.NotFound("deal")
	}
	delete(f.db.st.deals, id)
	return nil
}

func (f *fakeDeals) InsertItems(_ context.Context, items []domain.DealItem) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.insertItemsErr != nil {
		return f.db.insertItemsErr
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		f.db.st.items = append(f.db.st.items, items[i])
	}
	return nil
}

func (f *fakeDeals) ListItems(_ context.Context, tenantID, dealID string) ([]domain.DealItem, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []domain.DealItem{}
	for _, it := range f.db.st.items {
		if it.TenantID == tenantID && it.DealID == dealID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeDeals) DeleteItems(_ context.Context, tenantID, dealID string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	kept := f.db.st.items[:0]
	for _, it := range f.db.st.items {
		if !(it.TenantID == tenantID && it.DealID == dealID) {
			kept = append(kept, it)
		}
	}
	f.db.st.items = kept
	return nil
}

func (f *fakeDeals) InsertHistory(_ context.Context, h *domain.StageHistory) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.ChangedAt = f.db.now()
	f.db.st.history = append(f.db.st.history, *h)
	return nil
}

func (f *fakeDeals) ListHistory(_ context.Context, tenantID, dealID string) ([]domain.StageHistory, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []domain.StageHistory{}
	for _, h := range f.db.st.history {
		if h.TenantID == tenantID && h.DealID == dealID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeDeals) DeleteHistory(_ context.Context, tenantID, dealID string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	kept := f.db.st.history[:0]
	for _, h := range f.db.st.history {
		if !(h.TenantID == tenantID && h.DealID == dealID) {
			kept = append(kept, h)
		}
	}
	f.db.st.history = kept
	return nil
}

// --- pipelines ---

type fakePipelines struct{ db *memDB }

func (f *fakePipelines) List(_ context.Context, tenantID string) ([]domain.Pipeline, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []domain.Pipeline{}
	for _, p := range f.db.st.pipelines {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakePipelines) Get(_ context.Context, tenantID, id string) (*domain.Pipeline, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.st.pipelines[id]
	if !ok || p.TenantID != tenantID {
		return nil, errors.NotFound("pipeline")
	}
	return &p, nil
}

func (f *fakePipelines) Oldest(ctx context.Context, tenantID string) (*domain.Pipeline, error) {
	all, _ := f.List(ctx, tenantID)
	if len(all) == 0 {
		return nil, errors.NotFound("pipeline")
	}
	return &all[0], nil
}

func (f *fakePipelines) Create(_ context.Context, p *domain.Pipeline) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = f.db.now()
	for i := range p.Stages {
		s := &p.Stages[i]
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.TenantID = p.TenantID
		s.PipelineID = p.ID
		f.db.st.stages[s.ID] = *s
	}
	stored := *p
	stored.Stages = nil
	f.db.st.pipelines[p.ID] = stored
	return nil
}

func (f *fakePipelines) stagesWhere(match func(domain.Stage) bool) []domain.Stage {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []domain.Stage{}
	for _, s := range f.db.st.stages {
		if match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PipelineID != out[j].PipelineID {
			return out[i].PipelineID < out[j].PipelineID
		}
		return out[i].Position < out[j].Position
	})
	return out
}

func (f *fakePipelines) ListStages(_ context.Context, tenantID, pipelineID string) ([]domain.Stage, error) {
	return f.stagesWhere(func(s domain.Stage) bool { return s.TenantID == tenantID && s.PipelineID == pipelineID }), nil
}

func (f *fakePipelines) ListTenantStages(_ context.Context, tenantID string) ([]domain.Stage, error) {
	return f.stagesWhere(func(s domain.Stage) bool { return s.TenantID == tenantID }), nil
}

func (f *fakePipelines) GetStage(_ context.Context, tenantID, id string) (*domain.Stage, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.st.stages[id]
	if !ok || s.TenantID != tenantID {
		return nil, errors.NotFound("stage")
	}
	return &s, nil
}

func (f *fakePipelines) FirstStage(ctx context.Context, tenantID, pipelineID string) (*domain.Stage, error) {
	stages, _ := f.ListStages(ctx, tenantID, pipelineID)
	if len(stages) == 0 {
		return nil, errors.NotFound("stage")
	}
	return &stages[0], nil
}

// --- clients ---

type fakeClients struct{ db *memDB }

func (f *fakeClients) List(_ context.Context, caps domain.Caps, tenantID string) ([]domain.Client, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []domain.Client{}
	for _, c := range f.db.st.clients {
		if c.TenantID == tenantID {
			out = append(out, projectClient(caps, c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func projectClient(caps domain.Caps, c domain.Client) domain.Client {
	if !caps.HasClientProfile {
		c.Phone, c.Website, c.Address, c.Notes = nil, nil, nil, nil
	}
	return c
}

func (f *fakeClients) Get(_ context.Context, caps domain.Caps, tenantID, id string) (*domain.Client, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.st.clients[id]
	if !ok || c.TenantID != tenantID {
		return nil, errors.NotFound("client")
	}
	c = projectClient(caps, c)
	return &c, nil
}

func (f *fakeClients) Exists(_ context.Context, tenantID, id string) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.st.clients[id]
	return ok && c.TenantID == tenantID, nil
}

func (f *fakeClients) Create(_ context.Context, caps domain.Caps, c *domain.Client) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = f.db.now()
	c.UpdatedAt = c.CreatedAt
	f.db.st.clients[c.ID] = projectClient(caps, *c)
	return nil
}

func (f *fakeClients) Update(_ context.Context, caps domain.Caps, c *domain.Client) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	old, ok := f.db.st.clients[c.ID]
	if !ok || old.TenantID != c.TenantID {
		return errors.NotFound("client")
	}
	c.CreatedAt = old.CreatedAt
	c.UpdatedAt = f.db.now()
	f.db.st.clients[c.ID] = projectClient(caps, *c)
	return nil
}

func (f *fakeClients) Delete(_ context.Context, tenantID, id string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.st.clients[id]
	if !ok || c.TenantID != tenantID {
		return errors.NotFound("client")
	}
	delete(f.db.st.clients, id)
	return nil
}

// --- products ---

type fakeProducts struct{ db *memDB }

func (f *fakeProducts) List(_ context.Context, tenantID string, activeOnly bool) ([]domain.Product, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []domain.Product{}
	for _, p := range f.db.st.products {
		if p.TenantID == tenantID && (!activeOnly || p.Active) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) Get(_ context.Context, tenantID, id string) (*domain.Product, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.st.products[id]
	if !ok || p.TenantID != tenantID {
		return nil, errors.NotFound("product")
	}
	return &p, nil
}

func (f *fakeProducts) FindActive(_ context.Context, tenantID string, ids []string) ([]domain.Product, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []domain.Product{}
	for _, id := range ids {
		if p, ok := f.db.st.products[id]; ok && p.TenantID == tenantID && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) Create(_ context.Context, p *domain.Product) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = f.db.now()
	f.db.st.products[p.ID] = *p
	return nil
}

func (f *fakeProducts) Update(_ context.Context, p *domain.Product) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	old, ok := f.db.st.products[p.ID]
	if !ok || old.TenantID != p.TenantID {
		return errors.NotFound("product")
	}
	f.db.st.products[p.ID] = *p
	return nil
}

func (f *fakeProducts) Deactivate(_ context.Context, tenantID, id string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.st.products[id]
	if !ok || p.TenantID != tenantID {
		return errors.NotFound("product")
	}
	p.Active = false
	f.db.st.products[id] = p
	return nil
}

// --- users ---

type fakeUsers struct{ db *memDB }

func (f *fakeUsers) Role(_ context.Context, tenantID, id string) (domain.Role, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.roleErr != nil {
		return "", f.db.roleErr
	}
	u, ok := f.db.st.users[id]
	if !ok || u.TenantID != tenantID {
		return "", errors.NotFound("user")
	}
	return u.Role, nil
}

func (f *fakeUsers) Get(_ context.Context, caps domain.Caps, tenantID, id string) (*domain.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.st.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, errors.NotFound("user")
	}
	if !caps.HasUserRole {
		u.Role = ""
	}
	return &u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, caps domain.Caps, email string) (*domain.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, u := range f.db.st.users {
		if u.Email == strings.ToLower(email) {
			if !caps.HasUserRole {
				u.Role = ""
			}
			return &u, nil
		}
	}
	return nil, errors.NotFound("user")
}

func (f *fakeUsers) List(_ context.Context, caps domain.Caps, tenantID string) ([]domain.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []domain.User{}
	for _, u := range f.db.st.users {
		if u.TenantID == tenantID {
			if !caps.HasUserRole {
				u.Role = ""
			}
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeUsers) Create(_ context.Context, caps domain.Caps, u *domain.User) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	for _, existing := range f.db.st.users {
		if existing.Email == u.Email {
			return errors.Conflict("email already exists")
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = f.db.now()
	stored := *u
	if !caps.HasUserRole {
		stored.Role = domain.RoleMember
	}
	f.db.st.users[u.ID] = stored
	return nil
}

func (f *fakeUsers) SetRole(_ context.Context, tenantID, id string, role domain.Role) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.st.users[id]
	if !ok || u.TenantID != tenantID {
		return errors.NotFound("user")
	}
	u.Role = role
	f.db.st.users[id] = u
	return nil
}

func (f *fakeUsers) CountOwners(_ context.Context, tenantID string) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	n := 0
	for _, u := range f.db.st.users {
		if u.TenantID == tenantID && u.Role == domain.RoleOwner {
			n++
		}
	}
	return n, nil
}

// --- tenants and subscriptions ---

type fakeTenants struct{ db *memDB }

func (f *fakeTenants) Create(_ context.Context, t *domain.Tenant) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = f.db.now()
	f.db.st.tenants[t.ID] = *t
	return nil
}

func (f *fakeTenants) Get(_ context.Context, id string) (*domain.Tenant, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.st.tenants[id]
	if !ok {
		return nil, errors.NotFound("tenant")
	}
	return &t, nil
}

func (f *fakeTenants) Settings(_ context.Context, tenantID string) (*domain.TenantSettings, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.st.tenants[tenantID]; !ok {
		return nil, errors.NotFound("tenant")
	}
	s := f.db.st.settings[tenantID]
	return &s, nil
}

func (f *fakeTenants) UpdateSettings(_ context.Context, tenantID string, s *domain.TenantSettings) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.st.tenants[tenantID]; !ok {
		return errors.NotFound("tenant")
	}
	f.db.st.settings[tenantID] = *s
	return nil
}

type fakeSubscriptions struct{ db *memDB }

func (f *fakeSubscriptions) Get(_ context.Context, tenantID string) (*domain.Subscription, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.st.subs[tenantID]
	if !ok {
		return nil, errors.NotFound("subscription")
	}
	return &s, nil
}

func (f *fakeSubscriptions) Create(_ context.Context, s *domain.Subscription) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = f.db.now()
	f.db.st.subs[s.TenantID] = *s
	return nil
}

// --- invoices and tasks ---

type fakeInvoices struct{ db *memDB }

func (f *fakeInvoices) List(_ context.Context, tenantID string, status domain.InvoiceStatus) ([]domain.Invoice, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []domain.Invoice{}
	for _, inv := range f.db.st.invoices {
		if inv.TenantID == tenantID && (status == "" || inv.Status == status) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeInvoices) Get(_ context.Context, tenantID, id string) (*domain.Invoice, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	inv, ok := f.db.st.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil, errors.NotFound("invoice")
	}
	return &inv, nil
}

func (f *fakeInvoices) Create(_ context.Context, inv *domain.Invoice) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.CreatedAt = f.db.now()
	f.db.st.invoices[inv.ID] = *inv
	return nil
}

func (f *fakeInvoices) SetStatus(_ context.Context, tenantID, id string, status domain.InvoiceStatus) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	inv, ok := f.db.st.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return errors.NotFound("invoice")
	}
	inv.Status = status
	f.db.st.invoices[id] = inv
	return nil
}

func (f *fakeInvoices) Delete(_ context.Context, tenantID, id string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	inv, ok := f.db.st.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return errors.NotFound("invoice")
	}
	delete(f.db.st.invoices, id)
	return nil
}

func (f *fakeInvoices) OutstandingByCurrency(_ context.Context, tenantID string) ([]repository.CurrencyTotal, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	totals := map[string]float64{}
	for _, inv := range f.db.st.invoices {
		if inv.TenantID == tenantID && inv.Status == domain.InvoiceSent {
			totals[inv.Currency] += inv.Amount
		}
	}
	out := []repository.CurrencyTotal{}
	for c, t := range totals {
		out = append(out, repository.CurrencyTotal{Currency: c, Total: t})
	}
	return out, nil
}

type fakeTasks struct{ db *memDB }

func (f *fakeTasks) List(_ context.Context, flt repository.TaskFilter) ([]domain.Task, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := []domain.Task{}
	for _, t := range f.db.st.tasks {
		if t.TenantID != flt.TenantID {
			continue
		}
		if flt.DealID != "" && (t.DealID == nil || *t.DealID != flt.DealID) {
			continue
		}
		if flt.AssigneeID != "" && (t.AssigneeID == nil || *t.AssigneeID != flt.AssigneeID) {
			continue
		}
		if flt.Done != nil && t.Done != *flt.Done {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTasks) Get(_ context.Context, tenantID, id string) (*domain.Task, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.st.tasks[id]
	if !ok || t.TenantID != tenantID {
		return nil, errors.NotFound("task")
	}
	return &t, nil
}

func (f *fakeTasks) Create(_ context.Context, t *domain.Task) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = f.db.now()
	f.db.st.tasks[t.ID] = *t
	return nil
}

func (f *fakeTasks) Update(_ context.Context, t *domain.Task) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	old, ok := f.db.st.tasks[t.ID]
	if !ok || old.TenantID != t.TenantID {
		return errors.NotFound("task")
	}
	f.db.st.tasks[t.ID] = *t
	return nil
}

func (f *fakeTasks) Delete(_ context.Context, tenantID, id string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.st.tasks[id]
	if !ok || t.TenantID != tenantID {
		return errors.NotFound("task")
	}
	delete(f.db.st.tasks, id)
	return nil
}

func (f *fakeTasks) CountOpen(_ context.Context, tenantID, assigneeID string) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	n := 0
	for _, t := range f.db.st.tasks {
		if t.TenantID != tenantID || t.Done {
			continue
		}
		if assigneeID != "" && (t.AssigneeID == nil || *t.AssigneeID != assigneeID) {
			continue
		}
		n++
	}
	return n, nil
}

// --- harness ---

// workspace is one seeded tenant.
type workspace struct {
	TenantID string
	Owner    *actor.Actor
	Admin    *actor.Actor
	Member   *actor.Actor
	Pipeline domain.Pipeline
	Lead     domain.Stage
	Won      domain.Stage
	Lost     domain.Stage
}

type harness struct {
	db        *memDB
	caps      *fakeCaps
	tx        *fakeTx
	fx        *fakeFX
	files     *fakeFiles
	publisher *testutil.MockPublisher

	deals     *fakeDeals
	pipelines *fakePipelines
	clients   *fakeClients
	products  *fakeProducts
	users     *fakeUsers
	tenants   *fakeTenants
	subs      *fakeSubscriptions
	invoices  *fakeInvoices
	tasks     *fakeTasks

	roles     *RoleResolver
	dealSvc   *DealService
	forecast  *ForecastService
	pipeSvc   *PipelineService
	clientSvc *ClientService
	prodSvc   *ProductService
	userSvc   *UserService
	settings  *SettingsService
	invSvc    *InvoiceService
	taskSvc   *TaskService
	dashboard *DashboardService
	exports   *ExportService

	A workspace
	B workspace
}

func newHarness(t *testing.T, caps domain.Caps) *harness {
	t.Helper()

	db := newMemDB()
	h := &harness{
		db:        db,
		caps:      &fakeCaps{caps: caps},
		tx:        &fakeTx{db: db},
		fx:        &fakeFX{snap: &fx.Snapshot{Base: "USD", Rates: map[string]float64{"EUR": 0.9, "GBP": 0.8}}},
		files:     &fakeFiles{},
		publisher: testutil.NewMockPublisher(),
		deals:     &fakeDeals{db: db},
		pipelines: &fakePipelines{db: db},
		clients:   &fakeClients{db: db},
		products:  &fakeProducts{db: db},
		users:     &fakeUsers{db: db},
		tenants:   &fakeTenants{db: db},
		subs:      &fakeSubscriptions{db: db},
		invoices:  &fakeInvoices{db: db},
		tasks:     &fakeTasks{db: db},
	}

	log := logger.Nop()
	h.roles = NewRoleResolver(h.caps, h.users, domain.RoleMember, log)
	h.dealSvc = NewDealService(DealDeps{
		Caps:      h.caps,
		Tx:        h.tx,
		Roles:     h.roles,
		Deals:     h.deals,
		Pipelines: h.pipelines,
		Clients:   h.clients,
		Products:  h.products,
		Users:     h.users,
		Tenants:   h.tenants,
		Files:     h.files,
		Publisher: h.publisher,
	}, log)
	h.forecast = NewForecastService(h.caps, h.roles, h.pipelines, h.deals, h.tenants, h.fx, log)
	h.pipeSvc = NewPipelineService(h.tx, h.roles, h.pipelines, log)
	h.clientSvc = NewClientService(h.caps, h.roles, h.clients, log)
	h.prodSvc = NewProductService(h.caps, h.roles, h.products, log)
	h.userSvc = NewUserService(h.caps, h.tx, h.roles, h.users, h.publisher, log)
	h.settings = NewSettingsService(h.caps, h.roles, h.tenants, h.pipelines, h.subs, log)
	h.invSvc = NewInvoiceService(h.caps, h.roles, h.invoices, h.clients, h.deals, log)
	h.taskSvc = NewTaskService(h.caps, h.roles, h.tasks, h.deals, h.users, log)
	h.dashboard = NewDashboardService(h.caps, h.roles, h.deals, h.pipelines, h.tasks, h.invoices, h.fx, log)
	h.exports = NewExportService(h.caps, h.roles, h.clients, h.invoices)

	h.A = h.seedWorkspace(t, "a")
	h.B = h.seedWorkspace(t, "b")
	return h
}

func (h *harness) seedWorkspace(t *testing.T, name string) workspace {
	t.Helper()
	ctx := context.Background()
	all := domain.AllCaps()

	tenant := &domain.Tenant{Name: "Tenant " + name}
	if err := h.tenants.Create(ctx, tenant); err != nil {
		t.Fatal(err)
	}

	mkUser := func(role domain.Role) *actor.Actor {
		u := &domain.User{
			TenantID: tenant.ID,
			Email:    fmt.Sprintf("%s-%s@example.com", strings.ToLower(string(role)), name),
			Name:     string(role) + " " + name,
			Role:     role,
		}
		if err := h.users.Create(ctx, all, u); err != nil {
			t.Fatal(err)
		}
		return &actor.Actor{ID: u.ID, TenantID: tenant.ID, Email: u.Email}
	}

	ws := workspace{
		TenantID: tenant.ID,
		Owner:    mkUser(domain.RoleOwner),
		Admin:    mkUser(domain.RoleAdmin),
		Member:   mkUser(domain.RoleMember),
	}

	p := &domain.Pipeline{
		TenantID: tenant.ID,
		Name:     "Sales",
		Stages: []domain.Stage{
			{Name: "Lead", Position: 0, Probability: 0.1, Status: domain.StageOpen},
			{Name: "Won", Position: 1, Probability: 0.5, Status: domain.StageWon},
			{Name: "Lost", Position: 2, Probability: 0.5, Status: domain.StageLost},
		},
	}
	if err := h.pipelines.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	ws.Lead, ws.Won, ws.Lost = p.Stages[0], p.Stages[1], p.Stages[2]
	p.Stages = nil
	ws.Pipeline = *p
	return ws
}

func (h *harness) historyFor(dealID string) []domain.StageHistory {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	var out []domain.StageHistory
	for _, r := range h.db.st.history {
		if r.DealID == dealID {
			out = append(out, r)
		}
	}
	return out
}

func (h *harness) storedDeal(id string) (domain.Deal, bool) {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	d, ok := h.db.st.deals[id]
	return d, ok
}

func (h *harness) addClient(t *testing.T, tenantID, name string) domain.Client {
	t.Helper()
	c := &domain.Client{TenantID: tenantID, Name: name}
	if err := h.clients.Create(context.Background(), domain.AllCaps(), c); err != nil {
		t.Fatal(err)
	}
	return *c
}

func (h *harness) addProduct(t *testing.T, tenantID string, price float64, active bool) domain.Product {
	t.Helper()
	p := &domain.Product{TenantID: tenantID, Name: "Widget", Price: price, Currency: "USD", Active: active}
	if err := h.products.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return *p
}

func (h *harness) createDeal(t *testing.T, caller *actor.Actor, ws workspace, title string, value float64, currency string) *domain.Deal {
	t.Helper()
	d, err := h.dealSvc.Create(context.Background(), caller, domain.CreateDealInput{
		Title:      title,
		Value:      value,
		Currency:   currency,
		PipelineID: ws.Pipeline.ID,
	})
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}
	return d
}
