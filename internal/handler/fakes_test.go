package handler

import (
	"context"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/standupbot/report-server-go/internal/middleware"
	"github.com/standupbot/report-server-go/internal/model"
	"github.com/standupbot/report-server-go/internal/service"
	"github.com/standupbot/report-server-go/internal/token"
	"github.com/standupbot/report-server-go/internal/ws"
)

const (
	testBotToken = "123456:HANDLER-TEST"
	testBotURL   = "https://t.me/standup_bot"
)

type memUserRepo struct {
	mu    sync.Mutex
	users []*model.User
}

func (m *memUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUserRepo) FindByChatID(ctx context.Context, chatID string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ChatID == chatID {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUserRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ChatID == params.ChatID {
			return nil, nil
		}
	}
	user := &model.User{
		ID:         uuid.NewString(),
		ChatID:     params.ChatID,
		Username:   params.Username,
		FullName:   params.FullName,
		ReferredBy: params.ReferredBy,
		CreatedAt:  time.Now(),
	}
	m.users = append(m.users, user)
	return user, nil
}

func (m *memUserRepo) List(ctx context.Context) ([]model.UserSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.UserSummary, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, model.UserSummary{ID: u.ID, FullName: u.FullName})
	}
	return out, nil
}

type memReportRepo struct {
	mu      sync.Mutex
	reports []*model.Report
}

func (m *memReportRepo) Create(ctx context.Context, p model.CreateReportParams) (*model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rep := &model.Report{
		ID:         uuid.NewString(),
		UserID:     p.UserID,
		ReportDate: p.ReportDate,
		Developer:  p.Developer,
		Yesterday:  p.Yesterday,
		Today:      p.Today,
		Blockers:   p.Blockers,
		CreatedAt:  time.Now(),
	}
	m.reports = append(m.reports, rep)
	return rep, nil
}

func (m *memReportRepo) List(ctx context.Context, f model.ReportFilter) ([]model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Report
	for _, r := range m.reports {
		if r.IsDeleted {
			continue
		}
		if f.OwnerID != nil && r.UserID != *f.OwnerID {
			continue
		}
		if f.Date != nil && !r.ReportDate.Equal(*f.Date) {
			continue
		}
		out = append(out, *r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ReportDate.Equal(out[j].ReportDate) {
			return out[i].ReportDate.After(out[j].ReportDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Offset >= len(out) {
		return []model.Report{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memReportRepo) find(id, ownerID string) *model.Report {
	for _, r := range m.reports {
		if r.ID == id && r.UserID == ownerID && !r.IsDeleted {
			return r
		}
	}
	return nil
}

func (m *memReportRepo) FindForOwner(ctx context.Context, id, ownerID string) (*model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.find(id, ownerID); r != nil {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memReportRepo) LatestByOwner(ctx context.Context, ownerID string) (*model.Report, error) {
	reports, _ := m.List(ctx, model.ReportFilter{OwnerID: &ownerID, Limit: 1})
	if len(reports) == 0 {
		return nil, nil
	}
	return &reports[0], nil
}

func (m *memReportRepo) Update(ctx context.Context, id, ownerID string, p model.UpdateReportParams) (*model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(id, ownerID)
	if r == nil {
		return nil, nil
	}
	if p.ReportDate != nil {
		r.ReportDate = *p.ReportDate
	}
	if p.Developer != nil {
		r.Developer = *p.Developer
	}
	if p.Yesterday != nil {
		r.Yesterday = *p.Yesterday
	}
	if p.Today != nil {
		r.Today = *p.Today
	}
	if p.Blockers != nil {
		r.Blockers = *p.Blockers
	}
	now := time.Now()
	r.UpdatedAt = &now
	cp := *r
	return &cp, nil
}

func (m *memReportRepo) SoftDelete(ctx context.Context, id, ownerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(id, ownerID)
	if r == nil {
		return false, nil
	}
	now := time.Now()
	r.IsDeleted = true
	r.DeletedAt = &now
	return true, nil
}

type memStore struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

type allowAll struct{}

func (allowAll) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) service.RateLimitResult {
	return service.RateLimitResult{Allowed: true, Remaining: limit, ResetAt: time.Now().Add(window)}
}

type testEnv struct {
	server   *httptest.Server
	issuer   *token.Issuer
	users    *memUserRepo
	reports  *memReportRepo
	store    *memStore
	registry *ws.Registry
	pairing  *service.PairingService
	socket   *SocketHandler
}

type envOptions struct {
	debug        bool
	debugHash    string
	healthChecks map[string]Check
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	issuer, err := token.NewIssuer("handler-test-secret", "HS256")
	require.NoError(t, err)

	env := &testEnv{
		issuer:   issuer,
		users:    &memUserRepo{},
		reports:  &memReportRepo{},
		store:    &memStore{values: map[string]string{}},
		registry: ws.NewRegistry(),
	}

	userService := service.NewUserService(env.users)
	reportService := service.NewReportService(env.reports)
	authService := service.NewAuthService(testBotToken, false, userService, issuer, 48*time.Hour)
	env.pairing = service.NewPairingService(env.registry, env.store, userService, issuer, nil, service.PairingConfig{
		BotURL:     testBotURL,
		SessionTTL: 600 * time.Second,
	})

	env.socket = NewSocketHandler(env.pairing, []string{"*"})

	checks := opts.healthChecks
	if checks == nil {
		checks = map[string]Check{}
	}

	router := NewRouter(RouterConfig{
		AllowedOrigins:  []string{"*"},
		Auth:            middleware.NewAuthMiddleware(issuer),
		UserRateLimit:   middleware.NewUserRateLimitMiddleware(allowAll{}, 60),
		AuthRateLimit:   middleware.NewIPRateLimitMiddleware(allowAll{}, 20, time.Minute, "auth"),
		DebugGuard:      middleware.NewDebugGuard(opts.debug, opts.debugHash),
		BodyLimit:       middleware.NewBodyLimitMiddleware(0),
		SecurityHeaders: middleware.NewSecurityHeadersMiddleware(false),
		Socket:          env.socket,
		Service:         NewServiceHandler(env.pairing, authService),
		Debug:           NewDebugHandler(userService, authService, env.pairing, testBotToken),
		Reports:         NewReportHandler(reportService),
		Users:           NewUserHandler(userService, reportService),
		Health:          NewHealthHandler(checks, env.pairing.LiveCount),
	})

	env.server = httptest.NewServer(router)
	t.Cleanup(func() {
		env.registry.Close()
		env.server.Close()
	})
	return env
}
