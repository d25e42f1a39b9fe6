package testutil

import (
	"context"
	"sync"

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/internal/domain/processor"
	"github.com/cassiomorais/memberpay/internal/domain/settings"
	"github.com/cassiomorais/memberpay/internal/gateway"
)

// --- Settings Store Mock ---

// MockSettingsStore is a map-backed implementation of settings.Store.
type MockSettingsStore struct {
	mu     sync.Mutex
	values map[string]string

	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key, value string) error
}

func NewMockSettingsStore(values map[string]string) *MockSettingsStore {
	if values == nil {
		values = make(map[string]string)
	}
	return &MockSettingsStore{values: values}
}

func (m *MockSettingsStore) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", settings.ErrNotFound
	}
	return v, nil
}

func (m *MockSettingsStore) Set(ctx context.Context, key, value string) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MockSettingsStore) GetAll(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

// --- Customer Link Repository Mock ---

// MockCustomerLinkRepository is a map-backed implementation of
// processor.CustomerLinkRepository with first-write-wins upsert semantics,
// matching the database unique constraint.
type MockCustomerLinkRepository struct {
	mu    sync.Mutex
	links map[string]*processor.CustomerLink

	GetFunc    func(ctx context.Context, memberID string, kind processor.Kind) (*processor.CustomerLink, error)
	UpsertFunc func(ctx context.Context, link *processor.CustomerLink) (*processor.CustomerLink, error)

	UpsertCalls int
}

func NewMockCustomerLinkRepository() *MockCustomerLinkRepository {
	return &MockCustomerLinkRepository{links: make(map[string]*processor.CustomerLink)}
}

func linkKey(memberID string, kind processor.Kind) string {
	return memberID + "|" + string(kind)
}

func (m *MockCustomerLinkRepository) Get(ctx context.Context, memberID string, kind processor.Kind) (*processor.CustomerLink, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, memberID, kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[linkKey(memberID, kind)]
	if !ok {
		return nil, domainErrors.ErrCustomerLinkNotFound
	}
	return link, nil
}

func (m *MockCustomerLinkRepository) Upsert(ctx context.Context, link *processor.CustomerLink) (*processor.CustomerLink, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, link)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	key := linkKey(link.MemberID, link.Processor)
	if existing, ok := m.links[key]; ok {
		return existing, nil
	}
	m.links[key] = link
	return link, nil
}

// --- Session Repository Mock ---

// MockSessionRepository is a map-backed implementation of
// processor.SessionRepository.
type MockSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*processor.CheckoutSession

	CreateFunc       func(ctx context.Context, s *processor.CheckoutSession) error
	GetByOrderIDFunc func(ctx context.Context, kind processor.Kind, orderID string) (*processor.CheckoutSession, error)
	UpdateStateFunc  func(ctx context.Context, sessionID string, state processor.SessionState, receiptURL string) error
	ListPendingFunc  func(ctx context.Context, limit int) ([]*processor.CheckoutSession, error)
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{sessions: make(map[string]*processor.CheckoutSession)}
}

func (m *MockSessionRepository) Create(ctx context.Context, s *processor.CheckoutSession) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.SessionID] = &cp
	return nil
}

func (m *MockSessionRepository) GetByOrderID(ctx context.Context, kind processor.Kind, orderID string) (*processor.CheckoutSession, error) {
	if m.GetByOrderIDFunc != nil {
		return m.GetByOrderIDFunc(ctx, kind, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Processor == kind && (s.OrderID == orderID || s.SessionID == orderID) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domainErrors.ErrSessionNotFound
}

func (m *MockSessionRepository) UpdateState(ctx context.Context, sessionID string, state processor.SessionState, receiptURL string) error {
	if m.UpdateStateFunc != nil {
		return m.UpdateStateFunc(ctx, sessionID, state, receiptURL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return domainErrors.ErrSessionNotFound
	}
	s.State = state
	if receiptURL != "" {
		s.ReceiptURL = receiptURL
	}
	return nil
}

func (m *MockSessionRepository) ListPending(ctx context.Context, limit int) ([]*processor.CheckoutSession, error) {
	if m.ListPendingFunc != nil {
		return m.ListPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*processor.CheckoutSession
	for _, s := range m.sessions {
		if s.State == processor.SessionPending && len(out) < limit {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Session returns the stored session by id, for assertions.
func (m *MockSessionRepository) Session(sessionID string) *processor.CheckoutSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

// --- Gateway Mock ---

// MockGateway is a configurable implementation of gateway.Gateway plus the
// optional capture and receipt interfaces. See MockVaultGateway for the vault
// capability.
type MockGateway struct {
	KindValue processor.Kind

	CreateCheckoutFunc      func(ctx context.Context, req gateway.CheckoutRequest) (*processor.CheckoutSessionResult, error)
	CreateRefundFunc        func(ctx context.Context, req gateway.RefundRequest) (string, error)
	CreateCustomerFunc      func(ctx context.Context, req gateway.CustomerRequest) (string, error)
	ListPaymentMethodsFunc  func(ctx context.Context, customerID string) ([]processor.VaultedPaymentMethod, error)
	DeletePaymentMethodFunc func(ctx context.Context, customerID, methodID string) error
	GetOrderStatusFunc      func(ctx context.Context, orderID string) (processor.OrderStatus, error)
	VerifyWebhookFunc       func(ctx context.Context, req gateway.WebhookRequest) error
	CaptureOrderFunc        func(ctx context.Context, orderID string) (*gateway.Capture, error)
	GetReceiptURLFunc       func(ctx context.Context, orderID string) (string, error)

	CreateCustomerCalls int
}

func (m *MockGateway) Kind() processor.Kind { return m.KindValue }

func (m *MockGateway) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*processor.CheckoutSessionResult, error) {
	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, req)
	}
	return &processor.CheckoutSessionResult{
		URL:       "https://pay.example.com/session",
		SessionID: "sess_mock",
		OrderID:   "order_mock",
	}, nil
}

func (m *MockGateway) CreateRefund(ctx context.Context, req gateway.RefundRequest) (string, error) {
	if m.CreateRefundFunc != nil {
		return m.CreateRefundFunc(ctx, req)
	}
	return "refund_mock", nil
}

func (m *MockGateway) CreateCustomer(ctx context.Context, req gateway.CustomerRequest) (string, error) {
	m.CreateCustomerCalls++
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, req)
	}
	return "cust_mock", nil
}

func (m *MockGateway) ListPaymentMethods(ctx context.Context, customerID string) ([]processor.VaultedPaymentMethod, error) {
	if m.ListPaymentMethodsFunc != nil {
		return m.ListPaymentMethodsFunc(ctx, customerID)
	}
	return nil, nil
}

func (m *MockGateway) DeletePaymentMethod(ctx context.Context, customerID, methodID string) error {
	if m.DeletePaymentMethodFunc != nil {
		return m.DeletePaymentMethodFunc(ctx, customerID, methodID)
	}
	return nil
}

func (m *MockGateway) GetOrderStatus(ctx context.Context, orderID string) (processor.OrderStatus, error) {
	if m.GetOrderStatusFunc != nil {
		return m.GetOrderStatusFunc(ctx, orderID)
	}
	return processor.OrderCreated, nil
}

func (m *MockGateway) VerifyWebhook(ctx context.Context, req gateway.WebhookRequest) error {
	if m.VerifyWebhookFunc != nil {
		return m.VerifyWebhookFunc(ctx, req)
	}
	return nil
}

func (m *MockGateway) GetReceiptURL(ctx context.Context, orderID string) (string, error) {
	if m.GetReceiptURLFunc != nil {
		return m.GetReceiptURLFunc(ctx, orderID)
	}
	return "", nil
}

func (m *MockGateway) CaptureOrder(ctx context.Context, orderID string) (*gateway.Capture, error) {
	if m.CaptureOrderFunc != nil {
		return m.CaptureOrderFunc(ctx, orderID)
	}
	return &gateway.Capture{CaptureID: "cap_mock", Status: processor.OrderCompleted}, nil
}

// MockVaultGateway extends MockGateway with the vault capability. Kept as a
// separate type so tests can exercise gateways that do not vault.
type MockVaultGateway struct {
	MockGateway

	CreateVaultSetupTokenFunc  func(ctx context.Context, customerID, returnURL, cancelURL string) (string, string, error)
	ConfirmVaultSetupTokenFunc func(ctx context.Context, setupTokenID string) (string, error)
	ChargeVaultedTokenFunc     func(ctx context.Context, paymentTokenID string, amountCents int64, currency, description string) (string, error)
}

func (m *MockVaultGateway) CreateVaultSetupToken(ctx context.Context, customerID, returnURL, cancelURL string) (string, string, error) {
	if m.CreateVaultSetupTokenFunc != nil {
		return m.CreateVaultSetupTokenFunc(ctx, customerID, returnURL, cancelURL)
	}
	return "setup_mock", "https://pay.example.com/approve", nil
}

func (m *MockVaultGateway) ConfirmVaultSetupToken(ctx context.Context, setupTokenID string) (string, error) {
	if m.ConfirmVaultSetupTokenFunc != nil {
		return m.ConfirmVaultSetupTokenFunc(ctx, setupTokenID)
	}
	return "token_mock", nil
}

func (m *MockVaultGateway) ChargeVaultedToken(ctx context.Context, paymentTokenID string, amountCents int64, currency, description string) (string, error) {
	if m.ChargeVaultedTokenFunc != nil {
		return m.ChargeVaultedTokenFunc(ctx, paymentTokenID, amountCents, currency, description)
	}
	return "capture_mock", nil
}

// --- Locker Mock ---

// MockLocker serializes sections with a process-local mutex per key.
type MockLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	WithLockFunc func(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{locks: make(map[string]*sync.Mutex)}
}

func (m *MockLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if m.WithLockFunc != nil {
		return m.WithLockFunc(ctx, key, fn)
	}
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}
