package checkout

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/access-gate/internal/apperr"
	"github.com/magabrotheeeer/access-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/access-gate/internal/models"
	"github.com/magabrotheeeer/access-gate/internal/paymentprovider"
)

// MockProvider реализует интерфейс checkout.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreateCustomer(ctx context.Context, params paymentprovider.CreateCustomerParams) (*paymentprovider.Customer, error) {
	args := m.Called(ctx, params)
	if customer, ok := args.Get(0).(*paymentprovider.Customer); ok {
		return customer, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) CreateCheckoutSession(ctx context.Context, params paymentprovider.CreateCheckoutSessionParams) (*paymentprovider.CheckoutSession, error) {
	args := m.Called(ctx, params)
	if session, ok := args.Get(0).(*paymentprovider.CheckoutSession); ok {
		return session, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRepository реализует интерфейс checkout.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if user, ok := args.Get(0).(*models.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) SetStripeCustomerID(ctx context.Context, userUID, customerID string) error {
	args := m.Called(ctx, userUID, customerID)
	return args.Error(0)
}

func (m *MockRepository) CreateAuditEntry(ctx context.Context, entry models.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func TestCheckoutHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts := Options{
		PriceID:    "price_basic",
		SuccessURL: "https://example.com/success",
		CancelURL:  "https://example.com/cancel",
	}
	userWithCustomer := &models.User{
		UID:              "uid-1",
		Email:            "user@example.com",
		StripeCustomerID: "cus_1",
	}
	userWithoutCustomer := &models.User{
		UID:   "uid-2",
		Email: "new@example.com",
	}

	tests := []struct {
		name           string
		userUID        string
		setupMocks     func(*MockProvider, *MockRepository)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:    "сессия для существующего клиента",
			userUID: "uid-1",
			setupMocks: func(p *MockProvider, r *MockRepository) {
				r.On("GetUser", mock.Anything, "uid-1").Return(userWithCustomer, nil)
				p.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(params paymentprovider.CreateCheckoutSessionParams) bool {
					return params.CustomerID == "cus_1" &&
						params.PriceID == "price_basic" &&
						params.ClientReferenceID == "uid-1"
				})).Return(&paymentprovider.CheckoutSession{
					ID:  "cs_1",
					URL: "https://billing.example.com/cs_1",
				}, nil)
				r.On("CreateAuditEntry", mock.Anything, mock.MatchedBy(func(e models.AuditEntry) bool {
					return e.EventType == "checkout_session_created"
				})).Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"checkout_url":"https://billing.example.com/cs_1"`,
		},
		{
			name:    "клиент создается при первом checkout",
			userUID: "uid-2",
			setupMocks: func(p *MockProvider, r *MockRepository) {
				r.On("GetUser", mock.Anything, "uid-2").Return(userWithoutCustomer, nil)
				p.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(params paymentprovider.CreateCustomerParams) bool {
					return params.Email == "new@example.com"
				})).Return(&paymentprovider.Customer{ID: "cus_2"}, nil)
				r.On("SetStripeCustomerID", mock.Anything, "uid-2", "cus_2").Return(nil)
				p.On("CreateCheckoutSession", mock.Anything, mock.AnythingOfType("paymentprovider.CreateCheckoutSessionParams")).
					Return(&paymentprovider.CheckoutSession{
						ID:  "cs_2",
						URL: "https://billing.example.com/cs_2",
					}, nil)
				r.On("CreateAuditEntry", mock.Anything, mock.AnythingOfType("models.AuditEntry")).Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"session_id":"cs_2"`,
		},
		{
			name:           "отсутствует авторизация",
			userUID:        "",
			setupMocks:     func(_ *MockProvider, _ *MockRepository) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `"error":"unauthorized"`,
		},
		{
			name:    "биллинг недоступен",
			userUID: "uid-1",
			setupMocks: func(p *MockProvider, r *MockRepository) {
				r.On("GetUser", mock.Anything, "uid-1").Return(userWithCustomer, nil)
				p.On("CreateCheckoutSession", mock.Anything, mock.AnythingOfType("paymentprovider.CreateCheckoutSessionParams")).
					Return(nil, apperr.New(apperr.KindUpstreamUnavailable, "billing provider unavailable"))
			},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `"kind":"upstream_unavailable"`,
		},
		{
			name:    "пользователь не найден",
			userUID: "uid-x",
			setupMocks: func(_ *MockProvider, r *MockRepository) {
				r.On("GetUser", mock.Anything, "uid-x").Return(nil, apperr.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"kind":"not_found"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockProvider := new(MockProvider)
			mockRepo := new(MockRepository)
			tt.setupMocks(mockProvider, mockRepo)

			handler := New(logger, mockProvider, mockRepo, opts)

			req := httptest.NewRequest(http.MethodPost, "/billing/checkout", nil)
			ctx := context.WithValue(req.Context(), middleware.RequestIDKey, "req-id")
			if tt.userUID != "" {
				ctx = context.WithValue(ctx, middlewarectx.UserUID, tt.userUID)
			}
			req = req.WithContext(ctx)

			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)

			mockProvider.AssertExpectations(t)
			mockRepo.AssertExpectations(t)
		})
	}
}
