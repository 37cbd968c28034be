package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Go-ku/landlord-app-sub001/internal/mobilemoney"
	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/service"
	"github.com/Go-ku/landlord-app-sub001/internal/testutil"
	"github.com/Go-ku/landlord-app-sub001/pkg/jwtutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const callbackSecret = "callback-secret"

var clock = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

type api struct {
	t   *testing.T
	e   *echo.Echo
	db  *gorm.DB
	jwt *jwtutil.JWTUtil
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db := testutil.NewDB(t)
	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "server-test", ExpirationHours: 1})
	svc := service.New(db, nil, service.Options{
		Currency:    "ZMW",
		CountryCode: "260",
		PortalURL:   "https://portal.example",
		JWT:         jwt,
		Now:         func() time.Time { return clock },
	})
	e := New(Deps{
		DB:             db,
		Services:       svc,
		JWT:            jwt,
		CallbackSecret: callbackSecret,
	})
	return &api{t: t, e: e, db: db, jwt: jwt}
}

func (a *api) token(u *model.User) string {
	a.t.Helper()
	token, _, err := a.jwt.GenerateToken(u.Email, u.ID, string(u.Role))
	require.NoError(a.t, err)
	return token
}

func (a *api) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["error"]
}

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = a.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "landlord_http_requests_total")
}

func TestRegisterLoginAndProfile(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodPost, "/auth/register", "", echo.Map{
		"email":      "Owner@Example.com",
		"password":   "long-enough",
		"first_name": "Mwila",
		"last_name":  "Banda",
		"phone":      "0977123456",
		"role":       "landlord",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode[model.User](t, rec)
	assert.Equal(t, "owner@example.com", user.Email)
	assert.Equal(t, model.RoleLandlord, user.Role)
	assert.NotContains(t, rec.Body.String(), "long-enough")

	rec = a.do(http.MethodPost, "/auth/register", "", echo.Map{
		"email": "admin@example.com", "password": "long-enough", "first_name": "A", "last_name": "B", "role": "admin",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/auth/register", "", echo.Map{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/auth/login", "", echo.Map{"email": "owner@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/auth/login", "", echo.Map{"email": "owner@example.com", "password": "long-enough"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[service.LoginResult](t, rec)
	require.NotEmpty(t, login.Token)

	rec = a.do(http.MethodGet, "/api/users/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/api/users/profile", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.ID, decode[model.User](t, rec).ID)

	rec = a.do(http.MethodPatch, "/api/users/profile", login.Token, echo.Map{"first_name": "Chola"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Chola", decode[model.User](t, rec).FirstName)

	rec = a.do(http.MethodGet, "/api/users/permissions", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	perms := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "landlord", perms["role"])
}

func TestRentCycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	landlord := testutil.User(t, a.db, model.RoleLandlord)
	tenant := testutil.User(t, a.db, model.RoleTenant)
	property := testutil.Property(t, a.db, landlord, nil)
	owner, renter := a.token(landlord), a.token(tenant)

	rec := a.do(http.MethodPost, "/api/leases", owner, echo.Map{
		"property_id":     property.ID,
		"tenant_id":       tenant.ID,
		"unit":            "A1",
		"start_date":      "2024-03-01",
		"end_date":        "2025-02-28",
		"monthly_rent":    1200,
		"payment_due_day": 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	lease := decode[model.Lease](t, rec)
	assert.Equal(t, model.LeaseDraft, lease.Status)

	rec = a.do(http.MethodPost, "/api/invoices/generate", owner, echo.Map{"lease_id": lease.ID, "month": "2024-03"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	invoice := decode[model.Invoice](t, rec)
	assert.Equal(t, 1200.0, invoice.Total)
	assert.Equal(t, "2024-03-05", invoice.DueDate.Format("2006-01-02"))

	rec = a.do(http.MethodPost, "/api/invoices/generate", owner, echo.Map{"lease_id": lease.ID, "month": "March"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	payment := echo.Map{
		"lease_id":   lease.ID,
		"invoice_id": invoice.ID,
		"amount":     1200,
		"method":     "bank_transfer",
		"reference":  "BANK-42",
	}
	rec = a.do(http.MethodPost, "/api/payments", renter, payment)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	recorded := decode[model.Payment](t, rec)
	assert.Equal(t, model.PaymentPending, recorded.Status)

	rec = a.do(http.MethodPost, "/api/payments", renter, payment)
	require.Equal(t, http.StatusOK, rec.Code, "a replayed reference returns the original payment")
	assert.Equal(t, recorded.ID, decode[model.Payment](t, rec).ID)

	verifyPath := fmt.Sprintf("/api/payments/%d/verify", recorded.ID)
	rec = a.do(http.MethodPost, verifyPath, renter, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodPost, verifyPath, owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.PaymentVerified, decode[model.Payment](t, rec).Status)

	rec = a.do(http.MethodGet, fmt.Sprintf("/api/leases/%d", lease.ID), renter, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.LeaseActive, decode[model.Lease](t, rec).Status)

	rec = a.do(http.MethodGet, fmt.Sprintf("/api/invoices/%d", invoice.ID), owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.InvoicePaid, decode[model.Invoice](t, rec).Status)

	rec = a.do(http.MethodPut, fmt.Sprintf("/api/invoices/%d", invoice.ID), owner, echo.Map{"notes": "late"})
	assert.Equal(t, http.StatusConflict, rec.Code, "paid invoices are no longer editable")

	rec = a.do(http.MethodGet, fmt.Sprintf("/api/leases/%d/reminder", lease.ID), owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reminder := decode[service.Reminder](t, rec)
	assert.True(t, strings.HasPrefix(reminder.WhatsApp, "https://wa.me/260"))
	assert.Contains(t, reminder.Calendar, "calendar.google.com")

	rec = a.do(http.MethodGet, "/api/dashboard", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dashboard := decode[service.Dashboard](t, rec)
	assert.Equal(t, int64(1), dashboard.ActiveLeases)
	assert.Equal(t, 1200.0, dashboard.RevenueThisMonth)
}

func TestRoleFiltering(t *testing.T) {
	a := newAPI(t)
	landlord := testutil.User(t, a.db, model.RoleLandlord)
	stranger := testutil.User(t, a.db, model.RoleLandlord)
	tenant := testutil.User(t, a.db, model.RoleTenant)
	rented := testutil.Property(t, a.db, landlord, nil)
	testutil.Property(t, a.db, landlord, nil)
	lease := testutil.Lease(t, a.db, rented, tenant, model.LeaseActive, testutil.Date(2024, 1, 1))

	rec := a.do(http.MethodGet, "/api/properties", a.token(landlord), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Property](t, rec), 2)

	rec = a.do(http.MethodGet, "/api/properties", a.token(tenant), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	visible := decode[[]model.Property](t, rec)
	require.Len(t, visible, 1)
	assert.Equal(t, rented.ID, visible[0].ID)

	rec = a.do(http.MethodPost, "/api/properties", a.token(tenant), echo.Map{"name": "Mine", "address": "1 Road"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodGet, fmt.Sprintf("/api/leases/%d", lease.ID), a.token(stranger), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodGet, "/api/leases", a.token(stranger), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]model.Lease](t, rec))
}

func TestRequestErrors(t *testing.T) {
	a := newAPI(t)
	landlord := testutil.User(t, a.db, model.RoleLandlord)
	token := a.token(landlord)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"bad id", http.MethodGet, "/api/leases/abc", nil, http.StatusBadRequest},
		{"missing lease", http.MethodGet, "/api/leases/999", nil, http.StatusNotFound},
		{"missing fields", http.MethodPost, "/api/leases", echo.Map{"unit": "A1"}, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/api/leases", echo.Map{
			"property_id": 1, "tenant_id": 1, "start_date": "01/03/2024", "end_date": "2025-02-28", "monthly_rent": 100,
		}, http.StatusBadRequest},
		{"bad filter", http.MethodGet, "/api/invoices?lease_id=x", nil, http.StatusBadRequest},
		{"unknown report", http.MethodGet, "/api/reports/weather", nil, http.StatusNotFound},
		{"bad method", http.MethodPost, "/api/payments", echo.Map{"lease_id": 1, "amount": 10, "method": "barter"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt.method, tt.path, token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, errorOf(t, rec))
		})
	}
}

func TestMaintenanceOverHTTP(t *testing.T) {
	a := newAPI(t)
	landlord := testutil.User(t, a.db, model.RoleLandlord)
	tenant := testutil.User(t, a.db, model.RoleTenant)
	property := testutil.Property(t, a.db, landlord, nil)
	testutil.Lease(t, a.db, property, tenant, model.LeaseActive, testutil.Date(2024, 1, 1))

	rec := a.do(http.MethodPost, "/api/maintenance", a.token(tenant), echo.Map{
		"property_id": property.ID,
		"title":       "Geyser broken",
		"description": "No **hot** water",
		"priority":    "high",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ticket := decode[model.MaintenanceRequest](t, rec)
	assert.Equal(t, model.MaintenanceOpen, ticket.Status)
	assert.Contains(t, ticket.DescriptionHTML, "<strong>hot</strong>")

	statusPath := fmt.Sprintf("/api/maintenance/%d/status", ticket.ID)
	rec = a.do(http.MethodPost, statusPath, a.token(tenant), echo.Map{"status": "in_progress"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodPost, statusPath, a.token(landlord), echo.Map{"status": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.MaintenanceInProgress, decode[model.MaintenanceRequest](t, rec).Status)

	rec = a.do(http.MethodPost, statusPath, a.token(landlord), echo.Map{"status": "closed"})
	assert.Equal(t, http.StatusConflict, rec.Code, "a ticket is resolved before it is closed")
}

func TestReportExport(t *testing.T) {
	a := newAPI(t)
	landlord := testutil.User(t, a.db, model.RoleLandlord)
	tenant := testutil.User(t, a.db, model.RoleTenant)
	property := testutil.Property(t, a.db, landlord, nil)
	lease := testutil.Lease(t, a.db, property, tenant, model.LeaseActive, testutil.Date(2024, 1, 1))
	testutil.Payment(t, a.db, lease, model.PaymentVerified, model.MethodCash, 500, testutil.Date(2024, 2, 1))
	testutil.Payment(t, a.db, lease, model.PaymentVerified, model.MethodCash, 700, testutil.Date(2024, 3, 1))

	rec := a.do(http.MethodGet, "/api/reports/payments_by_method?from=2024-01-01&to=2024-04-01", a.token(landlord), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "payments_by_method", decode[map[string]interface{}](t, rec)["name"])

	rec = a.do(http.MethodGet, "/api/reports/payments_by_method/export?from=2024-01-01&to=2024-04-01", a.token(landlord), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "payments_by_method.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "method,count,total", lines[0])
	assert.Equal(t, "cash,2,1200.00", lines[1])

	rec = a.do(http.MethodGet, "/api/reports/revenue/export", a.token(tenant), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMobileMoneyCallbackAuth(t *testing.T) {
	a := newAPI(t)
	landlord := testutil.User(t, a.db, model.RoleLandlord)
	tenant := testutil.User(t, a.db, model.RoleTenant)
	property := testutil.Property(t, a.db, landlord, nil)
	lease := testutil.Lease(t, a.db, property, tenant, model.LeaseDraft, testutil.Date(2024, 3, 1))
	payment := testutil.Payment(t, a.db, lease, model.PaymentPending, model.MethodMobileMoney, 1200, testutil.Date(2024, 3, 9))

	body := mobilemoney.Callback{Reference: payment.Reference, ProviderReference: "MTN-1", Status: mobilemoney.StatusSuccessful}

	rec := a.do(http.MethodPost, "/api/payments/callback", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/api/payments/callback", "", body, mobilemoney.SecretHeader, "guess")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/api/payments/callback", "", mobilemoney.Callback{Reference: "nope", Status: mobilemoney.StatusFailed},
		mobilemoney.SecretHeader, callbackSecret)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodPost, "/api/payments/callback", "", mobilemoney.Callback{Reference: payment.Reference, Status: "MAYBE"},
		mobilemoney.SecretHeader, callbackSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/api/payments/callback", "", body, mobilemoney.SecretHeader, callbackSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.PaymentVerified, decode[model.Payment](t, rec).Status)

	rec = a.do(http.MethodGet, fmt.Sprintf("/api/leases/%d", lease.ID), a.token(landlord), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.LeaseActive, decode[model.Lease](t, rec).Status)
}

func TestMobileMoneyWithoutProvider(t *testing.T) {
	a := newAPI(t)
	landlord := testutil.User(t, a.db, model.RoleLandlord)
	tenant := testutil.User(t, a.db, model.RoleTenant)
	property := testutil.Property(t, a.db, landlord, nil)
	lease := testutil.Lease(t, a.db, property, tenant, model.LeaseActive, testutil.Date(2024, 1, 1))

	rec := a.do(http.MethodPost, "/api/payments/mobile-money", a.token(tenant), echo.Map{
		"lease_id": lease.ID, "amount": 1200, "phone_number": "0977123456",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
