package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mamadbah2/herdbook/internal/auth"
	"github.com/mamadbah2/herdbook/internal/domain/models"
	"github.com/mamadbah2/herdbook/internal/metrics"
	"github.com/mamadbah2/herdbook/internal/repository/memory"
	"github.com/mamadbah2/herdbook/internal/server/handlers"
	"github.com/mamadbah2/herdbook/internal/service/animals"
	"github.com/mamadbah2/herdbook/internal/service/customers"
	"github.com/mamadbah2/herdbook/internal/service/payments"
	"github.com/mamadbah2/herdbook/internal/service/reporting"
)

type testAPI struct {
	engine *gin.Engine
	token  string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	reg := prometheus.NewRegistry()
	monitor, err := metrics.NewMonitor(0, reg)
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}

	s := memory.New()
	registry := animals.NewRegistry(s, nil)
	customerSvc := customers.NewService(s, registry, monitor, nil)
	paymentSvc := payments.NewService(s, monitor, nil)
	reportSvc := reporting.NewService(customerSvc, s, nil, time.UTC, nil)

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	token, err := tokens.Issue("actor-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	engine := New(Handlers{
		Customers: handlers.NewCustomerHandler(customerSvc, paymentSvc, nil),
		Payments:  handlers.NewPaymentHandler(paymentSvc, nil),
		Animals:   handlers.NewAnimalHandler(registry, nil),
		Reports:   handlers.NewReportHandler(reportSvc, monitor, nil),
	}, tokens, monitor, reg, nil)

	return &testAPI{engine: engine, token: token}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	api := newTestAPI(t)
	api.token = ""
	expectStatus(t, api.do(t, http.MethodGet, "/api/customers", nil), http.StatusUnauthorized)

	api.token = "garbage"
	expectStatus(t, api.do(t, http.MethodGet, "/api/customers", nil), http.StatusUnauthorized)

	expectStatus(t, api.do(t, http.MethodGet, "/healthz", nil), http.StatusOK)
}

func TestCustomerLedgerFlow(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/customers", models.NewCustomer{Name: "Ahmad", Phone: "0599"})
	expectStatus(t, rec, http.StatusCreated)
	var customer models.Customer
	decode(t, rec, &customer)
	if customer.ID == "" {
		t.Fatalf("missing id")
	}
	base := "/api/customers/" + customer.ID

	rec = api.do(t, http.MethodPost, base+"/animals", models.AnimalInput{ID: "a1", Type: "cow", Number: "1", Weight: 500, PricePerUnit: 3, Status: models.AnimalReady})
	expectStatus(t, rec, http.StatusCreated)

	rec = api.do(t, http.MethodPost, base+"/payments", models.PaymentDetailInput{Parts: []models.PaymentPartInput{{Amount: 500, Currency: models.CurrencyNIS}}})
	expectStatus(t, rec, http.StatusCreated)

	rec = api.do(t, http.MethodPost, base+"/discount", models.DiscountRequest{Discount: 300, Reason: "loyal", AppliedBy: "owner"})
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &customer)
	if customer.FinalTotalAmount != 1200 || customer.Balance != 700 {
		t.Fatalf("expected final 1200 balance 700 got %v %v", customer.FinalTotalAmount, customer.Balance)
	}

	rec = api.do(t, http.MethodPost, base+"/discount", models.DiscountRequest{Discount: 5000, Reason: "r", AppliedBy: "a"})
	expectStatus(t, rec, http.StatusBadRequest)

	cancelled := models.AnimalCancelled
	rec = api.do(t, http.MethodPatch, base+"/animals/a1/details", models.AnimalUpdate{Status: &cancelled})
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	rec = api.do(t, http.MethodPatch, base+"/animals/a1", models.AnimalUpdate{Status: &cancelled})
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec = api.do(t, http.MethodGet, "/api/animals/duplicate?key=cow_1", nil)
	expectStatus(t, rec, http.StatusOK)
	var dup struct {
		Duplicate bool `json:"duplicate"`
	}
	decode(t, rec, &dup)
	if !dup.Duplicate {
		t.Fatalf("expected cow_1 to be registered")
	}
	rec = api.do(t, http.MethodGet, "/api/animals/duplicate?key=cow_1&exclude=a1&customer="+customer.ID, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &dup)
	if dup.Duplicate {
		t.Fatalf("the owning customer's own animal must not be a duplicate")
	}
	rec = api.do(t, http.MethodGet, "/api/animals/duplicate?key=cow_1&exclude=a1&customer=someone-else", nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &dup)
	if !dup.Duplicate {
		t.Fatalf("a reused animal id on another customer must be a duplicate")
	}

	rec = api.do(t, http.MethodGet, base+"/reconciliation", nil)
	expectStatus(t, rec, http.StatusOK)
	var reconciliation models.Reconciliation
	decode(t, rec, &reconciliation)
	if reconciliation.InSync || reconciliation.LedgerPaidNIS != 500 {
		t.Fatalf("unexpected reconciliation %+v", reconciliation)
	}

	rec = api.do(t, http.MethodGet, "/api/customers/search?q=ahm", nil)
	expectStatus(t, rec, http.StatusOK)
	var found []models.Customer
	decode(t, rec, &found)
	if len(found) != 1 {
		t.Fatalf("expected one search hit got %d", len(found))
	}

	rec = api.do(t, http.MethodGet, "/api/reports/balances?format=text", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "Outstanding: 700.00") {
		t.Fatalf("unexpected report %s", rec.Body.String())
	}

	expectStatus(t, api.do(t, http.MethodDelete, base, nil), http.StatusNoContent)
	expectStatus(t, api.do(t, http.MethodGet, base, nil), http.StatusNotFound)
}

func TestPaymentLogRoutes(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/payments", models.NewPayment{CustomerID: "c1", Amount: 40, Currency: models.CurrencyUSD, NISEquivalent: 150})
	expectStatus(t, rec, http.StatusCreated)
	var payment models.StoredPayment
	decode(t, rec, &payment)

	rec = api.do(t, http.MethodGet, "/api/payments/customer/c1", nil)
	expectStatus(t, rec, http.StatusOK)
	var byCustomer struct {
		Payments     []models.StoredPayment `json:"payments"`
		TotalPaidNIS float64                `json:"totalPaidNIS"`
	}
	decode(t, rec, &byCustomer)
	if len(byCustomer.Payments) != 1 || byCustomer.TotalPaidNIS != 150 {
		t.Fatalf("unexpected customer payments %+v", byCustomer)
	}

	expectStatus(t, api.do(t, http.MethodPost, "/api/payments", models.NewPayment{CustomerID: "c1", Amount: 10, Currency: models.CurrencyJOD}), http.StatusBadRequest)
	expectStatus(t, api.do(t, http.MethodPut, "/api/payments/"+payment.ID, models.NewPayment{CustomerID: "c1", Amount: 60}), http.StatusOK)
	expectStatus(t, api.do(t, http.MethodDelete, "/api/payments/"+payment.ID, nil), http.StatusNoContent)
	expectStatus(t, api.do(t, http.MethodDelete, "/api/payments/"+payment.ID, nil), http.StatusNotFound)
}

func TestPerformanceAndMetrics(t *testing.T) {
	api := newTestAPI(t)
	expectStatus(t, api.do(t, http.MethodGet, "/api/customers", nil), http.StatusOK)

	rec := api.do(t, http.MethodGet, "/api/performance", nil)
	expectStatus(t, rec, http.StatusOK)
	var report metrics.Report
	decode(t, rec, &report)
	if report.TotalMetrics == 0 {
		t.Fatalf("expected recorded metrics")
	}

	rec = api.do(t, http.MethodGet, "/metrics", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "herdbook_operation_duration_seconds") {
		t.Fatalf("histogram missing from /metrics")
	}
}
