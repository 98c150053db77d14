package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/rajanms/emitrack/pkg/forecast"
	"github.com/rajanms/emitrack/pkg/ledger"
	"github.com/rajanms/emitrack/pkg/models"
	"github.com/rajanms/emitrack/pkg/store"
)

func setupTestServer() (*Server, *mux.Router) {
	server := NewServer(store.NewMemoryStore())
	return server, server.routes()
}

func createLoanViaAPI(t *testing.T, router *mux.Router) models.Loan {
	t.Helper()

	loanReq := map[string]interface{}{
		"name":             "Home loan",
		"loan_type":        "HOME",
		"bank_name":        "Test Bank",
		"principal_amount": "1000000",
		"interest_rate":    "8.5",
		"rate_type":        "FLOATING",
		"term_months":      240,
		"start_date":       "2025-01-05T00:00:00Z",
	}
	body, _ := json.Marshal(loanReq)
	req := httptest.NewRequest("POST", "/loans", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var created models.Loan
	json.Unmarshal(rr.Body.Bytes(), &created)
	return created
}

func TestAPI_CreateAndGetLoan(t *testing.T) {
	_, router := setupTestServer()

	created := createLoanViaAPI(t, router)

	if !created.EMIAmount.Equal(decimal.NewFromInt(8678)) {
		t.Errorf("Expected computed EMI 8678, got %s", created.EMIAmount)
	}
	if created.Status != models.LoanStatusActive {
		t.Errorf("Expected default status ACTIVE, got %s", created.Status)
	}

	req := httptest.NewRequest("GET", "/loans/"+created.ID.String(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var fetched models.Loan
	json.Unmarshal(rr.Body.Bytes(), &fetched)
	if fetched.ID != created.ID {
		t.Errorf("Expected ID %s, got %s", created.ID, fetched.ID)
	}
}

func TestAPI_GetLoanNotFound(t *testing.T) {
	_, router := setupTestServer()

	req := httptest.NewRequest("GET", "/loans/"+uuid.New().String(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestAPI_InvalidLoanRejected(t *testing.T) {
	_, router := setupTestServer()

	loanReq := map[string]interface{}{
		"name":             "Broken",
		"principal_amount": "-5",
		"interest_rate":    "8.5",
		"term_months":      240,
	}
	body, _ := json.Marshal(loanReq)
	req := httptest.NewRequest("POST", "/loans", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d. Body: %s", rr.Code, rr.Body.String())
	}
}

func TestAPI_RecordPaymentCascadesBalance(t *testing.T) {
	_, router := setupTestServer()
	loan := createLoanViaAPI(t, router)

	payReq := map[string]interface{}{
		"payment_date":        "2025-02-05T00:00:00Z",
		"principal_component": "1594.67",
		"interest_component":  "7083.33",
		"total_amount":        "8678",
		"type":                "EMI",
	}
	body, _ := json.Marshal(payReq)
	req := httptest.NewRequest("POST", "/loans/"+loan.ID.String()+"/payments", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest("GET", "/loans/"+loan.ID.String()+"/payments", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var payments []models.Payment
	json.Unmarshal(rr.Body.Bytes(), &payments)
	if len(payments) != 1 {
		t.Fatalf("Expected 1 payment, got %d", len(payments))
	}
	expected := decimal.RequireFromString("998405.33")
	if !payments[0].BalanceRemaining.Equal(expected) {
		t.Errorf("Expected balance %s after payment, got %s", expected, payments[0].BalanceRemaining)
	}
	if payments[0].Status != models.PaymentStatusPaid {
		t.Errorf("Expected default status PAID, got %s", payments[0].Status)
	}
}

func TestAPI_PaymentComponentMismatchRejected(t *testing.T) {
	_, router := setupTestServer()
	loan := createLoanViaAPI(t, router)

	payReq := map[string]interface{}{
		"payment_date":        "2025-02-05T00:00:00Z",
		"principal_component": "1000",
		"interest_component":  "1000",
		"total_amount":        "8678",
		"type":                "EMI",
	}
	body, _ := json.Marshal(payReq)
	req := httptest.NewRequest("POST", "/loans/"+loan.ID.String()+"/payments", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte(ledger.ErrComponentMismatch.Error())) {
		t.Errorf("Expected component mismatch message, got: %s", rr.Body.String())
	}
}

func TestAPI_Schedule(t *testing.T) {
	_, router := setupTestServer()
	loan := createLoanViaAPI(t, router)

	req := httptest.NewRequest("GET", "/loans/"+loan.ID.String()+"/schedule", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Schedule []struct {
			Balance decimal.Decimal `json:"balance"`
		} `json:"schedule"`
		Summary struct {
			ActualTenure int `json:"actual_tenure"`
		} `json:"summary"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Schedule) == 0 || resp.Summary.ActualTenure == 0 {
		t.Fatalf("Expected populated schedule and summary, got %d rows", len(resp.Schedule))
	}
	final := resp.Schedule[len(resp.Schedule)-1].Balance
	if !final.IsZero() {
		t.Errorf("Expected final balance 0, got %s", final)
	}
}

func TestAPI_ForecastLumpsum(t *testing.T) {
	_, router := setupTestServer()
	loan := createLoanViaAPI(t, router)

	body, _ := json.Marshal(map[string]interface{}{"amount": "200000", "month": 12})
	req := httptest.NewRequest("POST", "/loans/"+loan.ID.String()+"/forecast/lumpsum", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Scenario forecast.Scenario      `json:"scenario"`
		Savings  forecast.SavingsReport `json:"savings"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if !resp.Scenario.InterestSaved.IsPositive() {
		t.Errorf("Expected positive interest saved, got %s", resp.Scenario.InterestSaved)
	}
	if resp.Savings.MonthsSaved <= 0 {
		t.Errorf("Expected positive months saved, got %d", resp.Savings.MonthsSaved)
	}

	// Month outside the remaining term is a caller mistake.
	body, _ = json.Marshal(map[string]interface{}{"amount": "200000", "month": 999})
	req = httptest.NewRequest("POST", "/loans/"+loan.ID.String()+"/forecast/lumpsum", bytes.NewBuffer(body))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad month, got %d", rr.Code)
	}
}

func TestAPI_Breakeven(t *testing.T) {
	_, router := setupTestServer()
	loan := createLoanViaAPI(t, router)

	body, _ := json.Marshal(map[string]interface{}{"target_months_saved": 36, "month": 1})
	req := httptest.NewRequest("POST", "/loans/"+loan.ID.String()+"/forecast/breakeven", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Found  bool                      `json:"found"`
		Result *forecast.BreakevenResult `json:"result"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if !resp.Found || resp.Result == nil {
		t.Fatalf("Expected a breakeven hit for a 36-month target, got: %s", rr.Body.String())
	}

	// An impossible target is an empty result, not an error.
	body, _ = json.Marshal(map[string]interface{}{"target_months_saved": 500, "month": 1})
	req = httptest.NewRequest("POST", "/loans/"+loan.ID.String()+"/forecast/breakeven", bytes.NewBuffer(body))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Found {
		t.Errorf("Expected no breakeven for an unreachable target")
	}
}

func TestAPI_ScenarioLifecycle(t *testing.T) {
	_, router := setupTestServer()
	loan := createLoanViaAPI(t, router)

	body, _ := json.Marshal(map[string]interface{}{
		"name": "bonus", "type": "LUMPSUM", "value": "200000", "start_month": 12,
	})
	req := httptest.NewRequest("POST", "/loans/"+loan.ID.String()+"/scenarios", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var saved models.ForecastScenario
	json.Unmarshal(rr.Body.Bytes(), &saved)

	req = httptest.NewRequest("GET", "/loans/"+loan.ID.String()+"/scenarios", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var scenarios []forecast.Scenario
	json.Unmarshal(rr.Body.Bytes(), &scenarios)
	if len(scenarios) != 1 {
		t.Fatalf("Expected 1 regenerated scenario, got %d", len(scenarios))
	}
	if scenarios[0].Name != "bonus" {
		t.Errorf("Expected saved name restored, got %q", scenarios[0].Name)
	}
	if len(scenarios[0].Schedule) == 0 {
		t.Errorf("Expected regenerated schedule")
	}

	req = httptest.NewRequest("DELETE", "/scenarios/"+saved.ID.String(), nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}
}

func TestAPI_Portfolio(t *testing.T) {
	_, router := setupTestServer()
	createLoanViaAPI(t, router)

	req := httptest.NewRequest("GET", "/portfolio", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var summary ledger.PortfolioSummary
	json.Unmarshal(rr.Body.Bytes(), &summary)
	if summary.ActiveLoans != 1 {
		t.Errorf("Expected 1 active loan, got %d", summary.ActiveLoans)
	}
	if !summary.TotalOutstanding.Equal(decimal.NewFromInt(1000000)) {
		t.Errorf("Expected outstanding 1000000, got %s", summary.TotalOutstanding)
	}
}
