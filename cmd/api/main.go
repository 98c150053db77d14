package main

import (
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/rajanms/emitrack/pkg/config"
	"github.com/rajanms/emitrack/pkg/forecast"
	"github.com/rajanms/emitrack/pkg/ledger"
	"github.com/rajanms/emitrack/pkg/models"
	"github.com/rajanms/emitrack/pkg/schedule"
	"github.com/rajanms/emitrack/pkg/store"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
}

func NewServer(s store.Storage) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s),
		storage: s,
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// isBadRequest reports whether err is a caller mistake rather than a server
// fault.
func isBadRequest(err error) bool {
	switch {
	case errors.Is(err, forecast.ErrInvalidAmount),
		errors.Is(err, forecast.ErrInvalidMonth),
		errors.Is(err, forecast.ErrInvalidPercent),
		errors.Is(err, ledger.ErrInvalidPrincipal),
		errors.Is(err, ledger.ErrInvalidTerm),
		errors.Is(err, ledger.ErrComponentMismatch),
		errors.Is(err, ledger.ErrUnexpectedInterest),
		errors.Is(err, ledger.ErrUnexpectedPrincipal),
		errors.Is(err, ledger.ErrChargesOnly):
		return true
	}
	return false
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case isBadRequest(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Internal error: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var loan models.Loan
	if err := json.NewDecoder(r.Body).Decode(&loan); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := s.ledger.CreateLoan(&loan)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, loans)
}

func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}

	var loan models.Loan
	if err := json.NewDecoder(r.Body).Decode(&loan); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	loan.ID = loanID // Ensure ID from URL is used

	if err := s.ledger.UpdateLoan(&loan); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, loan)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.DeleteLoan(loanID); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}

	var payment models.Payment
	if err := json.NewDecoder(r.Body).Decode(&payment); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	payment.LoanID = loanID

	created, err := s.ledger.RecordPayment(&payment)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	payments, err := s.ledger.GetPaymentsForLoan(loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, payments)
}

func (s *Server) updatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := parseID(w, r)
	if !ok {
		return
	}

	existing, err := s.ledger.GetPayment(paymentID)
	if err != nil {
		handleError(w, err)
		return
	}

	var payment models.Payment
	if err := json.NewDecoder(r.Body).Decode(&payment); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	payment.ID = paymentID
	payment.LoanID = existing.LoanID

	if _, err := s.ledger.UpdatePayment(&payment); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, payment)
}

func (s *Server) deletePaymentHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := parseID(w, r)
	if !ok {
		return
	}
	if _, err := s.ledger.DeletePayment(paymentID); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) seedPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	seeded, err := s.ledger.SeedScheduledPayments(loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, seeded)
}

func (s *Server) upcomingPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	upcoming, err := s.ledger.UpcomingPayments(loanID, time.Now(), 12)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, upcoming)
}

func (s *Server) changeRateHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}

	var req struct {
		Rate          decimal.Decimal `json:"rate"`
		EffectiveDate time.Time       `json:"effective_date"`
		Reason        string          `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rc, err := s.ledger.ChangeRate(loanID, req.Rate, req.EffectiveDate, req.Reason)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rc)
}

func (s *Server) listRateChangesHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	changes, err := s.ledger.GetRateChangesForLoan(loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, changes)
}

func (s *Server) addDisbursementHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Date   time.Time       `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d, err := s.ledger.AddDisbursement(loanID, req.Amount, req.Date)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func (s *Server) listDisbursementsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	disbursements, err := s.ledger.GetDisbursementsForLoan(loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, disbursements)
}

func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		handleError(w, err)
		return
	}

	gen := schedule.NewGenerator(schedule.Terms{
		Principal:    loan.PrincipalAmount,
		AnnualRate:   loan.InterestRate,
		TenureMonths: loan.TermMonths,
		EMI:          loan.EMIAmount,
		StartDate:    loan.StartDate,
		Frequency:    loan.PaymentFrequency,
	})
	rows := gen.Standard()

	respondJSON(w, http.StatusOK, struct {
		Schedule schedule.Schedule `json:"schedule"`
		Summary  schedule.Summary  `json:"summary"`
	}{rows, gen.Summarize(rows)})
}

func (s *Server) hybridScheduleHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	f, err := forecast.NewForecaster(s.storage, loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	rows, err := f.HybridSchedule()
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (s *Server) baselineHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	f, err := forecast.NewForecaster(s.storage, loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, f.Baseline())
}

func (s *Server) lumpsumHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Month  int             `json:"month"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f, err := forecast.NewForecaster(s.storage, loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	sc, err := f.Lumpsum(req.Amount, req.Month)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		Scenario forecast.Scenario      `json:"scenario"`
		Savings  forecast.SavingsReport `json:"savings"`
	}{sc, f.Savings(sc)})
}

func (s *Server) recurringHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Percent    decimal.Decimal `json:"percent"`
		StartMonth int             `json:"start_month"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f, err := forecast.NewForecaster(s.storage, loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	sc, err := f.RecurringIncrease(req.Percent, req.StartMonth)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		Scenario forecast.Scenario      `json:"scenario"`
		Savings  forecast.SavingsReport `json:"savings"`
	}{sc, f.Savings(sc)})
}

func (s *Server) customForecastHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Events []schedule.PrepaymentEvent `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f, err := forecast.NewForecaster(s.storage, loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	sc, err := f.CustomPrepayments(req.Events)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		Scenario forecast.Scenario      `json:"scenario"`
		Savings  forecast.SavingsReport `json:"savings"`
	}{sc, f.Savings(sc)})
}

func (s *Server) timingSweepHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount  decimal.Decimal `json:"amount"`
		Horizon int             `json:"horizon_months"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f, err := forecast.NewForecaster(s.storage, loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	results, err := f.OptimalPrepaymentTiming(req.Amount, req.Horizon)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (s *Server) breakevenHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		TargetMonthsSaved int `json:"target_months_saved"`
		Month             int `json:"month"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f, err := forecast.NewForecaster(s.storage, loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	result, err := f.BreakevenPrepayment(req.TargetMonthsSaved, req.Month)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		Found  bool                      `json:"found"`
		Result *forecast.BreakevenResult `json:"result,omitempty"`
	}{result != nil, result})
}

func (s *Server) saveScenarioHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name       string              `json:"name"`
		Type       models.ScenarioType `json:"type"`
		Value      decimal.Decimal     `json:"value"`
		StartMonth int                 `json:"start_month"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f, err := forecast.NewForecaster(s.storage, loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	sc, err := f.SaveScenario(req.Name, req.Type, req.Value, req.StartMonth)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sc)
}

func (s *Server) listScenariosHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseID(w, r)
	if !ok {
		return
	}
	f, err := forecast.NewForecaster(s.storage, loanID)
	if err != nil {
		handleError(w, err)
		return
	}
	scenarios, err := f.LoadSavedScenarios()
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, scenarios)
}

func (s *Server) deleteScenarioHandler(w http.ResponseWriter, r *http.Request) {
	scenarioID, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.storage.DeleteScenario(scenarioID); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) portfolioHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.Portfolio()
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.updateLoanHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")

	router.HandleFunc("/loans/{id}/payments", s.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/payments/seed", s.seedPaymentsHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/payments/upcoming", s.upcomingPaymentsHandler).Methods("GET")
	router.HandleFunc("/payments/{id}", s.updatePaymentHandler).Methods("PUT")
	router.HandleFunc("/payments/{id}", s.deletePaymentHandler).Methods("DELETE")

	router.HandleFunc("/loans/{id}/rate-changes", s.listRateChangesHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/rate-changes", s.changeRateHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/disbursements", s.listDisbursementsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/disbursements", s.addDisbursementHandler).Methods("POST")

	router.HandleFunc("/loans/{id}/schedule", s.scheduleHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/schedule/hybrid", s.hybridScheduleHandler).Methods("GET")

	router.HandleFunc("/loans/{id}/forecast/baseline", s.baselineHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/forecast/lumpsum", s.lumpsumHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/forecast/recurring", s.recurringHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/forecast/custom", s.customForecastHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/forecast/timing", s.timingSweepHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/forecast/breakeven", s.breakevenHandler).Methods("POST")

	router.HandleFunc("/loans/{id}/scenarios", s.listScenariosHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/scenarios", s.saveScenarioHandler).Methods("POST")
	router.HandleFunc("/scenarios/{id}", s.deleteScenarioHandler).Methods("DELETE")

	router.HandleFunc("/portfolio", s.portfolioHandler).Methods("GET")

	return router
}

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore)

	log.Printf("Server starting on %s", cfg.ListenAddr)
	log.Fatal(http.ListenAndServe(cfg.ListenAddr, server.routes()))
}
