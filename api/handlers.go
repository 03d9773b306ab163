/*
handlers.go - HTTP handlers for auth, masters, and payroll

PURPOSE:
  Exposes the payroll engine via REST. Handlers decode the request,
  resolve the acting user from the context, delegate to the domain
  services, and encode the result.

ENDPOINTS (see server.go for the full route table):
  Auth:       login / refresh / logout
  Companies:  super-admin tenant management
  Employees:  master data, allowances, commute
  Attendance: monthly minute totals
  Payroll:    calculate, confirm, cancel, record lookup

ERROR HANDLING:
  Domain errors map to HTTP statuses in writeDomainError:
  - 400 validation
  - 401 bad credentials / invalid token
  - 403 permission denied
  - 404 not found
  - 409 conflict, invalid state transitions
  - 500 everything else

SEE ALSO:
  - yearend.go:  year-end adjustment endpoints
  - reports.go:  export endpoints
  - middleware.go: auth middleware and response helpers
*/
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kyuyo/payroll-engine/auth"
	"github.com/kyuyo/payroll-engine/calc"
	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
	"github.com/kyuyo/payroll-engine/payroll"
	"github.com/kyuyo/payroll-engine/ratebook"
	"github.com/kyuyo/payroll-engine/store"
	"github.com/kyuyo/payroll-engine/yearend"
)

// Handler holds the dependencies of every endpoint.
type Handler struct {
	Store   *store.Store
	Auth    *auth.Manager
	Payroll *payroll.Service
	YearEnd *yearend.Service

	// Files is the root directory for uploaded certificate blobs.
	Files string

	log zerolog.Logger
}

// NewHandler wires the services.
func NewHandler(st *store.Store, am *auth.Manager, fileStoragePath string, log zerolog.Logger) *Handler {
	return &Handler{
		Store:   st,
		Auth:    am,
		Payroll: payroll.NewService(st, log),
		YearEnd: yearend.NewService(st.YearEnd(), log),
		Files:   fileStoragePath,
		log:     log,
	}
}

func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Validationf(name, "must be a positive integer")
	}
	return id, nil
}

// actorFor resolves the full actor for a user, including the linked
// employee identity.
func (h *Handler) actorFor(r *http.Request, u *model.User) (model.Actor, error) {
	actor := model.Actor{UserID: u.ID, CompanyID: u.CompanyID, Role: u.Role}
	emp, err := h.Store.EmployeeByUser(r.Context(), u.CompanyID, u.ID)
	if err != nil {
		return actor, err
	}
	if emp != nil {
		actor.EmployeeID = emp.ID
	}
	return actor, nil
}

// =============================================================================
// AUTH
// =============================================================================

// Login verifies the credentials and issues a token pair.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}

	user, err := h.Store.UserByUsername(r.Context(), req.Username)
	if err != nil {
		// Uniform response; do not reveal whether the user exists.
		h.writeDomainError(w, auth.ErrBadCredentials)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		h.writeDomainError(w, err)
		return
	}

	actor, err := h.actorFor(r, user)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	pair, err := h.Auth.Issue(r.Context(), actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.Store.TouchLastLogin(r.Context(), user.ID); err != nil {
		h.log.Warn().Err(err).Int64("user_id", user.ID).Msg("touch last login")
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		User: userDTO{
			ID:         user.ID,
			Username:   user.Username,
			FullName:   user.FullName,
			Role:       user.Role,
			CompanyID:  user.CompanyID,
			EmployeeID: actor.EmployeeID,
		},
	})
}

// Refresh rotates the refresh token and issues a fresh pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}

	userID, err := h.Auth.RefreshUserID(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	user, err := h.Store.User(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, auth.ErrInvalidToken)
		return
	}
	actor, err := h.actorFor(r, user)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if err := h.Auth.Revoke(r.Context(), nil, req.RefreshToken); err != nil {
		h.writeDomainError(w, err)
		return
	}
	pair, err := h.Auth.Issue(r.Context(), actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Logout revokes the access token and drops the refresh token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	_ = decode(r, &req) // body is optional

	var claims *auth.Claims
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		claims, _ = h.Auth.Verify(r.Context(), token)
	}
	if err := h.Auth.Revoke(r.Context(), claims, req.RefreshToken); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// COMPANIES (super admin)
// =============================================================================

func (h *Handler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.Store.Companies(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, companies)
}

func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var c model.Company
	if err := decode(r, &c); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.Store.CreateCompany(r.Context(), &c); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	c, err := h.Store.Company(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) UpdateCompany(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	existing, err := h.Store.Company(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := decode(r, existing); err != nil {
		h.writeDomainError(w, err)
		return
	}
	existing.ID = id
	if err := h.Store.SaveCompany(r.Context(), existing); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (h *Handler) DeleteCompany(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.Store.SoftDeleteCompany(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateUser registers an account in the actor's tenant.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	var req createUserRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		h.writeDomainError(w, errs.Validationf("username", "username and password are required"))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	user := &model.User{
		CompanyID:    actor.CompanyID,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
		Role:         req.Role,
		IsActive:     true,
	}
	if user.Role == "" {
		user.Role = model.RoleEmployee
	}
	if err := h.Store.CreateUser(r.Context(), user); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	employees, err := h.Store.Employees(r.Context(), actor.CompanyID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, employees)
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	var e model.Employee
	if err := decode(r, &e); err != nil {
		h.writeDomainError(w, err)
		return
	}
	e.CompanyID = actor.CompanyID
	if err := h.Store.CreateEmployee(r.Context(), &e); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !actor.IsAdmin() && actor.EmployeeID != id {
		h.writeDomainError(w, errs.ErrPermissionDenied)
		return
	}
	e, err := h.Store.Employee(r.Context(), actor.CompanyID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	existing, err := h.Store.Employee(r.Context(), actor.CompanyID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := decode(r, existing); err != nil {
		h.writeDomainError(w, err)
		return
	}
	existing.ID = id
	existing.CompanyID = actor.CompanyID
	if err := h.Store.SaveEmployee(r.Context(), existing); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.Store.SoftDeleteEmployee(r.Context(), actor.CompanyID, id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ALLOWANCES AND COMMUTE
// =============================================================================

func (h *Handler) ListAllowanceTypes(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	types, err := h.Store.AllowanceTypes(r.Context(), actor.CompanyID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (h *Handler) CreateAllowanceType(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	var at model.AllowanceType
	if err := decode(r, &at); err != nil {
		h.writeDomainError(w, err)
		return
	}
	at.CompanyID = actor.CompanyID
	if err := h.Store.CreateAllowanceType(r.Context(), &at); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, at)
}

func (h *Handler) ListEmployeeAllowances(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	allowances, err := h.Store.EmployeeAllowances(r.Context(), actor.CompanyID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allowances)
}

func (h *Handler) CreateEmployeeAllowance(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	var a model.EmployeeAllowance
	if err := decode(r, &a); err != nil {
		h.writeDomainError(w, err)
		return
	}
	a.CompanyID = actor.CompanyID
	a.EmployeeID = id
	if err := h.Store.CreateEmployeeAllowance(r.Context(), &a); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) ListCommuteDetails(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	details, err := h.Store.CommuteDetails(r.Context(), actor.CompanyID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) CreateCommuteDetail(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	var c model.CommuteDetail
	if err := decode(r, &c); err != nil {
		h.writeDomainError(w, err)
		return
	}
	c.CompanyID = actor.CompanyID
	c.EmployeeID = id
	if err := h.Store.CreateCommuteDetail(r.Context(), &c); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// =============================================================================
// ATTENDANCE AND PERIODS
// =============================================================================

// UpsertAttendance writes a month's record, replacing an earlier entry.
func (h *Handler) UpsertAttendance(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	var req attendanceRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if _, err := h.Store.Employee(r.Context(), actor.CompanyID, req.EmployeeID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	rec := req.toModel(actor.CompanyID)
	if err := h.Store.UpsertAttendance(r.Context(), rec); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	ym, err := queryYearMonth(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	records, err := h.Store.AttendanceForMonth(r.Context(), actor.CompanyID, ym)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func queryYearMonth(r *http.Request) (model.YearMonth, error) {
	raw := r.URL.Query().Get("year_month")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Validationf("year_month", "must be YYYYMM, got %q", raw)
	}
	ym := model.YearMonth(n)
	if !ym.Valid() {
		return 0, errs.Validationf("year_month", "invalid year-month %d", n)
	}
	return ym, nil
}

func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	periods, err := h.Store.Periods(r.Context(), actor.CompanyID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, periods)
}

// EnsurePeriod derives and stores the pay period for a month.
func (h *Handler) EnsurePeriod(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	ym, err := queryYearMonth(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	company, err := h.Store.Company(r.Context(), actor.CompanyID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	period, err := h.Store.EnsurePeriod(r.Context(), company, ym)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, period)
}

// =============================================================================
// PAYROLL
// =============================================================================

// Calculate runs the full calculation for one employee-month and stores
// the result as a draft record. Idempotent while a draft exists.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	var req calculateRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	ym := model.YearMonth(req.YearMonth)
	if !ym.Valid() {
		h.writeDomainError(w, errs.Validationf("year_month", "invalid year-month %d", req.YearMonth))
		return
	}

	ctx := r.Context()
	company, err := h.Store.Company(ctx, actor.CompanyID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	emp, err := h.Store.Employee(ctx, actor.CompanyID, req.EmployeeID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	period, err := h.Store.EnsurePeriod(ctx, company, ym)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	book := ratebook.New(h.Store, actor.CompanyID)
	calculator := calc.NewCalculator(h.Store, calc.NewInsuranceEngine(book, company), calc.NewTaxEngine(book), company)
	res, err := calculator.Calculate(ctx, emp, *period)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	rec, created, err := h.Payroll.CreateFromCalculation(ctx, actor, emp.ID, *period, res)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, calculateResponse{Record: rec, Created: created})
}

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	rec, err := h.Store.Record(r.Context(), actor.CompanyID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !actor.IsAdmin() && rec.EmployeeID != actor.EmployeeID {
		h.writeDomainError(w, errs.ErrPermissionDenied)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) GetRecordHistory(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	rows, err := h.Store.HistoryForRecord(r.Context(), actor.CompanyID, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// ConfirmRecord freezes a draft record and writes its snapshot.
func (h *Handler) ConfirmRecord(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	rec, err := h.Payroll.Confirm(r.Context(), actor, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CancelRecord voids a confirmed record and forks a fresh draft.
func (h *Handler) CancelRecord(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id, err := urlID(r, "id")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	var req cancelRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	cancelled, fork, err := h.Payroll.Cancel(r.Context(), actor, id, req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Cancelled: cancelled, Draft: fork})
}

// =============================================================================
// ACCOUNTING MAPPINGS
// =============================================================================

func (h *Handler) ListAccountingMappings(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	mappings, err := h.Store.AccountingMappings(r.Context(), actor.CompanyID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mappings)
}

func (h *Handler) UpsertAccountingMapping(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	var m model.AccountingMapping
	if err := decode(r, &m); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if m.ItemCode == "" || m.AccountCode == "" {
		h.writeDomainError(w, errs.Validationf("item_code", "item_code and account_code are required"))
		return
	}
	m.CompanyID = actor.CompanyID
	if err := h.Store.UpsertAccountingMapping(r.Context(), &m); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
