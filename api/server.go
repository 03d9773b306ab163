/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack, and the route table.
  This is the wiring layer between URLs and handlers.

MIDDLEWARE STACK:
  1. RequestID:  unique id per request for tracing
  2. RealIP:     honor proxy headers
  3. requestLog: one structured line per request
  4. Recoverer:  panic recovery (500 instead of crash)
  5. CORS:       cross-origin requests for the frontend
  6. requireAuth on everything below /api/v1 except login and refresh

ROUTE GROUPS:
  /api/v1/auth/*                 login, refresh, logout
  /api/v1/companies/*            tenant management (super admin)
  /api/v1/users                  account creation (admin)
  /api/v1/employees/*            employee masters, allowances, commute
  /api/v1/attendance             monthly attendance records
  /api/v1/periods/*              pay period derivation
  /api/v1/rates/*                insurance rates, tax brackets, limits
  /api/v1/payroll/*              calculate, confirm, cancel, history
  /api/v1/year-end/*             adjustment workflow, slip, certificates
  /api/v1/reports/*              ledger, journal, bank transfer, summary
  /api/v1/accounting-mappings    journal account routing

SEE ALSO:
  - handlers.go, yearend.go, reports.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the route table over a handler.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLog)
	r.Use(middleware.Recoverer)

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/login", h.Login)
		r.Post("/auth/refresh", h.Refresh)

		// Everything else requires a bearer token
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/auth/logout", h.Logout)

			// Tenant management
			r.Group(func(r chi.Router) {
				r.Use(h.requireSuperAdmin)
				r.Get("/companies", h.ListCompanies)
				r.Post("/companies", h.CreateCompany)
				r.Get("/companies/{id}", h.GetCompany)
				r.Put("/companies/{id}", h.UpdateCompany)
				r.Delete("/companies/{id}", h.DeleteCompany)
			})

			// Admin-only master data and payroll operations
			r.Group(func(r chi.Router) {
				r.Use(h.requireAdmin)

				r.Post("/users", h.CreateUser)

				r.Get("/employees", h.ListEmployees)
				r.Post("/employees", h.CreateEmployee)
				r.Put("/employees/{id}", h.UpdateEmployee)
				r.Delete("/employees/{id}", h.DeleteEmployee)
				r.Get("/employees/{id}/allowances", h.ListEmployeeAllowances)
				r.Post("/employees/{id}/allowances", h.CreateEmployeeAllowance)
				r.Get("/employees/{id}/commute", h.ListCommuteDetails)
				r.Post("/employees/{id}/commute", h.CreateCommuteDetail)

				r.Get("/allowance-types", h.ListAllowanceTypes)
				r.Post("/allowance-types", h.CreateAllowanceType)
				r.Put("/allowance-types/{id}", h.UpdateAllowanceType)

				r.Post("/rates/insurance", h.CreateInsuranceRate)
				r.Post("/rates/tax-brackets", h.CreateTaxBracket)
				r.Post("/rates/commute-limits", h.CreateCommuteLimit)

				r.Post("/attendance", h.UpsertAttendance)
				r.Get("/attendance", h.ListAttendance)

				r.Get("/periods", h.ListPeriods)
				r.Post("/periods", h.EnsurePeriod)

				r.Post("/payroll/calculate", h.Calculate)
				r.Get("/payroll/records", h.ListRecords)
				r.Post("/payroll/records/{id}/confirm", h.ConfirmRecord)
				r.Post("/payroll/records/{id}/cancel", h.CancelRecord)
				r.Get("/payroll/records/{id}/history", h.GetRecordHistory)

				r.Get("/reports/payroll-ledger", h.PayrollLedger)
				r.Get("/reports/accounting-journal", h.AccountingJournal)
				r.Get("/reports/bank-transfer", h.BankTransfer)
				r.Get("/reports/monthly-summary", h.MonthlySummary)

				r.Get("/accounting-mappings", h.ListAccountingMappings)
				r.Put("/accounting-mappings", h.UpsertAccountingMapping)
			})

			// Shared endpoints; per-resource visibility enforced inside
			r.Get("/employees/{id}", h.GetEmployee)
			r.Get("/payroll/records/{id}", h.GetRecord)

			r.Post("/year-end", h.CreateAdjustment)
			r.Get("/year-end", h.ListAdjustments)
			r.Get("/year-end/{id}", h.GetAdjustment)
			r.Put("/year-end/{id}", h.UpdateAdjustment)
			r.Post("/year-end/{id}/submit", h.SubmitAdjustment)
			r.Post("/year-end/{id}/approve", h.ApproveAdjustment)
			r.Post("/year-end/{id}/return", h.ReturnAdjustment)
			r.Post("/year-end/{id}/confirm", h.ConfirmAdjustment)
			r.Post("/year-end/{id}/slip", h.GenerateSlip)
			r.Get("/year-end/{id}/slip", h.GetSlip)
			r.Get("/year-end/{id}/history", h.GetAdjustmentHistory)
			r.Post("/year-end/{id}/certificates", h.AttachCertificate)
			r.Get("/year-end/{id}/certificates", h.ListCertificates)
		})
	})

	return r
}
