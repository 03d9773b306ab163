/*
Package store is the relational persistence layer.

PURPOSE:
  Implements the payroll.Store, yearend.Store, ratebook.Source, and
  calc.Masters interfaces plus the master-data repositories over gorm.
  Postgres is the production target; sqlite drives local development
  and integration tests.

TENANT ISOLATION:
  Every query filters by company_id explicitly. On postgres the
  transaction additionally sets the row-level-security session
  variables app.current_company_id and app.is_super_admin, so a missed
  filter fails closed.

CONCURRENCY:
  Status transitions are conditional updates (WHERE status = expected)
  checked for exactly one affected row. Single-draft-per-group is
  enforced by a partial unique index where the dialect supports it.
*/
package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kyuyo/payroll-engine/model"
	"github.com/kyuyo/payroll-engine/payroll"
	"github.com/kyuyo/payroll-engine/yearend"
)

// Store wraps a gorm handle. The zero value is not usable; construct
// with Open or New.
type Store struct {
	db       *gorm.DB
	postgres bool
}

// New wraps an existing gorm handle, for tests that open their own.
func New(db *gorm.DB, isPostgres bool) *Store {
	return &Store{db: db, postgres: isPostgres}
}

// Open connects using the DSN. postgres:// selects the postgres
// driver; anything else is treated as a sqlite path.
func Open(dsn string) (*Store, error) {
	var (
		db  *gorm.DB
		err error
		pg  bool
	)
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		pg = true
	} else {
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Store{db: db, postgres: pg}, nil
}

// Migrate creates or updates the schema, including the partial unique
// index backing single-draft-per-group.
func (s *Store) Migrate() error {
	err := s.db.AutoMigrate(
		&model.Company{},
		&model.User{},
		&model.Employee{},
		&model.AllowanceType{},
		&model.EmployeeAllowance{},
		&model.CommuteDetail{},
		&model.AttendanceRecord{},
		&model.PayrollPeriod{},
		&model.PayrollRecordGroup{},
		&model.PayrollRecord{},
		&model.PayrollRecordItem{},
		&model.PayrollSnapshot{},
		&model.PayrollHistory{},
		&model.YearEndAdjustment{},
		&model.YearEndHistory{},
		&model.WithholdingSlip{},
		&model.DeductionCertificate{},
		&model.InsuranceRate{},
		&model.IncomeTaxTable{},
		&model.CommuteTaxLimit{},
		&model.AccountingMapping{},
		&model.BankTransferExport{},
	)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	// Partial unique index: at most one draft record per group. Both
	// postgres and sqlite support the WHERE clause.
	if err := s.db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_payroll_records_single_draft
		 ON payroll_records (group_id) WHERE status = 'draft'`,
	).Error; err != nil {
		return fmt.Errorf("create single-draft index: %w", err)
	}
	return nil
}

// BindTenant sets the row-level-security session variables for the
// current transaction or session. No-op on sqlite.
func (s *Store) BindTenant(ctx context.Context, actor model.Actor) error {
	if !s.postgres {
		return nil
	}
	db := s.db.WithContext(ctx)
	if err := db.Exec("SELECT set_config('app.current_company_id', ?, true)", fmt.Sprint(actor.CompanyID)).Error; err != nil {
		return fmt.Errorf("bind tenant: %w", err)
	}
	isSuper := "false"
	if actor.Role == model.RoleSuperAdmin {
		isSuper = "true"
	}
	if err := db.Exec("SELECT set_config('app.is_super_admin', ?, true)", isSuper).Error; err != nil {
		return fmt.Errorf("bind tenant: %w", err)
	}
	return nil
}

// DB exposes the handle for repositories in this package.
func (s *Store) DB() *gorm.DB { return s.db }

// =============================================================================
// TRANSACTIONS
// =============================================================================

// InTx implements payroll.Store: every write inside fn commits or none
// do.
func (s *Store) InTx(ctx context.Context, fn func(tx payroll.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, postgres: s.postgres})
	})
}

// YearEnd returns the store as a yearend.Store.
func (s *Store) YearEnd() yearend.Store { return yearEndStore{s} }

type yearEndStore struct{ s *Store }

func (y yearEndStore) InTx(ctx context.Context, fn func(tx yearend.Store) error) error {
	return y.s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(yearEndStore{&Store{db: tx, postgres: y.s.postgres}})
	})
}
