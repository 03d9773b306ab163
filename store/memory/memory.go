/*
Package memory provides an in-memory store for tests and examples.

PURPOSE:
  Implements the payroll.Store, yearend.Store, ratebook.Source, and
  calc.Masters interfaces over plain maps. Not safe for production:
  InTx provides mutual exclusion but no rollback, so a failed
  transaction may leave partial writes. Tests that exercise rollback
  semantics belong against the SQL store.
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
	"github.com/kyuyo/payroll-engine/payroll"
	"github.com/kyuyo/payroll-engine/yearend"
)

// Store holds everything in maps keyed by id.
type Store struct {
	mu     sync.Mutex
	nextID int64

	Companies      map[int64]*model.Company
	Employees      map[int64]*model.Employee
	AttendanceRows []*model.AttendanceRecord
	Allowances  []*model.EmployeeAllowance
	Commutes    []*model.CommuteDetail
	Groups      map[int64]*model.PayrollRecordGroup
	Records     map[int64]*model.PayrollRecord
	Snapshots   map[int64]*model.PayrollSnapshot // keyed by record id
	History     []*model.PayrollHistory
	Adjustments map[int64]*model.YearEndAdjustment
	Slips       map[int64]*model.WithholdingSlip // keyed by adjustment id
	YEHistory   []*model.YearEndHistory

	InsuranceRateRows []model.InsuranceRate
	TaxRows           []model.IncomeTaxTable
	CommuteLimitRows  []model.CommuteTaxLimit
}

// New returns an empty store.
func New() *Store {
	return &Store{
		Companies:   make(map[int64]*model.Company),
		Employees:   make(map[int64]*model.Employee),
		Groups:      make(map[int64]*model.PayrollRecordGroup),
		Records:     make(map[int64]*model.PayrollRecord),
		Snapshots:   make(map[int64]*model.PayrollSnapshot),
		Adjustments: make(map[int64]*model.YearEndAdjustment),
		Slips:       make(map[int64]*model.WithholdingSlip),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// =============================================================================
// TRANSACTIONS
// =============================================================================
// The mutex serializes "transactions". There is no rollback.

// InTx implements payroll.Store.
func (s *Store) InTx(ctx context.Context, fn func(tx payroll.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(txView{s})
}

// txView is the store handed to transactional callbacks. It skips the
// mutex so nested calls do not deadlock.
type txView struct{ s *Store }

func (t txView) InTx(ctx context.Context, fn func(tx payroll.Store) error) error {
	return fn(t)
}

// locked runs fn under the store mutex, for the direct (non-tx) entry
// points the interfaces require.
func (s *Store) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) GroupFor(ctx context.Context, companyID, employeeID, periodID int64) (g *model.PayrollRecordGroup, err error) {
	err = s.locked(func() error { g, err = txView{s}.GroupFor(ctx, companyID, employeeID, periodID); return err })
	return
}

func (s *Store) DraftRecord(ctx context.Context, groupID int64) (r *model.PayrollRecord, err error) {
	err = s.locked(func() error { r, err = txView{s}.DraftRecord(ctx, groupID); return err })
	return
}

func (s *Store) MaxVersion(ctx context.Context, groupID int64) (v int, err error) {
	err = s.locked(func() error { v, err = txView{s}.MaxVersion(ctx, groupID); return err })
	return
}

func (s *Store) Record(ctx context.Context, companyID, recordID int64) (r *model.PayrollRecord, err error) {
	err = s.locked(func() error { r, err = txView{s}.Record(ctx, companyID, recordID); return err })
	return
}

func (s *Store) RecordsInGroup(ctx context.Context, groupID int64) (rs []model.PayrollRecord, err error) {
	err = s.locked(func() error { rs, err = txView{s}.RecordsInGroup(ctx, groupID); return err })
	return
}

func (s *Store) CreateRecord(ctx context.Context, rec *model.PayrollRecord) error {
	return s.locked(func() error { return txView{s}.CreateRecord(ctx, rec) })
}

func (s *Store) TransitionRecord(ctx context.Context, rec *model.PayrollRecord, expected model.RecordStatus) (ok bool, err error) {
	err = s.locked(func() error { ok, err = txView{s}.TransitionRecord(ctx, rec, expected); return err })
	return
}

func (s *Store) SetCurrentRecord(ctx context.Context, groupID, recordID int64) error {
	return s.locked(func() error { return txView{s}.SetCurrentRecord(ctx, groupID, recordID) })
}

func (s *Store) CreateSnapshot(ctx context.Context, snap *model.PayrollSnapshot) error {
	return s.locked(func() error { return txView{s}.CreateSnapshot(ctx, snap) })
}

func (s *Store) AppendHistory(ctx context.Context, h *model.PayrollHistory) error {
	return s.locked(func() error { return txView{s}.AppendHistory(ctx, h) })
}

// yearEndTx is the transactional view of the year-end store.
type yearEndTx struct{ s *Store }

// YearEnd returns the store as a yearend.Store.
func (s *Store) YearEnd() yearend.Store { return yearEndStore{s} }

type yearEndStore struct{ s *Store }

func (y yearEndStore) InTx(ctx context.Context, fn func(tx yearend.Store) error) error {
	y.s.mu.Lock()
	defer y.s.mu.Unlock()
	return fn(yearEndTx{y.s})
}

func (y yearEndStore) Adjustment(ctx context.Context, companyID, id int64) (a *model.YearEndAdjustment, err error) {
	err = y.s.locked(func() error { a, err = yearEndTx{y.s}.Adjustment(ctx, companyID, id); return err })
	return
}

func (y yearEndStore) AdjustmentByYear(ctx context.Context, companyID, employeeID int64, year int) (a *model.YearEndAdjustment, err error) {
	err = y.s.locked(func() error { a, err = yearEndTx{y.s}.AdjustmentByYear(ctx, companyID, employeeID, year); return err })
	return
}

func (y yearEndStore) CreateAdjustment(ctx context.Context, adj *model.YearEndAdjustment) error {
	return y.s.locked(func() error { return yearEndTx{y.s}.CreateAdjustment(ctx, adj) })
}

func (y yearEndStore) SaveAdjustment(ctx context.Context, adj *model.YearEndAdjustment, expected model.AdjustmentStatus) (ok bool, err error) {
	err = y.s.locked(func() error { ok, err = yearEndTx{y.s}.SaveAdjustment(ctx, adj, expected); return err })
	return
}

func (y yearEndStore) Employee(ctx context.Context, companyID, employeeID int64) (e *model.Employee, err error) {
	err = y.s.locked(func() error { e, err = yearEndTx{y.s}.Employee(ctx, companyID, employeeID); return err })
	return
}

func (y yearEndStore) CreateSlip(ctx context.Context, slip *model.WithholdingSlip) error {
	return y.s.locked(func() error { return yearEndTx{y.s}.CreateSlip(ctx, slip) })
}

func (y yearEndStore) AppendHistory(ctx context.Context, h *model.YearEndHistory) error {
	return y.s.locked(func() error { return yearEndTx{y.s}.AppendHistory(ctx, h) })
}

func (t yearEndTx) InTx(ctx context.Context, fn func(tx yearend.Store) error) error {
	return fn(t)
}

// =============================================================================
// PAYROLL STORE
// =============================================================================

func (t txView) GroupFor(_ context.Context, companyID, employeeID, periodID int64) (*model.PayrollRecordGroup, error) {
	for _, g := range t.s.Groups {
		if g.CompanyID == companyID && g.EmployeeID == employeeID && g.PeriodID == periodID {
			return g, nil
		}
	}
	g := &model.PayrollRecordGroup{
		ID:         t.s.id(),
		CompanyID:  companyID,
		EmployeeID: employeeID,
		PeriodID:   periodID,
	}
	t.s.Groups[g.ID] = g
	return g, nil
}

func (t txView) DraftRecord(_ context.Context, groupID int64) (*model.PayrollRecord, error) {
	for _, r := range t.s.Records {
		if r.GroupID == groupID && r.Status == model.RecordDraft {
			cp := *r
			cp.Items = append([]model.PayrollRecordItem(nil), r.Items...)
			return &cp, nil
		}
	}
	return nil, nil
}

func (t txView) MaxVersion(_ context.Context, groupID int64) (int, error) {
	max := 0
	for _, r := range t.s.Records {
		if r.GroupID == groupID && r.Version > max {
			max = r.Version
		}
	}
	return max, nil
}

func (t txView) Record(_ context.Context, companyID, recordID int64) (*model.PayrollRecord, error) {
	r, ok := t.s.Records[recordID]
	if !ok || r.CompanyID != companyID {
		return nil, errs.NotFoundf("payroll record", recordID)
	}
	cp := *r
	cp.Items = append([]model.PayrollRecordItem(nil), r.Items...)
	return &cp, nil
}

func (t txView) RecordsInGroup(_ context.Context, groupID int64) ([]model.PayrollRecord, error) {
	var out []model.PayrollRecord
	for _, r := range t.s.Records {
		if r.GroupID == groupID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (t txView) CreateRecord(_ context.Context, rec *model.PayrollRecord) error {
	rec.ID = t.s.id()
	for i := range rec.Items {
		rec.Items[i].ID = t.s.id()
		rec.Items[i].RecordID = rec.ID
	}
	cp := *rec
	cp.Items = append([]model.PayrollRecordItem(nil), rec.Items...)
	t.s.Records[rec.ID] = &cp
	return nil
}

func (t txView) TransitionRecord(_ context.Context, rec *model.PayrollRecord, expected model.RecordStatus) (bool, error) {
	stored, ok := t.s.Records[rec.ID]
	if !ok || stored.Status != expected {
		return false, nil
	}
	stored.Status = rec.Status
	stored.ConfirmedAt = rec.ConfirmedAt
	stored.ConfirmedBy = rec.ConfirmedBy
	stored.CancelledAt = rec.CancelledAt
	stored.CancelledBy = rec.CancelledBy
	stored.CancelReason = rec.CancelReason
	return true, nil
}

func (t txView) SetCurrentRecord(_ context.Context, groupID, recordID int64) error {
	g, ok := t.s.Groups[groupID]
	if !ok {
		return errs.NotFoundf("payroll record group", groupID)
	}
	g.CurrentRecordID = &recordID
	return nil
}

func (t txView) CreateSnapshot(_ context.Context, snap *model.PayrollSnapshot) error {
	if _, exists := t.s.Snapshots[snap.RecordID]; exists {
		return errs.Conflictf("payroll snapshot", "record %d", snap.RecordID)
	}
	snap.ID = t.s.id()
	snap.CreatedAt = time.Now()
	t.s.Snapshots[snap.RecordID] = snap
	return nil
}

func (t txView) AppendHistory(_ context.Context, h *model.PayrollHistory) error {
	h.ID = t.s.id()
	h.CreatedAt = time.Now()
	t.s.History = append(t.s.History, h)
	return nil
}

// =============================================================================
// YEAR-END STORE
// =============================================================================

func (t yearEndTx) Adjustment(_ context.Context, companyID, id int64) (*model.YearEndAdjustment, error) {
	a, ok := t.s.Adjustments[id]
	if !ok || a.CompanyID != companyID {
		return nil, errs.NotFoundf("year-end adjustment", id)
	}
	cp := *a
	return &cp, nil
}

func (t yearEndTx) AdjustmentByYear(_ context.Context, companyID, employeeID int64, year int) (*model.YearEndAdjustment, error) {
	for _, a := range t.s.Adjustments {
		if a.CompanyID == companyID && a.EmployeeID == employeeID && a.TargetYear == year {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (t yearEndTx) CreateAdjustment(_ context.Context, adj *model.YearEndAdjustment) error {
	adj.ID = t.s.id()
	cp := *adj
	t.s.Adjustments[adj.ID] = &cp
	return nil
}

func (t yearEndTx) SaveAdjustment(_ context.Context, adj *model.YearEndAdjustment, expected model.AdjustmentStatus) (bool, error) {
	stored, ok := t.s.Adjustments[adj.ID]
	if !ok || stored.Status != expected {
		return false, nil
	}
	cp := *adj
	t.s.Adjustments[adj.ID] = &cp
	return true, nil
}

func (t yearEndTx) Employee(_ context.Context, companyID, employeeID int64) (*model.Employee, error) {
	e, ok := t.s.Employees[employeeID]
	if !ok || e.CompanyID != companyID {
		return nil, errs.NotFoundf("employee", employeeID)
	}
	cp := *e
	return &cp, nil
}

func (t yearEndTx) CreateSlip(_ context.Context, slip *model.WithholdingSlip) error {
	if _, exists := t.s.Slips[slip.AdjustmentID]; exists {
		return errs.Conflictf("withholding slip", "adjustment %d", slip.AdjustmentID)
	}
	slip.ID = t.s.id()
	slip.CreatedAt = time.Now()
	t.s.Slips[slip.AdjustmentID] = slip
	return nil
}

func (t yearEndTx) AppendHistory(_ context.Context, h *model.YearEndHistory) error {
	h.ID = t.s.id()
	h.CreatedAt = time.Now()
	t.s.YEHistory = append(t.s.YEHistory, h)
	return nil
}

// =============================================================================
// RATE SOURCE
// =============================================================================

// InsuranceRates implements ratebook.Source.
func (s *Store) InsuranceRates(_ context.Context, companyID int64, insType model.InsuranceType, prefecture string) ([]model.InsuranceRate, error) {
	var out []model.InsuranceRate
	for _, r := range s.InsuranceRateRows {
		if r.InsuranceType != insType {
			continue
		}
		if prefecture != "" && r.Prefecture != prefecture {
			continue
		}
		if r.CompanyID != nil && *r.CompanyID != companyID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// TaxBrackets implements ratebook.Source.
func (s *Store) TaxBrackets(_ context.Context, companyID int64, tableType model.TaxTableType) ([]model.IncomeTaxTable, error) {
	var out []model.IncomeTaxTable
	for _, r := range s.TaxRows {
		if r.TableType != tableType {
			continue
		}
		if r.CompanyID != nil && *r.CompanyID != companyID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// CommuteLimits implements ratebook.Source.
func (s *Store) CommuteLimits(_ context.Context, companyID int64, method model.CommuteMethod) ([]model.CommuteTaxLimit, error) {
	var out []model.CommuteTaxLimit
	for _, r := range s.CommuteLimitRows {
		if r.Method != method {
			continue
		}
		if r.CompanyID != nil && *r.CompanyID != companyID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// =============================================================================
// MASTERS
// =============================================================================

// Attendance implements calc.Masters.
func (s *Store) Attendance(_ context.Context, companyID, employeeID int64, ym model.YearMonth) (*model.AttendanceRecord, error) {
	for _, a := range s.AttendanceRows {
		if a.CompanyID == companyID && a.EmployeeID == employeeID && a.YearMonth == ym {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

// ActiveAllowances implements calc.Masters.
func (s *Store) ActiveAllowances(_ context.Context, companyID, employeeID int64, period model.PayrollPeriod) ([]model.EmployeeAllowance, error) {
	var out []model.EmployeeAllowance
	for _, a := range s.Allowances {
		if a.CompanyID == companyID && a.EmployeeID == employeeID && a.ActiveIn(period.StartDate, period.EndDate) {
			out = append(out, *a)
		}
	}
	return out, nil
}

// ActiveCommute implements calc.Masters. Greatest effective_from wins,
// then greatest id.
func (s *Store) ActiveCommute(_ context.Context, companyID, employeeID int64, period model.PayrollPeriod) (*model.CommuteDetail, error) {
	var best *model.CommuteDetail
	for _, c := range s.Commutes {
		if c.CompanyID != companyID || c.EmployeeID != employeeID || !c.ActiveIn(period.StartDate, period.EndDate) {
			continue
		}
		if best == nil ||
			c.EffectiveFrom.After(best.EffectiveFrom) ||
			(c.EffectiveFrom.Equal(best.EffectiveFrom) && c.ID > best.ID) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}
