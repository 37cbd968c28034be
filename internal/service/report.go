package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/policy"
	"github.com/Go-ku/landlord-app-sub001/pkg/money"
	"github.com/Go-ku/landlord-app-sub001/prometheus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Report names.
const (
	ReportRevenue          = "revenue"
	ReportOccupancy        = "occupancy"
	ReportOutstanding      = "outstanding"
	ReportMaintenance      = "maintenance"
	ReportPaymentsByMethod = "payments_by_method"
)

// ReportNames lists every report in display order.
var ReportNames = []string{
	ReportRevenue, ReportOccupancy, ReportOutstanding, ReportMaintenance, ReportPaymentsByMethod,
}

// ReportService runs the aggregation reports and the dashboard.
type ReportService struct {
	*base
}

// Range is a half-open date range [From, To).
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Report is one named aggregation over a range.
type Report struct {
	Name  string      `json:"name"`
	Range Range       `json:"range"`
	Rows  interface{} `json:"rows"`
}

type RevenueRow struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
	Count int64   `json:"count"`
}

type OccupancyRow struct {
	PropertyID    uint    `json:"property_id"`
	PropertyName  string  `json:"property_name"`
	Units         int     `json:"units"`
	OccupiedUnits int64   `json:"occupied_units"`
	Rate          float64 `json:"occupancy_rate"`
}

type OutstandingRow struct {
	Status  string  `json:"status"`
	Count   int64   `json:"count"`
	Balance float64 `json:"balance"`
}

type MaintenanceRow struct {
	Dimension string `json:"dimension"`
	Value     string `json:"value"`
	Count     int64  `json:"count"`
}

type MethodRow struct {
	Method string  `json:"method"`
	Count  int64   `json:"count"`
	Total  float64 `json:"total"`
}

// Dashboard summarises the actor's portfolio.
type Dashboard struct {
	Role              model.Role       `json:"role"`
	Properties        int64            `json:"properties"`
	ActiveLeases      int64            `json:"active_leases"`
	DraftLeases       int64            `json:"draft_leases"`
	OpenMaintenance   int64            `json:"open_maintenance"`
	PendingPayments   int64            `json:"pending_payments"`
	OverdueInvoices   int64            `json:"overdue_invoices"`
	RevenueThisMonth  float64          `json:"revenue_this_month"`
	OutstandingTotal  float64          `json:"outstanding_total"`
	Outstanding       []OutstandingRow `json:"outstanding"`
	Occupancy         []OccupancyRow   `json:"occupancy"`
	RecentPayments    []model.Payment  `json:"recent_payments"`
	UpcomingDueLeases []model.Lease    `json:"upcoming_due_leases,omitempty"`
}

// DefaultRange covers the current month and the eleven before it.
func (s *ReportService) DefaultRange() Range {
	today := s.today()
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Range{From: first.AddDate(0, -11, 0), To: today.AddDate(0, 0, 1)}
}

func (s *ReportService) normalize(r Range) (Range, error) {
	def := s.DefaultRange()
	if r.From.IsZero() {
		r.From = def.From
	}
	if r.To.IsZero() {
		r.To = def.To
	}
	r.From, r.To = model.DateOnly(r.From), model.DateOnly(r.To)
	if !r.To.After(r.From) {
		return r, validationf("to must be after from")
	}
	return r, nil
}

// monthExpr formats a timestamp column as YYYY-MM in the active dialect.
func monthExpr(db *gorm.DB, column string) string {
	if db.Dialector.Name() == "postgres" {
		return "to_char(" + column + ", 'YYYY-MM')"
	}
	return "strftime('%Y-%m', " + column + ")"
}

// Run executes the named report.
func (s *ReportService) Run(ctx context.Context, actor policy.Actor, name string, r Range) (*Report, error) {
	if err := s.policy.Authorize(actor, policy.ResourceReport, policy.ActionRead); err != nil {
		return nil, err
	}
	return s.run(ctx, actor, name, r)
}

func (s *ReportService) run(ctx context.Context, actor policy.Actor, name string, r Range) (*Report, error) {
	r, err := s.normalize(r)
	if err != nil {
		return nil, err
	}
	defer prometheus.TrackDBOperation("report")(time.Now())

	db := s.conn(ctx)
	var rows interface{}
	switch name {
	case ReportRevenue:
		rows, err = s.revenue(db, actor, r)
	case ReportOccupancy:
		rows, err = s.occupancy(db, actor)
	case ReportOutstanding:
		rows, err = s.outstanding(db, actor, r)
	case ReportMaintenance:
		rows, err = s.maintenance(db, actor, r)
	case ReportPaymentsByMethod:
		rows, err = s.paymentsByMethod(db, actor, r)
	default:
		return nil, notFound("report " + strconv.Quote(name))
	}
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", name, err)
	}
	return &Report{Name: name, Range: r, Rows: rows}, nil
}

func (s *ReportService) revenue(db *gorm.DB, actor policy.Actor, r Range) ([]RevenueRow, error) {
	rows := []RevenueRow{}
	err := db.Model(&model.Payment{}).
		Scopes(actor.PropertyRows("payments")).
		Select(monthExpr(db, "payments.paid_at")+" AS month, SUM(payments.amount) AS total, COUNT(*) AS count").
		Where("payments.status = ? AND payments.paid_at >= ? AND payments.paid_at < ?", model.PaymentVerified, r.From, r.To).
		Group("month").
		Order("month").
		Scan(&rows).Error
	for i := range rows {
		rows[i].Total = money.Round(rows[i].Total)
	}
	return rows, err
}

// occupancy counts active leases per property. Tenants get no rows: the
// counts include other tenants' leases.
func (s *ReportService) occupancy(db *gorm.DB, actor policy.Actor) ([]OccupancyRow, error) {
	rows := []OccupancyRow{}
	if actor.Role == model.RoleTenant {
		return rows, nil
	}
	err := db.Model(&model.Property{}).
		Scopes(actor.Properties).
		Select("properties.id AS property_id, properties.name AS property_name, properties.units AS units, COUNT(leases.id) AS occupied_units").
		Joins("LEFT JOIN leases ON leases.property_id = properties.id AND leases.status = ? AND leases.deleted_at IS NULL", model.LeaseActive).
		Group("properties.id, properties.name, properties.units").
		Order("properties.name, properties.id").
		Scan(&rows).Error
	for i := range rows {
		if rows[i].Units > 0 {
			rows[i].Rate = money.RoundTo(float64(rows[i].OccupiedUnits)/float64(rows[i].Units)*100, 1)
		}
	}
	return rows, err
}

func (s *ReportService) outstanding(db *gorm.DB, actor policy.Actor, r Range) ([]OutstandingRow, error) {
	rows := []OutstandingRow{}
	err := db.Model(&model.Invoice{}).
		Scopes(actor.PropertyRows("invoices")).
		Select("invoices.status AS status, COUNT(*) AS count, COALESCE(SUM(invoices.total - invoices.amount_paid), 0) AS balance").
		Where("invoices.status IN ?", []model.InvoiceStatus{model.InvoiceSent, model.InvoiceOverdue}).
		Where("invoices.due_date >= ? AND invoices.due_date < ?", r.From, r.To).
		Group("invoices.status").
		Order("invoices.status").
		Scan(&rows).Error
	for i := range rows {
		rows[i].Balance = money.Round(rows[i].Balance)
	}
	return rows, err
}

func (s *ReportService) maintenance(db *gorm.DB, actor policy.Actor, r Range) ([]MaintenanceRow, error) {
	rows := []MaintenanceRow{}
	for _, dimension := range []string{"status", "priority"} {
		var part []MaintenanceRow
		err := db.Model(&model.MaintenanceRequest{}).
			Scopes(actor.PropertyRows("maintenance_requests")).
			Select("'"+dimension+"' AS dimension, maintenance_requests."+dimension+" AS value, COUNT(*) AS count").
			Where("maintenance_requests.created_at >= ? AND maintenance_requests.created_at < ?", r.From, r.To).
			Group("maintenance_requests." + dimension).
			Order("maintenance_requests." + dimension).
			Scan(&part).Error
		if err != nil {
			return nil, err
		}
		rows = append(rows, part...)
	}
	return rows, nil
}

func (s *ReportService) paymentsByMethod(db *gorm.DB, actor policy.Actor, r Range) ([]MethodRow, error) {
	rows := []MethodRow{}
	err := db.Model(&model.Payment{}).
		Scopes(actor.PropertyRows("payments")).
		Select("payments.method AS method, COUNT(*) AS count, SUM(payments.amount) AS total").
		Where("payments.status = ? AND payments.paid_at >= ? AND payments.paid_at < ?", model.PaymentVerified, r.From, r.To).
		Group("payments.method").
		Scan(&rows).Error
	for i := range rows {
		rows[i].Total = money.Round(rows[i].Total)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].Method < rows[j].Method
	})
	return rows, err
}

// Table runs the named report and flattens it for CSV export.
func (s *ReportService) Table(ctx context.Context, actor policy.Actor, name string, r Range) ([]string, [][]string, error) {
	if err := s.policy.Authorize(actor, policy.ResourceReport, policy.ActionExport); err != nil {
		return nil, nil, err
	}
	report, err := s.run(ctx, actor, name, r)
	if err != nil {
		return nil, nil, err
	}

	amount := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	count := func(v int64) string { return strconv.FormatInt(v, 10) }

	var (
		header []string
		rows   [][]string
	)
	switch data := report.Rows.(type) {
	case []RevenueRow:
		header = []string{"month", "total", "count"}
		for _, row := range data {
			rows = append(rows, []string{row.Month, amount(row.Total), count(row.Count)})
		}
	case []OccupancyRow:
		header = []string{"property_id", "property_name", "units", "occupied_units", "occupancy_rate"}
		for _, row := range data {
			rows = append(rows, []string{
				strconv.FormatUint(uint64(row.PropertyID), 10), row.PropertyName,
				strconv.Itoa(row.Units), count(row.OccupiedUnits),
				strconv.FormatFloat(row.Rate, 'f', 1, 64),
			})
		}
	case []OutstandingRow:
		header = []string{"status", "count", "balance"}
		for _, row := range data {
			rows = append(rows, []string{row.Status, count(row.Count), amount(row.Balance)})
		}
	case []MaintenanceRow:
		header = []string{"dimension", "value", "count"}
		for _, row := range data {
			rows = append(rows, []string{row.Dimension, row.Value, count(row.Count)})
		}
	case []MethodRow:
		header = []string{"method", "count", "total"}
		for _, row := range data {
			rows = append(rows, []string{row.Method, count(row.Count), amount(row.Total)})
		}
	}
	return header, rows, nil
}

// Dashboard computes the actor's summary. The independent queries run
// concurrently.
func (s *ReportService) Dashboard(ctx context.Context, actor policy.Actor) (*Dashboard, error) {
	if err := s.policy.Authorize(actor, policy.ResourceDashboard, policy.ActionRead); err != nil {
		return nil, err
	}

	d := &Dashboard{Role: actor.Role}
	today := s.today()
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	everything := Range{From: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), To: today.AddDate(100, 0, 0)}

	g, gctx := errgroup.WithContext(ctx)
	db := func() *gorm.DB { return s.conn(gctx) }

	count := func(dst *int64, m interface{}, scope func(*gorm.DB) *gorm.DB, where string, args ...interface{}) {
		g.Go(func() error {
			return db().Model(m).Scopes(scope).Where(where, args...).Count(dst).Error
		})
	}
	count(&d.Properties, &model.Property{}, actor.Properties, "properties.is_active = ?", true)
	count(&d.ActiveLeases, &model.Lease{}, actor.PropertyRows("leases"), "leases.status = ?", model.LeaseActive)
	count(&d.DraftLeases, &model.Lease{}, actor.PropertyRows("leases"), "leases.status = ?", model.LeaseDraft)
	count(&d.OpenMaintenance, &model.MaintenanceRequest{}, actor.PropertyRows("maintenance_requests"),
		"maintenance_requests.status IN ?", []model.MaintenanceStatus{model.MaintenanceOpen, model.MaintenanceInProgress})
	count(&d.PendingPayments, &model.Payment{}, actor.PropertyRows("payments"), "payments.status = ?", model.PaymentPending)
	count(&d.OverdueInvoices, &model.Invoice{}, actor.PropertyRows("invoices"), "invoices.status = ?", model.InvoiceOverdue)

	g.Go(func() error {
		var total float64
		err := db().Model(&model.Payment{}).
			Scopes(actor.PropertyRows("payments")).
			Select("COALESCE(SUM(payments.amount), 0)").
			Where("payments.status = ? AND payments.paid_at >= ?", model.PaymentVerified, monthStart).
			Scan(&total).Error
		d.RevenueThisMonth = money.Round(total)
		return err
	})
	g.Go(func() error {
		rows, err := s.outstanding(db(), actor, everything)
		d.Outstanding = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.occupancy(db(), actor)
		d.Occupancy = rows
		return err
	})
	g.Go(func() error {
		return db().Scopes(actor.PropertyRows("payments")).
			Order("payments.paid_at DESC, payments.id DESC").
			Limit(5).
			Find(&d.RecentPayments).Error
	})
	if actor.Role == model.RoleTenant {
		g.Go(func() error {
			return db().Scopes(actor.PropertyRows("leases")).
				Preload("Property").
				Where("leases.status = ?", model.LeaseActive).
				Order("leases.id").
				Find(&d.UpcomingDueLeases).Error
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	var outstanding float64
	for _, row := range d.Outstanding {
		outstanding += row.Balance
	}
	d.OutstandingTotal = money.Round(outstanding)
	return d, nil
}
