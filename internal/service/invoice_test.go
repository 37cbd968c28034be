package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInvoiceTotals(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))

	inv, err := f.svc.Invoices.Create(ctx, as(f.manager), InvoiceInput{
		LeaseID: lease.ID,
		Items: []ItemInput{
			{Description: "Rent", Quantity: 2, UnitPrice: 500},
			{Description: "Water", Quantity: 1, UnitPrice: 200.5},
		},
		TaxRate: 16,
	})
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceDraft, inv.Status)
	assert.Equal(t, fmt.Sprintf("INV-202403-%06d", inv.ID), inv.Number)
	assert.Len(t, inv.Items, 2)
	assert.Equal(t, 1200.5, inv.Subtotal)
	assert.Equal(t, 192.08, inv.TaxAmount)
	assert.Equal(t, 1392.58, inv.Total)
	assert.Equal(t, lease.TenantID, inv.TenantID)
	assert.Equal(t, lease.PropertyID, inv.PropertyID)
	assert.True(t, date(2024, 3, 10).Equal(inv.IssueDate), "issue date defaults to today")
	assert.True(t, date(2024, 4, 5).Equal(inv.DueDate), "due date defaults to the next rent day")
}

func TestCreateInvoiceValidation(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	expired := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseExpired, date(2022, 1, 1))
	rent := []ItemInput{{Description: "Rent", Quantity: 1, UnitPrice: 1200}}

	tests := []struct {
		name string
		in   InvoiceInput
		want error
	}{
		{"no items", InvoiceInput{LeaseID: lease.ID}, ErrValidation},
		{"blank description", InvoiceInput{LeaseID: lease.ID, Items: []ItemInput{{Quantity: 1, UnitPrice: 1}}}, ErrValidation},
		{"zero quantity", InvoiceInput{LeaseID: lease.ID, Items: []ItemInput{{Description: "x", UnitPrice: 1}}}, ErrValidation},
		{"tax over 100", InvoiceInput{LeaseID: lease.ID, Items: rent, TaxRate: 101}, ErrValidation},
		{"due before issue", InvoiceInput{LeaseID: lease.ID, Items: rent, IssueDate: date(2024, 3, 10), DueDate: date(2024, 3, 1)}, ErrValidation},
		{"expired lease", InvoiceInput{LeaseID: expired.ID, Items: rent}, ErrConflict},
		{"unknown lease", InvoiceInput{LeaseID: 9999, Items: rent}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Invoices.Create(ctx, as(f.landlord), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.svc.Invoices.Create(ctx, as(f.tenant), InvoiceInput{LeaseID: lease.ID, Items: rent})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Invoices.Create(ctx, as(f.otherLandlord), InvoiceInput{LeaseID: lease.ID, Items: rent})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateRentInvoice(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))

	inv, err := f.svc.Invoices.Generate(ctx, as(f.landlord), lease.ID, date(2024, 3, 20))
	require.NoError(t, err)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "Rent March 2024", inv.Items[0].Description)
	assert.Equal(t, 1200.0, inv.Total)
	assert.True(t, date(2024, 3, 5).Equal(inv.DueDate))
	assert.True(t, date(2024, 3, 1).Equal(inv.IssueDate), "a past due date backdates the issue date")

	_, err = f.svc.Invoices.Generate(ctx, as(f.landlord), lease.ID, date(2024, 3, 1))
	assert.ErrorIs(t, err, ErrConflict)

	next, err := f.svc.Invoices.Generate(ctx, as(f.landlord), lease.ID, date(2024, 4, 1))
	require.NoError(t, err)
	assert.True(t, date(2024, 3, 10).Equal(next.IssueDate))
	assert.True(t, date(2024, 4, 5).Equal(next.DueDate))

	_, err = f.svc.Invoices.Generate(ctx, as(f.landlord), lease.ID, date(2025, 1, 1))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.Invoices.Generate(ctx, as(f.landlord), lease.ID, date(2023, 12, 1))
	assert.ErrorIs(t, err, ErrValidation)

	// a cancelled invoice frees its month
	_, err = f.svc.Invoices.Cancel(ctx, as(f.landlord), inv.ID)
	require.NoError(t, err)
	_, err = f.svc.Invoices.Generate(ctx, as(f.landlord), lease.ID, date(2024, 3, 1))
	assert.NoError(t, err)
}

func TestUpdateInvoiceOnlyWhenEditable(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	inv := testutil.Invoice(t, f.db, lease, model.InvoiceSent, 1200, date(2024, 3, 5))

	items := []ItemInput{
		{Description: "Rent", Quantity: 1, UnitPrice: 1200},
		{Description: "Electricity", Quantity: 1, UnitPrice: 150},
	}
	updated, err := f.svc.Invoices.Update(ctx, as(f.manager), inv.ID, InvoiceUpdate{
		Items: &items,
		Notes: ptr("meter read 4 March"),
	})
	require.NoError(t, err)
	assert.Len(t, updated.Items, 2)
	assert.Equal(t, 1350.0, updated.Total)
	assert.Equal(t, "meter read 4 March", updated.Notes)
	assert.Equal(t, model.InvoiceSent, updated.Status)

	var count int64
	require.NoError(t, f.db.Model(&model.InvoiceItem{}).Where("invoice_id = ?", inv.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	for _, status := range []model.InvoiceStatus{model.InvoicePaid, model.InvoiceOverdue, model.InvoiceCancelled} {
		t.Run(string(status), func(t *testing.T) {
			locked := testutil.Invoice(t, f.db, lease, status, 1200, date(2024, 2, 5))
			_, err := f.svc.Invoices.Update(ctx, as(f.landlord), locked.ID, InvoiceUpdate{Notes: ptr("x")})
			assert.ErrorIs(t, err, ErrConflict)
		})
	}
}

func TestUpdateInvoiceKeepsTotalAbovePaid(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	inv := testutil.Invoice(t, f.db, lease, model.InvoiceSent, 1200, date(2024, 3, 5))
	require.NoError(t, f.db.Model(&model.Invoice{}).Where("id = ?", inv.ID).Update("amount_paid", 1000).Error)

	items := []ItemInput{{Description: "Rent", Quantity: 1, UnitPrice: 900}}
	_, err := f.svc.Invoices.Update(ctx, as(f.landlord), inv.ID, InvoiceUpdate{Items: &items})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestInvoiceTransitions(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	inv := testutil.Invoice(t, f.db, lease, model.InvoiceDraft, 1200, date(2024, 3, 5))

	_, err := f.svc.Invoices.Send(ctx, as(f.tenant), inv.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	sent, err := f.svc.Invoices.Send(ctx, as(f.manager), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	_, err = f.svc.Invoices.Send(ctx, as(f.manager), inv.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, f.svc.Invoices.Delete(ctx, as(f.landlord), inv.ID), ErrConflict)

	paid := testutil.Invoice(t, f.db, lease, model.InvoiceSent, 1200, date(2024, 2, 5))
	require.NoError(t, f.db.Model(&model.Invoice{}).Where("id = ?", paid.ID).Update("amount_paid", 200).Error)
	_, err = f.svc.Invoices.Cancel(ctx, as(f.landlord), paid.ID)
	assert.ErrorIs(t, err, ErrConflict)

	cancelled, err := f.svc.Invoices.Cancel(ctx, as(f.landlord), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceCancelled, cancelled.Status)
}

func TestDeleteDraftInvoice(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	inv := testutil.Invoice(t, f.db, lease, model.InvoiceDraft, 1200, date(2024, 3, 5))

	assert.ErrorIs(t, f.svc.Invoices.Delete(ctx, as(f.manager), inv.ID), ErrForbidden)
	require.NoError(t, f.svc.Invoices.Delete(ctx, as(f.landlord), inv.ID))

	_, err := f.svc.Invoices.Get(ctx, as(f.landlord), inv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	late := testutil.Invoice(t, f.db, lease, model.InvoiceSent, 1200, date(2024, 3, 5))
	dueToday := testutil.Invoice(t, f.db, lease, model.InvoiceSent, 1200, date(2024, 3, 10))
	draft := testutil.Invoice(t, f.db, lease, model.InvoiceDraft, 1200, date(2024, 2, 5))

	n, err := f.svc.Invoices.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, model.InvoiceOverdue, reload[model.Invoice](t, f.db, late.ID).Status)
	assert.Equal(t, model.InvoiceSent, reload[model.Invoice](t, f.db, dueToday.ID).Status)
	assert.Equal(t, model.InvoiceDraft, reload[model.Invoice](t, f.db, draft.ID).Status)

	n, err = f.svc.Invoices.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListInvoicesScoped(t *testing.T) {
	f := newFixture(t)
	mine := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	theirs := testutil.Lease(t, f.db, f.otherProperty, f.otherTenant, model.LeaseActive, date(2024, 1, 1))
	testutil.Invoice(t, f.db, mine, model.InvoiceSent, 1200, date(2024, 3, 5))
	testutil.Invoice(t, f.db, mine, model.InvoicePaid, 1200, date(2024, 2, 5))
	testutil.Invoice(t, f.db, theirs, model.InvoiceSent, 800, date(2024, 3, 5))

	invoices, err := f.svc.Invoices.List(ctx, as(f.tenant), InvoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, invoices, 2)

	invoices, err = f.svc.Invoices.List(ctx, as(f.manager), InvoiceFilter{Status: model.InvoiceSent})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, mine.ID, invoices[0].LeaseID)

	invoices, err = f.svc.Invoices.List(ctx, as(f.admin), InvoiceFilter{DueBefore: date(2024, 3, 1)})
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestInvoiceShareLinks(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	inv := testutil.Invoice(t, f.db, lease, model.InvoiceSent, 1250.5, date(2024, 3, 25))

	links, err := f.svc.Invoices.ShareLinks(ctx, as(f.landlord), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.Number, links.Number)
	assert.Contains(t, links.Message, "balance of ZMW 1,250.50 due on 25 Mar 2024")
	assert.Contains(t, links.Message, fmt.Sprintf("https://portal.example/invoices/%d", inv.ID))
	assert.True(t, strings.HasPrefix(links.WhatsApp, "https://wa.me/260977000000?text=Hello%20"))
	assert.Contains(t, links.Email, "su=Invoice%20"+inv.Number)
	assert.Contains(t, links.Calendar, "dates=20240325%2F20240326")
	assert.Contains(t, links.Calendar, "location=12%20Cairo%20Road%2C%20Lusaka")

	_, err = f.svc.Invoices.ShareLinks(ctx, as(f.tenant), inv.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	cancelled := testutil.Invoice(t, f.db, lease, model.InvoiceCancelled, 100, date(2024, 3, 25))
	_, err = f.svc.Invoices.ShareLinks(ctx, as(f.landlord), cancelled.ID)
	assert.ErrorIs(t, err, ErrConflict)
}
