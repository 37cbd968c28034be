package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Go-ku/landlord-app-sub001/internal/mobilemoney"
	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	requests []mobilemoney.PaymentRequest
	err      error
}

func (p *fakeProvider) RequestToPay(_ context.Context, req mobilemoney.PaymentRequest) (*mobilemoney.PaymentResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &mobilemoney.PaymentResponse{
		TransactionID: fmt.Sprintf("MTN-%d", len(p.requests)),
		Status:        mobilemoney.StatusPending,
	}, nil
}

func withProvider(p *fakeProvider) func(*Options) {
	return func(o *Options) { o.MobileMoney = p }
}

func TestVerifyPaymentActivatesLeaseAndPaysInvoice(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseDraft, date(2024, 3, 1))
	inv := testutil.Invoice(t, f.db, lease, model.InvoiceSent, 1200, date(2024, 3, 5))

	payment, created, err := f.svc.Payments.Record(ctx, as(f.tenant), PaymentInput{
		LeaseID:   lease.ID,
		InvoiceID: &inv.ID,
		Amount:    1200,
		Method:    model.MethodBankTransfer,
		Reference: "BANK-001",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.PaymentPending, payment.Status)
	assert.Equal(t, f.tenant.ID, payment.TenantID)
	assert.Equal(t, f.tenant.ID, payment.RecordedBy)
	assert.Equal(t, "ZMW", payment.Currency)
	assert.True(t, now.Equal(payment.PaidAt))
	assert.Equal(t, model.LeaseDraft, reload[model.Lease](t, f.db, lease.ID).Status, "a pending payment leaves the lease alone")

	_, err = f.svc.Payments.Verify(ctx, as(f.tenant), payment.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	verified, err := f.svc.Payments.Verify(ctx, as(f.manager), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentVerified, verified.Status)
	require.NotNil(t, verified.VerifiedBy)
	assert.Equal(t, f.manager.ID, *verified.VerifiedBy)
	require.NotNil(t, verified.VerifiedAt)

	l := reload[model.Lease](t, f.db, lease.ID)
	assert.Equal(t, model.LeaseActive, l.Status)
	require.NotNil(t, l.ActivatedAt)

	i := reload[model.Invoice](t, f.db, inv.ID)
	assert.Equal(t, model.InvoicePaid, i.Status)
	assert.Equal(t, 1200.0, i.AmountPaid)
	assert.NotNil(t, i.PaidAt)

	again, err := f.svc.Payments.Verify(ctx, as(f.manager), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentVerified, again.Status)
	assert.Equal(t, 1200.0, reload[model.Invoice](t, f.db, inv.ID).AmountPaid, "verifying twice applies the amount once")
}

func TestPartialPaymentsVerifiedOnEntry(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	inv := testutil.Invoice(t, f.db, lease, model.InvoiceOverdue, 1200, date(2024, 3, 5))

	first, _, err := f.svc.Payments.Record(ctx, as(f.landlord), PaymentInput{
		LeaseID: lease.ID, InvoiceID: &inv.ID, Amount: 700, Method: model.MethodCash, Verify: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentVerified, first.Status)
	assert.Contains(t, first.Reference, "PAY-")

	i := reload[model.Invoice](t, f.db, inv.ID)
	assert.Equal(t, model.InvoiceOverdue, i.Status)
	assert.Equal(t, 700.0, i.AmountPaid)
	assert.Equal(t, 500.0, i.Balance())

	_, _, err = f.svc.Payments.Record(ctx, as(f.landlord), PaymentInput{
		LeaseID: lease.ID, InvoiceID: &inv.ID, Amount: 500, Method: model.MethodCheque, Verify: true,
	})
	require.NoError(t, err)

	i = reload[model.Invoice](t, f.db, inv.ID)
	assert.Equal(t, model.InvoicePaid, i.Status)
	assert.Equal(t, 1200.0, i.AmountPaid)

	_, _, err = f.svc.Payments.Record(ctx, as(f.landlord), PaymentInput{
		LeaseID: lease.ID, InvoiceID: &inv.ID, Amount: 10, Method: model.MethodCash,
	})
	assert.ErrorIs(t, err, ErrConflict, "a paid invoice takes no more payments")
}

func TestRecordPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	in := PaymentInput{LeaseID: lease.ID, Amount: 1200, Method: model.MethodBankTransfer, Reference: "BANK-42"}

	first, created, err := f.svc.Payments.Record(ctx, as(f.tenant), in)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := f.svc.Payments.Record(ctx, as(f.tenant), in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	in.Amount = 1100
	_, _, err = f.svc.Payments.Record(ctx, as(f.tenant), in)
	assert.ErrorIs(t, err, ErrConflict)

	other := testutil.Lease(t, f.db, f.otherProperty, f.otherTenant, model.LeaseActive, date(2024, 1, 1))
	_, _, err = f.svc.Payments.Record(ctx, as(f.otherTenant), PaymentInput{
		LeaseID: other.ID, Amount: 1200, Method: model.MethodBankTransfer, Reference: "BANK-42",
	})
	assert.ErrorIs(t, err, ErrConflict)

	var count int64
	require.NoError(t, f.db.Model(&model.Payment{}).Where("reference = ?", "BANK-42").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	otherLease := testutil.Lease(t, f.db, f.property, f.otherTenant, model.LeaseActive, date(2024, 1, 1))
	foreign := testutil.Invoice(t, f.db, otherLease, model.InvoiceSent, 1200, date(2024, 3, 5))
	cancelled := testutil.Invoice(t, f.db, lease, model.InvoiceCancelled, 1200, date(2024, 3, 5))

	tests := []struct {
		name  string
		actor *model.User
		in    PaymentInput
		want  error
	}{
		{"zero amount", f.tenant, PaymentInput{LeaseID: lease.ID, Method: model.MethodCash}, ErrValidation},
		{"unknown method", f.tenant, PaymentInput{LeaseID: lease.ID, Amount: 10, Method: "bitcoin"}, ErrValidation},
		{"future", f.tenant, PaymentInput{LeaseID: lease.ID, Amount: 10, Method: model.MethodCash, PaidAt: now.Add(48 * time.Hour)}, ErrValidation},
		{"currency", f.tenant, PaymentInput{LeaseID: lease.ID, Amount: 10, Method: model.MethodCash, Currency: "usd"}, ErrValidation},
		{"foreign invoice", f.landlord, PaymentInput{LeaseID: lease.ID, InvoiceID: &foreign.ID, Amount: 10, Method: model.MethodCash}, ErrValidation},
		{"cancelled invoice", f.landlord, PaymentInput{LeaseID: lease.ID, InvoiceID: &cancelled.ID, Amount: 10, Method: model.MethodCash}, ErrConflict},
		{"tenant verifies", f.tenant, PaymentInput{LeaseID: lease.ID, Amount: 10, Method: model.MethodCash, Verify: true}, ErrForbidden},
		{"provider method verified on entry", f.landlord, PaymentInput{LeaseID: lease.ID, Amount: 10, Method: model.MethodMobileMoney, Verify: true}, ErrValidation},
		{"cheque verified on entry", f.landlord, PaymentInput{LeaseID: lease.ID, Amount: 10, Method: model.MethodCheque, Verify: true}, ErrValidation},
		{"someone else's lease", f.tenant, PaymentInput{LeaseID: otherLease.ID, Amount: 10, Method: model.MethodCash}, ErrNotFound},
		{"other landlord", f.otherLandlord, PaymentInput{LeaseID: lease.ID, Amount: 10, Method: model.MethodCash}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.Payments.Record(ctx, as(tt.actor), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&model.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRejectPayment(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseDraft, date(2024, 3, 1))
	pending := testutil.Payment(t, f.db, lease, model.PaymentPending, model.MethodBankTransfer, 1200, now)

	_, err := f.svc.Payments.Reject(ctx, as(f.landlord), pending.ID, "  ")
	assert.ErrorIs(t, err, ErrValidation)

	rejected, err := f.svc.Payments.Reject(ctx, as(f.landlord), pending.ID, "no matching bank deposit")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRejected, rejected.Status)
	assert.Equal(t, "no matching bank deposit", rejected.RejectionReason)
	assert.Equal(t, model.LeaseDraft, reload[model.Lease](t, f.db, lease.ID).Status)

	_, err = f.svc.Payments.Verify(ctx, as(f.landlord), pending.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	verified := testutil.Payment(t, f.db, lease, model.PaymentVerified, model.MethodCash, 100, now)
	_, err = f.svc.Payments.Reject(ctx, as(f.landlord), verified.ID, "typo")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestVerifyFailsWhenLeaseCannotActivate(t *testing.T) {
	f := newFixture(t)
	active := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	draft := testutil.Lease(t, f.db, f.property, f.otherTenant, model.LeaseDraft, date(2024, 2, 1))
	require.NoError(t, f.db.Model(&model.Lease{}).Where("id = ?", draft.ID).Update("unit", active.Unit).Error)
	pending := testutil.Payment(t, f.db, draft, model.PaymentPending, model.MethodCash, 1200, now)

	_, err := f.svc.Payments.Verify(ctx, as(f.landlord), pending.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, model.PaymentPending, reload[model.Payment](t, f.db, pending.ID).Status, "the verification rolls back")
	assert.Equal(t, model.LeaseDraft, reload[model.Lease](t, f.db, draft.ID).Status)
}

func TestListPaymentsScoped(t *testing.T) {
	f := newFixture(t)
	mine := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	theirs := testutil.Lease(t, f.db, f.otherProperty, f.otherTenant, model.LeaseActive, date(2024, 1, 1))
	testutil.Payment(t, f.db, mine, model.PaymentVerified, model.MethodCash, 1200, date(2024, 2, 3))
	testutil.Payment(t, f.db, mine, model.PaymentPending, model.MethodMobileMoney, 1200, date(2024, 3, 3))
	foreign := testutil.Payment(t, f.db, theirs, model.PaymentPending, model.MethodCash, 800, date(2024, 3, 3))

	payments, err := f.svc.Payments.List(ctx, as(f.tenant), PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.True(t, date(2024, 3, 3).Equal(payments[0].PaidAt), "newest first")

	payments, err = f.svc.Payments.List(ctx, as(f.manager), PaymentFilter{Status: model.PaymentPending})
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	payments, err = f.svc.Payments.List(ctx, as(f.admin), PaymentFilter{From: date(2024, 3, 1), To: date(2024, 4, 1)})
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	_, err = f.svc.Payments.Get(ctx, as(f.landlord), foreign.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Payments.Verify(ctx, as(f.landlord), foreign.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMobileMoneyNotConfigured(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))

	_, _, err := f.svc.Payments.InitiateMobileMoney(ctx, as(f.tenant), MobileMoneyInput{
		LeaseID: lease.ID, Amount: 1200, PhoneNumber: "0977123456",
	})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestMobileMoneyRoundTrip(t *testing.T) {
	provider := &fakeProvider{}
	f := newFixture(t, withProvider(provider))
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseDraft, date(2024, 3, 1))
	inv := testutil.Invoice(t, f.db, lease, model.InvoiceSent, 1200, date(2024, 3, 5))
	in := MobileMoneyInput{LeaseID: lease.ID, InvoiceID: &inv.ID, Amount: 1200, PhoneNumber: "0977 123 456", Reference: "MM-1"}

	_, _, err := f.svc.Payments.InitiateMobileMoney(ctx, as(f.tenant), MobileMoneyInput{LeaseID: lease.ID, Amount: 1200})
	assert.ErrorIs(t, err, ErrValidation)

	payment, created, err := f.svc.Payments.InitiateMobileMoney(ctx, as(f.tenant), in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.PaymentPending, payment.Status)
	assert.Equal(t, model.MethodMobileMoney, payment.Method)
	assert.Equal(t, "260977123456", payment.PhoneNumber)
	assert.Equal(t, "MTN-1", payment.ProviderReference)

	require.Len(t, provider.requests, 1)
	assert.Equal(t, "MM-1", provider.requests[0].Reference)
	assert.Equal(t, "260977123456", provider.requests[0].Phone)
	assert.Equal(t, 1200.0, provider.requests[0].Amount)
	assert.Equal(t, "ZMW", provider.requests[0].Currency)

	replayed, created, err := f.svc.Payments.InitiateMobileMoney(ctx, as(f.tenant), in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, payment.ID, replayed.ID)
	assert.Len(t, provider.requests, 1, "a replay does not prompt the payer again")

	settled, err := f.svc.Payments.HandleCallback(ctx, mobilemoney.Callback{Reference: "MM-1", Status: "successful"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentVerified, settled.Status)
	assert.Nil(t, settled.VerifiedBy)
	assert.Equal(t, model.LeaseActive, reload[model.Lease](t, f.db, lease.ID).Status)
	assert.Equal(t, model.InvoicePaid, reload[model.Invoice](t, f.db, inv.ID).Status)

	settled, err = f.svc.Payments.HandleCallback(ctx, mobilemoney.Callback{Reference: "MM-1", Status: mobilemoney.StatusSuccessful})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentVerified, settled.Status)
	assert.Equal(t, 1200.0, reload[model.Invoice](t, f.db, inv.ID).AmountPaid)

	_, err = f.svc.Payments.HandleCallback(ctx, mobilemoney.Callback{Reference: "MM-1", Status: mobilemoney.StatusFailed})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMobileMoneyCallbackFailure(t *testing.T) {
	provider := &fakeProvider{}
	f := newFixture(t, withProvider(provider))
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))

	payment, _, err := f.svc.Payments.InitiateMobileMoney(ctx, as(f.tenant), MobileMoneyInput{
		LeaseID: lease.ID, Amount: 300, PhoneNumber: "+260 966 000 111",
	})
	require.NoError(t, err)
	assert.Equal(t, "260966000111", payment.PhoneNumber)

	pending, err := f.svc.Payments.HandleCallback(ctx, mobilemoney.Callback{Reference: payment.Reference, Status: mobilemoney.StatusPending, ProviderReference: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, pending.Status)
	assert.Equal(t, "MTN-1", pending.ProviderReference)

	failed, err := f.svc.Payments.HandleCallback(ctx, mobilemoney.Callback{Reference: payment.Reference, Status: mobilemoney.StatusFailed})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRejected, failed.Status)
	assert.Equal(t, "provider reported the payment as failed", failed.RejectionReason)

	_, err = f.svc.Payments.HandleCallback(ctx, mobilemoney.Callback{Reference: "nope", Status: mobilemoney.StatusSuccessful})
	assert.ErrorIs(t, err, ErrNotFound)

	cash := testutil.Payment(t, f.db, lease, model.PaymentPending, model.MethodCash, 100, now)
	_, err = f.svc.Payments.HandleCallback(ctx, mobilemoney.Callback{Reference: cash.Reference, Status: mobilemoney.StatusSuccessful})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMobileMoneyProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unavailable", fmt.Errorf("%w: status 503", mobilemoney.ErrUnavailable), ErrProviderUnavailable},
		{"rejected", fmt.Errorf("%w: invalid msisdn", mobilemoney.ErrRejected), ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{err: tt.err}
			f := newFixture(t, withProvider(provider))
			lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))

			_, _, err := f.svc.Payments.InitiateMobileMoney(ctx, as(f.tenant), MobileMoneyInput{
				LeaseID: lease.ID, Amount: 300, PhoneNumber: "0977123456", Reference: "MM-ERR",
			})
			assert.ErrorIs(t, err, tt.want)

			var p model.Payment
			require.NoError(t, f.db.Where("reference = ?", "MM-ERR").First(&p).Error)
			assert.Equal(t, model.PaymentRejected, p.Status)
			assert.Contains(t, p.RejectionReason, "provider: ")
		})
	}
}

type fakeStatus map[string]*mobilemoney.StatusResponse

func (f fakeStatus) Status(_ context.Context, reference string) (*mobilemoney.StatusResponse, error) {
	if resp, ok := f[reference]; ok {
		return resp, nil
	}
	return nil, fmt.Errorf("%w: unknown reference", mobilemoney.ErrUnavailable)
}

func TestReconcileMobileMoney(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseDraft, date(2024, 3, 1))
	paid := testutil.Payment(t, f.db, lease, model.PaymentPending, model.MethodMobileMoney, 1200, now.Add(-2*time.Hour))
	failed := testutil.Payment(t, f.db, lease, model.PaymentPending, model.MethodMobileMoney, 50, now.Add(-2*time.Hour))
	waiting := testutil.Payment(t, f.db, lease, model.PaymentPending, model.MethodMobileMoney, 60, now.Add(-2*time.Hour))
	lost := testutil.Payment(t, f.db, lease, model.PaymentPending, model.MethodMobileMoney, 70, now.Add(-2*time.Hour))
	fresh := testutil.Payment(t, f.db, lease, model.PaymentPending, model.MethodMobileMoney, 80, now.Add(-time.Minute))
	cash := testutil.Payment(t, f.db, lease, model.PaymentPending, model.MethodCash, 90, now.Add(-2*time.Hour))

	checker := fakeStatus{
		paid.Reference:    {Reference: paid.Reference, TransactionID: "MTN-9", Status: mobilemoney.StatusSuccessful},
		failed.Reference:  {Reference: failed.Reference, Status: mobilemoney.StatusFailed, Reason: "insufficient funds"},
		waiting.Reference: {Reference: waiting.Reference, Status: mobilemoney.StatusPending},
		fresh.Reference:   {Reference: fresh.Reference, Status: mobilemoney.StatusSuccessful},
		cash.Reference:    {Reference: cash.Reference, Status: mobilemoney.StatusSuccessful},
	}

	settled, err := f.svc.Payments.ReconcileMobileMoney(ctx, checker, 30*time.Minute)
	assert.Equal(t, 2, settled)
	require.Error(t, err)
	assert.ErrorIs(t, err, mobilemoney.ErrUnavailable)
	assert.Contains(t, err.Error(), lost.Reference)

	p := reload[model.Payment](t, f.db, paid.ID)
	assert.Equal(t, model.PaymentVerified, p.Status)
	assert.Equal(t, "MTN-9", p.ProviderReference)
	assert.Equal(t, model.LeaseActive, reload[model.Lease](t, f.db, lease.ID).Status)

	r := reload[model.Payment](t, f.db, failed.ID)
	assert.Equal(t, model.PaymentRejected, r.Status)
	assert.Equal(t, "insufficient funds", r.RejectionReason)

	assert.Equal(t, model.PaymentPending, reload[model.Payment](t, f.db, waiting.ID).Status)
	assert.Equal(t, model.PaymentPending, reload[model.Payment](t, f.db, fresh.ID).Status, "too recent to poll")
	assert.Equal(t, model.PaymentPending, reload[model.Payment](t, f.db, cash.ID).Status, "only mobile money is polled")
}

func TestSecondMobileMoneyPaymentOnSettledInvoice(t *testing.T) {
	provider := &fakeProvider{}
	f := newFixture(t, withProvider(provider))
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	inv := testutil.Invoice(t, f.db, lease, model.InvoiceSent, 1200, date(2024, 3, 5))

	first, _, err := f.svc.Payments.InitiateMobileMoney(ctx, as(f.tenant), MobileMoneyInput{
		LeaseID: lease.ID, InvoiceID: &inv.ID, Amount: 1200, PhoneNumber: "0977123456", Reference: "MM-A",
	})
	require.NoError(t, err)
	second, _, err := f.svc.Payments.InitiateMobileMoney(ctx, as(f.tenant), MobileMoneyInput{
		LeaseID: lease.ID, InvoiceID: &inv.ID, Amount: 1200, PhoneNumber: "0977123456", Reference: "MM-B",
	})
	require.NoError(t, err)

	_, err = f.svc.Payments.HandleCallback(ctx, mobilemoney.Callback{Reference: first.Reference, Status: mobilemoney.StatusSuccessful})
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, reload[model.Invoice](t, f.db, inv.ID).Status)

	settled, err := f.svc.Payments.HandleCallback(ctx, mobilemoney.Callback{Reference: second.Reference, Status: mobilemoney.StatusSuccessful})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentVerified, settled.Status)
	assert.Nil(t, settled.InvoiceID, "the excess stays on the lease")

	stored := reload[model.Payment](t, f.db, second.ID)
	assert.Equal(t, model.PaymentVerified, stored.Status)
	assert.Nil(t, stored.InvoiceID)
	assert.Equal(t, 1200.0, reload[model.Invoice](t, f.db, inv.ID).AmountPaid)
}

func TestCancelWithPendingPayment(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	inv := testutil.Invoice(t, f.db, lease, model.InvoiceSent, 1200, date(2024, 3, 5))

	payment, _, err := f.svc.Payments.Record(ctx, as(f.tenant), PaymentInput{
		LeaseID: lease.ID, InvoiceID: &inv.ID, Amount: 1200, Method: model.MethodBankTransfer,
	})
	require.NoError(t, err)

	_, err = f.svc.Invoices.Cancel(ctx, as(f.landlord), inv.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, model.InvoiceSent, reload[model.Invoice](t, f.db, inv.ID).Status)

	_, err = f.svc.Payments.Reject(ctx, as(f.landlord), payment.ID, "no deposit")
	require.NoError(t, err)
	cancelled, err := f.svc.Invoices.Cancel(ctx, as(f.landlord), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceCancelled, cancelled.Status)
}

func TestVerifyAfterInvoiceCancelled(t *testing.T) {
	f := newFixture(t)
	lease := testutil.Lease(t, f.db, f.property, f.tenant, model.LeaseActive, date(2024, 1, 1))
	inv := testutil.Invoice(t, f.db, lease, model.InvoiceSent, 1200, date(2024, 3, 5))

	payment, _, err := f.svc.Payments.Record(ctx, as(f.tenant), PaymentInput{
		LeaseID: lease.ID, InvoiceID: &inv.ID, Amount: 1200, Method: model.MethodBankTransfer,
	})
	require.NoError(t, err)
	// cancelled before pending payments blocked cancellation
	require.NoError(t, f.db.Model(&model.Invoice{}).Where("id = ?", inv.ID).Update("status", model.InvoiceCancelled).Error)

	verified, err := f.svc.Payments.Verify(ctx, as(f.landlord), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentVerified, verified.Status)
	assert.Nil(t, verified.InvoiceID)

	i := reload[model.Invoice](t, f.db, inv.ID)
	assert.Equal(t, model.InvoiceCancelled, i.Status)
	assert.Zero(t, i.AmountPaid)
}
