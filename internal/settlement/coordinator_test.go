package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/01moynul/medbooks-golang/internal/apperr"
	"github.com/01moynul/medbooks-golang/internal/authz"
	"github.com/01moynul/medbooks-golang/internal/database/dbtest"
	"github.com/01moynul/medbooks-golang/internal/events"
	"github.com/01moynul/medbooks-golang/internal/ledger"
	"github.com/01moynul/medbooks-golang/internal/models"
	"github.com/01moynul/medbooks-golang/internal/orders"
	"github.com/01moynul/medbooks-golang/internal/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	buyer   = authz.Principal{UserID: "buyer-1", Role: models.RoleUser}
	mallory = authz.Principal{UserID: "mallory", Role: models.RoleUser}
	admin   = authz.Principal{UserID: "admin-1", Role: models.RoleAdmin}
)

type fixture struct {
	db      *gorm.DB
	rec     *events.Recorder
	wallets *wallet.Manager
	orders  *orders.Service
	c       *Coordinator
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	rec := &events.Recorder{}
	wallets := wallet.NewManager(db, rec, "IRR")
	return &fixture{
		db:      db,
		rec:     rec,
		wallets: wallets,
		orders:  orders.NewService(db, dec("10")),
		c:       NewCoordinator(db, wallets, rec),
	}
}

func (f *fixture) listing(t *testing.T, sellerID, price string, qty int) models.Listing {
	t.Helper()
	l := models.Listing{
		SellerID:  sellerID,
		Title:     "Gray's Anatomy",
		Slug:      "grays-anatomy-" + sellerID + "-" + price,
		Condition: "GOOD",
		Price:     dec(price),
		Currency:  "IRR",
		Quantity:  qty,
		Status:    models.ListingApproved,
	}
	require.NoError(t, f.db.Create(&l).Error)
	return l
}

// twoSellerOrder places the 225000 / 50000 payout order and opens its payment.
func (f *fixture) twoSellerOrder(t *testing.T) (*models.Order, *models.Payment) {
	t.Helper()
	ctx := context.Background()
	a := f.listing(t, "seller-a", "250000", 3)
	b := f.listing(t, "seller-b", "55555.56", 1)

	o, err := f.orders.Create(ctx, buyer, orders.CreateInput{Items: []orders.ItemInput{
		{ListingID: a.ID, Quantity: 1},
		{ListingID: b.ID, Quantity: 1},
	}})
	require.NoError(t, err)
	require.Equal(t, "305555.56", o.TotalAmount.StringFixed(2))

	p, err := f.c.CreatePayment(ctx, buyer, CreatePaymentInput{OrderID: o.ID, Gateway: "zarinpal", Amount: o.TotalAmount})
	require.NoError(t, err)
	require.Equal(t, models.PaymentPending, p.Status)
	return o, p
}

func (f *fixture) balance(t *testing.T, userID string) string {
	t.Helper()
	var w models.Wallet
	require.NoError(t, f.db.Where("user_id = ?", userID).First(&w).Error)
	return w.Balance.StringFixed(2)
}

func (f *fixture) paymentStatus(t *testing.T, id string) models.PaymentStatus {
	t.Helper()
	var p models.Payment
	require.NoError(t, f.db.Where("id = ?", id).First(&p).Error)
	return p.Status
}

func (f *fixture) orderStatus(t *testing.T, id string) models.OrderStatus {
	t.Helper()
	var o models.Order
	require.NoError(t, f.db.Where("id = ?", id).First(&o).Error)
	return o.Status
}

func TestProcessSuccessCreditsEverySeller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, p := f.twoSellerOrder(t)

	paid, err := f.c.ProcessSuccess(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentSucceeded, paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.Equal(t, models.OrderPaid, f.orderStatus(t, o.ID))

	var incomes []models.WalletTransaction
	require.NoError(t, f.db.Where("type = ?", models.TxSaleIncome).Find(&incomes).Error)
	require.Len(t, incomes, 2)
	require.Equal(t, "225000.00", f.balance(t, "seller-a"))
	require.Equal(t, "50000.00", f.balance(t, "seller-b"))
	require.Len(t, f.rec.OfType(events.PaymentSucceeded), 1)
	require.Len(t, f.rec.OfType(events.SellerPayoutCredited), 2)

	// A repeated success call is refused and credits nothing.
	_, err = f.c.ProcessSuccess(ctx, p.ID)
	require.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
	_, err = f.c.ProcessFailure(ctx, p.ID, nil)
	require.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
	require.Equal(t, "225000.00", f.balance(t, "seller-a"))

	for _, e := range incomes {
		require.NoError(t, ledger.Replay(f.db, e.WalletID))
	}
}

func TestProcessSuccessRollsBackAsAUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, p := f.twoSellerOrder(t)

	// An order that is no longer awaiting payment aborts the whole settlement.
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", o.ID).Update("status", models.OrderShipped).Error)
	_, err := f.c.ProcessSuccess(ctx, p.ID)
	require.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	var again models.Payment
	require.NoError(t, f.db.Where("id = ?", p.ID).First(&again).Error)
	require.Equal(t, models.PaymentPending, again.Status)
	require.Nil(t, again.PaidAt)

	var count int64
	require.NoError(t, f.db.Model(&models.WalletTransaction{}).Count(&count).Error)
	require.Zero(t, count)
	require.Empty(t, f.rec.OfType(events.PaymentSucceeded))
}

func TestRefundPaymentCreditsBuyer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, p := f.twoSellerOrder(t)

	_, err := f.c.RefundPayment(ctx, p.ID, nil)
	require.ErrorIs(t, err, apperr.ErrAlreadyProcessed)

	_, err = f.c.ProcessSuccess(ctx, p.ID)
	require.NoError(t, err)

	tooMuch := dec("305555.57")
	_, err = f.c.RefundPayment(ctx, p.ID, &tooMuch)
	require.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	zero := decimal.Zero
	_, err = f.c.RefundPayment(ctx, p.ID, &zero)
	require.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	subCent := dec("1000.005")
	_, err = f.c.RefundPayment(ctx, p.ID, &subCent)
	require.ErrorIs(t, err, apperr.ErrSubCentAmount)
	require.Equal(t, models.PaymentSucceeded, f.paymentStatus(t, p.ID))

	amount := dec("285000")
	refunded, err := f.c.RefundPayment(ctx, p.ID, &amount)
	require.NoError(t, err)
	require.Equal(t, models.PaymentRefunded, refunded.Status)
	require.Equal(t, "285000.00", refunded.RefundedAmount.StringFixed(2))
	require.Equal(t, models.OrderRefunded, f.orderStatus(t, o.ID))
	require.Equal(t, "285000.00", f.balance(t, "buyer-1"))

	var refunds []models.WalletTransaction
	require.NoError(t, f.db.Where("type = ? AND ref_id = ?", models.TxRefund, p.ID).Find(&refunds).Error)
	require.Len(t, refunds, 1)
	require.Equal(t, models.RefPaymentRefund, refunds[0].RefType)

	_, err = f.c.RefundPayment(ctx, p.ID, &amount)
	require.ErrorIs(t, err, apperr.ErrAlreadyProcessed)
	require.Equal(t, "285000.00", f.balance(t, "buyer-1"))
	require.Len(t, f.rec.OfType(events.PaymentRefunded), 1)
}

func TestRefundDefaultsToFullAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, p := f.twoSellerOrder(t)

	_, err := f.c.ProcessSuccess(ctx, p.ID)
	require.NoError(t, err)
	refunded, err := f.c.RefundPayment(ctx, p.ID, nil)
	require.NoError(t, err)
	require.Equal(t, "305555.56", refunded.RefundedAmount.StringFixed(2))
	require.Equal(t, "305555.56", f.balance(t, "buyer-1"))
}

func TestProcessFailureReleasesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, p := f.twoSellerOrder(t)

	reason := "card declined"
	failed, err := f.c.ProcessFailure(ctx, p.ID, &reason)
	require.NoError(t, err)
	require.Equal(t, models.PaymentFailed, failed.Status)
	require.Equal(t, reason, *failed.FailureReason)
	require.Equal(t, models.OrderCancelled, f.orderStatus(t, o.ID))

	var listings []models.Listing
	require.NoError(t, f.db.Order("seller_id ASC").Find(&listings).Error)
	require.Equal(t, 3, listings[0].Quantity)
	require.Equal(t, 1, listings[1].Quantity)
	require.Equal(t, models.ListingApproved, listings[1].Status, "sold out listing is back on sale")

	_, err = f.c.ProcessSuccess(ctx, p.ID)
	require.ErrorIs(t, err, apperr.ErrAlreadyProcessed)

	var count int64
	require.NoError(t, f.db.Model(&models.WalletTransaction{}).Count(&count).Error)
	require.Zero(t, count)

	_, err = f.c.ProcessFailure(ctx, "missing", nil)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreatePaymentRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, "seller-a", "1000", 5)

	o, err := f.orders.Create(ctx, buyer, orders.CreateInput{
		Items:          []orders.ItemInput{{ListingID: l.ID, Quantity: 2}},
		ShippingAmount: dec("150"),
	})
	require.NoError(t, err)
	require.Equal(t, "2150.00", o.TotalAmount.StringFixed(2))

	_, err = f.c.CreatePayment(ctx, buyer, CreatePaymentInput{OrderID: o.ID, Amount: dec("2000")})
	require.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	_, err = f.c.CreatePayment(ctx, mallory, CreatePaymentInput{OrderID: o.ID, Amount: o.TotalAmount})
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = f.c.CreatePayment(ctx, buyer, CreatePaymentInput{OrderID: "missing", Amount: o.TotalAmount})
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	p, err := f.c.CreatePayment(ctx, buyer, CreatePaymentInput{OrderID: o.ID, Amount: o.TotalAmount})
	require.NoError(t, err)
	require.Equal(t, "manual", p.Gateway)
	require.NotEmpty(t, p.GatewayRef)

	_, err = f.c.CreatePayment(ctx, buyer, CreatePaymentInput{OrderID: o.ID, Amount: o.TotalAmount})
	require.ErrorIs(t, err, apperr.ErrDuplicatePayment)
}

func TestExpireStaleFailsOldPendingPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, stale := f.twoSellerOrder(t)

	fresh := f.listing(t, "seller-c", "10", 1)
	o2, err := f.orders.Create(ctx, buyer, orders.CreateInput{Items: []orders.ItemInput{{ListingID: fresh.ID, Quantity: 1}}})
	require.NoError(t, err)
	_, err = f.c.CreatePayment(ctx, buyer, CreatePaymentInput{OrderID: o2.ID, Amount: o2.TotalAmount})
	require.NoError(t, err)

	old := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, f.db.Model(&models.Payment{}).Where("id = ?", stale.ID).UpdateColumn("created_at", old).Error)

	n, err := f.c.ExpireStale(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var got models.Payment
	require.NoError(t, f.db.Where("id = ?", stale.ID).First(&got).Error)
	require.Equal(t, models.PaymentFailed, got.Status)
	require.Equal(t, ExpiredReason, *got.FailureReason)

	n, err = f.c.ExpireStale(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPaymentReadsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, p := f.twoSellerOrder(t)
	_, err := f.c.ProcessSuccess(ctx, p.ID)
	require.NoError(t, err)

	got, err := f.c.Get(ctx, buyer, p.ID)
	require.NoError(t, err)
	require.Equal(t, o.ID, got.Order.ID)
	_, err = f.c.Get(ctx, mallory, p.ID)
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	byOrder, err := f.c.GetByOrder(ctx, admin, o.ID)
	require.NoError(t, err)
	require.Equal(t, p.ID, byOrder.ID)

	mine, err := f.c.ListMine(ctx, buyer.UserID, 1, 20)
	require.NoError(t, err)
	require.Len(t, mine.Data, 1)
	none, err := f.c.ListMine(ctx, mallory.UserID, 1, 20)
	require.NoError(t, err)
	require.Empty(t, none.Data)

	_, err = f.c.ListAll(ctx, buyer, 1, 20, "", "")
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	all, err := f.c.ListAll(ctx, admin, 1, 20, "succeeded", "ZARINPAL")
	require.NoError(t, err)
	require.EqualValues(t, 1, all.Pagination.Total)

	stats, err := f.c.Stats(ctx, admin)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Total)
	require.EqualValues(t, 1, stats.ByStatus["SUCCEEDED"])
	require.Equal(t, "305555.56", stats.SucceededAmount.StringFixed(2))
	require.True(t, stats.RefundedAmount.IsZero())
}
