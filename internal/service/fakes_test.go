package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orchardshop/storefront/internal/domain"
	"github.com/orchardshop/storefront/internal/payment"
	"github.com/orchardshop/storefront/internal/repository"
	"github.com/orchardshop/storefront/pkg/errors"
)

// In-memory repository fakes. They reproduce the conditional-update semantics
// of the postgres implementations so service tests exercise the same state
// machine the production stack does.

type fakeProductRepo struct {
	products map[uuid.UUID]*domain.Product
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: make(map[uuid.UUID]*domain.Product)}
}

func (r *fakeProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, ok := r.products[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "product", ID: id.String()}
	}
	copied := *product
	return &copied, nil
}

func (r *fakeProductRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	result := make(map[uuid.UUID]*domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := r.products[id]; ok {
			copied := *product
			result[id] = &copied
		}
	}
	return result, nil
}

func (r *fakeProductRepo) Create(ctx context.Context, product *domain.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	copied := *product
	r.products[product.ID] = &copied
	return nil
}

type fakeCartRepo struct {
	carts map[uuid.UUID]*domain.Cart // by user id
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{carts: make(map[uuid.UUID]*domain.Cart)}
}

func (r *fakeCartRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart, ok := r.carts[userID]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "cart", ID: userID.String()}
	}
	copied := *cart
	copied.Items = append([]domain.CartItem(nil), cart.Items...)
	return &copied, nil
}

func (r *fakeCartRepo) Create(ctx context.Context, cart *domain.Cart) error {
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	copied := *cart
	r.carts[cart.UserID] = &copied
	return nil
}

func (r *fakeCartRepo) byID(cartID uuid.UUID) *domain.Cart {
	for _, cart := range r.carts {
		if cart.ID == cartID {
			return cart
		}
	}
	return nil
}

func (r *fakeCartRepo) UpsertItem(ctx context.Context, cartID uuid.UUID, item domain.CartItem) error {
	cart := r.byID(cartID)
	if cart == nil {
		return &errors.ErrNotFound{Resource: "cart", ID: cartID.String()}
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == item.ProductID {
			cart.Items[i] = item
			return nil
		}
	}
	cart.Items = append(cart.Items, item)
	return nil
}

func (r *fakeCartRepo) RemoveItem(ctx context.Context, cartID, productID uuid.UUID) error {
	cart := r.byID(cartID)
	if cart == nil {
		return &errors.ErrNotFound{Resource: "cart", ID: cartID.String()}
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeCartRepo) Clear(ctx context.Context, cartID uuid.UUID) error {
	cart := r.byID(cartID)
	if cart == nil {
		return &errors.ErrNotFound{Resource: "cart", ID: cartID.String()}
	}
	cart.Items = nil
	cart.CouponCode = nil
	return nil
}

func (r *fakeCartRepo) SetCoupon(ctx context.Context, cartID uuid.UUID, code *string) error {
	cart := r.byID(cartID)
	if cart == nil {
		return &errors.ErrNotFound{Resource: "cart", ID: cartID.String()}
	}
	cart.CouponCode = code
	return nil
}

type fakeCouponRepo struct {
	coupons     map[string]*domain.Coupon // by code
	redemptions map[string]int            // coupon id + user id
}

func newFakeCouponRepo() *fakeCouponRepo {
	return &fakeCouponRepo{
		coupons:     make(map[string]*domain.Coupon),
		redemptions: make(map[string]int),
	}
}

func (r *fakeCouponRepo) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	coupon, ok := r.coupons[code]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "coupon", ID: code}
	}
	copied := *coupon
	return &copied, nil
}

func (r *fakeCouponRepo) Create(ctx context.Context, coupon *domain.Coupon) error {
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	copied := *coupon
	r.coupons[coupon.Code] = &copied
	return nil
}

func (r *fakeCouponRepo) CountRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	return r.redemptions[couponID.String()+userID.String()], nil
}

func (r *fakeCouponRepo) recordRedemption(couponID, userID uuid.UUID) {
	r.redemptions[couponID.String()+userID.String()]++
}

type fakeOrderRepo struct {
	orders     map[uuid.UUID]*domain.Order
	byIdemKey  map[string]uuid.UUID // user id + key
	createErr  error
	carts      *fakeCartRepo
	products   *fakeProductRepo
	couponRepo *fakeCouponRepo

	// missNextLookup makes the next GetByIdempotencyKey miss, simulating a
	// concurrent retry inserting between the lookup and the commit
	missNextLookup bool

	// markRefundedErr fails the next MarkRefunded, simulating a transient
	// store error after the event was already received
	markRefundedErr error
}

func newFakeOrderRepo(carts *fakeCartRepo, products *fakeProductRepo, coupons *fakeCouponRepo) *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:     make(map[uuid.UUID]*domain.Order),
		byIdemKey:  make(map[string]uuid.UUID),
		carts:      carts,
		products:   products,
		couponRepo: coupons,
	}
}

func idemKey(userID uuid.UUID, key string) string {
	return userID.String() + "/" + key
}

// CreateFromCart mirrors the transactional commit: stock decrements, order
// insert, coupon accounting and cart clear, or nothing at all.
func (r *fakeOrderRepo) CreateFromCart(ctx context.Context, params repository.CheckoutParams) error {
	if r.createErr != nil {
		return r.createErr
	}

	// Like the partial unique index, any non-null key dedupes, including ''.
	order := params.Order
	if order.IdempotencyKey != nil {
		if _, exists := r.byIdemKey[idemKey(order.UserID, *order.IdempotencyKey)]; exists {
			return repository.ErrDuplicateIdempotencyKey
		}
	}

	var shortages []errors.StockShortage
	for _, item := range order.Items {
		product, ok := r.products.products[item.ProductID]
		if !ok || product.Stock < item.Quantity {
			available := 0
			name := item.Name
			if ok {
				available = product.Stock
				name = product.Name
			}
			shortages = append(shortages, errors.StockShortage{
				ProductID: item.ProductID.String(),
				Name:      name,
				Requested: item.Quantity,
				Available: available,
			})
		}
	}
	if len(shortages) > 0 {
		return &errors.ErrInsufficientStock{Items: shortages}
	}

	if params.Coupon != nil {
		stored := r.couponRepo.coupons[params.Coupon.Code]
		if stored.UsageLimit != nil && stored.TimesUsed >= *stored.UsageLimit {
			return &errors.ErrCouponInvalid{Code: stored.Code, Reason: "usage limit reached"}
		}
		stored.TimesUsed++
		r.couponRepo.recordRedemption(stored.ID, order.UserID)
	}

	for _, item := range order.Items {
		r.products.products[item.ProductID].Stock -= item.Quantity
	}

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	copied := *order
	r.orders[order.ID] = &copied
	if order.IdempotencyKey != nil {
		r.byIdemKey[idemKey(order.UserID, *order.IdempotencyKey)] = order.ID
	}

	if cart := r.carts.byID(params.CartID); cart != nil {
		cart.Items = nil
		cart.CouponCode = nil
	}
	return nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "order", ID: id.String()}
	}
	copied := *order
	return &copied, nil
}

func (r *fakeOrderRepo) GetByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*domain.Order, error) {
	if r.missNextLookup {
		r.missNextLookup = false
		return nil, &errors.ErrNotFound{Resource: "order", ID: key}
	}
	id, ok := r.byIdemKey[idemKey(userID, key)]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "order", ID: key}
	}
	return r.GetByID(ctx, id)
}

func (r *fakeOrderRepo) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Order, error) {
	var result []*domain.Order
	for _, order := range r.orders {
		if order.UserID == userID {
			copied := *order
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeOrderRepo) ListByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	var result []*domain.Order
	for _, order := range r.orders {
		if status == "" || order.Status == status {
			copied := *order
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *fakeOrderRepo) SetPaymentIntent(ctx context.Context, id uuid.UUID, result domain.PaymentResult) error {
	order, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order %s not found", id)
	}
	if !order.IsPaid {
		copied := result
		order.PaymentResult = &copied
	}
	return nil
}

func (r *fakeOrderRepo) MarkPaid(ctx context.Context, id uuid.UUID, result domain.PaymentResult, paidAt time.Time) (bool, error) {
	order, ok := r.orders[id]
	if !ok || order.Status != domain.OrderStatusPending || order.IsPaid {
		return false, nil
	}
	order.Status = domain.OrderStatusPaid
	order.IsPaid = true
	order.PaidAt = &paidAt
	copied := result
	order.PaymentResult = &copied
	return true, nil
}

func (r *fakeOrderRepo) Ship(ctx context.Context, id uuid.UUID, carrier, trackingNumber string) (bool, error) {
	order, ok := r.orders[id]
	if !ok || order.Status != domain.OrderStatusPaid {
		return false, nil
	}
	order.Status = domain.OrderStatusShipped
	order.TrackingCarrier = &carrier
	order.TrackingNumber = &trackingNumber
	return true, nil
}

func (r *fakeOrderRepo) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	order, ok := r.orders[id]
	if !ok || order.IsDelivered {
		return false, nil
	}
	if order.Status != domain.OrderStatusPaid && order.Status != domain.OrderStatusShipped {
		return false, nil
	}
	order.Status = domain.OrderStatusDelivered
	order.IsDelivered = true
	order.DeliveredAt = &at
	return true, nil
}

func (r *fakeOrderRepo) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	order, ok := r.orders[id]
	if !ok || order.Status != domain.OrderStatusPending || order.IsPaid {
		return false, nil
	}
	order.Status = domain.OrderStatusCancelled
	return true, nil
}

func (r *fakeOrderRepo) RequestReturn(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	order, ok := r.orders[id]
	if !ok || order.Status != domain.OrderStatusDelivered || order.ReturnStatus != domain.ReturnStatusNone {
		return false, nil
	}
	order.ReturnStatus = domain.ReturnStatusRequested
	order.ReturnReason = &reason
	return true, nil
}

func (r *fakeOrderRepo) ApproveReturn(ctx context.Context, id uuid.UUID, refundID string, result domain.PaymentResult) (bool, error) {
	order, ok := r.orders[id]
	if !ok || order.ReturnStatus != domain.ReturnStatusRequested {
		return false, nil
	}
	order.ReturnStatus = domain.ReturnStatusApproved
	order.Status = domain.OrderStatusRefunded
	order.RefundID = &refundID
	copied := result
	order.PaymentResult = &copied
	return true, nil
}

func (r *fakeOrderRepo) RejectReturn(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	order, ok := r.orders[id]
	if !ok || order.ReturnStatus != domain.ReturnStatusRequested {
		return false, nil
	}
	order.ReturnStatus = domain.ReturnStatusRejected
	order.ReturnReason = &reason
	return true, nil
}

func (r *fakeOrderRepo) MarkRefunded(ctx context.Context, id uuid.UUID, refundID string, result domain.PaymentResult) (bool, error) {
	if r.markRefundedErr != nil {
		err := r.markRefundedErr
		r.markRefundedErr = nil
		return false, err
	}
	order, ok := r.orders[id]
	if !ok {
		return false, nil
	}
	switch order.Status {
	case domain.OrderStatusPaid, domain.OrderStatusShipped, domain.OrderStatusDelivered:
	default:
		return false, nil
	}
	order.Status = domain.OrderStatusRefunded
	order.RefundID = &refundID
	copied := result
	order.PaymentResult = &copied
	return true, nil
}

type fakeProcessedEventRepo struct {
	seen map[string]bool
}

func newFakeProcessedEventRepo() *fakeProcessedEventRepo {
	return &fakeProcessedEventRepo{seen: make(map[string]bool)}
}

func (r *fakeProcessedEventRepo) Seen(ctx context.Context, eventID string) (bool, error) {
	return r.seen[eventID], nil
}

func (r *fakeProcessedEventRepo) MarkProcessed(ctx context.Context, event domain.ProcessedEvent) (bool, error) {
	if r.seen[event.EventID] {
		return false, nil
	}
	r.seen[event.EventID] = true
	return true, nil
}

type fakeOrderEventRepo struct {
	events []*domain.OrderEvent
}

func (r *fakeOrderEventRepo) Create(ctx context.Context, event *domain.OrderEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *fakeOrderEventRepo) eventTypes() []string {
	types := make([]string, len(r.events))
	for i, event := range r.events {
		types[i] = event.EventType
	}
	return types
}

type fakeGateway struct {
	intents      map[string]*payment.Intent
	refundErr    error
	refunds      int
	refundsByKey map[string]*payment.Refund
	intentSeq    int
	createErr    error
	getIntent    *payment.Intent
	getErr       error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		intents:      make(map[string]*payment.Intent),
		refundsByKey: make(map[string]*payment.Refund),
	}
}

func (g *fakeGateway) CreateIntent(ctx context.Context, params payment.CreateIntentParams) (*payment.Intent, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.intentSeq++
	intent := &payment.Intent{
		ID:           fmt.Sprintf("pi_%d", g.intentSeq),
		ClientSecret: fmt.Sprintf("pi_%d_secret", g.intentSeq),
		Status:       "requires_payment_method",
		Amount:       params.AmountMinor,
		Currency:     params.Currency,
		Metadata:     map[string]string{"order_id": params.OrderID, "user_id": params.UserID},
	}
	g.intents[intent.ID] = intent
	return intent, nil
}

func (g *fakeGateway) GetIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	if g.getErr != nil {
		return nil, g.getErr
	}
	if g.getIntent != nil {
		return g.getIntent, nil
	}
	intent, ok := g.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("intent %s not found", intentID)
	}
	return intent, nil
}

// Refund dedupes by idempotency key the way the processor does: a repeated
// key returns the original refund without creating a second one.
func (g *fakeGateway) Refund(ctx context.Context, intentID, idempotencyKey string) (*payment.Refund, error) {
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	if refund, ok := g.refundsByKey[idempotencyKey]; ok {
		return refund, nil
	}
	g.refunds++
	refund := &payment.Refund{
		ID:            fmt.Sprintf("re_%d", g.refunds),
		PaymentIntent: intentID,
		Status:        "succeeded",
	}
	if idempotencyKey != "" {
		g.refundsByKey[idempotencyKey] = refund
	}
	return refund, nil
}

type fakeNotifier struct {
	kinds []string
}

func (n *fakeNotifier) PublishOrderEvent(ctx context.Context, kind string, order *domain.Order) {
	n.kinds = append(n.kinds, kind)
}

// testEnv bundles the fakes behind a Repositories aggregate
type testEnv struct {
	repos    *repository.Repositories
	products *fakeProductRepo
	carts    *fakeCartRepo
	coupons  *fakeCouponRepo
	orders   *fakeOrderRepo
	ledger   *fakeProcessedEventRepo
	audit    *fakeOrderEventRepo
	gateway  *fakeGateway
	notifier *fakeNotifier
}

func newTestEnv() *testEnv {
	products := newFakeProductRepo()
	carts := newFakeCartRepo()
	coupons := newFakeCouponRepo()
	orders := newFakeOrderRepo(carts, products, coupons)
	ledger := newFakeProcessedEventRepo()
	audit := &fakeOrderEventRepo{}

	return &testEnv{
		repos: &repository.Repositories{
			Product:        products,
			Cart:           carts,
			Coupon:         coupons,
			Order:          orders,
			ProcessedEvent: ledger,
			OrderEvent:     audit,
		},
		products: products,
		carts:    carts,
		coupons:  coupons,
		orders:   orders,
		ledger:   ledger,
		audit:    audit,
		gateway:  newFakeGateway(),
		notifier: &fakeNotifier{},
	}
}

func (e *testEnv) addProduct(name string, price float64, stock int) uuid.UUID {
	product := &domain.Product{Name: name, Price: price, Stock: stock}
	_ = e.products.Create(context.Background(), product)
	return product.ID
}

func (e *testEnv) addCart(userID uuid.UUID, items ...domain.CartItem) *domain.Cart {
	cart := &domain.Cart{UserID: userID, Items: items}
	_ = e.carts.Create(context.Background(), cart)
	return e.carts.carts[userID]
}

func (e *testEnv) addOrder(order *domain.Order) *domain.Order {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	e.orders.orders[order.ID] = order
	return order
}
