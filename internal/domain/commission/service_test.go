package commission

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockCommissionRepo struct {
	byID      map[string]*Commission
	byOrder   map[string]*Commission
	createErr error
	updateErr error
	updated   int
}

func newMockCommissionRepo() *mockCommissionRepo {
	return &mockCommissionRepo{
		byID:    make(map[string]*Commission),
		byOrder: make(map[string]*Commission),
	}
}

func (m *mockCommissionRepo) Create(_ context.Context, c *Commission) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.byOrder[c.OrderID]; ok {
		return ErrDuplicate
	}
	cp := *c
	m.byID[c.ID] = &cp
	m.byOrder[c.OrderID] = &cp
	return nil
}

func (m *mockCommissionRepo) GetByID(_ context.Context, id string) (*Commission, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCommissionRepo) GetByOrderID(_ context.Context, orderID string) (*Commission, error) {
	c, ok := m.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCommissionRepo) Update(_ context.Context, c *Commission) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated++
	cp := *c
	m.byID[c.ID] = &cp
	m.byOrder[c.OrderID] = &cp
	return nil
}

func (m *mockCommissionRepo) SummaryBySeller(_ context.Context, _ string) ([]StatusSummary, error) {
	return nil, nil
}

func defaultService(repo Repository) *Service {
	return NewService(repo, TypePercentage, Config{Percentage: d("5")})
}

// --- Tests ---

func TestCreateForOrder(t *testing.T) {
	repo := newMockCommissionRepo()
	svc := defaultService(repo)

	c, err := svc.CreateForOrder(context.Background(), CreateRequest{
		OrderID:   "ord-1",
		SellerID:  "sel-1",
		Type:      TypeMixed,
		Config:    Config{Percentage: d("5"), FixedAmount: d("40")},
		Gross:     d("1100"),
		Discounts: d("100"),
		Net:       d("1000"),
	})

	require.NoError(t, err)
	assert.Equal(t, StatusCalculated, c.Status)
	assert.True(t, c.Active)
	assert.True(t, d("50.00").Equal(c.Calculation.Amount), "got %s", c.Calculation.Amount)
	assert.True(t, d("1000").Equal(c.Calculation.Base))
	assert.False(t, c.CalculatedAt.IsZero())
}

func TestCreateForOrder_UsesDefaultsWhenTypeEmpty(t *testing.T) {
	repo := newMockCommissionRepo()
	svc := defaultService(repo)

	c, err := svc.CreateForOrder(context.Background(), CreateRequest{
		OrderID:  "ord-1",
		SellerID: "sel-1",
		Net:      d("200"),
	})

	require.NoError(t, err)
	assert.Equal(t, TypePercentage, c.Type)
	assert.True(t, d("10.00").Equal(c.Calculation.Amount))
}

func TestCreateForOrder_DuplicateOrder(t *testing.T) {
	repo := newMockCommissionRepo()
	svc := defaultService(repo)

	req := CreateRequest{OrderID: "ord-1", SellerID: "sel-1", Net: d("100")}
	_, err := svc.CreateForOrder(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.CreateForOrder(context.Background(), req)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestCreateForOrder_NotesTooLong(t *testing.T) {
	svc := defaultService(newMockCommissionRepo())

	_, err := svc.CreateForOrder(context.Background(), CreateRequest{
		OrderID:  "ord-1",
		SellerID: "sel-1",
		Net:      d("100"),
		Notes:    strings.Repeat("x", 1001),
	})
	require.ErrorIs(t, err, ErrNotesTooLong)
}

func TestReconfigure_Recomputes(t *testing.T) {
	repo := newMockCommissionRepo()
	svc := defaultService(repo)

	c, err := svc.CreateForOrder(context.Background(), CreateRequest{
		OrderID: "ord-1", SellerID: "sel-1", Net: d("1000"),
	})
	require.NoError(t, err)
	require.True(t, d("50.00").Equal(c.Calculation.Amount))

	c, err = svc.Reconfigure(context.Background(), c.ID, TypeFixed, Config{FixedAmount: d("75")})
	require.NoError(t, err)
	assert.True(t, d("75").Equal(c.Calculation.Amount))
	assert.True(t, d("1000").Equal(c.Calculation.Base))
}

func TestAdjustSale_Recomputes(t *testing.T) {
	repo := newMockCommissionRepo()
	svc := defaultService(repo)

	c, err := svc.CreateForOrder(context.Background(), CreateRequest{
		OrderID: "ord-1", SellerID: "sel-1", Net: d("1000"),
	})
	require.NoError(t, err)

	c, err = svc.AdjustSale(context.Background(), c.ID, d("660"), d("60"), d("600"))
	require.NoError(t, err)
	assert.True(t, d("30.00").Equal(c.Calculation.Amount))
	assert.True(t, d("600").Equal(c.Calculation.Base))
	assert.True(t, d("600").Equal(c.Calculation.NetAmount))
}

func TestApprovePayFlow(t *testing.T) {
	repo := newMockCommissionRepo()
	svc := defaultService(repo)

	c, err := svc.CreateForOrder(context.Background(), CreateRequest{
		OrderID: "ord-1", SellerID: "sel-1", Net: d("1000"),
	})
	require.NoError(t, err)

	// Paying before approval is rejected.
	_, err = svc.MarkPaid(context.Background(), c.ID, PaymentDetails{Method: PayTransfer})
	var flowErr *StatusFlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, StatusCalculated, flowErr.From)

	c, err = svc.Approve(context.Background(), c.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, c.Status)
	require.NotNil(t, c.ApprovedAt)
	require.NotNil(t, c.ApproverID)
	assert.Equal(t, "admin-1", *c.ApproverID)

	// Double approval is rejected.
	_, err = svc.Approve(context.Background(), c.ID, "admin-2")
	require.ErrorAs(t, err, &flowErr)

	c, err = svc.MarkPaid(context.Background(), c.ID, PaymentDetails{
		Method:            PayTransfer,
		TransactionNumber: "tx-99",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, c.Status)
	require.NotNil(t, c.PaidAt)
	assert.Equal(t, "tx-99", c.Payment.TransactionNumber)

	// Paid commissions cannot be cancelled.
	_, err = svc.Cancel(context.Background(), c.ID, "mistake")
	require.ErrorAs(t, err, &flowErr)
}

func TestCancel(t *testing.T) {
	repo := newMockCommissionRepo()
	svc := defaultService(repo)

	c, err := svc.CreateForOrder(context.Background(), CreateRequest{
		OrderID: "ord-1", SellerID: "sel-1", Net: d("1000"),
	})
	require.NoError(t, err)

	c, err = svc.Cancel(context.Background(), c.ID, "order returned")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, c.Status)
	assert.Equal(t, "order returned", c.Notes)
}

func TestDeactivate(t *testing.T) {
	repo := newMockCommissionRepo()
	svc := defaultService(repo)

	c, err := svc.CreateForOrder(context.Background(), CreateRequest{
		OrderID: "ord-1", SellerID: "sel-1", Net: d("1000"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), c.ID))
	got, err := repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}
