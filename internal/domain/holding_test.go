package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(typ TxType, qty, price string) Transaction {
	return Transaction{
		WalletID: "w1",
		Symbol:   "PETR4",
		Type:     typ,
		Quantity: decimal.RequireFromString(qty),
		Price:    decimal.RequireFromString(price),
	}
}

func TestNext(t *testing.T) {
	tests := []struct {
		name        string
		current     *Holding
		tx          Transaction
		expectedQty string
		expectedAvg string
		closed      bool
		err         error
	}{
		{
			name:        "first buy opens holding at trade price",
			tx:          tx(TxBuy, "10", "35.50"),
			expectedQty: "10",
			expectedAvg: "35.50",
		},
		{
			name:        "second buy averages cost",
			current:     &Holding{WalletID: "w1", Symbol: "PETR4", Quantity: decimal.NewFromInt(10), AvgCost: decimal.RequireFromString("35.50")},
			tx:          tx(TxBuy, "5", "37.00"),
			expectedQty: "15",
			expectedAvg: "36",
		},
		{
			name:        "zero price buy dilutes cost",
			current:     &Holding{WalletID: "w1", Symbol: "PETR4", Quantity: decimal.NewFromInt(10), AvgCost: decimal.NewFromInt(20)},
			tx:          tx(TxBuy, "10", "0"),
			expectedQty: "20",
			expectedAvg: "10",
		},
		{
			name:        "sell keeps average cost",
			current:     &Holding{WalletID: "w1", Symbol: "PETR4", Quantity: decimal.NewFromInt(15), AvgCost: decimal.NewFromInt(36)},
			tx:          tx(TxSell, "8", "40.00"),
			expectedQty: "7",
			expectedAvg: "36",
		},
		{
			name:    "sell everything closes holding",
			current: &Holding{WalletID: "w1", Symbol: "PETR4", Quantity: decimal.NewFromInt(7), AvgCost: decimal.NewFromInt(36)},
			tx:      tx(TxSell, "7", "41"),
			closed:  true,
		},
		{
			name:    "oversell rejected",
			current: &Holding{WalletID: "w1", Symbol: "PETR4", Quantity: decimal.NewFromInt(7), AvgCost: decimal.NewFromInt(36)},
			tx:      tx(TxSell, "1000", "40"),
			err:     ErrInsufficientQuantity,
		},
		{
			name: "sell without holding rejected",
			tx:   tx(TxSell, "1", "40"),
			err:  ErrInsufficientQuantity,
		},
		{
			name: "unknown type rejected",
			tx:   tx(TxType(9), "1", "40"),
			err:  ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.current, tt.tx)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			if tt.closed {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, decimal.RequireFromString(tt.expectedQty).Equal(got.Quantity), "quantity %s", got.Quantity)
			assert.True(t, decimal.RequireFromString(tt.expectedAvg).Equal(got.AvgCost), "avg cost %s", got.AvgCost)
		})
	}
}

func TestNext_DoesNotMutateCurrent(t *testing.T) {
	current := &Holding{WalletID: "w1", Symbol: "PETR4", Quantity: decimal.NewFromInt(10), AvgCost: decimal.NewFromInt(10)}

	_, err := Next(current, tx(TxBuy, "10", "20"))
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(10).Equal(current.Quantity))
	assert.True(t, decimal.NewFromInt(10).Equal(current.AvgCost))
}

func TestReplay(t *testing.T) {
	txs := []Transaction{
		tx(TxBuy, "10", "35.50"),
		tx(TxBuy, "5", "37.00"),
		tx(TxSell, "8", "40.00"),
	}

	h, err := Replay(txs)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "7.0000", FormatQuantity(h.Quantity))
	assert.Equal(t, "36.00", FormatMoney(h.AvgCost))

	step := (*Holding)(nil)
	for _, x := range txs {
		step, err = Next(step, x)
		require.NoError(t, err)
	}
	assert.True(t, h.SameAs(step))
}

func TestReplay_ClosedThenReopened(t *testing.T) {
	h, err := Replay([]Transaction{
		tx(TxBuy, "3", "10"),
		tx(TxSell, "3", "12"),
		tx(TxBuy, "2", "50"),
	})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, decimal.NewFromInt(2).Equal(h.Quantity))
	assert.True(t, decimal.NewFromInt(50).Equal(h.AvgCost))
}

func TestReplay_Empty(t *testing.T) {
	h, err := Replay(nil)
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestTxRequest_Validate(t *testing.T) {
	valid := func() TxRequest {
		return TxRequest{
			WalletID:   "w1",
			Symbol:     " petr4 ",
			Type:       TxBuy,
			Quantity:   decimal.NewFromInt(1),
			Price:      decimal.NewFromInt(10),
			ExecutedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		}
	}

	r := valid()
	require.NoError(t, r.Validate())
	assert.Equal(t, "PETR4", r.Symbol)

	tests := []struct {
		name   string
		mutate func(r *TxRequest)
	}{
		{"missing wallet", func(r *TxRequest) { r.WalletID = "" }},
		{"missing symbol", func(r *TxRequest) { r.Symbol = "  " }},
		{"missing type", func(r *TxRequest) { r.Type = 0 }},
		{"zero quantity", func(r *TxRequest) { r.Quantity = decimal.Zero }},
		{"negative quantity", func(r *TxRequest) { r.Quantity = decimal.NewFromInt(-1) }},
		{"negative price", func(r *TxRequest) { r.Price = decimal.NewFromInt(-1) }},
		{"negative fees", func(r *TxRequest) { r.Fees = decimal.NewNullDecimal(decimal.NewFromInt(-1)) }},
		{"missing executedAt", func(r *TxRequest) { r.ExecutedAt = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)
			assert.ErrorIs(t, r.Validate(), ErrValidation)
		})
	}
}

func TestNewTransaction_Total(t *testing.T) {
	r := TxRequest{
		WalletID:   "w1",
		Symbol:     "VALE3",
		Type:       TxBuy,
		Quantity:   decimal.RequireFromString("2.5"),
		Price:      decimal.RequireFromString("60.10"),
		Fees:       decimal.NewNullDecimal(decimal.RequireFromString("4.90")),
		ExecutedAt: time.Now(),
	}

	got := NewTransaction("id", r, time.Now())
	assert.Equal(t, "150.25", FormatMoney(got.Total))
	assert.True(t, got.Fees.Valid)
}

func TestParseTxType(t *testing.T) {
	typ, err := ParseTxType("sell")
	require.NoError(t, err)
	assert.Equal(t, TxSell, typ)

	_, err = ParseTxType("hold")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestInstrument_MergeQuote(t *testing.T) {
	now := time.Now()
	inst := Instrument{Symbol: "ITSA4", Name: "Itausa", LogoURL: "https://logo/old.svg"}

	assert.False(t, inst.MergeQuote(Quote{Symbol: "ITSA4"}, now))
	assert.Equal(t, "Itausa", inst.Name)
	assert.Equal(t, "https://logo/old.svg", inst.LogoURL)

	assert.True(t, inst.MergeQuote(Quote{Symbol: "ITSA4", Name: "ITAUSA PN"}, now))
	assert.Equal(t, "ITAUSA PN", inst.Name)
	assert.Equal(t, "https://logo/old.svg", inst.LogoURL)
	assert.Equal(t, now, inst.UpdatedAt)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "33.33", FormatMoney(Percent(decimal.NewFromInt(500), decimal.NewFromInt(1500))))
	assert.True(t, Percent(decimal.NewFromInt(5), decimal.Zero).IsZero())
}
