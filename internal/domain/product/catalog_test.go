package product

import (
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/db"
)

func TestDecodeCatalog_Embedded(t *testing.T) {
	products, err := DecodeCatalog(db.Products)
	require.NoError(t, err)
	require.Len(t, products, 6)

	assert.Equal(t, int64(1), products[0].ID)
	assert.Equal(t, "Wireless Mouse", products[0].Name)
	assert.Equal(t, "25.99", products[0].Price.StringFixed(2))
	assert.Equal(t, "Noise Cancelling Headphones", products[5].Name)
}

func TestDecodeCatalog(t *testing.T) {
	products, err := DecodeCatalog([]byte(`[{"id":7,"name":"Cable","price":4.5,"image":"","extra":true}]`))
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "4.50", products[0].Price.StringFixed(2))

	_, err = DecodeCatalog([]byte(`[{"name":"No id","price":1}]`))
	require.Error(t, err)

	_, err = DecodeCatalog([]byte(`[{"id":1,"name":"Bad","price":"abc"}]`))
	require.Error(t, err)

	_, err = DecodeCatalog([]byte(`{}`))
	require.Error(t, err)
}

func TestDecodeCatalog_TrailingData(t *testing.T) {
	_, err := DecodeCatalog([]byte(`[{"id":1,"name":"Cable","price":1}] [`))
	require.Error(t, err)
}

func TestDecodePrice(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "number", input: `25.99`, want: "25.99"},
		{name: "string", input: `"79.990"`, want: "79.99"},
		{name: "exact beyond float", input: `0.1000000000000000055511151231257827`, want: "0.1000000000000000055511151231257827"},
		{name: "not numeric", input: `"abc"`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
		{name: "null", input: `null`, wantErr: true},
		{name: "object", input: `{"v":1}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := DecodePrice(jx.DecodeStr(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(v), v.String())
		})
	}
}
