package fee

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFeeDefaults(t *testing.T) {
	c := NewCalculator()

	assert.True(t, c.Fee(d("10000"), true, nil).Equal(d("4.5")))
	assert.True(t, c.Fee(d("10000"), false, nil).Equal(d("1.5")))
}

func TestFeeWithBuilder(t *testing.T) {
	c := NewCalculator()
	bps := d("10")

	assert.True(t, c.Fee(d("10000"), false, &bps).Equal(d("11.5")))
}
