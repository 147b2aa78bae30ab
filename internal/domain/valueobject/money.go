package valueobject

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/beereshbc/influencaa-backend/internal/pkg/apperror"
)

// minorUnitsPerMajor — шлюз принимает суммы в минимальных единицах валюты (пайсы, центы).
var minorUnitsPerMajor = decimal.NewFromInt(100)

type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func NewMoney(amount float64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, apperror.New(apperror.ErrCodeValidation, "сумма не может быть отрицательной")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "INR"
	}
	return Money{Amount: decimal.NewFromFloat(amount), Currency: currency}, nil
}

// MinorUnits возвращает сумму в минимальных единицах с банковским округлением.
func (m Money) MinorUnits() int64 {
	return m.Amount.Mul(minorUnitsPerMajor).RoundBank(0).IntPart()
}

// MoneyFromMinorUnits восстанавливает сумму из минимальных единиц.
func MoneyFromMinorUnits(units int64, currency string) Money {
	return Money{
		Amount:   decimal.NewFromInt(units).Div(minorUnitsPerMajor),
		Currency: currency,
	}
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Currency, m.Amount.StringFixed(2))
}
