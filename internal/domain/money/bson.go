package money

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// moneyDoc is the BSON shape: the decimal amount is stored as a string so no
// precision is lost in the database.
type moneyDoc struct {
	Amount   string `bson:"amount"`
	Currency string `bson:"currency"`
}

// MarshalBSONValue implements bson.ValueMarshaler
func (m Money) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(moneyDoc{
		Amount:   m.Amount.String(),
		Currency: string(m.Currency),
	})
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler
func (m *Money) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var doc moneyDoc
	if err := bson.UnmarshalValue(t, data, &doc); err != nil {
		return fmt.Errorf("failed to decode money value: %w", err)
	}
	amount, err := decimal.NewFromString(doc.Amount)
	if err != nil {
		return fmt.Errorf("invalid stored amount %q: %w", doc.Amount, err)
	}
	m.Amount = amount
	m.Currency = Currency(doc.Currency)
	return nil
}
