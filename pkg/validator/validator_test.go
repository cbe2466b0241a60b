package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineInput struct {
	ProductID string `json:"product_id" validate:"required,max=8"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=1000"`
}

type orderInput struct {
	CustomerID string      `json:"customer_id" validate:"required"`
	Email      string      `json:"email,omitempty" validate:"omitempty,email"`
	Type       string      `json:"type" validate:"required,oneof=DELIVERY PICKUP DINE_IN"`
	Lines      []lineInput `json:"lines" validate:"required,min=1,max=3,dive"`
}

type priceInput struct {
	Price decimal.Decimal `json:"price" validate:"money"`
}

func validOrder() orderInput {
	return orderInput{CustomerID: "cust-1", Type: "PICKUP", Lines: []lineInput{{ProductID: "pizza", Quantity: 2}}}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *orderInput)
		field   string
		message string
	}{
		{"valid", func(*orderInput) {}, "", ""},
		{"missing customer", func(o *orderInput) { o.CustomerID = "" }, "customer_id", "is required"},
		{"bad email", func(o *orderInput) { o.Email = "nope" }, "email", "must be a valid email address"},
		{"unknown type", func(o *orderInput) { o.Type = "DRONE" }, "type", "must be one of: DELIVERY PICKUP DINE_IN"},
		{"no lines", func(o *orderInput) { o.Lines = []lineInput{} }, "lines", "must contain at least 1 items"},
		{"too many lines", func(o *orderInput) {
			o.Lines = append(o.Lines, o.Lines[0], o.Lines[0], o.Lines[0])
		}, "lines", "must contain at most 3 items"},
		{"zero quantity", func(o *orderInput) {
			o.Lines = append(o.Lines, lineInput{ProductID: "cola", Quantity: 0})
		}, "lines[1].quantity", "must be greater than 0"},
		{"quantity cap", func(o *orderInput) { o.Lines[0].Quantity = 1001 }, "lines[0].quantity", "must be less than or equal to 1000"},
		{"long product id", func(o *orderInput) { o.Lines[0].ProductID = "margherita" }, "lines[0].product_id", "must contain at most 8 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOrder()
			tt.mutate(&o)
			err := Validate(o)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			field, _, msg := ve.First()
			assert.Equal(t, tt.field, field)
			assert.Equal(t, tt.message, msg)
			assert.Equal(t, tt.message, ve.Fields()[tt.field])
			assert.Contains(t, err.Error(), "field '"+tt.field+"'")
		})
	}
}

func TestValidate_Money(t *testing.T) {
	for in, ok := range map[string]bool{
		"0":      true,
		"12.5":   true,
		"12.50":  true,
		"12.505": false,
		"-1":     false,
	} {
		err := Validate(priceInput{Price: decimal.RequireFromString(in)})
		if ok {
			assert.NoError(t, err, in)
		} else {
			assert.Error(t, err, in)
		}
	}
}

type course string

type menuItem struct {
	Course course `json:"course" validate:"required,course"`
}

func TestRegisterEnum(t *testing.T) {
	RegisterEnum("course", course("STARTER"), course("MAIN"), course("DESSERT"))

	assert.NoError(t, Validate(menuItem{Course: "MAIN"}))

	err := Validate(menuItem{Course: "main"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	field, value, msg := ve.First()
	assert.Equal(t, "course", field)
	assert.Equal(t, course("main"), value)
	assert.Equal(t, "must be one of: STARTER MAIN DESSERT", msg)
}

func TestValidationError_FirstOnEmpty(t *testing.T) {
	field, value, msg := (&ValidationError{}).First()
	assert.Empty(t, field)
	assert.Nil(t, value)
	assert.Empty(t, msg)
}

func TestDecodeAndValidate(t *testing.T) {
	decode := func(body string) (orderInput, error) {
		var o orderInput
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		return o, DecodeAndValidate(req, &o)
	}

	o, err := decode(`{"customer_id":"cust-1","type":"DELIVERY","lines":[{"product_id":"pizza","quantity":1}]}`)
	require.NoError(t, err)
	assert.Equal(t, "DELIVERY", o.Type)

	_, err = decode(`{"customer_id":`)
	assert.ErrorContains(t, err, "decode request body")

	_, err = decode(`{"customer_id":"cust-1","type":"DELIVERY","lines":[]}`)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}
