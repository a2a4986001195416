package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email  string `json:"email" validate:"required,email"`
	Date   string `json:"date" validate:"required,isodate"`
	Bar    string `json:"bar_number" validate:"omitempty,barnum"`
	Phone  string `json:"phone" validate:"omitempty,phone"`
	Rating int    `json:"rating" validate:"gte=1,lte=5"`
}

func TestValidate_OK(t *testing.T) {
	errs, err := Validate(sample{Email: "a@b.co", Date: "2024-05-01", Bar: "D/123/2020", Phone: "+91 98765 43210", Rating: 5})
	require.NoError(t, err)
	assert.Nil(t, errs)
}

func TestValidate_FieldMessagesUseJSONNames(t *testing.T) {
	errs, err := Validate(sample{Email: "nope", Date: "01-05-2024", Bar: "!", Phone: "abc", Rating: 9})
	require.NoError(t, err)
	assert.Equal(t, []string{"Invalid email format"}, errs["email"])
	assert.Equal(t, []string{"Invalid date (use YYYY-MM-DD)"}, errs["date"])
	assert.Equal(t, []string{"Invalid bar number format"}, errs["bar_number"])
	assert.Equal(t, []string{"Invalid phone number"}, errs["phone"])
	assert.Equal(t, []string{"Must be less than or equal to 5"}, errs["rating"])
}
