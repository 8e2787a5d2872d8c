package core

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitValidators(t *testing.T) {
	validate := validator.New()
	translator := NewTranslator()
	InitValidators(validate, translator)

	type form struct {
		Title string `json:"title" validate:"required,notblank"`
		Phone string `json:"phone" validate:"omitempty,phone"`
	}

	tests := []struct {
		name string
		form form
		want map[string]string
	}{
		{name: "valid", form: form{Title: "Hackathon", Phone: "+243 (81) 555-0101"}},
		{name: "no phone", form: form{Title: "Hackathon"}},
		{
			name: "blank title",
			form: form{Title: "   ", Phone: "555"},
			want: map[string]string{"title": "this field cannot be blank", "phone": "invalid phone number"},
		},
		{
			name: "missing",
			form: form{Phone: "call me"},
			want: map[string]string{"title": "this field is required", "phone": "invalid phone number"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.form)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			got := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				got[fe.Field()] = fe.Translate(translator)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
