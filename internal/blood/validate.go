package blood

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("bloodgroup", func(fl validator.FieldLevel) bool {
		return BloodGroup(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		r := Role(fl.Field().String())
		return r == RoleDonor || r == RoleCivilian
	})
	return v
}

var messages = map[string]string{
	"required":   "%s is required",
	"notblank":   "%s is required",
	"email":      "%s must be a valid email address",
	"gte":        "%s must be at least %s",
	"min":        "%s must be at least %s characters long",
	"bloodgroup": "%s must be one of A+, A-, B+, B-, O+, O-, AB+, AB-",
	"role":       "%s must be Donor or Civilian",
}

// Validate checks s against its `validate` tags and reports every violated
// field as a single ErrValidation.
func Validate(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	tmpl, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
	if strings.Count(tmpl, "%s") == 2 {
		return fmt.Sprintf(tmpl, fe.Field(), fe.Param())
	}
	return fmt.Sprintf(tmpl, fe.Field())
}

// RequestDraft is a civilian's not-yet-submitted blood request.
type RequestDraft struct {
	BloodGroup BloodGroup `json:"blood_group" validate:"bloodgroup"`
	Quantity   int        `json:"quantity" validate:"gte=1"`
	Address    string     `json:"address" validate:"notblank"`
}

// Normalize trims the free-text address.
func (d RequestDraft) Normalize() RequestDraft {
	d.Address = strings.TrimSpace(d.Address)
	return d
}

// Validate enforces the submission preconditions.
func (d RequestDraft) Validate() error { return Validate(d) }

// Registration is the sign-up form for a donor or civilian profile.
type Registration struct {
	Kind       Role       `json:"-" validate:"role"`
	Username   string     `json:"username" validate:"notblank"`
	Email      string     `json:"email" validate:"required,email"`
	Password   string     `json:"password" validate:"required,min=8"`
	FirstName  string     `json:"first_name" validate:"notblank"`
	LastName   string     `json:"last_name" validate:"notblank"`
	BloodGroup BloodGroup `json:"blood_group,omitempty"`
}

// Validate enforces required fields; a donor must also state a valid group.
func (r Registration) Validate() error {
	if err := Validate(r); err != nil {
		return err
	}
	if r.Kind == RoleDonor && !r.BloodGroup.Valid() {
		return fmt.Errorf("%w: blood_group must be one of A+, A-, B+, B-, O+, O-, AB+, AB-", ErrValidation)
	}
	if r.Kind == RoleCivilian && r.BloodGroup != "" && !r.BloodGroup.Valid() {
		return fmt.Errorf("%w: blood_group is invalid", ErrValidation)
	}
	return nil
}
