package roster

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"rollcall/internal/schedule"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, err := schedule.ParseDay(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("clock12", func(fl validator.FieldLevel) bool {
		_, _, err := schedule.ParseClock(fl.Field().String())
		return err == nil
	})
}

// timingRules re-declares the validation tags for schedule.TimingEntry,
// which lives outside this package and carries no validate tags itself.
type timingRules struct {
	Day   string `validate:"required,weekday"`
	Start string `validate:"required,clock12"`
	End   string `validate:"omitempty,clock12"`
}

// ValidateCreateClass checks a class creation payload, including every
// timing entry's day name and 12-hour start time.
func ValidateCreateClass(in CreateClassInput) error {
	if err := validate.Struct(in); err != nil {
		return normalizeValidationErr(err)
	}
	for i, entry := range in.Timings {
		rules := timingRules{Day: entry.Day, Start: entry.Start, End: entry.End}
		if err := validate.Struct(rules); err != nil {
			return fmt.Errorf("timing %d: %w", i, normalizeValidationErr(err))
		}
	}
	return nil
}

func normalizeValidationErr(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("field %s failed %q validation", fe.Field(), fe.Tag())
	}
	return err
}
