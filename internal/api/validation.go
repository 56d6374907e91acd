package api

import (
	"errors"
	"fmt"
	"sync"

	"harmonyclass-api/internal/models"
	"harmonyclass-api/internal/services"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the request tags used by this package to gin's
// validator. Safe to call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("gin validator engine is not go-playground/validator")
			return
		}
		if err = v.RegisterValidation("newsletter_action", validateAction); err != nil {
			return
		}
		err = v.RegisterValidation("tier", validateTier)
	})
	return err
}

func validateAction(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case services.ActionSubscribe, services.ActionUnsubscribe, services.ActionUpgrade,
		services.ActionDowngrade, services.ActionStatus:
		return true
	}
	return false
}

func validateTier(fl validator.FieldLevel) bool {
	tier := fl.Field().String()
	return tier == models.TierFree || tier == models.TierPremium
}

// bindingMessage turns a binding failure into a client message. fieldErrors
// maps a struct field to the error reported when that field fails.
func bindingMessage(err error, fieldErrors map[string]error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return "Invalid request format: " + err.Error()
	}
	for _, fe := range validationErrs {
		if mapped, ok := fieldErrors[fe.Field()]; ok {
			return mapped.Error()
		}
	}
	fe := validationErrs[0]
	return fmt.Sprintf("Invalid field %s: failed on %s", fe.Field(), fe.Tag())
}
