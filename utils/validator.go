package utils

import (
	"fmt"

	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("dbtype", func(fl validator.FieldLevel) bool {
		return models.IsSupportedDBType(fl.Field().String())
	})
	_ = validate.RegisterValidation("synctype", func(fl validator.FieldLevel) bool {
		return models.IsValidSyncType(fl.Field().String())
	})
}

// ValidateStruct validates obj against its `validate` tags. Failures are
// reported as errs.ErrValidationFailed.
func ValidateStruct(obj interface{}) error {
	if err := validate.Struct(obj); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrValidationFailed, err)
	}
	return nil
}
