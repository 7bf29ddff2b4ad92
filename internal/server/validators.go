package server

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/ingresounam/ingreso/internal/models"
)

var (
	validatorsOnce sync.Once
	validatorsErr  error
)

func oneOf(values ...string) validator.Func {
	allowed := make(map[string]bool, len(values))
	for _, v := range values {
		allowed[v] = true
	}
	return func(fl validator.FieldLevel) bool {
		return allowed[fl.Field().String()]
	}
}

// trimmedMin checks the rune length once surrounding whitespace is removed
func trimmedMin(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= n
}

// registerValidators adds the domain tags to gin's binding validator
func registerValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
			return
		}

		tags := map[string]validator.Func{
			"role":           oneOf(models.RoleAdmin, models.RoleStudent),
			"feedbacktype":   oneOf(models.FeedbackBug, models.FeedbackFeature, models.FeedbackImprovement, models.FeedbackOther),
			"feedbackstatus": oneOf(models.FeedbackPending, models.FeedbackInProgress, models.FeedbackResolved, models.FeedbackRejected),
			"trimmin":        trimmedMin,
		}
		for tag, fn := range tags {
			if err := v.RegisterValidation(tag, fn); err != nil {
				validatorsErr = fmt.Errorf("failed to register %s validator: %w", tag, err)
				return
			}
		}
	})
	return validatorsErr
}
