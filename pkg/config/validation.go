package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/mkarlsen/tenantd/pkg/router"
)

// Validate checks the configuration for errors.
//
// Struct tags cover field-level constraints (required fields, ranges,
// enumerations); everything the tags cannot express, such as subscriber
// table consistency, is checked explicitly.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	return validateSubscriptions(cfg.Router.Subscriptions)
}

// validateSubscriptions checks the static subscriber table.
func validateSubscriptions(subs []router.Subscription) error {
	seen := make(map[string]bool, len(subs))
	for i, sub := range subs {
		if sub.Subscriber == "" {
			return fmt.Errorf("router.subscriptions[%d]: subscriber name is required", i)
		}
		if seen[sub.Subscriber] {
			return fmt.Errorf("router.subscriptions[%d]: duplicate subscriber %q", i, sub.Subscriber)
		}
		seen[sub.Subscriber] = true

		if sub.Endpoint == "" {
			return fmt.Errorf("router.subscriptions[%d] (%s): endpoint is required", i, sub.Subscriber)
		}
		if sub.Event == "" && sub.Condition == nil && sub.Chance == 0 {
			return fmt.Errorf("router.subscriptions[%d] (%s): needs an event, a condition, or a chance", i, sub.Subscriber)
		}
		if sub.Chance < 0 || sub.Chance > 1 {
			return fmt.Errorf("router.subscriptions[%d] (%s): chance must be in [0,1], got %g", i, sub.Subscriber, sub.Chance)
		}
		if sub.Condition != nil {
			if err := validateCondition(sub.Condition); err != nil {
				return fmt.Errorf("router.subscriptions[%d] (%s): %w", i, sub.Subscriber, err)
			}
		}
	}
	return nil
}

func validateCondition(cond *router.Condition) error {
	switch cond.Kind {
	case router.CondEquals:
		if cond.Field == "" {
			return fmt.Errorf("equals condition needs a field")
		}
	case router.CondCountAtLeast:
		if cond.Count <= 0 {
			return fmt.Errorf("count_at_least condition needs a positive count")
		}
	case router.CondElapsed:
		if cond.Field == "" {
			return fmt.Errorf("elapsed condition needs a field")
		}
		if cond.Elapsed <= 0 {
			return fmt.Errorf("elapsed condition needs a positive duration")
		}
	default:
		return fmt.Errorf("unknown condition kind %q", cond.Kind)
	}
	return nil
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	for _, fieldErr := range validationErrors {
		switch fieldErr.Tag() {
		case "required":
			return fmt.Errorf("%s is required", fieldErr.Namespace())
		case "oneof":
			return fmt.Errorf("%s must be one of: %s", fieldErr.Namespace(), fieldErr.Param())
		case "min", "gte":
			return fmt.Errorf("%s must be at least %s", fieldErr.Namespace(), fieldErr.Param())
		case "max", "lte":
			return fmt.Errorf("%s must be at most %s", fieldErr.Namespace(), fieldErr.Param())
		case "gt":
			return fmt.Errorf("%s must be greater than %s", fieldErr.Namespace(), fieldErr.Param())
		default:
			return fmt.Errorf("%s failed validation: %s", fieldErr.Namespace(), fieldErr.Tag())
		}
	}
	return err
}
