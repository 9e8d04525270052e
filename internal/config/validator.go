package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	splitPolicies = map[string]struct{}{PolicyFill: {}, PolicySpread: {}}
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("split_policy", func(fl validator.FieldLevel) bool {
			_, ok := splitPolicies[fl.Field().String()]
			return ok
		})

		_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			d, err := time.ParseDuration(fl.Field().String())
			return err == nil && d > 0
		})

		validateInst = v
	})

	return validateInst
}

// GetValidator returns the configured validator for use outside the config package.
func GetValidator() *validator.Validate {
	return validatorInstance()
}

// ValidateConfig performs schema and cross-field validation on the configuration.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return apperrors.NewValidationError("config", "configuration is nil", nil)
	}

	if err := validatorInstance().Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	if git := cfg.Repository.Git; git != nil && git.Cache == "" && cfg.Repository.Dir == "" {
		return apperrors.NewValidationError("repository.git.cache", "a cache directory is required to clone the repository", nil)
	}

	seen := make(map[string]struct{}, len(cfg.Storage.Local.Hosts))
	for i, host := range cfg.Storage.Local.Hosts {
		if strings.TrimSpace(host) == "" {
			return apperrors.NewValidationError(fmt.Sprintf("storage.local.hosts[%d]", i), "host is empty", nil)
		}
		if _, dup := seen[host]; dup {
			return apperrors.NewValidationError(fmt.Sprintf("storage.local.hosts[%d]", i), fmt.Sprintf("duplicate host %q", host), nil)
		}
		seen[host] = struct{}{}
	}

	if cfg.Storage.Azure.ConnectionString != "" && cfg.Storage.Azure.ConnectionStringEnv != "" {
		return apperrors.NewValidationError("storage.azure", "connection_string and connection_string_env are mutually exclusive", nil)
	}

	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return apperrors.NewValidationError(field, msg, err)
	}

	return apperrors.NewValidationError("config", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	var lowered []string
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}
