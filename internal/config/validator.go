package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError lists every problem found in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation errors:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

// Validate checks the config for:
//   - Field constraints declared in struct tags
//   - Duplicate train line names
//   - Lines that repeat a station back to back
//   - Fares too large to hold as cents
func Validate(cfg *AppConfig) error {
	var errs []string

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}

	seen := make(map[string]int) // name → index
	for i, line := range cfg.Network.Lines {
		if _, err := line.FareCents(); err != nil {
			errs = append(errs, fmt.Sprintf("network.lines[%d]: fare %v: %v", i, line.Fare, err))
		}
		if line.Name == "" {
			continue
		}
		if prev, ok := seen[line.Name]; ok {
			errs = append(errs, fmt.Sprintf("duplicate line name %q (first seen at network.lines[%d], again at network.lines[%d])", line.Name, prev, i))
		} else {
			seen[line.Name] = i
		}
		for j := 1; j < len(line.Stations); j++ {
			if line.Stations[j] == line.Stations[j-1] {
				errs = append(errs, fmt.Sprintf("line %s: station %q repeated at stations[%d]", line.Name, line.Stations[j], j))
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "AppConfig.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s: must satisfy %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s: %s", field, fe.Tag())
}
