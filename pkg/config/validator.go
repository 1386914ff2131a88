package config

import (
	"net"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// LogLevels lists the levels accepted on either side of "console:file".
var LogLevels = []string{"debug", "info", "warn", "error"}

var webhookHostPattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9.-]*[A-Za-z0-9])?$`)

// RegisterCustomValidators registers custom validation functions
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("loglevel", validateLogLevel); err != nil {
		return err
	}
	return v.RegisterValidation("webhook", validateWebhook)
}

// validateLogLevel accepts "level" or "consoleLevel:fileLevel".
func validateLogLevel(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return false
	}
	parts := strings.Split(value, ":")
	if len(parts) > 2 {
		return false
	}
	for _, part := range parts {
		if !slices.Contains(LogLevels, part) {
			return false
		}
	}
	return true
}

// validateWebhook accepts "host" or "host:port".
func validateWebhook(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	host, port, err := net.SplitHostPort(value)
	if err != nil {
		return webhookHostPattern.MatchString(value)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return false
	}
	return webhookHostPattern.MatchString(host)
}
