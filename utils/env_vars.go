package utils

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

type envValue interface {
	string | int | bool | float64 | time.Duration
}

// GetEnv reads an environment variable and converts it to the type of the default value.
// It panics if the variable is set but cannot be converted.
func GetEnv[T envValue](envVarName string, defaultValue T) T {
	raw, ok := os.LookupEnv(envVarName)
	if !ok || raw == "" {
		return defaultValue
	}
	value, err := parseEnvValue[T](raw)
	if err != nil {
		panic(fmt.Sprintf("Environment variable %s is not valid: %s", envVarName, err))
	}
	return value
}

func GetRequiredEnv[T envValue](envVarName string) T {
	raw, ok := os.LookupEnv(envVarName)
	if !ok || raw == "" {
		log.Fatalf("%s environment variable is required", envVarName)
	}
	value, err := parseEnvValue[T](raw)
	if err != nil {
		log.Fatalf("Environment variable %s is not valid: %s", envVarName, err)
	}
	return value
}

func parseEnvValue[T envValue](raw string) (T, error) {
	var out T
	var parsed any
	var err error

	switch any(out).(type) {
	case string:
		parsed = raw
	case int:
		parsed, err = strconv.Atoi(raw)
	case bool:
		parsed, err = strconv.ParseBool(raw)
	case float64:
		parsed, err = strconv.ParseFloat(raw, 64)
	case time.Duration:
		parsed, err = time.ParseDuration(raw)
	}
	if err != nil {
		return out, fmt.Errorf("'%s' cannot be converted to %T: %w", raw, out, err)
	}
	return parsed.(T), nil
}
