package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("INGEST_TEST_STRING", "bucket")
	t.Setenv("INGEST_TEST_INT", "12")
	t.Setenv("INGEST_TEST_BOOL", "true")
	t.Setenv("INGEST_TEST_DURATION", "90s")
	t.Setenv("INGEST_TEST_EMPTY", "")

	assert.Equal(t, "bucket", GetEnv("INGEST_TEST_STRING", "default"))
	assert.Equal(t, 12, GetEnv("INGEST_TEST_INT", 1))
	assert.True(t, GetEnv("INGEST_TEST_BOOL", false))
	assert.Equal(t, 90*time.Second, GetEnv("INGEST_TEST_DURATION", time.Minute))
	assert.Equal(t, "default", GetEnv("INGEST_TEST_EMPTY", "default"))
	assert.Equal(t, 5, GetEnv("INGEST_TEST_UNSET", 5))
}

func TestGetEnv_InvalidValuePanics(t *testing.T) {
	t.Setenv("INGEST_TEST_INT", "twelve")

	assert.Panics(t, func() { GetEnv("INGEST_TEST_INT", 1) })
}
