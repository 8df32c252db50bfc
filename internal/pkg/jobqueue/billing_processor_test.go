package jobqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvHours(t *testing.T) {
	assert.Equal(t, 48, envHours("BILLING_TEST_UNSET", 48))

	t.Setenv("BILLING_TEST_HOURS", "72")
	assert.Equal(t, 72, envHours("BILLING_TEST_HOURS", 48))

	t.Setenv("BILLING_TEST_HOURS", "not-a-number")
	assert.Equal(t, 48, envHours("BILLING_TEST_HOURS", 48))

	t.Setenv("BILLING_TEST_HOURS", "-5")
	assert.Equal(t, 48, envHours("BILLING_TEST_HOURS", 48))
}
