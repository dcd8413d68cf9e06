package runerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Manoj-tawk/tawk-agents-sdk-sub004/runerr"
)

func TestIsKind(t *testing.T) {
	err := runerr.New(runerr.KindToolFailure, "boom")
	assert.True(t, runerr.IsKind(err, runerr.KindToolFailure))
	assert.False(t, runerr.IsKind(err, runerr.KindModelFailure))

	wrapped := errors.Join(errors.New("context"), err)
	assert.True(t, runerr.IsKind(wrapped, runerr.KindToolFailure))
}

func TestFatalClassification(t *testing.T) {
	assert.False(t, runerr.KindToolFailure.Fatal())
	assert.False(t, runerr.KindNeedsApproval.Fatal())
	assert.False(t, runerr.KindUnknownTransferTarget.Fatal())
	assert.True(t, runerr.KindBudgetExhausted.Fatal())
	assert.True(t, runerr.KindGuardrailRejected.Fatal())
	assert.True(t, runerr.KindModelFailure.Fatal())
	assert.True(t, runerr.KindOutputSchemaParse.Fatal())
	assert.True(t, runerr.KindCancelled.Fatal())
}
