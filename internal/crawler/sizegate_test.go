package crawler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSizeGate_RejectsGigabytesRegardlessOfValue(t *testing.T) {
	t.Parallel()

	gate := NewSizeGate(20, zap.NewNop())

	for _, declared := range []string{"2 GB", "0.1 GB", "1024 GB", "GB"} {
		err := gate.Check(declared)
		var rejected *SizeRejectedError
		require.ErrorAs(t, err, &rejected, "expected rejection for %q", declared)
		assert.Equal(t, declared, rejected.Declared)
		assert.Equal(t, 20.0, rejected.LimitMB)
	}
}

func TestSizeGate_MegabytesAgainstCeiling(t *testing.T) {
	t.Parallel()

	gate := NewSizeGate(20, zap.NewNop())

	require.NoError(t, gate.Check("15 MB"))
	require.NoError(t, gate.Check("20 MB"))
	require.NoError(t, gate.Check("19.9 MB"))

	err := gate.Check("25 MB")
	var rejected *SizeRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "25 MB", rejected.Declared)
	assert.Equal(t, 20.0, rejected.LimitMB)
}

func TestSizeGate_UnparsableSizeFailsOpen(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	gate := NewSizeGate(20, zap.New(core))

	// "1.2.3" survives the digit filter but is not a float; the gate must
	// accept and warn, not silently reject.
	require.NoError(t, gate.Check("1.2.3 MB"))
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "allowing download")
}

func TestSizeGate_UnitlessSizeAccepted(t *testing.T) {
	t.Parallel()

	gate := NewSizeGate(20, zap.NewNop())
	require.NoError(t, gate.Check("815 kB"))
	require.NoError(t, gate.Check("unknown"))
}

func TestSizeRejectedError_Message(t *testing.T) {
	t.Parallel()

	err := error(&SizeRejectedError{Declared: "25 MB", LimitMB: 20})
	assert.Contains(t, err.Error(), "25 MB")
	assert.Contains(t, err.Error(), "20 MB")

	var rejected *SizeRejectedError
	assert.True(t, errors.As(err, &rejected))
}
