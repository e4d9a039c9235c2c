package common

import (
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString_LengthAndHex(t *testing.T) {
	const n = 16
	s, err := MakeRandHexString(n)
	require.NoError(t, err)
	require.Len(t, s, n*2)
	_, err = hex.DecodeString(s)
	require.NoError(t, err)
}

func TestMakeRandHexString_ZeroSize(t *testing.T) {
	s, err := MakeRandHexString(0)
	require.NoError(t, err)
	require.Empty(t, s)
}

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	require.Equal(t, []byte{0, 0, 0, 0, 0}, buf)
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	require.NotPanics(t, func() { WipeByteArray(nil) })
}

func TestGenerateRandByteArray_Basic(t *testing.T) {
	a := GenerateRandByteArray(24)
	b := GenerateRandByteArray(24)
	require.Len(t, a, 24)
	require.Len(t, b, 24)
	if string(a) == string(b) {
		t.Logf("warning: two GenerateRandByteArray(24) results are identical; extremely unlikely")
	}
}

func TestSentinels_MatchThroughWrapping(t *testing.T) {
	sentinels := []error{ErrorNotFound, ErrValidation, ErrKeyUnavailable, ErrAuthentication,
		ErrStoreLocked, ErrTransactionAborted, ErrWrongPassphrase}

	for _, s := range sentinels {
		wrapped := fmt.Errorf("layer two: %w", fmt.Errorf("layer one: %w", s))
		require.True(t, errors.Is(wrapped, s), s.Error())
		for _, other := range sentinels {
			if other != s {
				require.False(t, errors.Is(wrapped, other))
			}
		}
	}
}
