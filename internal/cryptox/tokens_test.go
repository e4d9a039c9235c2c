package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{}},
		{"case and punctuation", "STARBUCKS, Coffee! starbucks", []string{"coffee", "starbucks"}},
		{"single letters dropped", "a b cd", []string{"cd"}},
		{"digits kept", "order #42", []string{"42", "order"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Words(tt.in))
		})
	}
}

func TestIndexKey_DeterministicPerMasterKey(t *testing.T) {
	k1 := testKey()
	k2 := testKey()

	a, err := IndexKey(k1)
	require.NoError(t, err)
	b, err := IndexKey(k1)
	require.NoError(t, err)
	c, err := IndexKey(k2)
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.NotEqual(t, k1, a)
}

func TestBlindTokens_MatchQueryWords(t *testing.T) {
	ik, err := IndexKey(testKey())
	require.NoError(t, err)

	stored := BlindTokens(ik, "STARBUCKS #1234", "latte")
	query := BlindTokens(ik, "starbucks")

	require.Len(t, query, 1)
	require.Contains(t, stored, query[0])
	require.NotContains(t, stored, "starbucks")
	require.Len(t, query[0], 32)
}
