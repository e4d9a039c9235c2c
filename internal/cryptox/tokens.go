package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/crypto/hkdf"
)

const indexKeyInfo = "vault/search-index/v1"

// IndexKey derives the subkey used for blind search tokens. It is separate
// from the encryption key so tokens reveal nothing about field ciphertexts.
func IndexKey(masterKey []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, masterKey, nil, []byte(indexKeyInfo))
	k := make([]byte, KeySize)
	if _, err := io.ReadFull(r, k); err != nil {
		return nil, err
	}
	return k, nil
}

// Words splits text into unique lower-case words of at least two letters or
// digits, sorted.
func Words(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// BlindToken maps a normalized word to a keyed, non-reversible token.
func BlindToken(indexKey []byte, word string) string {
	m := hmac.New(sha256.New, indexKey)
	m.Write([]byte(word))
	return hex.EncodeToString(m.Sum(nil)[:16])
}

// BlindTokens tokenizes every word of texts.
func BlindTokens(indexKey []byte, texts ...string) []string {
	words := Words(strings.Join(texts, " "))
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = BlindToken(indexKey, w)
	}
	sort.Strings(out)
	return out
}
