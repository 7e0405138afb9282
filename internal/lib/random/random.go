package random

import (
	"crypto/rand"
	"math/big"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// String returns a random alphanumeric string of the given length,
// used for verification codes and generated passwords.
func String(length int) string {
	result := make([]byte, length)

	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			panic("random source unavailable: " + err.Error())
		}
		result[i] = alphabet[n.Int64()]
	}

	return string(result)
}
