package api

import (
	"crypto/rand"
	"math/big"
)

// GenerateRoomID makes a short random identifier for optimistic local use
// before the server has confirmed a room. Not collision-free; the server is
// the authority on ids.
func GenerateRoomID() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

	id := make([]byte, 6)
	for i := range id {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		id[i] = charset[n.Int64()]
	}
	return string(id), nil
}
