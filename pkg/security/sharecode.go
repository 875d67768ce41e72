package security

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	// ShareCodeAlphabet has exactly 32 symbols so every 5 random bits map
	// to one symbol without rejection. 0, 1, I and O are excluded; L and U
	// stay in to make up the 32.
	ShareCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	ShareCodeLength   = 10

	bitsPerSymbol = 5
	symbolMask    = 1<<bitsPerSymbol - 1
	randomBytes   = (ShareCodeLength*bitsPerSymbol + 7) / 8
)

var ErrMalformedShareCode = errors.New("malformed share code")

var alphabetIndex = func() [256]bool {
	var idx [256]bool
	for i := 0; i < len(ShareCodeAlphabet); i++ {
		idx[ShareCodeAlphabet[i]] = true
	}
	return idx
}()

// ShareCodeGenerator produces human-copyable single-use codes.
type ShareCodeGenerator struct {
	rand io.Reader
}

func NewShareCodeGenerator(r io.Reader) *ShareCodeGenerator {
	if r == nil {
		r = rand.Reader
	}
	return &ShareCodeGenerator{rand: r}
}

// Generate reads 7 random bytes and spends 5 bits on each of the 10 symbols.
func (g *ShareCodeGenerator) Generate() (string, error) {
	var buf [8]byte
	if _, err := io.ReadFull(g.rand, buf[8-randomBytes:]); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	bits := binary.BigEndian.Uint64(buf[:])

	var sb strings.Builder
	sb.Grow(ShareCodeLength)
	for i := 0; i < ShareCodeLength; i++ {
		sb.WriteByte(ShareCodeAlphabet[bits&symbolMask])
		bits >>= bitsPerSymbol
	}
	return sb.String(), nil
}

// NormalizeShareCode trims and upper-cases raw input and rejects anything
// that is not exactly ShareCodeLength alphabet symbols.
func NormalizeShareCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != ShareCodeLength {
		return "", ErrMalformedShareCode
	}
	for i := 0; i < len(code); i++ {
		if !alphabetIndex[code[i]] {
			return "", ErrMalformedShareCode
		}
	}
	return code, nil
}

// ShareCodeHasher computes the stored digest of a normalized code.
type ShareCodeHasher struct {
	key []byte
}

// NewShareCodeHasher keys BLAKE2b-256 with a server-side pepper.
func NewShareCodeHasher(key string) (*ShareCodeHasher, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("share code hash key must be at most %d bytes", blake2b.Size)
	}
	return &ShareCodeHasher{key: []byte(key)}, nil
}

func (h *ShareCodeHasher) Hash(code string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is validated in NewShareCodeHasher
		panic(err)
	}
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}
