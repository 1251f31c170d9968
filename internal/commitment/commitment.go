package commitment

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Hash is a 32-byte SHA-256 digest. It travels as lowercase hex in JSON and Redis.
type Hash [sha256.Size]byte

type Choice uint8

const (
	Unrevealed Choice = 0
	Split      Choice = 1
	Steal      Choice = 2
)

func (c Choice) String() string {
	switch c {
	case Split:
		return "split"
	case Steal:
		return "steal"
	default:
		return "unrevealed"
	}
}

func (c Choice) Valid() bool {
	return c == Split || c == Steal
}

func ParseChoice(s string) (Choice, error) {
	switch s {
	case "split", "1":
		return Split, nil
	case "steal", "2":
		return Steal, nil
	}
	return Unrevealed, fmt.Errorf("invalid choice: %q", s)
}

// Commitment binds a selector to a salt: SHA-256(decimal(tag) || salt).
func Commitment(choice Choice, salt string) Hash {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(int(choice))))
	h.Write([]byte(salt))

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// SaltCommitment is SHA-256(salt).
func SaltCommitment(salt string) Hash {
	return sha256.Sum256([]byte(salt))
}

// Recover returns the selector whose commitment for salt equals decision.
func Recover(decision Hash, salt string) (Choice, bool) {
	for _, c := range []Choice{Split, Steal} {
		if Commitment(c, salt) == decision {
			return c, true
		}
	}
	return Unrevealed, false
}

// Pair is what a client submits at commit time.
type Pair struct {
	Decision Hash `json:"decision_hash"`
	Salt     Hash `json:"salt_hash"`
}

func Build(choice Choice, salt string) (Pair, error) {
	if !choice.Valid() {
		return Pair{}, fmt.Errorf("invalid choice: %d", choice)
	}
	if salt == "" {
		return Pair{}, fmt.Errorf("salt must not be empty")
	}

	return Pair{
		Decision: Commitment(choice, salt),
		Salt:     SaltCommitment(salt),
	}, nil
}

// NewSalt returns 16 random bytes hex encoded.
func NewSalt() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate salt: %v", err)
	}
	return hex.EncodeToString(bytes), nil
}

func ParseHash(s string) (Hash, error) {
	var h Hash
	err := h.UnmarshalText([]byte(s))
	return h, err
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) != hex.EncodedLen(len(h)) {
		return fmt.Errorf("hash must be %d hex characters, got %d", hex.EncodedLen(len(h)), len(text))
	}
	if _, err := hex.Decode(h[:], text); err != nil {
		return fmt.Errorf("invalid hash: %v", err)
	}
	return nil
}
