package soundlab

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// HashSize is the length of a content checksum in bytes.
const HashSize = 32

// Hash is the BLAKE3-256 checksum of an audio file. The zero value means no
// checksum was recorded.
type Hash [HashSize]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// ShortString is the first 16 hex digits, for listings.
func (h Hash) ShortString() string { return hex.EncodeToString(h[:8]) }

// IsZero reports whether no checksum was recorded.
func (h Hash) IsZero() bool { return h == Hash{} }

// MarshalText encodes a zero hash as empty text so it drops out of
// omitzero/omitempty JSON and stores as an empty column.
func (h Hash) MarshalText() ([]byte, error) {
	if h.IsZero() {
		return []byte{}, nil
	}
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = Hash{}
		return nil
	}
	if hex.DecodedLen(len(text)) != HashSize {
		return fmt.Errorf("checksum %q: want %d hex digits", text, 2*HashSize)
	}
	var out Hash
	if _, err := hex.Decode(out[:], text); err != nil {
		return fmt.Errorf("checksum %q: %w", text, err)
	}
	*h = out
	return nil
}

// HashBytes returns the checksum of data.
func HashBytes(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// HashReader consumes r and returns its checksum and length.
func HashReader(r io.Reader) (Hash, int64, error) {
	hasher := blake3.New()
	n, err := io.Copy(hasher, r)
	if err != nil {
		return Hash{}, n, fmt.Errorf("reading content: %w", err)
	}
	var sum Hash
	copy(sum[:], hasher.Sum(nil))
	return sum, n, nil
}

// HashFile returns the checksum and size of the file at path.
func HashFile(path string) (Hash, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Hash{}, 0, err
	}
	defer func() { _ = f.Close() }()
	return HashReader(f)
}
