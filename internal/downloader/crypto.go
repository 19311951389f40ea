package downloader

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/famomatic/tvdl/internal/types"
)

// KeySize is the AES-128 key length expected from the key URI.
const KeySize = 16

// SegmentIV derives the CBC initialization vector of the 1-based segment
// index: twelve zero bytes followed by the big-endian uint32 index.
func SegmentIV(index uint32) [aes.BlockSize]byte {
	var iv [aes.BlockSize]byte
	binary.BigEndian.PutUint32(iv[aes.BlockSize-4:], index)
	return iv
}

// NewKeyCipher validates key material and returns the block cipher for a job.
func NewKeyCipher(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, &types.DecryptError{Reason: fmt.Sprintf("key length %d, want %d", len(key), KeySize)}
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &types.DecryptError{Reason: err.Error()}
	}
	return block, nil
}

// DecryptSegment decrypts ciphertext in place for the 1-based segment index
// and returns the plaintext. With stripPadding the trailing PKCS#7 padding
// is validated and removed.
func DecryptSegment(block cipher.Block, index int, ciphertext []byte, stripPadding bool) ([]byte, error) {
	if index < 1 || uint64(index) > math.MaxUint32 {
		return nil, &types.DecryptError{Segment: index, Reason: "segment index out of range"}
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, &types.DecryptError{
			Segment: index,
			Reason:  fmt.Sprintf("ciphertext length %d not a multiple of %d", len(ciphertext), aes.BlockSize),
		}
	}
	if len(ciphertext) == 0 {
		return ciphertext, nil
	}
	iv := SegmentIV(uint32(index))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(ciphertext, ciphertext)
	if !stripPadding {
		return ciphertext, nil
	}
	return unpadPKCS7(index, ciphertext)
}

func unpadPKCS7(index int, data []byte) ([]byte, error) {
	padding := int(data[len(data)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(data) {
		return nil, &types.DecryptError{Segment: index, Reason: "invalid padding"}
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, &types.DecryptError{Segment: index, Reason: "invalid padding"}
		}
	}
	return data[:len(data)-padding], nil
}
