package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/skip2/go-qrcode"
)

const payloadPrefix = "tkt:"

var ErrInvalidPayload = errors.New("invalid ticket payload")

// QRGenerator produces the opaque scannable payload for a ticket. The payload
// carries only the ticket identifier, encrypted, and is resolved server side.
type QRGenerator struct {
	secret []byte
	size   int
}

func NewQRGenerator(secret string, size int) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	if size <= 0 {
		size = 256
	}
	return &QRGenerator{secret: hashed[:], size: size}
}

func (q *QRGenerator) EncodePayload(ticketID string) (string, error) {
	if ticketID == "" {
		return "", fmt.Errorf("%w: empty ticket id", ErrInvalidPayload)
	}
	return encryptAES([]byte(payloadPrefix+ticketID), q.secret)
}

func (q *QRGenerator) DecodePayload(payload string) (string, error) {
	plain, err := decryptAES(strings.TrimSpace(payload), q.secret)
	if err != nil {
		return "", err
	}
	s := string(plain)
	if !strings.HasPrefix(s, payloadPrefix) || len(s) == len(payloadPrefix) {
		return "", ErrInvalidPayload
	}
	return strings.TrimPrefix(s, payloadPrefix), nil
}

// RenderPNG draws payload as a QR code image.
func (q *QRGenerator) RenderPNG(payload string) ([]byte, error) {
	return qrcode.Encode(payload, qrcode.Medium, q.size)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func decryptAES(encoded string, key []byte) ([]byte, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil || len(ciphertext) <= aes.BlockSize {
		return nil, ErrInvalidPayload
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := ciphertext[:aes.BlockSize]
	plain := make([]byte, len(ciphertext)-aes.BlockSize)
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(plain, ciphertext[aes.BlockSize:])
	return plain, nil
}
