// Package cryptoutil seals configuration files with DARE (minio/sio) so
// credentials never sit on disk in clear text.
package cryptoutil

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/sio"
)

const (
	configMagic = "S3B1"
	configVer   = uint16(2)
	headerLen   = len(configMagic) + 2
	keyLen      = 32
)

var (
	// ErrNotEncrypted is returned when a payload lacks the config header.
	ErrNotEncrypted = errors.New("payload is not an encrypted config")
	// ErrInvalidKey is returned for a key that does not decode to 32 bytes.
	ErrInvalidKey = errors.New("invalid config key")
)

// decodeKey accepts a 32-byte key as hex or base64. A "hex:" or "base64:"
// tag forces the encoding; untagged 64-character keys are read as hex.
func decodeKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}

	var (
		raw []byte
		err error
	)
	if rest, ok := strings.CutPrefix(key, "hex:"); ok {
		raw, err = hex.DecodeString(rest)
	} else if rest, ok := strings.CutPrefix(key, "base64:"); ok {
		raw, err = base64.StdEncoding.DecodeString(rest)
	} else if len(key) == 2*keyLen {
		raw, err = hex.DecodeString(key)
	} else {
		raw, err = base64.StdEncoding.DecodeString(key)
		if err != nil {
			raw, err = base64.RawURLEncoding.DecodeString(key)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != keyLen {
		return nil, fmt.Errorf("%w: decoded to %d bytes, need %d", ErrInvalidKey, len(raw), keyLen)
	}
	return raw, nil
}

func sioConfig(key []byte) sio.Config {
	return sio.Config{Key: key, MinVersion: sio.Version20}
}

// EncryptConfig seals a config payload behind a small versioned header.
func EncryptConfig(plain []byte, key string) ([]byte, error) {
	raw, err := decodeKey(key)
	if err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	buf.WriteString(configMagic)
	if err := binary.Write(buf, binary.BigEndian, configVer); err != nil {
		return nil, err
	}
	w, err := sio.EncryptWriter(buf, sioConfig(raw))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plain); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecryptConfig reverses EncryptConfig. Tampered payloads and wrong keys are
// reported as errors.
func DecryptConfig(ciphertext []byte, key string) ([]byte, error) {
	if len(ciphertext) < headerLen || string(ciphertext[:len(configMagic)]) != configMagic {
		return nil, ErrNotEncrypted
	}
	if ver := binary.BigEndian.Uint16(ciphertext[len(configMagic):headerLen]); ver != configVer {
		return nil, fmt.Errorf("unsupported config version %d", ver)
	}
	raw, err := decodeKey(key)
	if err != nil {
		return nil, err
	}
	r, err := sio.DecryptReader(bytes.NewReader(ciphertext[headerLen:]), sioConfig(raw))
	if err != nil {
		return nil, err
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plain, nil
}
