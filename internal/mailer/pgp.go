package mailer

import (
	"bytes"
	"fmt"
	"net/textproto"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// LoadPublicKey reads an armored PGP public key ring from path.
func LoadPublicKey(path string) (openpgp.EntityList, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read PGP public key at %s: %w", path, err)
	}
	return ParsePublicKey(keyData)
}

// ParsePublicKey parses an armored PGP public key ring.
func ParsePublicKey(armored []byte) (openpgp.EntityList, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(armored))
	if err != nil {
		return nil, fmt.Errorf("cannot parse PGP public key: %w", err)
	}
	if len(keyring) == 0 {
		return nil, fmt.Errorf("PGP key ring is empty")
	}
	return keyring, nil
}

// encryptEntity encrypts the full inner entity and wraps it in a
// multipart/encrypted envelope.
func encryptEntity(keyring openpgp.EntityList, inner entity) (entity, error) {
	encrypted, err := encrypt(keyring, inner.bytes())
	if err != nil {
		return entity{}, err
	}

	versionHeader := textproto.MIMEHeader{}
	versionHeader.Set("Content-Type", "application/pgp-encrypted")
	versionHeader.Set("Content-Description", "PGP/MIME version identification")

	encHeader := textproto.MIMEHeader{}
	encHeader.Set("Content-Type", `application/octet-stream; name="encrypted.asc"`)
	encHeader.Set("Content-Disposition", `inline; filename="encrypted.asc"`)

	return multipartEntity("multipart/encrypted",
		map[string]string{"protocol": "application/pgp-encrypted"},
		entity{header: versionHeader, body: []byte("Version: 1\r\n")},
		entity{header: encHeader, body: encrypted},
	)
}

// encrypt returns plaintext encrypted to every key in keyring, armored.
func encrypt(keyring openpgp.EntityList, plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	armorWriter, err := armor.Encode(&buf, "PGP MESSAGE", nil)
	if err != nil {
		return nil, fmt.Errorf("creating armor writer: %w", err)
	}

	encWriter, err := openpgp.Encrypt(armorWriter, keyring, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating encrypt writer: %w", err)
	}

	if _, err := encWriter.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return nil, fmt.Errorf("closing encrypt writer: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return nil, fmt.Errorf("closing armor writer: %w", err)
	}
	buf.WriteString("\r\n")

	return buf.Bytes(), nil
}
