// Пакет fingerprint — вычисление детерминированного идентификатора
// QR-кода по содержимому и параметрам рендеринга.
// Fingerprint используется как ключ хранения изображения и как ключ идемпотентности.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"hash"
	"strconv"

	"github.com/bigkaa/goartstore/qr-module/internal/domain/model"
)

// schemeVersion — версия канонической сериализации.
// Меняется только вместе с миграцией существующих записей.
const schemeVersion = "qr/v1"

// Length — длина fingerprint в hex-символах.
const Length = sha256.Size * 2

// ErrEmptyContent — пустое содержимое не адресуется.
var ErrEmptyContent = errors.New("содержимое QR-кода не может быть пустым")

// Address вычисляет fingerprint для (content, opts).
// Параметры нормализуются перед хешированием, content берётся побайтно.
// Каждое поле сериализуется с префиксом длины, поэтому границы полей однозначны.
func Address(content string, opts model.Options) (string, error) {
	if content == "" {
		return "", ErrEmptyContent
	}

	n := opts.Normalize()

	h := sha256.New()
	writeField(h, schemeVersion)
	writeField(h, content)
	writeField(h, strconv.Itoa(n.Size))
	writeField(h, string(n.Recovery))
	writeField(h, strconv.FormatBool(n.Border))
	writeField(h, n.Foreground)
	writeField(h, n.Background)
	writeField(h, n.Format)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsValid проверяет формат fingerprint: 64 символа нижнего hex.
func IsValid(fp string) bool {
	if len(fp) != Length {
		return false
	}
	for i := 0; i < len(fp); i++ {
		c := fp[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// writeField пишет 8-байтовую длину и содержимое поля.
func writeField(h hash.Hash, s string) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
	h.Write(lenBuf[:])
	h.Write([]byte(s))
}
