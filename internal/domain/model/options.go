package model

import (
	"fmt"
	"strings"
)

// RecoveryLevel — уровень коррекции ошибок QR-кода.
type RecoveryLevel string

const (
	RecoveryLow     RecoveryLevel = "L"
	RecoveryMedium  RecoveryLevel = "M"
	RecoveryHigh    RecoveryLevel = "Q"
	RecoveryHighest RecoveryLevel = "H"
)

// FormatPNG — единственный поддерживаемый формат вывода.
const FormatPNG = "png"

// Значения параметров рендеринга по умолчанию.
const (
	DefaultSize       = 256
	DefaultRecovery   = RecoveryMedium
	DefaultForeground = "#000000"
	DefaultBackground = "#ffffff"
	MinSize           = 21
	MaxSize           = 4096
)

// Options — параметры рендеринга QR-кода.
// Входят в fingerprint: разные Options дают разные изображения.
type Options struct {
	// Size — ширина и высота PNG в пикселях
	Size int `json:"size"`
	// Recovery — уровень коррекции ошибок (L, M, Q, H)
	Recovery RecoveryLevel `json:"recovery"`
	// Border — рисовать ли quiet zone вокруг символа
	Border bool `json:"border"`
	// Foreground — цвет модулей в формате #rrggbb
	Foreground string `json:"foreground"`
	// Background — цвет фона в формате #rrggbb
	Background string `json:"background"`
	// Format — формат вывода (только png)
	Format string `json:"format"`
}

// DefaultOptions возвращает параметры рендеринга по умолчанию.
func DefaultOptions() Options {
	return Options{
		Size:       DefaultSize,
		Recovery:   DefaultRecovery,
		Border:     true,
		Foreground: DefaultForeground,
		Background: DefaultBackground,
		Format:     FormatPNG,
	}
}

// Normalize подставляет значения по умолчанию для незаданных полей
// и приводит строковые поля к каноническому виду.
// Border не нормализуется: false — осознанный выбор клиента.
func (o Options) Normalize() Options {
	n := o
	if n.Size == 0 {
		n.Size = DefaultSize
	}
	n.Recovery = RecoveryLevel(strings.ToUpper(strings.TrimSpace(string(n.Recovery))))
	if n.Recovery == "" {
		n.Recovery = DefaultRecovery
	}
	n.Foreground = strings.ToLower(strings.TrimSpace(n.Foreground))
	if n.Foreground == "" {
		n.Foreground = DefaultForeground
	}
	n.Background = strings.ToLower(strings.TrimSpace(n.Background))
	if n.Background == "" {
		n.Background = DefaultBackground
	}
	n.Format = strings.ToLower(strings.TrimSpace(n.Format))
	if n.Format == "" {
		n.Format = FormatPNG
	}
	return n
}

// Validate проверяет нормализованные параметры.
// Согласованность размера с версией символа проверяет encoder.
func (o Options) Validate() error {
	if o.Size < MinSize || o.Size > MaxSize {
		return fmt.Errorf("size %d вне диапазона %d-%d", o.Size, MinSize, MaxSize)
	}
	switch o.Recovery {
	case RecoveryLow, RecoveryMedium, RecoveryHigh, RecoveryHighest:
	default:
		return fmt.Errorf("недопустимый уровень коррекции %q, допустимые: L, M, Q, H", o.Recovery)
	}
	if !isHexColor(o.Foreground) {
		return fmt.Errorf("foreground: некорректный цвет %q, ожидается #rrggbb", o.Foreground)
	}
	if !isHexColor(o.Background) {
		return fmt.Errorf("background: некорректный цвет %q, ожидается #rrggbb", o.Background)
	}
	if o.Format != FormatPNG {
		return fmt.Errorf("недопустимый формат %q, допустимые: png", o.Format)
	}
	return nil
}

// isHexColor проверяет формат #rrggbb.
func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') && !(r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}
