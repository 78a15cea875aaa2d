// Пакет encoder — рендеринг QR-кода в PNG.
// Чистая функция без I/O и состояния, безопасна для параллельного вызова.
// Кодирование символа делегируется github.com/skip2/go-qrcode.
package encoder

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/bigkaa/goartstore/qr-module/internal/domain/model"
)

// ErrEncoding — содержимое или параметры не могут быть закодированы.
var ErrEncoding = errors.New("ошибка кодирования QR-кода")

// contentTypePNG — MIME-тип результата.
const contentTypePNG = "image/png"

// Encoder — рендерер QR-кодов.
type Encoder struct {
	// maxContentLength — максимальная длина содержимого в байтах
	maxContentLength int
}

// New создаёт Encoder с ограничением длины содержимого.
// maxContentLength <= 0 — без дополнительного ограничения (остаётся лимит версии 40).
func New(maxContentLength int) *Encoder {
	return &Encoder{maxContentLength: maxContentLength}
}

// Render кодирует content с параметрами opts.
// Параметры должны быть нормализованы (model.Options.Normalize).
// Все ошибки оборачивают ErrEncoding.
func (e *Encoder) Render(content string, opts model.Options) (*model.Image, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: пустое содержимое", ErrEncoding)
	}
	if e.maxContentLength > 0 && len(content) > e.maxContentLength {
		return nil, fmt.Errorf("%w: длина содержимого %d байт превышает максимум %d байт",
			ErrEncoding, len(content), e.maxContentLength)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEncoding, err.Error())
	}

	level, err := recoveryLevel(opts.Recovery)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEncoding, err.Error())
	}

	fg, err := parseHexColor(opts.Foreground)
	if err != nil {
		return nil, fmt.Errorf("%w: foreground: %s", ErrEncoding, err.Error())
	}
	bg, err := parseHexColor(opts.Background)
	if err != nil {
		return nil, fmt.Errorf("%w: background: %s", ErrEncoding, err.Error())
	}
	if fg == bg {
		return nil, fmt.Errorf("%w: цвета foreground и background совпадают", ErrEncoding)
	}

	q, err := qrcode.New(content, level)
	if err != nil {
		// Содержимое слишком длинное для версии 40 на данном уровне коррекции
		return nil, fmt.Errorf("%w: %s", ErrEncoding, err.Error())
	}
	q.DisableBorder = !opts.Border
	q.ForegroundColor = fg
	q.BackgroundColor = bg

	// Библиотека молча растягивает изображение до размера сетки модулей.
	// Запрошенный размер меньше сетки — несогласованные параметры.
	modules := len(q.Bitmap())
	if opts.Size < modules {
		return nil, fmt.Errorf("%w: размер %dpx меньше сетки символа версии %d (%d модулей) при уровне %s",
			ErrEncoding, opts.Size, q.VersionNumber, modules, opts.Recovery)
	}

	data, err := q.PNG(opts.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEncoding, err.Error())
	}

	return &model.Image{
		Data:        data,
		Format:      model.FormatPNG,
		ContentType: contentTypePNG,
	}, nil
}

// recoveryLevel маппит уровень коррекции в константу библиотеки.
func recoveryLevel(level model.RecoveryLevel) (qrcode.RecoveryLevel, error) {
	switch level {
	case model.RecoveryLow:
		return qrcode.Low, nil
	case model.RecoveryMedium:
		return qrcode.Medium, nil
	case model.RecoveryHigh:
		return qrcode.High, nil
	case model.RecoveryHighest:
		return qrcode.Highest, nil
	default:
		return 0, fmt.Errorf("недопустимый уровень коррекции %q", level)
	}
}

// parseHexColor разбирает цвет в формате #rrggbb.
func parseHexColor(s string) (color.RGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, fmt.Errorf("некорректный цвет %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("некорректный цвет %q", s)
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xff,
	}, nil
}
