// Пакет imagestore — хранение изображений QR-кодов на общей файловой системе.
// Один объект на fingerprint, раскладка по двум уровням префиксов:
// {dir}/{fp[0:2]}/{fp[2:4]}/{fp}.{format}
//
// Запись: уникальный temp файл → запись + SHA-256 → fsync → os.Link (атомарно,
// без перезаписи) → удаление temp. Читатель никогда не видит частично записанный объект,
// из нескольких конкурентных Put для одного ключа успешен ровно один.
package imagestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/qr-module/internal/domain/model"
	"github.com/bigkaa/goartstore/qr-module/internal/fingerprint"
)

// Ошибки хранилища изображений.
var (
	// ErrNotFound — объект под данным fingerprint отсутствует.
	ErrNotFound = errors.New("изображение не найдено")
	// ErrAlreadyExists — объект уже записан другим писателем.
	ErrAlreadyExists = errors.New("изображение уже существует")
	// ErrStorage — ошибка ввода-вывода файловой системы.
	ErrStorage = errors.New("ошибка файлового хранилища")
	// ErrInvalidKey — fingerprint имеет некорректный формат.
	ErrInvalidKey = errors.New("некорректный fingerprint")
)

// TempSuffix — суффикс временных файлов незавершённой записи.
const TempSuffix = ".tmp"

// contentTypes — MIME-типы поддерживаемых форматов.
var contentTypes = map[string]string{
	model.FormatPNG: "image/png",
}

// Store — хранилище изображений QR-кодов.
type Store struct {
	// dir — корневая директория хранения (QR_CODE_DIR)
	dir string
	// format — формат объектов (расширение файла)
	format string
}

// PutResult — результат записи изображения.
type PutResult struct {
	// StoragePath — относительный путь объекта в dir
	StoragePath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого
	Checksum string
}

// New создаёт Store. Проверяет и создаёт директорию, если она не существует,
// и проверяет, что она доступна на запись.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию изображений %s: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".probe-*"+TempSuffix)
	if err != nil {
		return nil, fmt.Errorf("директория изображений %s недоступна на запись: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &Store{dir: dir, format: model.FormatPNG}, nil
}

// Dir возвращает корневую директорию хранилища.
func (s *Store) Dir() string {
	return s.dir
}

// StoragePath возвращает относительный путь объекта для fingerprint.
func (s *Store) StoragePath(fp string) string {
	return StoragePath(fp, s.format)
}

// StoragePath возвращает относительный путь объекта: {fp[0:2]}/{fp[2:4]}/{fp}.{format}.
func StoragePath(fp, format string) string {
	return filepath.Join(fp[0:2], fp[2:4], fp+"."+format)
}

// ChecksumOf возвращает SHA-256 данных в hex.
func ChecksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// fullPath возвращает абсолютный путь объекта.
func (s *Store) fullPath(fp string) string {
	return filepath.Join(s.dir, s.StoragePath(fp))
}

// Exists проверяет наличие завершённого объекта под fingerprint.
func (s *Store) Exists(fp string) bool {
	if !fingerprint.IsValid(fp) {
		return false
	}
	info, err := os.Stat(s.fullPath(fp))
	return err == nil && info.Mode().IsRegular()
}

// Put записывает изображение под fingerprint.
//
// Паттерн: temp файл (уникальный для вызова) → запись + SHA-256 → fsync →
// os.Link в итоговый путь → удаление temp → fsync директории.
// os.Link не перезаписывает существующий файл: при гонке ровно один писатель
// создаёт объект, остальные получают ErrAlreadyExists.
// При любой ошибке temp файл удаляется.
func (s *Store) Put(fp string, img *model.Image) (*PutResult, error) {
	if !fingerprint.IsValid(fp) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, fp)
	}
	if img == nil || len(img.Data) == 0 {
		return nil, fmt.Errorf("%w: пустое изображение", ErrStorage)
	}
	if img.Format != "" && img.Format != s.format {
		return nil, fmt.Errorf("%w: формат %q не поддерживается", ErrStorage, img.Format)
	}

	fullPath := s.fullPath(fp)
	if s.Exists(fp) {
		return nil, ErrAlreadyExists
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: не удалось создать директорию %s: %v", ErrStorage, dir, err)
	}

	// Уникальное имя temp файла: конкурентные писатели не пересекаются
	tmpPath := fullPath + "." + uuid.NewString() + TempSuffix

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка создания временного файла: %v", ErrStorage, err)
	}

	hasher := sha256.New()
	if _, err := f.Write(img.Data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: ошибка записи данных: %v", ErrStorage, err)
	}
	hasher.Write(img.Data)

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: ошибка fsync: %v", ErrStorage, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: ошибка закрытия файла: %v", ErrStorage, err)
	}

	// Атомарная публикация без перезаписи
	if err := os.Link(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("%w: ошибка атомарной публикации: %v", ErrStorage, err)
	}
	os.Remove(tmpPath)

	// fsync директории — запись о новом имени переживает сбой питания
	syncDir(dir)

	return &PutResult{
		StoragePath: s.StoragePath(fp),
		Size:        int64(len(img.Data)),
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Get читает изображение по fingerprint.
// Возвращает ErrNotFound, если объект отсутствует.
func (s *Store) Get(fp string) (*model.Image, error) {
	if !fingerprint.IsValid(fp) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, fp)
	}

	data, err := os.ReadFile(s.fullPath(fp))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: ошибка чтения %s: %v", ErrStorage, s.StoragePath(fp), err)
	}

	return &model.Image{
		Data:        data,
		Format:      s.format,
		ContentType: contentTypes[s.format],
	}, nil
}

// Size возвращает размер существующего объекта в байтах без чтения содержимого.
// Возвращает ErrNotFound, если объект отсутствует.
func (s *Store) Size(fp string) (int64, error) {
	if !fingerprint.IsValid(fp) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKey, fp)
	}

	info, err := os.Stat(s.fullPath(fp))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: ошибка stat %s: %v", ErrStorage, s.StoragePath(fp), err)
	}
	return info.Size(), nil
}

// Checksum вычисляет SHA-256 хэш существующего объекта.
// Используется janitor для проверки целостности Ready записей.
func (s *Store) Checksum(fp string) (string, error) {
	img, err := s.Get(fp)
	if err != nil {
		return "", err
	}
	return ChecksumOf(img.Data), nil
}

// ListTemp возвращает относительные пути temp файлов старше olderThan.
// Такие файлы остаются после аварийного завершения писателя.
func (s *Store) ListTemp(olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-olderThan)
	var result []string

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Директория могла исчезнуть между чтением и обходом
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), TempSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			rel, err := filepath.Rel(s.dir, path)
			if err != nil {
				return nil
			}
			result = append(result, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка сканирования %s: %v", ErrStorage, s.dir, err)
	}
	return result, nil
}

// RemoveTemp удаляет temp файл по относительному пути.
// Отказывает для путей без TempSuffix, чтобы не удалить опубликованный объект.
// Возвращает nil, если файл уже не существует.
func (s *Store) RemoveTemp(relPath string) error {
	if !strings.HasSuffix(relPath, TempSuffix) {
		return fmt.Errorf("%w: %s не является временным файлом", ErrStorage, relPath)
	}
	err := os.Remove(filepath.Join(s.dir, relPath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: ошибка удаления %s: %v", ErrStorage, relPath, err)
	}
	return nil
}

// syncDir выполняет fsync директории. Ошибки игнорируются:
// не все файловые системы поддерживают fsync директорий.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}
