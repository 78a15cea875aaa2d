package generated

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// specYAML — исходный OpenAPI-контракт, по которому построены типы пакета.
//
//go:embed openapi.yaml
var specYAML []byte

// RawSpec возвращает контракт в исходном YAML.
func RawSpec() []byte {
	return specYAML
}

// GetSwagger загружает и валидирует встроенный контракт.
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки OpenAPI-контракта: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("OpenAPI-контракт невалиден: %w", err)
	}
	return doc, nil
}
