package entity

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultColliderRadius используется, если в описании юнита радиус не задан
const DefaultColliderRadius = 0.5

var (
	// ErrInvalidDefinition описание юнита не прошло проверку
	ErrInvalidDefinition = errors.New("invalid unit definition")
	// ErrUnknownDefinition описание с таким именем отсутствует в каталоге
	ErrUnknownDefinition = errors.New("unknown unit definition")
)

// Definition статическое описание типа юнита
type Definition struct {
	Name               string  `yaml:"name" json:"name"`
	MaxHP              float64 `yaml:"max_hp" json:"max_hp"`
	AggroRange         float64 `yaml:"aggro_range" json:"aggro_range"`
	AttacksGroundUnits bool    `yaml:"attacks_ground" json:"attacks_ground"`
	AttacksAirUnits    bool    `yaml:"attacks_air" json:"attacks_air"`
	IsAirUnit          bool    `yaml:"air_unit" json:"air_unit"`
	IsBuilding         bool    `yaml:"building" json:"building"`
	ColliderRadius     float64 `yaml:"collider_radius" json:"collider_radius"`
	Directional        bool    `yaml:"directional" json:"directional"` // Оружию нужно доворачиваться на цель
}

// Validate проверяет описание
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDefinition)
	}
	if d.AggroRange <= 0 {
		return fmt.Errorf("%w: %s: aggro_range must be > 0, got %v", ErrInvalidDefinition, d.Name, d.AggroRange)
	}
	if d.MaxHP <= 0 {
		return fmt.Errorf("%w: %s: max_hp must be > 0, got %v", ErrInvalidDefinition, d.Name, d.MaxHP)
	}
	if d.ColliderRadius < 0 {
		return fmt.Errorf("%w: %s: collider_radius must be >= 0", ErrInvalidDefinition, d.Name)
	}
	return nil
}

// Catalog реестр описаний юнитов по имени
type Catalog struct {
	defs map[string]*Definition
}

type catalogFile struct {
	Units []*Definition `yaml:"units"`
}

// NewCatalog создаёт каталог из готовых описаний
func NewCatalog(defs ...*Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if err := c.Register(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ParseCatalog разбирает YAML-описание каталога
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewCatalog(file.Units...)
}

// LoadCatalog читает каталог из YAML файла
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// Register добавляет описание в каталог
func (c *Catalog) Register(d *Definition) error {
	if d == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := c.defs[d.Name]; exists {
		return fmt.Errorf("%w: duplicate name %s", ErrInvalidDefinition, d.Name)
	}
	c.defs[d.Name] = d
	return nil
}

// Get возвращает описание по имени
func (c *Catalog) Get(name string) (*Definition, error) {
	d, ok := c.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDefinition, name)
	}
	return d, nil
}

// Names возвращает отсортированный список имён
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.defs))
	for name := range c.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len возвращает число описаний
func (c *Catalog) Len() int {
	return len(c.defs)
}
