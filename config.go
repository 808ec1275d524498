package onetable

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultSecondaryIndexCount is the number of secondary indexes a default table declares.
	DefaultSecondaryIndexCount = 2
	// MaxSecondaryIndexCount is the largest number of global secondary indexes DynamoDB allows per table.
	MaxSecondaryIndexCount = 20
)

// TableConfiguration describes how mapped items are laid out in the table.
// It is validated once by [NewTable] and must not be modified afterwards.
type TableConfiguration struct {
	PKName                string `yaml:"pk_name" validate:"required"`                        // Primary partition key attribute
	SKName                string `yaml:"sk_name" validate:"required"`                        // Primary sort key attribute
	GPKNameFormat         string `yaml:"gpk_name_format" validate:"required,contains=%d"`    // Secondary partition key attribute, e.g. "GPK%d"
	GSKNameFormat         string `yaml:"gsk_name_format" validate:"required,contains=%d"`    // Secondary sort key attribute, e.g. "GSK%d"
	IndexNameFormat       string `yaml:"index_name_format" validate:"required,contains=%d"`  // Secondary index name, e.g. "gsi_%d"
	ItemTypeAttributeName string `yaml:"item_type_attribute_name"`                           // Discriminator attribute. Empty disables it.
	KeyPrefixDelimiter    string `yaml:"key_prefix_delimiter"`                               // Joins key prefixes and values. Empty concatenates.
	SecondaryIndexCount   int    `yaml:"secondary_index_count" validate:"min=0,max=20"`      // Number of secondary indexes
}

// DefaultTableConfiguration returns the default naming scheme.
func DefaultTableConfiguration() TableConfiguration {
	return TableConfiguration{
		PKName:                "PK",
		SKName:                "SK",
		GPKNameFormat:         "GPK%d",
		GSKNameFormat:         "GSK%d",
		IndexNameFormat:       "gsi_%d",
		ItemTypeAttributeName: "ItemType",
		KeyPrefixDelimiter:    "#",
		SecondaryIndexCount:   DefaultSecondaryIndexCount,
	}
}

var validate = validator.New()

// Validate checks the configuration and returns a [ValidationError] describing every
// violated rule.
func (c TableConfiguration) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return &ValidationError{Code: InvalidConfiguration, Message: err.Error()}
	}

	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		messages = append(messages, formatFieldError(fe))
	}

	return &ValidationError{
		Field:   fieldErrors[0].Field(),
		Code:    InvalidConfiguration,
		Message: strings.Join(messages, "; "),
	}
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "contains":
		return fmt.Sprintf("%s must contain %q", e.Field(), e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s is invalid", e.Field())
	}
}

// LoadTableConfiguration decodes a YAML document over the default configuration and
// validates the result. Keys absent from the document keep their default value.
func LoadTableConfiguration(r io.Reader) (TableConfiguration, error) {
	cfg := DefaultTableConfiguration()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to decode table configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// PartitionKeyName returns the partition key attribute for index n. Index 0 is the table itself.
func (c TableConfiguration) PartitionKeyName(n int) string {
	if n == 0 {
		return c.PKName
	}
	return fmt.Sprintf(c.GPKNameFormat, n)
}

// SortKeyName returns the sort key attribute for index n. Index 0 is the table itself.
func (c TableConfiguration) SortKeyName(n int) string {
	if n == 0 {
		return c.SKName
	}
	return fmt.Sprintf(c.GSKNameFormat, n)
}

// IndexName returns the name of secondary index n, or an empty string for the table itself.
func (c TableConfiguration) IndexName(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf(c.IndexNameFormat, n)
}

// FormatKey joins a key prefix and the textual key value.
func (c TableConfiguration) FormatKey(prefix, text string) string {
	return prefix + c.KeyPrefixDelimiter + text
}

// StripKey removes prefix and delimiter from a stored key value. It reports false when
// the value does not carry the prefix.
func (c TableConfiguration) StripKey(prefix, stored string) (string, bool) {
	return strings.CutPrefix(stored, prefix+c.KeyPrefixDelimiter)
}
