package onetable

import (
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"
)

// Mapping declares how the fields of T are stored. A mapping is validated and bound to a
// table with [Register].
//
//	users := onetable.NewMapping[User]().
//		ItemType("user").
//		Field("ID", onetable.Ref(func(u *User) *string { return &u.ID }), onetable.PartitionKey("USR")).
//		Field("Email", onetable.Ref(func(u *User) *string { return &u.Email }), onetable.StoreName("email"))
type Mapping[T any] struct {
	name     string
	itemType string
	fields   []mappedField[T]
}

type mappedField[T any] struct {
	desc FieldDescriptor
	acc  Accessor[T]
}

// NewMapping starts an empty mapping for T.
func NewMapping[T any]() *Mapping[T] {
	return &Mapping[T]{name: reflect.TypeFor[T]().Name()}
}

// ItemType declares the discriminator value stamped on every item of this type.
func (m *Mapping[T]) ItemType(value string) *Mapping[T] {
	m.itemType = value
	return m
}

// Field maps a field of T. Fields declared without options are stored as attributes
// under their own name.
func (m *Mapping[T]) Field(name string, acc Accessor[T], opts ...FieldOption) *Mapping[T] {
	desc := FieldDescriptor{Name: name}
	if acc != nil {
		desc.Type = acc.declaredType()
	}
	for _, opt := range opts {
		opt(&desc)
	}
	if !desc.Attribute && len(desc.Keys) == 0 {
		desc.Attribute = true
	}
	m.fields = append(m.fields, mappedField[T]{desc: desc, acc: acc})
	return m
}

// Fields returns the descriptors declared so far.
func (m *Mapping[T]) Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, len(m.fields))
	for i, f := range m.fields {
		out[i] = f.desc
	}
	return out
}

// boundField is a validated field with its converters resolved.
type boundField[T any] struct {
	FieldDescriptor
	acc           Accessor[T]
	attrConverter Converter // converter for the attribute role
	keyConverter  Converter // registry converter for key roles
}

// Model is a validated mapping bound to a table. Models are immutable and safe for
// concurrent use.
type Model[T any] struct {
	table    *Table
	name     string
	itemType string
	fields   []*boundField[T]
	byName   map[string]*boundField[T]
	pk       *boundField[T]
	sk       *boundField[T]
}

// Register validates the mapping against the table and caches the resulting model. Later
// calls for the same T return the cached model and ignore m.
func Register[T any](t *Table, m *Mapping[T]) (*Model[T], error) {
	typ := reflect.TypeFor[T]()
	if cached, ok := t.models.Load(typ); ok {
		return cached.(*Model[T]), nil
	}

	model, err := newModel(t, m)
	if err != nil {
		return nil, err
	}

	actual, loaded := t.models.LoadOrStore(typ, model)
	if !loaded {
		t.logger.Debug("registered item type",
			zap.String("type", model.name),
			zap.String("itemType", model.itemType),
			zap.Int("fields", len(model.fields)),
		)
	}
	return actual.(*Model[T]), nil
}

// ModelFor returns the model registered for T.
func ModelFor[T any](t *Table) (*Model[T], error) {
	if cached, ok := t.models.Load(reflect.TypeFor[T]()); ok {
		return cached.(*Model[T]), nil
	}
	return nil, fmt.Errorf("no model registered for type %v", reflect.TypeFor[T]())
}

// MustRegister is like [Register] but panics on error.
func MustRegister[T any](t *Table, m *Mapping[T]) *Model[T] {
	model, err := Register(t, m)
	if err != nil {
		panic(err)
	}
	return model
}

func newModel[T any](t *Table, m *Mapping[T]) (*Model[T], error) {
	cfg := t.config
	model := &Model[T]{
		table:    t,
		name:     m.name,
		itemType: m.itemType,
		byName:   make(map[string]*boundField[T], len(m.fields)),
	}

	invalid := func(field string, code ValidationCode, format string, args ...any) error {
		return &ValidationError{Type: m.name, Field: field, Code: code, Message: fmt.Sprintf(format, args...)}
	}

	if m.itemType != "" && cfg.ItemTypeAttributeName == "" {
		return nil, invalid("", MissingItemTypeAttributeName,
			"item type %q is declared but the table has no item type attribute", m.itemType)
	}

	storeNames := make(map[string]string)
	claim := func(storeName, field string) error {
		if owner, ok := storeNames[storeName]; ok {
			return invalid(field, DuplicateAttributeName, "attribute %q is already used by %q", storeName, owner)
		}
		storeNames[storeName] = field
		return nil
	}

	if m.itemType != "" {
		_ = claim(cfg.ItemTypeAttributeName, "item type")
	}

	for _, mf := range m.fields {
		desc := mf.desc
		switch {
		case desc.Name == "":
			return nil, invalid("", InvalidField, "field name is required")
		case mf.acc == nil:
			return nil, invalid(desc.Name, InvalidField, "field accessor is required")
		case model.byName[desc.Name] != nil:
			return nil, invalid(desc.Name, InvalidField, "field is mapped more than once")
		}

		bf := &boundField[T]{FieldDescriptor: desc, acc: mf.acc}

		if desc.Attribute {
			if err := claim(desc.AttributeName(), desc.Name); err != nil {
				return nil, err
			}
			bf.attrConverter = desc.Converter
			if bf.attrConverter == nil {
				c, err := t.converters.Resolve(desc.Type)
				if err != nil {
					return nil, withField(err, desc.Name)
				}
				bf.attrConverter = c
			}
		}

		for _, role := range desc.Keys {
			if role.Index < 0 {
				return nil, invalid(desc.Name, InvalidField, "index number %d is negative", role.Index)
			}
			if role.Index > cfg.SecondaryIndexCount {
				return nil, invalid(desc.Name, IndexCountTooLow,
					"%s exceeds the configured secondary index count %d", role, cfg.SecondaryIndexCount)
			}
			switch {
			case role.Index != 0:
			case role.Kind == PartitionKeyKind && model.pk != nil:
				return nil, invalid(desc.Name, MultiplePartitionKeys, "partition key is already mapped to %q", model.pk.Name)
			case role.Kind == PartitionKeyKind:
				model.pk = bf
			case model.sk != nil:
				return nil, invalid(desc.Name, MultipleSortKeys, "sort key is already mapped to %q", model.sk.Name)
			default:
				model.sk = bf
			}
			if err := claim(role.StoreName(cfg), desc.Name); err != nil {
				return nil, err
			}
		}

		if desc.IsKey() {
			c, err := t.converters.Resolve(desc.Type)
			if err != nil {
				return nil, withField(err, desc.Name)
			}
			bf.keyConverter = c
		}

		model.fields = append(model.fields, bf)
		model.byName[desc.Name] = bf
	}

	if model.pk == nil {
		return nil, invalid("", MissingPartitionKey, "no field is mapped to the partition key")
	}

	return model, nil
}

func withField(err error, field string) error {
	if ce, ok := err.(*ConversionError); ok {
		copied := *ce
		copied.Field = field
		return &copied
	}
	return err
}

// Name returns the item type name, which defaults to the Go type name.
func (m *Model[T]) Name() string { return m.name }

// ItemType returns the discriminator value, or an empty string.
func (m *Model[T]) ItemType() string { return m.itemType }

// Table returns the table the model is bound to.
func (m *Model[T]) Table() *Table { return m.table }

// Fields returns the model's field descriptors in declaration order.
func (m *Model[T]) Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, len(m.fields))
	for i, f := range m.fields {
		out[i] = f.FieldDescriptor
	}
	return out
}

// Field returns the descriptor of the named field.
func (m *Model[T]) Field(name string) (FieldDescriptor, bool) {
	f, ok := m.byName[name]
	if !ok {
		return FieldDescriptor{}, false
	}
	return f.FieldDescriptor, true
}

// StoreNames returns every attribute written for the type, sorted.
func (m *Model[T]) StoreNames() []string {
	var names []string
	for _, f := range m.fields {
		names = append(names, f.storeNames(m.table.config)...)
	}
	if m.itemType != "" {
		names = append(names, m.table.config.ItemTypeAttributeName)
	}
	sort.Strings(names)
	return names
}

func (m *Model[T]) field(name string) (*boundField[T], error) {
	f, ok := m.byName[name]
	if !ok {
		return nil, compileErrorf(name, "field is not mapped on %s", m.name)
	}
	return f, nil
}
