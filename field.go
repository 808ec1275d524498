package onetable

import (
	"fmt"
	"math"
	"reflect"
	"sort"
)

// KeyKind distinguishes partition keys from sort keys.
type KeyKind int

const (
	PartitionKeyKind KeyKind = iota + 1
	SortKeyKind
)

func (k KeyKind) String() string {
	switch k {
	case PartitionKeyKind:
		return "partition"
	case SortKeyKind:
		return "sort"
	default:
		return fmt.Sprintf("KeyKind(%d)", int(k))
	}
}

// KeyRole is one key attribute a field is written to. Index 0 is the table's primary
// key; index n > 0 is secondary index n.
type KeyRole struct {
	Kind   KeyKind
	Index  int
	Prefix string
}

// StoreName returns the attribute this role is stored under.
func (r KeyRole) StoreName(cfg TableConfiguration) string {
	if r.Kind == SortKeyKind {
		return cfg.SortKeyName(r.Index)
	}
	return cfg.PartitionKeyName(r.Index)
}

func (r KeyRole) String() string {
	var s string
	switch {
	case r.Index == 0 && r.Kind == PartitionKeyKind:
		s = "PrimaryPartitionKey"
	case r.Index == 0:
		s = "PrimarySortKey"
	case r.Kind == PartitionKeyKind:
		s = fmt.Sprintf("SecondaryPartitionKey(%d)", r.Index)
	default:
		s = fmt.Sprintf("SecondarySortKey(%d)", r.Index)
	}
	if r.Prefix != "" {
		s += fmt.Sprintf("[%s]", r.Prefix)
	}
	return s
}

// FieldDescriptor is the static description of one mapped field.
type FieldDescriptor struct {
	Name      string       // Field name, used in predicates
	Type      reflect.Type // Declared type; pointer types are nullable
	Attribute bool         // Stored as a plain attribute
	StoreName string       // Attribute name override. Empty uses Name.
	Converter Converter    // Attribute converter override. Never applies to key roles.
	Keys      []KeyRole    // Key roles, in declaration order
}

// FieldOption declares a role or setting on a field.
type FieldOption func(*FieldDescriptor)

// Attribute stores the field as a plain attribute. Fields declared without any
// option are attributes.
func Attribute() FieldOption {
	return func(fd *FieldDescriptor) {
		fd.Attribute = true
	}
}

// StoreName stores the field as an attribute named name.
func StoreName(name string) FieldOption {
	return func(fd *FieldDescriptor) {
		fd.Attribute = true
		fd.StoreName = name
	}
}

// WithFieldConverter stores the field as an attribute converted by c instead of the
// converter registered for its type.
func WithFieldConverter(c Converter) FieldOption {
	return func(fd *FieldDescriptor) {
		fd.Attribute = true
		fd.Converter = c
	}
}

// PartitionKey writes the field to the table's partition key. An empty prefix stores
// the value unchanged.
func PartitionKey(prefix string) FieldOption {
	return keyRole(PartitionKeyKind, 0, prefix)
}

// SortKey writes the field to the table's sort key.
func SortKey(prefix string) FieldOption {
	return keyRole(SortKeyKind, 0, prefix)
}

// SecondaryPartitionKey writes the field to the partition key of secondary index n.
func SecondaryPartitionKey(n int, prefix string) FieldOption {
	return keyRole(PartitionKeyKind, n, prefix)
}

// SecondarySortKey writes the field to the sort key of secondary index n.
func SecondarySortKey(n int, prefix string) FieldOption {
	return keyRole(SortKeyKind, n, prefix)
}

func keyRole(kind KeyKind, n int, prefix string) FieldOption {
	return func(fd *FieldDescriptor) {
		fd.Keys = append(fd.Keys, KeyRole{Kind: kind, Index: n, Prefix: prefix})
	}
}

// IsKey reports whether the field carries any key role.
func (fd FieldDescriptor) IsKey() bool {
	return len(fd.Keys) > 0
}

// AttributeName returns the name the field is stored under as an attribute.
func (fd FieldDescriptor) AttributeName() string {
	if fd.StoreName != "" {
		return fd.StoreName
	}
	return fd.Name
}

// Role returns the key role of the given kind on index n.
func (fd FieldDescriptor) Role(kind KeyKind, n int) (KeyRole, bool) {
	for _, r := range fd.Keys {
		if r.Kind == kind && r.Index == n {
			return r, true
		}
	}
	return KeyRole{}, false
}

// indexes returns the sorted index numbers of the field's key roles of the given kind.
func (fd FieldDescriptor) indexes(kind KeyKind) []int {
	var out []int
	for _, r := range fd.Keys {
		if r.Kind == kind {
			out = append(out, r.Index)
		}
	}
	sort.Ints(out)
	return out
}

// lowestRole returns the key role with the smallest index, partition before sort.
func (fd FieldDescriptor) lowestRole() KeyRole {
	roles := append([]KeyRole(nil), fd.Keys...)
	sort.SliceStable(roles, func(i, j int) bool {
		if roles[i].Index != roles[j].Index {
			return roles[i].Index < roles[j].Index
		}
		return roles[i].Kind < roles[j].Kind
	})
	return roles[0]
}

// storeNames returns every attribute the field is written to.
func (fd FieldDescriptor) storeNames(cfg TableConfiguration) []string {
	var names []string
	if fd.Attribute {
		names = append(names, fd.AttributeName())
	}
	for _, r := range fd.Keys {
		names = append(names, r.StoreName(cfg))
	}
	return names
}

// Accessor reads and writes one field of T. Accessors are created with [Ref] and [NullableRef].
type Accessor[T any] interface {
	declaredType() reflect.Type
	get(item *T) (v any, null bool)
	set(item *T, v any) error
	setNull(item *T)
	literal(v any) (resolved any, null bool, err error)
}

// Ref maps a value field. The function returns a pointer to the field within the item:
//
//	onetable.Ref(func(u *User) *string { return &u.ID })
func Ref[T, V any](ref func(*T) *V) Accessor[T] {
	return valueAccessor[T, V]{ref: ref}
}

// NullableRef maps a pointer field, which is stored as NULL when nil:
//
//	onetable.NullableRef(func(u *User) **int { return &u.Age })
func NullableRef[T, V any](ref func(*T) **V) Accessor[T] {
	return nullableAccessor[T, V]{ref: ref}
}

type valueAccessor[T, V any] struct {
	ref func(*T) *V
}

func (a valueAccessor[T, V]) declaredType() reflect.Type { return reflect.TypeFor[V]() }

func (a valueAccessor[T, V]) get(item *T) (any, bool) {
	return *a.ref(item), false
}

func (a valueAccessor[T, V]) set(item *T, v any) error {
	tv, ok := v.(V)
	if !ok {
		return fmt.Errorf("cannot assign %T to %v", v, reflect.TypeFor[V]())
	}
	*a.ref(item) = tv
	return nil
}

func (a valueAccessor[T, V]) setNull(item *T) {
	var zero V
	*a.ref(item) = zero
}

func (a valueAccessor[T, V]) literal(v any) (any, bool, error) {
	return resolveLiteral[V](v)
}

type nullableAccessor[T, V any] struct {
	ref func(*T) **V
}

func (a nullableAccessor[T, V]) declaredType() reflect.Type { return reflect.TypeFor[*V]() }

func (a nullableAccessor[T, V]) get(item *T) (any, bool) {
	p := *a.ref(item)
	if p == nil {
		return nil, true
	}
	return *p, false
}

func (a nullableAccessor[T, V]) set(item *T, v any) error {
	tv, ok := v.(V)
	if !ok {
		return fmt.Errorf("cannot assign %T to %v", v, reflect.TypeFor[V]())
	}
	*a.ref(item) = &tv
	return nil
}

func (a nullableAccessor[T, V]) setNull(item *T) {
	*a.ref(item) = nil
}

func (a nullableAccessor[T, V]) literal(v any) (any, bool, error) {
	return resolveLiteral[V](v)
}

// resolveLiteral coerces a predicate operand to V, dereferencing pointer chains.
// A nil operand, nil pointer or the null marker resolve to null.
func resolveLiteral[V any](v any) (any, bool, error) {
	for {
		switch x := v.(type) {
		case nil, nullLiteral:
			return nil, true, nil
		case V:
			return x, false, nil
		case *V:
			if x == nil {
				return nil, true, nil
			}
			return *x, false, nil
		}

		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer {
			out, err := convertNumber(rv, reflect.TypeFor[V]())
			if err != nil {
				return nil, false, err
			}
			return out, false, nil
		}
		if rv.IsNil() {
			return nil, true, nil
		}
		v = rv.Elem().Interface()
	}
}

func isNumber(v reflect.Value) bool {
	return v.CanInt() || v.CanUint() || v.CanFloat()
}

// convertNumber converts a numeric constant to the numeric type target. Values target
// cannot hold exactly, such as 1.5 for an int or -1 for a uint, are rejected.
func convertNumber(v reflect.Value, target reflect.Type) (any, error) {
	out := reflect.New(target).Elem()
	if !isNumber(v) || !isNumber(out) {
		return nil, fmt.Errorf("operand of type %s is not assignable to %v", v.Type(), target)
	}
	overflow := fmt.Errorf("operand %v overflows %v", v.Interface(), target)

	switch {
	case out.CanInt():
		var n int64
		switch {
		case v.CanInt():
			n = v.Int()
		case v.CanUint():
			if v.Uint() > math.MaxInt64 {
				return nil, overflow
			}
			n = int64(v.Uint())
		default:
			f := v.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return nil, overflow
			}
			n = int64(f)
		}
		if out.OverflowInt(n) {
			return nil, overflow
		}
		out.SetInt(n)

	case out.CanUint():
		var n uint64
		switch {
		case v.CanInt():
			if v.Int() < 0 {
				return nil, overflow
			}
			n = uint64(v.Int())
		case v.CanUint():
			n = v.Uint()
		default:
			f := v.Float()
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return nil, overflow
			}
			n = uint64(f)
		}
		if out.OverflowUint(n) {
			return nil, overflow
		}
		out.SetUint(n)

	default:
		var f float64
		switch {
		case v.CanInt():
			f = float64(v.Int())
		case v.CanUint():
			f = float64(v.Uint())
		default:
			f = v.Float()
		}
		if out.OverflowFloat(f) {
			return nil, overflow
		}
		out.SetFloat(f)
	}
	return out.Interface(), nil
}
