package astrofits

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// KeywordType identifies the stored type of a keyword value. The set is
// closed: every header card a codec can produce maps onto one of these.
type KeywordType int

const (
	TypeNone KeywordType = iota
	TypeBool
	TypeString
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUInt8
	TypeUInt16
	TypeUInt32
	TypeFloat32
	TypeFloat64
)

func (t KeywordType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUInt8:
		return "uint8"
	case TypeUInt16:
		return "uint16"
	case TypeUInt32:
		return "uint32"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	default:
		return "none"
	}
}

// Keyword is a single named, typed metadata entry with a comment.
type Keyword struct {
	Name    string
	Type    KeywordType
	Value   any
	Comment string
}

// classifyValue maps a Go value onto a KeywordType. Plain int is stored as
// int64. Returns TypeNone for unsupported kinds.
func classifyValue(v any) (KeywordType, any) {
	switch x := v.(type) {
	case bool:
		return TypeBool, x
	case string:
		return TypeString, x
	case int8:
		return TypeInt8, x
	case int16:
		return TypeInt16, x
	case int32:
		return TypeInt32, x
	case int64:
		return TypeInt64, x
	case int:
		return TypeInt64, int64(x)
	case uint8:
		return TypeUInt8, x
	case uint16:
		return TypeUInt16, x
	case uint32:
		return TypeUInt32, x
	case float32:
		return TypeFloat32, x
	case float64:
		return TypeFloat64, x
	default:
		return TypeNone, nil
	}
}

// numeric returns the keyword value widened into one of three lanes:
// signed, unsigned or float. ok is false for bool and string keywords.
func (k *Keyword) numeric() (i int64, u uint64, f float64, lane KeywordType, ok bool) {
	switch k.Type {
	case TypeInt8:
		return int64(k.Value.(int8)), 0, 0, TypeInt64, true
	case TypeInt16:
		return int64(k.Value.(int16)), 0, 0, TypeInt64, true
	case TypeInt32:
		return int64(k.Value.(int32)), 0, 0, TypeInt64, true
	case TypeInt64:
		return k.Value.(int64), 0, 0, TypeInt64, true
	case TypeUInt8:
		return 0, uint64(k.Value.(uint8)), 0, TypeUInt32, true
	case TypeUInt16:
		return 0, uint64(k.Value.(uint16)), 0, TypeUInt32, true
	case TypeUInt32:
		return 0, uint64(k.Value.(uint32)), 0, TypeUInt32, true
	case TypeFloat32:
		return 0, 0, float64(k.Value.(float32)), TypeFloat64, true
	case TypeFloat64:
		return 0, 0, k.Value.(float64), TypeFloat64, true
	default:
		return 0, 0, 0, TypeNone, false
	}
}

// asSigned converts the keyword value to a signed integer in [min, max].
// Floats must hold an integral value; a fractional part is a kind mismatch,
// not a range failure, and is reported as such.
func (k *Keyword) asSigned(min, max int64) (int64, error) {
	i, u, f, lane, ok := k.numeric()
	if !ok {
		return 0, fmt.Errorf("%s is %s: %w", k.Name, k.Type, ErrTypeMismatch)
	}
	switch lane {
	case TypeInt64:
		if i < min || i > max {
			return 0, fmt.Errorf("%s=%d: %w", k.Name, i, ErrRange)
		}
		return i, nil
	case TypeUInt32:
		if u > uint64(max) {
			return 0, fmt.Errorf("%s=%d: %w", k.Name, u, ErrRange)
		}
		return int64(u), nil
	default:
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
			return 0, fmt.Errorf("%s=%v is not integral: %w", k.Name, f, ErrTypeMismatch)
		}
		if f < float64(min) || f > float64(max) {
			return 0, fmt.Errorf("%s=%v: %w", k.Name, f, ErrRange)
		}
		return int64(f), nil
	}
}

// asUnsigned converts the keyword value to an unsigned integer in [0, max].
func (k *Keyword) asUnsigned(max uint64) (uint64, error) {
	i, u, f, lane, ok := k.numeric()
	if !ok {
		return 0, fmt.Errorf("%s is %s: %w", k.Name, k.Type, ErrTypeMismatch)
	}
	switch lane {
	case TypeInt64:
		if i < 0 || uint64(i) > max {
			return 0, fmt.Errorf("%s=%d: %w", k.Name, i, ErrRange)
		}
		return uint64(i), nil
	case TypeUInt32:
		if u > max {
			return 0, fmt.Errorf("%s=%d: %w", k.Name, u, ErrRange)
		}
		return u, nil
	default:
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
			return 0, fmt.Errorf("%s=%v is not integral: %w", k.Name, f, ErrTypeMismatch)
		}
		if f < 0 || f > float64(max) {
			return 0, fmt.Errorf("%s=%v: %w", k.Name, f, ErrRange)
		}
		return uint64(f), nil
	}
}

func (k *Keyword) AsInt8() (int8, error) {
	v, err := k.asSigned(math.MinInt8, math.MaxInt8)
	return int8(v), err
}

func (k *Keyword) AsInt16() (int16, error) {
	v, err := k.asSigned(math.MinInt16, math.MaxInt16)
	return int16(v), err
}

func (k *Keyword) AsInt32() (int32, error) {
	v, err := k.asSigned(math.MinInt32, math.MaxInt32)
	return int32(v), err
}

func (k *Keyword) AsInt64() (int64, error) {
	return k.asSigned(math.MinInt64, math.MaxInt64)
}

func (k *Keyword) AsUint8() (uint8, error) {
	v, err := k.asUnsigned(math.MaxUint8)
	return uint8(v), err
}

func (k *Keyword) AsUint16() (uint16, error) {
	v, err := k.asUnsigned(math.MaxUint16)
	return uint16(v), err
}

func (k *Keyword) AsUint32() (uint32, error) {
	v, err := k.asUnsigned(math.MaxUint32)
	return uint32(v), err
}

// AsFloat64 converts any numeric keyword to float64. Widening from the
// integer lanes is permitted without further checks.
func (k *Keyword) AsFloat64() (float64, error) {
	i, u, f, lane, ok := k.numeric()
	if !ok {
		return 0, fmt.Errorf("%s is %s: %w", k.Name, k.Type, ErrTypeMismatch)
	}
	switch lane {
	case TypeInt64:
		return float64(i), nil
	case TypeUInt32:
		return float64(u), nil
	default:
		return f, nil
	}
}

// AsFloat32 narrows to float32, failing on magnitude overflow.
func (k *Keyword) AsFloat32() (float32, error) {
	f, err := k.AsFloat64()
	if err != nil {
		return 0, err
	}
	if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return 0, fmt.Errorf("%s=%v: %w", k.Name, f, ErrRange)
	}
	return float32(f), nil
}

func (k *Keyword) AsBool() (bool, error) {
	if k.Type != TypeBool {
		return false, fmt.Errorf("%s is %s: %w", k.Name, k.Type, ErrTypeMismatch)
	}
	return k.Value.(bool), nil
}

// AsString formats the value. Defined for every keyword type; booleans use
// the FITS convention T/F.
func (k *Keyword) AsString() string {
	switch k.Type {
	case TypeBool:
		if k.Value.(bool) {
			return "T"
		}
		return "F"
	case TypeString:
		return k.Value.(string)
	case TypeFloat32:
		return strconv.FormatFloat(float64(k.Value.(float32)), 'G', -1, 32)
	case TypeFloat64:
		return strconv.FormatFloat(k.Value.(float64), 'G', -1, 64)
	default:
		return fmt.Sprintf("%d", k.Value)
	}
}

// KeywordStore is an ordered, case-insensitive mapping from keyword name to
// a typed value with a comment. Insertion order is preserved and overwrites
// happen in place, which keeps header round-trips faithful.
type KeywordStore struct {
	entries []*Keyword
	index   map[string]int
}

func NewKeywordStore() *KeywordStore {
	return &KeywordStore{index: make(map[string]int)}
}

// CanonicalName is the lookup form of a keyword name: trimmed, upper case.
func CanonicalName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Write upserts a keyword. An existing entry keeps its position; value and
// comment are replaced. The only failure is an unsupported Go value kind.
func (s *KeywordStore) Write(name string, value any, comment string) error {
	t, v := classifyValue(value)
	if t == TypeNone {
		return fmt.Errorf("unsupported keyword value %T: %w", value, ErrTypeMismatch)
	}
	name = CanonicalName(name)
	if i, ok := s.index[name]; ok {
		s.entries[i].Type = t
		s.entries[i].Value = v
		s.entries[i].Comment = comment
		return nil
	}
	s.index[name] = len(s.entries)
	s.entries = append(s.entries, &Keyword{Name: name, Type: t, Value: v, Comment: comment})
	return nil
}

// Get returns the keyword entry, if present.
func (s *KeywordStore) Get(name string) (*Keyword, bool) {
	i, ok := s.index[CanonicalName(name)]
	if !ok {
		return nil, false
	}
	return s.entries[i], true
}

// Read returns the raw stored value, if present.
func (s *KeywordStore) Read(name string) (any, bool) {
	k, ok := s.Get(name)
	if !ok {
		return nil, false
	}
	return k.Value, true
}

func (s *KeywordStore) Exists(name string) bool {
	_, ok := s.index[CanonicalName(name)]
	return ok
}

// Delete removes a keyword. Deleting an absent name is not an error; the
// return value reports whether anything was removed.
func (s *KeywordStore) Delete(name string) bool {
	name = CanonicalName(name)
	i, ok := s.index[name]
	if !ok {
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	delete(s.index, name)
	for j := i; j < len(s.entries); j++ {
		s.index[s.entries[j].Name] = j
	}
	return true
}

// TypeOf returns the stored type tag, if present.
func (s *KeywordStore) TypeOf(name string) (KeywordType, bool) {
	k, ok := s.Get(name)
	if !ok {
		return TypeNone, false
	}
	return k.Type, true
}

func (s *KeywordStore) Len() int { return len(s.entries) }

// All returns the entries in insertion order. The slice is a copy; the
// entries are shared.
func (s *KeywordStore) All() []*Keyword {
	out := make([]*Keyword, len(s.entries))
	copy(out, s.entries)
	return out
}

// DeepCopy clones the store including every entry.
func (s *KeywordStore) DeepCopy() *KeywordStore {
	c := NewKeywordStore()
	for _, k := range s.entries {
		kc := *k
		c.index[kc.Name] = len(c.entries)
		c.entries = append(c.entries, &kc)
	}
	return c
}

// Typed convenience reads used by the pass-through layer. Absence is an
// error here because the caller asked for a value, not for presence.

func (s *KeywordStore) Int64(name string) (int64, error) {
	k, ok := s.Get(name)
	if !ok {
		return 0, fmt.Errorf("%s: %w", CanonicalName(name), ErrKeywordNotFound)
	}
	return k.AsInt64()
}

func (s *KeywordStore) Float64(name string) (float64, error) {
	k, ok := s.Get(name)
	if !ok {
		return 0, fmt.Errorf("%s: %w", CanonicalName(name), ErrKeywordNotFound)
	}
	return k.AsFloat64()
}

func (s *KeywordStore) String(name string) (string, error) {
	k, ok := s.Get(name)
	if !ok {
		return "", fmt.Errorf("%s: %w", CanonicalName(name), ErrKeywordNotFound)
	}
	return k.AsString(), nil
}

func (s *KeywordStore) Bool(name string) (bool, error) {
	k, ok := s.Get(name)
	if !ok {
		return false, fmt.Errorf("%s: %w", CanonicalName(name), ErrKeywordNotFound)
	}
	return k.AsBool()
}
