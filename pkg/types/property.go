package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Property validation errors
var (
	ErrEmptyPropertyKey     = errors.New("property key cannot be empty")
	ErrInvalidPropertyKind  = errors.New("invalid property kind")
	ErrNonFiniteNumber      = errors.New("property number must be finite")
	ErrUnsupportedPropValue = errors.New("unsupported property value type")
)

// PropertyKind tags the scalar held by a PropertyValue.
type PropertyKind string

const (
	PropertyString    PropertyKind = "string"
	PropertyNumber    PropertyKind = "number"
	PropertyBool      PropertyKind = "bool"
	PropertyTimestamp PropertyKind = "timestamp"
)

// PropertyValue is a scalar property value. The zero value is invalid.
type PropertyValue struct {
	kind PropertyKind
	s    string
	n    float64
	b    bool
	t    time.Time
}

// StringValue returns a string property.
func StringValue(s string) PropertyValue { return PropertyValue{kind: PropertyString, s: s} }

// NumberValue returns a numeric property.
func NumberValue(n float64) PropertyValue { return PropertyValue{kind: PropertyNumber, n: n} }

// BoolValue returns a boolean property.
func BoolValue(b bool) PropertyValue { return PropertyValue{kind: PropertyBool, b: b} }

// TimestampValue returns a timestamp property, normalized to UTC.
func TimestampValue(t time.Time) PropertyValue {
	return PropertyValue{kind: PropertyTimestamp, t: t.UTC()}
}

// Kind reports the tag of the value.
func (v PropertyValue) Kind() PropertyKind { return v.kind }

// String returns the string payload, or a formatted rendering for other kinds.
func (v PropertyValue) String() string {
	switch v.kind {
	case PropertyString:
		return v.s
	case PropertyNumber:
		return fmt.Sprintf("%g", v.n)
	case PropertyBool:
		return fmt.Sprintf("%t", v.b)
	case PropertyTimestamp:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// AsString returns the string payload if v is a string.
func (v PropertyValue) AsString() (string, bool) { return v.s, v.kind == PropertyString }

// AsNumber returns the numeric payload if v is a number.
func (v PropertyValue) AsNumber() (float64, bool) { return v.n, v.kind == PropertyNumber }

// AsBool returns the boolean payload if v is a bool.
func (v PropertyValue) AsBool() (bool, bool) { return v.b, v.kind == PropertyBool }

// AsTime returns the timestamp payload if v is a timestamp.
func (v PropertyValue) AsTime() (time.Time, bool) { return v.t, v.kind == PropertyTimestamp }

// Any returns the payload as a plain Go value suitable for a database driver.
func (v PropertyValue) Any() any {
	switch v.kind {
	case PropertyString:
		return v.s
	case PropertyNumber:
		return v.n
	case PropertyBool:
		return v.b
	case PropertyTimestamp:
		return v.t
	default:
		return nil
	}
}

// Equal reports whether both values have the same kind and payload.
func (v PropertyValue) Equal(o PropertyValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case PropertyString:
		return v.s == o.s
	case PropertyNumber:
		return v.n == o.n
	case PropertyBool:
		return v.b == o.b
	case PropertyTimestamp:
		return v.t.Equal(o.t)
	}
	return true
}

// Validate checks the kind tag and payload.
func (v PropertyValue) Validate() error {
	switch v.kind {
	case PropertyString, PropertyBool, PropertyTimestamp:
		return nil
	case PropertyNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return ErrNonFiniteNumber
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPropertyKind, v.kind)
	}
}

type propertyValueJSON struct {
	Kind  PropertyKind    `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value as {"kind": ..., "value": ...}.
func (v PropertyValue) MarshalJSON() ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v.Any())
	if err != nil {
		return nil, err
	}
	return json.Marshal(propertyValueJSON{Kind: v.kind, Value: raw})
}

// UnmarshalJSON decodes the tagged form produced by MarshalJSON.
func (v *PropertyValue) UnmarshalJSON(data []byte) error {
	var tagged propertyValueJSON
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	switch tagged.Kind {
	case PropertyString:
		var s string
		if err := json.Unmarshal(tagged.Value, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case PropertyNumber:
		var n float64
		if err := json.Unmarshal(tagged.Value, &n); err != nil {
			return err
		}
		*v = NumberValue(n)
	case PropertyBool:
		var b bool
		if err := json.Unmarshal(tagged.Value, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case PropertyTimestamp:
		var t time.Time
		if err := json.Unmarshal(tagged.Value, &t); err != nil {
			return err
		}
		*v = TimestampValue(t)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPropertyKind, tagged.Kind)
	}
	return nil
}

// ValueOf converts a plain Go value to a PropertyValue.
func ValueOf(x any) (PropertyValue, error) {
	switch t := x.(type) {
	case PropertyValue:
		return t, t.Validate()
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case time.Time:
		return TimestampValue(t), nil
	case float64:
		return checkedNumber(t)
	case float32:
		return checkedNumber(float64(t))
	case int:
		return NumberValue(float64(t)), nil
	case int8:
		return NumberValue(float64(t)), nil
	case int16:
		return NumberValue(float64(t)), nil
	case int32:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case uint:
		return NumberValue(float64(t)), nil
	case uint8:
		return NumberValue(float64(t)), nil
	case uint16:
		return NumberValue(float64(t)), nil
	case uint32:
		return NumberValue(float64(t)), nil
	case uint64:
		return NumberValue(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return PropertyValue{}, err
		}
		return checkedNumber(f)
	default:
		return PropertyValue{}, fmt.Errorf("%w: %T", ErrUnsupportedPropValue, x)
	}
}

func checkedNumber(f float64) (PropertyValue, error) {
	v := NumberValue(f)
	return v, v.Validate()
}

// Properties is an insertion-ordered map of scalar property values.
// The zero value is an empty map ready to use.
type Properties struct {
	keys   []string
	values map[string]PropertyValue
}

// NewProperties returns an empty property map.
func NewProperties() *Properties {
	return &Properties{values: make(map[string]PropertyValue)}
}

// PropertiesFromMap builds a property map from plain values. Keys are
// inserted in sorted order since Go maps carry none.
func PropertiesFromMap(m map[string]any) (*Properties, error) {
	p := NewProperties()
	for _, k := range sortedKeys(m) {
		v, err := ValueOf(m[k])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		p.Set(k, v)
	}
	return p, nil
}

// Set inserts or replaces key. Replacing keeps the original position.
func (p *Properties) Set(key string, v PropertyValue) {
	if p.values == nil {
		p.values = make(map[string]PropertyValue)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = v
}

// Get returns the value for key.
func (p *Properties) Get(key string) (PropertyValue, bool) {
	if p == nil {
		return PropertyValue{}, false
	}
	v, ok := p.values[key]
	return v, ok
}

// GetString returns key's value when it holds a string.
func (p *Properties) GetString(key string) string {
	v, _ := p.Get(key)
	s, _ := v.AsString()
	return s
}

// Delete removes key.
func (p *Properties) Delete(key string) {
	if p == nil {
		return
	}
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns keys in insertion order.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of keys.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Merge copies every entry of other into p. Values from other win on conflict.
func (p *Properties) Merge(other *Properties) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		p.Set(k, other.values[k])
	}
}

// Clone returns a deep copy.
func (p *Properties) Clone() *Properties {
	c := NewProperties()
	if p == nil {
		return c
	}
	c.Merge(p)
	return c
}

// Equal reports whether both maps hold the same keys and values, ignoring order.
func (p *Properties) Equal(o *Properties) bool {
	if p.Len() != o.Len() {
		return false
	}
	for _, k := range p.Keys() {
		ov, ok := o.Get(k)
		if !ok || !p.values[k].Equal(ov) {
			return false
		}
	}
	return true
}

// Validate checks every key and value.
func (p *Properties) Validate() error {
	if p == nil {
		return nil
	}
	for _, k := range p.keys {
		if k == "" {
			return ErrEmptyPropertyKey
		}
		if err := p.values[k].Validate(); err != nil {
			return fmt.Errorf("property %q: %w", k, err)
		}
	}
	return nil
}

// ToMap returns the plain values keyed by name.
func (p *Properties) ToMap() map[string]any {
	out := make(map[string]any, p.Len())
	if p == nil {
		return out
	}
	for _, k := range p.keys {
		out[k] = p.values[k].Any()
	}
	return out
}

// MarshalJSON encodes the map as an object, preserving insertion order.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of tagged values, preserving document order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("properties: expected object")
	}
	*p = Properties{values: make(map[string]PropertyValue)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("properties: expected string key")
		}
		var v PropertyValue
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		p.Set(key, v)
	}
	_, err = dec.Token()
	return err
}
