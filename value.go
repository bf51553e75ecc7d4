package tally

import (
	"fmt"
	"math"
)

type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
	KindOther
)

var kindNames = [...]string{"nil", "bool", "int", "float", "string", "bytes", "list", "map", "other"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value 是带类型标记的元素，Kind 决定哪一个字段有效
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Bytes []byte
	List  []Value
	Map   map[string]Value
	Raw   any
}

func Nil() Value { return Value{Kind: KindNil} }
func Str(s string) Value { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func List(vals ...Value) Value { return Value{Kind: KindList, List: vals} }
func Map(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

func (v Value) IsString() bool { return v.Kind == KindString }

func (v Value) IsEmptyString() bool { return v.Kind == KindString && v.Str == "" }

func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return fmt.Sprint(v.Bool)
	case KindInt:
		return fmt.Sprint(v.Int)
	case KindFloat:
		return fmt.Sprint(v.Float)
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindBytes:
		return fmt.Sprintf("bytes[%d]", len(v.Bytes))
	case KindList:
		return fmt.Sprintf("list[%d]", len(v.List))
	case KindMap:
		return fmt.Sprintf("map[%d]", len(v.Map))
	}
	return fmt.Sprintf("other(%T)", v.Raw)
}

// ValueOf 按运行时类型把动态值转换为 Value。
// 嵌套容器会递归转换，但计数只看顶层元素的 Kind。
// 超出 int64 范围的无符号整数保留为 KindOther，Raw 为原值。
func ValueOf(x any) Value {
	switch v := x.(type) {
	case nil:
		return Nil()
	case Value:
		return v
	case bool:
		return Value{Kind: KindBool, Bool: v}
	case string:
		return Str(v)
	case []byte:
		return Value{Kind: KindBytes, Bytes: v}
	case int:
		return Int(int64(v))
	case int8:
		return Int(int64(v))
	case int16:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case int64:
		return Int(v)
	case uint:
		if uint64(v) > math.MaxInt64 {
			return Value{Kind: KindOther, Raw: v}
		}
		return Int(int64(v))
	case uint8:
		return Int(int64(v))
	case uint16:
		return Int(int64(v))
	case uint32:
		return Int(int64(v))
	case uint64:
		if v > math.MaxInt64 {
			return Value{Kind: KindOther, Raw: v}
		}
		return Int(int64(v))
	case float32:
		return Float(float64(v))
	case float64:
		return Float(v)
	case []any:
		return List(Values(v...)...)
	case map[string]any:
		m := make(map[string]Value, len(v))
		for k, e := range v {
			m[k] = ValueOf(e)
		}
		return Map(m)
	case map[any]any:
		m := make(map[string]Value, len(v))
		for k, e := range v {
			m[fmt.Sprint(k)] = ValueOf(e)
		}
		return Map(m)
	}
	return Value{Kind: KindOther, Raw: x}
}

func Values(xs ...any) []Value {
	out := make([]Value, len(xs))
	for i, x := range xs {
		out[i] = ValueOf(x)
	}
	return out
}

func CountStringValues(seq []Value) int {
	return Count(seq, Value.IsString)
}

func CountEmptyStringValues(seq []Value) int {
	return Count(seq, Value.IsEmptyString)
}
