package wire

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/featurize/errors"
)

// MaxUnwrap bounds pointer indirections followed when reducing a type.
const MaxUnwrap = 8

var (
	tokensType = &wit.TypeDef{Kind: &wit.List{Type: wit.String{}}}
	vectorType = &wit.TypeDef{Kind: &wit.List{Type: wit.F64{}}}
	dictType   = &wit.TypeDef{Kind: &wit.List{Type: &wit.TypeDef{
		Kind: &wit.Tuple{Types: []wit.Type{wit.String{}, wit.F64{}}},
	}}}
)

// records caches one record TypeDef per struct type so kinds compare by identity.
var records sync.Map // reflect.Type -> *wit.TypeDef

// Of returns the wire type values of Go type t are emitted as.
func Of(t reflect.Type) (wit.Type, error) {
	if t == nil {
		return nil, errors.InvalidInput(errors.PhaseCompile, "nil reflect.Type")
	}
	base, err := Deref(t)
	if err != nil {
		return nil, err
	}

	switch base.Kind() {
	case reflect.Bool:
		return wit.Bool{}, nil
	case reflect.Int8:
		return wit.S8{}, nil
	case reflect.Int16:
		return wit.S16{}, nil
	case reflect.Int32:
		return wit.S32{}, nil
	case reflect.Int, reflect.Int64:
		return wit.S64{}, nil
	case reflect.Uint8:
		return wit.U8{}, nil
	case reflect.Uint16:
		return wit.U16{}, nil
	case reflect.Uint32:
		return wit.U32{}, nil
	case reflect.Uint, reflect.Uint64:
		return wit.U64{}, nil
	case reflect.Float32:
		return wit.F32{}, nil
	case reflect.Float64:
		return wit.F64{}, nil
	case reflect.String:
		return wit.String{}, nil
	case reflect.Slice, reflect.Array:
		elem := base.Elem()
		switch {
		case elem.Kind() == reflect.String:
			return tokensType, nil
		case IsNumber(elem):
			return vectorType, nil
		}
		return nil, errors.TypeMismatch(errors.PhaseCompile, nil, t.String(), Name(tokensType)+" or "+Name(vectorType))
	case reflect.Map:
		if base.Key().Kind() == reflect.String && IsNumber(base.Elem()) {
			return dictType, nil
		}
		return nil, errors.TypeMismatch(errors.PhaseCompile, nil, t.String(), Name(dictType))
	case reflect.Struct:
		return record(base), nil
	}

	return nil, errors.New(errors.PhaseCompile, errors.KindTypeMismatch).
		GoType(t.String()).
		Detail("%s values have no wire form", base.Kind()).
		Build()
}

func record(t reflect.Type) *wit.TypeDef {
	if cached, ok := records.Load(t); ok {
		return cached.(*wit.TypeDef)
	}
	name := t.Name()
	td := &wit.TypeDef{Kind: &wit.Record{}}
	if name != "" {
		td.Name = &name
	}
	actual, _ := records.LoadOrStore(t, td)
	return actual.(*wit.TypeDef)
}

// Deref strips pointer indirections from t.
func Deref(t reflect.Type) (reflect.Type, error) {
	for i := 0; t.Kind() == reflect.Pointer; i++ {
		if i == MaxUnwrap {
			return nil, errors.Unsupported(errors.PhaseCompile, nil, t.String(),
				fmt.Sprintf("more than %d pointer indirections", MaxUnwrap))
		}
		t = t.Elem()
	}
	return t, nil
}

// IsNumber reports whether t is an integer or floating point type.
func IsNumber(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Float reads a numeric value as float64.
func Float(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}

// Classify returns the emission kind of a wire type.
func Classify(t wit.Type) Kind {
	switch v := t.(type) {
	case wit.Bool:
		return KindBool
	case wit.S8, wit.S16, wit.S32, wit.S64,
		wit.U8, wit.U16, wit.U32, wit.U64,
		wit.F32, wit.F64:
		return KindNumber
	case wit.String:
		return KindString
	case *wit.TypeDef:
		switch k := v.Kind.(type) {
		case *wit.Record:
			return KindGroup
		case *wit.List:
			switch e := k.Type.(type) {
			case wit.String:
				return KindTokens
			case wit.F64:
				return KindVector
			case *wit.TypeDef:
				if _, ok := e.Kind.(*wit.Tuple); ok {
					return KindDict
				}
			}
		}
	}
	return KindInvalid
}

// Accepts reports whether an example can carry values of wire type t.
func Accepts(t wit.Type) bool {
	return t != nil && Classify(t) != KindInvalid
}

// Name returns the WIT spelling of t.
func Name(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "<nil>"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		switch k := v.Kind.(type) {
		case *wit.List:
			return "list<" + Name(k.Type) + ">"
		case *wit.Tuple:
			parts := make([]string, len(k.Types))
			for i, e := range k.Types {
				parts[i] = Name(e)
			}
			return "tuple<" + strings.Join(parts, ", ") + ">"
		case *wit.Record:
			return "record"
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}
