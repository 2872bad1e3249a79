package wire

// Kind is the emission category of a wire type.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindNumber
	KindString
	KindTokens
	KindVector
	KindDict
	KindGroup
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindNumber:  "number",
	KindString:  "string",
	KindTokens:  "tokens",
	KindVector:  "vector",
	KindDict:    "dict",
	KindGroup:   "group",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsScalar reports whether values of the kind are written as a single feature.
func (k Kind) IsScalar() bool {
	return k == KindBool || k == KindNumber || k == KindString
}
