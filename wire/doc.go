// Package wire maps Go value types onto the value kinds an example can carry.
//
// Kinds are expressed as WIT types so they print and compare the same way across the
// module and the engine boundary:
//
//	Go type                      wire type                   Kind
//	───────────────────────────────────────────────────────────────────
//	bool                         bool                        KindBool
//	int8..int64, int             s8..s64                     KindNumber
//	uint8..uint64, uint          u8..u64                     KindNumber
//	float32, float64             f32, f64                    KindNumber
//	string                       string                      KindString
//	[]string, [N]string          list<string>                KindTokens
//	[]number, [N]number          list<f64>                   KindVector
//	map[string]number            list<tuple<string, f64>>    KindDict
//	struct                       record                      KindGroup
//
// Pointers reduce to their element. Any other Go type has no wire form and Of
// reports a type mismatch, which the serializer compiler surfaces at compile time.
package wire
