package cfg

import (
	"errors"
	"fmt"
)

// ErrUnsupportedRelation is returned by Contrary for relations without an
// integer negation, such as the unordered floating point relations.
var ErrUnsupportedRelation = errors.New("unsupported conditional relation")

var contrary = map[Code]Code{
	EQ: NE, NE: EQ,
	GT: LE, LE: GT,
	GTU: LEU, LEU: GTU,
	LT: GE, GE: LT,
	LTU: GEU, GEU: LTU,
}

// Contrary returns the logical negation of an integer relation.
func Contrary(rel Code) (Code, error) {
	if c, ok := contrary[rel]; ok {
		return c, nil
	}
	return rel, fmt.Errorf("no contrary for %q: %w", rel, ErrUnsupportedRelation)
}

// IsRelation reports whether code is one of the integer relations.
func IsRelation(code Code) bool {
	_, ok := contrary[code]
	return ok
}

// Holds evaluates rel on a compare of a against b. Signed relations use the
// values as int32, unsigned ones as uint32.
func Holds(rel Code, a, b uint32) bool {
	sa, sb := int32(a), int32(b)
	switch rel {
	case EQ:
		return a == b
	case NE:
		return a != b
	case GT:
		return sa > sb
	case LE:
		return sa <= sb
	case LT:
		return sa < sb
	case GE:
		return sa >= sb
	case GTU:
		return a > b
	case LEU:
		return a <= b
	case LTU:
		return a < b
	case GEU:
		return a >= b
	}
	return false
}
