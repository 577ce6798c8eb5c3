package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PointClass identifies one table of the point database
type PointClass uint8

// Point classes, in the order they appear in database dumps
const (
	PointClassBinary PointClass = iota
	PointClassDoubleBitBinary
	PointClassAnalog
	PointClassCounter
	PointClassFrozenCounter
	PointClassBinaryOutputStatus
	PointClassAnalogOutputStatus

	numPointClasses
)

var (
	// ErrUnknownPointClass is returned when a class name cannot be resolved
	ErrUnknownPointClass = errors.New("unknown point class")
	// ErrValueType is returned when a value cannot be stored in a class
	ErrValueType = errors.New("value type not valid for point class")
)

var pointClassNames = [...]string{
	PointClassBinary:             "Binary",
	PointClassDoubleBitBinary:    "DoubleBitBinary",
	PointClassAnalog:             "Analog",
	PointClassCounter:            "Counter",
	PointClassFrozenCounter:      "FrozenCounter",
	PointClassBinaryOutputStatus: "BinaryOutputStatus",
	PointClassAnalogOutputStatus: "AnalogOutputStatus",
}

// AllPointClasses returns every point class in dump order
func AllPointClasses() []PointClass {
	classes := make([]PointClass, 0, numPointClasses)
	for c := PointClass(0); c < numPointClasses; c++ {
		classes = append(classes, c)
	}
	return classes
}

// Valid reports whether c names a known class
func (c PointClass) Valid() bool {
	return c < numPointClasses
}

func (c PointClass) String() string {
	if !c.Valid() {
		return fmt.Sprintf("PointClass(%d)", uint8(c))
	}
	return pointClassNames[c]
}

// IsBinary reports whether points of this class hold a bool
func (c PointClass) IsBinary() bool {
	return c == PointClassBinary || c == PointClassBinaryOutputStatus
}

// IsOutput reports whether the class is the status of a controllable output
func (c PointClass) IsOutput() bool {
	return c == PointClassBinaryOutputStatus || c == PointClassAnalogOutputStatus
}

// ParsePointClass resolves a class name. Matching ignores case and accepts
// the short aliases used by the RPC surface ("ai", "ao", "bi", "bo").
func ParsePointClass(name string) (PointClass, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "binary", "binaryinput", "bi":
		return PointClassBinary, nil
	case "doublebitbinary", "doublebit", "dbi":
		return PointClassDoubleBitBinary, nil
	case "analog", "analoginput", "ai":
		return PointClassAnalog, nil
	case "counter":
		return PointClassCounter, nil
	case "frozencounter":
		return PointClassFrozenCounter, nil
	case "binaryoutputstatus", "binaryoutput", "bo":
		return PointClassBinaryOutputStatus, nil
	case "analogoutputstatus", "analogoutput", "ao":
		return PointClassAnalogOutputStatus, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPointClass, name)
}

// MarshalText implements encoding.TextMarshaler
func (c PointClass) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPointClass, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *PointClass) UnmarshalText(text []byte) error {
	pc, err := ParsePointClass(string(text))
	if err != nil {
		return err
	}
	*c = pc
	return nil
}

// DoubleBitValue represents the state of a double-bit binary input
type DoubleBitValue uint8

const (
	DoubleBitIntermediate  DoubleBitValue = 0
	DoubleBitOff           DoubleBitValue = 1
	DoubleBitOn            DoubleBitValue = 2
	DoubleBitIndeterminate DoubleBitValue = 3
)

func (d DoubleBitValue) String() string {
	switch d {
	case DoubleBitIntermediate:
		return "Intermediate"
	case DoubleBitOff:
		return "Off"
	case DoubleBitOn:
		return "On"
	default:
		return "Indeterminate"
	}
}

// CoerceValue converts a caller supplied value into the canonical Go type
// stored for class c: bool, DoubleBitValue, float64 or uint32.
func CoerceValue(c PointClass, v any) (any, error) {
	switch c {
	case PointClassBinary, PointClassBinaryOutputStatus:
		return toBool(v)
	case PointClassDoubleBitBinary:
		f, err := toFloat(v)
		if err != nil {
			if b, berr := toBool(v); berr == nil {
				if b {
					return DoubleBitOn, nil
				}
				return DoubleBitOff, nil
			}
			return nil, err
		}
		if f < 0 || f > 3 || f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: double-bit state %v", ErrValueType, v)
		}
		return DoubleBitValue(f), nil
	case PointClassAnalog, PointClassAnalogOutputStatus:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(f) {
			return nil, fmt.Errorf("%w: NaN", ErrValueType)
		}
		return f, nil
	case PointClassCounter, PointClassFrozenCounter:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if f < 0 || f > math.MaxUint32 || f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: counter value %v", ErrValueType, v)
		}
		return uint32(f), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownPointClass, uint8(c))
}

// ZeroValue returns the initial value of a point of class c
func ZeroValue(c PointClass) any {
	switch c {
	case PointClassBinary, PointClassBinaryOutputStatus:
		return false
	case PointClassDoubleBitBinary:
		return DoubleBitIntermediate
	case PointClassCounter, PointClassFrozenCounter:
		return uint32(0)
	default:
		return float64(0)
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("%w: %q", ErrValueType, b)
		}
		return parsed, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return false, err
	}
	switch f {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: %v is not a binary state", ErrValueType, v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case DoubleBitValue:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrValueType, n.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrValueType, n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %T", ErrValueType, v)
}
