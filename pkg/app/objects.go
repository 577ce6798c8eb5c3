package app

// DNP3 Object Groups and Variations

// Object Group numbers
const (
	GroupBinaryInput          uint8 = 1
	GroupBinaryInputEvent     uint8 = 2
	GroupDoubleBitBinaryInput uint8 = 3
	GroupDoubleBitBinaryEvent uint8 = 4
	GroupBinaryOutput         uint8 = 10
	GroupBinaryOutputEvent    uint8 = 11
	GroupBinaryOutputCommand  uint8 = 12
	GroupCounter              uint8 = 20
	GroupFrozenCounter        uint8 = 21
	GroupCounterEvent         uint8 = 22
	GroupFrozenCounterEvent   uint8 = 23
	GroupAnalogInput          uint8 = 30
	GroupFrozenAnalogInput    uint8 = 31
	GroupAnalogInputEvent     uint8 = 32
	GroupFrozenAnalogEvent    uint8 = 33
	GroupAnalogOutputStatus   uint8 = 40
	GroupAnalogOutputCommand  uint8 = 41
	GroupAnalogOutputEvent    uint8 = 42
	GroupTimeDate             uint8 = 50
	GroupTimeDelay            uint8 = 52
	GroupClassData            uint8 = 60
	GroupInternalIndications  uint8 = 80
)

// Common variations
const (
	VariationAny uint8 = 0 // Request any variation
)

// Class data variations (Group 60)
const (
	ClassVariation0 uint8 = 1
	ClassVariation1 uint8 = 2
	ClassVariation2 uint8 = 3
	ClassVariation3 uint8 = 4
)

// Binary Input variations (Group 1)
const (
	BinaryInputPacked    uint8 = 1
	BinaryInputWithFlags uint8 = 2
)

// Binary Input Event variations (Group 2)
const (
	BinaryInputEventWithoutTime      uint8 = 1
	BinaryInputEventWithTime         uint8 = 2
	BinaryInputEventWithRelativeTime uint8 = 3
)

// Counter variations (Group 20)
const (
	Counter32Bit       uint8 = 1
	Counter16Bit       uint8 = 2
	Counter32BitNoFlag uint8 = 5
	Counter16BitNoFlag uint8 = 6
)

// Analog Input variations (Group 30)
const (
	AnalogInput32Bit       uint8 = 1 // 32-bit integer
	AnalogInput16Bit       uint8 = 2 // 16-bit integer
	AnalogInput32BitNoFlag uint8 = 3 // 32-bit without flag
	AnalogInput16BitNoFlag uint8 = 4 // 16-bit without flag
	AnalogInputFloat       uint8 = 5 // Single-precision float
	AnalogInputDouble      uint8 = 6 // Double-precision float
)

// Analog Input Event variations (Group 32)
const (
	AnalogInputEvent32BitNoTime    uint8 = 1
	AnalogInputEvent16BitNoTime    uint8 = 2
	AnalogInputEvent32BitWithTime  uint8 = 3
	AnalogInputEvent16BitWithTime  uint8 = 4
	AnalogInputEventFloatNoTime    uint8 = 5
	AnalogInputEventDoubleNoTime   uint8 = 6
	AnalogInputEventFloatWithTime  uint8 = 7
	AnalogInputEventDoubleWithTime uint8 = 8
)

// Analog output command variations (Group 41)
const (
	AnalogOutputInt32  uint8 = 1
	AnalogOutputInt16  uint8 = 2
	AnalogOutputFloat  uint8 = 3
	AnalogOutputDouble uint8 = 4
)

// IINRestartIndex is the g80v1 bit index of DEVICE_RESTART
const IINRestartIndex = 7

// Qualifier codes
type QualifierCode uint8

const (
	Qualifier8BitStartStop     QualifierCode = 0x00 // 8-bit start-stop indices
	Qualifier16BitStartStop    QualifierCode = 0x01 // 16-bit start-stop indices
	Qualifier32BitStartStop    QualifierCode = 0x02 // 32-bit start-stop indices
	QualifierNoRange           QualifierCode = 0x06 // All objects, no range field
	Qualifier8BitCount         QualifierCode = 0x07 // 8-bit quantity
	Qualifier16BitCount        QualifierCode = 0x08 // 16-bit quantity
	Qualifier32BitCount        QualifierCode = 0x09 // 32-bit quantity
	Qualifier8BitCountIndex8   QualifierCode = 0x17 // 8-bit count, 8-bit index prefix
	Qualifier16BitCountIndex16 QualifierCode = 0x28 // 16-bit count, 16-bit index prefix
	Qualifier32BitCountIndex32 QualifierCode = 0x39 // 32-bit count, 32-bit index prefix
	QualifierFreeFormat        QualifierCode = 0x5B // Free format
)

// IndexSize returns the width of the per-object index prefix, 0 if the
// qualifier does not prefix objects.
func (q QualifierCode) IndexSize() int {
	switch q {
	case Qualifier8BitCountIndex8:
		return 1
	case Qualifier16BitCountIndex16:
		return 2
	case Qualifier32BitCountIndex32:
		return 4
	}
	return 0
}

// rangeField describes the range field following a qualifier: the width of
// each number in it and whether it is a start-stop pair. ok is false for
// qualifiers this package does not handle.
func (q QualifierCode) rangeField() (width int, startStop, ok bool) {
	switch q {
	case Qualifier8BitStartStop, Qualifier16BitStartStop, Qualifier32BitStartStop:
		return 1 << uint(q), true, true
	case Qualifier8BitCount, Qualifier8BitCountIndex8:
		return 1, false, true
	case Qualifier16BitCount, Qualifier16BitCountIndex16:
		return 2, false, true
	case Qualifier32BitCount, Qualifier32BitCountIndex32:
		return 4, false, true
	case QualifierNoRange:
		return 0, false, true
	}
	return 0, false, false
}

// IsIndexed reports whether objects under this qualifier carry an index prefix
func (q QualifierCode) IsIndexed() bool {
	return q.IndexSize() != 0
}

// ObjectHeader represents a DNP3 object header
type ObjectHeader struct {
	Group     uint8
	Variation uint8
	Qualifier QualifierCode
	Range     Range
}

// Range represents the range/addressing in an object header
type Range interface {
	isRange()
}

// StartStopRange represents start-stop index range
type StartStopRange struct {
	Start uint32
	Stop  uint32
}

func (StartStopRange) isRange() {}

// CountRange represents count-based range, also used by the index-prefixed
// qualifiers.
type CountRange struct {
	Count uint32
}

func (CountRange) isRange() {}

// NoRange represents headers with no range
type NoRange struct{}

func (NoRange) isRange() {}

// ClassField represents DNP3 class assignments
type ClassField uint8

const (
	ClassNone ClassField = 0
	Class0    ClassField = 1 << 0 // Static data
	Class1    ClassField = 1 << 1 // High priority events
	Class2    ClassField = 1 << 2 // Medium priority events
	Class3    ClassField = 1 << 3 // Low priority events
	ClassAll  ClassField = Class1 | Class2 | Class3
)

// ClassFromVariation maps a group 60 variation to its class bit
func ClassFromVariation(variation uint8) ClassField {
	switch variation {
	case ClassVariation0:
		return Class0
	case ClassVariation1:
		return Class1
	case ClassVariation2:
		return Class2
	case ClassVariation3:
		return Class3
	}
	return ClassNone
}

// Variation returns the group 60 variation selecting a single class
func (c ClassField) Variation() uint8 {
	switch c {
	case Class0:
		return ClassVariation0
	case Class1:
		return ClassVariation1
	case Class2:
		return ClassVariation2
	case Class3:
		return ClassVariation3
	}
	return 0
}

// HasClass checks if a specific class is set
func (c ClassField) HasClass(class ClassField) bool {
	return c&class != 0
}

// String returns string representation of ClassField
func (c ClassField) String() string {
	if c == ClassNone {
		return "None"
	}

	result := ""
	for i, name := range []string{"Class0", "Class1", "Class2", "Class3"} {
		if c&(1<<i) == 0 {
			continue
		}
		if result != "" {
			result += ","
		}
		result += name
	}
	return result
}
