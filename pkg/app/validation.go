package app

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrInvalidGroup     = errors.New("invalid object group")
	ErrInvalidVariation = errors.New("invalid object variation")
	ErrUnknownObject    = errors.New("unknown object size")
)

// ValidateObjectHeader checks the group and variation of a header
func ValidateObjectHeader(header *ObjectHeader) error {
	if !IsValidGroup(header.Group) {
		return fmt.Errorf("%w: %d", ErrInvalidGroup, header.Group)
	}
	if !IsValidVariation(header.Group, header.Variation) {
		return fmt.Errorf("%w: group=%d, variation=%d", ErrInvalidVariation, header.Group, header.Variation)
	}
	return nil
}

// IsValidGroup checks if a group number is one this stack understands
func IsValidGroup(group uint8) bool {
	switch group {
	case GroupBinaryInput, GroupBinaryInputEvent,
		GroupDoubleBitBinaryInput, GroupDoubleBitBinaryEvent,
		GroupBinaryOutput, GroupBinaryOutputEvent, GroupBinaryOutputCommand,
		GroupCounter, GroupFrozenCounter, GroupCounterEvent, GroupFrozenCounterEvent,
		GroupAnalogInput, GroupAnalogInputEvent,
		GroupAnalogOutputStatus, GroupAnalogOutputCommand, GroupAnalogOutputEvent,
		GroupTimeDate, GroupTimeDelay, GroupClassData, GroupInternalIndications:
		return true
	}
	return false
}

// IsValidVariation checks if a variation is valid for a group
func IsValidVariation(group, variation uint8) bool {
	if variation == VariationAny {
		return group != GroupBinaryOutputCommand && group != GroupAnalogOutputCommand &&
			group != GroupTimeDate && group != GroupClassData
	}

	switch group {
	case GroupBinaryInput, GroupDoubleBitBinaryInput, GroupBinaryOutput:
		return variation <= 2
	case GroupBinaryInputEvent, GroupDoubleBitBinaryEvent:
		return variation <= 3
	case GroupBinaryOutputEvent:
		return variation <= 2
	case GroupBinaryOutputCommand:
		return variation == 1
	case GroupCounter, GroupCounterEvent, GroupFrozenCounterEvent:
		return variation <= 2 || (variation >= 5 && variation <= 6)
	case GroupFrozenCounter:
		return variation <= 2 || (variation >= 5 && variation <= 6) || variation == 9 || variation == 10
	case GroupAnalogInput:
		return variation <= 6
	case GroupAnalogInputEvent, GroupAnalogOutputEvent:
		return variation <= 8
	case GroupAnalogOutputStatus, GroupAnalogOutputCommand:
		return variation <= 4
	case GroupTimeDate:
		return variation == 1
	case GroupTimeDelay:
		return variation <= 2
	case GroupClassData:
		return variation <= 4
	case GroupInternalIndications:
		return variation == 1
	}
	return false
}

// IsPacked reports whether objects of this type are bit-packed
func IsPacked(group, variation uint8) bool {
	switch {
	case group == GroupBinaryInput && variation == BinaryInputPacked,
		group == GroupBinaryOutput && variation == 1,
		group == GroupInternalIndications && variation == 1:
		return true
	}
	return false
}

// ObjectSize returns the size in bytes of one object of the given group and
// variation, 0 if unknown. Packed objects report 0.
func ObjectSize(group, variation uint8) int {
	switch group {
	case GroupBinaryInput, GroupDoubleBitBinaryInput, GroupBinaryOutput:
		if variation == 2 {
			return 1
		}

	case GroupBinaryInputEvent, GroupDoubleBitBinaryEvent, GroupBinaryOutputEvent:
		switch variation {
		case 1:
			return 1
		case 2:
			return 7
		case 3:
			return 3
		}

	case GroupBinaryOutputCommand:
		if variation == 1 {
			return CROBSize
		}

	case GroupCounter:
		switch variation {
		case 1:
			return 5
		case 2:
			return 3
		case 5:
			return 4
		case 6:
			return 2
		}

	case GroupFrozenCounter, GroupCounterEvent, GroupFrozenCounterEvent:
		switch variation {
		case 1:
			return 5
		case 2:
			return 3
		case 5:
			return 11
		case 6:
			return 9
		case 9:
			if group == GroupFrozenCounter {
				return 4
			}
		case 10:
			if group == GroupFrozenCounter {
				return 2
			}
		}

	case GroupAnalogInput:
		switch variation {
		case 1, 5:
			return 5
		case 2:
			return 3
		case 3:
			return 4
		case 4:
			return 2
		case 6:
			return 9
		}

	case GroupAnalogInputEvent, GroupAnalogOutputEvent:
		switch variation {
		case 1, 5:
			return 5
		case 2:
			return 3
		case 3, 7:
			return 11
		case 4:
			return 9
		case 6:
			return 9
		case 8:
			return 15
		}

	case GroupAnalogOutputStatus:
		switch variation {
		case 1, 3:
			return 5
		case 2:
			return 3
		case 4:
			return 9
		}

	case GroupAnalogOutputCommand:
		switch variation {
		case AnalogOutputInt32, AnalogOutputFloat:
			return 5
		case AnalogOutputInt16:
			return 3
		case AnalogOutputDouble:
			return 9
		}

	case GroupTimeDate:
		if variation == 1 {
			return 6
		}

	case GroupTimeDelay:
		if variation == 1 || variation == 2 {
			return 2
		}
	}

	return 0
}
