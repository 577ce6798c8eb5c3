package outstation

import (
	"math"

	"avaneesh/dnp3-outstation/pkg/types"
)

// UpdateHandler is the view of the point database given to command handlers
// so operate can reflect the new output state
type UpdateHandler interface {
	Update(class types.PointClass, index uint16, value any, opts ...UpdateOption) (Point, error)
}

// CommandHandler decides whether control requests are accepted.
// Select must not have side effects. Operate applies the command, typically
// by updating the matching output status point through db.
// Begin and End bracket the objects of one request.
type CommandHandler interface {
	Begin()
	End()

	SelectCROB(crob types.CROB, index uint16) types.CommandStatus
	OperateCROB(crob types.CROB, index uint16, opType OperateType, db UpdateHandler) types.CommandStatus

	SelectAnalogOutput(ao types.AnalogOutput, index uint16) types.CommandStatus
	OperateAnalogOutput(ao types.AnalogOutput, index uint16, opType OperateType, db UpdateHandler) types.CommandStatus
}

// DefaultCommandHandler accepts every well formed command. Operating a CROB
// latches BinaryOutputStatus[index] to the commanded state and operating an
// analog output stores the value in AnalogOutputStatus[index].
type DefaultCommandHandler struct{}

// NewDefaultCommandHandler creates the default handler
func NewDefaultCommandHandler() *DefaultCommandHandler {
	return &DefaultCommandHandler{}
}

// Begin does nothing
func (DefaultCommandHandler) Begin() {}

// End does nothing
func (DefaultCommandHandler) End() {}

// SelectCROB accepts any control code with a defined target state
func (DefaultCommandHandler) SelectCROB(crob types.CROB, index uint16) types.CommandStatus {
	if _, ok := crob.Code.TargetState(); !ok {
		return types.CommandStatusNotSupported
	}
	return types.CommandStatusSuccess
}

// OperateCROB sets the binary output status point to the commanded state
func (h DefaultCommandHandler) OperateCROB(crob types.CROB, index uint16, opType OperateType, db UpdateHandler) types.CommandStatus {
	state, ok := crob.Code.TargetState()
	if !ok {
		return types.CommandStatusNotSupported
	}
	if _, err := db.Update(types.PointClassBinaryOutputStatus, index, state); err != nil {
		return types.CommandStatusNotSupported
	}
	return types.CommandStatusSuccess
}

// SelectAnalogOutput accepts any finite value
func (DefaultCommandHandler) SelectAnalogOutput(ao types.AnalogOutput, index uint16) types.CommandStatus {
	if math.IsNaN(ao.Value) || math.IsInf(ao.Value, 0) {
		return types.CommandStatusOutOfRange
	}
	return types.CommandStatusSuccess
}

// OperateAnalogOutput stores the value in the analog output status point
func (h DefaultCommandHandler) OperateAnalogOutput(ao types.AnalogOutput, index uint16, opType OperateType, db UpdateHandler) types.CommandStatus {
	if status := h.SelectAnalogOutput(ao, index); status != types.CommandStatusSuccess {
		return status
	}
	if _, err := db.Update(types.PointClassAnalogOutputStatus, index, ao.Value); err != nil {
		return types.CommandStatusNotSupported
	}
	return types.CommandStatusSuccess
}
