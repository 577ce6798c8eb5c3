package app

import "fmt"

// FunctionCode is the second octet of every APDU
type FunctionCode uint8

// Transfer and control
const (
	FuncConfirm FunctionCode = iota
	FuncRead
	FuncWrite
	FuncSelect
	FuncOperate
	FuncDirectOperate
	FuncDirectOperateNoAck
)

// Freeze
const (
	FuncImmediateFreeze FunctionCode = iota + 0x07
	FuncImmediateFreezeNoAck
	FuncFreezeClear
	FuncFreezeClearNoAck
	FuncFreezeAtTime
	FuncFreezeAtTimeNoAck
)

// Application management
const (
	FuncColdRestart FunctionCode = iota + 0x0D
	FuncWarmRestart
	FuncInitializeData
	FuncInitializeApplication
	FuncStartApplication
	FuncStopApplication
	FuncSaveConfiguration
	FuncEnableUnsolicited
	FuncDisableUnsolicited
	FuncAssignClass
	FuncDelayMeasurement
	FuncRecordCurrentTime
)

// File transfer
const (
	FuncOpenFile FunctionCode = iota + 0x19
	FuncCloseFile
	FuncDeleteFile
	FuncGetFileInfo
	FuncAuthenticateFile
	FuncAbortFile
)

// Outstation to master
const (
	FuncResponse FunctionCode = iota + 0x81
	FuncUnsolicitedResponse
	FuncAuthResponse
)

var requestNames = [...]string{
	"Confirm", "Read", "Write", "Select", "Operate", "DirectOperate", "DirectOperateNoAck",
	"ImmediateFreeze", "ImmediateFreezeNoAck", "FreezeClear", "FreezeClearNoAck",
	"FreezeAtTime", "FreezeAtTimeNoAck",
	"ColdRestart", "WarmRestart", "InitializeData", "InitializeApplication",
	"StartApplication", "StopApplication", "SaveConfiguration",
	"EnableUnsolicited", "DisableUnsolicited", "AssignClass",
	"DelayMeasurement", "RecordCurrentTime",
	"OpenFile", "CloseFile", "DeleteFile", "GetFileInfo", "AuthenticateFile", "AbortFile",
}

var responseNames = [...]string{"Response", "UnsolicitedResponse", "AuthResponse"}

func (f FunctionCode) String() string {
	switch {
	case int(f) < len(requestNames):
		return requestNames[f]
	case f.IsResponse():
		return responseNames[f-FuncResponse]
	}
	return fmt.Sprintf("Unknown(0x%02X)", uint8(f))
}

func (f FunctionCode) IsRequest() bool { return !f.IsResponse() }

func (f FunctionCode) IsResponse() bool { return f >= FuncResponse && f <= FuncAuthResponse }

// NoAck reports whether the master expects no response to this function
func (f FunctionCode) NoAck() bool {
	switch f {
	case FuncConfirm, FuncDirectOperateNoAck, FuncImmediateFreezeNoAck,
		FuncFreezeClearNoAck, FuncFreezeAtTimeNoAck:
		return true
	}
	return false
}

// CarriesObjectData reports whether object headers of this function are
// followed by object values rather than being bare selectors.
func (f FunctionCode) CarriesObjectData() bool {
	switch f {
	case FuncWrite, FuncSelect, FuncOperate, FuncDirectOperate, FuncDirectOperateNoAck:
		return true
	}
	return false
}
