package app

import "avaneesh/dnp3-outstation/pkg/types"

// IIN is the internal indication pair carried in every response
type IIN = types.IIN

// Bits a request can set in the response through a *ParseError, plus the
// restart bit cleared by WRITE g80v1
const (
	IIN1DeviceRestart     = types.IIN1DeviceRestart
	IIN2NoFuncCodeSupport = types.IIN2NoFuncCodeSupport
	IIN2ObjectUnknown     = types.IIN2ObjectUnknown
	IIN2ParameterError    = types.IIN2ParameterError
)
