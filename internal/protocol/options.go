package protocol

import (
	"errors"
	"fmt"
)

// RenamingType selects the identifier renaming strategy applied by the
// decompiler.
type RenamingType string

const (
	RenamingNone             RenamingType = "NONE"
	RenamingUnique           RenamingType = "UNIQUE"
	RenamingUniqueValueBased RenamingType = "UNIQUE_VALUE_BASED"
)

var ErrInvalidOptions = errors.New("protocol: invalid options")

// V1Options is the first-generation option schema. Every field is
// independently optional; nil fields are omitted from the wire payload and
// left to the server's defaults.
type V1Options struct {
	RenamingType                  *RenamingType `json:"renamingType,omitempty"`
	RemoveDotZero                 *bool         `json:"removeDotZero,omitempty"`
	RemoveFunctionEntryNote       *bool         `json:"removeFunctionEntryNote,omitempty"`
	SwapConstantPosition          *bool         `json:"swapConstantPosition,omitempty"`
	InlineWhileConditions         *bool         `json:"inlineWhileConditions,omitempty"`
	ShowFunctionLineDefined       *bool         `json:"showFunctionLineDefined,omitempty"`
	RemoveUselessNumericForStep   *bool         `json:"removeUselessNumericForStep,omitempty"`
	RemoveUselessReturnInFunction *bool         `json:"removeUselessReturnInFunction,omitempty"`
	SugarRecursiveLocalFunctions  *bool         `json:"sugarRecursiveLocalFunctions,omitempty"`
	SugarLocalFunctions           *bool         `json:"sugarLocalFunctions,omitempty"`
	SugarGlobalFunctions          *bool         `json:"sugarGlobalFunctions,omitempty"`
	SugarGenericFor               *bool         `json:"sugarGenericFor,omitempty"`
	ShowFunctionDebugName         *bool         `json:"showFunctionDebugName,omitempty"`
	SugarRepeatLoops              *bool         `json:"sugarRepeatLoops,omitempty"`
	UpvalueComment                *bool         `json:"upvalueComment,omitempty"`
}

// Validate rejects renaming strategies the service does not know about.
func (o V1Options) Validate() error {
	if o.RenamingType == nil {
		return nil
	}
	switch *o.RenamingType {
	case RenamingNone, RenamingUnique, RenamingUniqueValueBased:
		return nil
	default:
		return fmt.Errorf("%w: renamingType %q", ErrInvalidOptions, *o.RenamingType)
	}
}

// V2Options is the second-generation option schema. It has no fields yet.
type V2Options struct{}
