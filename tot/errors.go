package tot

import (
	"errors"
	"fmt"
)

// ErrOracle matches every *OracleError via errors.Is.
var ErrOracle = errors.New("oracle call failed")

// ErrInvalidConfig matches every *InvalidConfigError via errors.Is.
var ErrInvalidConfig = errors.New("invalid search config")

// ErrContractViolation indicates an oracle returned a response outside its
// contract (empty batch, empty thought, score outside [0,1]).
var ErrContractViolation = errors.New("oracle contract violation")

// Oracle roles reported by OracleError and metrics.
const (
	RoleGenerator     = "generator"
	RoleEvaluator     = "evaluator"
	RoleFinalizeCheck = "finalize_check"
	RoleSynthesizer   = "synthesizer"
)

// OracleError reports a failed oracle call. A failure aborts the whole
// search; no trace is returned alongside it.
type OracleError struct {
	Role  string // one of the Role* constants
	Depth int    // level at which the call was issued
	Err   error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("%s oracle failed at depth %d: %v", e.Role, e.Depth, e.Err)
}

// Unwrap returns the underlying cause.
func (e *OracleError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrOracle.
func (e *OracleError) Is(target error) bool {
	return target == ErrOracle
}

// InvalidConfigError reports a SearchConfig field outside its bounds.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid search config: %s %s", e.Field, e.Reason)
}

// Is reports whether target is ErrInvalidConfig.
func (e *InvalidConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// EngineError reports a problem constructing an Engine.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	return e.Message
}
