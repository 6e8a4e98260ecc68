package domain

import (
	"errors"
	"fmt"
)

// Category sentinels — use with NewSubSystemError for subsystem-specific
// errors so ErrorCodeOf can resolve a precise ErrorCode from the pair.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrLimitReached     = fmt.Errorf("limit reached")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrDisabled         = fmt.Errorf("disabled")
	ErrInvalidInput     = fmt.Errorf("invalid input")
)

// Sentinel errors for the domain layer.
var (
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrConfigLoad        = fmt.Errorf("failed to load configuration")
	ErrDecryption        = fmt.Errorf("decryption failed")
	ErrEncryption        = fmt.Errorf("encryption operation failed")
	ErrSignatureInvalid  = fmt.Errorf("signature verification failed")
	ErrAttestationExpired = fmt.Errorf("attestation expired")

	// Gateway / RPC errors.
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")

	// Device / pairing errors.
	ErrDeviceNotApproved = fmt.Errorf("device not approved")
	ErrDeviceUnknown     = fmt.Errorf("device unknown")
	ErrPairingNotFound   = fmt.Errorf("pairing session not found")
	ErrPairingExpired    = fmt.Errorf("pairing session expired")
	ErrPairingClosed     = fmt.Errorf("pairing session already resolved")

	// Supervisor / channel-plugin errors.
	ErrChannelNotFound   = fmt.Errorf("channel not found")
	ErrChannelDisabled   = fmt.Errorf("channel disabled")
	ErrChannelNotRunning = fmt.Errorf("channel not running")
	ErrChannelSpawn      = fmt.Errorf("channel spawn failed")

	// Router / agent errors.
	ErrQueueClosed  = fmt.Errorf("queue closed")
	ErrDriverFailed = fmt.Errorf("agent driver failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Supervisor.Start")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "pairing", "supervisor"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for
// ErrorCode dispatch. Pair this with category sentinels (ErrNotFound,
// ErrTimeout, etc.) so ErrorCodeOf can map the combination to a specific
// ErrorCode.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may
// succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrChannelSpawn)
}

// ErrorCode is a machine-parseable error category for logging and
// monitoring.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeEncryption         ErrorCode = "ENCRYPTION"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeSignatureInvalid   ErrorCode = "SIGNATURE_INVALID"
	CodeAttestationExpired ErrorCode = "ATTESTATION_EXPIRED"
	CodeGatewayAuth        ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound  ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload  ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeDeviceNotApproved  ErrorCode = "DEVICE_NOT_APPROVED"
	CodeDeviceUnknown      ErrorCode = "DEVICE_UNKNOWN"
	CodePairingNotFound    ErrorCode = "PAIRING_NOT_FOUND"
	CodePairingExpired     ErrorCode = "PAIRING_EXPIRED"
	CodePairingClosed      ErrorCode = "PAIRING_CLOSED"
	CodeChannelNotFound    ErrorCode = "CHANNEL_NOT_FOUND"
	CodeChannelDisabled    ErrorCode = "CHANNEL_DISABLED"
	CodeChannelNotRunning  ErrorCode = "CHANNEL_NOT_RUNNING"
	CodeChannelSpawn       ErrorCode = "CHANNEL_SPAWN"
	CodeQueueClosed        ErrorCode = "QUEUE_CLOSED"
	CodeDriverFailed       ErrorCode = "DRIVER_FAILED"

	// Category error codes — fallback codes when no subsystem-specific code matches.
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeLimitReached     ErrorCode = "LIMIT_REACHED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeDisabled         ErrorCode = "DISABLED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrLimitReached:     CodeLimitReached,
	ErrPermissionDenied: CodePermissionDenied,
	ErrDisabled:         CodeDisabled,
	ErrInvalidInput:     CodeInvalidInput,

	ErrAuthInvalid:        CodeAuthInvalid,
	ErrConfigLoad:         CodeConfigLoad,
	ErrEncryption:         CodeEncryption,
	ErrDecryption:         CodeDecryption,
	ErrSignatureInvalid:   CodeSignatureInvalid,
	ErrAttestationExpired: CodeAttestationExpired,
	ErrGatewayAuthFailed:  CodeGatewayAuth,
	ErrRPCMethodNotFound:  CodeRPCMethodNotFound,
	ErrRPCInvalidPayload:  CodeRPCInvalidPayload,
	ErrDeviceNotApproved:  CodeDeviceNotApproved,
	ErrDeviceUnknown:      CodeDeviceUnknown,
	ErrPairingNotFound:    CodePairingNotFound,
	ErrPairingExpired:     CodePairingExpired,
	ErrPairingClosed:      CodePairingClosed,
	ErrChannelNotFound:    CodeChannelNotFound,
	ErrChannelDisabled:    CodeChannelDisabled,
	ErrChannelNotRunning:  CodeChannelNotRunning,
	ErrChannelSpawn:       CodeChannelSpawn,
	ErrQueueClosed:        CodeQueueClosed,
	ErrDriverFailed:       CodeDriverFailed,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific
// ErrorCodes, for callers that only have a category sentinel on hand
// (e.g. a generic "not found" check shared by several subsystems).
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"channel": CodeChannelNotFound,
		"pairing": CodePairingNotFound,
		"device":  CodeDeviceUnknown,
	},
	ErrTimeout: {
		"pairing": CodePairingExpired,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given
// error. It unwraps DomainError and uses errors.Is to match sentinel
// errors. For DomainErrors with a SubSystem, it also checks the
// subSystemCodeMap to resolve category sentinels to specific codes.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if de.SubSystem != "" {
			if subsysMap, ok := subSystemCodeMap[de.Err]; ok {
				if code, ok := subsysMap[de.SubSystem]; ok {
					return code
				}
			}
		}
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
