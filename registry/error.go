package registry

import "fmt"

// Code enumerates the error taxonomy from spec.md §4.C, shared by every
// layer (registry, handle, session) that reports user/protocol/transport/
// policy errors.
type Code int

const (
	Ok Code = iota
	Warning
	CreateErrorCode
	NotFoundCode
	NotOpenCode
	AlreadyExistCode
	AlreadyOpenCode
	FolderNotOpenCode
	ItemNotOpenCode
	ItemNotSetCode
	RetiredCode
	NotMainThreadCode
	ConnectionErrorCode
	RecUnknownCode
	ScriptErrorCode
	RpcInvokeErrorCode
	RpcReceiveErrorCode
	LoginBadCode
	RecNotExpectedCode
	OpNotAllowedCode
	NeedEncryptedCode
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "Ok"
	case Warning:
		return "Warning"
	case CreateErrorCode:
		return "CreateError"
	case NotFoundCode:
		return "NotFound"
	case NotOpenCode:
		return "NotOpen"
	case AlreadyExistCode:
		return "AlreadyExist"
	case AlreadyOpenCode:
		return "AlreadyOpen"
	case FolderNotOpenCode:
		return "FolderNotOpen"
	case ItemNotOpenCode:
		return "ItemNotOpen"
	case ItemNotSetCode:
		return "ItemNotSet"
	case RetiredCode:
		return "Retired"
	case NotMainThreadCode:
		return "NotMainThread"
	case ConnectionErrorCode:
		return "ConnectionError"
	case RecUnknownCode:
		return "RecUnknown"
	case ScriptErrorCode:
		return "ScriptError"
	case RpcInvokeErrorCode:
		return "RpcInvokeError"
	case RpcReceiveErrorCode:
		return "RpcReceiveError"
	case LoginBadCode:
		return "LoginBad"
	case RecNotExpectedCode:
		return "RecNotExpected"
	case OpNotAllowedCode:
		return "OpNotAllowed"
	case NeedEncryptedCode:
		return "NeedEncrypted"
	}
	return "Unknown"
}

// Error is the typed result returned at the API boundary, per DESIGN
// NOTES §9 ("standardize on typed result returns"). This package
// exposes package-level sentinels (e.g. ErrKindMismatch) built on top of
// this type, tested with errors.Is via the Code field.
type Error struct {
	Code Code
	Path string
	Msg  string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is lets errors.Is(err, registry.ErrNotFound) style sentinels work by
// comparing only the Code field.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrNotFound      = &Error{Code: NotFoundCode, Msg: "not found"}
	ErrCreate        = &Error{Code: CreateErrorCode, Msg: "create error"}
	ErrRetired       = &Error{Code: RetiredCode, Msg: "retired"}
	ErrKindMismatch  = &Error{Code: CreateErrorCode, Msg: "folder/leaf kind mismatch"}
	ErrAlreadyExist  = &Error{Code: AlreadyExistCode, Msg: "already exists"}
	ErrNotMainThread = &Error{Code: NotMainThreadCode, Msg: "structural operation off main thread"}
)
