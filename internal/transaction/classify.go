package transaction

// Action is what a session does with its connection once it has finished.
type Action int

const (
	// ActionNone means the session has not been classified yet.
	ActionNone Action = iota

	// ActionGracefulClose closes the link normally.
	ActionGracefulClose

	// ActionForceDisconnect tears the link down without a close handshake.
	ActionForceDisconnect

	// ActionNoOp leaves the connection alone because it was never opened.
	ActionNoOp
)

// String returns the action name used in logs, metrics and JSON.
func (a Action) String() string {
	switch a {
	case ActionGracefulClose:
		return "graceful_close"
	case ActionForceDisconnect:
		return "force_disconnect"
	case ActionNoOp:
		return "no_op"
	default:
		return "none"
	}
}

// MarshalText encodes the action as its name.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// classifyRule maps a set of single-entry codes to an action.
type classifyRule struct {
	codes  []ErrorCode
	action Action
}

// classifyTable is evaluated top to bottom and the first matching row wins.
// Rows only apply to single-entry sets; everything else falls through to
// ActionForceDisconnect.
var classifyTable = []classifyRule{
	{codes: []ErrorCode{CodeOK}, action: ActionGracefulClose},
	{codes: []ErrorCode{CodeNoTransport, CodeNoPort}, action: ActionNoOp},
	{codes: []ErrorCode{CodeMissingObject}, action: ActionGracefulClose},
	{codes: []ErrorCode{CodeTimeout, CodeAbort}, action: ActionForceDisconnect},
	{codes: []ErrorCode{CodeNoAccess, CodeIDError, CodeVersionError}, action: ActionGracefulClose},
}

// Classify maps a terminal ErrorSet to the post-session action.
//
// It is a pure function: empty sets, sets with several entries and
// unrecognised codes all classify as ActionForceDisconnect.
func Classify(errs ErrorSet) Action {
	if errs.Len() != 1 {
		return ActionForceDisconnect
	}
	code := errs.entries[0].Code
	for _, rule := range classifyTable {
		for _, c := range rule.codes {
			if c == code {
				return rule.action
			}
		}
	}
	return ActionForceDisconnect
}
