package transaction

import (
	"encoding/json"
	"strings"
)

// ErrorCode names one terminal condition of a session.
type ErrorCode string

// Known error codes. Lower protocol layers may report other codes; those are
// carried through unchanged and classify as ForceDisconnect.
const (
	CodeOK            ErrorCode = "OK"
	CodeNoTransport   ErrorCode = "NO_TRANSPORT"
	CodeNoPort        ErrorCode = "NO_PORT"
	CodeMissingObject ErrorCode = "MISSING_OBJECT"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeAbort         ErrorCode = "ABORT"
	CodeNoAccess      ErrorCode = "NO_ACCESS"
	CodeIDError       ErrorCode = "ID_ERROR"
	CodeVersionError  ErrorCode = "VERSION_ERROR"
	CodeUnknown       ErrorCode = "UNKNOWN"
)

// Error is one entry of an ErrorSet.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

// OK reports whether the entry is the success condition.
func (e Error) OK() bool {
	return e.Code == CodeOK
}

// String returns "CODE" or "CODE: message".
func (e Error) String() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// ErrorSet is the ordered, immutable collection of conditions a session ended with.
// The zero value is the empty set.
type ErrorSet struct {
	entries []Error
}

// NewErrorSet builds an ErrorSet from the given entries.
// The entries are copied.
func NewErrorSet(entries ...Error) ErrorSet {
	if len(entries) == 0 {
		return ErrorSet{}
	}
	cp := make([]Error, len(entries))
	copy(cp, entries)
	return ErrorSet{entries: cp}
}

// OKSet returns the single-entry set {OK}.
func OKSet() ErrorSet {
	return NewErrorSet(Error{Code: CodeOK})
}

// Len returns the number of entries.
func (s ErrorSet) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries.
func (s ErrorSet) Entries() []Error {
	cp := make([]Error, len(s.entries))
	copy(cp, s.entries)
	return cp
}

// Codes returns the codes of all entries in order.
func (s ErrorSet) Codes() []ErrorCode {
	codes := make([]ErrorCode, len(s.entries))
	for i, e := range s.entries {
		codes[i] = e.Code
	}
	return codes
}

// Has reports whether any entry carries the given code.
func (s ErrorSet) Has(code ErrorCode) bool {
	for _, e := range s.entries {
		if e.Code == code {
			return true
		}
	}
	return false
}

// OK reports whether every entry is OK. An empty set is not OK.
func (s ErrorSet) OK() bool {
	if len(s.entries) == 0 {
		return false
	}
	for _, e := range s.entries {
		if !e.OK() {
			return false
		}
	}
	return true
}

// With returns a new set with e appended.
func (s ErrorSet) With(e Error) ErrorSet {
	cp := make([]Error, len(s.entries), len(s.entries)+1)
	copy(cp, s.entries)
	return ErrorSet{entries: append(cp, e)}
}

// String joins the entries with "; ".
func (s ErrorSet) String() string {
	parts := make([]string, len(s.entries))
	for i, e := range s.entries {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}

// MarshalJSON encodes the set as a JSON array of entries.
func (s ErrorSet) MarshalJSON() ([]byte, error) {
	if s.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.entries)
}

// UnmarshalJSON decodes a JSON array of entries.
func (s *ErrorSet) UnmarshalJSON(data []byte) error {
	var entries []Error
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*s = NewErrorSet(entries...)
	return nil
}
