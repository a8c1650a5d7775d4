package mee

// TransactionStatus is the lifecycle state the node reports for a
// supertransaction.
type TransactionStatus int

const (
	StatusUnknown TransactionStatus = iota
	StatusPending
	StatusMining
	StatusMinedSuccess
	StatusMinedFail
	StatusFailed
)

// String returns the wire name of the status.
func (s TransactionStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusMining:
		return "MINING"
	case StatusMinedSuccess:
		return "MINED_SUCCESS"
	case StatusMinedFail:
		return "MINED_FAIL"
	case StatusFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Terminal reports whether the node will not change the status any more.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusMinedSuccess, StatusMinedFail, StatusFailed:
		return true
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (s TransactionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Names the client does
// not know decode to StatusUnknown.
func (s *TransactionStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "PENDING":
		*s = StatusPending
	case "MINING":
		*s = StatusMining
	case "MINED_SUCCESS":
		*s = StatusMinedSuccess
	case "MINED_FAIL":
		*s = StatusMinedFail
	case "FAILED":
		*s = StatusFailed
	default:
		*s = StatusUnknown
	}
	return nil
}
