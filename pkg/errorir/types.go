package errorir

// ErrorIR is the canonical error document returned to hosts and written by
// the CLI when an event is rejected.
type ErrorIR struct {
	Code           string `json:"code"`
	Namespace      string `json:"namespace"`
	Title          string `json:"title"`
	Detail         string `json:"detail"`
	Classification string `json:"classification"`
}

// Classification constants
const (
	ClassificationRetryable    = "RETRYABLE"
	ClassificationNonRetryable = "NON_RETRYABLE"
)

// Standard Error Codes
const (
	CodeArithOverflow         = "TRUST/ARITH/OVERFLOW"
	CodeArithUnderflow        = "TRUST/ARITH/UNDERFLOW"
	CodeArithDivisionByZero   = "TRUST/ARITH/DIVISION_BY_ZERO"
	CodeInvalidRating         = "TRUST/REPUTATION/INVALID_RATING"
	CodeNonMonotonicTimestamp = "TRUST/REPUTATION/NON_MONOTONIC_TIMESTAMP"
	CodeUnknownPenaltyKind    = "TRUST/REPUTATION/UNKNOWN_PENALTY_KIND"
	CodeZeroAmount            = "TRUST/STAKING/ZERO_AMOUNT"
	CodeLockActive            = "TRUST/STAKING/LOCK_ACTIVE"
	CodeInsufficientStake     = "TRUST/STAKING/INSUFFICIENT_STAKE"
	CodeInvalidBasisPoints    = "TRUST/STAKING/INVALID_BASIS_POINTS"
	CodeInvalidAccount        = "TRUST/STORE/INVALID_ACCOUNT"
	CodeCorruptRecord         = "TRUST/STORE/CORRUPT_RECORD"
	CodeStoreUnavailable      = "TRUST/STORE/UNAVAILABLE"
	CodeUnknownScenario       = "TRUST/SIM/UNKNOWN_SCENARIO"
	CodeInvalidProfile        = "TRUST/SIM/INVALID_PROFILE"
	CodeInvalidScenario       = "TRUST/SIM/INVALID_SCENARIO"
	CodeCanceled              = "TRUST/CORE/CANCELED"
	CodeInternal              = "TRUST/CORE/INTERNAL"
)

// NewErrorIR builds an ErrorIR. The namespace is the second path component
// of the code, so TRUST/STAKING/LOCK_ACTIVE lives in STAKING.
func NewErrorIR(code, title, detail, classification string) ErrorIR {
	return ErrorIR{
		Code:           code,
		Namespace:      namespaceOf(code),
		Title:          title,
		Detail:         detail,
		Classification: classification,
	}
}

func namespaceOf(code string) string {
	start := -1
	for i := 0; i < len(code); i++ {
		if code[i] != '/' {
			continue
		}
		if start < 0 {
			start = i + 1
			continue
		}
		return code[start:i]
	}
	return "UNKNOWN"
}
