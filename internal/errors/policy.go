package errors

// Category groups error codes into the four failure classes the recovery
// policy distinguishes between.
type Category string

const (
	CategoryNetwork       Category = "NETWORK"
	CategoryPermission    Category = "PERMISSION"
	CategoryConfiguration Category = "CONFIGURATION"
	CategoryTool          Category = "TOOL"
	CategoryUnknown       Category = "UNKNOWN"
)

// RecoveryAction is the decision the policy hands back to a capability.
type RecoveryAction string

const (
	ActionRetry    RecoveryAction = "RETRY"
	ActionFallback RecoveryAction = "FALLBACK"
	ActionSkip     RecoveryAction = "SKIP"
	ActionAbort    RecoveryAction = "ABORT"
)

// CategoryOf maps an error code to its failure category.
func CategoryOf(code ErrorCode) Category {
	switch code {
	case CodeNetworkUnreachable, CodeHostUnreachable, CodeConnectionRefused, CodeTimeout:
		return CategoryNetwork
	case CodePermission:
		return CategoryPermission
	case CodeConfiguration, CodeValidation, CodeTargetInvalid, CodeInterfaceNotFound:
		return CategoryConfiguration
	case CodeToolMissing, CodeToolFailed, CodeScanFailed:
		return CategoryTool
	default:
		return CategoryUnknown
	}
}

// Categorize returns the failure category of an error.
func Categorize(err error) Category {
	return CategoryOf(GetCode(err))
}

// HandleContext carries the state the policy needs to decide a recovery
// action: how many attempts the failing operation has already consumed and
// whether the caller has a less-privileged strategy left to fall back to.
type HandleContext struct {
	Attempt           int
	FallbackAvailable bool
}

// Policy decides recovery actions for scan failures. Network failures are
// retried up to MaxRetries before the single target is skipped; permission
// and tool failures fall back to an alternate strategy when one exists;
// configuration failures abort the run.
type Policy struct {
	MaxRetries int
}

// DefaultPolicy returns a policy with a conservative retry bound.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2}
}

// Handle classifies err and returns the action the caller should take.
func (p Policy) Handle(err error, hctx HandleContext) RecoveryAction {
	if err == nil {
		return ActionSkip
	}

	switch Categorize(err) {
	case CategoryNetwork:
		if hctx.Attempt < p.MaxRetries {
			return ActionRetry
		}
		return ActionSkip
	case CategoryPermission:
		if hctx.FallbackAvailable {
			return ActionFallback
		}
		return ActionSkip
	case CategoryConfiguration:
		return ActionAbort
	case CategoryTool:
		if hctx.FallbackAvailable {
			return ActionFallback
		}
		return ActionSkip
	default:
		return ActionSkip
	}
}
