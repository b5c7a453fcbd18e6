package recovery

// Strategy decides what happens when a structural error is found while
// resolving a document.
type Strategy interface {
	OnError(ctx Context, err error, location Location) Action
}

type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	// ActionFail aborts the current operation with the error.
	ActionFail Action = iota
	// ActionSkip drops the offending item and continues.
	ActionSkip
	// ActionFix repairs the structure, e.g. by falling back to a full scan.
	ActionFix
	// ActionWarn records the error and continues with the data as read.
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	case ActionWarn:
		return "warn"
	default:
		return "unknown"
	}
}

type Context interface{ Done() <-chan struct{} }

// Allows reports whether a continues past the error.
func Allows(a Action) bool { return a != ActionFail }

// Decide consults s, treating a nil strategy as strict.
func Decide(s Strategy, ctx Context, err error, loc Location) Action {
	if s == nil {
		return ActionFail
	}
	return s.OnError(ctx, err, loc)
}
