package protocol

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Syriven/netvend/internal/protocol/wire"
)

// ErrorKind is the subtype tag written after the fatal flag.
type ErrorKind uint8

const (
	KindInvalidTarget      ErrorKind = 1
	KindTargetNotOwned     ErrorKind = 2
	KindCreditInsufficient ErrorKind = 3
	KindCreditOverflow     ErrorKind = 4
	KindServerLogic        ErrorKind = 5
)

var errorKindNames = map[ErrorKind]string{
	KindInvalidTarget:      "invalid-target",
	KindTargetNotOwned:     "target-not-owned",
	KindCreditInsufficient: "credit-insufficient",
	KindCreditOverflow:     "credit-overflow",
	KindServerLogic:        "server-logic",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// ParseErrorKind accepts the names returned by ErrorKind.String.
func ParseErrorKind(raw string) (ErrorKind, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for kind, name := range errorKindNames {
		if name == raw {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownErrorKind, raw)
}

// ErrorDetail is the structured payload of one error subtype.
type ErrorDetail interface {
	Kind() ErrorKind
	Describe() string
	encode(w *wire.Writer) error
}

type ServerLogicError struct {
	Text string
}

type InvalidTargetError struct {
	Target Target
}

type TargetNotOwnedError struct {
	Target Target
}

type CreditInsufficientError struct {
	Required  uint64
	Available uint64
}

type CreditOverflowError struct {
	PocketCredit uint64
	Added        uint64
}

func (ServerLogicError) Kind() ErrorKind        { return KindServerLogic }
func (InvalidTargetError) Kind() ErrorKind      { return KindInvalidTarget }
func (TargetNotOwnedError) Kind() ErrorKind     { return KindTargetNotOwned }
func (CreditInsufficientError) Kind() ErrorKind { return KindCreditInsufficient }
func (CreditOverflowError) Kind() ErrorKind     { return KindCreditOverflow }

func (e ServerLogicError) Describe() string { return "server logic: " + e.Text }

func (e InvalidTargetError) Describe() string { return "invalid target " + e.Target.String() }

func (e TargetNotOwnedError) Describe() string { return "target not owned " + e.Target.String() }

func (e CreditInsufficientError) Describe() string {
	return fmt.Sprintf("credit insufficient: required=%d available=%d", e.Required, e.Available)
}

func (e CreditOverflowError) Describe() string {
	return fmt.Sprintf("credit overflow: pocket_credit=%d added=%d", e.PocketCredit, e.Added)
}

func (e ServerLogicError) encode(w *wire.Writer) error {
	_, err := w.Bytes16([]byte(e.Text))
	return err
}

func (e InvalidTargetError) encode(w *wire.Writer) error {
	_, err := w.Bytes8([]byte(e.Target.String()))
	return err
}

func (e TargetNotOwnedError) encode(w *wire.Writer) error {
	_, err := w.Bytes8([]byte(e.Target.String()))
	return err
}

func (e CreditInsufficientError) encode(w *wire.Writer) error {
	w.Uint64(e.Required)
	w.Uint64(e.Available)
	return nil
}

func (e CreditOverflowError) encode(w *wire.Writer) error {
	w.Uint64(e.PocketCredit)
	w.Uint64(e.Added)
	return nil
}

// CommandError is the failure of one command inside a batch. Fatal stops
// execution of the rest of the batch.
type CommandError struct {
	Fatal  bool
	Detail ErrorDetail
}

func (e *CommandError) Error() string {
	if e == nil || e.Detail == nil {
		return "protocol: command error"
	}
	if e.Fatal {
		return "protocol: fatal " + e.Detail.Describe()
	}
	return "protocol: " + e.Detail.Describe()
}

func (e *CommandError) Kind() ErrorKind {
	if e == nil || e.Detail == nil {
		return 0
	}
	return e.Detail.Kind()
}

func NewInvalidTarget(t Target) *CommandError {
	return &CommandError{Fatal: true, Detail: InvalidTargetError{Target: t}}
}

func NewTargetNotOwned(t Target) *CommandError {
	return &CommandError{Fatal: true, Detail: TargetNotOwnedError{Target: t}}
}

func NewCreditInsufficient(required, available uint64) *CommandError {
	return &CommandError{Fatal: true, Detail: CreditInsufficientError{Required: required, Available: available}}
}

func NewCreditOverflow(pocketCredit, added uint64) *CommandError {
	return &CommandError{Fatal: true, Detail: CreditOverflowError{PocketCredit: pocketCredit, Added: added}}
}

// NewServerLogic builds a ServerLogicError, clipping the text to what the
// two-byte length prefix can carry.
func NewServerLogic(format string, args ...any) *CommandError {
	text := ClipText(fmt.Sprintf(format, args...), wire.MaxLen16)
	return &CommandError{Fatal: true, Detail: ServerLogicError{Text: text}}
}

// ClipText shortens s to at most n bytes without splitting a UTF-8
// sequence.
func ClipText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func encodeCommandError(w *wire.Writer, e *CommandError) error {
	if e == nil || e.Detail == nil {
		return fmt.Errorf("%w: empty command error", ErrUnknownErrorKind)
	}
	w.Bool(e.Fatal)
	w.Uint8(uint8(e.Detail.Kind()))
	return e.Detail.encode(w)
}

func decodeCommandError(c *wire.Cursor) (*CommandError, error) {
	fatal, err := decodeFlag(c)
	if err != nil {
		return nil, err
	}
	raw, err := c.Uint8()
	if err != nil {
		return nil, err
	}
	out := &CommandError{Fatal: fatal}
	switch ErrorKind(raw) {
	case KindServerLogic:
		text, err := c.Bytes16()
		if err != nil {
			return nil, err
		}
		out.Detail = ServerLogicError{Text: string(text)}
	case KindInvalidTarget, KindTargetNotOwned:
		rawTarget, err := c.Bytes8()
		if err != nil {
			return nil, err
		}
		target, err := ParseTarget(string(rawTarget))
		if err != nil {
			return nil, err
		}
		if ErrorKind(raw) == KindInvalidTarget {
			out.Detail = InvalidTargetError{Target: target}
		} else {
			out.Detail = TargetNotOwnedError{Target: target}
		}
	case KindCreditInsufficient:
		required, err := c.Uint64()
		if err != nil {
			return nil, err
		}
		available, err := c.Uint64()
		if err != nil {
			return nil, err
		}
		out.Detail = CreditInsufficientError{Required: required, Available: available}
	case KindCreditOverflow:
		credit, err := c.Uint64()
		if err != nil {
			return nil, err
		}
		added, err := c.Uint64()
		if err != nil {
			return nil, err
		}
		out.Detail = CreditOverflowError{PocketCredit: credit, Added: added}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownErrorKind, raw)
	}
	return out, nil
}

// decodeFlag reads a strict 0/1 byte.
func decodeFlag(c *wire.Cursor) (bool, error) {
	v, err := c.Uint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %d at offset %d", ErrInvalidFlag, v, c.Offset()-1)
	}
}
