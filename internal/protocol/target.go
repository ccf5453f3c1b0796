package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

type TargetKind uint8

const (
	TargetPocket TargetKind = 'p'
	TargetFile   TargetKind = 'f'
	TargetAgent  TargetKind = 'a'
)

// Target names the pocket, file or agent an error refers to.
type Target struct {
	Kind    TargetKind
	ID      uint32
	Address string
}

func PocketTarget(id uint32) Target { return Target{Kind: TargetPocket, ID: id} }

func FileTarget(id uint32) Target { return Target{Kind: TargetFile, ID: id} }

func AgentTarget(address string) Target { return Target{Kind: TargetAgent, Address: address} }

func (t Target) String() string {
	if t.Kind == TargetAgent {
		return "a:" + t.Address
	}
	return fmt.Sprintf("%c:%d", t.Kind, t.ID)
}

func ParseTarget(raw string) (Target, error) {
	kind, value, ok := strings.Cut(raw, ":")
	if !ok || len(kind) != 1 || value == "" {
		return Target{}, fmt.Errorf("%w: %q", ErrMalformedTarget, raw)
	}
	switch TargetKind(kind[0]) {
	case TargetAgent:
		return AgentTarget(value), nil
	case TargetPocket, TargetFile:
		id, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return Target{}, fmt.Errorf("%w: %q", ErrMalformedTarget, raw)
		}
		return Target{Kind: TargetKind(kind[0]), ID: uint32(id)}, nil
	default:
		return Target{}, fmt.Errorf("%w: %q", ErrMalformedTarget, raw)
	}
}
