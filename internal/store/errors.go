package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("store: not found")
	ErrAgentExists      = errors.New("store: agent already exists")
	ErrFileExists       = errors.New("store: file with that owner and name already exists")
	ErrIDSpaceExhausted = errors.New("store: id space exhausted")
	ErrClosed           = errors.New("store: closed")
)

type PocketNotFoundError struct {
	PocketID uint32
}

func (e *PocketNotFoundError) Error() string {
	return fmt.Sprintf("store: pocket %d not found", e.PocketID)
}

func (e *PocketNotFoundError) Is(target error) bool { return target == ErrNotFound }

type FileNotFoundError struct {
	FileID uint32
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("store: file %d not found", e.FileID)
}

func (e *FileNotFoundError) Is(target error) bool { return target == ErrNotFound }

type AgentNotFoundError struct {
	Address string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("store: agent %q not found", e.Address)
}

func (e *AgentNotFoundError) Is(target error) bool { return target == ErrNotFound }

type InsufficientCreditError struct {
	PocketID  uint32
	Required  uint64
	Available uint64
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("store: pocket %d has %d credit, needs %d", e.PocketID, e.Available, e.Required)
}

type CreditOverflowError struct {
	PocketID uint32
	Balance  uint64
	Added    uint64
}

func (e *CreditOverflowError) Error() string {
	return fmt.Sprintf("store: pocket %d balance %d cannot take %d more", e.PocketID, e.Balance, e.Added)
}
