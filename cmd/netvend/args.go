package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Syriven/netvend/internal/protocol"
)

// parseCommandArg reads one command of the batch subcommand:
//
//	create-pocket
//	deposit-address:<pocket>
//	transfer:<from>:<to>:<amount>
//	create-file:<pocket>:<name>
//	update-file:<file>:<text> or update-file:<file>:@<path>
//	read-file:<file>
func parseCommandArg(raw string) (protocol.Command, error) {
	op, rest, _ := strings.Cut(strings.TrimSpace(raw), ":")
	switch op {
	case "create-pocket":
		return protocol.CreatePocket{}, nil
	case "deposit-address":
		id, err := parseID("pocket", rest)
		if err != nil {
			return nil, err
		}
		return protocol.RequestPocketDepositAddress{PocketID: id}, nil
	case "transfer":
		parts := strings.Split(rest, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("transfer wants transfer:<from>:<to>:<amount>, got %q", raw)
		}
		from, err := parseID("from pocket", parts[0])
		if err != nil {
			return nil, err
		}
		to, err := parseID("to pocket", parts[1])
		if err != nil {
			return nil, err
		}
		amount, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", parts[2], err)
		}
		return protocol.PocketTransfer{FromPocketID: from, ToPocketID: to, Amount: amount}, nil
	case "create-file":
		pocket, name, ok := strings.Cut(rest, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("create-file wants create-file:<pocket>:<name>, got %q", raw)
		}
		id, err := parseID("pocket", pocket)
		if err != nil {
			return nil, err
		}
		return protocol.CreateFile{Name: name, PocketID: id}, nil
	case "update-file":
		file, data, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("update-file wants update-file:<file>:<data>, got %q", raw)
		}
		id, err := parseID("file", file)
		if err != nil {
			return nil, err
		}
		payload, err := readData(data)
		if err != nil {
			return nil, err
		}
		return protocol.UpdateFileByID{FileID: id, Data: payload}, nil
	case "read-file":
		id, err := parseID("file", rest)
		if err != nil {
			return nil, err
		}
		return protocol.ReadFileByID{FileID: id}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", op)
	}
}

func parseID(what, raw string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s id %q", what, raw)
	}
	return uint32(v), nil
}

// readData treats a leading @ as a file path.
func readData(raw string) ([]byte, error) {
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read data file: %w", err)
		}
		return data, nil
	}
	return []byte(raw), nil
}
