package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server":
		return serverTemplate, nil
	case "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `[server]
listen = ":8395"

[admin]
listen = "127.0.0.1:8396"
token = "change-me"
cors_origins = []

[storage]
backend = "sqlite"
path = "netvend.db"
pool_size = 4
compression = "zstd"

[fees]
interval = "1h"
per_file = 1
per_byte = 0

[general]
credits_per_satoshi = 1000

[executor]
non_fatal_errors = []
private_reads = false
result_limit = 65535

[executor.costs]
create_pocket = 0
create_file = 0

[deposit]
seed = ""
network = "mainnet"

[session]
read_timeout = "15s"
write_timeout = "15s"
`

const clientTemplate = `server = "localhost:8395"
key_file = "agent.pem"
output = "text"
connect_timeout = "5s"
read_timeout = "15s"
write_timeout = "15s"
handshake_attempts = 3
`
