package config

import (
	"fmt"
	"os"
)

func Template() string {
	return defaultTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o600)
}

const defaultTemplate = `api_url = "http://localhost:8000"
ws_url = "ws://localhost:8000"
request_timeout = "15s"

[channel]
dial_timeout = "10s"
write_timeout = "10s"
dead_after = "1m15s"
read_limit = 1048576
security_mode = "development"

[channel.backoff]
initial_delay = "1s"
multiplier = 2.0
max_delay = "30s"
jitter = false
max_attempts = 0

[channel.tls]
mutual = false
cert_file = ""
key_file = ""
ca_file = ""
server_name = ""
insecure_skip_verify = false

[view]
addr = "127.0.0.1:8090"
cors_origins = ["http://localhost:3000"]
token = ""
`
