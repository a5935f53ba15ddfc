package plugin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// encodeRequest renders req as one protocol line.
func encodeRequest(req *Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return append(data, '\n'), nil
}

// decodeResponse parses the first non-blank line of out. A failure without
// a message gets a generic one so callers can always report it.
func decodeResponse(name string, out []byte) (*Response, error) {
	line := out
	for len(line) > 0 {
		var rest []byte
		if i := bytes.IndexByte(line, '\n'); i >= 0 {
			line, rest = line[:i], line[i+1:]
		}
		if len(bytes.TrimSpace(line)) > 0 {
			break
		}
		line = rest
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("plugin %s: bad response %q: %w", name, bytes.TrimSpace(line), err)
	}
	if !resp.Success && resp.Error == "" {
		resp.Error = "plugin reported failure"
	}
	return &resp, nil
}

// withStderr appends the driver's diagnostics to err.
func withStderr(err error, stderr string) error {
	if s := strings.TrimSpace(stderr); s != "" {
		return fmt.Errorf("%w: stderr: %s", err, s)
	}
	return err
}
