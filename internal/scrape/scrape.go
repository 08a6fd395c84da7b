// Package scrape pulls a single field out of line-oriented subprocess output.
package scrape

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrNotFound = errors.New("no json line found")

var saidPrefix = regexp.MustCompile(`(?i)^\s*ChatGPT said:\s*`)

// Field scans output for the first line that is a JSON object starting with
// key and returns that field as a string, minus any "ChatGPT said:" prefix.
func Field(output, key string) (string, error) {
	marker := fmt.Sprintf("{%q:", key)
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, marker) {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return "", fmt.Errorf("decode %s line failed: %w", key, err)
		}
		var s string
		switch v := obj[key].(type) {
		case string:
			s = v
		case nil:
		default:
			b, _ := json.Marshal(v)
			s = string(b)
		}
		return strings.TrimSpace(saidPrefix.ReplaceAllString(s, "")), nil
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", ErrNotFound
}
