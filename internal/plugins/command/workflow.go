package commandplugin

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

const (
	commandPrefix = "::"
	maskedValue   = "***"
)

// WorkflowCommand is one `::name key=value,...::message` line written by a script.
type WorkflowCommand struct {
	Name       string
	Properties map[string]string
	Message    string
}

// ParseWorkflowCommand recognises a workflow command line. ok is false for
// ordinary output.
func ParseWorkflowCommand(line string) (WorkflowCommand, bool) {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, commandPrefix) {
		return WorkflowCommand{}, false
	}
	rest := trimmed[len(commandPrefix):]
	end := strings.Index(rest, commandPrefix)
	if end < 0 {
		return WorkflowCommand{}, false
	}
	header := rest[:end]
	message := rest[end+len(commandPrefix):]

	name, props, _ := strings.Cut(header, " ")
	if name == "" || strings.ContainsAny(name, "=,") {
		return WorkflowCommand{}, false
	}

	cmd := WorkflowCommand{
		Name:       name,
		Properties: map[string]string{},
		Message:    unescapeData(message),
	}
	for _, pair := range strings.Split(props, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			continue
		}
		cmd.Properties[key] = unescapeProperty(value)
	}
	return cmd, true
}

var (
	dataUnescaper     = strings.NewReplacer("%0D", "\r", "%0A", "\n", "%25", "%")
	propertyUnescaper = strings.NewReplacer("%0D", "\r", "%0A", "\n", "%3A", ":", "%2C", ",", "%25", "%")
)

func unescapeData(s string) string     { return dataUnescaper.Replace(s) }
func unescapeProperty(s string) string { return propertyUnescaper.Replace(s) }

// Masker replaces registered secrets in text.
type Masker struct {
	mu      sync.RWMutex
	secrets []string
}

// Add registers a value to mask. Blank values are ignored.
func (m *Masker) Add(secret string) {
	if strings.TrimSpace(secret) == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.secrets {
		if existing == secret {
			return
		}
	}
	m.secrets = append(m.secrets, secret)
	// longest first so a secret containing another is masked whole
	sort.SliceStable(m.secrets, func(i, j int) bool { return len(m.secrets[i]) > len(m.secrets[j]) })
}

// Apply masks every registered value in s.
func (m *Masker) Apply(s string) string {
	if m == nil {
		return s
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, secret := range m.secrets {
		s = strings.ReplaceAll(s, secret, maskedValue)
	}
	return s
}

// OutputPair is one entry of a GITHUB_OUTPUT file.
type OutputPair struct {
	Name  string
	Value string
}

// ParseOutputFile reads name=value lines and name<<DELIMITER heredoc blocks.
// A missing file yields no outputs.
func ParseOutputFile(path string) ([]OutputPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output file: %w", err)
	}
	return ParseOutputs(data)
}

// ParseOutputs parses the content of an output file.
func ParseOutputs(data []byte) ([]OutputPair, error) {
	var pairs []OutputPair
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		eq := strings.Index(line, "=")
		heredoc := strings.Index(line, "<<")
		if heredoc > 0 && (eq < 0 || heredoc < eq) {
			name := line[:heredoc]
			delimiter := line[heredoc+2:]
			if name == "" || delimiter == "" {
				return nil, fmt.Errorf("output file line %d: invalid heredoc header %q", lineNo, line)
			}
			start := lineNo
			var body []string
			closed := false
			for scanner.Scan() {
				lineNo++
				text := strings.TrimRight(scanner.Text(), "\r")
				if text == delimiter {
					closed = true
					break
				}
				body = append(body, text)
			}
			if !closed {
				return nil, fmt.Errorf("output file line %d: matching delimiter %q not found", start, delimiter)
			}
			pairs = append(pairs, OutputPair{Name: name, Value: strings.Join(body, "\n")})
			continue
		}

		if eq <= 0 {
			return nil, fmt.Errorf("output file line %d: expected name=value, got %q", lineNo, line)
		}
		pairs = append(pairs, OutputPair{Name: line[:eq], Value: line[eq+1:]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan output file: %w", err)
	}
	return pairs, nil
}
