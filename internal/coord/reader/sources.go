package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// headerScanLimit is how much of a metadata file is searched for headers.
// Theme and plugin headers live in the leading comment block.
const headerScanLimit = 8 * 1024

// Constant reports a fixed version, like a plugin's version constant.
// An empty constant means "not defined" and reads as absent.
type Constant string

// Version implements schema.VersionSource.
func (c Constant) Version(ctx context.Context) (string, error) {
	if strings.TrimSpace(string(c)) == "" {
		return "", schema.ErrComponentAbsent
	}
	return strings.TrimSpace(string(c)), nil
}

// Describe implements schema.VersionSource.
func (c Constant) Describe() string {
	return "constant"
}

// Func adapts a callback, for components registered from code.
type Func func(ctx context.Context) (string, error)

// Version implements schema.VersionSource.
func (f Func) Version(ctx context.Context) (string, error) {
	return f(ctx)
}

// Describe implements schema.VersionSource.
func (f Func) Describe() string {
	return "func"
}

// Header reads a "Version:" header from a metadata file such as a theme's
// style.css or a plugin's main PHP file.
type Header struct {
	File string
	// Field defaults to "Version".
	Field string
}

// Version implements schema.VersionSource.
func (h Header) Version(ctx context.Context) (string, error) {
	field := h.Field
	if field == "" {
		field = "Version"
	}

	headers, err := ReadHeaders(h.File)
	if err != nil {
		return "", err
	}
	v, ok := headers[strings.ToLower(field)]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: no %s header in %s", schema.ErrComponentAbsent, field, h.File)
	}
	return v, nil
}

// Describe implements schema.VersionSource.
func (h Header) Describe() string {
	return "header:" + h.File
}

// Path implements schema.PathSource.
func (h Header) Path() string {
	return h.File
}

// JSONField reads a field from a JSON file using a gjson path,
// e.g. File: "package.json", Field: "version".
type JSONField struct {
	File  string
	Field string
}

// Version implements schema.VersionSource.
func (j JSONField) Version(ctx context.Context) (string, error) {
	data, err := readFile(j.File)
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("malformed JSON in %s", j.File)
	}

	field := j.Field
	if field == "" {
		field = "version"
	}
	res := gjson.GetBytes(data, field)
	if !res.Exists() || strings.TrimSpace(res.String()) == "" {
		return "", fmt.Errorf("%w: no %s in %s", schema.ErrComponentAbsent, field, j.File)
	}
	return strings.TrimSpace(res.String()), nil
}

// Describe implements schema.VersionSource.
func (j JSONField) Describe() string {
	return "json:" + j.File + "#" + j.Field
}

// Path implements schema.PathSource.
func (j JSONField) Path() string {
	return j.File
}

// YAMLField reads a dotted field ("meta.version") from a YAML file.
type YAMLField struct {
	File  string
	Field string
}

// Version implements schema.VersionSource.
func (y YAMLField) Version(ctx context.Context) (string, error) {
	data, err := readFile(y.File)
	if err != nil {
		return "", err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("malformed YAML in %s: %w", y.File, err)
	}

	field := y.Field
	if field == "" {
		field = "version"
	}

	var cur any = doc
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%w: no %s in %s", schema.ErrComponentAbsent, field, y.File)
		}
		if cur, ok = m[part]; !ok {
			return "", fmt.Errorf("%w: no %s in %s", schema.ErrComponentAbsent, field, y.File)
		}
	}

	v := strings.TrimSpace(fmt.Sprint(cur))
	if cur == nil || v == "" {
		return "", fmt.Errorf("%w: empty %s in %s", schema.ErrComponentAbsent, field, y.File)
	}
	return v, nil
}

// Describe implements schema.VersionSource.
func (y YAMLField) Describe() string {
	return "yaml:" + y.File + "#" + y.Field
}

// Path implements schema.PathSource.
func (y YAMLField) Path() string {
	return y.File
}

// ReadHeaders parses "Key: value" header lines from the top of a metadata
// file. Keys are lowercased. Comment decoration (*, //, #) is stripped.
func ReadHeaders(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", schema.ErrComponentAbsent, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, headerScanLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return parseHeaders(string(data)), nil
}

func parseHeaders(text string) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, "\r"))
		line = strings.TrimLeft(line, "/*#@ \t")
		line = strings.TrimSuffix(strings.TrimSpace(line), "*/")

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" || strings.ContainsAny(key, "{};()") {
			continue
		}
		// First occurrence wins, matching how the host reads file headers.
		if _, seen := headers[key]; !seen {
			headers[key] = value
		}
	}
	return headers
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", schema.ErrComponentAbsent, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
