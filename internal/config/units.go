package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ByteSize is a byte count that unmarshals from strings such as "25MB",
// "2MiB" or a plain integer.
type ByteSize int64

var sizeUnitsOrdered = []struct {
	suffix     string
	multiplier int64
}{
	{"gib", 1024 * 1024 * 1024},
	{"gb", 1000 * 1000 * 1000},
	{"mib", 1024 * 1024},
	{"mb", 1000 * 1000},
	{"kib", 1024},
	{"kb", 1000},
	{"b", 1},
}

// ParseByteSize parses value, returning def for an empty string.
func ParseByteSize(value string, def ByteSize) (ByteSize, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	lower := strings.ToLower(value)
	for _, unit := range sizeUnitsOrdered {
		if !strings.HasSuffix(lower, unit.suffix) {
			continue
		}
		num, err := strconv.ParseFloat(strings.TrimSpace(value[:len(value)-len(unit.suffix)]), 64)
		if err != nil {
			return 0, fmt.Errorf("parse size %q: %w", value, err)
		}
		if num < 0 {
			return 0, fmt.Errorf("parse size %q: negative", value)
		}
		return ByteSize(num * float64(unit.multiplier)), nil
	}
	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", value, err)
	}
	return ByteSize(num), nil
}

func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseByteSize(node.Value, 0)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b ByteSize) MarshalYAML() (any, error) {
	return strconv.FormatInt(int64(b), 10), nil
}
