package model

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// TaskID is an opaque task identifier in canonical form.
type TaskID string

func (id TaskID) String() string {
	return string(id)
}

// IDKind selects how raw tokens are parsed into task identifiers.
type IDKind string

const (
	IDKindInt    IDKind = "int"
	IDKindString IDKind = "string"
)

// ParseTaskID parses a raw token under kind. Surrounding whitespace is ignored.
// Integer tokens are canonicalised so that "07" and "7" name the same task.
func ParseTaskID(token string, kind IDKind) (TaskID, error) {
	s := strings.TrimSpace(token)
	if s == "" {
		return "", fmt.Errorf("empty task identifier")
	}
	switch kind {
	case IDKindInt, "":
		n, err := strconv.Atoi(s)
		if err != nil {
			return "", fmt.Errorf("%q is not an integer task identifier", s)
		}
		return TaskID(strconv.Itoa(n)), nil
	case IDKindString:
		if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
			return "", fmt.Errorf("%q contains whitespace", s)
		}
		return TaskID(s), nil
	default:
		return "", fmt.Errorf("unknown id kind %q", kind)
	}
}

// JoinTaskIDs renders ids separated by sep.
func JoinTaskIDs(ids []TaskID, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, sep)
}
