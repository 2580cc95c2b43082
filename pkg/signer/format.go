package signer

import (
	"fmt"
	"strconv"
	"strings"
)

// formatTemplate fills brace placeholders positionally. Supported fields are
// "{}", "{N}", and an optional ":x", ":X" or ":d" spec; "{{" and "}}" are
// literal braces.
func formatTemplate(tmpl string, args ...interface{}) (string, error) {
	var b strings.Builder
	next := 0

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			field := tmpl[i+1 : i+end]
			i += end

			name, spec, _ := strings.Cut(field, ":")
			idx := next
			if name != "" {
				n, err := strconv.Atoi(name)
				if err != nil {
					return "", fmt.Errorf("unsupported placeholder %q", field)
				}
				idx = n
			} else {
				next++
			}
			if idx < 0 || idx >= len(args) {
				return "", fmt.Errorf("placeholder %q has no argument", field)
			}

			s, err := formatArg(args[idx], spec)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				i++
			}
			b.WriteByte('}')
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func formatArg(arg interface{}, spec string) (string, error) {
	switch spec {
	case "":
		return fmt.Sprint(arg), nil
	case "d", "x", "X":
		n, ok := arg.(int)
		if !ok {
			return "", fmt.Errorf("format spec %q needs an integer, got %T", spec, arg)
		}
		switch spec {
		case "x":
			return strconv.FormatInt(int64(n), 16), nil
		case "X":
			return strings.ToUpper(strconv.FormatInt(int64(n), 16)), nil
		default:
			return strconv.Itoa(n), nil
		}
	default:
		return "", fmt.Errorf("unsupported format spec %q", spec)
	}
}
