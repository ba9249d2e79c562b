package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// EnvLine is one KEY=value entry of a .env file.
type EnvLine struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// ParseEnvFile parses a .env file. A missing file yields no entries.
func ParseEnvFile(filename string) ([]EnvLine, error) {
	buf, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return []EnvLine{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", filename)
	}
	return ParseEnvBuffer(buf), nil
}

// LoadEnvFile copies the entries of filename into the process environment
// without overriding variables that are already set.
func LoadEnvFile(filename string) error {
	lines, err := ParseEnvFile(filename)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, ok := os.LookupEnv(line.Key); ok {
			continue
		}
		if err := os.Setenv(line.Key, line.Val); err != nil {
			return errors.Wrapf(err, "set %s", line.Key)
		}
	}
	return nil
}

func dequote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func processEnvLine(line string) EnvLine {
	line = strings.TrimPrefix(line, "export ")
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return EnvLine{Key: strings.TrimSpace(line)}
	}
	return EnvLine{Key: strings.TrimSpace(key), Val: dequote(strings.TrimSpace(val))}
}

type reference struct {
	varName      string
	defaultValue string
}

func findClosingBrace(input string, start int) int {
	for i := start; i < len(input); i++ {
		switch input[i] {
		case '{':
			return -1
		case '}':
			return i
		}
	}
	return -1
}

func parseReference(ref string) reference {
	inner := ref[2 : len(ref)-1]
	name, def, _ := strings.Cut(inner, ":-")
	return reference{varName: name, defaultValue: def}
}

// interpolate expands ${NAME} and ${NAME:-default} from values earlier in the
// file, and ${env:NAME} from the process environment. Unresolved references
// without a default are kept as written.
func interpolate(input string, envMap map[string]string) string {
	if !strings.Contains(input, "${") {
		return input
	}
	var result strings.Builder
	lastPos := 0
	for i := 0; i+1 < len(input); i++ {
		if input[i] != '$' || input[i+1] != '{' {
			continue
		}
		end := findClosingBrace(input, i+2)
		if end == -1 {
			break
		}
		result.WriteString(input[lastPos:i])
		refStr := input[i : end+1]
		ref := parseReference(refStr)

		var val string
		if envKey, ok := strings.CutPrefix(ref.varName, "env:"); ok {
			val = os.Getenv(envKey)
		} else if ref.varName != "" {
			val = envMap[ref.varName]
		}
		switch {
		case val != "":
			result.WriteString(val)
		case ref.defaultValue != "":
			result.WriteString(ref.defaultValue)
		default:
			result.WriteString(refStr)
		}
		i = end
		lastPos = end + 1
	}
	result.WriteString(input[lastPos:])
	return result.String()
}

// ParseEnvBuffer parses the contents of a .env file. Blank lines and lines
// starting with # are skipped.
func ParseEnvBuffer(buf []byte) []EnvLine {
	envs := make([]EnvLine, 0)
	envMap := make(map[string]string)

	for _, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		env := processEnvLine(line)
		if env.Key == "" {
			continue
		}
		env.Val = interpolate(env.Val, envMap)
		envMap[env.Key] = env.Val
		envs = append(envs, env)
	}

	// forward references
	for i := range envs {
		envs[i].Val = interpolate(envs[i].Val, envMap)
	}
	return envs
}
