package config

import (
	"net/url"
	"sort"
	"strings"
)

// Mask keeps the first half of s and replaces the rest with asterisks.
func Mask(s string) string {
	l := len(s)
	if l == 0 {
		return s
	}
	if l == 1 {
		return "*"
	}
	h := l / 2
	return s[0:h] + strings.Repeat("*", l-h)
}

// MaskURL hides credentials and query values in a connection URL. Values
// that do not parse are masked whole.
func MaskURL(val string) string {
	u, err := url.Parse(val)
	if err != nil || u.Scheme == "" {
		return Mask(val)
	}
	var str strings.Builder
	str.WriteString(u.Scheme)
	str.WriteString("://")
	if u.User != nil {
		str.WriteString(Mask(u.User.Username()))
		if pass, ok := u.User.Password(); ok {
			str.WriteString(":")
			str.WriteString(Mask(pass))
		}
		str.WriteString("@")
	}
	str.WriteString(u.Host)
	if p := u.Path; p != "/" && p != "" {
		str.WriteString(p)
	}
	var qs []string
	for k, v := range u.Query() {
		qs = append(qs, k+"="+Mask(strings.Join(v, ",")))
	}
	sort.Strings(qs)
	if len(qs) > 0 {
		str.WriteString("?")
		str.WriteString(strings.Join(qs, "&"))
	}
	return str.String()
}

// Describe returns the effective settings with secrets masked, for the
// startup log line.
func (c Config) Describe() map[string]any {
	out := map[string]any{
		"port":            c.Port,
		"cache_dir":       c.CacheDir,
		"cache_ttl":       c.CacheTTL.String(),
		"session_backend": c.SessionBackend,
		"log_level":       c.LogLevel,
	}
	if c.UseSQLite() {
		out["store"] = "sqlite:" + c.SQLitePath
	} else {
		out["store"] = c.SupabaseURL
		out["supabase_key"] = Mask(c.SupabaseKey())
	}
	if c.RedisURL != "" {
		out["redis_url"] = MaskURL(c.RedisURL)
	}
	if c.OTLPURL != "" {
		out["otlp_url"] = MaskURL(c.OTLPURL)
	}
	return out
}
