package config

import (
	"net/url"
	"reflect"
	"strings"
)

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log. String fields
// tagged secret:"true" are masked; fields tagged secret:"url" keep their
// host but lose any embedded password. Slices are copied so the result
// shares no backing arrays with cfg.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	scrub(reflect.ValueOf(&out).Elem())
	return out
}

func scrub(v reflect.Value) {
	t := v.Type()
	for i := range v.NumField() {
		field, meta := v.Field(i), t.Field(i)
		if !meta.IsExported() {
			continue
		}
		switch field.Kind() {
		case reflect.Struct:
			scrub(field)
		case reflect.Slice:
			if !field.IsNil() {
				dup := reflect.MakeSlice(field.Type(), field.Len(), field.Len())
				reflect.Copy(dup, field)
				field.Set(dup)
			}
		case reflect.String:
			if field.String() == "" {
				continue
			}
			switch meta.Tag.Get("secret") {
			case "true":
				field.SetString(redacted)
			case "url":
				field.SetString(redactURL(field.String()))
			}
		}
	}
}

// redactURL masks the password of a URL such as redis://user:pw@host. A
// plain host:port passes through; an unparsable URL is masked whole.
func redactURL(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
	}
	return u.String()
}
