package core

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

// placeholderPattern は #{jobParameters['name']} と #{jobParameters[name]} に一致します。
var placeholderPattern = regexp.MustCompile(`#\{\s*jobParameters\[\s*'?([A-Za-z0-9_.\-]+)'?\s*\]\s*\}`)

// ParameterPlaceholders は文字列が参照している JobParameters の名前を出現順に返します。
func ParameterPlaceholders(s string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// PropertyPlaceholders はプロパティ値全体で参照されている名前をソートして返します。
func PropertyPlaceholders(properties map[string]string) []string {
	seen := make(map[string]struct{})
	for _, v := range properties {
		for _, name := range ParameterPlaceholders(v) {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolvePlaceholders は文字列中のプレースホルダを JobParameters の値で置き換えます。
func ResolvePlaceholders(s string, params JobParameters) (string, error) {
	var missing string
	resolved := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		v, ok := params.Get(name)
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return v
	})
	if missing != "" {
		return "", exception.NewConfigurationError("core",
			fmt.Sprintf("JobParameters に '%s' がありません", missing),
			fmt.Errorf("%w: %s", exception.ErrMissingParameter, missing))
	}
	return resolved, nil
}

// ResolveProperties はプロパティ値すべてのプレースホルダを解決した新しいマップを返します。
func ResolveProperties(properties map[string]string, params JobParameters) (map[string]string, error) {
	resolved := make(map[string]string, len(properties))
	for k, v := range properties {
		r, err := ResolvePlaceholders(v, params)
		if err != nil {
			return nil, err
		}
		resolved[k] = r
	}
	return resolved, nil
}
