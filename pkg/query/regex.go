package query

import (
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adfharrison1/go-okdb/pkg/domain"
)

const patternCacheSize = 512

var patterns, _ = lru.New[string, *regexp.Regexp](patternCacheSize)

func compilePattern(pattern interface{}) (*regexp.Regexp, error) {
	switch p := pattern.(type) {
	case *regexp.Regexp:
		if p == nil {
			return nil, fmt.Errorf("%w: nil pattern", domain.ErrInvalidQuery)
		}
		return p, nil
	case string:
		if re, ok := patterns.Get(p); ok {
			return re, nil
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q: %v", domain.ErrInvalidQuery, p, err)
		}
		patterns.Add(p, re)
		return re, nil
	}
	return nil, fmt.Errorf("%w: pattern must be a string, got %T", domain.ErrInvalidQuery, pattern)
}
