package lcservice

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/bjaus/lcservice/platform"
)

const resourceUnavailable = "resource not available"

// resource is published content. The platform compares hashes to decide
// whether to fetch data again.
type resource struct {
	hash     string
	category string
	data     string
}

func newResource(category string, data []byte) resource {
	sum := sha256.Sum256(data)
	return resource{
		hash:     hex.EncodeToString(sum[:]),
		category: category,
		data:     base64.StdEncoding.EncodeToString(data),
	}
}

func (r resource) describe(withData bool) map[string]any {
	d := map[string]any{
		"hash":    r.hash,
		"res_cat": r.category,
	}
	if withData {
		d["res_data"] = r.data
	}
	return d
}

// getResource answers "get_resource" for one name or a list of names. Any
// unknown name fails the whole lookup.
func (s *Service) getResource(_ context.Context, _ platform.API, _ string, req Request) (any, error) {
	withData, _ := req.Bool("is_include_data")
	unavailable := Response{Data: map[string]any{"error": resourceUnavailable}}

	switch names := req.Data["resource"].(type) {
	case string:
		r, ok := s.resources[names]
		if !ok {
			return unavailable, nil
		}
		return Success(r.describe(withData)), nil
	case []any:
		out := make(map[string]any, len(names))
		for _, n := range names {
			name, _ := n.(string)
			r, ok := s.resources[name]
			if !ok {
				return unavailable, nil
			}
			out[name] = r.describe(withData)
		}
		return Success(map[string]any{"resources": out}), nil
	default:
		return unavailable, nil
	}
}
