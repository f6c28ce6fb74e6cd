package httpapi

import (
	"sync"

	"github.com/hashicorp/go-bexpr"
)

// bexprCache memoizes compiled evaluators per selector expression string,
// the same compile-once-per-expression shape the teacher's casbin matcher
// uses for scope expressions.
var bexprCache sync.Map

// matchSelector evaluates a go-bexpr selector expression against a flat
// attribute map. An empty expression matches everything. An expression
// that fails to compile or evaluate is treated as a non-match rather than
// failing the request, since a malformed selector should narrow results to
// nothing instead of 500ing an admin list endpoint.
func matchSelector(selector string, attrs map[string]any) bool {
	if selector == "" {
		return true
	}
	var evaluator *bexpr.Evaluator
	if cached, ok := bexprCache.Load(selector); ok {
		evaluator = cached.(*bexpr.Evaluator)
	} else {
		compiled, err := bexpr.CreateEvaluator(selector)
		if err != nil {
			return false
		}
		evaluator = compiled
		bexprCache.Store(selector, compiled)
	}
	matched, err := evaluator.Evaluate(attrs)
	if err != nil {
		return false
	}
	return matched
}

// instanceAttrs flattens an instance's filterable fields (plus its
// metadata) into the map shape go-bexpr matches against.
func instanceAttrs(ip string, port int, cluster string, weight float64, healthy, enabled bool, metadata map[string]string) map[string]any {
	attrs := map[string]any{
		"IP":       ip,
		"Port":     port,
		"Cluster":  cluster,
		"Weight":   weight,
		"Healthy":  healthy,
		"Enabled":  enabled,
		"Metadata": metadata,
	}
	return attrs
}

// historyAttrs flattens a history record's filterable fields for selector
// matching against e.g. `Op == "D"` or `Type == "yaml"`.
func historyAttrs(nid int64, op, typ, md5 string) map[string]any {
	return map[string]any{
		"NID":  nid,
		"Op":   op,
		"Type": typ,
		"MD5":  md5,
	}
}
