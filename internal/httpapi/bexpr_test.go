package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchSelectorEmptyMatchesAll(t *testing.T) {
	assert.True(t, matchSelector("", instanceAttrs("10.0.0.1", 8080, "DEFAULT", 1.0, true, true, nil)))
}

func TestMatchSelectorOnInstanceAttributes(t *testing.T) {
	attrs := instanceAttrs("10.0.0.1", 8080, "DEFAULT", 1.0, true, true, map[string]string{"az": "us-east"})
	assert.True(t, matchSelector(`Healthy == true`, attrs))
	assert.False(t, matchSelector(`Healthy == false`, attrs))
	assert.True(t, matchSelector(`Cluster == "DEFAULT"`, attrs))
}

func TestMatchSelectorInvalidExpressionIsNonMatch(t *testing.T) {
	attrs := instanceAttrs("10.0.0.1", 8080, "DEFAULT", 1.0, true, true, nil)
	assert.False(t, matchSelector("not a valid expression ((", attrs))
}

func TestMatchSelectorOnHistoryRecord(t *testing.T) {
	attrs := historyAttrs(3, "U", "yaml", "abc123")
	assert.True(t, matchSelector(`Op == "U"`, attrs))
	assert.False(t, matchSelector(`Op == "D"`, attrs))
}

func TestMatchSelectorCachesEvaluator(t *testing.T) {
	attrs := instanceAttrs("10.0.0.1", 8080, "DEFAULT", 1.0, true, true, nil)
	expr := `Cluster == "DEFAULT"`
	assert.True(t, matchSelector(expr, attrs))
	_, cached := bexprCache.Load(expr)
	assert.True(t, cached)
	// second call should hit the cache path without recompiling.
	assert.True(t, matchSelector(expr, attrs))
}
