package bunx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectDatabaseType(t *testing.T) {
	cases := []struct {
		dsn  string
		want DatabaseType
	}{
		{"postgres://user:pw@localhost:5432/batata", DatabaseTypePostgreSQL},
		{"postgresql://localhost/batata", DatabaseTypePostgreSQL},
		{"sqlite://batata.db", DatabaseTypeSQLite},
		{"file:batata.db?cache=shared", DatabaseTypeSQLite},
		{":memory:", DatabaseTypeSQLite},
		{"batata.db", DatabaseTypeSQLite},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DetectDatabaseType(c.dsn), c.dsn)
	}
}
