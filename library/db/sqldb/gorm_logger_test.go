package sqldb

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSanitizeLoggedSQLParamLongString verifies long strings keep a prefix and report their length.
func TestSanitizeLoggedSQLParamLongString(t *testing.T) {
	param := strings.Repeat("a", 64)
	sanitized := sanitizeLoggedSQLParam(param, 10)
	result, ok := sanitized.(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(result, "aaaaaaaaaa..."))
	require.Contains(t, result, "<truncated:len=64>")
}

// TestSanitizeLoggedSQLParamShortValues verifies small values pass through untouched.
func TestSanitizeLoggedSQLParamShortValues(t *testing.T) {
	require.Equal(t, "logo.png", sanitizeLoggedSQLParam("logo.png", 10))
	require.Equal(t, []byte("abc"), sanitizeLoggedSQLParam([]byte("abc"), 10))
	require.Equal(t, int64(42), sanitizeLoggedSQLParam(int64(42), 10))
}

// TestSanitizeLoggedSQLParams verifies params filtering sanitizes oversized values.
func TestSanitizeLoggedSQLParams(t *testing.T) {
	longString := fmt.Sprintf("%0257d", 0)
	blob := make([]byte, 300)

	filteredParams := sanitizeLoggedSQLParams(256, longString, blob, 7)
	require.Len(t, filteredParams, 3)
	require.Contains(t, filteredParams[0], "<truncated:len=257>")
	require.Equal(t, "<bytes:len=300,truncated>", filteredParams[1])
	require.Equal(t, 7, filteredParams[2])
}

// TestBuildPostgresDSN verifies the default port and UTC timezone are applied.
func TestBuildPostgresDSN(t *testing.T) {
	dsn := BuildPostgresDSN(DialInfo{Addr: "db", DBName: "portal", User: "u", Pwd: "p"})
	require.Equal(t, "host=db user=u password=p dbname=portal port=5432 sslmode=disable TimeZone=UTC", dsn)
}
