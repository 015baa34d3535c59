package formatting

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAuthStatusesEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAuthStatuses(&buf, nil, OutputFormatTable, false))
	assert.Contains(t, buf.String(), "No servers configured")
}

func TestWriteAuthStatusesTable(t *testing.T) {
	expiry := time.Now().Add(30*time.Minute + 5*time.Second)
	statuses := []AuthStatus{
		{Server: "ops", State: StateAuthenticated, ExpiresAt: &expiry, Refreshable: true},
		{Server: "worker", State: StateNoAuth},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAuthStatuses(&buf, statuses, OutputFormatTable, false))

	out := buf.String()
	assert.Contains(t, out, "SERVER")
	assert.Contains(t, out, "STATE")
	assert.Contains(t, out, "authenticated")
	assert.Contains(t, out, "30m")
	assert.Contains(t, out, "Yes")
	assert.Contains(t, out, "none")
	assert.Less(t, strings.Index(out, "ops"), strings.Index(out, "worker"),
		"rows should be sorted by server name")
	assert.NotContains(t, out, "attention")
}

func TestWriteAuthStatusesWide(t *testing.T) {
	statuses := []AuthStatus{
		{Server: "ops", Endpoint: "https://ops.example.com/mcp", State: StateExpired},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAuthStatuses(&buf, statuses, OutputFormatWide, false))

	out := buf.String()
	assert.Contains(t, out, "ENDPOINT")
	assert.Contains(t, out, "https://ops.example.com/mcp")
	assert.Contains(t, out, "expired")
}

func TestWriteAuthStatusesAttentionNotes(t *testing.T) {
	statuses := []AuthStatus{
		{Server: "ops", State: StateAuthenticated},
		{Server: "broken", State: StateError, Error: "connection refused"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAuthStatuses(&buf, statuses, OutputFormatTable, false))

	out := buf.String()
	assert.Contains(t, out, "Servers requiring attention:")
	assert.Contains(t, out, "  broken: connection refused")
}

func TestWriteAuthStatusesNoHeadersSkipsNotes(t *testing.T) {
	statuses := []AuthStatus{
		{Server: "broken", State: StateError, Error: "connection refused"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAuthStatuses(&buf, statuses, OutputFormatTable, true))
	assert.NotContains(t, buf.String(), "attention")
}

func TestWriteAuthStatusesJSON(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	statuses := []AuthStatus{
		{Server: "ops", State: StateAuthenticated, ExpiresAt: &expiry, Refreshable: true},
		{Server: "worker", State: StateNoAuth},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAuthStatuses(&buf, statuses, OutputFormatJSON, false))

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "ops", decoded[0]["server"])
	assert.Equal(t, StateAuthenticated, decoded[0]["state"])
	assert.Equal(t, true, decoded[0]["refreshable"])
	assert.NotContains(t, decoded[1], "expiresAt", "zero expiry should be omitted")
}

func TestFormatTTL(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	soon := time.Now().Add(45*time.Second + 500*time.Millisecond)
	minutes := time.Now().Add(12*time.Minute + 5*time.Second)
	hours := time.Now().Add(6*time.Hour + 5*time.Second)
	days := time.Now().Add(48*time.Hour + 5*time.Second)

	assert.Equal(t, "-", formatTTL(nil))
	assert.Equal(t, "expired", formatTTL(&past))
	assert.Equal(t, "45s", formatTTL(&soon))
	assert.Equal(t, "12m", formatTTL(&minutes))
	assert.Equal(t, "6.0h", formatTTL(&hours))
	assert.Equal(t, "2.0d", formatTTL(&days))
}
