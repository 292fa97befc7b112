package format

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer/cli/internal/models"
)

func sampleIdentity() *models.Identity {
	created := models.Timestamp{Time: time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)}
	return &models.Identity{ID: 7, Email: "a@b.com", DisplayName: "Ana", Active: true, CreatedAt: created}
}

func TestTableFormatter_Record(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTableFormatter(false).Format(&buf, sampleIdentity()))

	out := buf.String()
	assert.Contains(t, out, "Property")
	assert.Contains(t, out, "Email")
	assert.Contains(t, out, "a@b.com")
	assert.Contains(t, out, "Full Name")
	assert.Contains(t, out, "Is Active")
	assert.Contains(t, out, "true")
	assert.Contains(t, out, created(t))
}

func created(t *testing.T) string {
	t.Helper()
	return time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC).Local().Format("2006-01-02 15:04")
}

func TestTableFormatter_Lists(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTableFormatter(true).Format(&buf, []string{"AAAA1111", "BBBB2222"}))
	assert.Contains(t, buf.String(), "AAAA1111")
	assert.Contains(t, buf.String(), "BBBB2222")

	buf.Reset()
	rows := []models.RegistrationStatus{{Status: "pending", Message: "waiting"}, {Status: "completed"}}
	require.NoError(t, NewTableFormatter(false).Format(&buf, rows))
	assert.Contains(t, buf.String(), "Status")
	assert.Contains(t, buf.String(), "completed")

	buf.Reset()
	require.NoError(t, NewTableFormatter(false).Format(&buf, []string{}))
	assert.Equal(t, "No data to display\n", buf.String())
}

func TestTableFormatter_MapIsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTableFormatter(false).Format(&buf, map[string]interface{}{"zeta": 1, "alpha": "x"}))
	out := buf.String()
	assert.Less(t, strings.Index(out, "Alpha"), strings.Index(out, "Zeta"))
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextFormatter().Format(&buf, models.RegistrationStatus{Status: "pending"}))
	assert.Equal(t, "Status: pending\nMessage: N/A\nCan Resend: false\n", buf.String())

	buf.Reset()
	require.NoError(t, NewTextFormatter().Format(&buf, nil))
	assert.Equal(t, "No data\n", buf.String())
}

func TestJSONAndYAMLFormatters(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatter(false).Format(&buf, models.MessageResponse{Message: "ok"}))
	assert.Equal(t, "{\"message\":\"ok\"}\n", buf.String())

	buf.Reset()
	require.NoError(t, NewYAMLFormatter().Format(&buf, models.MessageResponse{Message: "ok"}))
	assert.Equal(t, "message: ok\n", buf.String())
}

func TestGetFormatter(t *testing.T) {
	for _, name := range Formats {
		f, err := GetFormatter(name, false)
		require.NoError(t, err, name)
		assert.NotNil(t, f)
	}
	_, err := GetFormatter("xml", false)
	assert.Error(t, err)
}

func TestNotifier_Plain(t *testing.T) {
	var out, errOut bytes.Buffer
	n := NewNotifier(&out, &errOut, false)

	n.Success("done")
	n.Info("note")
	n.Warning("careful")
	n.Error("broken")

	assert.Equal(t, "done\nInfo: note\n", out.String())
	assert.Equal(t, "Warning: careful\nError: broken\n", errOut.String())
}
