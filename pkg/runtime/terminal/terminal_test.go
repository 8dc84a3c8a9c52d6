package terminal

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/recon-atlas/pkg/models/api"
)

const lineItems = `[
  {"property_id": "prop-001", "document_type": "income_statement", "account_code": "9090",
   "account_name": "Net Income", "amount": "12,480.55", "period": "2025-06", "source_reference": "IS-p4"},
  {"property_id": "prop-001", "document_type": "cash_flow", "account_code": "9090",
   "account_name": "Net Income", "amount": 12480.55, "period": "2025-06", "source_reference": "CF-p1"}
]`

func writeDocuments(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "documents.json")
	require.NoError(t, os.WriteFile(path, []byte(lineItems), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	cli := NewCLI(Options{Output: &out, LogOutput: &logs})
	cli.SetArgs(args)
	err := cli.Execute()
	return out.String(), err
}

func TestRulesCommand(t *testing.T) {
	out, err := execute(t, "rules")
	require.NoError(t, err)
	assert.Contains(t, out, "A-1.1\ton \tequality")
	assert.Contains(t, out, "Net income parity")
}

func TestRunCommand(t *testing.T) {
	docs := writeDocuments(t)

	out, err := execute(t, "run", "--documents", docs, "--property", "prop-001", "--period", "2025-06",
		"--rules", "A-1.1", "-o", "json")
	require.NoError(t, err)

	var report api.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "VALIDATED", report.Session.Status)
	assert.Equal(t, 100.0, report.Session.HealthScore)
	require.Len(t, report.Matches, 1)
	assert.Equal(t, "exact", report.Matches[0].MatchType)
	assert.Equal(t, "12480.55", report.Matches[0].SourceValue)
	assert.Empty(t, report.Discrepancies)
}

func TestRunCommand_Errors(t *testing.T) {
	_, err := execute(t, "run", "--property", "prop-001")
	assert.Error(t, err)

	_, err = execute(t, "rules", "-o", "yaml")
	assert.Error(t, err)

	_, err = execute(t, "rules", "--storage", "cassandra")
	assert.Error(t, err)

	_, err = execute(t, "session", "show", "does-not-exist")
	assert.Error(t, err)
}

func TestSessionLifecycle_Badger(t *testing.T) {
	t.Setenv("RECON_STORAGE_DIR", filepath.Join(t.TempDir(), "data"))
	docs := writeDocuments(t)
	base := []string{"--storage", "badger", "--documents", docs, "-o", "json"}

	out, err := execute(t, append([]string{"run", "--property", "prop-001", "--period", "2025-06", "--rules", "A-1.1"}, base...)...)
	require.NoError(t, err)
	var report api.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	id := report.Session.ID
	require.NotEmpty(t, id)

	out, err = execute(t, append([]string{"session", "show", id}, base...)...)
	require.NoError(t, err)
	var shown api.Report
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, id, shown.Session.ID)
	require.Len(t, shown.Matches, 1)

	out, err = execute(t, append([]string{"approve", shown.Matches[0].ID, "--actor", "lead"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "approved"`)

	out, err = execute(t, append([]string{"complete", id, "--actor", "lead"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "COMPLETED"`)

	out, err = execute(t, append([]string{"session", "history", id}, base...)...)
	require.NoError(t, err)
	var entries []api.AuditEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "approve", entries[0].Action)
	assert.Equal(t, "complete", entries[1].Action)

	_, err = execute(t, append([]string{"cancel", id}, base...)...)
	assert.Error(t, err)
}
