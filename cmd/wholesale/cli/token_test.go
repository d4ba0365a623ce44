package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wholesale/internal/app"
	"github.com/odyssey-erp/wholesale/internal/rbac"
	_ "github.com/odyssey-erp/wholesale/internal/testing/guard"
	"github.com/odyssey-erp/wholesale/jobs"
)

func TestTokenCommandJSON(t *testing.T) {
	identity := app.NewIdentity("cli-secret", "wholesale", nil)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	code := TokenCommand(identity, TokenOptions{
		UserID:     "u-42",
		Name:       "Dana",
		Role:       "finance",
		TTL:        time.Hour,
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Equal(t, 0, code, stderr.String())

	var out tokenOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, rbac.RoleFinance, out.Role)

	p, err := identity.Parse(out.Token)
	require.NoError(t, err)
	assert.Equal(t, rbac.Principal{UserID: "u-42", Name: "Dana", Role: rbac.RoleFinance}, p)
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	code := TokenCommand(app.NewIdentity("cli-secret", "", nil), TokenOptions{
		UserID: "u-1",
		Role:   "janitor",
		Stdout: stdout,
		Stderr: stderr,
	})
	assert.Equal(t, 2, code)
	assert.Empty(t, stdout.String())
	assert.True(t, strings.HasPrefix(stderr.String(), "token:"))
}

func TestTokenCommandPlain(t *testing.T) {
	stdout := new(bytes.Buffer)
	code := TokenCommand(app.NewIdentity("cli-secret", "", nil), TokenOptions{
		UserID: "u-7",
		Role:   "SALES_MANAGER",
		Stdout: stdout,
		Stderr: new(bytes.Buffer),
	})
	require.Equal(t, 0, code)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(stdout.String()), "."))
}

func TestTaskForKnownJobs(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, name := range []string{jobs.TaskInventoryStockScan, "stock-scan"} {
		task, err := taskFor(name, at)
		require.NoError(t, err)
		assert.Equal(t, jobs.TaskInventoryStockScan, task.Type())
	}
	_, err := taskFor("gl:integrity", at)
	require.Error(t, err)
}
