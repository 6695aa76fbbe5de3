package configstore

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebridge/voicebridge/internal/logging"
)

const testMatrix = `{
  "rules": [
    {"name": "default_missed_call", "trigger": "missed_call", "action": "log_only"},
    {"name": "long_call_sheet", "trigger": "call_ended", "condition": "duration > 60", "action": "sheet_row"}
  ],
  "templates": {
    "log_only": {"steps": [{"name": "log", "capability": "log"}]},
    "sheet_row": {"steps": [{"name": "append", "capability": "sheets"}]},
    "send_followup_email": {"steps": [{"name": "email", "capability": "mail", "params": {"subject": "Missed call"}}]}
  }
}`

func writeFixture(t *testing.T, matrix string, agents map[string]string) *Store {
	t.Helper()
	dir := t.TempDir()
	agentsDir := filepath.Join(dir, "agents")
	require.NoError(t, os.MkdirAll(agentsDir, 0o755))

	matrixPath := filepath.Join(dir, "matrix.json")
	require.NoError(t, os.WriteFile(matrixPath, []byte(matrix), 0o600))
	for name, content := range agents {
		require.NoError(t, os.WriteFile(filepath.Join(agentsDir, name), []byte(content), 0o600))
	}

	return New(agentsDir, matrixPath, logging.New(io.Discard, "silent"))
}

func TestLoadAndLookup(t *testing.T) {
	store := writeFixture(t, testMatrix, map[string]string{
		"a1.json": `{"id": "A1", "capabilities": ["mail", "log"], "rules": {"missed_call": "send_followup_email"}}`,
	})
	require.NoError(t, store.Load())

	agent, err := store.GetAgent("A1")
	require.NoError(t, err)
	assert.Equal(t, "A1", agent.ID)
	assert.True(t, agent.HasCapability("mail"))
	assert.False(t, agent.HasCapability("calendar"))
	assert.Equal(t, "send_followup_email", agent.Rules["missed_call"])

	_, err = store.GetAgent("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupBeforeLoad(t *testing.T) {
	store := writeFixture(t, testMatrix, nil)
	_, err := store.GetAgent("A1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, store.Snapshot())
}

func TestMalformedAgentNamesFile(t *testing.T) {
	store := writeFixture(t, testMatrix, map[string]string{
		"broken.json": `{"id": "B1", "capabilities": ["mail"`,
	})
	err := store.Load()
	require.Error(t, err)

	var invalid *InvalidConfigError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "broken.json", invalid.Source)
}

func TestUnknownFieldsRejected(t *testing.T) {
	store := writeFixture(t, testMatrix, map[string]string{
		"a1.json": `{"id": "A1", "capabilities": ["mail"], "surprise": true}`,
	})
	var invalid *InvalidConfigError
	require.ErrorAs(t, store.Load(), &invalid)
	assert.Equal(t, "a1.json", invalid.Source)
}

func TestUnknownCapabilityRejected(t *testing.T) {
	store := writeFixture(t, testMatrix, map[string]string{
		"a1.json": `{"id": "A1", "capabilities": ["teleport"]}`,
	})
	var invalid *InvalidConfigError
	require.ErrorAs(t, store.Load(), &invalid)
	assert.Contains(t, invalid.Message, "teleport")
}

func TestRuleReferencingUnknownTemplate(t *testing.T) {
	store := writeFixture(t, `{
	  "rules": [{"name": "r1", "trigger": "missed_call", "action": "ghost"}],
	  "templates": {}
	}`, nil)
	var invalid *InvalidConfigError
	require.ErrorAs(t, store.Load(), &invalid)
	assert.Contains(t, invalid.Message, "ghost")
}

func TestBadConditionRejected(t *testing.T) {
	store := writeFixture(t, `{
	  "rules": [{"name": "r1", "trigger": "call_ended", "condition": "duration >>> 5", "action": "log_only"}],
	  "templates": {"log_only": {"steps": [{"name": "log", "capability": "log"}]}}
	}`, nil)
	var invalid *InvalidConfigError
	require.ErrorAs(t, store.Load(), &invalid)
}

func TestForwardDependencyRejected(t *testing.T) {
	store := writeFixture(t, `{
	  "rules": [],
	  "templates": {
	    "t": {"steps": [
	      {"name": "first", "capability": "log", "dependsOn": ["second"]},
	      {"name": "second", "capability": "log"}
	    ]}
	  }
	}`, nil)
	var invalid *InvalidConfigError
	require.ErrorAs(t, store.Load(), &invalid)
	assert.Contains(t, invalid.Message, "second")
}

func TestReloadKeepsSnapshotOnError(t *testing.T) {
	dir := t.TempDir()
	agentsDir := filepath.Join(dir, "agents")
	require.NoError(t, os.MkdirAll(agentsDir, 0o755))
	matrixPath := filepath.Join(dir, "matrix.json")
	require.NoError(t, os.WriteFile(matrixPath, []byte(testMatrix), 0o600))
	agentPath := filepath.Join(agentsDir, "a1.json")
	require.NoError(t, os.WriteFile(agentPath, []byte(`{"id": "A1", "capabilities": ["mail"]}`), 0o600))

	store := New(agentsDir, matrixPath, logging.New(io.Discard, "silent"))
	require.NoError(t, store.Load())
	before := store.Snapshot()

	require.NoError(t, os.WriteFile(agentPath, []byte(`not json`), 0o600))
	require.Error(t, store.Reload())

	// Failed reload leaves the old snapshot installed.
	assert.Same(t, before, store.Snapshot())
	_, err := store.GetAgent("A1")
	assert.NoError(t, err)
}

func TestReloadSwapsAtomically(t *testing.T) {
	dir := t.TempDir()
	agentsDir := filepath.Join(dir, "agents")
	require.NoError(t, os.MkdirAll(agentsDir, 0o755))
	matrixPath := filepath.Join(dir, "matrix.json")
	require.NoError(t, os.WriteFile(matrixPath, []byte(testMatrix), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(agentsDir, "a1.json"),
		[]byte(`{"id": "A1", "capabilities": ["mail"]}`), 0o600))

	store := New(agentsDir, matrixPath, logging.New(io.Discard, "silent"))
	require.NoError(t, store.Load())

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	// Readers must always see a whole snapshot, never a mix of
	// generations.
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			snap := store.Snapshot()
			if !assert.NotNil(t, snap) {
				return
			}
			a, ok := snap.Agent("A1")
			if !assert.True(t, ok) {
				return
			}
			assert.Equal(t, "A1", a.ID)
			assert.NotNil(t, snap.Matrix)
			assert.Len(t, snap.Matrix.Rules, 2)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			assert.NoError(t, store.Reload())
		}
		close(done)
	}()

	wg.Wait()
	assert.GreaterOrEqual(t, store.Snapshot().Version, uint64(51))
}

func TestAgentByPlatformID(t *testing.T) {
	store := writeFixture(t, testMatrix, map[string]string{
		"a1.json": `{"id": "A1", "platformAgentId": "elabs_123", "capabilities": ["mail"]}`,
	})
	require.NoError(t, store.Load())

	snap := store.Snapshot()
	agent, ok := snap.AgentByPlatformID("elabs_123")
	require.True(t, ok)
	assert.Equal(t, "A1", agent.ID)

	_, ok = snap.AgentByPlatformID("other")
	assert.False(t, ok)
}

func TestDuplicateAgentID(t *testing.T) {
	store := writeFixture(t, testMatrix, map[string]string{
		"a1.json": `{"id": "A1", "capabilities": ["mail"]}`,
		"a2.json": `{"id": "A1", "capabilities": ["log"]}`,
	})
	var invalid *InvalidConfigError
	require.ErrorAs(t, store.Load(), &invalid)
	assert.Contains(t, invalid.Message, "A1")
}
