package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/crier/internal/store"
	"github.com/btouchard/crier/internal/task"
)

func TestNewServer_RegistersTaskTools(t *testing.T) {
	t.Parallel()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	s := NewServer(&Deps{Tasks: task.NewService(st), Version: "test"})

	tools := s.ListTools()
	for _, name := range []string{"list_tasks", "check_task", "assign_task", "accept_task", "reject_task", "finish_task", "return_task"} {
		assert.Contains(t, tools, name)
	}
	assert.Len(t, tools, 7)
	assert.NotNil(t, NewHTTPHandler(s))
}
