package exec

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealCommandExecutor_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		command     string
		args        []string
		wantSuccess bool
		wantOutput  string
	}{
		{
			name:        "echo command",
			command:     "echo",
			args:        []string{"hello"},
			wantSuccess: true,
			wantOutput:  "hello\n",
		},
		{
			name:        "command with multiple args",
			command:     "echo",
			args:        []string{"hello", "world"},
			wantSuccess: true,
			wantOutput:  "hello world\n",
		},
		{
			name:        "invalid command",
			command:     "nonexistent_command_xyz123",
			wantSuccess: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			executor := &RealCommandExecutor{}
			stdout, _, err := executor.Execute(context.Background(), tt.command, tt.args...)

			if tt.wantSuccess {
				require.NoError(t, err)
				assert.Equal(t, tt.wantOutput, string(stdout))
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRealCommandExecutor_RunPassesEnvAndStdin(t *testing.T) {
	t.Parallel()

	executor := DefaultExecutor()
	stdout, _, err := executor.Run(context.Background(), Command{
		Name:  "sh",
		Args:  []string{"-c", `read line; echo "$PORT:$line"`},
		Env:   []string{"PORT=4455"},
		Stdin: strings.NewReader("hello\n"),
	})

	require.NoError(t, err)
	assert.Equal(t, "4455:hello\n", string(stdout))
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	executor := DefaultExecutor()
	_, _, err := executor.Execute(context.Background(), "sh", "-c", "exit 3")
	require.Error(t, err)
	assert.Equal(t, 3, ExitCode(err))

	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, -1, ExitCode(fmt.Errorf("spawn failed")))

	_, _, err = executor.Execute(context.Background(), "nonexistent_command_xyz123")
	assert.Equal(t, -1, ExitCode(err))
}
