package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgsAppendsLineAndPath(t *testing.T) {
	args := buildArgs("vim", "main.go", 42)
	assert.Equal(t, []string{"vim", "+42", "main.go"}, args)
}

func TestBuildArgsSplitsMultiWordCommand(t *testing.T) {
	args := buildArgs("emacs -nw", "main.go", 7)
	assert.Equal(t, []string{"emacs", "-nw", "+7", "main.go"}, args)
}

func TestBuildArgsEmptyCommandReturnsNil(t *testing.T) {
	assert.Nil(t, buildArgs("", "main.go", 1))
}

func TestCommandRejectsEmptyCommand(t *testing.T) {
	_, err := Command("", "main.go", 1)
	require.Error(t, err)
}

func TestCommandWiresArgs(t *testing.T) {
	cmd, err := Command("vim", "main.go", 3)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, []string{"+3", "main.go"}, cmd.Args[1:])
}
