package command

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	got, err := Parse("  OPEN   n-42 ")
	require.NoError(t, err)
	assert.Equal(t, CommandMsg{Name: Open, Arg: "n-42"}, got)

	got, err = Parse("read-all")
	require.NoError(t, err)
	assert.Equal(t, ReadAll, got.Name)

	_, err = Parse("open")
	assert.ErrorContains(t, err, "usage: open <id>")

	_, err = Parse("launch")
	assert.ErrorContains(t, err, "unknown command")

	_, err = Parse("   ")
	assert.Error(t, err)
}

func typeLine(m Model, line string) (Model, tea.Cmd) {
	for _, r := range line {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func TestModel_EmitsCommand(t *testing.T) {
	m := New(80, 20)

	m, cmd := typeLine(m, "open abc")

	require.NotNil(t, cmd)
	assert.Equal(t, CommandMsg{Name: Open, Arg: "abc"}, cmd())
	assert.Empty(t, m.input.Value())
}

func TestModel_EmitsErrorForBadLine(t *testing.T) {
	m := New(80, 20)

	_, cmd := typeLine(m, "frobnicate")

	require.NotNil(t, cmd)
	msg, ok := cmd().(ErrorMsg)
	require.True(t, ok)
	assert.Error(t, msg.Err)
}

func TestModel_EmptyLineDoesNothing(t *testing.T) {
	m := New(80, 20)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
}
