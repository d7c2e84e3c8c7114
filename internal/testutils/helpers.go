package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// CadastroFlow asks for a name, greets the contact and ends.
const CadastroFlow = `{
  "id": "cadastro",
  "name": "Cadastro",
  "nodes": [
    {"id": "start", "type": "start"},
    {"id": "ask", "type": "input", "data": {"question": "Qual o seu nome?", "variable": "nome"}},
    {"id": "hi", "type": "message", "data": {"text": "Prazer, {nome}!"}},
    {"id": "bye", "type": "end"}
  ],
  "edges": [
    {"id": "e1", "source": "start", "target": "ask"},
    {"id": "e2", "source": "ask", "target": "hi"},
    {"id": "e3", "source": "hi", "target": "bye"}
  ]
}`

// WriteFlow writes one flow document into dir.
// It fails the test immediately on error.
func WriteFlow(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600), "failed to write flow %s", name)
}

// FlowDir creates a temporary flow directory holding files (name -> body)
// and returns its absolute path.
func FlowDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "failed to get absolute path for temp dir")

	for name, body := range files {
		WriteFlow(t, dir, name, body)
	}
	return dir
}
