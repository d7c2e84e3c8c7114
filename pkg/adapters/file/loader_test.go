package file_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinculobrasil/flowbot/internal/testutils"
	"github.com/vinculobrasil/flowbot/pkg/adapters/file"
	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/ports"
)

var (
	_ ports.FlowLoader = (*file.Loader)(nil)
	_ ports.Watchable  = (*file.Loader)(nil)
)

const helloJSON = `{
  "id": "hello",
  "nodes": [
    {"id": "start", "type": "start"},
    {"id": "hi", "type": "message", "data": {"text": "Olá, {contact_name}!"}}
  ],
  "edges": [{"id": "e1", "source": "start", "target": "hi"}]
}`

const menuYAML = `
nodes:
  - id: start
    type: start
  - id: menu
    type: menu
    data:
      text: Escolha
      options:
        - {id: a, label: Boleto}
        - {id: b, label: PIX}
edges:
  - {source: start, target: menu}
`

func TestFileLoader_Contract(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFlow(t, dir, "hello.json", helloJSON)
	testutils.WriteFlow(t, dir, "menu.yaml", menuYAML)
	testutils.WriteFlow(t, dir, "README.md", "# not a flow")

	loader, err := file.NewLoader(dir)
	require.NoError(t, err)

	ports.RunFlowLoaderContract(t, loader, map[string]*domain.Graph{
		"hello": {Nodes: make([]domain.Node, 2), Edges: make([]domain.Edge, 1)},
		"menu":  {Nodes: make([]domain.Node, 2), Edges: make([]domain.Edge, 1)},
	})
}

func TestFileLoader_IDFromDocumentWins(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFlow(t, dir, "whatever.json", helloJSON)

	loader, err := file.NewLoader(dir)
	require.NoError(t, err)

	ids, err := loader.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, ids)

	g, err := loader.Load(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.KindMessage, g.Nodes[1].Kind)
}

func TestFileLoader_SkipsBrokenDocuments(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFlow(t, dir, "hello.json", helloJSON)
	testutils.WriteFlow(t, dir, "broken.json", `{"nodes": [`)

	loader, err := file.NewLoader(dir)
	require.NoError(t, err)

	ids, err := loader.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, ids)

	_, err = loader.Load(context.Background(), "broken")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestFileLoader_PicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	loader, err := file.NewLoader(dir)
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), "menu")
	require.ErrorIs(t, err, domain.ErrFlowNotFound)

	testutils.WriteFlow(t, dir, "menu.yml", menuYAML)
	g, err := loader.Load(context.Background(), "menu")
	require.NoError(t, err)
	assert.Equal(t, "menu", g.ID)
}

func TestFileLoader_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.json")
	testutils.WriteFlow(t, dir, "hello.json", helloJSON)

	_, err := file.NewLoader(path)
	assert.Error(t, err)
	_, err = file.NewLoader(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestFileLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	loader, err := file.NewLoader(dir, file.WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := loader.Watch(ctx)
	require.NoError(t, err)

	testutils.WriteFlow(t, dir, "hello.json", helloJSON)
	select {
	case _, ok := <-changes:
		assert.True(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change signal")
	}

	cancel()
	select {
	case _, ok := <-changes:
		for ok {
			_, ok = <-changes
		}
	case <-time.After(3 * time.Second):
		t.Fatal("channel should close after cancel")
	}
}
