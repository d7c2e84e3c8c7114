package runtime_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vinculobrasil/flowbot/internal/runtime"
	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/graph"
	"github.com/vinculobrasil/flowbot/pkg/ports"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return epoch }

func node(id string, kind domain.Kind, data map[string]any) domain.Node {
	return domain.Node{ID: id, Kind: kind, Data: data}
}

func edge(source, target, handle string) domain.Edge {
	return domain.Edge{ID: fmt.Sprintf("%s-%s-%s", source, handle, target), Source: source, Target: target, Handle: handle}
}

func flow(t *testing.T, nodes []domain.Node, edges []domain.Edge, opts ...graph.Option) *graph.Index {
	t.Helper()
	idx, err := graph.Build(&domain.Graph{ID: "test-flow", Version: "1", Nodes: nodes, Edges: edges}, opts...)
	require.NoError(t, err)
	return idx
}

func newSession(vars map[string]any) *domain.Session {
	s := domain.NewSession("sess-1", "test-flow", domain.Contact{ID: "c1", Phone: "5511988887777", Name: "Ana"}, epoch)
	for k, v := range vars {
		s.Variables[k] = v
	}
	return s
}

func newEngine(c ports.Collaborators, opts ...runtime.EngineOption) *runtime.Engine {
	base := []runtime.EngineOption{
		runtime.WithCollaborators(c),
		runtime.WithClock(fixedClock),
		runtime.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	}
	return runtime.NewEngine(append(base, opts...)...)
}

// send runs one turn; an empty text means "no new input".
func send(t *testing.T, e *runtime.Engine, idx *graph.Index, sess *domain.Session, text string) *domain.TurnResult {
	t.Helper()
	var input *string
	if text != "" {
		input = &text
	}
	res, err := e.Turn(context.Background(), idx, sess, input)
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	return res
}

type fakeCompletion struct {
	reply    string
	err      error
	prompts  []string
	messages []string
}

func (f *fakeCompletion) Complete(_ context.Context, prompt, message string, _ []string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.messages = append(f.messages, message)
	return f.reply, f.err
}

type fakeTranscriber struct {
	text string
	refs []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, ref, _ string) (string, error) {
	f.refs = append(f.refs, ref)
	return f.text, nil
}

type fakeOCR struct {
	fields map[string]string
}

func (f *fakeOCR) ExtractFields(context.Context, string, string, []string) (map[string]string, error) {
	return f.fields, nil
}

type fakeWebhooks struct {
	resp *ports.WebhookResponse
	err  error
	reqs []ports.WebhookRequest
}

func (f *fakeWebhooks) Call(_ context.Context, req ports.WebhookRequest) (*ports.WebhookResponse, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

type fakeContracts struct {
	contracts []domain.Contract
	err       error
	by, value string
}

func (f *fakeContracts) FindContracts(_ context.Context, by, value string) ([]domain.Contract, error) {
	f.by, f.value = by, value
	return f.contracts, f.err
}

type fakeLeads struct {
	duplicate bool
	saveErr   error
	saved     []ports.LeadRecord
}

func (f *fakeLeads) Save(_ context.Context, lead ports.LeadRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, lead)
	return nil
}

func (f *fakeLeads) CheckDuplicate(context.Context, string, string, string) (bool, error) {
	return f.duplicate, nil
}

type fakeTicketing struct {
	mu       sync.Mutex
	handoffs []domain.Handoff
}

func (f *fakeTicketing) Handoff(_ context.Context, _ string, _ domain.Contact, h domain.Handoff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handoffs = append(f.handoffs, h)
	return nil
}

type fakeClassifier struct {
	clientType string
}

func (f *fakeClassifier) Classify(context.Context, domain.Contact, map[string]any) (string, error) {
	return f.clientType, nil
}
