package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrigger struct {
	started bool
	result  TriggerInvokeResult
}

func (t *fakeTrigger) Start(context.Context) error { t.started = true; return nil }
func (t *fakeTrigger) Stop(context.Context) error  { t.started = false; return nil }
func (t *fakeTrigger) Started() bool               { return t.started }
func (t *fakeTrigger) InvokeAgent(ctx context.Context, req TriggerInvokeRequest) (TriggerInvokeResult, error) {
	return t.result, nil
}

func newTestService(t *testing.T) *GraphService {
	t.Helper()
	registry := NewTemplateRegistry()
	trigger := &fakeTrigger{started: true, result: TriggerInvokeResult{ExternalThreadID: "thread-1"}}
	registry.Register(simpleTemplate("manual-trigger", NodeKindTrigger, []KindConstraint{{Kind: NodeKindSimpleAgent}}, nil,
		func() NodeHandle {
			return &fakeHandle{onProvide: func(_ context.Context, _ NodeInit) (any, error) { return trigger, nil }}
		}))
	registry.Register(simpleTemplate("simple-agent", NodeKindSimpleAgent, nil, []KindConstraint{{Kind: NodeKindTrigger}},
		func() NodeHandle { return &fakeHandle{} }))

	return NewGraphService(GraphServiceConfig{
		Templates: registry,
		Graphs:    NewInMemoryGraphStore(),
	})
}

func testSchema() GraphSchema {
	return GraphSchema{
		Nodes: []Node{
			{ID: "trigger-1", Template: "manual-trigger"},
			{ID: "agent-1", Template: "simple-agent"},
		},
		Edges: []Edge{{From: "trigger-1", To: "agent-1"}},
	}
}

func TestGraphService_CreateRunDestroy(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	g, err := svc.Create(ctx, CreateGraphInput{Name: "g1", Schema: testSchema()})
	require.NoError(t, err)
	assert.Equal(t, GraphStatusCreated, g.Status)
	assert.Equal(t, "1.0.0", g.Version)

	running, err := svc.Run(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, GraphStatusRunning, running.Status)

	_, err = svc.Run(ctx, g.ID)
	assert.True(t, IsKind(err, ErrGraphAlreadyRunning))

	stopped, err := svc.Destroy(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, GraphStatusStopped, stopped.Status)
}

func TestGraphService_ExecuteTrigger(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	g, err := svc.Create(ctx, CreateGraphInput{Name: "g1", Schema: testSchema()})
	require.NoError(t, err)

	_, err = svc.ExecuteTrigger(ctx, ExecuteTriggerInput{GraphID: g.ID, TriggerNodeID: "trigger-1"})
	assert.True(t, IsKind(err, ErrGraphNotRunning))

	_, err = svc.Run(ctx, g.ID)
	require.NoError(t, err)

	result, err := svc.ExecuteTrigger(ctx, ExecuteTriggerInput{GraphID: g.ID, TriggerNodeID: "trigger-1", Messages: []Message{{Role: RoleHuman, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "thread-1", result.ExternalThreadID)

	_, err = svc.ExecuteTrigger(ctx, ExecuteTriggerInput{GraphID: g.ID, TriggerNodeID: "agent-1"})
	assert.True(t, IsKind(err, ErrNodeNotTrigger))
}

func TestGraphService_Update_NameOnlyIsSynchronous(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	g, err := svc.Create(ctx, CreateGraphInput{Name: "g1", Schema: testSchema()})
	require.NoError(t, err)

	newName := "renamed"
	updated, rev, err := svc.Update(ctx, g.ID, UpdateGraphInput{CurrentVersion: g.TargetVersion, Name: &newName})
	require.NoError(t, err)
	assert.Nil(t, rev)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "1.0.0", updated.Version)
}

func TestGraphService_Update_SchemaChangeQueuesRevision(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	g, err := svc.Create(ctx, CreateGraphInput{Name: "g1", Schema: testSchema()})
	require.NoError(t, err)

	schema := testSchema()
	_, rev, err := svc.Update(ctx, g.ID, UpdateGraphInput{CurrentVersion: g.TargetVersion, Schema: &schema})
	require.NoError(t, err)
	require.NotNil(t, rev)
	assert.Equal(t, "1.0.1", rev.ToVersion)
}

func TestGraphService_Update_VersionConflict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	g, err := svc.Create(ctx, CreateGraphInput{Name: "g1", Schema: testSchema()})
	require.NoError(t, err)

	newName := "x"
	_, _, err = svc.Update(ctx, g.ID, UpdateGraphInput{CurrentVersion: "9.9.9", Name: &newName})
	assert.True(t, IsKind(err, ErrVersionConflict))
}

func TestGraphService_Delete_CascadesThreads(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	g, err := svc.Create(ctx, CreateGraphInput{Name: "g1", Schema: testSchema()})
	require.NoError(t, err)
	require.NoError(t, svc.threads.Create(ctx, &Thread{InternalID: "t1", GraphID: g.ID, Status: ThreadStatusRunning}))

	require.NoError(t, svc.Delete(ctx, g.ID))

	_, err = svc.FindByID(ctx, g.ID, "")
	assert.True(t, IsKind(err, ErrGraphNotFound))

	threads, err := svc.threads.GetAll(ctx, ThreadStoreFilter{GraphID: g.ID})
	require.NoError(t, err)
	assert.Empty(t, threads)
}
