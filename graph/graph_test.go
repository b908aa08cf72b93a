package graph

import (
	"context"
	"sort"
	"testing"

	"github.com/cznic/mathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sand8080/gantry/task"
)

func doNothing(ctx context.Context) (int, error) {
	return 0, nil
}

func noopTask(id string, deps ...string) *task.Task {
	return task.New(task.Spec{ID: id, DependsOn: deps}, task.HandlerFunc(doNothing))
}

func TestGraphAdd(t *testing.T) {
	g := New("wf", "")
	require.NoError(t, g.Add(noopTask("extract")))
	require.NoError(t, g.Add(noopTask("load", "extract")))

	assert.Equal(t, 2, g.Len())
	tsk, ok := g.Task("extract")
	require.True(t, ok)
	assert.Equal(t, "extract", tsk.ID)

	_, ok = g.Task("missing")
	assert.False(t, ok)

	ids := make([]string, 0, 2)
	for _, tsk := range g.Tasks() {
		ids = append(ids, tsk.ID)
	}
	assert.Equal(t, []string{"extract", "load"}, ids)
}

func TestGraphAddDuplicate(t *testing.T) {
	g := New("wf", "")
	require.NoError(t, g.Add(noopTask("extract")))

	err := g.Add(noopTask("extract"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateTask)
	assert.Contains(t, err.Error(), "extract")
	assert.Equal(t, 1, g.Len())
}

func TestGraphValidateUnknownDependency(t *testing.T) {
	g := New("wf", "")
	require.NoError(t, g.Add(noopTask("load", "extract")))

	err := g.Validate()
	var unknown *UnknownDependencyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "load", unknown.TaskID)
	assert.Equal(t, "extract", unknown.DependencyID)
}

func TestGraphValidateCycles(t *testing.T) {
	cases := []struct {
		name  string
		specs []task.Spec
		cycle bool
	}{
		{
			name:  "self dependency",
			specs: []task.Spec{{ID: "a", DependsOn: []string{"a"}}},
			cycle: true,
		},
		{
			name: "two task cycle",
			specs: []task.Spec{
				{ID: "a", DependsOn: []string{"b"}},
				{ID: "b", DependsOn: []string{"a"}},
			},
			cycle: true,
		},
		{
			name: "cycle behind a chain",
			specs: []task.Spec{
				{ID: "a"},
				{ID: "b", DependsOn: []string{"a", "d"}},
				{ID: "c", DependsOn: []string{"b"}},
				{ID: "d", DependsOn: []string{"c"}},
			},
			cycle: true,
		},
		{
			name: "diamond",
			specs: []task.Spec{
				{ID: "a"},
				{ID: "b", DependsOn: []string{"a"}},
				{ID: "c", DependsOn: []string{"a"}},
				{ID: "d", DependsOn: []string{"b", "c"}},
			},
			cycle: false,
		},
		{
			name: "two independent chains",
			specs: []task.Spec{
				{ID: "a"},
				{ID: "b", DependsOn: []string{"a"}},
				{ID: "x"},
				{ID: "y", DependsOn: []string{"x"}},
			},
			cycle: false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			g := New(c.name, "")
			for _, s := range c.specs {
				require.NoError(t, g.Add(task.New(s, task.HandlerFunc(doNothing))))
			}
			err := g.Validate()
			if !c.cycle {
				assert.NoError(t, err)
				return
			}
			var cyc *CycleError
			require.ErrorAs(t, err, &cyc)
			assert.GreaterOrEqual(t, len(cyc.Cycle), 2)
			assert.Equal(t, cyc.Cycle[0], cyc.Cycle[len(cyc.Cycle)-1])
		})
	}
}

func TestGraphLayers(t *testing.T) {
	g := New("wf", "")
	require.NoError(t, g.Add(noopTask("a")))
	require.NoError(t, g.Add(noopTask("b", "a")))
	require.NoError(t, g.Add(noopTask("c", "a")))
	require.NoError(t, g.Add(noopTask("d", "b", "c")))
	require.NoError(t, g.Add(noopTask("e", "b")))
	require.NoError(t, g.Add(noopTask("standalone")))

	layers, err := g.Layers()
	require.NoError(t, err)
	require.Len(t, layers, 3)
	assert.ElementsMatch(t, []string{"a", "standalone"}, layers[0])
	assert.ElementsMatch(t, []string{"b", "c"}, layers[1])
	assert.ElementsMatch(t, []string{"d", "e"}, layers[2])

	assertLayerInvariants(t, g, layers)
}

// assertLayerInvariants checks that every task sits strictly deeper than
// all of its dependencies and that no two tasks of one layer depend on
// each other.
func assertLayerInvariants(t *testing.T, g *Graph, layers [][]string) {
	t.Helper()
	depth := make(map[string]int)
	for i, layer := range layers {
		for _, id := range layer {
			depth[id] = i
		}
	}
	for _, tsk := range g.Tasks() {
		for _, dep := range tsk.DependsOn {
			assert.Greater(t, depth[tsk.ID], depth[dep],
				"task %q must be deeper than dependency %q", tsk.ID, dep)
		}
	}
}

func TestGraphLayersCycle(t *testing.T) {
	g := New("wf", "")
	require.NoError(t, g.Add(noopTask("a", "b")))
	require.NoError(t, g.Add(noopTask("b", "a")))

	_, err := g.Layers()
	var cyc *CycleError
	require.ErrorAs(t, err, &cyc)
}

func TestGraphAddTaskInDifferentOrder(t *testing.T) {
	specs := map[string]task.Spec{
		"t1": {ID: "t1"},
		"t2": {ID: "t2", DependsOn: []string{"t1"}},
		"t3": {ID: "t3", DependsOn: []string{"t1"}},
		"t4": {ID: "t4", DependsOn: []string{"t3", "t2"}},
		"t5": {ID: "t5", DependsOn: []string{"t3"}},
	}
	wantLayers := [][]string{{"t1"}, {"t2", "t3"}, {"t4", "t5"}}

	// Checking that any insertion order produces the same valid layering.
	taskIDs := sort.StringSlice{"t1", "t2", "t3", "t4", "t5"}
	mathutil.PermutationFirst(taskIDs)
	hasNext := true
	for hasNext {
		g := New("perm", "")
		for _, id := range taskIDs {
			require.NoError(t, g.Add(task.New(specs[id], task.HandlerFunc(doNothing))))
		}
		require.NoError(t, g.Validate())

		layers, err := g.Layers()
		require.NoError(t, err)
		require.Len(t, layers, len(wantLayers), "insertion order %v", taskIDs)
		for i := range wantLayers {
			assert.ElementsMatch(t, wantLayers[i], layers[i], "insertion order %v", taskIDs)
		}

		hasNext = mathutil.PermutationNext(taskIDs)
	}
}
