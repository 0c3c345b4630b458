package tasks

import (
	"testing"

	"github.com/opd-ai/saltyrtc/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedTask struct {
	name  string
	types []string
}

func (n *namedTask) Name() string { return n.name }
func (n *namedTask) SupportedMessageTypes() []string { return n.types }
func (n *namedTask) Data() map[string]interface{} { return nil }
func (n *namedTask) Init(Channel, map[string]interface{}) error { return nil }
func (n *namedTask) OnPeerHandshakeDone() {}
func (n *namedTask) OnTaskMessage(map[string]interface{}) error { return nil }
func (n *namedTask) Close(protocol.CloseCode) {}

func taskList(names ...string) []Task {
	out := make([]Task, len(names))
	for i, name := range names {
		out[i] = &namedTask{name: name}
	}
	return out
}

func TestChooseCommonTask(t *testing.T) {
	ours := taskList("A", "B", "C")

	cases := []struct {
		name   string
		ours   []Task
		theirs []string
		want   string
	}{
		{"our order wins", ours, []string{"C", "B"}, "B"},
		{"first of ours", ours, []string{"C", "B", "A"}, "A"},
		{"only last", ours, []string{"C"}, "C"},
		{"no match", taskList("A", "B"), []string{"Z"}, ""},
		{"peer offers nothing", ours, nil, ""},
		{"we offer nothing", nil, []string{"A"}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ChooseCommonTask(tc.ours, tc.theirs)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.Name())
		})
	}
}

func TestChooseCommonTaskIgnoresPeerOrder(t *testing.T) {
	ours := taskList("X", "Y")
	a := ChooseCommonTask(ours, []string{"Y", "X"})
	b := ChooseCommonTask(ours, []string{"X", "Y"})
	require.NotNil(t, a)
	assert.Same(t, a, b)
	assert.Same(t, ours[0], a)
}

func TestTaskNames(t *testing.T) {
	names, err := TaskNames(taskList("one", "two"))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, names)

	_, err = TaskNames(taskList("one", "two", "one"))
	assert.ErrorIs(t, err, protocol.ErrArgument)

	names, err = TaskNames(nil)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(taskList("a")))
	assert.ErrorIs(t, Validate(nil), protocol.ErrArgument)
	assert.ErrorIs(t, Validate(taskList("a", "a")), protocol.ErrArgument)
	assert.ErrorIs(t, Validate(taskList("")), protocol.ErrArgument)
	assert.ErrorIs(t, Validate([]Task{&namedTask{name: "x", types: []string{"close"}}}), protocol.ErrArgument)
}

func TestFindAndSupports(t *testing.T) {
	list := []Task{&namedTask{name: "a", types: []string{"ping"}}, &namedTask{name: "b"}}
	assert.Same(t, list[1], Find(list, "b"))
	assert.Nil(t, Find(list, "c"))

	assert.True(t, Supports(list[0], "ping"))
	assert.False(t, Supports(list[1], "ping"))
	assert.False(t, Supports(nil, "ping"))
}
