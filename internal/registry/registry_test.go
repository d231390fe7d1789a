package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/taskpath/internal/model"
)

func TestParseTaskList(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		kind    model.IDKind
		want    []model.TaskID
		wantErr error
	}{
		{
			name:  "integers with trailing newline",
			input: "1,2,3,4\n",
			kind:  model.IDKindInt,
			want:  []model.TaskID{"1", "2", "3", "4"},
		},
		{
			name:  "whitespace around tokens",
			input: " 10 , 20,30 ",
			kind:  model.IDKindInt,
			want:  []model.TaskID{"10", "20", "30"},
		},
		{
			name:  "leading blank lines skipped, later lines ignored",
			input: "\n\n5,6\n7,8\n",
			kind:  model.IDKindInt,
			want:  []model.TaskID{"5", "6"},
		},
		{
			name:  "duplicates keep first position",
			input: "3,1,3,2,1",
			kind:  model.IDKindInt,
			want:  []model.TaskID{"3", "1", "2"},
		},
		{
			name:  "string ids",
			input: "fetch,clean,label",
			kind:  model.IDKindString,
			want:  []model.TaskID{"fetch", "clean", "label"},
		},
		{
			name:    "empty input",
			input:   "",
			kind:    model.IDKindInt,
			wantErr: model.ErrConfiguration,
		},
		{
			name:    "blank lines only",
			input:   "\n  \n",
			kind:    model.IDKindInt,
			wantErr: model.ErrConfiguration,
		},
		{
			name:    "trailing delimiter",
			input:   "1,2,",
			kind:    model.IDKindInt,
			wantErr: model.ErrFormat,
		},
		{
			name:    "non integer token",
			input:   "1,two,3",
			kind:    model.IDKindInt,
			wantErr: model.ErrFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := ParseTaskList(strings.NewReader(tt.input), ParseOptions{Source: "task_ids.txt", Kind: tt.kind})
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
				assert.Nil(t, reg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, reg.IDs())
			assert.Equal(t, len(tt.want), reg.Len())
		})
	}
}

func TestParseTaskList_FormatErrorNamesToken(t *testing.T) {
	_, err := ParseTaskList(strings.NewReader("1,x9,3"), ParseOptions{Source: "task_ids.txt"})

	var fe *model.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "x9", fe.Token)
	assert.Equal(t, "task_ids.txt", fe.Source)
	assert.Equal(t, 1, fe.Line)
}

func TestParseTaskList_CustomDelimiter(t *testing.T) {
	reg, err := ParseTaskList(strings.NewReader("1;2;3"), ParseOptions{Delimiter: ";"})
	require.NoError(t, err)
	assert.Equal(t, []model.TaskID{"1", "2", "3"}, reg.IDs())
}

func TestNew_Empty(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestRegistry_Contains(t *testing.T) {
	reg, err := New([]model.TaskID{"1", "2"})
	require.NoError(t, err)

	assert.True(t, reg.Contains("1"))
	assert.False(t, reg.Contains("3"))

	ids := reg.IDs()
	ids[0] = "mutated"
	assert.True(t, reg.Contains("1"), "IDs must return a copy")
}

func TestState_Lifecycle(t *testing.T) {
	reg, err := New([]model.TaskID{"1", "2", "3"})
	require.NoError(t, err)

	state := reg.NewState()
	assert.Empty(t, state.Completed(), "fresh state must be all incomplete")
	assert.Same(t, reg, state.Registry())

	assert.True(t, state.MarkComplete("3"))
	assert.True(t, state.MarkComplete("1"))
	assert.False(t, state.MarkComplete("99"))

	assert.True(t, state.IsComplete("1"))
	assert.False(t, state.IsComplete("2"))
	assert.False(t, state.IsComplete("99"))
	assert.Equal(t, []model.TaskID{"1", "3"}, state.Completed())

	state.Reset()
	assert.Empty(t, state.Completed())
}

func TestState_Independent(t *testing.T) {
	reg, err := New([]model.TaskID{"1", "2"})
	require.NoError(t, err)

	a := reg.NewState()
	b := reg.NewState()
	a.MarkComplete("1")

	assert.False(t, b.IsComplete("1"))
}
