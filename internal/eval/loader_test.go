package eval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuestions(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		yaml    bool
		want    int
		wantErr string
	}{
		{
			name: "json list",
			data: `[{"id":"q1","question":"a?","expected_answer":"b"},{"id":"q2","question":"c?","expected_answer":"d"}]`,
			want: 2,
		},
		{
			name: "json wrapped",
			data: `{"questions":[{"id":"q1","question":"a?","expected_answer":"b"}]}`,
			want: 1,
		},
		{
			name: "yaml list",
			data: "- id: q1\n  question: a?\n  expected_answer: b\n",
			yaml: true,
			want: 1,
		},
		{
			name: "yaml wrapped",
			data: "questions:\n  - id: q1\n    question: a?\n    expected_answer: b\n  - id: q2\n    question: c?\n    expected_answer: d\n",
			yaml: true,
			want: 2,
		},
		{
			name: "empty json list",
			data: `[]`,
			want: 0,
		},
		{
			name:    "missing expected answer",
			data:    `[{"id":"q1","question":"a?"}]`,
			wantErr: "expected_answer",
		},
		{
			name:    "duplicate id",
			data:    `[{"id":"q1","question":"a?","expected_answer":"b"},{"id":"q1","question":"c?","expected_answer":"d"}]`,
			wantErr: "duplicate",
		},
		{
			name:    "malformed json",
			data:    `[{"id":`,
			wantErr: "unexpected end",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuestions([]byte(tt.data), tt.yaml)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestSaveAndLoadQuestions(t *testing.T) {
	questions := []Question{
		{ID: "q1", Question: "Who owns the budget?", ExpectedAnswer: "Finance"},
		{ID: "q2", Question: "When is the offsite?", ExpectedAnswer: "May 3"},
	}

	for _, name := range []string{"questions.json", "questions.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, SaveQuestions(path, questions))

			loaded, err := LoadQuestions(path)
			require.NoError(t, err)
			assert.Equal(t, questions, loaded)

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temporary file left behind")
		})
	}
}

func TestSaveQuestionsRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"keep","question":"q","expected_answer":"a"}]`), 0o644))

	err := SaveQuestions(path, []Question{{ID: "q1", Question: "no answer"}})
	require.Error(t, err)

	loaded, err := LoadQuestions(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "keep", loaded[0].ID)
}

func TestLoadQuestionsMissingFile(t *testing.T) {
	_, err := LoadQuestions(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
