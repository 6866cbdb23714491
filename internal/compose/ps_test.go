package compose

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/compose-backup/internal/runner"
)

func TestParseProcesses(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []Process
	}{
		{
			name: "array output (older compose)",
			data: `[{"Name":"shop-db-1","Service":"db"},{"Name":"shop-web-1","Service":"web"}]`,
			want: []Process{{Service: "db", Name: "shop-db-1"}, {Service: "web", Name: "shop-web-1"}},
		},
		{
			name: "newline-delimited output (newer compose)",
			data: "{\"Name\":\"shop-db-1\",\"Service\":\"db\"}\n{\"Name\":\"shop-db-2\",\"Service\":\"db\"}\n",
			want: []Process{{Service: "db", Name: "shop-db-1"}, {Service: "db", Name: "shop-db-2"}},
		},
		{
			name: "lowercase keys",
			data: `[{"name":"shop-db-1","service":"db"}]`,
			want: []Process{{Service: "db", Name: "shop-db-1"}},
		},
		{
			name: "empty output",
			data: "  \n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProcesses([]byte(tt.data))
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseProcesses_Malformed(t *testing.T) {
	_, err := ParseProcesses([]byte(`[{"Name":`))
	assert.Error(t, err)

	_, err = ParseProcesses([]byte("{\"Name\":\"a\"}\nnot json\n"))
	assert.Error(t, err)
}

// TestInspector_Processes verifies that failures degrade to "nothing found".
func TestInspector_Processes(t *testing.T) {
	args := []string{"compose", "-f", "stack.yml", "ps", "--format", "json"}

	fake := runner.NewFake().OnOutput(`[{"Name":"shop-db-1","Service":"db"}]`, "docker", args...)
	procs := NewInspector(fake).Processes(context.Background(), "stack.yml")
	assert.Equal(t, []Process{{Service: "db", Name: "shop-db-1"}}, procs)

	fake = runner.NewFake().OnFailure("docker", args...)
	assert.Nil(t, NewInspector(fake).Processes(context.Background(), "stack.yml"))

	fake = runner.NewFake().OnOutput("garbage", "docker", args...)
	assert.Nil(t, NewInspector(fake).Processes(context.Background(), "stack.yml"))
}

func TestParsePSLines(t *testing.T) {
	data := `{"ID":"a1","Names":"shop-db-1","Labels":"com.docker.compose.project=shop,com.docker.compose.service=db"}
this line is not json
{"ID":"b2","Names":"standalone","Labels":""}
`
	got := ParsePSLines([]byte(data))
	require.Len(t, got, 2)

	assert.Equal(t, "a1", got[0].ContainerID)
	assert.Equal(t, "shop-db-1", got[0].ContainerName)
	assert.Equal(t, "db", got[0].Labels[LabelService])
	assert.Equal(t, "shop", got[0].Labels[LabelProject])

	assert.Equal(t, "standalone", got[1].ContainerName)
	assert.Empty(t, got[1].Labels)
}

func TestPSLister(t *testing.T) {
	fake := runner.NewFake().
		OnOutput(`{"Names":"shop-db-1","Labels":"com.docker.compose.service=db"}`, "docker", "ps", "--format", "{{json .}}")

	got, err := NewPSLister(fake).RunningContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "shop-db-1", got[0].ContainerName)

	_, err = NewPSLister(runner.NewFake()).RunningContainers(context.Background())
	assert.Error(t, err)
}

func TestParseLabelString(t *testing.T) {
	labels := ParseLabelString("a=1, b=2,flag,c=x=y,")
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "flag": "", "c": "x=y"}, labels)

	assert.Empty(t, ParseLabelString(""))
	assert.Empty(t, ParseLabelString("   "))
}
