package protocol

import (
	"encoding/json"
	"testing"

	"github.com/projectify/live/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestWireFormat(t *testing.T) {
	data, err := Encode(Subscribe(Resource{Type: ResourceTask, UUID: "task-1"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"subscribe","resource":"task","uuid":"task-1"}`, string(data))

	data, err = Encode(Unsubscribe(Resource{Type: ResourceWorkspace, UUID: "ws-1"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"unsubscribe","resource":"workspace","uuid":"ws-1"}`, string(data))
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Response
		wantErr bool
	}{
		{
			name:  "subscribed",
			input: `{"kind":"subscribed","resource":"task","uuid":"task-1"}`,
			want:  Response{Kind: KindSubscribed, Resource: ResourceTask, UUID: "task-1"},
		},
		{
			name:  "changed keeps raw content",
			input: `{"kind":"changed","resource":"project","uuid":"p-1","content":{"title":"new"}}`,
			want: Response{
				Kind:     KindChanged,
				Resource: ResourceProject,
				UUID:     "p-1",
				Content:  json.RawMessage(`{"title":"new"}`),
			},
		},
		{
			name:    "changed without content",
			input:   `{"kind":"changed","resource":"project","uuid":"p-1"}`,
			wantErr: true,
		},
		{
			name:    "unknown kind",
			input:   `{"kind":"patched","resource":"task","uuid":"task-1"}`,
			wantErr: true,
		},
		{
			name:    "unknown resource",
			input:   `{"kind":"gone","resource":"label","uuid":"l-1"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `hello`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResponse([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrCodeProtocolDecode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"action":"unsubscribe","resource":"workspace","uuid":"w"}`))
	require.NoError(t, err)
	assert.Equal(t, Resource{Type: ResourceWorkspace, UUID: "w"}, req.Target())

	_, err = DecodeRequest([]byte(`{"action":"watch","resource":"workspace","uuid":"w"}`))
	assert.Error(t, err)
}

func TestKindSets(t *testing.T) {
	assert.True(t, SubscribeResponseKinds.Contains(KindAlreadySubscribed))
	assert.False(t, SubscribeResponseKinds.Contains(KindChanged))
	assert.True(t, LiveKinds.Contains(KindGone))
	assert.Equal(t, "{changed,gone}", LiveKinds.String())
}

func TestParseResourceType(t *testing.T) {
	rt, err := ParseResourceType(" Task ")
	require.NoError(t, err)
	assert.Equal(t, ResourceTask, rt)

	_, err = ParseResourceType("label")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}
