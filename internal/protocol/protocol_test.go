package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ceyewan/minichat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_EncodeDecode(t *testing.T) {
	ev, err := NewEvent(EventReceiveMessage, &MessageData{ID: "42", Content: "hi"})
	require.NoError(t, err)
	assert.NotZero(t, ev.Timestamp)

	raw, err := ev.Encode()
	require.NoError(t, err)

	decoded := &Event{}
	require.NoError(t, json.Unmarshal(raw, decoded))
	assert.Equal(t, EventReceiveMessage, decoded.Type)

	data := &MessageData{}
	require.NoError(t, json.Unmarshal(decoded.Data, data))
	assert.Equal(t, "42", data.ID)
	assert.Equal(t, "hi", data.Content)
}

func TestNewEvent_NilDataOmitted(t *testing.T) {
	ev, err := NewEvent(EventPong, nil)
	require.NoError(t, err)
	assert.Nil(t, ev.Data)

	raw, err := ev.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"data"`)
}

func TestFromModel_StringIDs(t *testing.T) {
	now := time.Now()
	m := &model.Message{
		ID:              1234567890123456789,
		SenderID:        "u1",
		SenderName:      "alice",
		RecipientID:     "u2",
		Type:            model.MessageTypeText,
		Content:         "hello",
		ReplyToID:       42,
		ForwardedFromID: 43,
		CreatedAt:       now,
	}

	data := FromModel(m)

	// int64 ID 以字符串传输，避免 JavaScript 精度丢失
	assert.Equal(t, "1234567890123456789", data.ID)
	assert.Equal(t, "42", data.ReplyToID)
	assert.Equal(t, "43", data.ForwardedFromID)
	assert.Equal(t, now.Unix(), data.Timestamp)

	// 零值引用不出现在线上表示中
	plain := FromModel(&model.Message{ID: 1, SenderID: "u1", RecipientID: "u2", Content: "x"})
	assert.Empty(t, plain.ReplyToID)
	assert.Empty(t, plain.ForwardedFromID)
}

func TestParseMessageID(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   int64
		wantOK bool
	}{
		{name: "valid", in: "12345", want: 12345, wantOK: true},
		{name: "empty", in: "", wantOK: false},
		{name: "not a number", in: "abc", wantOK: false},
		{name: "negative", in: "-5", wantOK: false},
		{name: "zero", in: "0", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ParseMessageID(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, id)
			}
		})
	}
}
