package handlers

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	loggingpkg "github.com/drblury/mics/internal/runtime/logging"
	"github.com/drblury/mics/internal/runtime/message"
	metadatapkg "github.com/drblury/mics/internal/runtime/metadata"
)

type lookup struct {
	message.EventBase[string]
	Key string
}

type halt struct {
	message.BroadcastBase
}

func TestMessageContextBase_Get(t *testing.T) {
	metadata := metadatapkg.Metadata{
		"key1": "value1",
		"key2": "value2",
	}

	logger := loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := MessageContextBase{
		Metadata: metadata,
		Logger:   logger,
	}

	assert.Equal(t, "value1", ctx.Get("key1"))
	assert.Equal(t, "value2", ctx.Get("key2"))
	assert.Equal(t, "", ctx.Get("nonexistent"))
}

func TestMessageContextBase_CorrelationIDAndSender(t *testing.T) {
	tests := []struct {
		name       string
		metadata   metadatapkg.Metadata
		wantID     string
		wantSender string
	}{
		{
			name: "both present",
			metadata: metadatapkg.Metadata{
				metadatapkg.KeyCorrelationID: "correlation-123",
				metadatapkg.KeySender:        "ticker",
			},
			wantID:     "correlation-123",
			wantSender: "ticker",
		},
		{
			name:     "absent",
			metadata: metadatapkg.Metadata{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := MessageContextBase{Metadata: tt.metadata}
			assert.Equal(t, tt.wantID, ctx.CorrelationID())
			assert.Equal(t, tt.wantSender, ctx.Sender())
		})
	}
}

func TestMessageContextBase_CloneMetadata(t *testing.T) {
	original := metadatapkg.Metadata{
		"key1": "value1",
		"key2": "value2",
	}

	ctx := MessageContextBase{Metadata: original}
	cloned := ctx.CloneMetadata()

	assert.Equal(t, "value1", cloned["key1"])
	assert.Equal(t, "value2", cloned["key2"])

	cloned["key1"] = "modified"
	cloned["key3"] = "new"

	assert.Equal(t, "value1", ctx.Metadata["key1"])
	assert.Equal(t, "", ctx.Metadata["key3"])
}

func TestNewMessageContextBaseDefaults(t *testing.T) {
	env := message.Envelope{
		CorrelationID: "01J",
		Metadata:      metadatapkg.New(metadatapkg.KeyCorrelationID, "01J"),
	}

	base := NewMessageContextBase(nil, env, nil)
	assert.NotNil(t, base.Context)
	assert.NotNil(t, base.Logger)
	assert.Equal(t, "01J", base.CorrelationID())
}

func TestEventContextComplete(t *testing.T) {
	var got []string
	complete := func(v string) bool {
		got = append(got, v)
		return len(got) == 1
	}

	base := NewMessageContextBase(context.Background(), message.Envelope{}, nil)
	ctx := NewEventContext[lookup, string](base, lookup{Key: "k"}, complete)

	assert.Equal(t, "k", ctx.Event.Key)
	assert.True(t, ctx.Complete("first"))
	assert.False(t, ctx.Complete("second"))
	assert.Equal(t, []string{"first", "second"}, got)

	var empty EventContext[lookup, string]
	assert.False(t, empty.Complete("x"))
}

func TestBroadcastContextCarriesPayload(t *testing.T) {
	ctx := BroadcastContext[halt]{Broadcast: halt{}}
	var _ message.Broadcast = ctx.Broadcast
}
