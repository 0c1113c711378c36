package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCanAdvance(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"sent to delivered", StatusSent, StatusDelivered, true},
		{"sent to read skips delivered", StatusSent, StatusRead, true},
		{"delivered to read", StatusDelivered, StatusRead, true},
		{"delivered back to sent", StatusDelivered, StatusSent, false},
		{"read back to delivered", StatusRead, StatusDelivered, false},
		{"read back to sent", StatusRead, StatusSent, false},
		{"same status", StatusDelivered, StatusDelivered, false},
		{"unknown from", "pending", StatusRead, false},
		{"unknown to", StatusSent, "archived", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanAdvance(tc.from, tc.to))
		})
	}
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusSent))
	assert.True(t, ValidStatus(StatusDelivered))
	assert.True(t, ValidStatus(StatusRead))
	assert.False(t, ValidStatus(""))
	assert.False(t, ValidStatus("seen"))
}

func TestValidContentType(t *testing.T) {
	assert.True(t, ValidContentType("text"))
	assert.True(t, ValidContentType("image"))
	assert.True(t, ValidContentType("file"))
	assert.False(t, ValidContentType("video"))
	assert.False(t, ValidContentType(""))
}

func TestPeerKey(t *testing.T) {
	// 参与者顺序无关
	assert.Equal(t, "3_7", PeerKey(3, 7))
	assert.Equal(t, "3_7", PeerKey(7, 3))
	assert.Equal(t, "42_42", PeerKey(42, 42))
}

func TestConversationPeer(t *testing.T) {
	conv := &Conversation{Participants: []uint64{11, 29}}

	assert.Equal(t, uint64(29), conv.Peer(11))
	assert.Equal(t, uint64(11), conv.Peer(29))
	assert.True(t, conv.HasParticipant(11))
	assert.True(t, conv.HasParticipant(29))
	assert.False(t, conv.HasParticipant(99))
}

func TestToArchived(t *testing.T) {
	archivedAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	msg := &Message{
		ID:             primitive.NewObjectID(),
		ConversationID: primitive.NewObjectID(),
		SenderID:       1,
		ReceiverID:     2,
		MessageContent: MessageContent{Type: "image", Content: "https://files.example.com/a.png"},
		Metadata:       &Metadata{Filename: "a.png", SizeBytes: 1024, Format: "image/png", StorageID: "obj-1"},
		MessageStatus:  StatusRead,
		Timestamp:      archivedAt.Add(-40 * 24 * time.Hour),
	}

	archived := msg.ToArchived(archivedAt)

	assert.Equal(t, msg.ID, archived.OriginalMessageID)
	assert.Equal(t, msg.ConversationID, archived.ConversationID)
	assert.Equal(t, msg.SenderID, archived.SenderID)
	assert.Equal(t, msg.ReceiverID, archived.ReceiverID)
	assert.Equal(t, msg.MessageContent, archived.MessageContent)
	assert.Equal(t, msg.Metadata, archived.Metadata)
	assert.Equal(t, msg.MessageStatus, archived.MessageStatus)
	assert.Equal(t, msg.Timestamp, archived.Timestamp)
	assert.Equal(t, archivedAt, archived.ArchivedAt)
	assert.True(t, archived.ID.IsZero())
}

func TestParseObjectID(t *testing.T) {
	id := primitive.NewObjectID()

	parsed, err := ParseObjectID(id.Hex())
	assert.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseObjectID("not-an-object-id")
	assert.Error(t, err)
}
