package repositories

import (
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Record_And_Get_Sorted_Messages(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(newTestDB(t), slog.Default(), nil)
	room := 1
	content := "this message will self destruct in 5 seconds"
	at := time.Now().UTC()
	diskMessages := []DiskMessage{
		{uuid.New(), room, "Alice", content, at},
		{uuid.New(), room, "Bob", content, at.Add(1 * time.Minute)},
		{uuid.New(), room, "Clara", content, at.Add(2 * time.Minute)},
	}

	sortedDiskMessages := make([]DiskMessage, len(diskMessages))
	copy(sortedDiskMessages, diskMessages)
	sort.Slice(sortedDiskMessages, func(i, j int) bool {
		return sortedDiskMessages[i].At.After(sortedDiskMessages[j].At)
	})
	for _, dm := range diskMessages {
		req.NoError(repository.StoreMessage(dm))
	}

	// When fetching messages
	fetchedMessages, _, err := repository.GetMessages(room, nil)
	req.NoError(err)

	// Then the messages are sorted newest first
	req.Len(fetchedMessages, len(sortedDiskMessages))
	req.Equal(sortedDiskMessages, fetchedMessages)
}

func Test_Record_Multiple_Message_And_Limit(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(newTestDB(t), slog.Default(), &limit)
	room := 1
	at := time.Now().UTC()
	diskMessages := []DiskMessage{
		{uuid.New(), room, "Alice", "first", at},
		{uuid.New(), room, "Bob", "second", at.Add(1 * time.Minute)},
		{uuid.New(), room, "Clara", "third", at.Add(2 * time.Minute)},
	}
	for _, dm := range diskMessages {
		req.NoError(repository.StoreMessage(dm))
	}

	// When fetching with a limit lower than the stored count
	fetchedMessages, cursor, err := repository.GetMessages(room, nil)
	req.NoError(err)

	// Then only the two most recent messages come back, with a cursor
	req.Len(fetchedMessages, limit)
	req.Equal("Clara", fetchedMessages[0].Author)
	req.Equal("Bob", fetchedMessages[1].Author)
	req.NotNil(cursor)

	// And the cursor fetches the remaining page
	nextPage, _, err := repository.GetMessages(room, cursor)
	req.NoError(err)
	req.Len(nextPage, 1)
	req.Equal("Alice", nextPage[0].Author)
}
