// Package retention decides which chats and messages survive a cleanup pass.
// Both selectors are pure: they copy their input before ranking it.
package retention

import (
	"sort"

	"github.com/iyunix/go-chatkeep/internal/domain"
)

// SelectChatsToPurge ranks chats by updated_at descending, ties broken by the
// higher id first, and returns every chat ranked beyond totalCap.
// A negative cap disables purging.
func SelectChatsToPurge(chats []domain.Chat, totalCap int) []domain.Chat {
	if totalCap < 0 || len(chats) <= totalCap {
		return []domain.Chat{}
	}

	ranked := make([]domain.Chat, len(chats))
	copy(ranked, chats)
	sort.SliceStable(ranked, func(i, j int) bool {
		if !ranked[i].UpdatedAt.Equal(ranked[j].UpdatedAt) {
			return ranked[i].UpdatedAt.After(ranked[j].UpdatedAt)
		}
		return ranked[i].ID > ranked[j].ID
	})

	purge := make([]domain.Chat, len(ranked)-totalCap)
	copy(purge, ranked[totalCap:])
	return purge
}

// SelectMessagesToPurge keeps the perChatCap most recent messages by created_at,
// ties broken by the higher id, and returns the rest.
// A negative cap disables purging.
func SelectMessagesToPurge(messages []domain.Message, perChatCap int) []domain.Message {
	if perChatCap < 0 || len(messages) <= perChatCap {
		return []domain.Message{}
	}

	ranked := SortNewestFirst(messages)
	purge := make([]domain.Message, len(ranked)-perChatCap)
	copy(purge, ranked[perChatCap:])
	return purge
}

// SortNewestFirst returns a copy of messages ordered by created_at descending, then id descending.
func SortNewestFirst(messages []domain.Message) []domain.Message {
	ranked := make([]domain.Message, len(messages))
	copy(ranked, messages)
	sort.SliceStable(ranked, func(i, j int) bool {
		if !ranked[i].CreatedAt.Equal(ranked[j].CreatedAt) {
			return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
		}
		return ranked[i].ID > ranked[j].ID
	})
	return ranked
}

// IDs collects message ids in input order.
func IDs(messages []domain.Message) []uint {
	ids := make([]uint, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return ids
}
