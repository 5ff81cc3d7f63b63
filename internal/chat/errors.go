package chat

import "errors"

var (
	// ErrNotParticipant covers both a conversation that does not exist
	// and one the caller does not belong to. The two cases are
	// deliberately indistinguishable so non-participants cannot probe
	// for a conversation's existence.
	ErrNotParticipant = errors.New("conversation not found")

	// ErrConversationExists is returned by the store when the unique
	// pair constraint rejects an insert; callers re-fetch instead.
	ErrConversationExists = errors.New("conversation already exists")

	ErrSelfConversation = errors.New("cannot start a conversation with yourself")

	ErrEmptyContent = errors.New("message content cannot be empty")
)
