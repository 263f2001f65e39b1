package domain

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultOwner addresses conversations when multi-tenancy is disabled.
const DefaultOwner = "default"

// ErrInvalidConversationID is returned for ids that cannot be stored safely.
var ErrInvalidConversationID = errors.New("invalid conversation id")

// Ids never start with a dot; the file store reserves dot names for temp files.
var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_:-][A-Za-z0-9._:-]{0,127}$`)

// ConversationKey addresses one conversation log.
type ConversationKey struct {
	Owner string
	ID    string
}

// NewConversationKey validates id and fills in the default owner.
// An empty id is replaced with a generated one.
func NewConversationKey(owner, id string) (ConversationKey, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		owner = DefaultOwner
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	if !ValidConversationID(id) || !ValidConversationID(owner) {
		return ConversationKey{}, ErrInvalidConversationID
	}
	return ConversationKey{Owner: owner, ID: id}, nil
}

// ValidConversationID reports whether id is usable as a path or row key.
func ValidConversationID(id string) bool {
	return conversationIDPattern.MatchString(id)
}

// String renders the key as owner/id.
func (k ConversationKey) String() string {
	return k.Owner + "/" + k.ID
}
