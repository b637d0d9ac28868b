package core

import (
	"context"
	"io"

	"github.com/markdave123-py/samurai-chat/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/SQLite so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// CreateConversation inserts the conversation and its owner link in one transaction.
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversationOwners(ctx context.Context, conversationID string) ([]models.ConversationOwner, error)

	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	CreateUserDataFile(ctx context.Context, file *models.UserDataFile) error
	ListUserDataFiles(ctx context.Context, userID string) ([]models.UserDataFile, error)
	GetUserDataFile(ctx context.Context, userID, filename string) (*models.UserDataFile, error)
	DeleteUserDataFile(ctx context.Context, userID, filename string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
}

// ResponseMirror keeps a single overwrite-only copy of the latest engine reply.
type ResponseMirror interface {
	WriteLatest(ctx context.Context, text string) error
}
