package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const messageColumns = "id, room_id, author_id, body, reply_to_id, mention_ids, attachments, delivery_state, created_at, deleted_at"

func (db *PgBroadchatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (id, username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, username, email, created_at, updated_at",
		uuid.NewString(),
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgBroadchatRepository) GetAccountById(accountId string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgBroadchatRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgBroadchatRepository) ListAccounts(params ListAccountsParams) ([]Account, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	if limit < 1 {
		limit = 20
	}

	rows, err := db.conn.Query(
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE ($1 = '' OR username ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%') "+
			"ORDER BY username LIMIT $2 OFFSET $3",
		params.Search,
		limit,
		(page-1)*limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Id, &a.Username, &a.EmailAddress, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

func (db *PgBroadchatRepository) CreateBroadcast(params CreateBroadcastParams) (Broadcast, error) {
	res := db.conn.QueryRow(
		"INSERT INTO broadcasts (id, title, description, visibility, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) "+
			"RETURNING id, title, description, visibility, owner_id, created_at, updated_at",
		params.Id,
		params.Title,
		params.Description,
		params.Visibility,
		params.OwnerId,
		time.Now().UTC(),
	)

	var b Broadcast
	err := res.Scan(
		&b.Id,
		&b.Title,
		&b.Description,
		&b.Visibility,
		&b.OwnerId,
		&b.CreatedAt,
		&b.UpdatedAt,
	)

	return b, err
}

func (db *PgBroadchatRepository) GetBroadcast(id string) (Broadcast, error) {
	row := db.conn.QueryRow(
		"SELECT id, title, description, visibility, owner_id, created_at, updated_at "+
			"FROM broadcasts WHERE id = $1 LIMIT 1",
		id,
	)

	var b Broadcast
	err := row.Scan(
		&b.Id,
		&b.Title,
		&b.Description,
		&b.Visibility,
		&b.OwnerId,
		&b.CreatedAt,
		&b.UpdatedAt,
	)

	return b, err
}

func (db *PgBroadchatRepository) ListBroadcasts() ([]Broadcast, error) {
	rows, err := db.conn.Query(
		"SELECT id, title, description, visibility, owner_id, created_at, updated_at " +
			"FROM broadcasts ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("list broadcasts: %w", err)
	}
	defer rows.Close()

	var broadcasts []Broadcast
	for rows.Next() {
		var b Broadcast
		if err := rows.Scan(&b.Id, &b.Title, &b.Description, &b.Visibility, &b.OwnerId, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		broadcasts = append(broadcasts, b)
	}

	return broadcasts, rows.Err()
}

func (db *PgBroadchatRepository) UpdateBroadcast(params UpdateBroadcastParams) (Broadcast, error) {
	res := db.conn.QueryRow(
		"UPDATE broadcasts SET title = $2, description = $3, visibility = $4, updated_at = $5 "+
			"WHERE id = $1 RETURNING id, title, description, visibility, owner_id, created_at, updated_at",
		params.Id,
		params.Title,
		params.Description,
		params.Visibility,
		time.Now().UTC(),
	)

	var b Broadcast
	err := res.Scan(
		&b.Id,
		&b.Title,
		&b.Description,
		&b.Visibility,
		&b.OwnerId,
		&b.CreatedAt,
		&b.UpdatedAt,
	)

	return b, err
}

func (db *PgBroadchatRepository) DeleteBroadcast(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM messages WHERE room_id = $1", id)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM broadcasts WHERE id = $1", id)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgBroadchatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	if params.Body == "" || params.RoomId == "" || params.AuthorId == "" {
		return Message{}, fmt.Errorf("%w: body, room id and author id are required", ErrValidation)
	}

	res := db.conn.QueryRow(
		"INSERT INTO messages (id, room_id, author_id, body, reply_to_id, mention_ids, attachments, delivery_state, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, 'sent', $8) RETURNING "+messageColumns,
		uuid.NewString(),
		params.RoomId,
		params.AuthorId,
		params.Body,
		newNullString(params.ReplyToId),
		pq.Array(params.MentionIds),
		pq.Array(params.Attachments),
		time.Now().UTC(),
	)

	return scanMessage(res)
}

func (db *PgBroadchatRepository) GetRoomMessages(roomId string) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE room_id = $1 AND deleted_at IS NULL ORDER BY created_at ASC",
		roomId,
	)
	if err != nil {
		return nil, fmt.Errorf("get room messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// GetLastMessages returns the newest n non-deleted messages in the room,
// ordered oldest-first so callers can render them chronologically.
func (db *PgBroadchatRepository) GetLastMessages(roomId string, n int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM ("+
			"SELECT "+messageColumns+" FROM messages "+
			"WHERE room_id = $1 AND deleted_at IS NULL "+
			"ORDER BY created_at DESC LIMIT $2"+
			") latest ORDER BY created_at ASC",
		roomId,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("get last messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (db *PgBroadchatRepository) GetMessageById(id string) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE id = $1 LIMIT 1",
		id,
	)

	return scanMessage(row)
}

func (db *PgBroadchatRepository) SoftDeleteMessage(id string) (Message, error) {
	res := db.conn.QueryRow(
		"UPDATE messages SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL "+
			"RETURNING "+messageColumns,
		id,
		time.Now().UTC(),
	)

	return scanMessage(res)
}

func (db *PgBroadchatRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	res := db.conn.QueryRow(
		"INSERT INTO notifications (id, type, message, reference_id, is_read, recipient_id, sender_id, created_at) "+
			"VALUES ($1, $2, $3, $4, false, $5, $6, $7) "+
			"RETURNING id, type, message, reference_id, is_read, recipient_id, sender_id, created_at",
		uuid.NewString(),
		params.Type,
		params.Message,
		newNullString(params.ReferenceId),
		params.RecipientId,
		params.SenderId,
		time.Now().UTC(),
	)

	return scanNotification(res)
}

func (db *PgBroadchatRepository) ListNotifications(recipientId string) ([]Notification, error) {
	rows, err := db.conn.Query(
		"SELECT id, type, message, reference_id, is_read, recipient_id, sender_id, created_at "+
			"FROM notifications WHERE recipient_id = $1 ORDER BY created_at DESC",
		recipientId,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (db *PgBroadchatRepository) MarkNotificationRead(id string) (Notification, error) {
	res := db.conn.QueryRow(
		"UPDATE notifications SET is_read = true WHERE id = $1 "+
			"RETURNING id, type, message, reference_id, is_read, recipient_id, sender_id, created_at",
		id,
	)

	return scanNotification(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		m           Message
		replyToId   sql.NullString
		mentionIds  pq.StringArray
		attachments pq.StringArray
		deletedAt   sql.NullTime
	)

	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.AuthorId,
		&m.Body,
		&replyToId,
		&mentionIds,
		&attachments,
		&m.DeliveryState,
		&m.CreatedAt,
		&deletedAt,
	)
	if err != nil {
		return Message{}, err
	}

	m.ReplyToId = replyToId.String
	m.MentionIds = mentionIds
	m.Attachments = attachments
	if deletedAt.Valid {
		t := deletedAt.Time
		m.DeletedAt = &t
	}

	return m, nil
}

func scanNotification(row rowScanner) (Notification, error) {
	var (
		n           Notification
		referenceId sql.NullString
	)

	err := row.Scan(
		&n.Id,
		&n.Type,
		&n.Message,
		&referenceId,
		&n.IsRead,
		&n.RecipientId,
		&n.SenderId,
		&n.CreatedAt,
	)
	if err != nil {
		return Notification{}, err
	}

	n.ReferenceId = referenceId.String
	return n, nil
}

func newNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
