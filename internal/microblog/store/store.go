// Package store provides the microblog demo's persistence on BadgerDB, an
// embedded key-value store. It keeps users, posts and login sessions; an
// in-memory mode backs the tests.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Key layout. Post keys embed a zero-padded creation timestamp so a
// reverse iteration yields newest-first without a separate index.
const (
	userPrefix     = "user:"     // user:<id> -> User
	usernamePrefix = "username:" // username:<lower name> -> user id
	postPrefix     = "post:"     // post:<padded unixnano>:<id> -> Post
	userPostPrefix = "userpost:" // userpost:<user id>:<padded unixnano>:<id> -> post key
	sessionPrefix  = "session:"  // session:<token> -> user id
)

var (
	// ErrNotFound is returned when a user, post or session does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrUsernameTaken is returned by CreateUser for duplicate usernames.
	ErrUsernameTaken = errors.New("store: username already taken")

	// ErrInvalidCredentials is returned by Authenticate when the username
	// or password is wrong. Callers must not reveal which one.
	ErrInvalidCredentials = errors.New("store: invalid credentials")
)

// MaxPostLength is the longest allowed post content, in runes.
const MaxPostLength = 280

// User is a registered account. PasswordHash never leaves the store.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Post is one short message on the timeline.
type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Config holds configuration for opening a Store.
type Config struct {
	// Path is the directory for the database files. Ignored when InMemory
	// is true.
	Path string

	// InMemory keeps all data in RAM; nothing survives Close.
	InMemory bool

	// Logger receives BadgerDB's internal logging. If nil, that logging
	// is disabled.
	Logger *slog.Logger
}

// Store is the microblog's persistence layer. Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).WithInMemory(cfg.InMemory)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", cfg.Path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. The Store is unusable afterwards.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser registers a new account. The password is stored as a bcrypt
// hash. Usernames are unique case-insensitively.
func (s *Store) CreateUser(username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, errors.New("store: username and password required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}

	user := User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	nameKey := []byte(usernamePrefix + strings.ToLower(username))
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(nameKey); err == nil {
			return ErrUsernameTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, []byte(userPrefix+user.ID), user); err != nil {
			return err
		}
		return txn.Set(nameKey, []byte(user.ID))
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies a username/password pair.
func (s *Store) Authenticate(username, password string) (User, error) {
	user, err := s.UserByName(username)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UserByName looks up an account by username, case-insensitively.
func (s *Store) UserByName(username string) (User, error) {
	var user User
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := getBytes(txn, []byte(usernamePrefix+strings.ToLower(strings.TrimSpace(username))))
		if err != nil {
			return err
		}
		return getJSON(txn, []byte(userPrefix+string(id)), &user)
	})
	return user, err
}

// UserByID looks up an account by id.
func (s *Store) UserByID(id string) (User, error) {
	var user User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(userPrefix+id), &user)
	})
	return user, err
}

// CreatePost appends a post to the author's timeline.
func (s *Store) CreatePost(userID, content string) (Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Post{}, errors.New("store: post content required")
	}
	if len([]rune(content)) > MaxPostLength {
		return Post{}, fmt.Errorf("store: post exceeds %d characters", MaxPostLength)
	}

	post := Post{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	key := postKey(post)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(userPrefix + userID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := setJSON(txn, key, post); err != nil {
			return err
		}
		indexKey := fmt.Sprintf("%s%s:%020d:%s", userPostPrefix, post.UserID, post.CreatedAt.UnixNano(), post.ID)
		return txn.Set([]byte(indexKey), key)
	})
	if err != nil {
		return Post{}, err
	}
	return post, nil
}

// RecentPosts returns up to limit posts, newest first.
func (s *Store) RecentPosts(limit int) ([]Post, error) {
	var posts []Post
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(postPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(postPrefix + "\xff")); it.Valid() && len(posts) < limit; it.Next() {
			var post Post
			if err := valueJSON(it.Item(), &post); err != nil {
				return err
			}
			posts = append(posts, post)
		}
		return nil
	})
	return posts, err
}

// PostsByUser returns up to limit of one author's posts, newest first.
func (s *Store) PostsByUser(userID string, limit int) ([]Post, error) {
	var posts []Post
	prefix := userPostPrefix + userID + ":"
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix + "\xff")); it.Valid() && len(posts) < limit; it.Next() {
			ref, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var post Post
			if err := getJSON(txn, ref, &post); err != nil {
				return err
			}
			posts = append(posts, post)
		}
		return nil
	})
	return posts, err
}

// CreateSession starts a login session and returns its opaque token.
func (s *Store) CreateSession(userID string) (string, error) {
	token := uuid.NewString()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sessionPrefix+token), []byte(userID))
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// UserBySession resolves a session token to its account.
func (s *Store) UserBySession(token string) (User, error) {
	var user User
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := getBytes(txn, []byte(sessionPrefix+token))
		if err != nil {
			return err
		}
		return getJSON(txn, []byte(userPrefix+string(id)), &user)
	})
	return user, err
}

// DeleteSession ends a session. Deleting an unknown token is not an error.
func (s *Store) DeleteSession(token string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(sessionPrefix + token))
	})
}

func postKey(post Post) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", postPrefix, post.CreatedAt.UnixNano(), post.ID))
}

func getBytes(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := getBytes(txn, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func valueJSON(item *badger.Item, v any) error {
	return item.Value(func(data []byte) error {
		return json.Unmarshal(data, v)
	})
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
