package users

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"playlog/models"
	"playlog/utils"
)

var (
	ErrStorageDirRequired = errors.New("storage directory not provided")
	ErrNameRequired       = errors.New("name is required")
	ErrUserNotFound       = errors.New("user not found")
	ErrPinRequired        = errors.New("PIN is required")
	ErrPinInvalid         = errors.New("invalid PIN")
	ErrPinTooShort        = errors.New("PIN must be at least 4 characters")
	ErrLastUser           = errors.New("cannot delete the last user")
)

// storedUser is the on-disk form; unlike models.User it keeps the PIN hash.
type storedUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	PhotoURL  string    `json:"photoUrl,omitempty"`
	PinHash   string    `json:"pinHash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u storedUser) model() models.User {
	return models.User{
		ID:        u.ID,
		Name:      u.Name,
		Color:     u.Color,
		PhotoURL:  u.PhotoURL,
		PinHash:   u.PinHash,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toStored(u models.User) storedUser {
	return storedUser{
		ID:        u.ID,
		Name:      u.Name,
		Color:     u.Color,
		PhotoURL:  u.PhotoURL,
		PinHash:   u.PinHash,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Service manages persistence of playlog profiles, the identities that own collections.
type Service struct {
	mu    sync.RWMutex
	path  string
	users map[string]models.User

	// initialPin is set only when the default profile was created by this process.
	initialPin string
}

// NewService creates a users service storing data inside the provided directory.
func NewService(storageDir string) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create users dir: %w", err)
	}

	svc := &Service{
		path:  filepath.Join(storageDir, "users.json"),
		users: make(map[string]models.User),
	}

	if err := svc.load(); err != nil {
		return nil, err
	}

	if err := svc.ensureDefaultUser(); err != nil {
		return nil, err
	}

	return svc, nil
}

// InitialPin returns the PIN generated for the default profile on first start.
func (s *Service) InitialPin() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialPin
}

// List returns all users sorted by creation time, then name.
func (s *Service) List() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

// Exists reports whether a user with the provided ID is registered.
func (s *Service) Exists(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Get returns the user with the given ID if present.
func (s *Service) Get(id string) (models.User, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.User{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	return user, ok
}

// Create registers a new user with the provided name.
func (s *Service) Create(name string) (models.User, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return models.User{}, ErrNameRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createLocked(trimmed, "")
}

// Rename updates the user's name.
func (s *Service) Rename(id, name string) (models.User, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return models.User{}, ErrNameRequired
	}
	return s.mutate(id, func(user *models.User) error {
		user.Name = trimmed
		return nil
	})
}

// SetPhotoURL records the durable URL of the user's profile photo.
func (s *Service) SetPhotoURL(id, url string) (models.User, error) {
	return s.mutate(id, func(user *models.User) error {
		user.PhotoURL = strings.TrimSpace(url)
		return nil
	})
}

// SetPin sets or updates the user's PIN.
func (s *Service) SetPin(id, pin string) (models.User, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return models.User{}, ErrPinRequired
	}
	if len(pin) < 4 {
		return models.User{}, ErrPinTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash PIN: %w", err)
	}

	return s.mutate(id, func(user *models.User) error {
		user.PinHash = string(hash)
		return nil
	})
}

// VerifyPin checks the provided PIN against the stored hash.
// A profile without a PIN accepts any value.
func (s *Service) VerifyPin(id, pin string) error {
	user, ok := s.Get(id)
	if !ok {
		return ErrUserNotFound
	}
	if user.PinHash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PinHash), []byte(strings.TrimSpace(pin))); err != nil {
		return ErrPinInvalid
	}
	return nil
}

// Delete removes a user by ID. The last remaining user cannot be deleted.
func (s *Service) Delete(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrUserNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return ErrUserNotFound
	}
	if len(s.users) <= 1 {
		return ErrLastUser
	}

	delete(s.users, id)
	return s.saveLocked()
}

func (s *Service) mutate(id string, fn func(*models.User) error) (models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.User{}, ErrUserNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	previous := user

	if err := fn(&user); err != nil {
		return models.User{}, err
	}
	user.UpdatedAt = time.Now().UTC()
	s.users[id] = user

	if err := s.saveLocked(); err != nil {
		s.users[id] = previous
		return models.User{}, err
	}
	return user, nil
}

func (s *Service) ensureDefaultUser() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.users) > 0 {
		return nil
	}

	pin, err := utils.GeneratePin(utils.DefaultPinLength)
	if err != nil {
		return err
	}
	if _, err := s.createLocked(models.DefaultUserName, pin); err != nil {
		return err
	}
	s.initialPin = pin
	return nil
}

func (s *Service) createLocked(name, pin string) (models.User, error) {
	id := uuid.NewString()
	if len(s.users) == 0 {
		id = models.DefaultUserID
	} else if _, exists := s.users[id]; exists {
		return models.User{}, fmt.Errorf("generated duplicate user id")
	}

	now := time.Now().UTC()
	user := models.User{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pin != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return models.User{}, fmt.Errorf("hash PIN: %w", err)
		}
		user.PinHash = string(hash)
	}

	s.users[user.ID] = user
	if err := s.saveLocked(); err != nil {
		delete(s.users, user.ID)
		return models.User{}, err
	}
	return user, nil
}

func (s *Service) sortedLocked() []models.User {
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Name < users[j].Name
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users
}

func (s *Service) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open users file: %w", err)
	}
	defer file.Close()

	var stored []storedUser
	if err := json.NewDecoder(file).Decode(&stored); err != nil {
		return fmt.Errorf("decode users: %w", err)
	}

	s.users = make(map[string]models.User, len(stored))
	for _, entry := range stored {
		user := entry.model()
		if strings.TrimSpace(user.ID) == "" {
			continue
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = time.Now().UTC()
		}
		if user.UpdatedAt.IsZero() {
			user.UpdatedAt = user.CreatedAt
		}
		s.users[user.ID] = user
	}
	return nil
}

func (s *Service) saveLocked() error {
	users := s.sortedLocked()
	stored := make([]storedUser, 0, len(users))
	for _, user := range users {
		stored = append(stored, toStored(user))
	}

	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create users temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stored); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode users: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync users: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close users temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace users file: %w", err)
	}
	return nil
}
