// Package account manages exchange account records. API secrets are stored
// encrypted and only decrypted at the moment an order pipeline needs them.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bot-core/internal/connector"
	"bot-core/pkg/crypto"
	"bot-core/pkg/store"
)

var (
	ErrNotFound  = errors.New("account not found")
	ErrForbidden = errors.New("account belongs to another user")
)

// Account is the persisted form of one exchange account. APIKey and APISecret
// hold ENC[vN]: ciphertext, never plaintext.
type Account struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Name      string         `json:"name"`
	Exchange  string         `json:"exchange"`
	Mode      connector.Mode `json:"mode"`
	APIKey    string         `json:"apiKey,omitempty"`
	APISecret string         `json:"apiSecret,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Service persists accounts and resolves decrypted credentials.
type Service struct {
	store *store.Store
	enc   *crypto.Encryptor
}

func NewService(st *store.Store, enc *crypto.Encryptor) *Service {
	return &Service{store: st, enc: enc}
}

// Create stores a new account, encrypting the key material. Demo accounts
// carry no keys.
func (s *Service) Create(ctx context.Context, userID, name, exchange string, mode connector.Mode, apiKey, apiSecret string) (*Account, error) {
	acc := &Account{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Exchange:  exchange,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}
	if mode == connector.ModeLive {
		if apiKey == "" || apiSecret == "" {
			return nil, fmt.Errorf("live account requires api key and secret")
		}
		var err error
		if acc.APIKey, err = s.enc.Encrypt(apiKey); err != nil {
			return nil, fmt.Errorf("encrypt api key: %w", err)
		}
		if acc.APISecret, err = s.enc.Encrypt(apiSecret); err != nil {
			return nil, fmt.Errorf("encrypt api secret: %w", err)
		}
	}
	if err := store.PutTyped(ctx, s.store, store.Accounts, acc.ID, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Get returns one account owned by userID. Key material stays encrypted.
func (s *Service) Get(ctx context.Context, userID, id string) (*Account, error) {
	var acc Account
	if err := store.GetTyped(ctx, s.store, store.Accounts, id, &acc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if acc.UserID != userID {
		return nil, ErrForbidden
	}
	return &acc, nil
}

// List returns all accounts of a user with key material redacted.
func (s *Service) List(ctx context.Context, userID string) ([]Account, error) {
	all, err := store.List[Account](ctx, s.store, store.Accounts)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(all))
	for _, acc := range all {
		if acc.UserID != userID {
			continue
		}
		acc.APIKey = ""
		acc.APISecret = ""
		out = append(out, acc)
	}
	return out, nil
}

// Delete removes an account after an ownership check.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.store.DeleteByID(ctx, store.Accounts, id)
}

// Resolve returns decrypted credentials ready for a connector call.
func (s *Service) Resolve(ctx context.Context, userID, id string) (connector.Credentials, error) {
	acc, err := s.Get(ctx, userID, id)
	if err != nil {
		return connector.Credentials{}, err
	}
	creds := connector.Credentials{
		UserID:    acc.UserID,
		AccountID: acc.ID,
		Exchange:  acc.Exchange,
		Mode:      acc.Mode,
	}
	if acc.Mode == connector.ModeDemo {
		return creds, nil
	}
	if creds.APIKey, err = s.enc.Decrypt(acc.APIKey); err != nil {
		return connector.Credentials{}, fmt.Errorf("decrypt api key: %w", err)
	}
	if creds.APISecret, err = s.enc.Decrypt(acc.APISecret); err != nil {
		return connector.Credentials{}, fmt.Errorf("decrypt api secret: %w", err)
	}
	return creds, nil
}
