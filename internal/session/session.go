// Package session реализует поставщика сессии: учётные данные пользователя и маркер гостя.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apperr"
	"github.com/mmeshcher/storefront-client/internal/repository"
)

const (
	markerKey     = "session:guest_marker"
	credentialKey = "session:credential"
)

// Listener вызывается после каждого изменения учётных данных.
type Listener func(ctx context.Context)

type storedCredential struct {
	Token  string `json:"token"`
	UserID int64  `json:"userId,omitempty"`
}

// Provider хранит выданные извне учётные данные и маркер гостевой сессии.
// Сам токены не выпускает.
type Provider struct {
	store  repository.Store
	signer *markerSigner
	logger *zap.Logger

	mu        sync.RWMutex
	token     string
	userID    int64
	marker    string
	listeners []Listener
}

// NewProvider создаёт поставщика сессии поверх локального хранилища.
func NewProvider(store repository.Store, secret string, logger *zap.Logger) *Provider {
	return &Provider{
		store:  store,
		signer: newMarkerSigner(secret),
		logger: logger,
		marker: uuid.NewString(),
	}
}

// Restore восстанавливает маркер гостя и сохранённые учётные данные.
// Отсутствующий или подделанный маркер заменяется новым.
func (p *Provider) Restore(ctx context.Context) error {
	marker, err := p.restoreMarker(ctx)
	if err != nil {
		return err
	}

	var cred storedCredential
	data, err := p.store.Get(ctx, credentialKey)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return fmt.Errorf("%w: load credential: %v", apperr.ErrStorageUnavailable, err)
	default:
		if jsonErr := json.Unmarshal(data, &cred); jsonErr != nil {
			p.logger.Warn("discarding unreadable stored credential", zap.Error(jsonErr))
			cred = storedCredential{}
		}
	}

	p.mu.Lock()
	p.marker = marker
	p.token = cred.Token
	p.userID = cred.UserID
	p.mu.Unlock()

	return nil
}

func (p *Provider) restoreMarker(ctx context.Context) (string, error) {
	data, err := p.store.Get(ctx, markerKey)
	if err == nil {
		if marker, ok := p.signer.parse(string(data)); ok {
			return marker, nil
		}
		p.logger.Warn("guest marker signature mismatch, issuing a new one")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("%w: load guest marker: %v", apperr.ErrStorageUnavailable, err)
	}

	marker := uuid.NewString()
	if err := p.store.Put(ctx, markerKey, []byte(p.signer.sign(marker))); err != nil {
		return "", fmt.Errorf("%w: save guest marker: %v", apperr.ErrStorageUnavailable, err)
	}
	return marker, nil
}

// Login принимает выданный извне токен. Если userID равен нулю, идентификатор
// читается из утверждений JWT без проверки подписи.
func (p *Provider) Login(ctx context.Context, token string, userID int64) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty credential", apperr.ErrInvalidArgument)
	}
	if userID == 0 {
		userID = userIDFromToken(token)
	}

	data, err := json.Marshal(storedCredential{Token: token, UserID: userID})
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := p.store.Put(ctx, credentialKey, data); err != nil {
		return fmt.Errorf("%w: save credential: %v", apperr.ErrStorageUnavailable, err)
	}

	p.mu.Lock()
	p.token = token
	p.userID = userID
	p.mu.Unlock()

	p.logger.Info("session credential set", zap.Int64("userID", userID))
	p.notify(ctx)
	return nil
}

// Logout удаляет учётные данные. Маркер гостя сохраняется.
func (p *Provider) Logout(ctx context.Context) error {
	if err := p.store.Delete(ctx, credentialKey); err != nil {
		return fmt.Errorf("%w: delete credential: %v", apperr.ErrStorageUnavailable, err)
	}

	p.mu.Lock()
	p.token = ""
	p.userID = 0
	p.mu.Unlock()

	p.logger.Info("session credential cleared")
	p.notify(ctx)
	return nil
}

// HasCredential сообщает, есть ли у сессии учётные данные.
func (p *Provider) HasCredential() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token != ""
}

// Credential возвращает токен для заголовка Authorization.
func (p *Provider) Credential() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token, p.token != ""
}

// CurrentUserID возвращает идентификатор пользователя, если он известен.
func (p *Provider) CurrentUserID() (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userID, p.token != "" && p.userID != 0
}

// GuestMarker возвращает идентификатор гостевой сессии.
func (p *Provider) GuestMarker() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.marker
}

// Subscribe регистрирует слушателя изменений учётных данных.
func (p *Provider) Subscribe(l Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	p.mu.Unlock()
}

func (p *Provider) notify(ctx context.Context) {
	p.mu.RLock()
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.RUnlock()

	for _, l := range listeners {
		l(ctx)
	}
}

func userIDFromToken(token string) int64 {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0
	}

	for _, name := range []string{"sub", "user_id", "identity"} {
		switch v := claims[name].(type) {
		case string:
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				return id
			}
		case float64:
			return int64(v)
		case json.Number:
			if id, err := v.Int64(); err == nil {
				return id
			}
		}
	}
	return 0
}
