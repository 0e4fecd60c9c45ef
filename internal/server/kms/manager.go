// Package kms owns the per-record data-key lifecycle: generation, wrapping
// under the process master key or an external transit service, persistence,
// and unwrapping. Unwrap fails closed: structural mismatches, mode
// mismatches and transport failures yield no key, never stale or wrong key
// material.
package kms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ztmed/emrsearch/internal/common"
	"github.com/ztmed/emrsearch/internal/cryptox"
	"github.com/ztmed/emrsearch/internal/logging"
	"github.com/ztmed/emrsearch/internal/server/models"
	"github.com/ztmed/emrsearch/internal/server/repositories/envelopekeys"
)

// Mode selects the wrapping backend for new envelope keys.
type Mode string

const (
	// ModeLocal wraps data keys with AEAD under the process master key.
	ModeLocal Mode = "local"

	// ModeVaultTransit sends data keys to an external transit service and
	// stores the opaque ciphertext it returns.
	ModeVaultTransit Mode = "vault-transit"
)

// TransitClient is the wrap/unwrap contract of an external transit KMS.
type TransitClient interface {
	Encrypt(ctx context.Context, keyName string, plaintext []byte) (string, error)
	Decrypt(ctx context.Context, keyName string, ciphertext string) ([]byte, error)
}

// Options configures a Manager.
type Options struct {
	// Mode selects the wrapping backend for new keys.
	Mode Mode

	// MasterSecret and MasterSalt derive the process master key. An empty
	// secret falls back to a random development key, logged as insecure.
	MasterSecret string
	MasterSalt   string

	// Transit and TransitKeyName configure the external backend; required
	// in ModeVaultTransit.
	Transit        TransitClient
	TransitKeyName string
}

// Manager is the envelope key manager. Construct one per process and pass it
// by reference to every component that needs key material; the master key is
// mutated only at construction and zeroed by Close.
type Manager struct {
	mode           Mode
	masterKey      []byte
	repo           envelopekeys.Repository
	transit        TransitClient
	transitKeyName string
	logger         logging.Logger
}

// NewManager builds a Manager from the given repository and options.
func NewManager(repo envelopekeys.Repository, opts Options, logger logging.Logger) (*Manager, error) {
	if opts.Mode != ModeLocal && opts.Mode != ModeVaultTransit {
		return nil, fmt.Errorf("%w: unknown kms mode %q", common.ErrValidation, opts.Mode)
	}
	if opts.Mode == ModeVaultTransit && opts.Transit == nil {
		return nil, fmt.Errorf("%w: transit mode requires a transit client", common.ErrValidation)
	}

	m := &Manager{
		mode:           opts.Mode,
		repo:           repo,
		transit:        opts.Transit,
		transitKeyName: opts.TransitKeyName,
		logger:         logger.With("module", "kms"),
	}

	if opts.MasterSecret != "" {
		m.masterKey = cryptox.DeriveMasterKey([]byte(opts.MasterSecret), []byte(opts.MasterSalt))
	} else if opts.Mode == ModeLocal {
		// Without a configured secret nothing wrapped here survives a
		// restart. Acceptable for development only.
		m.masterKey = common.GenerateRandByteArray(cryptox.KeySize)
		m.logger.Warn(context.Background(),
			"no master secret configured, using a random development master key; wrapped keys will not survive a restart")
	}

	return m, nil
}

// Mode returns the configured wrapping backend.
func (m *Manager) Mode() Mode {
	return m.mode
}

// GenerateDataKey returns a fresh random symmetric key of the given size.
func (m *Manager) GenerateDataKey(size int) []byte {
	return common.GenerateRandByteArray(size)
}

// SaveEnvelopeKey wraps dataKey under the configured backend and persists it
// as the next version for the record.
func (m *Manager) SaveEnvelopeKey(ctx context.Context, recordID string, dataKey []byte) error {
	wrapped, err := m.wrap(ctx, recordID, dataKey, m.mode)
	if err != nil {
		return err
	}

	version, err := m.repo.Save(ctx, recordID, wrapped)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}

	m.logger.Info(ctx, "envelope key saved",
		"record_id", recordID, "version", version, "algorithm", wrapped.Algorithm)
	return nil
}

// LoadEnvelopeKey loads the latest wrapped key for the record and unwraps it.
// It returns (nil, nil) when no key exists or when unwrapping fails for any
// reason other than a missing master key; failures are logged, never
// substituted with stale material.
func (m *Manager) LoadEnvelopeKey(ctx context.Context, recordID string) ([]byte, error) {
	rec, err := m.repo.LoadLatest(ctx, recordID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}

	key, err := m.unwrap(ctx, recordID, &rec.Wrapped)
	if err != nil {
		if errors.Is(err, common.ErrMasterKeyUnavailable) {
			return nil, err
		}
		m.logger.Warn(ctx, "envelope key unwrap failed",
			"record_id", recordID, "version", rec.Version, "algorithm", rec.Wrapped.Algorithm, "error", err.Error())
		return nil, nil
	}
	return key, nil
}

// MigrateRecordKey unwraps the record's latest data key and rewraps it under
// the target mode, persisting a new version. It is the supported path for
// switching backends without stranding keys under the old mode.
func (m *Manager) MigrateRecordKey(ctx context.Context, recordID string, target Mode) error {
	if target != ModeLocal && target != ModeVaultTransit {
		return fmt.Errorf("%w: unknown kms mode %q", common.ErrValidation, target)
	}

	rec, err := m.repo.LoadLatest(ctx, recordID)
	if err != nil {
		return fmt.Errorf("load for migration: %w", err)
	}
	key, err := m.unwrap(ctx, recordID, &rec.Wrapped)
	if err != nil {
		return fmt.Errorf("unwrap for migration: %w", err)
	}
	defer common.WipeByteArray(key)

	wrapped, err := m.wrap(ctx, recordID, key, target)
	if err != nil {
		return fmt.Errorf("rewrap for migration: %w", err)
	}
	version, err := m.repo.Save(ctx, recordID, wrapped)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}

	m.logger.Info(ctx, "envelope key migrated",
		"record_id", recordID, "version", version, "target_mode", string(target))
	return nil
}

// Close zeroes the in-memory master key. The manager must not be used after.
func (m *Manager) Close() {
	common.WipeByteArray(m.masterKey)
	m.masterKey = nil
}

// wrap produces a WrappedKey under the requested mode. The mode is an
// explicit parameter so backend fallbacks never mutate shared state.
func (m *Manager) wrap(ctx context.Context, recordID string, dataKey []byte, mode Mode) (*models.WrappedKey, error) {
	switch mode {
	case ModeLocal:
		if m.masterKey == nil {
			return nil, common.ErrMasterKeyUnavailable
		}
		res, err := cryptox.EncryptWithAAD(dataKey, m.masterKey, []byte(recordID))
		if err != nil {
			return nil, err
		}
		return &models.WrappedKey{
			EncryptedKey: res.Ciphertext,
			IV:           res.IV,
			Tag:          res.Tag,
			Algorithm:    cryptox.AlgorithmAESGCM,
			CreatedAt:    time.Now().UTC(),
		}, nil

	case ModeVaultTransit:
		keyName := m.keyNameFor(recordID)
		ciphertext, err := m.transit.Encrypt(ctx, keyName, dataKey)
		if err != nil {
			return nil, fmt.Errorf("%w: transit encrypt: %v", common.ErrCrypto, err)
		}
		return &models.WrappedKey{
			EncryptedKey: []byte(ciphertext),
			Algorithm:    cryptox.AlgorithmExternalTransit,
			KeyID:        keyName,
			CreatedAt:    time.Now().UTC(),
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown kms mode %q", common.ErrValidation, mode)
	}
}

// unwrap dispatches on the algorithm the key was stored with, not on the
// manager's current mode, so a mode switch without migration fails closed
// instead of attempting the wrong backend.
func (m *Manager) unwrap(ctx context.Context, recordID string, wrapped *models.WrappedKey) ([]byte, error) {
	switch wrapped.Algorithm {
	case cryptox.AlgorithmAESGCM:
		if m.masterKey == nil {
			return nil, common.ErrMasterKeyUnavailable
		}
		res := &cryptox.EncryptionResult{
			Ciphertext: wrapped.EncryptedKey,
			IV:         wrapped.IV,
			Tag:        wrapped.Tag,
			Algorithm:  wrapped.Algorithm,
		}
		return cryptox.DecryptWithAAD(res, m.masterKey, []byte(recordID))

	case cryptox.AlgorithmExternalTransit:
		if m.transit == nil {
			return nil, fmt.Errorf("%w: key wrapped by external transit but no transit client configured", common.ErrCrypto)
		}
		keyName := wrapped.KeyID
		if keyName == "" {
			keyName = m.keyNameFor(recordID)
		}
		key, err := m.transit.Decrypt(ctx, keyName, string(wrapped.EncryptedKey))
		if err != nil {
			return nil, fmt.Errorf("%w: transit decrypt: %v", common.ErrCrypto, err)
		}
		return key, nil

	default:
		return nil, fmt.Errorf("%w: unsupported wrap algorithm %q", common.ErrCrypto, wrapped.Algorithm)
	}
}

func (m *Manager) keyNameFor(recordID string) string {
	if m.transitKeyName == "" {
		return recordID
	}
	return m.transitKeyName + "-" + recordID
}
