package models

import "time"

// WrappedKey is the JSON document persisted in envelope_keys.encrypted_data_key.
// For locally wrapped keys all AEAD parts are present; for keys wrapped by an
// external transit service only EncryptedKey and KeyID are meaningful and the
// algorithm is "external-transit".
type WrappedKey struct {
	EncryptedKey []byte    `json:"encryptedKey"`
	IV           []byte    `json:"iv,omitempty"`
	Tag          []byte    `json:"tag,omitempty"`
	Algorithm    string    `json:"algorithm"`
	KeyID        string    `json:"keyId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// EnvelopeKeyRecord is a persisted wrapped data key for one record. Versions
// are monotonically increasing per record id; unwrap always selects the
// highest version.
type EnvelopeKeyRecord struct {
	RecordID  string
	Version   int64
	Wrapped   WrappedKey
	UpdatedAt time.Time
}
