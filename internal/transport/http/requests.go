package httptransport

import (
	"fhevault/internal/vault"
)

// Numeric fields travel sealed (ciphertext plus proof) just like the hashes;
// the engine decodes them only after their proofs verify.
type registerUserRequest struct {
	PublicKey    vault.Sealed `json:"public_key"`
	InitialQuota vault.Sealed `json:"initial_quota"`
}

type updateReputationRequest struct {
	Delta vault.Sealed `json:"delta"`
}

type createRecordRequest struct {
	DataHash        vault.Sealed `json:"data_hash"`
	MetadataHash    vault.Sealed `json:"metadata_hash"`
	DataSize        vault.Sealed `json:"data_size"`
	EncryptionLevel vault.Sealed `json:"encryption_level"`
	TTLSeconds      vault.Sealed `json:"ttl_seconds"`
	IsPublic        bool         `json:"is_public"`
}

type updateRecordRequest struct {
	DataHash     vault.Sealed `json:"data_hash"`
	MetadataHash vault.Sealed `json:"metadata_hash"`
	DataSize     vault.Sealed `json:"data_size"`
}

type grantAccessRequest struct {
	User string `json:"user"`
}

type logAccessRequest struct {
	AccessType vault.Sealed `json:"access_type"`
}
