package httptransport

import (
	"time"

	auditmodels "fhevault/internal/audit/models"
	recmodels "fhevault/internal/records/models"
	usermodels "fhevault/internal/users/models"
	id "fhevault/pkg/domain"
)

type profileResponse struct {
	UserID       id.UserID  `json:"user_id"`
	Address      id.Address `json:"address"`
	PublicKey    string     `json:"public_key"`
	Reputation   int64      `json:"reputation"`
	StorageQuota int64      `json:"storage_quota"`
	UsedStorage  int64      `json:"used_storage"`
	IsActive     bool       `json:"is_active"`
	JoinedAt     time.Time  `json:"joined_at"`
}

func toProfileResponse(p *usermodels.UserProfile) profileResponse {
	return profileResponse{
		UserID:       p.ID,
		Address:      p.Address,
		PublicKey:    p.PublicKey,
		Reputation:   p.Reputation,
		StorageQuota: p.StorageQuota,
		UsedStorage:  p.UsedStorage,
		IsActive:     p.IsActive,
		JoinedAt:     p.JoinedAt,
	}
}

type recordResponse struct {
	RecordID        id.RecordID `json:"record_id"`
	DataHash        string      `json:"data_hash"`
	MetadataHash    string      `json:"metadata_hash"`
	DataSize        int64       `json:"data_size"`
	AccessCount     int64       `json:"access_count"`
	EncryptionLevel string      `json:"encryption_level"`
	IsPublic        bool        `json:"is_public"`
	IsEncrypted     bool        `json:"is_encrypted"`
	Owner           id.Address  `json:"owner"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	ExpiresAt       time.Time   `json:"expires_at"`
}

func toRecordResponse(r *recmodels.DataRecord) recordResponse {
	return recordResponse{
		RecordID:        r.ID,
		DataHash:        r.DataHash,
		MetadataHash:    r.MetadataHash,
		DataSize:        r.DataSize,
		AccessCount:     r.AccessCount,
		EncryptionLevel: r.EncryptionLevel.String(),
		IsPublic:        r.IsPublic,
		IsEncrypted:     r.IsEncrypted,
		Owner:           r.Owner,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

type reputationResponse struct {
	Address    id.Address `json:"address"`
	Reputation int64      `json:"reputation"`
}

type membersResponse struct {
	RecordID id.RecordID  `json:"record_id"`
	Users    []id.Address `json:"users"`
}

type logEntryResponse struct {
	LogID      id.LogID    `json:"log_id"`
	RecordID   id.RecordID `json:"record_id"`
	Actor      id.Address  `json:"actor"`
	AccessType string      `json:"access_type"`
	IPHash     string      `json:"ip_hash"`
	Timestamp  time.Time   `json:"timestamp"`
}

func toLogEntryResponse(e auditmodels.AccessLogEntry) logEntryResponse {
	return logEntryResponse{
		LogID:      e.ID,
		RecordID:   e.RecordID,
		Actor:      e.Actor,
		AccessType: e.AccessType,
		IPHash:     e.IPHash,
		Timestamp:  e.Timestamp,
	}
}

type historyResponse struct {
	RecordID id.RecordID        `json:"record_id"`
	Entries  []logEntryResponse `json:"entries"`
}
