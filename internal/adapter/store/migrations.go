package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"kwscan/config"
	"kwscan/internal/domain"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
)

// SchemaInfo stores schema version and configuration hash.
type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}

		if versionData := b.Get(keySchemaVersion); versionData != nil {
			if err := json.Unmarshal(versionData, &info.Version); err != nil {
				info.Version = 0
			}
		}
		if hashData := b.Get(keyConfigHash); hashData != nil {
			info.ConfigHash = string(hashData)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}
		return b.Put(keyConfigHash, []byte(info.ConfigHash))
	})
}

// ComputeConfigHash hashes the configuration that determines a file's
// outcome. Cached outcomes are only valid under the same hash.
func ComputeConfigHash(cfg *config.Config) string {
	keys := make([]string, 0, len(cfg.Scan.Keywords))
	for _, k := range cfg.Scan.Keywords {
		keys = append(keys, domain.FoldKey(k))
	}
	sort.Strings(keys)

	relevant := struct {
		Keywords      []string `json:"keywords"`
		MaxTokens     int      `json:"max_tokens"`
		MaxNesting    int      `json:"max_nesting"`
		Strict        bool     `json:"strict"`
		CollectLabels bool     `json:"collect_labels"`
		Encoding      string   `json:"encoding"`
	}{
		Keywords:      keys,
		MaxTokens:     cfg.Scan.MaxTokens,
		MaxNesting:    cfg.Scan.MaxNesting,
		Strict:        cfg.Scan.Strict,
		CollectLabels: cfg.Scan.CollectLabels,
		Encoding:      cfg.Scan.Encoding,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration bool
	NeedsRebuild   bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

// CheckMigration checks if migration or rebuild is needed.
func (s *BoltStore) CheckMigration(cfg *config.Config) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	case info.Version > CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("cache created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	if newHash := ComputeConfigHash(cfg); info.ConfigHash != "" && info.ConfigHash != newHash {
		result.NeedsRebuild = true
		result.Reason = "scan configuration changed"
	}

	return result, nil
}

// Migrate performs any necessary schema migrations and records the
// configuration hash.
func (s *BoltStore) Migrate(cfg *config.Config) error {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return err
	}

	for v := info.Version; v < CurrentSchemaVersion; v++ {
		if err := s.runMigration(v, v+1); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}

	return s.SetSchemaInfo(&SchemaInfo{
		Version:    CurrentSchemaVersion,
		ConfigHash: ComputeConfigHash(cfg),
	})
}

func (s *BoltStore) runMigration(from, to int) error {
	switch {
	case from == 0 && to == 1:
		// Outcomes stored before a schema version was recorded carry no
		// config hash, so nothing says which keywords produced them.
		return s.Clear()
	default:
		return nil
	}
}

// Clear removes all cached outcomes (for rebuild).
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketOutcomes); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketOutcomes)
		return err
	})
}

// Open opens the cache at path for cfg, clearing it when it was written
// under a different schema or configuration.
func Open(path string, cfg *config.Config) (*BoltStore, *MigrationResult, error) {
	s, err := NewBoltStore(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.CheckMigration(cfg)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	if result.NeedsRebuild {
		if err := s.Clear(); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("failed to clear cache: %w", err)
		}
		if err := s.SetSchemaInfo(&SchemaInfo{}); err != nil {
			s.Close()
			return nil, nil, err
		}
	}
	if err := s.Migrate(cfg); err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, result, nil
}
