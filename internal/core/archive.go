package core

import (
	"assemblycore/internal/blob"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const archiveURLExpiry = time.Hour

// ArchiveKey is the blob key a history snapshot is written under.
func ArchiveKey(entity EntityType, id string, at time.Time) string {
	return fmt.Sprintf("history/%s/%s/%d.json", entity, id, at.UnixNano())
}

// ArchiveHistory writes the current change history of a part or robot instance to
// the configured blob store. When the backend can presign, the returned Info
// carries a download URL.
func (s *Service) ArchiveHistory(ctx context.Context, entity EntityType, id string) (blob.Info, error) {
	if s.blobs == nil {
		return blob.Info{}, fmt.Errorf("archive history: no blob store configured: %w", blob.ErrUnsupported)
	}
	history, err := s.History(ctx, entity, id)
	if err != nil {
		return blob.Info{}, err
	}
	ctx, span := s.tracer.Start(ctx, "archive_history")
	start := time.Now()
	info, err := s.putArchive(ctx, entity, id, history)
	span.End(err)
	s.metrics.Observe(ctx, "archive_history", err == nil, time.Since(start))
	if err != nil {
		s.logger.Error("archive history failed", "entity", string(entity), "entity_id", id, "error", err)
		return blob.Info{}, err
	}
	s.logger.Info("history archived", "entity", string(entity), "entity_id", id, "key", info.Key, "entries", len(history))
	return info, nil
}

func (s *Service) putArchive(ctx context.Context, entity EntityType, id string, history []HistoryEntry) (blob.Info, error) {
	payload, err := json.Marshal(history)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode history: %w", err)
	}
	key := ArchiveKey(entity, id, s.clock.Now())
	info, err := s.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"entity": string(entity), "entity-id": id},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	url, err := s.blobs.PresignURL(ctx, key, blob.SignedURLOptions{Expiry: archiveURLExpiry})
	switch {
	case err == nil:
		info.URL = url
	case !errors.Is(err, blob.ErrUnsupported):
		s.logger.Warn("presign archive failed", "key", key, "error", err)
	}
	return info, nil
}
