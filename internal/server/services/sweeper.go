package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/filex"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
)

const sweepBatch = 100

// RequeuePending republishes upload events for files that are still pending
// and whose last event went out more than grace ago, provided the staged
// plaintext is still on disk. It returns how many events were published.
// Files the worker gave up on are marked failed and never come back here.
// Objects created by someone other than their owner are routed as robot
// uploads.
func (s *ObjectService) RequeuePending(ctx context.Context, grace time.Duration, limit int) (int, error) {
	pending, err := s.repomanager.Objects(s.db).ListPending(ctx, s.now().Add(-grace), limit)
	if err != nil {
		return 0, storageError(err)
	}

	published := 0
	for _, obj := range pending {
		path := filex.StagingPath(s.stagingDir, obj.OwnerID, obj.ID)
		ok, err := filex.Exists(path)
		if err != nil {
			s.logger.Warn(ctx, "cannot stat staging file", "object_id", obj.ID, "error", err)
			continue
		}
		if !ok {
			s.logger.Warn(ctx, "pending object has no staging file", "object_id", obj.ID)
			continue
		}

		kind := models.ActorUser
		if obj.CreatorID != obj.OwnerID {
			kind = models.ActorRobot
		}

		ev := models.UploadEvent{OwnerID: obj.OwnerID, ObjectID: obj.ID, ContentKey: obj.Content.ContentKey}
		if err := s.publisher.PublishUpload(ctx, kind, ev); err != nil {
			s.metrics.PublishFailed()
			s.logger.Error(ctx, "requeue failed", "object_id", obj.ID, "error", err)
			continue
		}
		published++

		if err := s.repomanager.Objects(s.db).MarkEnqueued(ctx, obj.ID); err != nil {
			s.logger.Warn(ctx, "failed to record requeue", "object_id", obj.ID, "error", err)
		}
	}

	s.metrics.Requeued(published)
	if published > 0 {
		s.logger.Info(ctx, "requeued pending uploads", "count", published)
	}
	return published, nil
}

// RunSweeper calls RequeuePending every interval until ctx is done.
func (s *ObjectService) RunSweeper(ctx context.Context, interval, grace time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.RequeuePending(ctx, grace, sweepBatch); err != nil {
				s.logger.Error(ctx, "pending sweep failed", "error", err)
			}
		}
	}
}
