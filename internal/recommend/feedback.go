/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package recommend

import (
	"context"
	"errors"

	"github.com/friendsincode/mixtape/internal/catalog"
	"github.com/friendsincode/mixtape/internal/events"
)

// Feedback kinds.
const (
	FeedbackPlayed    = "played"
	FeedbackSkipped   = "skipped"
	FeedbackCompleted = "completed"
	FeedbackReplayed  = "replayed"
)

// ErrUnknownFeedback is returned by RecordFeedback for an unknown kind.
var ErrUnknownFeedback = errors.New("unknown feedback kind")

// RecordFeedback dispatches feedback by kind.
func (s *Service) RecordFeedback(ctx context.Context, kind, path string) error {
	switch kind {
	case FeedbackPlayed:
		s.RecordSongPlayed(ctx, path)
	case FeedbackSkipped:
		s.RecordSongSkipped(ctx, path)
	case FeedbackCompleted:
		s.RecordSongCompleted(ctx, path)
	case FeedbackReplayed:
		s.RecordSongReplayed(ctx, path)
	default:
		return ErrUnknownFeedback
	}
	return nil
}

// RecordSongPlayed records that playback of path started.
func (s *Service) RecordSongPlayed(ctx context.Context, path string) {
	s.ledger.RecordPlayed(ctx, path)
	s.publishFeedback(FeedbackPlayed, path)
}

// RecordSongSkipped records an early skip and nudges mood preferences away
// from the track.
func (s *Service) RecordSongSkipped(ctx context.Context, path string) {
	s.ledger.RecordSkipped(ctx, path)
	s.learnMoods(ctx, path, false)
	s.publishFeedback(FeedbackSkipped, path)
}

// RecordSongCompleted records a full listen and nudges mood preferences
// toward the track.
func (s *Service) RecordSongCompleted(ctx context.Context, path string) {
	s.ledger.RecordCompleted(ctx, path)
	s.learnMoods(ctx, path, true)
	s.publishFeedback(FeedbackCompleted, path)
}

// RecordSongReplayed records a deliberate replay.
func (s *Service) RecordSongReplayed(ctx context.Context, path string) {
	s.ledger.RecordReplayed(ctx, path)
	s.publishFeedback(FeedbackReplayed, path)
}

func (s *Service) learnMoods(ctx context.Context, path string, liked bool) {
	track, err := catalog.Lookup(ctx, s.catalog, path)
	if err != nil {
		if !errors.Is(err, catalog.ErrTrackNotFound) {
			s.logger.Debug().Err(err).Str("path", path).Msg("mood learning skipped")
		}
		return
	}
	s.ledger.LearnMoodPreferences(ctx, track.MoodVector(), liked)
}

func (s *Service) publishFeedback(kind, path string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.EventFeedbackRecorded, events.Payload{
		"kind":  kind,
		"path":  path,
		"score": s.ledger.Score(path),
	})
}
