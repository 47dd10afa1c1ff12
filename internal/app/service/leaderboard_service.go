package service

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"competenest/internal/common"
	"competenest/internal/domain/model"
	"competenest/internal/domain/repository"
	"competenest/internal/telemetry"
)

// Publisher pushes an event to every subscriber of a room. Satisfied by
// notify.Hub.
type Publisher interface {
	Publish(room, event string, data interface{})
}

// LeaderboardRoom names the room that receives ranked snapshots for a contest.
func LeaderboardRoom(contestID string) string {
	return contestID + "-leaderboard"
}

type LeaderboardService struct {
	contestRepo repository.ContestRepository
	publisher   Publisher
}

func NewLeaderboardService(contestRepo repository.ContestRepository, publisher Publisher) *LeaderboardService {
	return &LeaderboardService{contestRepo: contestRepo, publisher: publisher}
}

// CreditSolve awards the problem's contest score to the participant, at most
// once per problem, and returns the ranked snapshot taken inside the same
// transaction. credited is false (with a nil snapshot) when nothing changed:
// the user is not a participant, or already solved this problem here.
//
// The participant row is locked for the duration of tx, so two concurrent
// solves by the same user serialize and the second sees the first's credit.
func (s *LeaderboardService) CreditSolve(ctx context.Context, tx *sql.Tx, contestID, userID, problemID string) ([]model.ContestParticipant, bool, error) {
	participant, err := s.contestRepo.LockParticipant(ctx, tx, contestID, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	for _, solved := range participant.ProblemsSolved {
		if solved == problemID {
			return nil, false, nil
		}
	}

	score, err := s.contestRepo.GetContestProblemScore(ctx, tx, contestID, problemID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Problem is not part of this contest; nothing to award.
			return nil, false, nil
		}
		return nil, false, err
	}

	participant.Score += score
	participant.ProblemsSolved = append(participant.ProblemsSolved, problemID)
	if err := s.contestRepo.CreditParticipant(ctx, tx, participant); err != nil {
		return nil, false, err
	}

	snapshot, err := s.contestRepo.ListParticipantsRanked(ctx, tx, contestID)
	if err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

// PublishLeaderboard broadcasts a ranked snapshot to the contest's leaderboard
// room. Call it only after the transaction that produced the snapshot has
// committed.
func (s *LeaderboardService) PublishLeaderboard(contestID string, snapshot []model.ContestParticipant) {
	s.publisher.Publish(LeaderboardRoom(contestID), "leaderboard-update", snapshot)
	telemetry.LeaderboardPublishes.Inc()
	log.Printf("INFO: Published leaderboard for contest %s (%d participants)", contestID, len(snapshot))
}

// GetLeaderboard reads the current ranking outside any transaction.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, contestID string) ([]model.ContestParticipant, error) {
	return s.contestRepo.ListParticipantsRanked(ctx, nil, contestID)
}
