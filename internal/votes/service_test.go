package votes

import (
	"context"
	"sync"
	"testing"
	"time"

	"civicfund-backend/internal/models"
	"civicfund-backend/internal/pkg/apperr"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupVotesDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Project{}, &models.ProjectVote{}))
	return db
}

func strPtr(s string) *string { return &s }

func createVoter(t *testing.T, db *gorm.DB, zip string, member bool) *models.User {
	user := models.User{
		Fullname:     "Voter",
		Email:        uuid.New().String() + "@example.com",
		PasswordHash: "x",
		Role:         "member",
		Zip:          zip,
	}
	if member {
		periodEnd := time.Now().Add(10 * 24 * time.Hour)
		user.SubscriptionStatus = strPtr(models.SubStatusActive)
		user.SubscriptionInterval = strPtr("month")
		user.CurrentPeriodEnd = &periodEnd
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func createVotingProject(t *testing.T, db *gorm.DB, zip string, voteGoal int64) *models.Project {
	p := models.Project{
		Title: "Proposal", Zip: zip, Status: models.ProjectStatusVoting,
		VoteGoal: voteGoal, FundingGoalCents: 100000,
		CreatorID: uuid.New(),
	}
	require.NoError(t, db.Create(&p).Error)
	return &p
}

func TestCastVote_InvalidValue(t *testing.T) {
	db := setupVotesDB(t)
	s := &Service{DB: db}
	_, err := s.CastVote(context.Background(), uuid.New(), uuid.New(), "maybe")
	assert.True(t, apperr.IsKind(err, apperr.KindPreconditionFailed))
}

func TestCastVote_UnknownUser(t *testing.T) {
	db := setupVotesDB(t)
	s := &Service{DB: db}
	_, err := s.CastVote(context.Background(), uuid.New(), uuid.New(), models.VoteYes)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestCastVote_ProjectNotFound(t *testing.T) {
	db := setupVotesDB(t)
	s := &Service{DB: db}
	voter := createVoter(t, db, "94107", true)
	_, err := s.CastVote(context.Background(), voter.UserID, uuid.New(), models.VoteYes)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestCastVote_ProjectNotVoting(t *testing.T) {
	db := setupVotesDB(t)
	s := &Service{DB: db}
	voter := createVoter(t, db, "94107", true)
	p := createVotingProject(t, db, "94107", 10)
	require.NoError(t, db.Model(p).Update("status", models.ProjectStatusFunding).Error)

	_, err := s.CastVote(context.Background(), voter.UserID, p.ProjectID, models.VoteYes)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindPreconditionFailed, e.Kind)
	assert.Equal(t, apperr.ReasonStatusMismatch, e.Reason)
}

func TestCastVote_ZipMismatch(t *testing.T) {
	db := setupVotesDB(t)
	s := &Service{DB: db}
	voter := createVoter(t, db, "10001", true)
	p := createVotingProject(t, db, "94107", 10)

	_, err := s.CastVote(context.Background(), voter.UserID, p.ProjectID, models.VoteYes)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestCastVote_RequiresMembership(t *testing.T) {
	db := setupVotesDB(t)
	s := &Service{DB: db}
	voter := createVoter(t, db, "94107", false)
	p := createVotingProject(t, db, "94107", 10)

	_, err := s.CastVote(context.Background(), voter.UserID, p.ProjectID, models.VoteYes)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestCastVote_LapsedMembershipRejected(t *testing.T) {
	db := setupVotesDB(t)
	s := &Service{DB: db}
	voter := createVoter(t, db, "94107", true)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(voter).Update("current_period_end", past).Error)
	p := createVotingProject(t, db, "94107", 10)

	_, err := s.CastVote(context.Background(), voter.UserID, p.ProjectID, models.VoteYes)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestCastVote_CountsYesAndNo(t *testing.T) {
	db := setupVotesDB(t)
	s := &Service{DB: db}
	p := createVotingProject(t, db, "94107", 10)

	yes := createVoter(t, db, "94107", true)
	res, err := s.CastVote(context.Background(), yes.UserID, p.ProjectID, models.VoteYes)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.VotesYes)
	assert.Equal(t, int64(0), res.VotesNo)

	no := createVoter(t, db, "94107", true)
	res, err = s.CastVote(context.Background(), no.UserID, p.ProjectID, models.VoteNo)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.VotesYes)
	assert.Equal(t, int64(1), res.VotesNo)
	assert.Equal(t, models.ProjectStatusVoting, res.Status)
}

func TestCastVote_DuplicateIsConflict(t *testing.T) {
	db := setupVotesDB(t)
	s := &Service{DB: db}
	p := createVotingProject(t, db, "94107", 10)
	voter := createVoter(t, db, "94107", true)

	_, err := s.CastVote(context.Background(), voter.UserID, p.ProjectID, models.VoteYes)
	require.NoError(t, err)
	_, err = s.CastVote(context.Background(), voter.UserID, p.ProjectID, models.VoteNo)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	var stored models.Project
	require.NoError(t, db.Where("project_id = ?", p.ProjectID).First(&stored).Error)
	assert.Equal(t, int64(1), stored.VotesYes)
	assert.Equal(t, int64(0), stored.VotesNo)
}

func TestCastVote_ConcurrentDuplicateSingleCount(t *testing.T) {
	db := setupVotesDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps both goroutines on the same in-memory store;
	// the unique index decides the winner.
	sqlDB.SetMaxOpenConns(1)

	s := &Service{DB: db}
	p := createVotingProject(t, db, "94107", 10)
	voter := createVoter(t, db, "94107", true)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, cerr := s.CastVote(context.Background(), voter.UserID, p.ProjectID, models.VoteYes)
			errs <- cerr
		}()
	}
	wg.Wait()
	close(errs)

	var okCount, conflictCount int
	for cerr := range errs {
		switch {
		case cerr == nil:
			okCount++
		case apperr.IsKind(cerr, apperr.KindConflict):
			conflictCount++
		default:
			t.Fatalf("unexpected error: %v", cerr)
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, conflictCount)

	var stored models.Project
	require.NoError(t, db.Where("project_id = ?", p.ProjectID).First(&stored).Error)
	assert.Equal(t, int64(1), stored.VotesYes)
	var voteCount int64
	require.NoError(t, db.Model(&models.ProjectVote{}).Count(&voteCount).Error)
	assert.Equal(t, int64(1), voteCount)
}

func TestCastVote_GoalPromotesToFunding(t *testing.T) {
	db := setupVotesDB(t)
	s := &Service{DB: db}
	p := createVotingProject(t, db, "94107", 2)

	first := createVoter(t, db, "94107", true)
	res, err := s.CastVote(context.Background(), first.UserID, p.ProjectID, models.VoteYes)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusVoting, res.Status)

	second := createVoter(t, db, "94107", true)
	res, err = s.CastVote(context.Background(), second.UserID, p.ProjectID, models.VoteYes)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusFunding, res.Status)
}

func TestCastVote_NoVotesDoNotPromote(t *testing.T) {
	db := setupVotesDB(t)
	s := &Service{DB: db}
	p := createVotingProject(t, db, "94107", 1)

	voter := createVoter(t, db, "94107", true)
	res, err := s.CastVote(context.Background(), voter.UserID, p.ProjectID, models.VoteNo)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusVoting, res.Status)
}
