package projects

import (
	"context"
	"testing"
	"time"

	"civicfund-backend/internal/audit"
	"civicfund-backend/internal/models"
	"civicfund-backend/internal/pkg/apperr"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupProjectsDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Project{}, &models.AuditLog{}))
	return db
}

func strPtr(s string) *string { return &s }

func createMember(t *testing.T, db *gorm.DB, zip string) *models.User {
	periodEnd := time.Now().Add(20 * 24 * time.Hour)
	user := models.User{
		Fullname:             "Member " + uuid.New().String()[:8],
		Email:                uuid.New().String() + "@example.com",
		PasswordHash:         "x",
		Role:                 "member",
		Zip:                  zip,
		SubscriptionStatus:   strPtr(models.SubStatusActive),
		SubscriptionInterval: strPtr("month"),
		CurrentPeriodEnd:     &periodEnd,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func createNonMember(t *testing.T, db *gorm.DB, zip string) *models.User {
	user := models.User{
		Fullname:     "Visitor",
		Email:        uuid.New().String() + "@example.com",
		PasswordHash: "x",
		Role:         "member",
		Zip:          zip,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func createAdmin(t *testing.T, db *gorm.DB, zip string) *models.User {
	user := models.User{
		Fullname:     "Admin",
		Email:        uuid.New().String() + "@example.com",
		PasswordHash: "x",
		Role:         "admin",
		Zip:          zip,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func newService(db *gorm.DB) *Service {
	return &Service{DB: db, Audit: &audit.Recorder{DB: db}}
}

func TestCreate_RequiresActiveMembership(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	visitor := createNonMember(t, db, "94107")

	_, err := s.Create(context.Background(), visitor.UserID, CreateInput{
		Title: "Community Garden", Zip: "94107", FundingGoalCents: 100000, VoteGoal: 10,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestCreate_AdminBypassesMembership(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	admin := createAdmin(t, db, "94107")

	p, err := s.Create(context.Background(), admin.UserID, CreateInput{
		Title: "Bike Lane Extension", Zip: "94107", FundingGoalCents: 100000, VoteGoal: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusVoting, p.Status)
}

func TestCreate_DraftStaysOutOfVoting(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	member := createMember(t, db, "94107")

	p, err := s.Create(context.Background(), member.UserID, CreateInput{
		Title: "Skate Park", Zip: "94107", FundingGoalCents: 50000, VoteGoal: 5, Draft: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusDraft, p.Status)
}

func TestCreate_InvalidZip(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	member := createMember(t, db, "94107")

	_, err := s.Create(context.Background(), member.UserID, CreateInput{
		Title: "Pool", Zip: "nope", FundingGoalCents: 1000, VoteGoal: 1,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindPreconditionFailed))
}

func TestCreate_DuplicateSlug(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	member := createMember(t, db, "94107")

	_, err := s.Create(context.Background(), member.UserID, CreateInput{
		Title: "Dog Park", Slug: strPtr("dog-park"), Zip: "94107", FundingGoalCents: 1000, VoteGoal: 1,
	})
	require.NoError(t, err)

	_, err = s.Create(context.Background(), member.UserID, CreateInput{
		Title: "Dog Park Two", Slug: strPtr("dog-park"), Zip: "94107", FundingGoalCents: 1000, VoteGoal: 1,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestTransition_NotFound(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	admin := createAdmin(t, db, "94107")

	_, err := s.Transition(context.Background(), admin.UserID, uuid.New(), ActionStartBuild, TransitionOpts{})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestStartBuild_GuardOrder(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	admin := createAdmin(t, db, "94107")

	// Wrong stage first.
	voting := models.Project{Title: "A", Zip: "94107", Status: models.ProjectStatusVoting, FundingGoalCents: 50000, VoteGoal: 100, CreatorID: admin.UserID}
	require.NoError(t, db.Create(&voting).Error)
	_, err := s.Transition(context.Background(), admin.UserID, voting.ProjectID, ActionStartBuild, TransitionOpts{})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ReasonStatusMismatch, e.Reason)

	// In funding but votes short.
	shortVotes := models.Project{Title: "B", Zip: "94107", Status: models.ProjectStatusFunding, FundingGoalCents: 50000, VoteGoal: 100, VotesYes: 99, TotalRaisedCents: 50000, CreatorID: admin.UserID}
	require.NoError(t, db.Create(&shortVotes).Error)
	_, err = s.Transition(context.Background(), admin.UserID, shortVotes.ProjectID, ActionStartBuild, TransitionOpts{})
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ReasonVoteShortfall, e.Reason)

	// Votes met, funding short.
	shortFunds := models.Project{Title: "C", Zip: "94107", Status: models.ProjectStatusFunding, FundingGoalCents: 50000, VoteGoal: 100, VotesYes: 100, TotalRaisedCents: 49999, CreatorID: admin.UserID}
	require.NoError(t, db.Create(&shortFunds).Error)
	_, err = s.Transition(context.Background(), admin.UserID, shortFunds.ProjectID, ActionStartBuild, TransitionOpts{})
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ReasonFundingShortfall, e.Reason)
}

func TestStartBuild_Success(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	admin := createAdmin(t, db, "94107")

	now := time.Now()
	p := models.Project{
		Title: "Playground", Zip: "94107", Status: models.ProjectStatusFunding,
		FundingGoalCents: 50000, VoteGoal: 100, VotesYes: 100, TotalRaisedCents: 50000,
		BuildReadyNotify: true, BuildReadyAt: &now, CreatorID: admin.UserID,
	}
	require.NoError(t, db.Create(&p).Error)

	got, err := s.Transition(context.Background(), admin.UserID, p.ProjectID, ActionStartBuild, TransitionOpts{})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusBuild, got.Status)
	assert.NotNil(t, got.BuildStartedAt)

	var stored models.Project
	require.NoError(t, db.Where("project_id = ?", p.ProjectID).First(&stored).Error)
	assert.False(t, stored.BuildReadyNotify)
	// Debounce stamp survives so the flag is never re-raised.
	assert.NotNil(t, stored.BuildReadyAt)
}

func TestComplete_OnlyFromBuild(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	admin := createAdmin(t, db, "94107")

	p := models.Project{Title: "X", Zip: "94107", Status: models.ProjectStatusFunding, CreatorID: admin.UserID}
	require.NoError(t, db.Create(&p).Error)
	_, err := s.Transition(context.Background(), admin.UserID, p.ProjectID, ActionComplete, TransitionOpts{})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ReasonStatusMismatch, e.Reason)
}

func TestComplete_DefaultsGrandOpening(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	admin := createAdmin(t, db, "94107")

	p := models.Project{Title: "X", Zip: "94107", Status: models.ProjectStatusBuild, CreatorID: admin.UserID}
	require.NoError(t, db.Create(&p).Error)
	got, err := s.Transition(context.Background(), admin.UserID, p.ProjectID, ActionComplete, TransitionOpts{})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.GrandOpeningAt)
}

func TestComplete_ExplicitGrandOpening(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	admin := createAdmin(t, db, "94107")

	opening := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	p := models.Project{Title: "X", Zip: "94107", Status: models.ProjectStatusBuild, CreatorID: admin.UserID}
	require.NoError(t, db.Create(&p).Error)
	got, err := s.Transition(context.Background(), admin.UserID, p.ProjectID, ActionComplete, TransitionOpts{GrandOpeningAt: &opening})
	require.NoError(t, err)
	assert.Equal(t, opening.Unix(), got.GrandOpeningAt.Unix())
}

func TestArchive_NonTerminalOnly(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	admin := createAdmin(t, db, "94107")

	for _, status := range []string{models.ProjectStatusDraft, models.ProjectStatusVoting, models.ProjectStatusFunding, models.ProjectStatusBuild} {
		p := models.Project{Title: "X " + status, Zip: "94107", Status: status, CreatorID: admin.UserID}
		require.NoError(t, db.Create(&p).Error)
		got, err := s.Transition(context.Background(), admin.UserID, p.ProjectID, ActionArchive, TransitionOpts{})
		require.NoError(t, err, status)
		assert.Equal(t, models.ProjectStatusArchived, got.Status)
	}

	for _, status := range []string{models.ProjectStatusCompleted, models.ProjectStatusArchived} {
		p := models.Project{Title: "Y " + status, Zip: "94107", Status: status, CreatorID: admin.UserID}
		require.NoError(t, db.Create(&p).Error)
		_, err := s.Transition(context.Background(), admin.UserID, p.ProjectID, ActionArchive, TransitionOpts{})
		assert.True(t, apperr.IsKind(err, apperr.KindPreconditionFailed), status)
	}
}

func TestTransition_UnknownAction(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	admin := createAdmin(t, db, "94107")

	p := models.Project{Title: "X", Zip: "94107", Status: models.ProjectStatusVoting, CreatorID: admin.UserID}
	require.NoError(t, db.Create(&p).Error)
	_, err := s.Transition(context.Background(), admin.UserID, p.ProjectID, "promote", TransitionOpts{})
	assert.True(t, apperr.IsKind(err, apperr.KindPreconditionFailed))
}

func TestTransition_WritesAuditTrailOnBothOutcomes(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	admin := createAdmin(t, db, "94107")

	p := models.Project{Title: "X", Zip: "94107", Status: models.ProjectStatusBuild, CreatorID: admin.UserID}
	require.NoError(t, db.Create(&p).Error)

	_, err := s.Transition(context.Background(), admin.UserID, p.ProjectID, ActionComplete, TransitionOpts{})
	require.NoError(t, err)
	// Second complete fails (already completed) but is still recorded.
	_, err = s.Transition(context.Background(), admin.UserID, p.ProjectID, ActionComplete, TransitionOpts{})
	require.Error(t, err)

	var entries []models.AuditLog
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 2)
	outcomes := []string{entries[0].Outcome, entries[1].Outcome}
	assert.Contains(t, outcomes, models.AuditOutcomeSuccess)
	assert.Contains(t, outcomes, models.AuditOutcomeFailure)
}

func TestThresholdCheck_PromotesVotingToFunding(t *testing.T) {
	db := setupProjectsDB(t)
	admin := createAdmin(t, db, "94107")

	p := models.Project{Title: "X", Zip: "94107", Status: models.ProjectStatusVoting, VoteGoal: 3, VotesYes: 3, FundingGoalCents: 10000, CreatorID: admin.UserID}
	require.NoError(t, db.Create(&p).Error)

	require.NoError(t, ThresholdCheckTx(db, p.ProjectID, time.Now()))

	var stored models.Project
	require.NoError(t, db.Where("project_id = ?", p.ProjectID).First(&stored).Error)
	assert.Equal(t, models.ProjectStatusFunding, stored.Status)
	// Funding goal not met, so no build-ready flag yet.
	assert.False(t, stored.BuildReadyNotify)
	assert.Nil(t, stored.BuildReadyAt)
}

func TestThresholdCheck_BuildReadyIsOneShot(t *testing.T) {
	db := setupProjectsDB(t)
	admin := createAdmin(t, db, "94107")

	p := models.Project{Title: "X", Zip: "94107", Status: models.ProjectStatusFunding, VoteGoal: 1, VotesYes: 1, FundingGoalCents: 100, TotalRaisedCents: 100, CreatorID: admin.UserID}
	require.NoError(t, db.Create(&p).Error)

	require.NoError(t, ThresholdCheckTx(db, p.ProjectID, time.Now()))
	var first models.Project
	require.NoError(t, db.Where("project_id = ?", p.ProjectID).First(&first).Error)
	assert.True(t, first.BuildReadyNotify)
	require.NotNil(t, first.BuildReadyAt)

	// Admin clears the notify flag (as StartBuild would); further threshold
	// checks must not re-raise it.
	require.NoError(t, db.Model(&models.Project{}).Where("project_id = ?", p.ProjectID).Update("build_ready_notify", false).Error)
	require.NoError(t, ThresholdCheckTx(db, p.ProjectID, time.Now()))

	var second models.Project
	require.NoError(t, db.Where("project_id = ?", p.ProjectID).First(&second).Error)
	assert.False(t, second.BuildReadyNotify)
	assert.Equal(t, first.BuildReadyAt.Unix(), second.BuildReadyAt.Unix())
}

func TestThresholdCheck_ZeroGoalsPromoteImmediately(t *testing.T) {
	db := setupProjectsDB(t)
	admin := createAdmin(t, db, "94107")

	p := models.Project{Title: "X", Zip: "94107", Status: models.ProjectStatusVoting, VoteGoal: 0, FundingGoalCents: 0, CreatorID: admin.UserID}
	require.NoError(t, db.Create(&p).Error)

	require.NoError(t, ThresholdCheckTx(db, p.ProjectID, time.Now()))

	var stored models.Project
	require.NoError(t, db.Where("project_id = ?", p.ProjectID).First(&stored).Error)
	assert.Equal(t, models.ProjectStatusFunding, stored.Status)
	assert.True(t, stored.BuildReadyNotify)
}

// Full lifecycle: a project with a 100-vote goal and a $500 funding goal is
// promoted when the votes land, flagged when the funds land, built and
// completed by the administrator.
func TestLifecycle_EndToEnd(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	admin := createAdmin(t, db, "94107")

	p := models.Project{Title: "Library Annex", Zip: "94107", Status: models.ProjectStatusVoting, VoteGoal: 100, FundingGoalCents: 50000, CreatorID: admin.UserID}
	require.NoError(t, db.Create(&p).Error)

	// 99 yes votes: still voting.
	require.NoError(t, db.Model(&models.Project{}).Where("project_id = ?", p.ProjectID).Update("votes_yes", 99).Error)
	require.NoError(t, ThresholdCheckTx(db, p.ProjectID, time.Now()))
	var cur models.Project
	require.NoError(t, db.Where("project_id = ?", p.ProjectID).First(&cur).Error)
	assert.Equal(t, models.ProjectStatusVoting, cur.Status)

	// 100th vote promotes to funding.
	require.NoError(t, db.Model(&models.Project{}).Where("project_id = ?", p.ProjectID).Update("votes_yes", 100).Error)
	require.NoError(t, ThresholdCheckTx(db, p.ProjectID, time.Now()))
	require.NoError(t, db.Where("project_id = ?", p.ProjectID).First(&cur).Error)
	assert.Equal(t, models.ProjectStatusFunding, cur.Status)
	assert.False(t, cur.BuildReadyNotify)

	// Funding crosses the goal: build-ready raised, status unchanged.
	require.NoError(t, db.Model(&models.Project{}).Where("project_id = ?", p.ProjectID).Update("total_raised_cents", 50000).Error)
	require.NoError(t, ThresholdCheckTx(db, p.ProjectID, time.Now()))
	require.NoError(t, db.Where("project_id = ?", p.ProjectID).First(&cur).Error)
	assert.Equal(t, models.ProjectStatusFunding, cur.Status)
	assert.True(t, cur.BuildReadyNotify)

	// Admin starts the build, then completes.
	_, err := s.Transition(context.Background(), admin.UserID, p.ProjectID, ActionStartBuild, TransitionOpts{})
	require.NoError(t, err)
	got, err := s.Transition(context.Background(), admin.UserID, p.ProjectID, ActionComplete, TransitionOpts{})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusCompleted, got.Status)
}

func TestList_ExcludesArchived(t *testing.T) {
	db := setupProjectsDB(t)
	s := newService(db)
	admin := createAdmin(t, db, "94107")

	require.NoError(t, db.Create(&models.Project{Title: "Live", Zip: "94107", Status: models.ProjectStatusVoting, CreatorID: admin.UserID}).Error)
	require.NoError(t, db.Create(&models.Project{Title: "Gone", Zip: "94107", Status: models.ProjectStatusArchived, CreatorID: admin.UserID}).Error)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Live", list[0].Title)
}
