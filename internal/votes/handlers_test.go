package votes

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"civicfund-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVoteApp(h *Handlers, user *models.User) *fiber.App {
	app := fiber.New()
	if user != nil {
		app.Use(func(c *fiber.Ctx) error {
			c.Locals("user", map[string]interface{}{
				"user_id": user.UserID.String(),
				"email":   user.Email,
				"role":    user.Role,
				"zip":     user.Zip,
			})
			return c.Next()
		})
	}
	app.Post("/cast-vote", h.CastVote)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload map[string]interface{}) (int, map[string]interface{}) {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestCastVoteHandler_Unauthorized(t *testing.T) {
	db := setupVotesDB(t)
	h := &Handlers{Service: &Service{DB: db}}
	app := newVoteApp(h, nil)

	code, _ := postJSON(t, app, "/cast-vote", map[string]interface{}{
		"project_id": uuid.New().String(), "value": "yes",
	})
	assert.Equal(t, 401, code)
}

func TestCastVoteHandler_MissingFields(t *testing.T) {
	db := setupVotesDB(t)
	voter := createVoter(t, db, "94107", true)
	h := &Handlers{Service: &Service{DB: db}}
	app := newVoteApp(h, voter)

	code, _ := postJSON(t, app, "/cast-vote", map[string]interface{}{})
	assert.Equal(t, 400, code)
}

func TestCastVoteHandler_Created(t *testing.T) {
	db := setupVotesDB(t)
	voter := createVoter(t, db, "94107", true)
	p := createVotingProject(t, db, "94107", 10)
	h := &Handlers{Service: &Service{DB: db}}
	app := newVoteApp(h, voter)

	code, out := postJSON(t, app, "/cast-vote", map[string]interface{}{
		"project_id": p.ProjectID.String(), "value": "yes",
	})
	assert.Equal(t, 201, code)
	assert.Equal(t, "success", out["status"])
	data, _ := out["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["votes_yes"])
	assert.Equal(t, "voting", data["status"])
}

func TestCastVoteHandler_DuplicateConflict(t *testing.T) {
	db := setupVotesDB(t)
	voter := createVoter(t, db, "94107", true)
	p := createVotingProject(t, db, "94107", 10)
	h := &Handlers{Service: &Service{DB: db}}
	app := newVoteApp(h, voter)

	code, _ := postJSON(t, app, "/cast-vote", map[string]interface{}{
		"project_id": p.ProjectID.String(), "value": "yes",
	})
	require.Equal(t, 201, code)
	code, out := postJSON(t, app, "/cast-vote", map[string]interface{}{
		"project_id": p.ProjectID.String(), "value": "yes",
	})
	assert.Equal(t, 409, code)
	assert.Equal(t, "error", out["status"])
}

func TestCastVoteHandler_MembershipForbidden(t *testing.T) {
	db := setupVotesDB(t)
	voter := createVoter(t, db, "94107", false)
	p := createVotingProject(t, db, "94107", 10)
	h := &Handlers{Service: &Service{DB: db}}
	app := newVoteApp(h, voter)

	code, _ := postJSON(t, app, "/cast-vote", map[string]interface{}{
		"project_id": p.ProjectID.String(), "value": "yes",
	})
	assert.Equal(t, 403, code)
}
