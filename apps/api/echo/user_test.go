package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/school"
	"github.com/Mavuisra/naklass-sub005/core/user"
	"github.com/Mavuisra/naklass-sub005/testutil"
)

func Test_userApi(t *testing.T) {
	app := newTestApp(t)
	umoja := testutil.CreateSchool(t, app.db, "Institut Umoja", "umoja", school.StatusApproved, true)
	wima := testutil.CreateSchool(t, app.db, "Lycée Wima", "wima", school.StatusApproved, true)
	director := testutil.CreateUser(t, app.db, umoja.ID, "Mama Nzinga", "nzinga", "", pwd, []string{core.RoleAdminDirector}, true)
	testutil.CreateUser(t, app.db, wima.ID, "Paul Mukendi", "mukendi", "", pwd, []string{core.RoleAdminDirector}, true)
	adminToken := app.getToken(t, director)

	newUser := user.NewUser{Name: "Rose Ngalula", Username: "ngalula", Password: pwd, PasswordConfirm: pwd, Roles: []string{core.RoleAdminSecretary}}

	app.run(t, []httpTest{
		{name: "roles", path: "/v1/users/roles", token: adminToken, wantCode: http.StatusOK, wantData: user.Roles},
		{name: "no super-admins", method: http.MethodPost, path: "/v1/users", token: adminToken,
			body: user.NewUser{Name: "X", Username: "xyz", Password: pwd, PasswordConfirm: pwd, Roles: []string{core.RoleSuperAdmin}},
			wantCode: http.StatusBadRequest},
		{name: "create", method: http.MethodPost, path: "/v1/users", token: adminToken, body: newUser, wantCode: http.StatusCreated},
		{name: "username taken", method: http.MethodPost, path: "/v1/users", token: adminToken, body: newUser, wantCode: http.StatusConflict},
	})

	rec := app.do(t, http.MethodGet, "/v1/users?ordering=name", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var users []user.User
	decode(t, rec, &users)
	require.Len(t, users, 2, "scoped to the school")
	assert.Equal(t, "nzinga", users[0].Username)
	assert.Equal(t, "ngalula", users[1].Username)
}
