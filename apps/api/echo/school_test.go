package echoapi_test

import (
	"bytes"
	"image"
	"image/png"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/school"
	"github.com/Mavuisra/naklass-sub005/core/user"
	"github.com/Mavuisra/naklass-sub005/testutil"
)

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func Test_schoolApi_signupAndValidation(t *testing.T) {
	app := newTestApp(t)
	root := testutil.CreateUser(t, app.db, "", "root", "root", "", pwd, []string{core.RoleSuperAdmin}, true)
	rootToken := app.getToken(t, root)

	signup := school.NewSignup{
		School: school.Profile{Name: "Collège Boboto", City: "Kinshasa"},
		Admin: user.NewUser{
			Name: "Mama Nzinga", Username: "nzinga", Email: "nzinga@boboto.cd",
			Password: pwd, PasswordConfirm: pwd,
		},
	}

	app.run(t, []httpTest{
		{name: "admin email required", method: http.MethodPost, path: "/v1/signup",
			body: school.NewSignup{School: school.Profile{Name: "Collège Boboto"}, Admin: user.NewUser{Name: "X", Username: "xyz", Password: pwd, PasswordConfirm: pwd}},
			wantCode: http.StatusBadRequest, wantData: map[string]string{"admin.email": "the admin email is required to register a school"}},
		{name: "auth required", path: "/v1/admin/schools", wantCode: http.StatusUnauthorized, wantData: errMissingToken},
	})

	rec := app.do(t, http.MethodPost, "/v1/signup", "", signup)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sch school.School
	decode(t, rec, &sch)
	assert.Equal(t, "college-boboto", sch.Code)
	assert.Equal(t, school.StatusPending, sch.ValidationStatus)

	// the director of a pending school is let in but cannot reach the console
	rec = app.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"school": "college-boboto", "username": "nzinga", "password": pwd})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	decode(t, rec, &login)
	rec = app.do(t, http.MethodGet, "/v1/admin/schools", login.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, http.MethodGet, "/v1/admin/signup-requests?statut="+school.SignupPending, rootToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reqs []school.SignupRequest
	decode(t, rec, &reqs)
	require.Len(t, reqs, 1)
	assert.Equal(t, sch.ID, reqs[0].SchoolID)
	assert.Equal(t, "nzinga@boboto.cd", reqs[0].ContactEmail)

	path := "/v1/admin/schools/" + sch.ID
	app.run(t, []httpTest{
		{name: "unknown action", method: http.MethodPost, path: path + "/validation", token: rootToken,
			body: map[string]string{"action": "lol"}, wantCode: http.StatusBadRequest},
		{name: "unknown school", method: http.MethodPost, path: "/v1/admin/schools/lol/validation", token: rootToken,
			body: school.TransitionRequest{Action: "approve"}, wantCode: http.StatusNotFound, wantData: httpErr{Error: "school not found"}},
		{name: "request changes", method: http.MethodPost, path: path + "/validation", token: rootToken,
			body: school.TransitionRequest{Action: "request_changes", Note: "Ajoutez l'adresse"}, wantCode: http.StatusOK},
		{name: "approve", method: http.MethodPost, path: path + "/validation", token: rootToken,
			body: school.TransitionRequest{Action: "approve"}, wantCode: http.StatusOK},
		{name: "approved is final", method: http.MethodPost, path: path + "/validation", token: rootToken,
			body: school.TransitionRequest{Action: "reject"}, wantCode: http.StatusConflict},
	})

	rec = app.do(t, http.MethodGet, path, rootToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &sch)
	assert.Equal(t, school.StatusApproved, sch.ValidationStatus)
	assert.True(t, sch.SuperAdminValidated)
	assert.Equal(t, root.ID, sch.ValidatedBy.String)

	rec = app.do(t, http.MethodGet, path+"/history", rootToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []school.HistoryEntry
	decode(t, rec, &history)
	require.Len(t, history, 2)
	assert.Equal(t, string(school.StatusApproved), history[0].NewStatus)

	rec = app.do(t, http.MethodGet, "/v1/school/notifications?unread=true", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notifs []school.Notification
	decode(t, rec, &notifs)
	assert.Len(t, notifs, 2)

	rec = app.do(t, http.MethodPost, "/v1/school/notifications/"+notifs[0].ID+"/read", login.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.do(t, http.MethodGet, "/v1/school/notifications?unread=true", login.Token, nil)
	decode(t, rec, &notifs)
	assert.Len(t, notifs, 1)

	rec = app.do(t, http.MethodGet, "/v1/admin/stats", rootToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats school.PlatformStats
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.Schools)
	assert.Equal(t, 1, stats.ByValidationStatus[school.StatusApproved])
}

func Test_platformApi_activationAndDelete(t *testing.T) {
	app := newTestApp(t)
	root := testutil.CreateUser(t, app.db, "", "root", "root", "", pwd, []string{core.RoleSuperAdmin}, true)
	rootToken := app.getToken(t, root)

	rec := app.do(t, http.MethodPost, "/v1/admin/schools", rootToken, school.NewSchool{
		School: school.Profile{Name: "Lycée Wima"},
		Admin:  &user.NewUser{Name: "Paul Mukendi", Username: "mukendi", Password: pwd, PasswordConfirm: pwd},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sch school.School
	decode(t, rec, &sch)
	assert.Equal(t, school.StatusApproved, sch.ValidationStatus)

	login := map[string]string{"school": sch.Code, "username": "mukendi", "password": pwd}
	path := "/v1/admin/schools/" + sch.ID

	app.run(t, []httpTest{
		{name: "activee required", method: http.MethodPut, path: path + "/activation", token: rootToken,
			body: map[string]string{}, wantCode: http.StatusBadRequest, wantData: map[string]string{"activee": "this field is required"}},
		{name: "deactivate", method: http.MethodPut, path: path + "/activation", token: rootToken,
			body: map[string]bool{"activee": false}, wantCode: http.StatusOK},
		{name: "login refused", method: http.MethodPost, path: "/v1/auth/login", body: login, wantCode: http.StatusForbidden},
		{name: "reactivate", method: http.MethodPut, path: path + "/activation", token: rootToken,
			body: map[string]bool{"activee": true}, wantCode: http.StatusOK},
		{name: "login", method: http.MethodPost, path: "/v1/auth/login", body: login, wantCode: http.StatusOK},
		{name: "delete requires confirmation", method: http.MethodDelete, path: path, token: rootToken,
			body: map[string]bool{"confirm": false}, wantCode: http.StatusBadRequest},
		{name: "delete", method: http.MethodDelete, path: path, token: rootToken,
			body: map[string]bool{"confirm": true}, wantCode: http.StatusNoContent},
		{name: "gone", path: path, token: rootToken, wantCode: http.StatusNotFound},
	})
	assert.Equal(t, 1, testutil.Count(t, app.db, "utilisateurs", ""))
}

func Test_schoolApi_profile(t *testing.T) {
	app := newTestApp(t)
	umoja := testutil.CreateSchool(t, app.db, "Institut Umoja", "umoja", school.StatusApproved, true)
	director := testutil.CreateUser(t, app.db, umoja.ID, "Mama Nzinga", "nzinga", "", pwd, []string{core.RoleAdminDirector}, true)
	teacher := testutil.CreateUser(t, app.db, umoja.ID, "Jean Kalala", "kalala", "", pwd, []string{core.RoleTeacher}, true)
	adminToken := app.getToken(t, director)

	app.run(t, []httpTest{
		{name: "teachers cannot edit", method: http.MethodPut, path: "/v1/school", token: app.getToken(t, teacher),
			body: school.Profile{Name: "Umoja"}, wantCode: http.StatusForbidden},
		{name: "invalid color", method: http.MethodPut, path: "/v1/school", token: adminToken,
			body: school.Profile{Name: "Umoja", PrimaryColor: "blue"}, wantCode: http.StatusBadRequest},
		{name: "stats", path: "/v1/school/stats", token: adminToken, wantCode: http.StatusOK},
	})

	rec := app.do(t, http.MethodPut, "/v1/school", adminToken, school.Profile{Name: "Institut Umoja II", PrimaryColor: "#1A73E8"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sch school.School
	decode(t, rec, &sch)
	assert.Equal(t, "Institut Umoja II", sch.Name)
	assert.Equal(t, "umoja", sch.Code)

	rec = app.upload(t, "/v1/school/logo", adminToken, "logo", "logo.png", pngBytes(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &sch)
	assert.Regexp(t, `^logo_`+umoja.ID+`_\d+\.png$`, sch.Logo)

	rec = app.upload(t, "/v1/school/logo", adminToken, "logo", "logo.png", []byte("lol"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = app.upload(t, "/v1/school/logo", adminToken, "file", "logo.png", pngBytes(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assertJSON(t, map[string]string{"logo": "a file is required"}, rec)

	// uploads are served statically
	rec = app.do(t, http.MethodGet, "/uploads/"+sch.Logo, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
