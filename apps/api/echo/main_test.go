package echoapi_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/Mavuisra/naklass-sub005/apps/api/echo"
	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/academicyear"
	"github.com/Mavuisra/naklass-sub005/core/school"
	"github.com/Mavuisra/naklass-sub005/core/teacher"
	"github.com/Mavuisra/naklass-sub005/core/user"
	emailsvc "github.com/Mavuisra/naklass-sub005/services/email"
	sqlxrepos "github.com/Mavuisra/naklass-sub005/storage/database/sqlx"
	"github.com/Mavuisra/naklass-sub005/storage/files"
	"github.com/Mavuisra/naklass-sub005/testutil"
)

const pwd = "Mw@lim0-2024"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type testApp struct {
	conf   *core.Config
	db     *sqlx.DB
	mailer *emailsvc.ConsoleServiceMock
	server Server
}

func newTestApp(t *testing.T) testApp {
	conf := core.NewTestConfig(t.TempDir())
	db := testutil.PrepareDB(t)
	logger := testutil.NewLogger(conf)
	mailer := testutil.NewMailer(conf)
	validator := testutil.NewValidator()

	fileStore, err := files.NewLocalStore(conf.Uploads.Dir, conf.Uploads.MaxSize)
	require.NoError(t, err)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), validator)
	server := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validator:      validator,
		UserSvc:        usrSvc,
		ResetSvc:       user.NewPasswordResetService(usrSvc, user.NewTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta), mailer),
		SchoolSvc:      school.NewService(db, sqlxrepos.NewSchoolRepository(db), usrSvc, fileStore, mailer, validator),
		YearSvc:        academicyear.NewService(db, sqlxrepos.NewAcademicYearRepository(db), validator),
		TeacherSvc:     teacher.NewService(db, sqlxrepos.NewTeacherRepository(db), usrSvc, fileStore, validator),
		DisableReqLogs: true,
	})
	return testApp{conf: conf, db: db, mailer: mailer, server: server}
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	wantData interface{}
}

func (app testApp) getToken(t *testing.T, usr user.User) string {
	token, err := GenerateToken(app.conf, GetUserClaims(app.conf, usr))
	require.NoError(t, err)
	return token
}

func (app testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app testApp) upload(t *testing.T, path, token, field, filename string, data []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app testApp) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := app.do(t, method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantData != nil {
				assertJSON(t, tt.wantData, rec)
			}
		})
	}
}

func assertJSON(t *testing.T, want interface{}, rec *httptest.ResponseRecorder) {
	t.Helper()
	data, err := json.Marshal(want)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), rec.Body.String())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}
