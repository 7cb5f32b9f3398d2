package teacher_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/school"
	"github.com/Mavuisra/naklass-sub005/core/teacher"
	"github.com/Mavuisra/naklass-sub005/core/user"
	sqlxrepos "github.com/Mavuisra/naklass-sub005/storage/database/sqlx"
	"github.com/Mavuisra/naklass-sub005/storage/files"
	"github.com/Mavuisra/naklass-sub005/testutil"
)

const pwd = "Mw@lim0-2024"

type fixture struct {
	db     *sqlx.DB
	svc    *teacher.Service
	usrSvc *user.Service
	actor  core.Actor
}

func setup(t *testing.T) fixture {
	db := testutil.PrepareDB(t)
	store, err := files.NewLocalStore(t.TempDir(), 1<<20)
	require.NoError(t, err)
	v := testutil.NewValidator()
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), v)
	sch := testutil.CreateSchool(t, db, "Institut Umoja", "umoja", school.StatusApproved, true)
	return fixture{
		db:     db,
		svc:    teacher.NewService(db, sqlxrepos.NewTeacherRepository(db), usrSvc, store, v),
		usrSvc: usrSvc,
		actor:  core.Actor{UserID: "director", SchoolID: sch.ID, Roles: []string{core.RoleAdminDirector}},
	}
}

func newTeacher(last, first string) teacher.NewTeacher {
	return teacher.NewTeacher{
		LastName:        last,
		FirstName:       first,
		Sex:             "F",
		Email:           "Mbuyi@umoja.cd",
		Specialties:     []string{"Mathématiques", " Physique ", "Mathématiques", ""},
		ExperienceYears: 7,
		HireDate:        "2019-09-01",
	}
}

func TestService_Create(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	year := time.Now().UTC().Year()

	t1, err := f.svc.Create(ctx, f.actor, newTeacher("Mbuyi", "Thérèse"))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("ENS-%d-0001", year), t1.Matricule)
	assert.Equal(t, teacher.StatusActive, t1.Status)
	assert.Equal(t, []string{"Mathématiques", "Physique"}, t1.Specialties)
	assert.Equal(t, "mbuyi@umoja.cd", t1.Email)
	require.NotNil(t, t1.HireDate)
	assert.Equal(t, "2019-09-01", t1.HireDate.String())
	assert.Nil(t, t1.BirthDate)
	assert.False(t, t1.UserID.Valid)

	t2, err := f.svc.Create(ctx, f.actor, newTeacher("Ilunga", "Marc"))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("ENS-%d-0002", year), t2.Matricule)

	t.Run("explicit matricule", func(t *testing.T) {
		nt := newTeacher("Kalala", "Jean")
		nt.Matricule = "PROF-17"
		tch, err := f.svc.Create(ctx, f.actor, nt)
		require.NoError(t, err)
		assert.Equal(t, "PROF-17", tch.Matricule)

		_, err = f.svc.Create(ctx, f.actor, nt)
		assert.True(t, core.IsConflict(err))
	})

	t.Run("generated matricules skip taken ones", func(t *testing.T) {
		nt := newTeacher("Kalala", "Paul")
		nt.Matricule = fmt.Sprintf("ENS-%d-0004", year)
		_, err := f.svc.Create(ctx, f.actor, nt)
		require.NoError(t, err)

		// 3 teachers use the prefix, so the count starts the search at 0004
		tch, err := f.svc.Create(ctx, f.actor, newTeacher("Tshala", "Muana"))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("ENS-%d-0005", year), tch.Matricule)
	})

	t.Run("invalid teacher", func(t *testing.T) {
		nt := newTeacher("", "Marc")
		nt.Sex = "X"
		nt.ExperienceYears = -1
		_, err := f.svc.Create(ctx, f.actor, nt)
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		flds := make([]string, 0, len(vErr.Fields))
		for _, fld := range vErr.Fields {
			flds = append(flds, fld.Field)
		}
		assert.ElementsMatch(t, []string{"nom", "sexe", "experience_annees"}, flds)
	})
}

func TestService_CreateWithAccount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("invalid account writes nothing", func(t *testing.T) {
		nt := newTeacher("Mbuyi", "Thérèse")
		nt.Account = &teacher.Account{Username: "mbuyi", Password: "123", PasswordConfirm: "123"}
		_, err := f.svc.Create(ctx, f.actor, nt)
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "account.password", vErr.Fields[0].Field)
		assert.Equal(t, 0, testutil.Count(t, f.db, "enseignants", ""))
		assert.Equal(t, 0, testutil.Count(t, f.db, "utilisateurs", ""))
	})

	t.Run("taken username writes nothing", func(t *testing.T) {
		testutil.CreateUser(t, f.db, f.actor.SchoolID, "Someone", "mbuyi", "", pwd, []string{core.RoleTeacher}, true)
		nt := newTeacher("Mbuyi", "Thérèse")
		nt.Account = &teacher.Account{Username: "mbuyi", Password: pwd, PasswordConfirm: pwd}
		_, err := f.svc.Create(ctx, f.actor, nt)
		var cErr *core.ConflictError
		require.True(t, errors.As(err, &cErr))
		assert.Equal(t, "account.username", cErr.Fields[0].Field)
		assert.Equal(t, 0, testutil.Count(t, f.db, "enseignants", ""))
		assert.Equal(t, 1, testutil.Count(t, f.db, "utilisateurs", ""))
	})

	nt := newTeacher("Mbuyi", "Thérèse")
	nt.Account = &teacher.Account{Password: pwd, PasswordConfirm: pwd}
	tch, err := f.svc.Create(ctx, f.actor, nt)
	require.NoError(t, err)
	require.True(t, tch.UserID.Valid)

	usr, err := f.usrSvc.GetByID(ctx, tch.UserID.String)
	require.NoError(t, err)
	assert.Equal(t, "mbuyi@umoja.cd", usr.Email, "falls back on the teacher email")
	assert.Equal(t, "Thérèse Mbuyi", usr.Name)
	assert.Equal(t, user.TeacherRoles, usr.Roles)
	assert.Equal(t, f.actor.SchoolID, usr.SchoolID)
	assert.True(t, usr.IsActive)

	t.Run("suspending disables the account", func(t *testing.T) {
		tch, err := f.svc.SetStatus(ctx, f.actor, tch.ID, teacher.StatusUpdate{Status: teacher.StatusSuspended})
		require.NoError(t, err)
		assert.Equal(t, teacher.StatusSuspended, tch.Status)
		usr, err := f.usrSvc.GetByID(ctx, tch.UserID.String)
		require.NoError(t, err)
		assert.False(t, usr.IsActive)

		_, err = f.svc.SetStatus(ctx, f.actor, tch.ID, teacher.StatusUpdate{Status: teacher.StatusActive})
		require.NoError(t, err)
		usr, err = f.usrSvc.GetByID(ctx, tch.UserID.String)
		require.NoError(t, err)
		assert.True(t, usr.IsActive)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := f.svc.SetStatus(ctx, f.actor, tch.ID, teacher.StatusUpdate{Status: "en vacances"})
		assert.True(t, core.IsValidation(err))
	})

	t.Run("delete removes the account", func(t *testing.T) {
		require.NoError(t, f.svc.Delete(ctx, f.actor, tch.ID))
		_, err := f.svc.Get(ctx, f.actor, tch.ID)
		assert.True(t, errors.Is(err, teacher.ErrNotFound))
		_, err = f.usrSvc.GetByID(ctx, tch.UserID.String)
		assert.True(t, errors.Is(err, user.ErrNotFound))
	})
}

func TestService_CreateWithAccountRollback(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// the account is inserted before the teacher row
	restore := testutil.FailWrites(t, f.db, "enseignants", "INSERT", "")
	nt := newTeacher("Mbuyi", "Thérèse")
	nt.Account = &teacher.Account{Username: "mbuyi", Password: pwd, PasswordConfirm: pwd}
	_, err := f.svc.Create(ctx, f.actor, nt)
	require.Error(t, err)
	assert.Equal(t, 0, testutil.Count(t, f.db, "enseignants", ""))
	assert.Equal(t, 0, testutil.Count(t, f.db, "utilisateurs", ""))

	restore()
	tch, err := f.svc.Create(ctx, f.actor, nt)
	require.NoError(t, err)
	assert.True(t, tch.UserID.Valid)
	assert.Equal(t, 1, testutil.Count(t, f.db, "utilisateurs", "username = ?", "mbuyi"))
}

func TestService_Update(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t1 := testutil.CreateTeacher(t, f.db, f.actor.SchoolID, "M-1", "Mbuyi", "Thérèse")
	testutil.CreateTeacher(t, f.db, f.actor.SchoolID, "M-2", "Ilunga", "Marc")

	ut := newTeacher("Mbuyi-Kasa", "Thérèse")
	tch, err := f.svc.Update(ctx, f.actor, t1.ID, ut)
	require.NoError(t, err)
	assert.Equal(t, "M-1", tch.Matricule, "empty matricule keeps the current one")
	assert.Equal(t, "Mbuyi-Kasa", tch.LastName)

	ut.Matricule = "M-2"
	_, err = f.svc.Update(ctx, f.actor, t1.ID, ut)
	assert.True(t, core.IsConflict(err))

	t.Run("other school's teacher", func(t *testing.T) {
		other := testutil.CreateSchool(t, f.db, "Lycée Wima", "wima", school.StatusApproved, true)
		otherActor := core.Actor{SchoolID: other.ID, Roles: []string{core.RoleAdminDirector}}
		_, err := f.svc.Update(ctx, otherActor, t1.ID, newTeacher("X", "Y"))
		assert.True(t, errors.Is(err, teacher.ErrNotFound))
	})
}

func TestService_Query(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	testutil.CreateTeacher(t, f.db, f.actor.SchoolID, "M-1", "Mbuyi", "Thérèse", "Mathématiques")
	testutil.CreateTeacher(t, f.db, f.actor.SchoolID, "M-2", "Ilunga", "Marc", "Français")
	other := testutil.CreateSchool(t, f.db, "Lycée Wima", "wima", school.StatusApproved, true)
	testutil.CreateTeacher(t, f.db, other.ID, "M-3", "Mbuyi", "Jean")

	tests := []struct {
		name   string
		filter *teacher.QueryFilter
		want   []string
	}{
		{name: "all", filter: nil, want: []string{"M-1", "M-2"}},
		{name: "search", filter: &teacher.QueryFilter{Search: "MBU"}, want: []string{"M-1"}},
		{name: "specialty", filter: &teacher.QueryFilter{Specialty: "Français"}, want: []string{"M-2"}},
		{name: "status", filter: &teacher.QueryFilter{Status: teacher.StatusRetired}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			teachers, err := f.svc.Query(ctx, f.actor, tt.filter, nil)
			require.NoError(t, err)
			got := make([]string, 0, len(teachers))
			for _, tch := range teachers {
				got = append(got, tch.Matricule)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestService_UpdatePhoto(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tch := testutil.CreateTeacher(t, f.db, f.actor.SchoolID, "M-1", "Mbuyi", "Thérèse")

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil))

	tests := []struct {
		name     string
		filename string
		data     []byte
		wantErr  bool
	}{
		{name: "bad extension", filename: "photo.bmp", data: buf.Bytes(), wantErr: true},
		{name: "not an image", filename: "photo.jpg", data: []byte("GIF? no"), wantErr: true},
		{name: "jpeg", filename: "Photo.JPG", data: buf.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.UpdatePhoto(ctx, f.actor, tch.ID, tt.filename, bytes.NewReader(tt.data))
			if tt.wantErr {
				assert.True(t, core.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Regexp(t, `^photo_`+tch.ID+`_\d+\.jpg$`, got.Photo)
		})
	}
}
