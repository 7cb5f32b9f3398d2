package school_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/school"
	"github.com/Mavuisra/naklass-sub005/core/user"
	emailsvc "github.com/Mavuisra/naklass-sub005/services/email"
	sqlxrepos "github.com/Mavuisra/naklass-sub005/storage/database/sqlx"
	"github.com/Mavuisra/naklass-sub005/storage/files"
	"github.com/Mavuisra/naklass-sub005/testutil"
)

const pwd = "Mw@lim0-2024"

var superAdmin = core.Actor{UserID: "root", Username: "root", Roles: []string{core.RoleSuperAdmin}}

type fixture struct {
	db        *sqlx.DB
	svc       *school.Service
	mailer    *emailsvc.ConsoleServiceMock
	uploadDir string
}

func setup(t *testing.T) fixture {
	db := testutil.PrepareDB(t)
	conf := core.NewTestConfig(t.TempDir())
	store, err := files.NewLocalStore(conf.Uploads.Dir, conf.Uploads.MaxSize)
	require.NoError(t, err)
	v := testutil.NewValidator()
	mailer := testutil.NewMailer(conf)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), v)
	return fixture{
		db:        db,
		svc:       school.NewService(db, sqlxrepos.NewSchoolRepository(db), usrSvc, store, mailer, v),
		mailer:    mailer,
		uploadDir: conf.Uploads.Dir,
	}
}

func newSignup(name, adminEmail string) school.NewSignup {
	return school.NewSignup{
		School: school.Profile{Name: name, City: "Kinshasa", Email: "contact@ecole.cd"},
		Admin: user.NewUser{
			Name:            "Mama Nzinga",
			Username:        "nzinga",
			Email:           adminEmail,
			Password:        pwd,
			PasswordConfirm: pwd,
		},
		Message: "Merci de valider notre école.",
	}
}

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func TestService_Signup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("admin email is required", func(t *testing.T) {
		_, err := f.svc.Signup(ctx, newSignup("Collège Boboto", ""))
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "admin.email", vErr.Fields[0].Field)
		assert.Equal(t, 0, testutil.Count(t, f.db, "ecoles", ""))
	})

	t.Run("invalid admin password", func(t *testing.T) {
		ns := newSignup("Collège Boboto", "nzinga@boboto.cd")
		ns.Admin.Password, ns.Admin.PasswordConfirm = "weak", "weak"
		_, err := f.svc.Signup(ctx, ns)
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "admin.password", vErr.Fields[0].Field)
		assert.Equal(t, 0, testutil.Count(t, f.db, "ecoles", ""))
	})

	sch, err := f.svc.Signup(ctx, newSignup("Collège Boboto", "Nzinga@Boboto.cd"))
	require.NoError(t, err)
	assert.Equal(t, "college-boboto", sch.Code)
	assert.Equal(t, school.StatusPending, sch.ValidationStatus)
	assert.True(t, sch.Active)
	assert.False(t, sch.SuperAdminValidated)

	admins := testutil.Count(t, f.db, "utilisateurs", "ecole_id = ? AND email = ?", sch.ID, "nzinga@boboto.cd")
	assert.Equal(t, 1, admins)

	reqs, err := f.svc.SignupRequests(ctx, school.SignupPending)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, sch.ID, reqs[0].SchoolID)
	assert.Equal(t, "nzinga@boboto.cd", reqs[0].ContactEmail)

	sent := f.mailer.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "nzinga@boboto.cd", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "college-boboto")

	t.Run("codes are unique", func(t *testing.T) {
		ns := newSignup("Collège  BOBOTO", "autre@boboto.cd")
		sch2, err := f.svc.Signup(ctx, ns)
		require.NoError(t, err)
		assert.Equal(t, "college-boboto-2", sch2.Code)
	})
}

// staleCodeRepo reports the first code it is asked about as free, like a concurrent
// signup committing between the check and the insert.
type staleCodeRepo struct {
	*sqlxrepos.SchoolRepository
	lied bool
}

func (r *staleCodeRepo) CodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error) {
	if !r.lied {
		r.lied = true
		return false, nil
	}
	return r.SchoolRepository.CodeExists(ctx, code, exec...)
}

func TestService_SignupCodeTaken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.Signup(ctx, newSignup("Collège Boboto", "nzinga@boboto.cd"))
	require.NoError(t, err)
	require.Equal(t, "college-boboto", first.Code)

	v := testutil.NewValidator()
	repo := &staleCodeRepo{SchoolRepository: sqlxrepos.NewSchoolRepository(f.db)}
	svc := school.NewService(f.db, repo, user.NewService(sqlxrepos.NewUserRepository(f.db), v), nil, f.mailer, v)

	sch, err := svc.Signup(ctx, newSignup("Collège Boboto", "autre@boboto.cd"))
	require.NoError(t, err)
	assert.True(t, repo.lied)
	assert.Equal(t, "college-boboto-2", sch.Code)
	assert.Equal(t, 2, testutil.Count(t, f.db, "ecoles", ""))
	assert.Equal(t, 2, testutil.Count(t, f.db, "utilisateurs", ""))
	assert.Equal(t, 2, testutil.Count(t, f.db, "demandes_inscription_ecoles", ""))
}

func TestService_SignupConcurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const n = 5
	var wg sync.WaitGroup
	codes := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sch, err := f.svc.Signup(ctx, newSignup("Collège Boboto", fmt.Sprintf("admin%d@boboto.cd", i)))
			errs <- err
			codes <- sch.Code
		}(i)
	}
	wg.Wait()
	close(errs)
	close(codes)

	for err := range errs {
		assert.NoError(t, err)
	}
	seen := make(map[string]bool)
	for code := range codes {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.True(t, seen["college-boboto"])
	assert.Equal(t, n, testutil.Count(t, f.db, "ecoles", ""))
}

func TestService_Create(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sch, err := f.svc.Create(ctx, superAdmin, school.NewSchool{
		School: school.Profile{Name: "Lycée Wima"},
		Admin: &user.NewUser{
			Name:            "Papa Wemba",
			Username:        "wemba",
			Password:        pwd,
			PasswordConfirm: pwd,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, school.StatusApproved, sch.ValidationStatus)
	assert.True(t, sch.SuperAdminValidated)
	assert.Equal(t, "root", sch.ValidatedBy.String)

	var roles string
	require.NoError(t, f.db.Get(&roles, f.db.Rebind("SELECT roles FROM utilisateurs WHERE ecole_id = ?"), sch.ID))
	assert.Contains(t, roles, core.RoleAdminDirector)
	assert.Equal(t, 0, testutil.Count(t, f.db, "demandes_inscription_ecoles", ""))

	t.Run("without admin", func(t *testing.T) {
		sch, err := f.svc.Create(ctx, superAdmin, school.NewSchool{School: school.Profile{Name: "Institut Umoja"}})
		require.NoError(t, err)
		assert.Equal(t, 0, testutil.Count(t, f.db, "utilisateurs", "ecole_id = ?", sch.ID))
	})

	t.Run("invalid profile", func(t *testing.T) {
		_, err := f.svc.Create(ctx, superAdmin, school.NewSchool{School: school.Profile{Name: "X", PrimaryColor: "blue"}})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "school.couleur_primaire", vErr.Fields[0].Field)
	})
}

func TestService_Transition(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sch, err := f.svc.Signup(ctx, newSignup("Collège Boboto", "nzinga@boboto.cd"))
	require.NoError(t, err)
	f.mailer.Reset()

	t.Run("unknown action", func(t *testing.T) {
		_, err := f.svc.Transition(ctx, superAdmin, sch.ID, school.TransitionRequest{Action: "promote"})
		assert.True(t, core.IsValidation(err))
	})

	t.Run("unknown school", func(t *testing.T) {
		_, err := f.svc.Transition(ctx, superAdmin, "lol", school.TransitionRequest{Action: school.ActionApprove})
		assert.True(t, errors.Is(err, school.ErrNotFound))
	})

	sch, err = f.svc.Transition(ctx, superAdmin, sch.ID, school.TransitionRequest{
		Action: school.ActionRequestChanges,
		Note:   "Merci d'ajouter l'adresse.",
	})
	require.NoError(t, err)
	assert.Equal(t, school.StatusNeedsChanges, sch.ValidationStatus)
	assert.False(t, sch.SuperAdminValidated)

	sch, err = f.svc.Transition(ctx, superAdmin, sch.ID, school.TransitionRequest{Action: school.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, school.StatusApproved, sch.ValidationStatus)
	assert.True(t, sch.SuperAdminValidated)
	assert.True(t, sch.ValidatedAt.Valid)
	assert.Equal(t, superAdmin.UserID, sch.ValidatedBy.String)

	// one notification and one history entry per transition
	assert.Equal(t, 2, testutil.Count(t, f.db, "super_admin_notifications", "ecole_id = ?", sch.ID))
	history, err := f.svc.History(ctx, sch.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// latest first
	assert.Equal(t, "validated", history[0].Action)
	assert.Equal(t, "needs_changes", history[0].OldStatus)
	assert.Equal(t, "approved", history[0].NewStatus)
	assert.Equal(t, "changes_requested", history[1].Action)
	assert.Equal(t, "pending", history[1].OldStatus)
	assert.Equal(t, "needs_changes", history[1].NewStatus)
	assert.Equal(t, "Merci d'ajouter l'adresse.", history[1].Comment)

	reqs, err := f.svc.SignupRequests(ctx, school.SignupApproved)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	// school email and contact email
	sent := f.mailer.SentMessages()
	require.Len(t, sent, 2)
	assert.Len(t, sent[1].To, 2)

	t.Run("approved is terminal", func(t *testing.T) {
		for _, action := range []school.Action{school.ActionApprove, school.ActionReject, school.ActionRequestChanges} {
			_, err := f.svc.Transition(ctx, superAdmin, sch.ID, school.TransitionRequest{Action: action})
			assert.True(t, core.IsConflict(err), "action %s", action)
		}
		assert.Equal(t, 2, testutil.Count(t, f.db, "school_validation_history", "ecole_id = ?", sch.ID))
		assert.Equal(t, 2, testutil.Count(t, f.db, "super_admin_notifications", "ecole_id = ?", sch.ID))
	})

	t.Run("rejected is terminal", func(t *testing.T) {
		other := testutil.CreateSchool(t, f.db, "Institut Umoja", "umoja", school.StatusPending, true)
		rejected, err := f.svc.Transition(ctx, superAdmin, other.ID, school.TransitionRequest{Action: school.ActionReject})
		require.NoError(t, err)
		assert.Equal(t, school.StatusRejected, rejected.ValidationStatus)
		assert.False(t, rejected.CanLogin())

		_, err = f.svc.Transition(ctx, superAdmin, other.ID, school.TransitionRequest{Action: school.ActionApprove})
		assert.True(t, core.IsConflict(err))
	})
}

func TestService_TransitionRollback(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sch, err := f.svc.Signup(ctx, newSignup("Collège Boboto", "nzinga@boboto.cd"))
	require.NoError(t, err)
	f.mailer.Reset()

	// the status update and the notification come before the history entry
	restore := testutil.FailWrites(t, f.db, "school_validation_history", "INSERT", "")
	_, err = f.svc.Transition(ctx, superAdmin, sch.ID, school.TransitionRequest{Action: school.ActionApprove})
	require.Error(t, err)

	sch, err = f.svc.Get(ctx, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, school.StatusPending, sch.ValidationStatus)
	assert.False(t, sch.SuperAdminValidated)
	assert.False(t, sch.ValidatedAt.Valid)
	assert.Equal(t, 0, testutil.Count(t, f.db, "super_admin_notifications", ""))
	assert.Equal(t, 0, testutil.Count(t, f.db, "school_validation_history", ""))
	reqs, err := f.svc.SignupRequests(ctx, school.SignupPending)
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
	assert.Empty(t, f.mailer.SentMessages())

	restore()
	sch, err = f.svc.Transition(ctx, superAdmin, sch.ID, school.TransitionRequest{Action: school.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, school.StatusApproved, sch.ValidationStatus)
	assert.Equal(t, 1, testutil.Count(t, f.db, "super_admin_notifications", ""))
	assert.Equal(t, 1, testutil.Count(t, f.db, "school_validation_history", ""))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to school.ValidationStatus
		want     bool
	}{
		{school.StatusPending, school.StatusApproved, true},
		{school.StatusPending, school.StatusRejected, true},
		{school.StatusPending, school.StatusNeedsChanges, true},
		{school.StatusPending, school.StatusPending, false},
		{school.StatusNeedsChanges, school.StatusApproved, true},
		{school.StatusNeedsChanges, school.StatusNeedsChanges, false},
		{school.StatusNeedsChanges, school.StatusRejected, true},
		{school.StatusApproved, school.StatusRejected, false},
		{school.StatusApproved, school.StatusNeedsChanges, false},
		{school.StatusRejected, school.StatusApproved, false},
		{school.StatusRejected, school.StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, school.CanTransition(tt.from, tt.to))
		})
	}
}

func TestService_SetActive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sch := testutil.CreateSchool(t, f.db, "Institut Umoja", "umoja", school.StatusApproved, true)

	sch, err := f.svc.SetActive(ctx, sch.ID, false)
	require.NoError(t, err)
	assert.False(t, sch.Active)
	assert.False(t, sch.CanLogin())
	assert.Equal(t, school.StatusApproved, sch.ValidationStatus)

	sch, err = f.svc.SetActive(ctx, sch.ID, true)
	require.NoError(t, err)
	assert.True(t, sch.CanLogin())
}

func TestService_UpdateProfileAndLogo(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sch := testutil.CreateSchool(t, f.db, "Institut Umoja", "umoja", school.StatusApproved, true)
	actor := core.Actor{UserID: "director", SchoolID: sch.ID, Roles: []string{core.RoleAdminDirector}}

	sch, err := f.svc.UpdateProfile(ctx, actor, school.Profile{
		Name:         " Institut Umoja ",
		Motto:        "Umoja ni nguvu",
		PrimaryColor: "#1A73E8",
	})
	require.NoError(t, err)
	assert.Equal(t, "Institut Umoja", sch.Name)
	assert.Equal(t, "#1a73e8", sch.PrimaryColor)
	assert.Equal(t, "umoja", sch.Code, "code never changes")

	t.Run("not an image", func(t *testing.T) {
		_, err := f.svc.UpdateLogo(ctx, actor, "logo.png", bytes.NewReader([]byte("hello")))
		assert.True(t, core.IsValidation(err))
	})

	sch, err = f.svc.UpdateLogo(ctx, actor, "logo.png", bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)
	require.NotEmpty(t, sch.Logo)
	assert.FileExists(t, filepath.Join(f.uploadDir, sch.Logo))

	stats, err := f.svc.Stats(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Teachers)

	require.NoError(t, f.svc.Delete(ctx, sch.ID))
	_, err = os.Stat(filepath.Join(f.uploadDir, sch.Logo))
	assert.True(t, os.IsNotExist(err))
}

func TestService_Delete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sch := testutil.CreateSchool(t, f.db, "Institut Umoja", "umoja", school.StatusApproved, true)
	keep := testutil.CreateSchool(t, f.db, "Lycée Wima", "wima", school.StatusApproved, true)
	for _, id := range []string{sch.ID, keep.ID} {
		testutil.CreateUser(t, f.db, id, "Mama Nzinga", "nzinga", "", pwd, []string{core.RoleAdminDirector}, true)
		year := testutil.CreateYear(t, f.db, id, "2024-2025", "2024-09-01", "2025-06-30", true)
		class := testutil.CreateClass(t, f.db, id, year.ID, "6e A")
		student := testutil.CreateStudent(t, f.db, id, "Lumumba", "Patrice")
		testutil.CreateInscription(t, f.db, id, year.ID, class, student)
		testutil.CreatePayment(t, f.db, id, student, 150)
		testutil.CreateCourse(t, f.db, id, class, "Mathématiques")
		testutil.CreateTeacher(t, f.db, id, "ENS-2024-0001", "Kasa", "Vubu")
	}

	t.Run("unknown school", func(t *testing.T) {
		assert.True(t, errors.Is(f.svc.Delete(ctx, "lol"), school.ErrNotFound))
	})

	require.NoError(t, f.svc.Delete(ctx, sch.ID))
	for _, table := range []string{"utilisateurs", "annees_scolaires", "classes", "eleves", "inscriptions", "paiements", "cours", "enseignants"} {
		assert.Equal(t, 0, testutil.Count(t, f.db, table, "ecole_id = ?", sch.ID), table)
		assert.Equal(t, 1, testutil.Count(t, f.db, table, "ecole_id = ?", keep.ID), table)
	}
	_, err := f.svc.Get(ctx, sch.ID)
	assert.True(t, errors.Is(err, school.ErrNotFound))
}

func TestService_Notifications(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sch := testutil.CreateSchool(t, f.db, "Institut Umoja", "umoja", school.StatusPending, true)
	actor := core.Actor{UserID: "director", SchoolID: sch.ID, Roles: []string{core.RoleAdminDirector}}
	_, err := f.svc.Transition(ctx, superAdmin, sch.ID, school.TransitionRequest{Action: school.ActionApprove})
	require.NoError(t, err)

	notifs, err := f.svc.Notifications(ctx, actor, true)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, "École approuvée", notifs[0].Title)
	assert.False(t, notifs[0].Read)

	require.NoError(t, f.svc.MarkNotificationRead(ctx, actor, notifs[0].ID))
	notifs, err = f.svc.Notifications(ctx, actor, true)
	require.NoError(t, err)
	assert.Empty(t, notifs)

	t.Run("other school's notification", func(t *testing.T) {
		other := core.Actor{SchoolID: "other"}
		all, err := f.svc.Notifications(ctx, actor, false)
		require.NoError(t, err)
		require.Len(t, all, 1)
		err = f.svc.MarkNotificationRead(ctx, other, all[0].ID)
		assert.True(t, errors.Is(err, school.ErrNotificationNotFound))
	})

	stats, err := f.svc.PlatformStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Schools)
	assert.Equal(t, 1, stats.ByValidationStatus[school.StatusApproved])
}
